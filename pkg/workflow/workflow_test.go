package workflow_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/pkg/workflow"
)

const typecheckWorkflow = `
name: typecheck
on:
  push:
  pull_request:
  schedule:
    - cron: "30 6 * * *"
jobs:
  typecheck:
    strategy:
      fail-fast: false
      matrix:
        interpreter: ["3.9", "3.10", "3.11", "3.12", "3.13"]
    steps:
      - uses: checkout
      - name: set up interpreter
        uses: setup-interpreter
        with:
          version: ${{ matrix.interpreter }}
      - name: install pinned dependencies
        uses: install-pinned
        with:
          lockfile: ci/requirements.txt
      - name: typecheck
        run: mypy --strict tests/*.py lib/*.py
`

func TestParseTypecheckWorkflow(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse(strings.NewReader(typecheckWorkflow))
	require.NoError(t, err)

	assert.Equal(t, "typecheck", wf.Name)
	require.Contains(t, wf.Jobs, "typecheck")

	job := wf.Jobs["typecheck"]
	require.Len(t, job.Steps, 4)
	assert.False(t, job.Strategy.FailFastEnabled())
	assert.Len(t, job.Strategy.Matrix["interpreter"], 5)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := workflow.Parse(strings.NewReader(`
name: bad
on:
  push:
jobs:
  build:
    stepz:
      - run: true
`))
	require.Error(t, err)
}

func TestParseStepNeedsExactlyOneAction(t *testing.T) {
	t.Parallel()

	_, err := workflow.Parse(strings.NewReader(`
name: bad
on:
  push:
jobs:
  build:
    steps:
      - uses: checkout
        run: echo both
`))
	require.ErrorIs(t, err, workflow.ErrStepAction)
}

func TestParseUnknownNeed(t *testing.T) {
	t.Parallel()

	_, err := workflow.Parse(strings.NewReader(`
name: bad
on:
  push:
jobs:
  deploy:
    needs: [build]
    steps:
      - run: echo hi
`))
	require.ErrorIs(t, err, workflow.ErrUnknownNeed)
}

func TestParseBadCron(t *testing.T) {
	t.Parallel()

	_, err := workflow.Parse(strings.NewReader(`
name: bad
on:
  schedule:
    - cron: "not a cron"
jobs:
  build:
    steps:
      - run: echo hi
`))
	require.ErrorIs(t, err, workflow.ErrBadCron)
}

func TestTriggersMatch(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse(strings.NewReader(typecheckWorkflow))
	require.NoError(t, err)

	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.PushEvent, Branch: "main"}))
	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.PullRequestEvent, Branch: "topic"}))
	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.ScheduleEvent}))
	assert.False(t, wf.On.Matches(workflow.Event{Kind: "release"}))
}

func TestTriggersBranchFilter(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse(strings.NewReader(`
name: filtered
on:
  push:
    branches: [main, release]
jobs:
  build:
    steps:
      - run: echo hi
`))
	require.NoError(t, err)

	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.PushEvent, Branch: "main"}))
	assert.False(t, wf.On.Matches(workflow.Event{Kind: workflow.PushEvent, Branch: "topic"}))
	assert.False(t, wf.On.Matches(workflow.Event{Kind: workflow.PullRequestEvent, Branch: "main"}))
}

func TestTriggersListForm(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse(strings.NewReader(`
name: listed
on: [push, pull_request]
jobs:
  build:
    steps:
      - run: echo hi
`))
	require.NoError(t, err)

	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.PushEvent}))
	assert.True(t, wf.On.Matches(workflow.Event{Kind: workflow.PullRequestEvent}))
	assert.False(t, wf.On.Matches(workflow.Event{Kind: workflow.ScheduleEvent}))
}

func TestNextSchedule(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse(strings.NewReader(typecheckWorkflow))
	require.NoError(t, err)

	from := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	next, err := wf.On.NextSchedule(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 6, 30, 0, 0, time.UTC), next)
}
