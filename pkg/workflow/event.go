package workflow

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EventKind identifies what caused a run.
type EventKind string

const (
	PushEvent        EventKind = "push"
	PullRequestEvent EventKind = "pull_request"
	ScheduleEvent    EventKind = "schedule"
)

var ErrBadCron = errors.New("invalid cron expression")

// Event is a concrete occurrence a workflow may react to.
type Event struct {
	Kind   EventKind
	Branch string
	Time   time.Time
}

// Triggers describes the events a workflow reacts to.
type Triggers struct {
	Push        *BranchFilter `yaml:"push,omitempty"`
	PullRequest *BranchFilter `yaml:"pull_request,omitempty"`
	Schedule    []CronTrigger `yaml:"schedule,omitempty"`
}

// BranchFilter restricts push and pull_request triggers to a branch list.
// An empty list matches every branch.
type BranchFilter struct {
	Branches []string `yaml:"branches,omitempty"`
}

// CronTrigger is a single schedule entry.
type CronTrigger struct {
	Cron string `yaml:"cron"`
}

func (t *Triggers) empty() bool {
	return t.Push == nil && t.PullRequest == nil && len(t.Schedule) == 0
}

func (t *Triggers) validate() error {
	for _, entry := range t.Schedule {
		_, err := cron.ParseStandard(entry.Cron)
		if err != nil {
			return errors.Wrapf(ErrBadCron, "%q: %v", entry.Cron, err)
		}
	}

	return nil
}

// Matches reports whether the workflow reacts to the given event.
func (t *Triggers) Matches(ev Event) bool {
	switch ev.Kind {
	case PushEvent:
		return t.Push != nil && t.Push.matches(ev.Branch)
	case PullRequestEvent:
		return t.PullRequest != nil && t.PullRequest.matches(ev.Branch)
	case ScheduleEvent:
		return len(t.Schedule) > 0
	}

	return false
}

func (f *BranchFilter) matches(branch string) bool {
	if len(f.Branches) == 0 {
		return true
	}
	for _, want := range f.Branches {
		if want == branch {
			return true
		}
	}

	return false
}

// NextSchedule returns the earliest upcoming fire time across all schedule
// entries, or the zero time when the workflow has no schedule.
func (t *Triggers) NextSchedule(from time.Time) (time.Time, error) {
	var next time.Time
	for _, entry := range t.Schedule {
		sched, err := cron.ParseStandard(entry.Cron)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrBadCron, "%q: %v", entry.Cron, err)
		}
		fire := sched.Next(from)
		if next.IsZero() || fire.Before(next) {
			next = fire
		}
	}

	return next, nil
}

// UnmarshalYAML accepts the three shapes triggers appear in: a bare event
// list (`on: [push, pull_request]`), a mapping with bare keys (`push:`) and
// a mapping with branch filters (`push: {branches: [main]}`).
func (t *Triggers) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return t.enable(value.Value)
	case yaml.SequenceNode:
		for _, item := range value.Content {
			if err := t.enable(item.Value); err != nil {
				return err
			}
		}

		return nil
	case yaml.MappingNode:
		return t.unmarshalMapping(value)
	}

	return errors.Errorf("unexpected trigger node on line %d", value.Line)
}

func (t *Triggers) unmarshalMapping(value *yaml.Node) error {
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		switch key.Value {
		case string(PushEvent):
			t.Push = &BranchFilter{}
			if val.Kind == yaml.MappingNode {
				if err := val.Decode(t.Push); err != nil {
					return errors.Wrap(err, "decode push trigger")
				}
			}
		case string(PullRequestEvent):
			t.PullRequest = &BranchFilter{}
			if val.Kind == yaml.MappingNode {
				if err := val.Decode(t.PullRequest); err != nil {
					return errors.Wrap(err, "decode pull_request trigger")
				}
			}
		case string(ScheduleEvent):
			if err := val.Decode(&t.Schedule); err != nil {
				return errors.Wrap(err, "decode schedule trigger")
			}
		default:
			return errors.Errorf("unsupported trigger %q", key.Value)
		}
	}

	return nil
}

func (t *Triggers) enable(name string) error {
	switch name {
	case string(PushEvent):
		t.Push = &BranchFilter{}
	case string(PullRequestEvent):
		t.PullRequest = &BranchFilter{}
	default:
		return errors.Errorf("unsupported trigger %q", name)
	}

	return nil
}
