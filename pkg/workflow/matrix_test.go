package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/pkg/workflow"
)

func boolPtr(b bool) *bool { return &b }

func TestExpandNoMatrix(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{Steps: []*workflow.Step{{Run: "true"}}}
	instances := workflow.Expand("build", job)
	require.Len(t, instances, 1)
	assert.Equal(t, "build", instances[0].ID)
	assert.Empty(t, instances[0].Params)
}

func TestExpandSingleAxisFiveVersions(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{
		Strategy: &workflow.Strategy{
			FailFast: boolPtr(false),
			Matrix: map[string][]string{
				"interpreter": {"3.9", "3.10", "3.11", "3.12", "3.13"},
			},
		},
		Steps: []*workflow.Step{{Run: "true"}},
	}

	instances := workflow.Expand("typecheck", job)
	require.Len(t, instances, 5)

	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
	}
	assert.Equal(t, []string{
		"typecheck (3.9)",
		"typecheck (3.10)",
		"typecheck (3.11)",
		"typecheck (3.12)",
		"typecheck (3.13)",
	}, ids)
}

func TestExpandTwoAxes(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{
		Strategy: &workflow.Strategy{
			Matrix: map[string][]string{
				"os":          {"linux", "darwin"},
				"interpreter": {"3.12", "3.13"},
			},
		},
		Steps: []*workflow.Step{{Run: "true"}},
	}

	instances := workflow.Expand("typecheck", job)
	require.Len(t, instances, 4)
	// axes sorted: interpreter before os
	assert.Equal(t, "typecheck (3.12, linux)", instances[0].ID)
	assert.Equal(t, map[string]string{"interpreter": "3.12", "os": "linux"}, instances[0].Params)
}

func TestExpandExclude(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{
		Strategy: &workflow.Strategy{
			Matrix: map[string][]string{
				"os":          {"linux", "darwin"},
				"interpreter": {"3.12", "3.13"},
			},
			Exclude: []map[string]string{
				{"os": "darwin", "interpreter": "3.12"},
			},
		},
		Steps: []*workflow.Step{{Run: "true"}},
	}

	instances := workflow.Expand("typecheck", job)
	require.Len(t, instances, 3)
	for _, inst := range instances {
		assert.False(t, inst.Params["os"] == "darwin" && inst.Params["interpreter"] == "3.12")
	}
}

func TestExpandIncludeMergesExtraParams(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{
		Strategy: &workflow.Strategy{
			Matrix: map[string][]string{
				"interpreter": {"3.12", "3.13"},
			},
			Include: []map[string]string{
				{"interpreter": "3.13", "experimental": "true"},
			},
		},
		Steps: []*workflow.Step{{Run: "true"}},
	}

	instances := workflow.Expand("typecheck", job)
	require.Len(t, instances, 2)
	assert.Equal(t, "true", instances[1].Params["experimental"])
	assert.NotContains(t, instances[0].Params, "experimental")
}

func TestExpandIncludeAppendsNewCombination(t *testing.T) {
	t.Parallel()

	job := &workflow.Job{
		Strategy: &workflow.Strategy{
			Matrix: map[string][]string{
				"interpreter": {"3.12"},
			},
			Include: []map[string]string{
				{"interpreter": "3.14-dev"},
			},
		},
		Steps: []*workflow.Step{{Run: "true"}},
	}

	instances := workflow.Expand("typecheck", job)
	require.Len(t, instances, 2)
	assert.Equal(t, "typecheck (3.14-dev)", instances[1].ID)
}
