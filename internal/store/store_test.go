package store_test

import (
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillci/matrun/internal/store"
	"github.com/quillci/matrun/pkg/workflow"
)

func addInstance(t *testing.T, s store.JobStore, id string) {
	t.Helper()
	err := s.AddVertex(id, workflow.Instance{ID: id, JobKey: id}, graph.VertexProperties{})
	require.NoError(t, err)
}

func TestAddVertexTwice(t *testing.T) {
	t.Parallel()

	s := store.New()
	addInstance(t, s, "build")
	err := s.AddVertex("build", workflow.Instance{ID: "build"}, graph.VertexProperties{})
	assert.ErrorIs(t, err, graph.ErrVertexAlreadyExists)
}

func TestStatusRoundtrip(t *testing.T) {
	t.Parallel()

	s := store.New()
	addInstance(t, s, "typecheck (3.9)")

	assert.Empty(t, s.Status("typecheck (3.9)"))
	s.SetStatus("typecheck (3.9)", "success")
	assert.Equal(t, "success", s.Status("typecheck (3.9)"))
	assert.Empty(t, s.Status("missing"))
}

func TestCreatesCycle(t *testing.T) {
	t.Parallel()

	s := store.New()
	addInstance(t, s, "build")
	addInstance(t, s, "test")
	addInstance(t, s, "deploy")

	require.NoError(t, s.AddEdge("build", "test", graph.Edge[string]{Source: "build", Target: "test"}))
	require.NoError(t, s.AddEdge("test", "deploy", graph.Edge[string]{Source: "test", Target: "deploy"}))

	cycle, err := s.CreatesCycle("build", "deploy")
	require.NoError(t, err)
	assert.False(t, cycle)

	cycle, err = s.CreatesCycle("deploy", "build")
	require.NoError(t, err)
	assert.True(t, cycle)

	cycle, err = s.CreatesCycle("build", "build")
	require.NoError(t, err)
	assert.True(t, cycle)
}

func TestRemoveVertexWithEdges(t *testing.T) {
	t.Parallel()

	s := store.New()
	addInstance(t, s, "build")
	addInstance(t, s, "test")
	require.NoError(t, s.AddEdge("build", "test", graph.Edge[string]{Source: "build", Target: "test"}))

	err := s.RemoveVertex("build")
	assert.ErrorIs(t, err, graph.ErrVertexHasEdges)

	require.NoError(t, s.RemoveEdge("build", "test"))
	assert.NoError(t, s.RemoveVertex("build"))
}
