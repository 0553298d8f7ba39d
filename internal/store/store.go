// Package store backs a run's job graph with an in-memory graph.Store that
// also tracks per-instance execution status on vertex properties.
package store

import (
	"fmt"
	"sync"

	"github.com/dominikbraun/graph"

	"github.com/quillci/matrun/pkg/workflow"
)

const statusAttribute = "status"

// JobStore is the storage contract of a run's job graph. It extends the
// graph store with status bookkeeping on vertices.
type JobStore interface {
	graph.Store[string, workflow.Instance]
	SetStatus(id, status string)
	Status(id string) string
	CreatesCycle(source, target string) (bool, error)
}

type jobStore struct {
	lock             sync.RWMutex
	vertices         map[string]workflow.Instance
	vertexProperties map[string]*graph.VertexProperties

	// outEdges and inEdges store all outgoing and ingoing edges for all
	// vertices. For O(1) access, these edges themselves are stored in maps
	// whose keys are the hashes of the target vertices.
	outEdges map[string]map[string]graph.Edge[string] // source -> target
	inEdges  map[string]map[string]graph.Edge[string] // target -> source
}

// New returns an empty job store.
func New() JobStore {
	return &jobStore{
		vertices:         make(map[string]workflow.Instance),
		vertexProperties: make(map[string]*graph.VertexProperties),
		outEdges:         make(map[string]map[string]graph.Edge[string]),
		inEdges:          make(map[string]map[string]graph.Edge[string]),
	}
}

func (s *jobStore) AddVertex(id string, inst workflow.Instance, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[id]; ok {
		return graph.ErrVertexAlreadyExists
	}

	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}
	s.vertices[id] = inst
	s.vertexProperties[id] = &p

	return nil
}

func (s *jobStore) ListVertices() ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	hashes := make([]string, 0, len(s.vertices))
	for id := range s.vertices {
		hashes = append(hashes, id)
	}

	return hashes, nil
}

func (s *jobStore) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

func (s *jobStore) Vertex(id string) (workflow.Instance, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[id]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	p := s.vertexProperties[id]

	return v, *p, nil
}

func (s *jobStore) RemoveVertex(id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[id]; !ok {
		return graph.ErrVertexNotFound
	}

	if edges, ok := s.inEdges[id]; ok {
		if len(edges) > 0 {
			return graph.ErrVertexHasEdges
		}
		delete(s.inEdges, id)
	}

	if edges, ok := s.outEdges[id]; ok {
		if len(edges) > 0 {
			return graph.ErrVertexHasEdges
		}
		delete(s.outEdges, id)
	}

	delete(s.vertices, id)
	delete(s.vertexProperties, id)

	return nil
}

func (s *jobStore) AddEdge(sourceHash, targetHash string, edge graph.Edge[string]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash]; !ok {
		s.outEdges[sourceHash] = make(map[string]graph.Edge[string])
	}

	s.outEdges[sourceHash][targetHash] = edge

	if _, ok := s.inEdges[targetHash]; !ok {
		s.inEdges[targetHash] = make(map[string]graph.Edge[string])
	}

	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *jobStore) UpdateEdge(sourceHash, targetHash string, edge graph.Edge[string]) error {
	if _, err := s.Edge(sourceHash, targetHash); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.outEdges[sourceHash][targetHash] = edge
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *jobStore) RemoveEdge(sourceHash, targetHash string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[targetHash], sourceHash)
	delete(s.outEdges[sourceHash], targetHash)

	return nil
}

func (s *jobStore) Edge(sourceHash, targetHash string) (graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	sourceEdges, ok := s.outEdges[sourceHash]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	edge, ok := sourceEdges[targetHash]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *jobStore) ListEdges() ([]graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[string], 0)
	for _, edges := range s.outEdges {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

// SetStatus records the execution status of an instance on its vertex.
func (s *jobStore) SetStatus(id, status string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.vertexProperties[id]
	if !ok {
		return
	}
	p.Attributes[statusAttribute] = status
}

// Status returns the recorded status of an instance, or "" when unset.
func (s *jobStore) Status(id string) string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	p, ok := s.vertexProperties[id]
	if !ok {
		return ""
	}

	return p.Attributes[statusAttribute]
}

// CreatesCycle is a fastpath version of [graph.CreatesCycle] that avoids
// calling PredecessorMap, which generates large amounts of garbage to
// collect.
//
// Because CreatesCycle doesn't need to modify the PredecessorMap, we can use
// inEdges instead to compute the same thing without creating any copies.
func (s *jobStore) CreatesCycle(source, target string) (bool, error) {
	if _, _, err := s.Vertex(source); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", source, err)
	}

	if _, _, err := s.Vertex(target); err != nil {
		return false, fmt.Errorf("could not get vertex with hash %v: %w", target, err)
	}

	if source == target {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	stack := make([]string, 0)
	visited := make(map[string]struct{})

	stack = append(stack, source)
	for len(stack) > 0 {
		currentHash := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[currentHash]; !ok {
			// If the adjacent vertex also is the target vertex, the target is a
			// parent of the source vertex. An edge would introduce a cycle.
			if currentHash == target {
				return true, nil
			}

			visited[currentHash] = struct{}{}

			for adjacency := range s.inEdges[currentHash] {
				stack = append(stack, adjacency)
			}
		}
	}

	return false, nil
}
