package artifact

import (
	"context"
	"fmt"
	"sync"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// Artifact is one concrete file produced by a task or supplied as input
type Artifact struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Paths returns the paths of a resolved artifact set in order
func Paths(arts []Artifact) []string {
	paths := make([]string, len(arts))
	for i, a := range arts {
		paths[i] = a.Path
	}
	return paths
}

// TotalSize sums the sizes of a resolved artifact set
func TotalSize(arts []Artifact) int64 {
	var total int64
	for _, a := range arts {
		total += a.SizeBytes
	}
	return total
}

type entry struct {
	done    chan struct{}
	outputs map[string][]Artifact
	err     error
}

// Store tracks which task outputs exist. Each producer writes once; any
// number of consumers may wait on it.
type Store struct {
	mu        sync.Mutex
	tasks     map[string]*entry
	externals map[string]Artifact
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		tasks:     make(map[string]*entry),
		externals: make(map[string]Artifact),
	}
}

// AddExternal pre-records an external input
func (s *Store) AddExternal(name string, a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externals[name] = a
}

func (s *Store) entryFor(task string) *entry {
	e, ok := s.tasks[task]
	if !ok {
		e = &entry{done: make(chan struct{})}
		s.tasks[task] = e
	}
	return e
}

// Record publishes the outputs of a succeeded task. Slices are stored in
// the order given; wildcard sets keep the backend's ordering.
func (s *Store) Record(task string, outputs map[string][]Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(task)
	select {
	case <-e.done:
		return fmt.Errorf("outputs of task '%s' already recorded", task)
	default:
	}

	copied := make(map[string][]Artifact, len(outputs))
	for name, arts := range outputs {
		copied[name] = append([]Artifact(nil), arts...)
	}
	e.outputs = copied
	close(e.done)
	return nil
}

// Fail marks a task as FailedFinal; waiting and future resolvers of its
// outputs get a DependencyUnreachable error.
func (s *Store) Fail(task string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(task)
	select {
	case <-e.done:
		return fmt.Errorf("outcome of task '%s' already recorded", task)
	default:
	}
	if cause == nil {
		cause = fmt.Errorf("task '%s' failed", task)
	}
	e.err = cause
	close(e.done)
	return nil
}

// Resolve returns the artifacts behind ref, blocking until the producer
// has either succeeded or failed, or ctx is done.
func (s *Store) Resolve(ctx context.Context, ref workflow.ArtifactRef) ([]Artifact, error) {
	s.mu.Lock()
	if ref.IsExternal() {
		a, ok := s.externals[ref.Output]
		s.mu.Unlock()
		if !ok {
			return nil, wferrors.NewUnresolvedInputError(wferrors.CodeGraphMissingInput, "", ref.Output, ref.String(),
				"external input not provisioned")
		}
		return []Artifact{a}, nil
	}
	e := s.entryFor(ref.Task)
	s.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.outputOf(ref, e)
}

// Lookup is the non-blocking form of Resolve. ok is false while the
// producer has not finished.
func (s *Store) Lookup(ref workflow.ArtifactRef) (arts []Artifact, ok bool, err error) {
	s.mu.Lock()
	if ref.IsExternal() {
		a, found := s.externals[ref.Output]
		s.mu.Unlock()
		if !found {
			return nil, false, nil
		}
		return []Artifact{a}, true, nil
	}
	e, found := s.tasks[ref.Task]
	s.mu.Unlock()
	if !found {
		return nil, false, nil
	}

	select {
	case <-e.done:
	default:
		return nil, false, nil
	}
	arts, err = s.outputOf(ref, e)
	return arts, true, err
}

func (s *Store) outputOf(ref workflow.ArtifactRef, e *entry) ([]Artifact, error) {
	if e.err != nil {
		return nil, wferrors.NewDependencyUnreachableError("", ref.Task, e.err)
	}
	arts, ok := e.outputs[ref.Output]
	if !ok {
		return nil, fmt.Errorf("task '%s' recorded no output '%s'", ref.Task, ref.Output)
	}
	return append([]Artifact(nil), arts...), nil
}

// IsRecorded reports whether ref can be resolved without blocking to a
// successful result.
func (s *Store) IsRecorded(ref workflow.ArtifactRef) bool {
	_, ok, err := s.Lookup(ref)
	return ok && err == nil
}

// Size is the total byte size of a recorded artifact set
func (s *Store) Size(ref workflow.ArtifactRef) (int64, bool) {
	arts, ok, err := s.Lookup(ref)
	if !ok || err != nil {
		return 0, false
	}
	return TotalSize(arts), true
}

// Outputs returns every output recorded for a succeeded task
func (s *Store) Outputs(task string) (map[string][]Artifact, bool) {
	s.mu.Lock()
	e, found := s.tasks[task]
	s.mu.Unlock()
	if !found {
		return nil, false
	}

	select {
	case <-e.done:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	result := make(map[string][]Artifact, len(e.outputs))
	for name, arts := range e.outputs {
		result[name] = append([]Artifact(nil), arts...)
	}
	return result, true
}
