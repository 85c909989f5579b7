package menutree

import (
	"context"
	"errors"
	"sync"

	"github.com/starford/menutree/internal/models"
)

// rec builds a record; parent 0 means top level.
func rec(id, parent int64, order int) models.MenuRecord {
	r := models.MenuRecord{ID: id, Name: "menu", SortOrder: order, Visible: true}
	if parent != 0 {
		r.ParentID = models.Int64Ptr(parent)
	}
	return r
}

// applyAssignments returns a copy of records with the assignments written in.
func applyAssignments(records []models.MenuRecord, as []Assignment) []models.MenuRecord {
	out := make([]models.MenuRecord, len(records))
	copy(out, records)
	for _, a := range as {
		for i := range out {
			if out[i].ID == a.ID {
				out[i].ParentID = copyID(a.ParentID)
				out[i].SortOrder = a.SortOrder
			}
		}
	}
	return out
}

var errUnavailable = errors.New("connection refused")

// fakeStore is an in-memory RecordStore that applies moves with Place, the
// same way the real stores do.
type fakeStore struct {
	mu         sync.Mutex
	records    []models.MenuRecord
	applyCalls int
	fetchCalls int
	failApply  error
	failFetch  error

	// applyGate, when set, blocks ApplyOrder until it is closed.
	applyGate chan struct{}
	// fetchGates, when set, block the n-th FetchAll (1-based) until closed.
	fetchGates map[int]chan struct{}
}

func newFakeStore(records ...models.MenuRecord) *fakeStore {
	return &fakeStore{records: records}
}

func (s *fakeStore) FetchAll(ctx context.Context) ([]models.MenuRecord, error) {
	s.mu.Lock()
	s.fetchCalls++
	gate := s.fetchGates[s.fetchCalls]
	snapshot := make([]models.MenuRecord, len(s.records))
	copy(snapshot, s.records)
	fail := s.failFetch
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	return snapshot, nil
}

func (s *fakeStore) ApplyOrder(ctx context.Context, ops []models.MoveOp) error {
	s.mu.Lock()
	s.applyCalls++
	gate := s.applyGate
	fail := s.failApply
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		as, err := Place(s.records, op)
		if err != nil {
			return err
		}
		s.records = applyAssignments(s.records, as)
	}
	return nil
}

func (s *fakeStore) calls() (apply, fetch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyCalls, s.fetchCalls
}

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	mu        sync.Mutex
	states    []State
	discarded []uint64
	moves     []MoveResult
	rebuilds  int
	failures  int
}

func (r *recorder) StateChanged(_, to State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *recorder) Rebuilt(Snapshot) {
	r.mu.Lock()
	r.rebuilds++
	r.mu.Unlock()
}

func (r *recorder) RebuildDiscarded(seq uint64) {
	r.mu.Lock()
	r.discarded = append(r.discarded, seq)
	r.mu.Unlock()
}

func (r *recorder) RebuildFailed(uint64, error) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
}

func (r *recorder) MoveFinished(res MoveResult, _ error) {
	r.mu.Lock()
	r.moves = append(r.moves, res)
	r.mu.Unlock()
}

func (r *recorder) stateTrace() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}
