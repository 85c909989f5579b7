package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// Memory is a mutex-guarded in-process Store. Records are kept ordered by id.
type Memory struct {
	mu      sync.Mutex
	records []models.MenuRecord
	meta    map[string]string
	nextID  int64
}

// Verify *Memory satisfies Store at compile time.
var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{meta: map[string]string{}, nextID: 1}
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) index(id int64) int {
	i, ok := slices.BinarySearchFunc(m.records, id, func(r models.MenuRecord, id int64) int {
		return cmp.Compare(r.ID, id)
	})
	if !ok {
		return -1
	}
	return i
}

func cloneRecord(r models.MenuRecord) models.MenuRecord {
	if r.ParentID != nil {
		r.ParentID = models.Int64Ptr(*r.ParentID)
	}
	return r
}

func (m *Memory) snapshot() []models.MenuRecord {
	out := make([]models.MenuRecord, len(m.records))
	for i, r := range m.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// FetchAll returns every record ordered by id.
func (m *Memory) FetchAll(ctx context.Context) ([]models.MenuRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(), nil
}

// Get returns a single record.
func (m *Memory) Get(_ context.Context, id int64) (models.MenuRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(id)
	if i < 0 {
		return models.MenuRecord{}, fmt.Errorf("%w: menu %d", apperr.ErrNotFound, id)
	}
	return cloneRecord(m.records[i]), nil
}

// Create inserts a new record and returns it with its assigned id.
func (m *Memory) Create(_ context.Context, in NewMenu) (models.MenuRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.ParentID != nil && m.index(*in.ParentID) < 0 {
		return models.MenuRecord{}, fmt.Errorf("%w: parent menu %d does not exist", apperr.ErrValidation, *in.ParentID)
	}
	order := 0
	if in.SortOrder != nil {
		order = *in.SortOrder
	} else {
		first := true
		for _, r := range m.records {
			if !sameParent(r.ParentID, in.ParentID) {
				continue
			}
			if first || r.SortOrder+1 > order {
				order = r.SortOrder + 1
				first = false
			}
		}
	}

	rec := models.MenuRecord{
		ID:        m.nextID,
		Name:      in.Name,
		SortOrder: order,
		Visible:   in.Visible,
		Type:      in.Type,
		Path:      in.Path,
		UpdatedAt: time.Now().UTC(),
	}
	if in.ParentID != nil {
		rec.ParentID = models.Int64Ptr(*in.ParentID)
	}
	m.nextID++
	m.records = append(m.records, rec)
	return cloneRecord(rec), nil
}

// Update replaces the mutable fields of an existing record.
func (m *Memory) Update(_ context.Context, rec models.MenuRecord) (models.MenuRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(rec.ID)
	if i < 0 {
		return models.MenuRecord{}, fmt.Errorf("%w: menu %d", apperr.ErrNotFound, rec.ID)
	}
	if err := checkReparent(m.records, rec); err != nil {
		return models.MenuRecord{}, err
	}
	rec = cloneRecord(rec)
	rec.UpdatedAt = time.Now().UTC()
	m.records[i] = rec
	return cloneRecord(rec), nil
}

// Delete removes a record. Records that still have children are refused.
func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.index(id)
	if i < 0 {
		return fmt.Errorf("%w: menu %d", apperr.ErrNotFound, id)
	}
	children := 0
	for _, r := range m.records {
		if r.ID != id && r.ParentID != nil && *r.ParentID == id {
			children++
		}
	}
	if children > 0 {
		return fmt.Errorf("%w: menu %d still has %d children", apperr.ErrConflict, id, children)
	}
	m.records = slices.Delete(m.records, i, i+1)
	return nil
}

// ApplyOrder applies move operations atomically: either every op is applied
// or none is.
func (m *Memory) ApplyOrder(ctx context.Context, ops []models.MoveOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.snapshot()
	now := time.Now().UTC()
	for _, op := range ops {
		assignments, err := menutree.Place(work, op)
		if err != nil {
			return err
		}
		work = assign(work, assignments)
		for _, a := range assignments {
			if i := m.index(a.ID); i >= 0 {
				work[i].UpdatedAt = now
			}
		}
	}
	m.records = work
	return nil
}

// Upsert inserts or replaces records keeping their ids.
func (m *Memory) Upsert(_ context.Context, recs []models.MenuRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, r := range recs {
		r = cloneRecord(r)
		r.UpdatedAt = now
		if i := m.index(r.ID); i >= 0 {
			m.records[i] = r
			continue
		}
		m.records = append(m.records, r)
		slices.SortFunc(m.records, func(a, b models.MenuRecord) int {
			return cmp.Compare(a.ID, b.ID)
		})
		if r.ID >= m.nextID {
			m.nextID = r.ID + 1
		}
	}
	return nil
}

// GetMeta returns a stored metadata value, or "" when the key is unset.
func (m *Memory) GetMeta(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key], nil
}

// SetMeta stores a metadata value.
func (m *Memory) SetMeta(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
