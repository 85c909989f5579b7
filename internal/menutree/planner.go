package menutree

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/models"
)

// Assignment is the parent and sort order a record ends up with after a move.
type Assignment struct {
	ID        int64  `json:"id"`
	ParentID  *int64 `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
}

// Plan is an accepted move: the operations to send to the record store and
// the assignments they are expected to produce.
type Plan struct {
	Ops         []models.MoveOp `json:"ops"`
	Assignments []Assignment    `json:"assignments"`
}

// PlanMove validates a (source, target, relation) triple against the current
// records and returns the operations that realise it. A no-op relation yields
// an empty plan. Moves that would create a cycle fail with apperr.ErrCycle.
func PlanMove(records []models.MenuRecord, sourceID, targetID int64, rel Relation) (Plan, error) {
	if rel == RelationNoOp {
		return Plan{}, nil
	}
	pos, ok := rel.Position()
	if !ok {
		return Plan{}, fmt.Errorf("%w: unknown relation %q", apperr.ErrInvalidMove, rel)
	}
	if sourceID == VirtualRoot {
		return Plan{}, fmt.Errorf("%w: the top-level container cannot be moved", apperr.ErrInvalidMove)
	}

	op := models.MoveOp{ID: sourceID, Position: pos}
	if targetID != VirtualRoot {
		op.TargetID = models.Int64Ptr(targetID)
	}

	assignments, err := Place(records, op)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Ops: []models.MoveOp{op}, Assignments: assignments}, nil
}

// Place computes the parent and sort order assignments for a single move op.
// It is the placement policy shared by the planner and the record stores:
//   - inside: the source becomes the last child of the target (or the last
//     root when TargetID is nil);
//   - before/after: the source becomes a sibling of the target and gets a
//     sort order strictly between the target and its neighbour on that side.
//
// When no integer slot remains between the neighbours, the whole sibling group
// is renumbered 0..n-1 in its final order.
func Place(records []models.MenuRecord, op models.MoveOp) ([]Assignment, error) {
	idx := indexRecords(records)

	src, ok := idx.get(op.ID)
	if !ok {
		return nil, fmt.Errorf("%w: menu %d", apperr.ErrNotFound, op.ID)
	}

	var target models.MenuRecord
	if op.TargetID != nil {
		target, ok = idx.get(*op.TargetID)
		if !ok {
			return nil, fmt.Errorf("%w: menu %d", apperr.ErrNotFound, *op.TargetID)
		}
		if err := idx.checkCycle(op.ID, target.ID); err != nil {
			return nil, err
		}
	} else if op.Position != models.PositionInside {
		return nil, fmt.Errorf("%w: only %q is allowed on the top-level container", apperr.ErrInvalidMove, models.PositionInside)
	}

	var parent *int64
	switch op.Position {
	case models.PositionInside:
		if op.TargetID != nil {
			parent = models.Int64Ptr(target.ID)
		}
	case models.PositionBefore, models.PositionAfter:
		parent = idx.effectiveParent(target)
	default:
		return nil, fmt.Errorf("%w: unknown position %q", apperr.ErrInvalidMove, op.Position)
	}

	sibs := idx.siblings(parent, src.ID)
	insertAt := len(sibs)
	if op.Position != models.PositionInside {
		insertAt = slices.IndexFunc(sibs, func(r models.MenuRecord) bool { return r.ID == target.ID })
		if op.Position == models.PositionAfter {
			insertAt++
		}
	}

	if order, ok := slot(sibs, insertAt); ok {
		return []Assignment{{ID: src.ID, ParentID: parent, SortOrder: order}}, nil
	}

	final := slices.Insert(slices.Clone(sibs), insertAt, src)
	out := make([]Assignment, 0, len(final))
	for i, r := range final {
		switch {
		case r.ID == src.ID:
			out = append(out, Assignment{ID: r.ID, ParentID: parent, SortOrder: i})
		case r.SortOrder != i:
			out = append(out, Assignment{ID: r.ID, ParentID: copyID(r.ParentID), SortOrder: i})
		}
	}
	return out, nil
}

// CheckCycle walks upward from targetID through the parents Build renders and
// fails with apperr.ErrCycle if sourceID is on that chain (including targetID
// itself).
func CheckCycle(records []models.MenuRecord, sourceID, targetID int64) error {
	return indexRecords(records).checkCycle(sourceID, targetID)
}

// slot returns a sort order strictly between the neighbours around insertAt.
func slot(sibs []models.MenuRecord, insertAt int) (int, bool) {
	hasLower, hasUpper := insertAt > 0, insertAt < len(sibs)
	switch {
	case !hasLower && !hasUpper:
		return 0, true
	case !hasUpper:
		return sibs[insertAt-1].SortOrder + 1, true
	case !hasLower:
		return sibs[insertAt].SortOrder - 1, true
	}
	lower, upper := sibs[insertAt-1].SortOrder, sibs[insertAt].SortOrder
	if upper-lower < 2 {
		return 0, false
	}
	return lower + (upper-lower)/2, true
}

type recordIndex struct {
	records []models.MenuRecord
	byID    map[int64]int
	// parents holds the parent each id is rendered under by Build.
	parents map[int64]*int64
}

func indexRecords(records []models.MenuRecord) recordIndex {
	byID := make(map[int64]int, len(records))
	for i, r := range records {
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = i
		}
	}
	return recordIndex{records: records, byID: byID, parents: RenderedParents(records)}
}

func (x recordIndex) get(id int64) (models.MenuRecord, bool) {
	i, ok := x.byID[id]
	if !ok {
		return models.MenuRecord{}, false
	}
	return x.records[i], true
}

// checkCycle walks the rendered ancestors of targetID. The rendered forest
// never loops, so the walk always ends at a root.
func (x recordIndex) checkCycle(sourceID, targetID int64) error {
	for cur := targetID; ; {
		if cur == sourceID {
			return fmt.Errorf("%w: menu %d is an ancestor of menu %d", apperr.ErrCycle, sourceID, targetID)
		}
		p := x.parents[cur]
		if p == nil {
			return nil
		}
		cur = *p
	}
}

// effectiveParent is the parent a record is rendered under. Records placed at
// top level as anomalies have none.
func (x recordIndex) effectiveParent(r models.MenuRecord) *int64 {
	return copyID(x.parents[r.ID])
}

// siblings returns the records rendered under parent, excluding exclude,
// in display order.
func (x recordIndex) siblings(parent *int64, exclude int64) []models.MenuRecord {
	type entry struct {
		rec models.MenuRecord
		seq int
	}
	var group []entry
	for i, r := range x.records {
		if r.ID == exclude || x.byID[r.ID] != i {
			continue
		}
		if sameParent(x.effectiveParent(r), parent) {
			group = append(group, entry{rec: r, seq: i})
		}
	}
	slices.SortStableFunc(group, func(a, b entry) int {
		if c := cmp.Compare(a.rec.SortOrder, b.rec.SortOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]models.MenuRecord, len(group))
	for i, e := range group {
		out[i] = e.rec
	}
	return out
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	return models.Int64Ptr(*id)
}
