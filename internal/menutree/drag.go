package menutree

import (
	"fmt"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/models"
)

// VirtualRoot is the id of the synthetic top-level drop container.
// Record ids are always positive, so it never collides with a real record.
const VirtualRoot int64 = 0

// Relation is the interpreted meaning of a drop.
type Relation string

// Drop relations.
const (
	RelationBefore Relation = "before"
	RelationAfter  Relation = "after"
	RelationInside Relation = "inside"
	RelationNoOp   Relation = "no-op"
)

// ParseRelation converts a client-supplied relation name.
func ParseRelation(s string) (Relation, error) {
	switch r := Relation(s); r {
	case RelationBefore, RelationAfter, RelationInside, RelationNoOp:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown relation %q", apperr.ErrInvalidMove, s)
}

// Position maps the relation onto a store move position. No-op has none.
func (r Relation) Position() (models.Position, bool) {
	switch r {
	case RelationBefore:
		return models.PositionBefore, true
	case RelationAfter:
		return models.PositionAfter, true
	case RelationInside:
		return models.PositionInside, true
	}
	return "", false
}

// Gesture describes a finished drag: the dragged record, the record it was
// dropped on and where the pointer was inside the target's rendered row.
type Gesture struct {
	SourceID int64
	// TargetID is VirtualRoot when dropped on the top-level container.
	TargetID int64
	// Offset is the pointer's vertical distance from the target's top edge.
	Offset float64
	// Height is the target's rendered height.
	Height float64
}

// Interpret classifies a gesture. Drops on the virtual root always mean
// "inside", independent of pointer position; otherwise the upper half of the
// target means "before" and the rest "after".
func Interpret(g Gesture) (Relation, error) {
	if g.SourceID == VirtualRoot {
		return "", fmt.Errorf("%w: the top-level container cannot be dragged", apperr.ErrInvalidMove)
	}
	if g.TargetID == VirtualRoot {
		return RelationInside, nil
	}
	if g.SourceID == g.TargetID {
		return RelationNoOp, nil
	}
	if g.Offset < g.Height/2 {
		return RelationBefore, nil
	}
	return RelationAfter, nil
}
