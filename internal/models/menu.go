// Package models defines the domain types for the menu tree service.
package models

import "time"

// Menu types accepted by the CMS.
const (
	TypeLink   = "link"
	TypePage   = "page"
	TypeBoard  = "board"
	TypeFolder = "folder"
)

// MenuRecord is a single navigation entry as persisted by the record store.
// Children are never persisted; the tree builder derives them.
type MenuRecord struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	ParentID  *int64    `json:"parent_id" yaml:"parent_id,omitempty"`
	SortOrder int       `json:"sort_order" yaml:"sort_order"`
	Visible   bool      `json:"visible" yaml:"visible"`
	Type      string    `json:"type,omitempty" yaml:"type,omitempty"`
	Path      string    `json:"path,omitempty" yaml:"path,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// IsRoot reports whether the record declares no parent.
func (r MenuRecord) IsRoot() bool {
	return r.ParentID == nil
}

// Position is the placement of a moved record relative to its target.
type Position string

// Move positions.
const (
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
	PositionInside Position = "inside"
)

// Valid reports whether p is one of the known positions.
func (p Position) Valid() bool {
	switch p {
	case PositionBefore, PositionAfter, PositionInside:
		return true
	}
	return false
}

// MoveOp is one ordering mutation sent to the record store.
// TargetID nil with PositionInside means "move to top level".
type MoveOp struct {
	ID       int64    `json:"id"`
	TargetID *int64   `json:"target_id"`
	Position Position `json:"position"`
}

// AnomalyReason names why a record could not be placed as declared.
type AnomalyReason string

// Anomaly reasons.
const (
	ReasonSelfCycle      AnomalyReason = "self-cycle"
	ReasonDanglingParent AnomalyReason = "dangling-parent"
	// ReasonCycle marks the record chosen to break a multi-hop parent cycle.
	ReasonCycle AnomalyReason = "cycle"
)

// Anomaly is a record that was defensively placed at top level.
type Anomaly struct {
	RecordID int64         `json:"record_id"`
	Reason   AnomalyReason `json:"reason"`
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
