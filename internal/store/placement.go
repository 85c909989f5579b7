package store

import (
	"fmt"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// assign returns records with the placement results written in.
func assign(records []models.MenuRecord, as []menutree.Assignment) []models.MenuRecord {
	pos := make(map[int64]int, len(records))
	for i, r := range records {
		pos[r.ID] = i
	}
	for _, a := range as {
		i, ok := pos[a.ID]
		if !ok {
			continue
		}
		r := records[i]
		r.ParentID = nil
		if a.ParentID != nil {
			r.ParentID = models.Int64Ptr(*a.ParentID)
		}
		r.SortOrder = a.SortOrder
		records[i] = r
	}
	return records
}

// checkReparent validates a parent change made through Update: the new
// parent must exist and must not be rec itself or one of its descendants.
// An unchanged parent is always accepted, even a dangling one.
func checkReparent(records []models.MenuRecord, rec models.MenuRecord) error {
	if rec.ParentID == nil {
		return nil
	}
	found := false
	for _, r := range records {
		if r.ID == rec.ID && r.ParentID != nil && *r.ParentID == *rec.ParentID {
			return nil
		}
		if r.ID == *rec.ParentID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: parent menu %d does not exist", apperr.ErrValidation, *rec.ParentID)
	}
	return menutree.CheckCycle(records, rec.ID, *rec.ParentID)
}
