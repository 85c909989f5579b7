package menuservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// Tree is the rendered view handed to clients.
type Tree struct {
	Seq       uint64           `json:"seq"`
	BuiltAt   time.Time        `json:"built_at"`
	Forest    menutree.Forest  `json:"forest"`
	Anomalies []models.Anomaly `json:"anomalies"`
}

// Tree returns the current forest and its anomalies.
func (s *Service) Tree() Tree {
	snap := s.engine.Snapshot()
	return Tree{
		Seq:       snap.Seq,
		BuiltAt:   snap.BuiltAt,
		Forest:    snap.Forest,
		Anomalies: snap.Anomalies,
	}
}

// Anomalies returns records that could not be placed as declared.
func (s *Service) Anomalies() []models.Anomaly {
	return s.engine.Anomalies()
}

// MoveInput is an already interpreted move. A nil TargetID means the
// top-level container.
type MoveInput struct {
	SourceID int64  `json:"source_id"`
	TargetID *int64 `json:"target_id"`
	Relation string `json:"relation"`
}

// Validate checks the move payload.
func (in MoveInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.SourceID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.TargetID, validation.Min(int64(1))),
		validation.Field(&in.Relation, validation.Required),
	)
}

// Move runs the validate, dispatch and rebuild pipeline for one move.
func (s *Service) Move(ctx context.Context, in MoveInput) (menutree.MoveResult, error) {
	if err := in.Validate(); err != nil {
		return menutree.MoveResult{}, invalid(err)
	}
	rel, err := menutree.ParseRelation(in.Relation)
	if err != nil {
		return menutree.MoveResult{}, err
	}
	return s.move(ctx, in.SourceID, targetOf(in.TargetID), rel)
}

// DropInput is a raw drop gesture: the pointer position and the rendered
// bounds of the target row, or VirtualRoot for the top-level container.
type DropInput struct {
	SourceID     int64   `json:"source_id"`
	TargetID     *int64  `json:"target_id"`
	VirtualRoot  bool    `json:"virtual_root"`
	PointerY     float64 `json:"pointer_y"`
	TargetTop    float64 `json:"target_top"`
	TargetHeight float64 `json:"target_height"`
}

// Validate checks the drop payload.
func (in DropInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.SourceID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.TargetID, validation.When(!in.VirtualRoot, validation.Required, validation.Min(int64(1)))),
		validation.Field(&in.TargetHeight, validation.When(!in.VirtualRoot, validation.Required, validation.Min(0.0).Exclusive())),
	)
}

// Drop interprets a drop gesture and runs the resulting move.
func (s *Service) Drop(ctx context.Context, in DropInput) (menutree.MoveResult, error) {
	if err := in.Validate(); err != nil {
		return menutree.MoveResult{}, invalid(err)
	}
	target := menutree.VirtualRoot
	if !in.VirtualRoot {
		target = *in.TargetID
	}
	rel, err := menutree.Interpret(menutree.Gesture{
		SourceID: in.SourceID,
		TargetID: target,
		Offset:   in.PointerY - in.TargetTop,
		Height:   in.TargetHeight,
	})
	if err != nil {
		return menutree.MoveResult{Status: menutree.MoveRejected, Reason: err.Error()}, err
	}
	return s.move(ctx, in.SourceID, target, rel)
}

func (s *Service) move(ctx context.Context, source, target int64, rel menutree.Relation) (menutree.MoveResult, error) {
	res, err := s.engine.RequestMove(ctx, source, target, rel)
	if res.Status == menutree.MoveApplied {
		if s.notify != nil {
			s.notify.PublishMenuEvent(EventMoved, source)
		}
		// The move is stored; a failed rebuild only delays the new forest
		// until the next refresh and must not invite a retry.
		if err != nil {
			s.logger.Warn("rebuild after move failed",
				slog.Int64("menu_id", source),
				slog.Uint64("seq", res.Seq),
				slog.String("error", err.Error()))
		}
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("move menu %d: %w", source, err)
	}
	return res, nil
}

func targetOf(id *int64) int64 {
	if id == nil {
		return menutree.VirtualRoot
	}
	return *id
}
