// Package menuservice coordinates the record store and the tree engine:
// every mutation is written to the store and followed by a full rebuild.
package menuservice

import (
	"context"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/menutree/internal/apperr"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
	"github.com/starford/menutree/internal/store"
)

// Event kinds passed to a Notifier.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventMoved   = "moved"
)

// Notifier is told about committed menu changes.
type Notifier interface {
	PublishMenuEvent(kind string, id int64)
}

// Service exposes menu CRUD, the rendered tree and moves.
type Service struct {
	store  store.Store
	engine *menutree.Engine
	logger *slog.Logger
	notify Notifier
}

// New creates a menu service. notify may be nil.
func New(st store.Store, engine *menutree.Engine, logger *slog.Logger, notify Notifier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, engine: engine, logger: logger, notify: notify}
}

// CreateInput is the payload for a new menu. A nil SortOrder appends the menu
// after its last sibling; a nil Visible defaults to true.
type CreateInput struct {
	Name      string `json:"name"`
	ParentID  *int64 `json:"parent_id"`
	SortOrder *int   `json:"sort_order"`
	Visible   *bool  `json:"visible"`
	Type      string `json:"type"`
	Path      string `json:"path"`
}

// Validate checks the create payload.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.ParentID, validation.Min(int64(1))),
		validation.Field(&in.Type, validation.In(models.TypeLink, models.TypePage, models.TypeBoard, models.TypeFolder)),
		validation.Field(&in.Path, validation.RuneLength(0, 255)),
	)
}

// UpdateInput replaces every mutable field of a menu.
type UpdateInput struct {
	Name      string `json:"name"`
	ParentID  *int64 `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
	Visible   bool   `json:"visible"`
	Type      string `json:"type"`
	Path      string `json:"path"`
}

// Validate checks the update payload.
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.ParentID, validation.Min(int64(1))),
		validation.Field(&in.Type, validation.In(models.TypeLink, models.TypePage, models.TypeBoard, models.TypeFolder)),
		validation.Field(&in.Path, validation.RuneLength(0, 255)),
	)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", apperr.ErrValidation, err)
}

// List returns the flat record collection.
func (s *Service) List(ctx context.Context) ([]models.MenuRecord, error) {
	return s.store.FetchAll(ctx)
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id int64) (models.MenuRecord, error) {
	return s.store.Get(ctx, id)
}

// Create stores a new menu and rebuilds the tree.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.MenuRecord, error) {
	if err := in.Validate(); err != nil {
		return models.MenuRecord{}, invalid(err)
	}
	visible := true
	if in.Visible != nil {
		visible = *in.Visible
	}
	rec, err := s.store.Create(ctx, store.NewMenu{
		Name:      in.Name,
		ParentID:  in.ParentID,
		SortOrder: in.SortOrder,
		Visible:   visible,
		Type:      in.Type,
		Path:      in.Path,
	})
	if err != nil {
		return models.MenuRecord{}, err
	}
	s.changed(ctx, EventCreated, rec.ID)
	return rec, nil
}

// Update replaces a menu and rebuilds the tree.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (models.MenuRecord, error) {
	if err := in.Validate(); err != nil {
		return models.MenuRecord{}, invalid(err)
	}
	rec, err := s.store.Update(ctx, models.MenuRecord{
		ID:        id,
		Name:      in.Name,
		ParentID:  in.ParentID,
		SortOrder: in.SortOrder,
		Visible:   in.Visible,
		Type:      in.Type,
		Path:      in.Path,
	})
	if err != nil {
		return models.MenuRecord{}, err
	}
	s.changed(ctx, EventUpdated, rec.ID)
	return rec, nil
}

// Delete removes a childless menu and rebuilds the tree.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, EventDeleted, id)
	return nil
}

// Refresh rebuilds the tree from the store, e.g. after a seed import.
func (s *Service) Refresh(ctx context.Context) error {
	return s.engine.Refresh(ctx)
}

// changed runs after a committed mutation. A failed rebuild is logged rather
// than returned: the write already happened and the next refresh catches up.
func (s *Service) changed(ctx context.Context, kind string, id int64) {
	if err := s.engine.Refresh(ctx); err != nil {
		s.logger.Warn("rebuild after change failed",
			slog.String("kind", kind),
			slog.Int64("menu_id", id),
			slog.String("error", err.Error()))
	}
	if s.notify != nil {
		s.notify.PublishMenuEvent(kind, id)
	}
}
