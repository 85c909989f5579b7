package api

import (
	"github.com/starford/menutree/internal/menuservice"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/models"
)

// CreateMenuRequest is the request body for creating a menu.
type CreateMenuRequest = menuservice.CreateInput

// UpdateMenuRequest is the request body for replacing a menu.
type UpdateMenuRequest = menuservice.UpdateInput

// MoveRequest is the request body for POST /menus/move.
type MoveRequest = menuservice.MoveInput

// DropRequest is the request body for POST /menus/drop.
type DropRequest = menuservice.DropInput

// MenuListResponse wraps the flat record collection.
type MenuListResponse struct {
	Menus []models.MenuRecord `json:"menus" validate:"required"`
	Total int                 `json:"total" example:"42" validate:"required"`
}

// TreeResponse is the rendered forest (aliased from the domain layer).
type TreeResponse = menuservice.Tree

// AnomalyResponse wraps the anomaly list.
type AnomalyResponse struct {
	Anomalies []models.Anomaly `json:"anomalies" validate:"required"`
}

// MoveResponse is the outcome of a move or drop (aliased from the engine).
type MoveResponse = menutree.MoveResult
