package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/menutree/internal/checksum"
	"github.com/starford/menutree/internal/menuservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *menuservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *menuservice.Service) *Handler {
	return &Handler{svc: svc}
}

// menuID parses the {id} URL parameter. It writes a 400 and returns false
// when the id is not a positive integer.
func menuID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// ListMenus handles GET /api/menus.
//
//	@Summary		List the flat menu collection
//	@Tags			menus
//	@Produce		json
//	@Success		200	{object}	MenuListResponse
//	@Security		BearerAuth
//	@Router			/menus [get]
func (h *Handler) ListMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list menus", err)
		return
	}
	writeJSON(w, http.StatusOK, MenuListResponse{Menus: menus, Total: len(menus)})
}

// GetMenu handles GET /api/menus/{id}.
//
//	@Summary		Get a single menu
//	@Tags			menus
//	@Produce		json
//	@Param			id	path		int	true	"Menu id"
//	@Success		200	{object}	models.MenuRecord
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus/{id} [get]
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := menuID(w, r)
	if !ok {
		return
	}
	menu, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get menu", err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

// CreateMenu handles POST /api/menus.
//
//	@Summary		Create a menu
//	@Tags			menus
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateMenuRequest	true	"Menu to create"
//	@Success		201		{object}	models.MenuRecord
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus [post]
func (h *Handler) CreateMenu(w http.ResponseWriter, r *http.Request) {
	var req CreateMenuRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	menu, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create menu", err)
		return
	}
	writeJSON(w, http.StatusCreated, menu)
}

// UpdateMenu handles PUT /api/menus/{id}.
//
//	@Summary		Replace a menu
//	@Tags			menus
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Menu id"
//	@Param			body	body		UpdateMenuRequest	true	"Replacement fields"
//	@Success		200		{object}	models.MenuRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus/{id} [put]
func (h *Handler) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := menuID(w, r)
	if !ok {
		return
	}
	var req UpdateMenuRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	menu, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, "update menu", err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

// DeleteMenu handles DELETE /api/menus/{id}.
//
//	@Summary		Delete a menu without children
//	@Tags			menus
//	@Param			id	path	int	true	"Menu id"
//	@Success		204	"Menu deleted"
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus/{id} [delete]
func (h *Handler) DeleteMenu(w http.ResponseWriter, r *http.Request) {
	id, ok := menuID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete menu", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tree handles GET /api/menus/tree.
//
//	@Summary		Get the rendered menu forest
//	@Tags			tree
//	@Produce		json
//	@Param			If-None-Match	header		string	false	"ETag of a previously fetched tree"
//	@Success		200				{object}	TreeResponse
//	@Success		304				"Tree unchanged"
//	@Security		BearerAuth
//	@Router			/menus/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	tree := h.svc.Tree()
	body, err := json.Marshal(tree)
	if err != nil {
		slog.Error("encode tree failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	etag := checksum.ETag(body)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// Anomalies handles GET /api/menus/anomalies.
//
//	@Summary		List records placed at top level because their parent is invalid
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	AnomalyResponse
//	@Security		BearerAuth
//	@Router			/menus/anomalies [get]
func (h *Handler) Anomalies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AnomalyResponse{Anomalies: h.svc.Anomalies()})
}

// Move handles POST /api/menus/move.
//
//	@Summary		Move a menu relative to a target
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveRequest	true	"source_id, target_id (null = top level), relation"
//	@Success		200		{object}	MoveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Move(r.Context(), req)
	if err != nil {
		writeError(w, "move menu", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Drop handles POST /api/menus/drop.
//
//	@Summary		Interpret a drop gesture and move the menu
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DropRequest	true	"Pointer position and target row bounds"
//	@Success		200		{object}	MoveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/menus/drop [post]
func (h *Handler) Drop(w http.ResponseWriter, r *http.Request) {
	var req DropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Drop(r.Context(), req)
	if err != nil {
		writeError(w, "drop menu", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
