package handlers

import (
	"net/http"

	"streamvio/internal/apperr"
	"streamvio/internal/database"

	"github.com/gorilla/mux"
)

type registerRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// ListMedia lists registered media.
func (h *Handlers) ListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := h.library.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*database.MediaItem{}
	}
	writeJSONStatus(w, http.StatusOK, items)
}

// GetMedia returns one media item as resolved for the caller.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	m, err := h.library.Resolve(r.Context(), mux.Vars(r)["id"], userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, m)
}

// RegisterMedia adds a file under the media root.
// POST /api/media {"id": "optional", "path": "movies/film.mkv"}
func (h *Handlers) RegisterMedia(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, apperr.New(apperr.CodeInvalidArgument, "path is required"))
		return
	}

	item, err := h.library.Register(r.Context(), req.ID, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, item)
}
