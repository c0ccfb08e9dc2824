package handlers

import (
	"net/http"

	"streamvio/internal/apperr"

	"github.com/gorilla/mux"
)

type progressRequest struct {
	Position  *float64 `json:"position"`
	Completed *bool    `json:"completed,omitempty"`
	// Final marks the last report of a session, written even when throttled.
	Final bool `json:"final,omitempty"`
}

// GetProgress returns the caller's playback position.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.pipeline.GetProgress(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, p)
}

// UpdateProgress records the caller's playback position.
// PUT /api/media/{id}/progress {"position": 93.5, "completed": null, "final": false}
func (h *Handlers) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Position == nil {
		writeError(w, r, apperr.New(apperr.CodeInvalidArgument, "position is required"))
		return
	}

	p, err := h.pipeline.UpdateProgress(r.Context(), userID(r), mux.Vars(r)["id"], *req.Position, req.Completed, req.Final)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, p)
}
