package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// StreamDirect serves the original file, or ?source=transcoded for the
// current rendition, with byte-range support.
func (h *Handlers) StreamDirect(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.StreamDirect(w, r, mux.Vars(r)["id"], userID(r), r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, r, err)
	}
}

// StreamHLS serves a playlist or segment of the current HLS ladder.
func (h *Handlers) StreamHLS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.pipeline.StreamHLS(w, r, vars["id"], userID(r), vars["name"]); err != nil {
		writeError(w, r, err)
	}
}
