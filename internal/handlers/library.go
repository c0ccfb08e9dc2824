package handlers

import (
	"net/http"

	"streamvio/internal/apperr"
	"streamvio/internal/indexer"
)

type scanResponse struct {
	Triggered bool `json:"triggered"`
	indexer.Status
}

// GetScanStatus reports the most recent media directory scan.
func (h *Handlers) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, r, apperr.New(apperr.CodeUnsupportedOperation, "library scanning is disabled"))
		return
	}
	writeJSONStatus(w, http.StatusOK, h.indexer.Status())
}

// TriggerScan queues a scan. A scan already queued is not queued twice.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, r, apperr.New(apperr.CodeUnsupportedOperation, "library scanning is disabled"))
		return
	}
	writeJSONStatus(w, http.StatusAccepted, scanResponse{
		Triggered: h.indexer.Trigger(),
		Status:    h.indexer.Status(),
	})
}
