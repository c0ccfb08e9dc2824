package handlers

import (
	"net/http"

	"streamvio/internal/database"
	"streamvio/internal/jobs"

	"github.com/gorilla/mux"
)

type transcodeRequest struct {
	Profile string `json:"profile"`
	Force   bool   `json:"force"`
}

type hlsRequest struct {
	MaxHeight int  `json:"maxHeight"`
	Force     bool `json:"force"`
}

// writeJob answers an admission: 200 when the job is already terminal
// (a cache hit), 202 while it is pending or processing.
func writeJob(w http.ResponseWriter, job *jobs.Job) {
	status := http.StatusAccepted
	if job.State.Terminal() {
		status = http.StatusOK
	}
	writeJSONStatus(w, status, job)
}

// StartTranscode admits a transcode job.
// POST /api/media/{id}/transcode {"profile": "standard", "force": false}
func (h *Handlers) StartTranscode(w http.ResponseWriter, r *http.Request) {
	var req transcodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	job, err := h.pipeline.StartTranscode(r.Context(), mux.Vars(r)["id"], userID(r),
		jobs.TranscodeOptions{Profile: req.Profile}, req.Force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJob(w, job)
}

// StartHLS admits an HLS ladder job.
// POST /api/media/{id}/hls {"maxHeight": 720, "force": false}
func (h *Handlers) StartHLS(w http.ResponseWriter, r *http.Request) {
	var req hlsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	job, err := h.pipeline.StartHLS(r.Context(), mux.Vars(r)["id"], userID(r), req.MaxHeight, req.Force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJob(w, job)
}

// GetJob returns a job with its live progress.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, job)
}

// CancelJob requests cancellation and returns the job as it stands after
// the grace period. Cancelling a terminal job is a no-op.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.CancelJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, job)
}

// ListJobs lists jobs, newest first.
// GET /api/jobs?mediaId=&kind=&state=&limit=
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := h.pipeline.ListJobs(r.Context(), database.JobFilter{
		MediaID: q.Get("mediaId"),
		Kind:    q.Get("kind"),
		State:   q.Get("state"),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	writeJSONStatus(w, http.StatusOK, list)
}
