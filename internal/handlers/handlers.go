package handlers

import (
	"net/http"
	"time"

	"streamvio/internal/database"
	"streamvio/internal/indexer"
	"streamvio/internal/library"
	"streamvio/internal/pipeline"

	"github.com/gorilla/mux"
)

// Handlers maps HTTP routes onto pipeline operations.
type Handlers struct {
	pipeline  *pipeline.Service
	library   *library.Library
	db        *database.Database
	indexer   *indexer.Indexer
	memory    pauseReporter
	startedAt time.Time
}

// pauseReporter is satisfied by memory.Monitor.
type pauseReporter interface {
	IsPaused() bool
}

func New(svc *pipeline.Service, lib *library.Library, db *database.Database) *Handlers {
	return &Handlers{
		pipeline:  svc,
		library:   lib,
		db:        db,
		startedAt: time.Now(),
	}
}

// SetIndexer enables the library scan routes.
func (h *Handlers) SetIndexer(idx *indexer.Indexer) {
	h.indexer = idx
}

// SetMemoryMonitor reports memory-paused job starts in the health response.
func (h *Handlers) SetMemoryMonitor(m pauseReporter) {
	h.memory = m
}

// RegisterRoutes installs every API route on r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("liveness")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet).Name("readiness")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")

	api.HandleFunc("/media", h.ListMedia).Methods(http.MethodGet).Name("listMedia")
	api.HandleFunc("/media", h.RegisterMedia).Methods(http.MethodPost).Name("registerMedia")
	api.HandleFunc("/media/{id}", h.GetMedia).Methods(http.MethodGet).Name("getMedia")

	api.HandleFunc("/library/scan", h.GetScanStatus).Methods(http.MethodGet).Name("scanStatus")
	api.HandleFunc("/library/scan", h.TriggerScan).Methods(http.MethodPost).Name("triggerScan")

	api.HandleFunc("/media/{id}/transcode", h.StartTranscode).Methods(http.MethodPost).Name("startTranscode")
	api.HandleFunc("/media/{id}/hls", h.StartHLS).Methods(http.MethodPost).Name("startHLS")
	api.HandleFunc("/media/{id}/thumbnail", h.GetThumbnail).Methods(http.MethodGet, http.MethodHead).Name("thumbnail")
	api.HandleFunc("/media/{id}/storyboard", h.GetStoryboard).Methods(http.MethodGet).Name("storyboard")
	api.HandleFunc("/media/{id}/storyboard/{artifact:[0-9]+}/{name}", h.GetStoryboardFile).
		Methods(http.MethodGet, http.MethodHead).Name("storyboardFile")
	api.HandleFunc("/media/{id}/artifacts", h.ListArtifacts).Methods(http.MethodGet).Name("artifacts")

	api.HandleFunc("/media/{id}/stream", h.StreamDirect).Methods(http.MethodGet, http.MethodHead).Name("streamDirect")
	api.HandleFunc("/media/{id}/hls/{name:.+}", h.StreamHLS).Methods(http.MethodGet, http.MethodHead).Name("streamHLS")

	api.HandleFunc("/media/{id}/progress", h.GetProgress).Methods(http.MethodGet).Name("getProgress")
	api.HandleFunc("/media/{id}/progress", h.UpdateProgress).Methods(http.MethodPut, http.MethodPost).Name("updateProgress")

	api.HandleFunc("/jobs", h.ListJobs).Methods(http.MethodGet).Name("listJobs")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods(http.MethodGet).Name("getJob")
	api.HandleFunc("/jobs/{id}", h.CancelJob).Methods(http.MethodDelete).Name("cancelJob")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods(http.MethodPost)
}
