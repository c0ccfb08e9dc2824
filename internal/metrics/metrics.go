package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"outcome"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Job metrics
var (
	JobAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_job_admissions_total",
			Help: "Job admission outcomes (started, queued, deduplicated, cached, rejected)",
		},
		[]string{"kind", "result"},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_jobs_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"kind", "state"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_job_duration_seconds",
			Help:    "Wall-clock time from job start to terminal state",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)

	JobsProcessing = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_jobs_processing",
			Help: "Jobs currently running an external encoder",
		},
	)

	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_job_queue_depth",
			Help: "Jobs waiting for a free worker",
		},
	)

	JobsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamvio_jobs_by_state",
			Help: "Persisted job records per state",
		},
		[]string{"state"},
	)
)

// Encoder metrics
var (
	EncoderInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_encoder_invocation_duration_seconds",
			Help:    "Duration of external encoder and probe invocations",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	EncoderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_encoder_failures_total",
			Help: "External encoder failures by operation and error code",
		},
		[]string{"operation", "code"},
	)
)

// Streaming metrics
var (
	StreamBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_stream_bytes_total",
			Help: "Bytes written to playback clients",
		},
		[]string{"mode"},
	)

	StreamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamvio_streams_active",
			Help: "Streams currently being written",
		},
		[]string{"mode"},
	)

	StreamRangeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_stream_range_requests_total",
			Help: "Direct stream requests by range outcome (full, partial, unsatisfiable)",
		},
		[]string{"result"},
	)

	StreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_stream_errors_total",
			Help: "Streams that ended with a write error",
		},
		[]string{"mode", "reason"},
	)
)

// Progress metrics
var (
	ProgressWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_progress_writes_total",
			Help: "Watch progress updates by outcome (written, throttled, error)",
		},
		[]string{"result"},
	)

	WatchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_watch_events_total",
			Help: "Stream-start events recorded, by outcome",
		},
		[]string{"result"},
	)
)

// Catalog metrics
var (
	CatalogLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_catalog_lookups_total",
			Help: "Artifact catalog lookups by format and result (hit, miss, stale)",
		},
		[]string{"format", "result"},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_cache_size_bytes",
			Help: "Total size of the artifact output tree",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration per volume",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_filesystem_operation_errors_total",
			Help: "Filesystem operation errors per volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_filesystem_retry_attempts_total",
			Help: "Retries after stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamvio_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a retried filesystem operation",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Library scan metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamvio_scan_runs_total",
			Help: "Total number of media directory scans",
		},
	)

	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_scan_is_running",
			Help: "Whether a media directory scan is in progress (1 = running)",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_scan_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed scan",
		},
	)

	ScanLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_scan_last_run_duration_seconds",
			Help: "Duration of the last completed scan",
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamvio_scan_files_total",
			Help: "Media files seen by scans",
		},
		[]string{"result"}, // registered, unchanged, failed
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_memory_usage_ratio",
			Help: "Heap in use as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamvio_memory_paused",
			Help: "Whether job starts are paused for memory pressure (1 = paused)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamvio_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo publishes build information as a constant gauge.
func SetAppInfo(version, commit string) {
	AppInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
