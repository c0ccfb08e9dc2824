package metrics

// Label values pre-populated by InitializeMetrics.
var (
	jobKinds      = []string{"transcode", "hls", "thumbnail", "storyboard"}
	terminalState = []string{"completed", "failed", "cancelled"}
	admissionKind = []string{"started", "queued", "deduplicated", "cached", "rejected"}
	streamModes   = []string{"direct", "hls"}
	volumes       = []string{"media", "cache", "database", "unknown"}
)

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, kind := range jobKinds {
		for _, state := range terminalState {
			JobsTotal.WithLabelValues(kind, state)
		}
		for _, result := range admissionKind {
			JobAdmissionsTotal.WithLabelValues(kind, result)
		}
		JobDuration.WithLabelValues(kind)
		EncoderInvocationDuration.WithLabelValues(kind)
	}
	EncoderInvocationDuration.WithLabelValues("probe")

	for _, state := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
		JobsByState.WithLabelValues(state)
	}

	for _, mode := range streamModes {
		StreamBytesTotal.WithLabelValues(mode)
		StreamsActive.WithLabelValues(mode)
	}
	for _, result := range []string{"full", "partial", "unsatisfiable"} {
		StreamRangeRequests.WithLabelValues(result)
	}

	for _, result := range []string{"written", "throttled", "error"} {
		ProgressWritesTotal.WithLabelValues(result)
	}
	for _, result := range []string{"success", "error"} {
		WatchEventsTotal.WithLabelValues(result)
	}

	for _, result := range []string{"registered", "unchanged", "failed"} {
		ScanFilesTotal.WithLabelValues(result)
	}

	for _, format := range []string{"transcoded", "hls", "thumbnail", "storyboard"} {
		for _, result := range []string{"hit", "miss", "stale"} {
			CatalogLookupsTotal.WithLabelValues(format, result)
		}
	}

	for _, vol := range volumes {
		for _, op := range []string{"stat", "open"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range []string{"create_job", "update_job", "get_job", "list_jobs", "put_artifact",
		"get_artifact", "upsert_progress", "get_progress", "record_watch_event"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, outcome := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(outcome)
	}
}
