package filesystem

// Observer records filesystem operation metrics. The metrics package provides
// the implementation; declaring the interface here keeps filesystem free of a
// metrics import.
type Observer interface {
	// ObserveOperation records duration and error status for an operation.
	// volume is the resolved mount label ("media", "cache", "database").
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// nil means metrics are skipped, which keeps tests free of setup
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
