package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EncoderWorkersEnv overrides the encoder pool size.
const EncoderWorkersEnv = "TRANSCODE_WORKERS"

// Count returns a worker count derived from GOMAXPROCS, which follows the
// container CPU limit in Go 1.19+.
//
// The multiplier adjusts for task characteristics; values below 1 suit work
// that is itself multi-threaded. A positive integer in the environment
// variable envVar wins over the computed value. limit caps the result; 0
// means no cap.
func Count(envVar string, multiplier float64, limit int) int {
	if envVar != "" {
		if override := os.Getenv(envVar); override != "" {
			if count, err := strconv.Atoi(override); err == nil && count > 0 {
				if limit > 0 && count > limit {
					return limit
				}
				return count
			}
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForEncoder returns the number of external encoder processes to run at once.
// ffmpeg spreads one job over several cores, so this is half a worker per CPU.
func ForEncoder(limit int) int {
	return Count(EncoderWorkersEnv, 0.5, limit)
}
