package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"streamvio/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. ffmpeg children are charged to the same cgroup and need the rest.
const DefaultMemoryRatio = 0.4

// Sources reported in ConfigResult.Source.
const (
	SourceNone        = "none"
	SourceGoMemLimit  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
)

// ConfigResult describes the heap limit chosen at startup.
type ConfigResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64 // bytes, 0 when unknown
	GoMemLimit     int64 // bytes, 0 when unset
	Ratio          float64
}

// ConfigureFromEnv applies a heap limit derived from the environment and
// reports what it did. Call it before the first large allocation.
//
//   - GOMEMLIMIT set: the runtime already honors it; only reported.
//   - MEMORY_LIMIT: container limit, in bytes or as a Kubernetes quantity
//     ("2Gi", "512M").
//   - MEMORY_RATIO: share of MEMORY_LIMIT for the heap, default 0.4.
func ConfigureFromEnv() ConfigResult {
	result, warnings := planFromEnv(os.Getenv)
	for _, w := range warnings {
		logging.Warn("%s", w)
	}

	switch result.Source {
	case SourceGoMemLimit:
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", os.Getenv("GOMEMLIMIT"))
	case SourceMemoryLimit:
		debug.SetMemoryLimit(result.GoMemLimit)
		logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s, rest left to the encoder)",
			formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.ContainerLimit))
	default:
		logging.Debug("MEMORY_LIMIT not set, heap limit left to the runtime")
	}
	return result
}

// planFromEnv decides the heap limit without touching the runtime.
func planFromEnv(getenv func(string) string) (ConfigResult, []string) {
	if getenv("GOMEMLIMIT") != "" {
		return ConfigResult{Source: SourceGoMemLimit}, nil
	}
	raw := strings.TrimSpace(getenv("MEMORY_LIMIT"))
	if raw == "" {
		return ConfigResult{Source: SourceNone}, nil
	}

	var warnings []string
	limit, err := parseQuantity(raw)
	if err != nil || limit <= 0 {
		return ConfigResult{Source: SourceNone}, []string{fmt.Sprintf("Ignoring MEMORY_LIMIT %q: not a positive size", raw)}
	}

	ratio := DefaultMemoryRatio
	if s := getenv("MEMORY_RATIO"); s != "" {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil || r <= 0 || r > 1 {
			warnings = append(warnings, fmt.Sprintf("MEMORY_RATIO %q must be in (0, 1], using %.2f", s, DefaultMemoryRatio))
		} else {
			ratio = r
		}
	}

	return ConfigResult{
		Configured:     true,
		Source:         SourceMemoryLimit,
		ContainerLimit: limit,
		GoMemLimit:     int64(float64(limit) * ratio),
		Ratio:          ratio,
	}, warnings
}

var quantitySuffixes = []struct {
	suffix string
	factor int64
}{
	{"Ki", 1 << 10}, {"Mi", 1 << 20}, {"Gi", 1 << 30}, {"Ti", 1 << 40},
	{"k", 1e3}, {"K", 1e3}, {"M", 1e6}, {"G", 1e9}, {"T", 1e12},
}

// parseQuantity reads a byte count with an optional Kubernetes suffix.
func parseQuantity(s string) (int64, error) {
	for _, q := range quantitySuffixes {
		if num, ok := strings.CutSuffix(s, q.suffix); ok {
			n, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, err
			}
			return int64(n * float64(q.factor)), nil
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	value, units := float64(b)/unit, "KMGTPE"
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + units[i:i+1] + "iB"
}
