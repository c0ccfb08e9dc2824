package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamvio/internal/metrics"

	"github.com/gorilla/mux"
)

// metricsResponseWriter captures the status code and the time of the first
// byte. Streaming responses last as long as the client plays, so their
// latency is measured to the first byte instead of to completion.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	start       time.Time
	firstByte   time.Time
	streaming   bool
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter, start time.Time, streaming bool) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		start:          start,
		streaming:      streaming,
	}
}

func (rw *metricsResponseWriter) markFirstByte() {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.firstByte = time.Now()
	}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
	}
	rw.markFirstByte()
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	rw.markFirstByte()
	return rw.ResponseWriter.Write(b)
}

func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// GetDuration returns time to first byte for streaming responses and the
// elapsed time otherwise.
func (rw *metricsResponseWriter) GetDuration() time.Duration {
	if rw.streaming && !rw.firstByte.IsZero() {
		return rw.firstByte.Sub(rw.start)
	}
	return time.Since(rw.start)
}

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are paths that should not be recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// isStreamingPath reports whether path is a direct stream or HLS request.
func isStreamingPath(path string) bool {
	rest, ok := strings.CutPrefix(path, "/api/media/")
	if !ok {
		return false
	}
	id, tail, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return false
	}
	return tail == "stream" || strings.HasPrefix(tail, "hls/")
}

// Metrics returns a middleware that records Prometheus metrics. Installed
// with Router.Use it labels requests by route template.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newMetricsResponseWriter(w, time.Now(), isStreamingPath(r.URL.Path))
			next.ServeHTTP(wrapped, r)

			path := routeLabel(r)
			status := strconv.Itoa(wrapped.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(wrapped.GetDuration().Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath bounds label cardinality for requests that did not match a
// route: media ids and everything after them collapse into placeholders.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i > 3 {
			parts[i] = "{path}"
			return strings.Join(parts[:i+1], "/")
		}
		if i == 3 && (parts[2] == "media" || parts[2] == "jobs") {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
