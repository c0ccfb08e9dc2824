package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UserIDHeader carries the caller identity set by the fronting auth layer.
const UserIDHeader = "X-User-ID"

// LoggingConfig selects which requests reach the access log.
type LoggingConfig struct {
	// LogStreams logs direct stream and HLS requests. A player issues one
	// per segment or range, so they are off by default.
	LogStreams      bool
	LogHealthChecks bool
}

// DefaultLoggingConfig logs API and health requests but not stream traffic.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{LogHealthChecks: true}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/livez":   true,
	"/readyz":  true,
}

func (c LoggingConfig) logs(path string) bool {
	switch {
	case healthCheckPaths[path]:
		return c.LogHealthChecks
	case isStreamingPath(path):
		return c.LogStreams
	}
	return true
}

// accessRecorder captures what the access log reports about a response.
type accessRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newAccessRecorder(w http.ResponseWriter) *accessRecorder {
	return &accessRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *accessRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *accessRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func (rw *accessRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logger writes one W3C extended format line per request:
//
//	date time c-ip cs-username cs-method cs-uri-stem cs-uri-query sc-status
//	sc-bytes time-taken cs(Range) sc(Content-Encoding) cs(User-Agent)
//
// time-taken is in milliseconds and covers the whole body, so for streams
// it is the playback session length.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.logs(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := newAccessRecorder(w)
			next.ServeHTTP(rec, r)
			log.Println(accessLine(r, rec, time.Since(start)))
		})
	}
}

func accessLine(r *http.Request, rec *accessRecorder, took time.Duration) string {
	now := time.Now().UTC()
	fields := []string{
		now.Format("2006-01-02"),
		now.Format("15:04:05"),
		field(clientIP(r)),
		field(r.Header.Get(UserIDHeader)),
		field(r.Method),
		field(r.URL.Path),
		field(r.URL.RawQuery),
		strconv.Itoa(rec.statusCode),
		strconv.FormatInt(rec.bytesWritten, 10),
		strconv.FormatInt(took.Milliseconds(), 10),
		field(r.Header.Get("Range")),
		field(rec.Header().Get("Content-Encoding")),
		field(r.Header.Get("User-Agent")),
	}
	return strings.Join(fields, " ")
}

// field renders a client-controlled value as one log token: control
// characters removed, line breaks turned into spaces, "-" when empty and
// quoted when it contains blanks or quotes.
func field(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "-"
	}
	if strings.ContainsAny(s, " \t\"") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
