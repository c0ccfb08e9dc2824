package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestAccessRecorderCapturesStatusAndBytes(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newAccessRecorder(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusPartialContent)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusPartialContent {
		t.Errorf("Expected the first status to stick, got %d", rw.statusCode)
	}

	n, err := rw.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if rw.bytesWritten != 10 {
		t.Errorf("Expected 10 bytes counted, got %d", rw.bytesWritten)
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestLoggerMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		config        LoggingConfig
		expectLogging bool
	}{
		{"logs API requests", "/api/jobs/abc", DefaultLoggingConfig(), true},
		{"skips direct streams by default", "/api/media/42/stream", DefaultLoggingConfig(), false},
		{"skips HLS segments by default", "/api/media/42/hls/v0/segment_00001.ts", DefaultLoggingConfig(), false},
		{"logs streams when enabled", "/api/media/42/stream", LoggingConfig{LogStreams: true}, true},
		{"logs health checks when enabled", "/health", LoggingConfig{LogHealthChecks: true}, true},
		{"skips health checks when disabled", "/health", LoggingConfig{LogHealthChecks: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			handler := Logger(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			req.Header.Set(UserIDHeader, "alice")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			logged := buf.Len() > 0
			if logged != tt.expectLogging {
				t.Fatalf("Expected logging=%v, got %q", tt.expectLogging, buf.String())
			}
			if logged && !strings.Contains(buf.String(), " alice GET "+tt.path+" ") {
				t.Errorf("Expected user and request line in %q", buf.String())
			}
		})
	}
}

func TestLoggerSanitizesFields(t *testing.T) {
	buf := captureLog(t)
	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", http.NoBody)
	req.Header.Set(UserIDHeader, "eve\nforged line")
	req.Header.Set("User-Agent", "agent\x1b[31m")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := strings.TrimSuffix(buf.String(), "\n")
	if strings.Contains(out, "\n") || strings.Contains(out, "\x1b") {
		t.Errorf("Expected control characters stripped, got %q", out)
	}
	if !strings.Contains(out, `"eve forged line"`) {
		t.Errorf("Expected the quoted user field, got %q", out)
	}
}

func TestLoggerRecordsRangeAndEncoding(t *testing.T) {
	buf := captureLog(t)
	handler := Logger(LoggingConfig{LogStreams: true})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "identity")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/media/42/stream", http.NoBody)
	req.Header.Set("Range", "bytes=0-3")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), " GET /api/media/42/stream - 206 4 ") {
		t.Errorf("Expected status and byte count, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), " bytes=0-3 identity ") {
		t.Errorf("Expected range and encoding fields, got %q", buf.String())
	}
}

func TestField(t *testing.T) {
	tests := map[string]string{
		"":            "-",
		"alice":       "alice",
		"two words":   `"two words"`,
		`say "hi"`:    `"say ""hi"""`,
		"a\x00b\x1bc": "abc",
		"line\nbreak": `"line break"`,
	}
	for in, expected := range tests {
		if got := field(in); got != expected {
			t.Errorf("field(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Errorf("RemoteAddr: got %s", ip)
	}
	req.RemoteAddr = "[2001:db8::1]:443"
	if ip := clientIP(req); ip != "2001:db8::1" {
		t.Errorf("IPv6 RemoteAddr: got %s", ip)
	}
	req.Header.Set("X-Real-IP", "10.0.0.2")
	if ip := clientIP(req); ip != "10.0.0.2" {
		t.Errorf("X-Real-IP: got %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Errorf("X-Forwarded-For: got %s", ip)
	}
}

func TestCompressionMiddleware(t *testing.T) {
	playlist := "#EXTM3U\n" + strings.Repeat("#EXTINF:6.000,\nsegment_00000.ts\n", 80)

	tests := []struct {
		name              string
		path              string
		body              string
		contentType       string
		acceptEncoding    string
		rangeHeader       string
		expectCompression bool
	}{
		{"compresses large JSON", "/api/jobs", strings.Repeat(`{"key":"value"}`, 200), "application/json", "gzip", "", true},
		{"skips small responses", "/api/jobs", "{}", "application/json", "gzip", "", false},
		{"skips video segments", "/api/media/1/hls/v0/segment_00000.ts", strings.Repeat("data", 500), "video/mp2t", "gzip", "", false},
		{"compresses playlists", "/api/media/1/hls/v0/index.m3u8", playlist, "application/vnd.apple.mpegurl", "gzip", "", true},
		{"skips direct streams", "/api/media/1/stream", strings.Repeat("text ", 500), "text/plain", "gzip", "", false},
		{"skips range requests", "/api/jobs", strings.Repeat(`{"key":"value"}`, 200), "application/json", "gzip", "bytes=0-", false},
		{"respects clients without gzip", "/api/jobs", strings.Repeat(`{"key":"value"}`, 200), "application/json", "", "", false},
		{"respects gzip refused by q=0", "/api/jobs", strings.Repeat(`{"key":"value"}`, 200), "application/json", "gzip;q=0, identity", "", false},
		{"skips master playlist without gzip support", "/api/media/1/hls/master.m3u8", playlist, "application/vnd.apple.mpegurl", "br", "", false},
		{"skips images", "/api/media/1/thumbnail", strings.Repeat("jpeg", 500), "image/jpeg", "gzip", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			compressed := w.Header().Get("Content-Encoding") == "gzip"
			if compressed != tt.expectCompression {
				t.Fatalf("Expected compression=%v, got %v", tt.expectCompression, compressed)
			}

			body := w.Body.Bytes()
			if compressed {
				gr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("gzip.NewReader: %v", err)
				}
				defer gr.Close()
				if body, err = io.ReadAll(gr); err != nil {
					t.Fatalf("decompress: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Error("Body does not round-trip")
			}
		})
	}
}

func TestGzipWriterBuffering(t *testing.T) {
	rec := httptest.NewRecorder()
	gw := &gzipWriter{ResponseWriter: rec, minSize: DefaultCompressionConfig().MinSize}

	small := []byte("small")
	if n, err := gw.Write(small); err != nil || n != len(small) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if !bytes.Equal(gw.buf, small) || gw.decided {
		t.Error("Expected data to be buffered below MinSize")
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Body.String() != "small" || rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("Expected the short body sent as is, got %q", rec.Body.String())
	}
}

func TestGzipWriterKeepsPartialContent(t *testing.T) {
	handler := Compression(CompressionConfig{MinSize: 4})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"state":"pending"}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/media/1/transcode", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 preserved, got %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "" {
		t.Error("Expected only 200 responses to be compressed")
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := map[string]bool{
		"":                false,
		"gzip":            true,
		"deflate, gzip":   true,
		"gzip;q=0.5":      true,
		"gzip; q=0":       false,
		"*":               true,
		"br, identity":    false,
		"x-gzip, deflate": false,
	}
	for in, expected := range tests {
		if got := acceptsGzip(in); got != expected {
			t.Errorf("acceptsGzip(%q) = %v, expected %v", in, got, expected)
		}
	}
}

func TestCompressionFlushPassesThrough(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write([]byte("chunk"))
		w.(http.Flusher).Flush()
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/media/1/hls/v0/segment_00000.ts", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !w.Flushed || w.Body.String() != "chunk" {
		t.Errorf("Expected a flushed identity body, got flushed=%v body=%q", w.Flushed, w.Body.String())
	}
}

func TestMetricsResponseWriterGetDuration(t *testing.T) {
	t.Run("non-streaming returns total duration", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), false)
		time.Sleep(5 * time.Millisecond)
		mrw.WriteHeader(http.StatusOK)
		time.Sleep(5 * time.Millisecond)

		if d := mrw.GetDuration(); d < 10*time.Millisecond {
			t.Errorf("Expected duration >= 10ms, got %v", d)
		}
	})

	t.Run("streaming returns time to first byte", func(t *testing.T) {
		mrw := newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), true)
		time.Sleep(5 * time.Millisecond)
		mrw.Write([]byte("data"))
		time.Sleep(20 * time.Millisecond)

		if d := mrw.GetDuration(); d < 3*time.Millisecond || d >= 20*time.Millisecond {
			t.Errorf("Expected TTFB around 5ms, got %v", d)
		}
	})
}

func TestMetricsResponseWriterStatus(t *testing.T) {
	mrw := newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), false)
	mrw.Write([]byte("x"))
	if mrw.statusCode != http.StatusOK {
		t.Errorf("Expected implicit 200, got %d", mrw.statusCode)
	}

	mrw = newMetricsResponseWriter(httptest.NewRecorder(), time.Now(), false)
	mrw.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	if mrw.statusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("Expected 416, got %d", mrw.statusCode)
	}
}

func TestIsStreamingPath(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/api/media/42/stream", true},
		{"/api/media/42/hls/master.m3u8", true},
		{"/api/media/42/hls/v1/segment_00003.ts", true},
		{"/api/media/42/thumbnail", false},
		{"/api/media/42", false},
		{"/api/media//stream", false},
		{"/api/jobs/stream", false},
		{"/api/media/42/streaming", false},
		{"/", false},
	}

	for _, tt := range tests {
		if got := isStreamingPath(tt.path); got != tt.expected {
			t.Errorf("isStreamingPath(%q) = %v, want %v", tt.path, got, tt.expected)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/api/media", "/api/media"},
		{"/api/media/42", "/api/media/{id}"},
		{"/api/jobs/0b6f", "/api/jobs/{id}"},
		{"/api/media/42/hls/v0/segment_1.ts", "/api/media/{id}/{path}"},
		{"/api/version", "/api/version"},
		{"/unknown/a/b/c/d", "/unknown/a/b/{path}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetricsMiddlewareRouteTemplate(t *testing.T) {
	var label string
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			label = routeLabel(req)
		})
	})
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/media/{id}/hls/{name:.+}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/media/42/hls/v0/index.m3u8", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if label != "/api/media/{id}/hls/{name:.+}" {
		t.Errorf("Expected the route template label, got %q", label)
	}
}

func TestMetricsMiddlewareSkipPaths(t *testing.T) {
	called := false
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		if _, ok := w.(*metricsResponseWriter); ok {
			t.Error("skipped paths must not be wrapped")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if !called {
		t.Error("Expected the handler to run")
	}
}

func BenchmarkNormalizePath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		normalizePath("/api/media/42/hls/v0/segment_00001.ts")
	}
}
