package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	// MinSize is the smallest body worth compressing, in bytes.
	MinSize int
}

// DefaultCompressionConfig compresses bodies of 1KiB and up.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MinSize: 1024}
}

// compressibleTypes are the text bodies this API produces. Media payloads
// are already compressed.
var compressibleTypes = map[string]bool{
	"application/json":              true,
	"application/vnd.apple.mpegurl": true,
	"application/x-mpegurl":         true,
	"text/plain":                    true,
}

var gzipPool = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(io.Discard) },
}

// Compression gzips JSON and playlist responses. Direct streams, HLS
// segments and any ranged request go out untouched: their byte offsets
// refer to the identity encoding.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mayCompress(r) {
				next.ServeHTTP(w, r)
				return
			}
			gw := &gzipWriter{ResponseWriter: w, minSize: config.MinSize}
			defer gw.Close()
			next.ServeHTTP(gw, r)
		})
	}
}

// mayCompress decides from the request alone whether the body could be
// gzipped. The response type gets the final say.
func mayCompress(r *http.Request) bool {
	if r.Method == http.MethodHead || r.Header.Get("Range") != "" || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
		return false
	}
	if isStreamingPath(r.URL.Path) {
		return strings.HasSuffix(r.URL.Path, ".m3u8")
	}
	return true
}

// acceptsGzip reports whether an Accept-Encoding value allows gzip.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if coding != "gzip" && coding != "*" {
			continue
		}
		q := strings.ReplaceAll(params, " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

// gzipWriter holds the start of the body until it knows whether
// compression pays off.
type gzipWriter struct {
	http.ResponseWriter
	minSize int
	status  int
	buf     []byte
	decided bool
	gz      *gzip.Writer
}

func (g *gzipWriter) WriteHeader(code int) {
	if g.decided || g.status != 0 {
		return
	}
	g.status = code
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(p)
		}
		return g.ResponseWriter.Write(p)
	}
	g.buf = append(g.buf, p...)
	if len(g.buf) >= g.minSize {
		if err := g.decide(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// decide sends the headers and whatever was buffered, compressed or not.
func (g *gzipWriter) decide() error {
	g.decided = true
	status := g.status
	if status == 0 {
		status = http.StatusOK
	}

	h := g.Header()
	mediaType, _, _ := strings.Cut(h.Get("Content-Type"), ";")
	if status == http.StatusOK && len(g.buf) >= g.minSize && h.Get("Content-Encoding") == "" &&
		compressibleTypes[strings.ToLower(strings.TrimSpace(mediaType))] {
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.gz = gzipPool.Get().(*gzip.Writer)
		g.gz.Reset(g.ResponseWriter)
	}
	g.ResponseWriter.WriteHeader(status)

	buf := g.buf
	g.buf = nil
	if len(buf) == 0 {
		return nil
	}
	var err error
	if g.gz != nil {
		_, err = g.gz.Write(buf)
	} else {
		_, err = g.ResponseWriter.Write(buf)
	}
	return err
}

func (g *gzipWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close flushes a short body and returns the gzip writer to the pool.
func (g *gzipWriter) Close() error {
	if !g.decided {
		if err := g.decide(); err != nil {
			return err
		}
	}
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	g.gz.Reset(io.Discard)
	gzipPool.Put(g.gz)
	g.gz = nil
	return err
}
