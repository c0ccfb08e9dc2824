package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"streamvio/internal/logging"
	"streamvio/internal/metrics"
)

var log = logging.For("streaming")

var (
	// ErrWriteTimeout means a single write to the client took longer than WriteTimeout.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the request context ended before the body was written.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled means the writer was closed or idled out.
	ErrStreamCanceled = errors.New("stream canceled")
)

// WriterConfig bounds how long a slow client may hold a stream open.
type WriterConfig struct {
	// WriteTimeout bounds a single write to the client.
	WriteTimeout time.Duration
	// IdleTimeout bounds the gap between successful writes.
	IdleTimeout time.Duration
	// ChunkSize splits large writes and flushes between chunks. Zero disables.
	ChunkSize int
}

// DefaultWriterConfig returns the settings used for playback responses.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter so that a stalled or departed
// client ends the copy instead of pinning the handler goroutine.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     WriterConfig
	mode    string
	start   time.Time

	mu        sync.Mutex
	lastWrite time.Time
	written   int64
	closed    bool
	idled     bool
}

// NewTimeoutWriter starts a writer bound to ctx. mode labels byte metrics.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, mode string, cfg WriterConfig) *TimeoutWriter {
	wctx, cancel := context.WithCancel(ctx)
	now := time.Now()
	tw := &TimeoutWriter{
		w:         w,
		ctx:       wctx,
		cancel:    cancel,
		cfg:       cfg,
		mode:      mode,
		start:     now,
		lastWrite: now,
	}
	if f, ok := w.(http.Flusher); ok {
		tw.flusher = f
	}
	if cfg.IdleTimeout > 0 {
		go tw.watchIdle()
	}
	return tw
}

// Write implements io.Writer.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	if err := tw.check(); err != nil {
		return 0, err
	}
	if tw.cfg.ChunkSize <= 0 || len(p) <= tw.cfg.ChunkSize {
		return tw.writeOnce(p)
	}

	total := 0
	for len(p) > 0 {
		if err := tw.check(); err != nil {
			return total, err
		}
		n := min(tw.cfg.ChunkSize, len(p))
		written, err := tw.writeOnce(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
		if tw.flusher != nil {
			tw.flusher.Flush()
		}
	}
	return total, nil
}

func (tw *TimeoutWriter) check() error {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return ErrStreamCanceled
	}
	select {
	case <-tw.ctx.Done():
		return tw.ctxErr()
	default:
		return nil
	}
}

func (tw *TimeoutWriter) writeOnce(p []byte) (int, error) {
	if tw.cfg.WriteTimeout <= 0 {
		n, err := tw.w.Write(p)
		tw.account(n)
		return n, err
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tw.w.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(tw.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		tw.account(r.n)
		return r.n, r.err
	case <-timer.C:
		tw.cancel()
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, tw.ctxErr()
	}
}

func (tw *TimeoutWriter) account(n int) {
	if n <= 0 {
		return
	}
	tw.mu.Lock()
	tw.written += int64(n)
	tw.lastWrite = time.Now()
	tw.mu.Unlock()
	metrics.StreamBytesTotal.WithLabelValues(tw.mode).Add(float64(n))
}

func (tw *TimeoutWriter) watchIdle() {
	ticker := time.NewTicker(tw.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			closed := tw.closed
			if !closed && idle > tw.cfg.IdleTimeout {
				tw.idled = true
			}
			idled := tw.idled
			tw.mu.Unlock()

			if closed {
				return
			}
			if idled {
				log.Warn("%s stream idle for %v, closing", tw.mode, idle.Round(time.Second))
				tw.cancel()
				return
			}
		case <-tw.ctx.Done():
			return
		}
	}
}

func (tw *TimeoutWriter) ctxErr() error {
	tw.mu.Lock()
	idled := tw.idled
	tw.mu.Unlock()
	if idled {
		return ErrWriteTimeout
	}
	if errors.Is(tw.ctx.Err(), context.Canceled) {
		return ErrClientGone
	}
	return ErrStreamCanceled
}

// Close stops the idle watcher. Writes after Close fail.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.closed {
		tw.closed = true
		tw.cancel()
	}
	return nil
}

// Stats returns the bytes written and the time since the writer was created.
func (tw *TimeoutWriter) Stats() (int64, time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written, time.Since(tw.start)
}

// copyBody copies exactly n bytes from src to the client, or everything when n < 0.
func copyBody(ctx context.Context, w http.ResponseWriter, src io.Reader, n int64, mode string, cfg WriterConfig) (int64, error) {
	tw := NewTimeoutWriter(ctx, w, mode, cfg)
	defer tw.Close()

	metrics.StreamsActive.WithLabelValues(mode).Inc()
	defer metrics.StreamsActive.WithLabelValues(mode).Dec()

	var err error
	if n >= 0 {
		_, err = io.CopyN(tw, src, n)
	} else {
		_, err = io.Copy(tw, src)
	}

	written, elapsed := tw.Stats()
	if err != nil {
		metrics.StreamErrorsTotal.WithLabelValues(mode, errorReason(err)).Inc()
		log.Debug("%s stream ended after %d bytes in %v: %v", mode, written, elapsed, err)
		return written, err
	}
	log.Debug("%s stream completed: %d bytes in %v", mode, written, elapsed)
	return written, nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrClientGone):
		return "client_gone"
	case errors.Is(err, ErrWriteTimeout):
		return "timeout"
	case errors.Is(err, ErrStreamCanceled):
		return "canceled"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "short_file"
	}
	return "io"
}
