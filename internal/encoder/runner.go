package encoder

import (
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"streamvio/internal/apperr"
	"streamvio/internal/metrics"
)

// invocation describes one child process.
type invocation struct {
	op      string
	bin     string
	args    []string
	dir     string
	stdout  io.Writer
	timeout time.Duration
}

// run executes inv and classifies its outcome. On timeout or cancellation
// the child gets SIGINT first and is killed after the grace period.
func (i *Invoker) run(ctx context.Context, inv invocation) error {
	start := time.Now()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if inv.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.bin, inv.args...)
	cmd.Dir = inv.dir

	var signalled atomic.Bool
	cmd.Cancel = func() error {
		signalled.Store(true)
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = i.cfg.CancelGrace

	stderr := newTailBuffer(i.cfg.DiagnosticLimit)
	cmd.Stdout = inv.stdout
	cmd.Stderr = stderr

	log.Debug("%s: %s %s", inv.op, inv.bin, strings.Join(inv.args, " "))

	err := cmd.Run()
	metrics.EncoderInvocationDuration.WithLabelValues(inv.op).Observe(time.Since(start).Seconds())

	// A signalled child may still exit 0 after flushing a truncated output,
	// so the signal decides the outcome, not the exit status.
	interrupted := signalled.Load() || (err != nil && runCtx.Err() != nil)
	if err == nil && !interrupted {
		return nil
	}

	var failure *apperr.Error
	switch {
	case interrupted && ctx.Err() == nil:
		failure = apperr.New(apperr.CodeTimeout, "%s exceeded %s", inv.op, inv.timeout)
	case interrupted:
		failure = apperr.Wrap(apperr.CodeCancelled, ctx.Err(), "%s cancelled", inv.op)
	default:
		diag := apperr.Truncate(strings.TrimSpace(stderr.String()), i.cfg.DiagnosticLimit)
		if diag == "" {
			diag = err.Error()
		}
		failure = &apperr.Error{Code: apperr.CodeEncodingFailed, Message: inv.op + " failed: " + diag, Err: err}
	}

	metrics.EncoderFailuresTotal.WithLabelValues(inv.op, string(failure.Code)).Inc()
	log.Warn("%s failed after %s: %s", inv.op, time.Since(start).Round(time.Millisecond), failure.Code)
	return failure
}

// tailBuffer keeps only the last part of what is written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = apperr.DefaultDiagnosticLimit
	}
	// keep some slack so Truncate can mark the cut
	return &tailBuffer{limit: limit * 2}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// progressWriter parses ffmpeg "-progress" key=value lines into a percentage
// of duration. Reports are rate-limited to whole-percent steps.
type progressWriter struct {
	duration float64
	report   func(float64)
	pending  []byte
	last     float64
}

func newProgressWriter(duration *float64, report func(float64)) *progressWriter {
	p := &progressWriter{report: report, last: -1}
	if duration != nil {
		p.duration = *duration
	}
	return p
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.pending = append(p.pending, b...)
	for {
		idx := bytes.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		p.line(string(bytes.TrimSpace(p.pending[:idx])))
		p.pending = p.pending[idx+1:]
	}
	return len(b), nil
}

func (p *progressWriter) line(l string) {
	key, value, ok := strings.Cut(l, "=")
	if !ok {
		return
	}
	switch key {
	// out_time_ms is misnamed by ffmpeg and also carries microseconds
	case "out_time_us", "out_time_ms":
		if p.duration <= 0 {
			return
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return
		}
		p.emit(math.Min(float64(us)/1e6/p.duration*100, 99.9))
	case "progress":
		if value == "end" {
			p.emit(100)
		}
	}
}

func (p *progressWriter) emit(pct float64) {
	pct = math.Round(pct*10) / 10
	if p.report == nil || (pct < 100 && pct-p.last < 1) || pct == p.last {
		return
	}
	p.last = pct
	p.report(pct)
}
