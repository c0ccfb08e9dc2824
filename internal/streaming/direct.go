package streaming

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"streamvio/internal/apperr"
	"streamvio/internal/filesystem"
	"streamvio/internal/metrics"
)

const (
	ModeDirect = "direct"
	ModeHLS    = "hls"
)

// Source is a file delivered byte-for-byte.
type Source struct {
	Path     string
	MimeType string
}

// Server writes playback responses.
type Server struct {
	cfg WriterConfig
}

// NewServer returns a Server using cfg for every response body.
func NewServer(cfg WriterConfig) *Server {
	return &Server{cfg: cfg}
}

// ServeDirect answers a direct stream request for src, honoring a single
// byte range. A zero Status in the returned plan means nothing was written
// and err is an *apperr.Error for the caller to report. Otherwise headers
// have been sent and err, if any, describes how the body copy ended.
func (s *Server) ServeDirect(w http.ResponseWriter, r *http.Request, src Source) (RangePlan, error) {
	return s.serveFile(w, r, src.Path, src.MimeType, ModeDirect)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType, mode string) (RangePlan, error) {
	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if errors.Is(err, fs.ErrNotExist) {
		return RangePlan{}, apperr.New(apperr.CodeNotFound, "file is missing")
	}
	if err != nil {
		return RangePlan{}, apperr.Wrap(apperr.CodeInternal, err, "open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return RangePlan{}, apperr.Wrap(apperr.CodeInternal, err, "stat file")
	}
	if info.IsDir() {
		return RangePlan{}, apperr.New(apperr.CodeNotFound, "file is missing")
	}

	plan := PlanRange(r.Header.Get("Range"), info.Size())
	if mode == ModeDirect {
		metrics.StreamRangeRequests.WithLabelValues(plan.Outcome()).Inc()
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	if cr := plan.ContentRange(); cr != "" {
		h.Set("Content-Range", cr)
	}

	if plan.Status == http.StatusRequestedRangeNotSatisfiable {
		w.WriteHeader(plan.Status)
		return plan, nil
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(plan.Length(), 10))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(plan.Status)

	if r.Method == http.MethodHead || plan.Length() == 0 {
		return plan, nil
	}

	if plan.Start > 0 {
		if _, err := f.Seek(plan.Start, io.SeekStart); err != nil {
			return plan, err
		}
	}
	_, err = copyBody(r.Context(), w, f, plan.Length(), mode, s.cfg)
	return plan, err
}
