package pipeline

import (
	"errors"
	"net/http"
	"path/filepath"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/encoder"
	"streamvio/internal/mediatypes"
	"streamvio/internal/streaming"
)

// Stream sources for direct delivery.
const (
	SourceOriginal   = "original"
	SourceTranscoded = "transcoded"
)

// StreamDirect serves the original file or its transcoded rendition with
// byte-range support. A returned error means nothing was written and the
// caller should report it; errors after the headers are sent are logged.
func (s *Service) StreamDirect(w http.ResponseWriter, r *http.Request, mediaID, userID, source string) error {
	m, err := s.resolveFor(r.Context(), mediaID, userID, mediatypes.OpStream)
	if err != nil {
		return err
	}

	src := streaming.Source{Path: m.Path, MimeType: mediatypes.MimeTypeForPath(m.Path)}
	switch source {
	case "", SourceOriginal:
	case SourceTranscoded:
		a, err := s.catalog.Get(r.Context(), m.ID, database.FormatTranscoded, "")
		if err != nil {
			return err
		}
		src = streaming.Source{Path: a.FilePath, MimeType: a.MimeType}
	default:
		return apperr.New(apperr.CodeInvalidArgument, "unknown stream source %q", source)
	}

	plan, err := s.streams.ServeDirect(w, r, src)
	if plan.Status == 0 {
		if source == SourceTranscoded && errors.Is(err, apperr.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "transcoded rendition of media %s is missing", m.ID)
		}
		return err
	}
	if err != nil {
		log.Debug("direct stream of %s ended early: %v", m.ID, err)
	}

	// players issue many range requests per session; count the first
	if r.Method == http.MethodGet && plan.Length() > 0 && plan.Start == 0 {
		s.tracker.RecordStart(userID, m.ID, streaming.ModeDirect)
	}
	return nil
}

// StreamHLS serves a playlist or segment of the current HLS ladder. A
// missing ladder is NOT_FOUND; there is no fallback to direct delivery.
func (s *Service) StreamHLS(w http.ResponseWriter, r *http.Request, mediaID, userID, name string) error {
	m, err := s.resolveFor(r.Context(), mediaID, userID, mediatypes.OpHLS)
	if err != nil {
		return err
	}
	a, err := s.catalog.Get(r.Context(), m.ID, database.FormatHLS, "")
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return apperr.New(apperr.CodeNotFound, "media %s has no HLS ladder; start one first", m.ID)
		}
		return err
	}

	plan, err := s.streams.ServeHLS(w, r, filepath.Dir(a.FilePath), name)
	if plan.Status == 0 {
		return err
	}
	if err != nil {
		log.Debug("HLS %s of %s ended early: %v", name, m.ID, err)
	}
	if r.Method == http.MethodGet && name == encoder.MasterPlaylist && plan.Status == http.StatusOK {
		s.tracker.RecordStart(userID, m.ID, streaming.ModeHLS)
	}
	return nil
}

// ServeArtifactFile writes a produced file such as a thumbnail or
// storyboard frame.
func (s *Service) ServeArtifactFile(w http.ResponseWriter, r *http.Request, path string) error {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	plan, err := s.streams.ServeDirect(w, r, streaming.Source{Path: path, MimeType: mediatypes.MimeTypeForPath(path)})
	if plan.Status == 0 {
		w.Header().Del("Cache-Control")
		return err
	}
	if err != nil {
		log.Debug("artifact %s ended early: %v", path, err)
	}
	return nil
}
