package streaming

import (
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"streamvio/internal/apperr"
	"streamvio/internal/filesystem"
	"streamvio/internal/mediatypes"
)

const (
	// segments never change once the ladder directory is published
	segmentCacheControl  = "public, max-age=31536000, immutable"
	playlistCacheControl = "no-cache"
)

var variantDir = regexp.MustCompile(`^v[0-9]{1,3}$`)

// CleanHLSName validates a playlist or segment name relative to a ladder
// directory. Names are "master.m3u8" style files at the top level or inside
// one "vN" rendition directory.
func CleanHLSName(name string) (string, error) {
	if name == "" || strings.Contains(name, "\\") || strings.HasPrefix(name, "/") {
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid HLS file name %q", name)
	}
	clean := path.Clean(name)
	if clean != name {
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid HLS file name %q", name)
	}

	parts := strings.Split(clean, "/")
	switch {
	case len(parts) > 2:
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid HLS file name %q", name)
	case len(parts) == 2 && !variantDir.MatchString(parts[0]):
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid HLS rendition %q", parts[0])
	}

	base := parts[len(parts)-1]
	if strings.HasPrefix(base, ".") {
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid HLS file name %q", name)
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".m3u8", ".ts":
	default:
		return "", apperr.New(apperr.CodeInvalidArgument, "%q is not an HLS playlist or segment", name)
	}
	return clean, nil
}

// HLSCacheControl returns the Cache-Control value for an HLS file name.
func HLSCacheControl(name string) string {
	if strings.EqualFold(path.Ext(name), ".m3u8") {
		return playlistCacheControl
	}
	return segmentCacheControl
}

// ServeHLS writes one playlist or segment from a published ladder directory.
// The return values follow ServeDirect.
func (s *Server) ServeHLS(w http.ResponseWriter, r *http.Request, dir, name string) (RangePlan, error) {
	clean, err := CleanHLSName(name)
	if err != nil {
		return RangePlan{}, err
	}
	full := filepath.Join(dir, filepath.FromSlash(clean))
	if !filesystem.IsWithinDir(dir, full) {
		return RangePlan{}, apperr.New(apperr.CodeInvalidArgument, "invalid HLS file name %q", name)
	}

	w.Header().Set("Cache-Control", HLSCacheControl(clean))
	plan, err := s.serveFile(w, r, full, mediatypes.MimeTypeForPath(clean), ModeHLS)
	if plan.Status == 0 {
		w.Header().Del("Cache-Control")
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return plan, apperr.New(apperr.CodeNotFound, "HLS file %s not found", clean)
		}
	}
	return plan, err
}
