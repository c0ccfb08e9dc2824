package catalog

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"streamvio/internal/database"
	"streamvio/internal/jobs"
	"streamvio/internal/mediatypes"
)

// Layout maps jobs onto paths below a root directory.
type Layout struct {
	root string
}

// NewLayout returns a layout rooted at root.
func NewLayout(root string) Layout {
	return Layout{root: filepath.Clean(root)}
}

// Root is the top of the output tree.
func (l Layout) Root() string { return l.root }

// FormatFor maps a job kind to the artifact format it produces.
func FormatFor(kind jobs.Kind) database.FormatType {
	switch kind {
	case jobs.KindTranscode:
		return database.FormatTranscoded
	case jobs.KindHLS:
		return database.FormatHLS
	case jobs.KindThumbnail:
		return database.FormatThumbnail
	case jobs.KindStoryboard:
		return database.FormatStoryboard
	}
	return database.FormatType(kind)
}

// Variant distinguishes artifacts of the same format for one media item.
// Transcoded and HLS outputs have a single current artifact per media, so
// their variant is empty.
func Variant(opts jobs.Options) string {
	switch opts.Kind() {
	case jobs.KindThumbnail, jobs.KindStoryboard:
		return opts.Key()
	}
	return ""
}

// Dir is the partition for one media item and format.
func (l Layout) Dir(format database.FormatType, mediaID string) string {
	return filepath.Join(l.root, string(format), safeSegment(mediaID))
}

// OutputPath is where job j writes its artifact. Every name carries the job
// id, so concurrent jobs never share a file and a superseded artifact keeps
// its bytes. sourceType picks the container for transcodes.
func (l Layout) OutputPath(j *jobs.Job, sourceType mediatypes.FileType) string {
	dir := l.Dir(FormatFor(j.Kind), j.MediaID)
	stem := Stem(j.InputPath)

	switch opts := j.Options.(type) {
	case jobs.TranscodeOptions:
		ext := ".mp4"
		if sourceType == mediatypes.FileTypeAudio {
			ext = ".m4a"
		}
		return filepath.Join(dir, stem+"-"+shortID(j.ID)+ext)
	case jobs.HLSOptions:
		return filepath.Join(dir, stem+"-"+shortID(j.ID))
	case jobs.ThumbnailOptions:
		offset := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(opts.Offset, 'f', 3, 64), "0"), ".")
		return filepath.Join(dir, fmt.Sprintf("%s-t%s-%dx%d-%s.jpg", stem, offset, opts.Width, opts.Height, shortID(j.ID)))
	case jobs.StoryboardOptions:
		return filepath.Join(dir, fmt.Sprintf("%s-n%d-w%d-%s", stem, opts.Count, opts.Width, shortID(j.ID)))
	}
	return filepath.Join(dir, stem+"-"+shortID(j.ID))
}

// Stem is the sanitized base name of a source file without its extension.
func Stem(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return safeSegment(strings.TrimSuffix(base, filepath.Ext(base)))
}

// safeSegment makes s usable as a single path element.
func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || strings.Trim(out, ".") == "" {
		return "_" + out
	}
	return out
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
