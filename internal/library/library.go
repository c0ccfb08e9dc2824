package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/encoder"
	"streamvio/internal/filesystem"
	"streamvio/internal/logging"
	"streamvio/internal/mediatypes"
)

var log = logging.For("library")

// Media is a resolved source file.
type Media struct {
	ID       string              `json:"id"`
	Path     string              `json:"path"`
	Type     mediatypes.FileType `json:"type"`
	Duration *float64            `json:"duration,omitempty"`
}

// Store persists registered media.
type Store interface {
	UpsertMedia(ctx context.Context, m *database.MediaItem) error
	GetMedia(ctx context.Context, id string) (*database.MediaItem, error)
	ListMedia(ctx context.Context) ([]*database.MediaItem, error)
}

// Prober measures a source's duration at registration.
type Prober interface {
	Probe(ctx context.Context, path string) (*encoder.ProbeResult, error)
}

// Library is a media table confined to one root directory.
type Library struct {
	store  Store
	root   string
	prober Prober
}

// New creates a Library. prober may be nil, in which case durations are not recorded.
func New(store Store, root string, prober Prober) *Library {
	return &Library{store: store, root: filepath.Clean(root), prober: prober}
}

// Register adds or refreshes the media item id for path. path may be
// absolute or relative to the root but must resolve below it. An empty id
// is replaced with a generated one.
func (l *Library) Register(ctx context.Context, id, path string) (*database.MediaItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.root, full)
	}
	full = filepath.Clean(full)
	if !filesystem.IsWithinDir(l.root, full) {
		return nil, apperr.New(apperr.CodeForbidden, "%s is outside the media directory", path)
	}

	info, err := filesystem.StatWithRetry(full, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeSourceMissing, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, apperr.New(apperr.CodeInvalidArgument, "%s is a directory", path)
	}

	fileType := mediatypes.DetectFileType(full)
	if fileType == mediatypes.FileTypeOther {
		return nil, apperr.New(apperr.CodeUnsupportedOperation, "%s is not a recognized media file", path)
	}

	item := &database.MediaItem{
		ID:      id,
		Path:    full,
		Type:    fileType,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	if l.prober != nil && fileType != mediatypes.FileTypeImage {
		probe, err := l.prober.Probe(ctx, full)
		if err != nil {
			log.Warn("could not probe %s, registering without duration: %v", full, err)
		} else {
			item.Duration = probe.Duration
		}
	}

	if err := l.store.UpsertMedia(ctx, item); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "register media %s", id)
	}
	log.Info("registered media %s (%s) at %s", id, fileType, full)
	return item, nil
}

// Resolve maps a media id to its source. userID is accepted for interface
// parity with an access-controlled library; this implementation only
// refuses paths that escaped the media root.
func (l *Library) Resolve(ctx context.Context, mediaID, userID string) (*Media, error) {
	item, err := l.store.GetMedia(ctx, mediaID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "media %s not found", mediaID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "load media %s", mediaID)
	}
	if !filesystem.IsWithinDir(l.root, item.Path) {
		log.Warn("media %s path %s is outside %s (user %q)", mediaID, item.Path, l.root, userID)
		return nil, apperr.New(apperr.CodeForbidden, "media %s is not accessible", mediaID)
	}
	return &Media{ID: item.ID, Path: item.Path, Type: item.Type, Duration: item.Duration}, nil
}

// IsSupportedType reports whether op can be applied to media of type t.
func (l *Library) IsSupportedType(t mediatypes.FileType, op mediatypes.Operation) bool {
	return mediatypes.Supports(t, op)
}

// List returns every registered item.
func (l *Library) List(ctx context.Context) ([]*database.MediaItem, error) {
	items, err := l.store.ListMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return items, nil
}
