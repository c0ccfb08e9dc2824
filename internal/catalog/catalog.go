package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"streamvio/internal/apperr"
	"streamvio/internal/database"
	"streamvio/internal/filesystem"
	"streamvio/internal/logging"
	"streamvio/internal/metrics"
)

var log = logging.For("catalog")

// Catalog is the artifact catalog backed by the database.
type Catalog struct {
	db     *database.Database
	layout Layout
}

// New creates a catalog over db with outputs rooted at root.
func New(db *database.Database, root string) *Catalog {
	return &Catalog{db: db, layout: NewLayout(root)}
}

// Layout returns the output tree layout.
func (c *Catalog) Layout() Layout { return c.layout }

// Put records a as the current artifact for its (media, format, variant),
// superseding any previous one. A zero SizeBytes is filled in from disk.
func (c *Catalog) Put(ctx context.Context, a *database.Artifact) error {
	if a.SizeBytes == 0 {
		a.SizeBytes = sizeOf(a)
	}
	if err := c.db.PutArtifact(ctx, a); err != nil {
		return apperr.Wrap(apperr.CodeStorageFailed, err, "record %s artifact for %s", a.FormatType, a.MediaID)
	}
	log.Debug("recorded %s artifact %d for media %s at %s", a.FormatType, a.ID, a.MediaID, a.FilePath)
	return nil
}

// Get returns the current artifact. A record whose file has disappeared is
// reported as NOT_FOUND so the caller rebuilds it.
func (c *Catalog) Get(ctx context.Context, mediaID string, format database.FormatType, variant string) (*database.Artifact, error) {
	a, err := c.db.GetArtifact(ctx, mediaID, format, variant)
	if errors.Is(err, database.ErrNotFound) {
		metrics.CatalogLookupsTotal.WithLabelValues(string(format), "miss").Inc()
		return nil, apperr.New(apperr.CodeNotFound, "no %s artifact for media %s", format, mediaID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "look up %s artifact", format)
	}

	if _, err := filesystem.StatWithRetry(a.FilePath, filesystem.DefaultRetryConfig()); err != nil {
		metrics.CatalogLookupsTotal.WithLabelValues(string(format), "stale").Inc()
		log.Warn("artifact %d for media %s points at missing %s", a.ID, mediaID, a.FilePath)
		return nil, apperr.Wrap(apperr.CodeNotFound, err, "%s artifact for media %s is missing on disk", format, mediaID)
	}

	metrics.CatalogLookupsTotal.WithLabelValues(string(format), "hit").Inc()
	return a, nil
}

// Lookup is Get unless regenerate is set, in which case it always reports
// NOT_FOUND so the caller produces and Puts a replacement.
func (c *Catalog) Lookup(ctx context.Context, mediaID string, format database.FormatType, variant string, regenerate bool) (*database.Artifact, error) {
	if regenerate {
		metrics.CatalogLookupsTotal.WithLabelValues(string(format), "regenerate").Inc()
		return nil, apperr.New(apperr.CodeNotFound, "regeneration requested for %s of media %s", format, mediaID)
	}
	return c.Get(ctx, mediaID, format, variant)
}

// List returns the artifacts of a media item, newest first.
func (c *Catalog) List(ctx context.Context, mediaID string, includeSuperseded bool) ([]*database.Artifact, error) {
	artifacts, err := c.db.ListArtifacts(ctx, mediaID, includeSuperseded)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailed, err, "list artifacts")
	}
	return artifacts, nil
}

// Size is the total size of the output tree.
func (c *Catalog) Size() (int64, error) {
	return filesystem.DirSize(c.layout.Root())
}

func sizeOf(a *database.Artifact) int64 {
	info, err := os.Stat(a.FilePath)
	if err != nil {
		return 0
	}
	switch a.FormatType {
	case database.FormatHLS, database.FormatStoryboard:
		// the file path points into the artifact directory
		size, _ := filesystem.DirSize(filepath.Dir(a.FilePath))
		return size
	}
	return info.Size()
}
