package pipeline

import (
	"context"
	"path/filepath"

	"streamvio/internal/apperr"
	"streamvio/internal/catalog"
	"streamvio/internal/database"
	"streamvio/internal/encoder"
	"streamvio/internal/jobs"
	"streamvio/internal/library"
	"streamvio/internal/mediatypes"
)

// GetOrCreateThumbnail returns the thumbnail artifact for the offset and box
// in opts, producing it first when it is missing or regenerate is set. An
// offset past the end of the media is clamped.
func (s *Service) GetOrCreateThumbnail(ctx context.Context, mediaID, userID string, opts jobs.ThumbnailOptions, regenerate bool) (*database.Artifact, error) {
	m, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpThumbnail)
	if err != nil {
		return nil, err
	}
	if m.Type == mediatypes.FileTypeImage {
		opts.Offset = 0
	} else if m.Duration != nil {
		opts.Offset = encoder.ClampOffset(opts.Offset, *m.Duration)
	}
	return s.getOrCreate(ctx, m, opts.Normalize(), regenerate)
}

// GetOrCreateStoryboard returns the storyboard artifact with count frames,
// producing it first when needed. Frame i is taken at duration*i/count.
func (s *Service) GetOrCreateStoryboard(ctx context.Context, mediaID, userID string, opts jobs.StoryboardOptions, regenerate bool) (*database.Artifact, error) {
	m, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpStoryboard)
	if err != nil {
		return nil, err
	}
	if opts.Count < 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "frame count must not be negative")
	}
	if opts.Count > jobs.MaxStoryboardCount {
		return nil, apperr.New(apperr.CodeInvalidArgument, "frame count %d exceeds the maximum of %d", opts.Count, jobs.MaxStoryboardCount)
	}
	if opts.Count == 0 {
		opts.Count = s.cfg.DefaultStoryboardCount
	}
	return s.getOrCreate(ctx, m, opts.Normalize(), regenerate)
}

func (s *Service) getOrCreate(ctx context.Context, m *library.Media, opts jobs.Options, regenerate bool) (*database.Artifact, error) {
	format, variant := catalog.FormatFor(opts.Kind()), catalog.Variant(opts)

	a, err := s.catalog.Lookup(ctx, m.ID, format, variant, regenerate)
	if err == nil {
		return a, nil
	}
	if apperr.CodeOf(err) != apperr.CodeNotFound {
		return nil, err
	}

	job, _, err := s.disp.Admit(ctx, m.ID, m.Path, opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.awaitJob(ctx, job); err != nil {
		return nil, err
	}
	return s.catalog.Get(ctx, m.ID, format, variant)
}

// Artifacts lists the current artifacts of a media item, newest first.
func (s *Service) Artifacts(ctx context.Context, mediaID, userID string, includeSuperseded bool) ([]*database.Artifact, error) {
	if _, err := s.resolver.Resolve(ctx, mediaID, userID); err != nil {
		return nil, err
	}
	return s.catalog.List(ctx, mediaID, includeSuperseded)
}

// StoryboardFile returns the path of a frame or the sprite of the current
// storyboard artifact artifactID. name is a bare file name.
func (s *Service) StoryboardFile(ctx context.Context, mediaID, userID string, artifactID int64, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", apperr.New(apperr.CodeInvalidArgument, "invalid storyboard file name %q", name)
	}
	if _, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpStoryboard); err != nil {
		return "", err
	}

	artifacts, err := s.catalog.List(ctx, mediaID, false)
	if err != nil {
		return "", err
	}
	for _, a := range artifacts {
		if a.ID != artifactID || a.FormatType != database.FormatStoryboard {
			continue
		}
		if filepath.Base(a.Extra.SpritePath) == name {
			return a.Extra.SpritePath, nil
		}
		for _, f := range a.Extra.Frames {
			if filepath.Base(f.Path) == name {
				return f.Path, nil
			}
		}
	}
	return "", apperr.New(apperr.CodeNotFound, "storyboard file %s not found for media %s", name, mediaID)
}
