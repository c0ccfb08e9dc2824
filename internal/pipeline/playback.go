package pipeline

import (
	"context"

	"streamvio/internal/database"
	"streamvio/internal/mediatypes"
	"streamvio/internal/progress"
)

// UpdateProgress records a playback position. When completed is nil it is
// derived from the media duration. final marks the end of a session.
func (s *Service) UpdateProgress(ctx context.Context, userID, mediaID string, position float64, completed *bool, final bool) (*database.WatchProgress, error) {
	m, err := s.resolveFor(ctx, mediaID, userID, mediatypes.OpStream)
	if err != nil {
		return nil, err
	}
	return s.tracker.Update(ctx, progress.Update{
		UserID:    userID,
		MediaID:   m.ID,
		Position:  position,
		Duration:  m.Duration,
		Completed: completed,
		Final:     final,
	})
}

// GetProgress returns the last known position, or zero when there is none.
func (s *Service) GetProgress(ctx context.Context, userID, mediaID string) (*database.WatchProgress, error) {
	if _, err := s.resolver.Resolve(ctx, mediaID, userID); err != nil {
		return nil, err
	}
	return s.tracker.Get(ctx, userID, mediaID)
}
