package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidora-backend/internal/models"
)

const (
	// Offline qualification thresholds for view reconciliation: a watch
	// counts when it completed, ran at least MinQualifiedSeconds, or
	// covered at least MinQualifiedFraction of the video.
	MinQualifiedSeconds  = 20
	MinQualifiedFraction = 0.3
)

// ViewService records watch sessions and enforces the at-most-once view
// increment per (user, video) pair.
type ViewService struct {
	videos VideoStore
	watch  WatchStore
}

func NewViewService(videos VideoStore, watch WatchStore) *ViewService {
	return &ViewService{videos: videos, watch: watch}
}

// RecordView appends one watch-history row and increments the view counter
// only on the user's first completed watch. Partial-watch telemetry is
// recorded without touching the counter.
func (s *ViewService) RecordView(ctx context.Context, videoID, userID uuid.UUID, watchDuration int, completed bool) (*models.WatchHistory, error) {
	if watchDuration < 1 {
		return nil, &ValidationError{Fields: map[string]string{"watch_duration": "Watch duration must be at least 1 second"}}
	}

	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Video not found"}
		}
		return nil, fmt.Errorf("failed to load video: %w", err)
	}
	if video.Status != models.StatusReady {
		return nil, &NotFoundError{Message: "Video not found"}
	}

	history := &models.WatchHistory{
		VideoID:       videoID,
		UserID:        userID,
		WatchDuration: watchDuration,
		Completed:     completed,
	}
	if _, err := s.watch.RecordView(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to record view: %w", err)
	}
	return history, nil
}

// ReconcileViews recomputes view counters from watch history using the
// qualification thresholds, correcting any drift the online counter
// accumulated.
func (s *ViewService) ReconcileViews(ctx context.Context) (int64, error) {
	return s.watch.ReconcileViews(ctx, MinQualifiedSeconds, MinQualifiedFraction)
}
