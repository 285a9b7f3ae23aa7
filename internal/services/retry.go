package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidora-backend/internal/models"
)

// RetryService re-enqueues failed transcode jobs under a bounded policy.
// The attempts counter is cumulative over the video's whole history; a
// successful retry does not reset it.
type RetryService struct {
	videos      VideoStore
	jobs        JobStore
	queue       JobQueue
	notifier    Notifier
	maxAttempts int
}

func NewRetryService(videos VideoStore, jobs JobStore, queue JobQueue, notifier Notifier, maxAttempts int) *RetryService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RetryService{
		videos:      videos,
		jobs:        jobs,
		queue:       queue,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

func (s *RetryService) Retry(ctx context.Context, videoID, callerID uuid.UUID) error {
	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Video not found"}
		}
		return fmt.Errorf("failed to load video: %w", err)
	}
	if video.OwnerID != callerID {
		return &ForbiddenError{Message: "Only the owner may retry processing"}
	}

	// The cap applies regardless of status: an exhausted video reports
	// exhaustion, not an invalid state.
	if video.ProcessingAttempts >= s.maxAttempts {
		return &RetryLimitError{Attempts: video.ProcessingAttempts, Cap: s.maxAttempts}
	}
	if !video.Retryable() {
		return &InvalidStateError{
			Message:       "Only a failed processing run can be retried",
			CurrentStatus: string(video.Status),
		}
	}

	if err := s.videos.ResetForRetry(ctx, videoID); err != nil {
		return fmt.Errorf("failed to reset video for retry: %w", err)
	}

	job := &models.Job{
		ID:           uuid.New(),
		VideoID:      video.ID,
		OwnerID:      video.OwnerID,
		RawObjectKey: video.OriginalFileURL,
		RetryCount:   video.ProcessingAttempts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to record retry job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue retry job: %w", err)
	}

	s.notifier.PushToUser(ctx, video.OwnerID, models.WSMessage{
		Type:    "status_update",
		Payload: models.StatusEvent{VideoID: video.ID, Status: models.StatusProcessing},
	})
	return nil
}
