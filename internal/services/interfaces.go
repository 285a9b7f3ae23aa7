package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vidora-backend/internal/models"
)

// Store contracts consumed by the services. *repository.VideoRepo and
// friends satisfy these in production; tests plug in in-memory fakes.

type VideoStore interface {
	Create(ctx context.Context, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error
	TransitionToProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	ResetForRetry(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	SweepStale(ctx context.Context, cutoff time.Time, errMsg string) (int64, error)
}

type WatchStore interface {
	RecordView(ctx context.Context, h *models.WatchHistory) (bool, error)
	ReconcileViews(ctx context.Context, minSeconds int, minFraction float64) (int64, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Remove(ctx context.Context, videoID uuid.UUID) error
}

type ObjectStore interface {
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}
