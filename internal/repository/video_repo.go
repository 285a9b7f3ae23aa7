package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidora-backend/internal/models"
)

type VideoRepo struct {
	pool *pgxpool.Pool
}

func NewVideoRepo(pool *pgxpool.Pool) *VideoRepo {
	return &VideoRepo{pool: pool}
}

const videoColumns = `id, owner_id, title, status, visibility, processing_stage,
	processing_attempts, last_processed_at, error_message, original_file_url,
	upload_progress, file_size, mime_type, original_name, duration_seconds,
	thumbnail_url, master_playlist, views, created_at, updated_at`

func (r *VideoRepo) Create(ctx context.Context, v *models.Video) error {
	query := `INSERT INTO videos (id, owner_id, title, status, visibility, original_file_url,
			upload_progress, file_size, mime_type, original_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		v.ID, v.OwnerID, v.Title, v.Status, v.Visibility, v.OriginalFileURL,
		v.UploadProgress, v.FileSize, v.MimeType, v.OriginalName,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *VideoRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v := &models.Video{}
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.OwnerID, &v.Title, &v.Status, &v.Visibility, &v.ProcessingStage,
		&v.ProcessingAttempts, &v.LastProcessedAt, &v.ErrorMessage, &v.OriginalFileURL,
		&v.UploadProgress, &v.FileSize, &v.MimeType, &v.OriginalName, &v.DurationSeconds,
		&v.ThumbnailURL, &v.MasterPlaylist, &v.Views, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (r *VideoRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM videos WHERE id = $1", id)
	return err
}

// UpdateProgress persists the upload percentage. The status guard keeps a
// late progress report from touching a video that already moved on.
func (r *VideoRepo) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE videos SET upload_progress = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		percent, id, models.StatusUploading,
	)
	return err
}

// TransitionToProcessing is the compare-and-swap uploading -> processing.
// Returns false when the video was not in uploading, so a duplicate
// complete-upload call cannot enqueue a second job.
func (r *VideoRepo) TransitionToProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE videos SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.StatusProcessing, id, models.StatusUploading,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *VideoRepo) SetStage(ctx context.Context, id uuid.UUID, stage models.ProcessingStage) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE videos SET processing_stage = $1, updated_at = NOW() WHERE id = $2",
		stage, id,
	)
	return err
}

func (r *VideoRepo) SetThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE videos SET thumbnail_url = $1, updated_at = NOW() WHERE id = $2",
		thumbnailKey, id,
	)
	return err
}

func (r *VideoRepo) SetDuration(ctx context.Context, id uuid.UUID, seconds int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE videos SET duration_seconds = $1, updated_at = NOW() WHERE id = $2",
		seconds, id,
	)
	return err
}

// FinalizeReady promotes a video to ready. The WHERE clause asserts the
// video is still processing with the attempt count the worker read at job
// start; a cleanup sweep or cancel that raced the worker makes this a no-op
// instead of overwriting a terminal state.
func (r *VideoRepo) FinalizeReady(ctx context.Context, id uuid.UUID, masterPlaylist string, duration *int, expectedAttempts int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			visibility = $2,
			master_playlist = $3,
			duration_seconds = COALESCE($4, duration_seconds),
			processing_stage = NULL,
			error_message = NULL,
			last_processed_at = NOW(),
			updated_at = NOW()
		WHERE id = $5
		  AND status = $6
		  AND processing_attempts = $7
	`, models.StatusReady, models.VisibilityPublic, masterPlaylist, duration,
		id, models.StatusProcessing, expectedAttempts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *VideoRepo) MarkProcessingFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			error_message = $2,
			processing_attempts = processing_attempts + 1,
			last_processed_at = NOW(),
			updated_at = NOW()
		WHERE id = $3
	`, models.StatusProcessingFailed, errMsg, id)
	return err
}

// ResetForRetry moves a failed video back into processing. The attempts
// counter is cumulative and deliberately left alone.
func (r *VideoRepo) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			error_message = NULL,
			processing_stage = NULL,
			updated_at = NOW()
		WHERE id = $2
	`, models.StatusProcessing, id)
	return err
}

// MarkCancelled force-fails a video the owner gave up on. Returns false if
// the video already left the cancellable states.
func (r *VideoRepo) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			visibility = $2,
			updated_at = NOW()
		WHERE id = $3
		  AND status = ANY($4)
	`, models.StatusFailed, models.VisibilityPrivate, id,
		[]models.VideoStatus{models.StatusUploading, models.StatusProcessing})
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SweepStale fails every in-flight video whose record has not been touched
// since the cutoff. Object-store state is left alone.
func (r *VideoRepo) SweepStale(ctx context.Context, cutoff time.Time, errMsg string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET status = $1,
			error_message = $2,
			processing_attempts = processing_attempts + 1,
			last_processed_at = NOW(),
			updated_at = NOW()
		WHERE status = ANY($3)
		  AND updated_at < $4
	`, models.StatusProcessingFailed, errMsg,
		[]models.VideoStatus{models.StatusUploading, models.StatusProcessing}, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
