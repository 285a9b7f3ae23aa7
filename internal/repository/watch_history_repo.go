package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"vidora-backend/internal/models"
)

type WatchHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewWatchHistoryRepo(pool *pgxpool.Pool) *WatchHistoryRepo {
	return &WatchHistoryRepo{pool: pool}
}

// RecordView inserts one watch-history row and, when this is the user's
// first completed watch of the video, increments the view counter in the
// same transaction. Returns whether the counter moved.
func (r *WatchHistoryRepo) RecordView(ctx context.Context, h *models.WatchHistory) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin view transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var priorCompleted bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM watch_history
			WHERE user_id = $1 AND video_id = $2 AND completed = TRUE
		)
	`, h.UserID, h.VideoID).Scan(&priorCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to check prior completed watch: %w", err)
	}

	counted := h.Completed && !priorCompleted
	if counted {
		if _, err := tx.Exec(ctx,
			"UPDATE videos SET views = views + 1, updated_at = NOW() WHERE id = $1",
			h.VideoID,
		); err != nil {
			return false, fmt.Errorf("failed to increment views: %w", err)
		}
	}

	h.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO watch_history (id, video_id, user_id, watch_duration, completed)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, h.ID, h.VideoID, h.UserID, h.WatchDuration, h.Completed).Scan(&h.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert watch history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit view transaction: %w", err)
	}
	return counted, nil
}

// ReconcileViews recomputes view counts for ready videos from watch history.
// A watch qualifies when it was completed, lasted at least minSeconds, or
// covered at least minFraction of the video's known duration. Each user
// counts once per video. Returns how many counters were corrected.
func (r *WatchHistoryRepo) ReconcileViews(ctx context.Context, minSeconds int, minFraction float64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE videos v
		SET views = q.qualified, updated_at = NOW()
		FROM (
			SELECT w.video_id, COUNT(DISTINCT w.user_id) AS qualified
			FROM watch_history w
			JOIN videos vv ON vv.id = w.video_id
			WHERE w.completed = TRUE
			   OR w.watch_duration >= $1
			   OR (vv.duration_seconds IS NOT NULL
			       AND vv.duration_seconds > 0
			       AND w.watch_duration >= vv.duration_seconds * $2)
			GROUP BY w.video_id
		) q
		WHERE v.id = q.video_id
		  AND v.status = $3
		  AND v.views <> q.qualified
	`, minSeconds, minFraction, models.StatusReady)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile views: %w", err)
	}
	return tag.RowsAffected(), nil
}
