package models

import (
	"time"

	"github.com/google/uuid"
)

// WatchHistory is an append-only record of one viewing session. Rows are
// inserted on every RecordView call and never mutated afterwards.
type WatchHistory struct {
	ID            uuid.UUID `json:"id"`
	VideoID       uuid.UUID `json:"video_id"`
	UserID        uuid.UUID `json:"user_id"`
	WatchDuration int       `json:"watch_duration"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
}
