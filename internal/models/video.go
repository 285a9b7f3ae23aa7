package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus is the lifecycle state of a video. Only the transcode worker
// may move a video into StatusReady.
type VideoStatus string

const (
	StatusUploading        VideoStatus = "uploading"
	StatusProcessing       VideoStatus = "processing"
	StatusReady            VideoStatus = "ready"
	StatusProcessingFailed VideoStatus = "processing_failed"
	StatusFailed           VideoStatus = "failed"
)

// ProcessingStage is the last pipeline stage the worker entered. Written
// before the stage's side effect so an operator can see where a failed run
// stopped.
type ProcessingStage string

const (
	StageDownload  ProcessingStage = "download"
	StageTranscode ProcessingStage = "transcode"
	StageUpload    ProcessingStage = "upload"
	StageFinalize  ProcessingStage = "finalize"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type Video struct {
	ID                 uuid.UUID        `json:"id"`
	OwnerID            uuid.UUID        `json:"owner_id"`
	Title              string           `json:"title"`
	Status             VideoStatus      `json:"status"`
	Visibility         Visibility       `json:"visibility"`
	ProcessingStage    *ProcessingStage `json:"processing_stage"`
	ProcessingAttempts int              `json:"processing_attempts"`
	LastProcessedAt    *time.Time       `json:"last_processed_at"`
	ErrorMessage       *string          `json:"error_message"`
	OriginalFileURL    string           `json:"original_file_url"`
	UploadProgress     int              `json:"upload_progress"`
	FileSize           int64            `json:"file_size"`
	MimeType           string           `json:"mime_type"`
	OriginalName       string           `json:"original_name"`
	DurationSeconds    *int             `json:"duration_seconds"`
	ThumbnailURL       *string          `json:"thumbnail_url"`
	MasterPlaylist     *string          `json:"master_playlist"`
	Views              int64            `json:"views"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Retryable reports whether the owner may request another processing
// attempt. StatusFailed is terminal; only processing_failed can be retried.
func (v *Video) Retryable() bool {
	return v.Status == StatusProcessingFailed
}

type InitiateUploadRequest struct {
	Title        string `json:"title"`
	FileSize     int64  `json:"file_size"`
	MimeType     string `json:"mime_type"`
	OriginalName string `json:"original_name"`
}

type InitiateUploadResponse struct {
	VideoID   uuid.UUID `json:"video_id"`
	UploadURL string    `json:"upload_url"`
	ExpiresIn int       `json:"expires_in_seconds"`
}

type ReportProgressRequest struct {
	Percent float64 `json:"percent"`
}

type RecordViewRequest struct {
	WatchDuration int  `json:"watch_duration"`
	Completed     bool `json:"completed"`
}
