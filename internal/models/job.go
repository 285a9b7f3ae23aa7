package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job is the transcode queue message. The Redis list carries the JSON
// encoding; a matching row in the jobs table tracks delivery bookkeeping.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	VideoID      uuid.UUID  `json:"video_id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	RawObjectKey string     `json:"raw_object_key"`
	Status       JobStatus  `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// WebSocket message types

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ProgressEvent struct {
	VideoID uuid.UUID `json:"video_id"`
	Percent int       `json:"percent"`
}

type StageEvent struct {
	VideoID uuid.UUID       `json:"video_id"`
	Stage   ProcessingStage `json:"stage"`
}

type StatusEvent struct {
	VideoID      uuid.UUID   `json:"video_id"`
	Status       VideoStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// API Error response

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
