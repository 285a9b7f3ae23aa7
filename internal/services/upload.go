package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidora-backend/internal/models"
)

// UploadService owns the upload session lifecycle: issuing presigned
// targets, tracking progress, handing completed uploads to the queue, and
// owner-initiated cancellation.
type UploadService struct {
	videos          VideoStore
	jobs            JobStore
	queue           JobQueue
	store           ObjectStore
	notifier        Notifier
	rawBucket       string
	processedBucket string
	maxUploadBytes  int64
	presignTTL      time.Duration
}

func NewUploadService(
	videos VideoStore,
	jobs JobStore,
	queue JobQueue,
	store ObjectStore,
	notifier Notifier,
	rawBucket string,
	processedBucket string,
	maxUploadBytes int64,
	presignTTL time.Duration,
) *UploadService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &UploadService{
		videos:          videos,
		jobs:            jobs,
		queue:           queue,
		store:           store,
		notifier:        notifier,
		rawBucket:       rawBucket,
		processedBucket: processedBucket,
		maxUploadBytes:  maxUploadBytes,
		presignTTL:      presignTTL,
	}
}

// InitiateUpload validates the request, creates the video record in
// uploading state and issues a presigned PUT for the raw object key. If the
// presign fails the record is deleted again; an uploading record with no
// grant behind it must never survive.
func (s *UploadService) InitiateUpload(ctx context.Context, ownerID uuid.UUID, req models.InitiateUploadRequest) (*models.Video, *models.InitiateUploadResponse, error) {
	fieldErrors := make(map[string]string)

	if strings.TrimSpace(req.Title) == "" {
		fieldErrors["title"] = "Title is required"
	}
	if req.FileSize <= 0 {
		fieldErrors["file_size"] = "File size is required"
	} else if req.FileSize > s.maxUploadBytes {
		fieldErrors["file_size"] = fmt.Sprintf("File size exceeds the %d byte limit", s.maxUploadBytes)
	}
	if strings.TrimSpace(req.MimeType) == "" {
		fieldErrors["mime_type"] = "MIME type is required"
	}
	if strings.TrimSpace(req.OriginalName) == "" {
		fieldErrors["original_name"] = "Original file name is required"
	}

	if len(fieldErrors) > 0 {
		return nil, nil, &ValidationError{Fields: fieldErrors}
	}

	video := &models.Video{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Title:           req.Title,
		Status:          models.StatusUploading,
		Visibility:      models.VisibilityPrivate,
		UploadProgress:  0,
		FileSize:        req.FileSize,
		MimeType:        req.MimeType,
		OriginalName:    req.OriginalName,
	}
	video.OriginalFileURL = RawObjectKey(video.ID, req.OriginalName)

	if err := s.videos.Create(ctx, video); err != nil {
		return nil, nil, fmt.Errorf("failed to create video record: %w", err)
	}

	uploadURL, err := s.store.PresignPut(ctx, s.rawBucket, video.OriginalFileURL, s.presignTTL)
	if err != nil {
		// Compensate: the record must not outlive a failed grant.
		if delErr := s.videos.Delete(ctx, video.ID); delErr != nil {
			log.Printf("Failed to delete video %s after presign failure: %v", video.ID, delErr)
		}
		return nil, nil, fmt.Errorf("failed to issue upload grant: %w", err)
	}

	return video, &models.InitiateUploadResponse{
		VideoID:   video.ID,
		UploadURL: uploadURL,
		ExpiresIn: int(s.presignTTL.Seconds()),
	}, nil
}

// ReportProgress persists the floored percentage and pushes a progress
// event. A report arriving after the upload was finalized is a successful
// no-op.
func (s *UploadService) ReportProgress(ctx context.Context, videoID, callerID uuid.UUID, percent float64) error {
	if percent < 0 || percent > 100 {
		return &ValidationError{Fields: map[string]string{"percent": "Percent must be between 0 and 100"}}
	}

	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != callerID {
		return &ForbiddenError{Message: "Only the owner may report upload progress"}
	}
	if video.Status != models.StatusUploading {
		return nil
	}

	floored := int(math.Floor(percent))
	if err := s.videos.UpdateProgress(ctx, videoID, floored); err != nil {
		return fmt.Errorf("failed to persist upload progress: %w", err)
	}

	s.notifier.PushToUser(ctx, video.OwnerID, models.WSMessage{
		Type:    "upload_progress",
		Payload: models.ProgressEvent{VideoID: videoID, Percent: floored},
	})
	return nil
}

// CompleteUpload moves the video from uploading to processing and enqueues
// exactly one transcode job. The transition is a compare-and-swap, so a
// duplicate call observes the swap failing and gets an InvalidStateError
// instead of enqueueing a second job.
func (s *UploadService) CompleteUpload(ctx context.Context, videoID, callerID uuid.UUID) error {
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != callerID {
		return &ForbiddenError{Message: "Only the owner may complete the upload"}
	}

	swapped, err := s.videos.TransitionToProcessing(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to transition video to processing: %w", err)
	}
	if !swapped {
		return &InvalidStateError{
			Message:       "Upload is not in progress",
			CurrentStatus: string(video.Status),
		}
	}

	job := &models.Job{
		ID:           uuid.New(),
		VideoID:      video.ID,
		OwnerID:      video.OwnerID,
		RawObjectKey: video.OriginalFileURL,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to record transcode job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The video stays in processing; the cleanup sweeper reclaims it
		// if no job ever arrives.
		return fmt.Errorf("failed to enqueue transcode job: %w", err)
	}

	s.notifier.PushToUser(ctx, video.OwnerID, models.WSMessage{
		Type:    "status_update",
		Payload: models.StatusEvent{VideoID: video.ID, Status: models.StatusProcessing},
	})
	return nil
}

// Cancel force-fails a video the owner gave up on. Queued jobs and the raw
// asset are removed best-effort; an already-dequeued job is stopped later by
// the worker's finalize guard.
func (s *UploadService) Cancel(ctx context.Context, videoID, callerID uuid.UUID) error {
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video.OwnerID != callerID {
		return &ForbiddenError{Message: "Only the owner may cancel a video"}
	}
	if video.Status != models.StatusUploading && video.Status != models.StatusProcessing {
		return &InvalidStateError{
			Message:       "Only an in-flight video can be cancelled",
			CurrentStatus: string(video.Status),
		}
	}

	cancelled, err := s.videos.MarkCancelled(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to cancel video: %w", err)
	}
	if !cancelled {
		// Lost the race against the worker or sweeper. The video's assets
		// must stay untouched: it may have finished and be ready to serve.
		current, getErr := s.videos.GetByID(ctx, videoID)
		status := "unknown"
		if getErr == nil {
			status = string(current.Status)
		}
		return &InvalidStateError{Message: "Video already left a cancellable state", CurrentStatus: status}
	}

	// Cleanup runs only once the cancellation is committed.
	if err := s.queue.Remove(ctx, videoID); err != nil {
		log.Printf("Best-effort queue removal for video %s failed: %v", videoID, err)
	}
	if err := s.store.DeleteObject(ctx, s.rawBucket, video.OriginalFileURL); err != nil {
		log.Printf("Best-effort raw asset delete for video %s failed: %v", videoID, err)
	}
	// Partial transcode outputs may already sit in the processed bucket.
	if err := s.store.DeletePrefix(ctx, s.processedBucket, ProcessedPrefix(videoID)); err != nil {
		log.Printf("Best-effort processed output delete for video %s failed: %v", videoID, err)
	}

	s.notifier.PushToUser(ctx, video.OwnerID, models.WSMessage{
		Type:    "status_update",
		Payload: models.StatusEvent{VideoID: video.ID, Status: models.StatusFailed},
	})
	return nil
}

// GetVideo returns a video for the caller: owners see everything, everyone
// else only ready public videos.
func (s *UploadService) GetVideo(ctx context.Context, videoID, callerID uuid.UUID) (*models.Video, error) {
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OwnerID == callerID {
		return video, nil
	}
	if video.Status != models.StatusReady || video.Visibility != models.VisibilityPublic {
		return nil, &NotFoundError{Message: "Video not found"}
	}
	return video, nil
}

func (s *UploadService) getVideo(ctx context.Context, videoID uuid.UUID) (*models.Video, error) {
	video, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Video not found"}
		}
		return nil, fmt.Errorf("failed to load video: %w", err)
	}
	return video, nil
}

// RawObjectKey builds the deterministic raw-bucket key for a video. The key
// is derived before any bytes exist so the presigned grant, the record and
// the transcode job all agree on it.
func RawObjectKey(videoID uuid.UUID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("videos/%s/original%s", videoID, ext)
}

// ProcessedPrefix is the processed-bucket namespace for a video's outputs.
func ProcessedPrefix(videoID uuid.UUID) string {
	return fmt.Sprintf("videos/%s", videoID)
}
