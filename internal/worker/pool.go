package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidora-backend/internal/media"
	"vidora-backend/internal/metrics"
	"vidora-backend/internal/models"
	"vidora-backend/internal/queue"
	"vidora-backend/internal/services"
)

// Store contracts the worker consumes. *repository.VideoRepo and
// *repository.JobRepo satisfy them; tests plug in fakes.

type VideoStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	SetStage(ctx context.Context, id uuid.UUID, stage models.ProcessingStage) error
	SetThumbnail(ctx context.Context, id uuid.UUID, thumbnailKey string) error
	SetDuration(ctx context.Context, id uuid.UUID, seconds int) error
	FinalizeReady(ctx context.Context, id uuid.UUID, masterPlaylist string, duration *int, expectedAttempts int) (bool, error)
	MarkProcessingFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

type JobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type ObjectStore interface {
	DownloadFile(ctx context.Context, bucket, key, localPath string) error
	UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error
}

// Pool runs the transcode pipeline: a fixed number of goroutines consume
// jobs from the queue, bounded additionally by a sliding-window limiter on
// job starts.
type Pool struct {
	queue           queue.Queue
	videos          VideoStore
	jobs            JobStore
	store           ObjectStore
	transcoder      media.Transcoder
	prober          media.Prober
	notifier        services.Notifier
	rawBucket       string
	processedBucket string
	scratchDir      string
	workerCount     int
	limiter         *startLimiter
	stopChan        chan struct{}
}

func NewPool(
	q queue.Queue,
	videos VideoStore,
	jobs JobStore,
	store ObjectStore,
	transcoder media.Transcoder,
	prober media.Prober,
	notifier services.Notifier,
	rawBucket string,
	processedBucket string,
	scratchDir string,
	workerCount int,
	maxJobStarts int,
	jobStartWindow time.Duration,
) *Pool {
	if notifier == nil {
		notifier = services.NopNotifier{}
	}
	return &Pool{
		queue:           q,
		videos:          videos,
		jobs:            jobs,
		store:           store,
		transcoder:      transcoder,
		prober:          prober,
		notifier:        notifier,
		rawBucket:       rawBucket,
		processedBucket: processedBucket,
		scratchDir:      scratchDir,
		workerCount:     workerCount,
		limiter:         newStartLimiter(maxJobStarts, jobStartWindow),
		stopChan:        make(chan struct{}),
	}
}

// reapInterval is how often orphaned jobs are swept back onto the queue.
const reapInterval = time.Minute

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	go p.reaper()
	log.Printf("Started %d transcode worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	select {
	case <-p.stopChan:
		return
	default:
		close(p.stopChan)
	}
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		job, err := p.queue.Dequeue(ctx, 30*time.Second)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) {
				log.Printf("Worker %d: dequeue failed: %v", id, err)
			}
			continue
		}

		if !p.runJob(ctx, id, job) {
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// runJob drives one delivered job from lock to ack. Returns false when the
// pool is shutting down.
func (p *Pool) runJob(ctx context.Context, id int, job *models.Job) bool {
	// Lock first: the reaper treats an unlocked processing-list entry as
	// orphaned.
	locked, err := p.queue.AcquireLock(ctx, job.ID)
	if err != nil {
		// The job stays on the processing list; the reaper redelivers it.
		log.Printf("Worker %d: failed to lock job %s, leaving it for redelivery: %v", id, job.ID, err)
		return true
	}
	if !locked {
		// An earlier delivery of this job is still being worked on.
		return true
	}

	if !p.limiter.wait(p.stopChan) {
		// Shutting down; hand the job back so it is not lost.
		if err := p.queue.Requeue(ctx, job.ID); err != nil {
			log.Printf("Worker %d: failed to requeue job %s on shutdown: %v", id, job.ID, err)
		}
		return false
	}

	log.Printf("Worker %d: processing job %s (video %s)", id, job.ID, job.VideoID)
	metrics.JobsStarted.Inc()
	started := time.Now()

	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing); err != nil {
		log.Printf("Worker %d: failed to mark job %s processing: %v", id, job.ID, err)
	}

	if err := p.ProcessJob(ctx, job); err != nil {
		p.handleFailure(ctx, job, err)
	} else {
		p.handleSuccess(ctx, job)
	}
	metrics.JobDuration.Observe(time.Since(started).Seconds())

	if err := p.queue.Ack(ctx, job.ID); err != nil {
		log.Printf("Worker %d: failed to ack job %s: %v", id, job.ID, err)
	}
	return true
}

// reaper periodically returns jobs whose worker died to the main queue.
func (p *Pool) reaper() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			n, err := p.queue.RequeueExpired(context.Background())
			if err != nil {
				log.Printf("Job reaper: %v", err)
			} else if n > 0 {
				log.Printf("Job reaper: requeued %d orphaned job(s)", n)
			}
		}
	}
}

// ProcessJob runs the strictly ordered pipeline for one job. A crashed
// worker's job is redelivered by lock expiry and restarts from DOWNLOAD;
// stage writes before each side effect tell an operator where the previous
// run stopped.
func (p *Pool) ProcessJob(ctx context.Context, job *models.Job) error {
	video, err := p.videos.GetByID(ctx, job.VideoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Video was deleted while the job was queued. Nothing to do.
			log.Printf("Job %s: video %s no longer exists, skipping", job.ID, job.VideoID)
			return nil
		}
		return fmt.Errorf("failed to load video: %w", err)
	}

	// Attempts count read at job start; finalize asserts it is unchanged.
	expectedAttempts := video.ProcessingAttempts

	scratch := filepath.Join(p.scratchDir, "vidora", job.VideoID.String())
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Printf("Job %s: scratch cleanup failed: %v", job.ID, err)
		}
	}()

	// DOWNLOAD
	if err := p.enterStage(ctx, job, models.StageDownload); err != nil {
		return err
	}
	inputPath := filepath.Join(scratch, "input"+filepath.Ext(job.RawObjectKey))
	if err := p.store.DownloadFile(ctx, p.rawBucket, job.RawObjectKey, inputPath); err != nil {
		return fmt.Errorf("failed to download raw asset: %w", err)
	}

	// Thumbnail (best-effort; skipped when one already exists)
	if video.ThumbnailURL == nil {
		if err := p.generateThumbnail(ctx, job, inputPath, scratch); err != nil {
			log.Printf("Job %s: thumbnail generation failed (continuing): %v", job.ID, err)
		}
	}

	// Duration probe (best-effort)
	var duration *int
	if seconds, err := p.prober.Duration(ctx, inputPath); err != nil {
		log.Printf("Job %s: duration probe failed (continuing): %v", job.ID, err)
	} else {
		duration = &seconds
		if err := p.videos.SetDuration(ctx, job.VideoID, seconds); err != nil {
			log.Printf("Job %s: failed to persist duration (continuing): %v", job.ID, err)
		}
	}

	// TRANSCODE
	if err := p.enterStage(ctx, job, models.StageTranscode); err != nil {
		return err
	}
	outputDir := filepath.Join(scratch, "hls")
	result, err := p.transcoder.TranscodeHLS(ctx, inputPath, outputDir)
	if err != nil {
		return fmt.Errorf("transcode failed: %w", err)
	}
	if len(result.Files) == 0 {
		return errors.New("ffmpeg produced no output files")
	}

	// UPLOAD
	if err := p.enterStage(ctx, job, models.StageUpload); err != nil {
		return err
	}
	prefix := services.ProcessedPrefix(job.VideoID)
	for _, rel := range result.Files {
		key := prefix + "/hls/" + filepath.ToSlash(rel)
		if err := p.store.UploadFile(ctx, p.processedBucket, key, filepath.Join(outputDir, rel), ""); err != nil {
			return fmt.Errorf("failed to upload %s: %w", rel, err)
		}
	}

	// FINALIZE
	if err := p.enterStage(ctx, job, models.StageFinalize); err != nil {
		return err
	}
	masterKey := prefix + "/hls/" + result.MasterPlaylist
	promoted, err := p.videos.FinalizeReady(ctx, job.VideoID, masterKey, duration, expectedAttempts)
	if err != nil {
		return fmt.Errorf("failed to finalize video: %w", err)
	}
	if !promoted {
		// The video was cancelled or swept while we were transcoding.
		// Refuse to overwrite the terminal state; the outputs stay in the
		// processed bucket for garbage collection.
		log.Printf("Job %s: video %s left processing before finalize, leaving state untouched", job.ID, job.VideoID)
		return nil
	}

	p.notifier.PushToUser(ctx, job.OwnerID, models.WSMessage{
		Type:    "status_update",
		Payload: models.StatusEvent{VideoID: job.VideoID, Status: models.StatusReady},
	})
	return nil
}

// enterStage persists the new stage and tells the owner where the pipeline
// is. The write happens before the stage's side effect.
func (p *Pool) enterStage(ctx context.Context, job *models.Job, stage models.ProcessingStage) error {
	if err := p.videos.SetStage(ctx, job.VideoID, stage); err != nil {
		return fmt.Errorf("failed to mark %s stage: %w", stage, err)
	}
	p.notifier.PushToUser(ctx, job.OwnerID, models.WSMessage{
		Type:    "processing_stage",
		Payload: models.StageEvent{VideoID: job.VideoID, Stage: stage},
	})
	return nil
}

func (p *Pool) generateThumbnail(ctx context.Context, job *models.Job, inputPath, scratch string) error {
	thumbPath := filepath.Join(scratch, "thumbnail.jpg")
	if err := p.prober.ExtractFrame(ctx, inputPath, 0.10, thumbPath); err != nil {
		return err
	}

	key := services.ProcessedPrefix(job.VideoID) + "/thumbnail.jpg"
	if err := p.store.UploadFile(ctx, p.processedBucket, key, thumbPath, "image/jpeg"); err != nil {
		return err
	}
	return p.videos.SetThumbnail(ctx, job.VideoID, key)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	metrics.JobsCompleted.Inc()
	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted); err != nil {
		log.Printf("Job %s: failed to mark job completed: %v", job.ID, err)
	}
	log.Printf("Job %s completed", job.ID)
}

// handleFailure translates a fatal pipeline error into persisted state:
// the video moves to processing_failed (when it still exists) and the job
// row records the error. Recovery is the explicit retry endpoint; the
// worker never re-queues a failed job itself.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, procErr error) {
	metrics.JobsFailed.Inc()
	errMsg := procErr.Error()
	log.Printf("Job %s failed: %s", job.ID, errMsg)

	if _, err := p.videos.GetByID(ctx, job.VideoID); err == nil {
		if err := p.videos.MarkProcessingFailed(ctx, job.VideoID, errMsg); err != nil {
			log.Printf("Job %s: failed to persist processing failure: %v", job.ID, err)
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("Job %s: failed to load video during failure handling: %v", job.ID, err)
	}

	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobFailed); err != nil {
		log.Printf("Job %s: failed to mark job failed: %v", job.ID, err)
	}
	if err := p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount); err != nil {
		log.Printf("Job %s: failed to record job error: %v", job.ID, err)
	}

	p.notifier.PushToUser(ctx, job.OwnerID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusEvent{
			VideoID:      job.VideoID,
			Status:       models.StatusProcessingFailed,
			ErrorMessage: errMsg,
		},
	})
}
