package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vidora-backend/internal/models"
)

const (
	TranscodeQueue = "queue:video-transcode"

	// ProcessingList holds payloads a worker has popped but not yet acked.
	// Dequeue moves jobs here atomically so a worker crash never loses one.
	ProcessingList = TranscodeQueue + ":processing"

	// lockTTL bounds how long a crashed worker can hold a job before
	// RequeueExpired hands it back to the main queue.
	lockTTL = 30 * time.Minute
)

// ErrEmpty is returned by Dequeue when the blocking pop timed out without a
// job arriving.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the durable at-least-once work queue between upload completion
// and the transcode workers. Delivered jobs sit on a processing list until
// the worker acks them; a job whose lock expired (the worker died) is
// returned to the main queue by RequeueExpired.
type Queue interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error)
	Ack(ctx context.Context, jobID uuid.UUID) error
	Requeue(ctx context.Context, jobID uuid.UUID) error
	Remove(ctx context.Context, videoID uuid.UUID) error
	AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error)
	RequeueExpired(ctx context.Context) (int, error)
}

type RedisQueue struct {
	client     *redis.Client
	name       string
	processing string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, name: TranscodeQueue, processing: ProcessingList}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.name, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks until a job arrives or the timeout elapses. The payload
// moves atomically onto the processing list; the caller must Ack or Requeue
// it when done.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	payload, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}

	var job models.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job payload: %w", err)
	}
	return &job, nil
}

// Ack drops the job from the processing list and releases its lock. Called
// after the worker recorded the job's outcome, success or failure.
func (q *RedisQueue) Ack(ctx context.Context, jobID uuid.UUID) error {
	entry, found, err := q.processingEntry(ctx, jobID)
	if err != nil {
		return err
	}
	if found {
		if err := q.client.LRem(ctx, q.processing, 1, entry).Err(); err != nil {
			return fmt.Errorf("failed to ack job %s: %w", jobID, err)
		}
	}
	return q.client.Del(ctx, lockKey(jobID)).Err()
}

// Requeue hands an unfinished job back to the main queue, for a worker that
// gives the job up before starting it (shutdown).
func (q *RedisQueue) Requeue(ctx context.Context, jobID uuid.UUID) error {
	entry, found, err := q.processingEntry(ctx, jobID)
	if err != nil {
		return err
	}
	if found {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing, 1, entry)
		pipe.LPush(ctx, q.name, entry)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", jobID, err)
		}
	}
	return q.client.Del(ctx, lockKey(jobID)).Err()
}

// Remove drops every queued job for the video. Best-effort: a job a worker
// has already popped is out of reach and is handled by the finalize guard
// instead.
func (q *RedisQueue) Remove(ctx context.Context, videoID uuid.UUID) error {
	entries, err := q.client.LRange(ctx, q.name, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to scan queue: %w", err)
	}

	for _, entry := range entries {
		var job models.Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			continue
		}
		if job.VideoID != videoID {
			continue
		}
		if err := q.client.LRem(ctx, q.name, 0, entry).Err(); err != nil {
			return fmt.Errorf("failed to remove job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (q *RedisQueue) AcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return q.client.SetNX(ctx, lockKey(jobID), "1", lockTTL).Result()
}

// RequeueExpired scans the processing list for jobs whose lock has expired,
// meaning the owning worker died mid-job, and pushes them back onto the
// main queue for redelivery.
func (q *RedisQueue) RequeueExpired(ctx context.Context) (int, error) {
	entries, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan processing list: %w", err)
	}

	requeued := 0
	for _, entry := range entries {
		var job models.Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			// Unreadable entry; drop it rather than recycle it forever.
			q.client.LRem(ctx, q.processing, 1, entry)
			continue
		}
		held, err := q.client.Exists(ctx, lockKey(job.ID)).Result()
		if err != nil {
			return requeued, fmt.Errorf("failed to check lock for job %s: %w", job.ID, err)
		}
		if held > 0 {
			continue
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing, 1, entry)
		pipe.LPush(ctx, q.name, entry)
		if _, err := pipe.Exec(ctx); err != nil {
			return requeued, fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		requeued++
	}
	return requeued, nil
}

// processingEntry finds the stored payload for a job on the processing
// list. The list never grows past the worker count, so a linear scan is
// fine.
func (q *RedisQueue) processingEntry(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	entries, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to scan processing list: %w", err)
	}
	for _, entry := range entries {
		var job models.Job
		if err := json.Unmarshal([]byte(entry), &job); err != nil {
			continue
		}
		if job.ID == jobID {
			return entry, true, nil
		}
	}
	return "", false, nil
}

func lockKey(jobID uuid.UUID) string {
	return "job_lock:" + jobID.String()
}
