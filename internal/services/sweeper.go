package services

import (
	"context"
	"log"
	"time"

	"vidora-backend/internal/metrics"
)

const staleDiagnostic = "Processing timed out: video was stuck in-flight past the staleness window"

// Sweeper periodically fails videos stuck mid-pipeline and runs the view
// reconciliation audit. It never touches object-store state; abandoned raw
// bytes are left for separate garbage collection.
type Sweeper struct {
	videos            VideoStore
	views             *ViewService
	staleAfter        time.Duration
	sweepInterval     time.Duration
	reconcileInterval time.Duration
	stopChan          chan struct{}
}

func NewSweeper(videos VideoStore, views *ViewService, staleAfter, sweepInterval time.Duration) *Sweeper {
	return &Sweeper{
		videos:            videos,
		views:             views,
		staleAfter:        staleAfter,
		sweepInterval:     sweepInterval,
		reconcileInterval: 6 * time.Hour,
		stopChan:          make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.loop(s.sweepInterval, func(ctx context.Context, now time.Time) {
		s.sweepOnce(ctx, now)
	})
	if s.views != nil {
		go s.loop(s.reconcileInterval, func(ctx context.Context, now time.Time) {
			s.reconcileOnce(ctx)
		})
	}
	log.Printf("Cleanup sweeper started (stale after %s, sweep every %s)", s.staleAfter, s.sweepInterval)
}

func (s *Sweeper) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *Sweeper) loop(interval time.Duration, runFn func(ctx context.Context, now time.Time)) {
	// Run on startup as well as by interval.
	runFn(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			runFn(context.Background(), time.Now().UTC())
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.staleAfter)
	swept, err := s.videos.SweepStale(ctx, cutoff, staleDiagnostic)
	if err != nil {
		log.Printf("Cleanup sweep failed: %v", err)
		return
	}
	if swept > 0 {
		metrics.StaleVideosSwept.Add(float64(swept))
		log.Printf("Cleanup sweep marked %d stale video(s) failed (cutoff %s)", swept, cutoff.Format(time.RFC3339))
	}
}

func (s *Sweeper) reconcileOnce(ctx context.Context) {
	corrected, err := s.views.ReconcileViews(ctx)
	if err != nil {
		log.Printf("View reconciliation failed: %v", err)
		return
	}
	if corrected > 0 {
		log.Printf("View reconciliation corrected %d video counter(s)", corrected)
	}
}
