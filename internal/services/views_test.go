package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"vidora-backend/internal/models"
)

type fakeWatchStore struct {
	recorded      []*models.WatchHistory
	counted       bool
	reconcileMin  int
	reconcileFrac float64
	reconciled    int64
}

func (s *fakeWatchStore) RecordView(ctx context.Context, h *models.WatchHistory) (bool, error) {
	s.recorded = append(s.recorded, h)
	return s.counted, nil
}

func (s *fakeWatchStore) ReconcileViews(ctx context.Context, minSeconds int, minFraction float64) (int64, error) {
	s.reconcileMin = minSeconds
	s.reconcileFrac = minFraction
	return s.reconciled, nil
}

// memoryWatchStore mirrors the repository's counting rule: the counter moves
// only on a (user, video) pair's first completed watch.
type memoryWatchStore struct {
	videos *fakeVideoStore
	rows   []*models.WatchHistory
	counts int
}

func (s *memoryWatchStore) RecordView(ctx context.Context, h *models.WatchHistory) (bool, error) {
	priorCompleted := false
	for _, r := range s.rows {
		if r.UserID == h.UserID && r.VideoID == h.VideoID && r.Completed {
			priorCompleted = true
			break
		}
	}
	counted := h.Completed && !priorCompleted
	if counted {
		s.videos.videos[h.VideoID].Views++
		s.counts++
	}
	s.rows = append(s.rows, h)
	return counted, nil
}

func (s *memoryWatchStore) ReconcileViews(ctx context.Context, minSeconds int, minFraction float64) (int64, error) {
	return 0, nil
}

func TestRecordView(t *testing.T) {
	owner := uuid.New()
	viewer := uuid.New()
	ready := &models.Video{ID: uuid.New(), OwnerID: owner, Status: models.StatusReady, Visibility: models.VisibilityPublic}
	inFlight := &models.Video{ID: uuid.New(), OwnerID: owner, Status: models.StatusProcessing}

	t.Run("rejects sub-second durations", func(t *testing.T) {
		svc := NewViewService(newFakeVideoStore(ready), &fakeWatchStore{})
		var verr *ValidationError
		if _, err := svc.RecordView(context.Background(), ready.ID, viewer, 0, true); !errors.As(err, &verr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
	})

	t.Run("unknown video is not found", func(t *testing.T) {
		svc := NewViewService(newFakeVideoStore(), &fakeWatchStore{})
		var nferr *NotFoundError
		if _, err := svc.RecordView(context.Background(), uuid.New(), viewer, 30, true); !errors.As(err, &nferr) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("non-ready video is not found", func(t *testing.T) {
		svc := NewViewService(newFakeVideoStore(inFlight), &fakeWatchStore{})
		var nferr *NotFoundError
		if _, err := svc.RecordView(context.Background(), inFlight.ID, viewer, 30, true); !errors.As(err, &nferr) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("appends a history row", func(t *testing.T) {
		watch := &fakeWatchStore{counted: true}
		svc := NewViewService(newFakeVideoStore(ready), watch)

		h, err := svc.RecordView(context.Background(), ready.ID, viewer, 95, true)
		if err != nil {
			t.Fatalf("RecordView: %v", err)
		}
		if len(watch.recorded) != 1 {
			t.Fatalf("recorded = %d rows, want 1", len(watch.recorded))
		}
		got := watch.recorded[0]
		if got.VideoID != ready.ID || got.UserID != viewer || got.WatchDuration != 95 || !got.Completed {
			t.Errorf("history row = %+v", got)
		}
		if h != got {
			t.Error("returned row should be the recorded one")
		}
	})
}

func TestRecordViewCountsOncePerViewer(t *testing.T) {
	owner := uuid.New()
	alice := uuid.New()
	bob := uuid.New()
	ready := &models.Video{ID: uuid.New(), OwnerID: owner, Status: models.StatusReady, Visibility: models.VisibilityPublic}
	videos := newFakeVideoStore(ready)
	watch := &memoryWatchStore{videos: videos}
	svc := NewViewService(videos, watch)

	record := func(t *testing.T, user uuid.UUID, duration int, completed bool) {
		t.Helper()
		if _, err := svc.RecordView(context.Background(), ready.ID, user, duration, completed); err != nil {
			t.Fatalf("RecordView: %v", err)
		}
	}

	// A partial watch is telemetry only.
	record(t, alice, 5, false)
	if ready.Views != 0 {
		t.Fatalf("views = %d after a partial watch, want 0", ready.Views)
	}

	// First completed watch counts; a rewatch does not.
	record(t, alice, 120, true)
	record(t, alice, 130, true)
	if ready.Views != 1 {
		t.Errorf("views = %d after two completed watches by one viewer, want 1", ready.Views)
	}

	// A second viewer's completed watch counts again.
	record(t, bob, 110, true)
	if ready.Views != 2 {
		t.Errorf("views = %d after a second viewer completed, want 2", ready.Views)
	}

	// Every call left a history row regardless of counting.
	if len(watch.rows) != 4 {
		t.Errorf("history rows = %d, want 4", len(watch.rows))
	}
	if watch.counts != 2 {
		t.Errorf("counted increments = %d, want 2", watch.counts)
	}
}

func TestReconcileViewsThresholds(t *testing.T) {
	watch := &fakeWatchStore{reconciled: 3}
	svc := NewViewService(newFakeVideoStore(), watch)

	corrected, err := svc.ReconcileViews(context.Background())
	if err != nil {
		t.Fatalf("ReconcileViews: %v", err)
	}
	if corrected != 3 {
		t.Errorf("corrected = %d, want 3", corrected)
	}
	if watch.reconcileMin != MinQualifiedSeconds || watch.reconcileFrac != MinQualifiedFraction {
		t.Errorf("thresholds = (%d, %v), want (%d, %v)",
			watch.reconcileMin, watch.reconcileFrac, MinQualifiedSeconds, MinQualifiedFraction)
	}
}
