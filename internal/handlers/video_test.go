package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidora-backend/internal/middleware"
	"vidora-backend/internal/models"
	"vidora-backend/internal/services"
)

// Minimal in-memory stores backing real service instances; the handler tests
// exercise the full HTTP-to-service path.

type stubVideoStore struct {
	videos map[uuid.UUID]*models.Video
}

func (s *stubVideoStore) Create(ctx context.Context, v *models.Video) error {
	s.videos[v.ID] = v
	return nil
}

func (s *stubVideoStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, ok := s.videos[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return v, nil
}

func (s *stubVideoStore) Delete(ctx context.Context, id uuid.UUID) error {
	delete(s.videos, id)
	return nil
}

func (s *stubVideoStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error {
	s.videos[id].UploadProgress = percent
	return nil
}

func (s *stubVideoStore) TransitionToProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	v, ok := s.videos[id]
	if !ok || v.Status != models.StatusUploading {
		return false, nil
	}
	v.Status = models.StatusProcessing
	return true, nil
}

func (s *stubVideoStore) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	s.videos[id].Status = models.StatusProcessing
	return nil
}

func (s *stubVideoStore) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	v, ok := s.videos[id]
	if !ok || (v.Status != models.StatusUploading && v.Status != models.StatusProcessing) {
		return false, nil
	}
	v.Status = models.StatusFailed
	return true, nil
}

func (s *stubVideoStore) SweepStale(ctx context.Context, cutoff time.Time, errMsg string) (int64, error) {
	return 0, nil
}

type stubJobStore struct{ jobs []*models.Job }

func (s *stubJobStore) Create(ctx context.Context, j *models.Job) error {
	s.jobs = append(s.jobs, j)
	return nil
}

type stubQueue struct{ enqueued int }

func (q *stubQueue) Enqueue(ctx context.Context, job *models.Job) error {
	q.enqueued++
	return nil
}

func (q *stubQueue) Remove(ctx context.Context, videoID uuid.UUID) error { return nil }

type stubObjectStore struct{}

func (stubObjectStore) PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://minio.test/" + bucket + "/" + key + "?signed", nil
}

func (stubObjectStore) DeleteObject(ctx context.Context, bucket, key string) error { return nil }

func (stubObjectStore) DeletePrefix(ctx context.Context, bucket, prefix string) error { return nil }

type stubWatchStore struct{ rows int }

func (s *stubWatchStore) RecordView(ctx context.Context, h *models.WatchHistory) (bool, error) {
	s.rows++
	return true, nil
}

func (s *stubWatchStore) ReconcileViews(ctx context.Context, minSeconds int, minFraction float64) (int64, error) {
	return 0, nil
}

type testEnv struct {
	videos *stubVideoStore
	queue  *stubQueue
	router chi.Router
	userID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	videos := &stubVideoStore{videos: make(map[uuid.UUID]*models.Video)}
	jobs := &stubJobStore{}
	q := &stubQueue{}

	uploads := services.NewUploadService(videos, jobs, q, stubObjectStore{}, nil, "videos-raw", "videos-processed", 5<<30, time.Hour)
	views := services.NewViewService(videos, &stubWatchStore{})
	retries := services.NewRetryService(videos, jobs, q, nil, 3)
	handler := NewVideoHandler(uploads, views, retries)

	env := &testEnv{videos: videos, queue: q, userID: uuid.New()}

	r := chi.NewRouter()
	// Stand-in for the JWT middleware: pin the authenticated user.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, env.userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/videos/upload/initiate", handler.InitiateUpload)
	r.Post("/videos/{id}/progress", handler.ReportProgress)
	r.Post("/videos/{id}/complete", handler.CompleteUpload)
	r.Post("/videos/{id}/cancel", handler.Cancel)
	r.Post("/videos/{id}/retry", handler.Retry)
	r.Post("/videos/{id}/view", handler.RecordView)
	r.Get("/videos/{id}", handler.GetVideo)

	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (body %s)", err, rec.Body.String())
	}
	return resp.Error.Code
}

func TestInitiateUploadEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/videos/upload/initiate", models.InitiateUploadRequest{
		Title:        "Launch demo",
		FileSize:     2048,
		MimeType:     "video/mp4",
		OriginalName: "demo.mp4",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		VideoID   uuid.UUID `json:"video_id"`
		UploadURL string    `json:"upload_url"`
		ExpiresIn int       `json:"expires_in_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.UploadURL == "" || resp.ExpiresIn != 3600 {
		t.Errorf("response = %+v", resp)
	}
	if _, ok := env.videos.videos[resp.VideoID]; !ok {
		t.Error("video record was not created")
	}
}

func TestInitiateUploadEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/videos/upload/initiate", models.InitiateUploadRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("error code = %q, want VALIDATION_ERROR", code)
	}
}

func TestCompleteUploadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	vid := uuid.New()
	env.videos.videos[vid] = &models.Video{ID: vid, OwnerID: env.userID, Status: models.StatusUploading}

	rec := env.do(t, http.MethodPost, "/videos/"+vid.String()+"/complete", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	if env.queue.enqueued != 1 {
		t.Errorf("enqueued = %d jobs, want 1", env.queue.enqueued)
	}

	// Second call must observe the state change, not enqueue again.
	rec = env.do(t, http.MethodPost, "/videos/"+vid.String()+"/complete", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_STATE" {
		t.Errorf("error code = %q, want INVALID_STATE", code)
	}
	if env.queue.enqueued != 1 {
		t.Errorf("enqueued = %d jobs after duplicate call, want 1", env.queue.enqueued)
	}
}

func TestRetryEndpointCap(t *testing.T) {
	env := newTestEnv(t)
	vid := uuid.New()
	env.videos.videos[vid] = &models.Video{
		ID: vid, OwnerID: env.userID, Status: models.StatusProcessingFailed, ProcessingAttempts: 3,
	}

	rec := env.do(t, http.MethodPost, "/videos/"+vid.String()+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := errorCode(t, rec); code != "RETRY_LIMIT_EXCEEDED" {
		t.Errorf("error code = %q, want RETRY_LIMIT_EXCEEDED", code)
	}
}

func TestRecordViewEndpoint(t *testing.T) {
	env := newTestEnv(t)
	vid := uuid.New()
	env.videos.videos[vid] = &models.Video{
		ID: vid, OwnerID: uuid.New(), Status: models.StatusReady, Visibility: models.VisibilityPublic,
	}

	rec := env.do(t, http.MethodPost, "/videos/"+vid.String()+"/view", models.RecordViewRequest{
		WatchDuration: 42,
		Completed:     true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestGetVideoEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unknown id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/videos/"+uuid.NewString(), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/videos/not-a-uuid", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("owner sees in-flight video", func(t *testing.T) {
		vid := uuid.New()
		env.videos.videos[vid] = &models.Video{ID: vid, OwnerID: env.userID, Status: models.StatusProcessing}

		rec := env.do(t, http.MethodGet, "/videos/"+vid.String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var got models.Video
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != vid || got.Status != models.StatusProcessing {
			t.Errorf("video = %+v", got)
		}
	})
}
