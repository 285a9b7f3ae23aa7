package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"vidora-backend/internal/metrics"
	"vidora-backend/internal/middleware"
	"vidora-backend/internal/models"
	"vidora-backend/internal/services"
)

type VideoHandler struct {
	uploads *services.UploadService
	views   *services.ViewService
	retries *services.RetryService
}

func NewVideoHandler(uploads *services.UploadService, views *services.ViewService, retries *services.RetryService) *VideoHandler {
	return &VideoHandler{
		uploads: uploads,
		views:   views,
		retries: retries,
	}
}

func (h *VideoHandler) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req models.InitiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	video, resp, err := h.uploads.InitiateUpload(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"video_id":           resp.VideoID,
		"upload_url":         resp.UploadURL,
		"expires_in_seconds": resp.ExpiresIn,
		"status":             video.Status,
	})
}

func (h *VideoHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	var req models.ReportProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.uploads.ReportProgress(r.Context(), videoID, userID, req.Percent); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Progress recorded"})
}

func (h *VideoHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.uploads.CompleteUpload(r.Context(), videoID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"video_id": videoID,
		"status":   models.StatusProcessing,
	})
}

func (h *VideoHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.uploads.Cancel(r.Context(), videoID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"video_id": videoID,
		"status":   models.StatusFailed,
	})
}

func (h *VideoHandler) Retry(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.retries.Retry(r.Context(), videoID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"video_id": videoID,
		"status":   models.StatusProcessing,
	})
}

func (h *VideoHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	var req models.RecordViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	history, err := h.views.RecordView(r.Context(), videoID, userID, req.WatchDuration, req.Completed)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	metrics.ViewsRecorded.Inc()

	writeJSON(w, http.StatusCreated, history)
}

func (h *VideoHandler) GetVideo(w http.ResponseWriter, r *http.Request) {
	videoID, ok := parseVideoID(w, r)
	if !ok {
		return
	}

	userID := middleware.GetUserID(r.Context())
	video, err := h.uploads.GetVideo(r.Context(), videoID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, video)
}

func parseVideoID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid video ID", r))
		return uuid.Nil, false
	}
	return id, true
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *services.ValidationError:
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", e.Fields, r))
	case *services.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", e.Message, r))
	case *services.ForbiddenError:
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", e.Message, r))
	case *services.InvalidStateError:
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_STATE", e.Error(), r))
	case *services.RetryLimitError:
		writeJSON(w, http.StatusConflict, errorResp("RETRY_LIMIT_EXCEEDED", e.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
