package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidora-backend/internal/handlers"
	"vidora-backend/internal/middleware"
	"vidora-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	videoHandler *handlers.VideoHandler,
	wsHub *websocket.Hub,
	uploadLimiter *middleware.RateLimiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Video Routes ────
		r.Route("/videos", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			// Upload initiation is rate limited per IP; the other
			// lifecycle calls only act on videos the caller owns.
			r.Group(func(r chi.Router) {
				r.Use(uploadLimiter.Middleware)
				r.Post("/upload/initiate", videoHandler.InitiateUpload)
			})

			r.Post("/{id}/progress", videoHandler.ReportProgress)
			r.Post("/{id}/complete", videoHandler.CompleteUpload)
			r.Post("/{id}/cancel", videoHandler.Cancel)
			r.Post("/{id}/retry", videoHandler.Retry)
			r.Post("/{id}/view", videoHandler.RecordView)
			r.Get("/{id}", videoHandler.GetVideo)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
