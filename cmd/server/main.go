package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidora-backend/internal/config"
	"vidora-backend/internal/database"
	"vidora-backend/internal/handlers"
	"vidora-backend/internal/media"
	"vidora-backend/internal/middleware"
	"vidora-backend/internal/queue"
	"vidora-backend/internal/repository"
	"vidora-backend/internal/router"
	"vidora-backend/internal/services"
	"vidora-backend/internal/storage"
	"vidora-backend/internal/websocket"
	"vidora-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Vidora Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 5: Initialize Object Storage ────
	objectStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("✗ MinIO client initialization failed: %v", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := objectStore.EnsureBuckets(ctx, cfg.RawBucket, cfg.ProcessedBucket); err != nil {
			cancel()
			log.Fatalf("✗ Bucket setup failed: %v", err)
		}
		cancel()
	}
	log.Println("✓ MinIO connected, buckets ready")

	// ──── Initialize Repositories ────
	videoRepo := repository.NewVideoRepo(pool)
	watchRepo := repository.NewWatchHistoryRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	jobQueue := queue.NewRedisQueue(redisClients.Queue)
	notifier := services.NewRedisNotifier(redisClients.Queue)
	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)

	uploadService := services.NewUploadService(
		videoRepo, jobRepo, jobQueue, objectStore, notifier,
		cfg.RawBucket, cfg.ProcessedBucket, cfg.MaxUploadBytes, cfg.PresignTTL,
	)
	viewService := services.NewViewService(videoRepo, watchRepo)
	retryService := services.NewRetryService(videoRepo, jobRepo, jobQueue, notifier, cfg.MaxProcessingAttempts)

	// ──── Initialize Handlers ────
	videoHandler := handlers.NewVideoHandler(uploadService, viewService, retryService)
	uploadLimiter := middleware.NewRateLimiter(10, time.Minute)

	// ──── Step 6: Start Transcode Worker Pool ────
	workerPool := worker.NewPool(
		jobQueue,
		videoRepo,
		jobRepo,
		objectStore,
		ffmpeg,
		ffmpeg,
		notifier,
		cfg.RawBucket,
		cfg.ProcessedBucket,
		cfg.ScratchDir,
		cfg.WorkerCount,
		cfg.MaxJobStarts,
		cfg.JobStartWindow,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start Stale Video Sweeper ────
	sweeper := services.NewSweeper(videoRepo, viewService, cfg.StaleAfter, cfg.SweepInterval)
	sweeper.Start()
	log.Println("✓ Stale video sweeper started")

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret, cfg.FrontendURL)
	log.Println("✓ WebSocket hub started")

	// ──── Step 9: Start HTTP Server ────
	r := router.New(jwtAuth, videoHandler, wsHub, uploadLimiter, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		sweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Vidora Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
