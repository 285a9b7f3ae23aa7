package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Object store (MinIO / S3-compatible)
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	RawBucket       string
	ProcessedBucket string

	// Upload sessions
	MaxUploadBytes int64
	PresignTTL     time.Duration

	// Transcoding
	FFmpegPath     string
	FFprobePath    string
	ScratchDir     string
	WorkerCount    int
	MaxJobStarts   int
	JobStartWindow time.Duration

	// Retry / cleanup
	MaxProcessingAttempts int
	StaleAfter            time.Duration
	SweepInterval         time.Duration

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		MinioEndpoint:   mustGetEnv("MINIO_ENDPOINT"),
		MinioAccessKey:  mustGetEnv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  mustGetEnv("MINIO_SECRET_KEY"),
		MinioUseSSL:     getEnvAsBoolOrDefault("MINIO_USE_SSL", false),
		RawBucket:       getEnvOrDefault("RAW_BUCKET", "videos-raw"),
		ProcessedBucket: getEnvOrDefault("PROCESSED_BUCKET", "videos-processed"),

		MaxUploadBytes: getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", 5<<30),
		PresignTTL:     getEnvAsDurationOrDefault("PRESIGN_TTL", time.Hour),

		FFmpegPath:     getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:    getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		ScratchDir:     getEnvOrDefault("SCRATCH_DIR", os.TempDir()),
		WorkerCount:    getEnvAsIntOrDefault("WORKER_COUNT", 3),
		MaxJobStarts:   getEnvAsIntOrDefault("MAX_JOB_STARTS", 10),
		JobStartWindow: getEnvAsDurationOrDefault("JOB_START_WINDOW", time.Minute),

		MaxProcessingAttempts: getEnvAsIntOrDefault("MAX_PROCESSING_ATTEMPTS", 3),
		StaleAfter:            getEnvAsDurationOrDefault("STALE_AFTER", time.Hour),
		SweepInterval:         getEnvAsDurationOrDefault("SWEEP_INTERVAL", 10*time.Minute),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsInt64OrDefault(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
