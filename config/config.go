package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DataDir         string
	MaxUploadSizeMB int

	Bucket        string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioUseSSL   bool
	MinioRegion   string

	FFmpegPath  string
	FFprobePath string

	TranscodeTimeout time.Duration
	ReclaimInterval  time.Duration
	ReclaimGrace     time.Duration
}

func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "7891"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxUploadSizeMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_SIZE_MB", "2048"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE_MB: %w", err)
	}

	timeoutMin, err := strconv.Atoi(getEnv("TRANSCODE_TIMEOUT_MINUTES", "45"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSCODE_TIMEOUT_MINUTES: %w", err)
	}

	reclaimHours, err := strconv.Atoi(getEnv("RECLAIM_INTERVAL_HOURS", "6"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECLAIM_INTERVAL_HOURS: %w", err)
	}

	graceDays, err := strconv.Atoi(getEnv("RECLAIM_GRACE_DAYS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECLAIM_GRACE_DAYS: %w", err)
	}

	bucket := os.Getenv("MEDIA_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("MEDIA_BUCKET is required")
	}

	access := os.Getenv("MINIO_ACCESS_KEY")
	secret := os.Getenv("MINIO_SECRET_KEY")
	if access == "" || secret == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}

	return &Config{
		Port:             port,
		DataDir:          getEnv("DATA_DIR", "/data"),
		MaxUploadSizeMB:  maxUploadSizeMB,
		Bucket:           bucket,
		MinioEndpoint:    getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccess:      access,
		MinioSecret:      secret,
		MinioUseSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		MinioRegion:      os.Getenv("MINIO_REGION"),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      getEnv("FFPROBE_PATH", "ffprobe"),
		TranscodeTimeout: time.Duration(timeoutMin) * time.Minute,
		ReclaimInterval:  time.Duration(reclaimHours) * time.Hour,
		ReclaimGrace:     time.Duration(graceDays) * 24 * time.Hour,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
