package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipflow/clipflow/config"
	HTTPAdapter "github.com/clipflow/clipflow/internal/adapter/http"
	miniostore "github.com/clipflow/clipflow/internal/adapter/storage/minio"
	sqlitestore "github.com/clipflow/clipflow/internal/adapter/storage/sqlite"
	"github.com/clipflow/clipflow/internal/adapter/transcoder/ffmpeg"
	"github.com/clipflow/clipflow/internal/infrastructure/logger"
	"github.com/clipflow/clipflow/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Info.Printf("starting clipflow on port %d, bucket=%s", cfg.Port, cfg.Bucket)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Error.Printf("failed to create data directory: %v", err)
		os.Exit(1)
	}

	store, err := sqlitestore.NewStore(cfg.DataDir)
	if err != nil {
		logger.Error.Printf("failed to create store: %v", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	objects, err := miniostore.NewObjectStore(miniostore.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccess,
		SecretKey: cfg.MinioSecret,
		UseSSL:    cfg.MinioUseSSL,
		Region:    cfg.MinioRegion,
	})
	if err != nil {
		logger.Error.Printf("failed to connect object storage: %v", err)
		os.Exit(1)
	}

	uploader := service.NewUploader(objects)
	transcoder := ffmpeg.NewTranscoder(objects, uploader, cfg.FFmpegPath, cfg.FFprobePath)
	eventBus := service.NewEventBus()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	queue := service.NewTranscodeQueue(store, transcoder, eventBus, cfg.TranscodeTimeout)
	queue.Start(workerCtx)

	// Re-enqueue whatever a previous process left queued or processing
	if err := queue.RecoverStuck(); err != nil {
		logger.Error.Printf("recovery scan failed: %v", err)
	}

	reclaimer := service.NewReclaimer(store, objects, cfg.Bucket, cfg.ReclaimInterval, cfg.ReclaimGrace)
	go reclaimer.Run(workerCtx)

	handlers := HTTPAdapter.NewHandlers(store, objects, uploader, queue, cfg.Bucket, cfg.DataDir, cfg.MaxUploadSizeMB)
	server := HTTPAdapter.NewServer(handlers, eventBus)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info.Printf("received %s, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error.Printf("http shutdown error: %v", err)
		}

		// Stop the worker and reclaimer
		workerCancel()

		logger.Info.Printf("shutdown complete")
	}()

	logger.Info.Printf("server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error.Printf("server failed: %v", err)
		os.Exit(1)
	}
}
