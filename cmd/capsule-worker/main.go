package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulseout/pulse-service/internal/config"
	"github.com/pulseout/pulse-service/internal/storage/postgres"
)

type CapsuleWorker struct {
	storage  *postgres.Postgres
	interval time.Duration
	logger   *slog.Logger
}

func NewCapsuleWorker(storage *postgres.Postgres, interval time.Duration) *CapsuleWorker {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &CapsuleWorker{
		storage:  storage,
		interval: interval,
		logger:   logger,
	}
}

func (cw *CapsuleWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	cw.logger.Info("Capsule worker started",
		"interval", cw.interval.String())

	// Run once immediately on startup
	cw.publishDueCapsules(ctx)

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Capsule worker shutting down")
			return
		case <-ticker.C:
			cw.publishDueCapsules(ctx)
		}
	}
}

func (cw *CapsuleWorker) publishDueCapsules(ctx context.Context) {
	startTime := time.Now()

	count, err := cw.storage.PublishDueCapsules()
	if err != nil {
		cw.logger.Error("Failed to publish due capsules",
			"error", err.Error(),
			"duration_ms", time.Since(startTime).Milliseconds())
		return
	}

	// Publishing flips the rows; the posts_changed trigger takes care of
	// notifying connected clients.
	if count > 0 {
		cw.logger.Info("Published due capsules",
			"capsules_published", count,
			"duration_ms", time.Since(startTime).Milliseconds())
	}
}

func main() {
	// Load config
	cfg := config.MustLoad()

	// Initialize database connection
	storage, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	slog.Info("Connected to Postgres database")

	// Create worker with 1-minute interval
	worker := NewCapsuleWorker(storage, time.Minute)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	// Start the worker
	worker.Start(ctx)

	slog.Info("Capsule worker stopped")
}
