package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/baitwatch/internal/adapter/api"
	"github.com/V4T54L/baitwatch/internal/adapter/api/handler"
	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
	"github.com/V4T54L/baitwatch/internal/adapter/repository/cursor"
	"github.com/V4T54L/baitwatch/internal/adapter/repository/deadletter"
	redisrepo "github.com/V4T54L/baitwatch/internal/adapter/repository/redis"
	"github.com/V4T54L/baitwatch/internal/adapter/repository/sqldb"
	"github.com/V4T54L/baitwatch/internal/adapter/signature"
	"github.com/V4T54L/baitwatch/internal/adapter/tail"
	"github.com/V4T54L/baitwatch/internal/domain"
	"github.com/V4T54L/baitwatch/internal/pkg/config"
	"github.com/V4T54L/baitwatch/internal/pkg/logger"
	"github.com/V4T54L/baitwatch/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewIngestMetrics(reg)

	// --- Signatures ---
	store, err := loadSignatures(cfg.SignaturesPath)
	if err != nil {
		logger.Error("invalid signature configuration, refusing to start", "error", err)
		os.Exit(1)
	}
	logger.Info("signatures loaded", "source", store.Source(), "version", store.Version(), "rules", store.Len())

	// --- Event Store ---
	dialect, err := sqldb.ParseDialect(cfg.StoreDriver)
	if err != nil {
		logger.Error("failed to select store driver", "error", err)
		os.Exit(1)
	}
	db, err := sqldb.Open(ctx, dialect, cfg.StoreDSN)
	if err != nil {
		logger.Error("failed to open event store", "driver", dialect, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	events := sqldb.NewEventRepository(db, dialect, logger)
	if err := events.Migrate(ctx); err != nil {
		logger.Error("failed to migrate event store", "error", err)
		os.Exit(1)
	}

	// --- Cursor ---
	cursors, closeCursors, err := newCursorRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize cursor repository", "backend", cfg.CursorBackend, "error", err)
		os.Exit(1)
	}
	defer closeCursors()

	// --- Writer and Dead-Letter Spool ---
	var spool domain.DeadLetterRepository
	if cfg.DeadLetterDir != "" {
		s, err := deadletter.NewSpool(cfg.DeadLetterDir, cfg.DeadLetterSegmentBytes, cfg.DeadLetterMaxBytes, logger)
		if err != nil {
			logger.Error("failed to initialize dead-letter spool", "error", err)
			os.Exit(1)
		}
		defer s.Close()
		spool = s
	}

	writer := usecase.NewEventWriter(events, spool, m, usecase.WriterConfig{
		MaxAttempts: cfg.WriteAttempts,
		BackoffBase: cfg.WriteBackoff,
		BackoffMax:  cfg.WriteBackoffMax,
	}, logger)
	if _, err := writer.ReplayDeadLetters(ctx); err != nil {
		logger.Warn("dead-letter replay incomplete", "error", err)
	}

	// --- Ingestor ---
	ingestor := usecase.NewIngestor(usecase.IngestConfig{
		Path:           cfg.AccessLogPath,
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.BatchSize,
		ReadChunkBytes: cfg.ReadChunkBytes,
		MaxLineBytes:   cfg.MaxLineBytes,
		StartAtEnd:     cfg.StartAtEnd,
	}, cursors, writer, m, logger)

	if cfg.WatchFSEvents {
		notifier, err := tail.NewNotifier(cfg.AccessLogPath, logger)
		if err != nil {
			logger.Warn("fs notifications unavailable, falling back to polling", "error", err)
		} else {
			defer notifier.Close()
			ingestor.WithWakeup(notifier.C)
		}
	}

	// --- Start Admin and Metrics Server ---
	var adminServer *http.Server
	if cfg.AdminAddr != "" {
		classifier, err := usecase.NewCachedClassifier(usecase.NewTrafficClassifier(store), cfg.ClassifyCacheSize, m)
		if err != nil {
			logger.Error("failed to initialize classifier", "error", err)
			os.Exit(1)
		}
		adminHandler := handler.NewAdminHandler(ingestor, store, classifier, logger)
		adminServer = &http.Server{
			Addr:         cfg.AdminAddr,
			Handler:      api.NewAdminRouter(adminHandler, reg, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		}
		go func() {
			logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin & metrics server failed", "error", err)
			}
		}()
	}

	// --- Run until shutdown signal ---
	runErr := ingestor.Run(ctx)
	stop()

	if adminServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("ingestor failed", "error", runErr)
		os.Exit(1)
	}
	logger.Info("ingest worker shut down gracefully")
}

func loadSignatures(path string) (*signature.Store, error) {
	if path == "" {
		return signature.Default()
	}
	return signature.Load(path)
}

func newCursorRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.CursorRepository, func(), error) {
	if cfg.CursorBackend != "redis" {
		repo, err := cursor.NewFileRepository(cfg.CursorPath, logger)
		return repo, func() {}, err
	}

	opts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	return redisrepo.NewCursorRepository(client, cfg.AccessLogPath, logger), func() { client.Close() }, nil
}
