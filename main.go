package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"

	"concord/internal/api"
	"concord/internal/config"
	"concord/internal/conflict"
	docstorage "concord/internal/document/storage"
	"concord/internal/events"
	"concord/internal/logging"
	"concord/internal/metrics"
	"concord/internal/middleware"
	"concord/internal/storage"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Path())
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize BadgerDB
	db, err := storage.Open(cfg.Database.Path, cfg.Database.InMemory)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize document store
	store, err := docstorage.NewStore(db, docstorage.Options{
		SnapshotCacheSize: cfg.Storage.SnapshotCacheSize,
		CompressMinSize:   cfg.Storage.CompressMinSize,
		Logger:            logger.Named("store"),
	})
	if err != nil {
		logger.Fatal("failed to initialize document store", zap.Error(err))
	}
	defer store.Close()

	// Events
	bus := events.NewBus(logger.Named("events"))
	eventLog := logger.Named("events")
	bus.Subscribe(func(ctx context.Context, e events.Event) error {
		eventLog.Debug("event",
			zap.String("name", string(e.Name)),
			zap.String("file_id", e.FileID),
			zap.String("conflict_id", e.ConflictID),
		)
		return nil
	})

	collector := metrics.NewCollector()
	collector.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine := conflict.NewEngine(store, conflict.Options{
		Logger:                 logger.Named("conflict"),
		Sink:                   bus,
		Metrics:                collector,
		RequireExpectedVersion: cfg.Conflict.RequireExpectedVersion,
		PendingPolicy:          conflict.PendingPolicy(cfg.Conflict.PendingPolicy),
		MaxHistory:             cfg.Conflict.MaxHistory,
	})

	// Initialize handlers
	fileHandler := api.NewFileHandler(store, engine, logger.Named("api"))
	conflictHandler := api.NewConflictHandler(engine, cfg.Conflict.HistoryLimit, logger.Named("api"))

	// Set up router
	mux := http.NewServeMux()
	api.Routes(mux, fileHandler, conflictHandler)
	mux.Handle("GET /metrics", collector.Handler())

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("environment", cfg.Environment),
		zap.String("pending_policy", cfg.Conflict.PendingPolicy),
	)

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
