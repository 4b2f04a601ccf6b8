package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitwall/racefeed/internal/archive"
	"github.com/pitwall/racefeed/internal/config"
	"github.com/pitwall/racefeed/internal/predict"
	"github.com/pitwall/racefeed/internal/replay"
	"github.com/pitwall/racefeed/internal/server"
	"github.com/pitwall/racefeed/internal/ws"
)

const shutdownGrace = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Load config
	cfg, err := config.Load(os.Getenv("RACEFEED_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Setup logger
	logger, err := setupLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	desc := cfg.Session.Descriptor()
	logger.Info("configuration loaded",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("session", desc.String()),
		zap.Float64("rate", cfg.Replay.Rate),
		zap.Bool("loop", cfg.Replay.Loop),
		zap.String("cacheDir", cfg.Cache.Dir),
		zap.Bool("prediction", cfg.Prediction.Enabled),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry store: on-disk cache backed by the archive
	cache, err := archive.NewCache(cfg.Cache.Dir)
	if err != nil {
		logger.Error("failed to open cache", zap.Error(err))
		return 1
	}
	defer cache.Close()

	client := archive.NewClient(
		cfg.Archive.BaseURL,
		cfg.Archive.RatePerSecond,
		cfg.Archive.Timeout(),
		cfg.Archive.RetryDelay(),
		cfg.Archive.RetryCount,
		logger,
	)
	fetcher := archive.NewFetcher(client, cache, cfg.Archive.Workers, logger)
	store := archive.NewStore(cache, fetcher, logger)

	logger.Info("loading session...", zap.String("session", desc.String()))
	start := time.Now()

	data, err := store.Load(ctx, desc)
	if err != nil {
		logger.Error("failed to load session", zap.Error(err))
		return 1
	}

	logger.Info("session loaded",
		zap.Int("drivers", len(data.Tracks)),
		zap.Duration("duration", time.Since(start)),
	)

	// Replay core
	session, err := replay.NewSession(data.Tracks)
	if err != nil {
		logger.Error("invalid session", zap.Error(err))
		return 1
	}

	pacer, err := replay.NewPacer(session, cfg.Replay.Rate, logger, replay.WithLoop(cfg.Replay.Loop))
	if err != nil {
		logger.Error("failed to create pacer", zap.Error(err))
		return 1
	}

	// Prediction: computed per connection from the reference season's race
	// laps. Missing reference data degrades the feature, not the server.
	var predictFn ws.PredictFunc
	if cfg.Prediction.Enabled {
		refDesc := archive.Descriptor{
			Year:    cfg.Prediction.ReferenceYear,
			Event:   cfg.Session.Event,
			Session: "R",
		}
		refLaps, err := store.LoadLaps(ctx, refDesc)
		if err != nil {
			logger.Warn("reference laps unavailable, predictions will fail",
				zap.String("session", refDesc.String()),
				zap.Error(err),
			)
		}
		builder := predict.NewBuilder(refLaps, cfg.Prediction.Qualifying, logger)
		predictFn = func(ctx context.Context) (any, error) {
			return builder.Build(ctx)
		}
	}

	// Fan-out
	hub := ws.NewHub(cfg.Replay.SendBuffer, logger)
	go hub.Run(ctx)

	streamer := ws.NewStreamer(hub, pacer, logger)
	go streamer.Run(ctx)

	monitor := server.NewMonitor(desc, pacer, hub, time.Second, logger)
	go monitor.Run(ctx)

	srv := server.NewServer(desc, pacer, hub, predictFn, monitor, logger)
	router := server.NewRouter(srv, logger)

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Cancel context to stop the pacer, hub and monitor
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}

func setupLogger(levelStr string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.DisableStacktrace = true

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	return zapConfig.Build()
}
