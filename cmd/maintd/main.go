package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"predictive-maintenance/internal/cfg"
	"predictive-maintenance/internal/dashboard"
	"predictive-maintenance/internal/metrics"
	"predictive-maintenance/internal/ml"
	"predictive-maintenance/internal/risk"
	"predictive-maintenance/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	model := loadModel(ctx, c, mw)
	defer model.Close()

	opts := []risk.Option{risk.WithObserver(mw)}
	serverOpts := []dashboard.Option{
		dashboard.WithMetrics(mw),
		dashboard.WithRateLimit(c.RateLimit, c.RateBurst),
	}

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
		opts = append(opts, risk.WithRecorder(store))
		serverOpts = append(serverOpts, dashboard.WithHistory(store, c.HistorySize))
	}

	assessor := risk.NewAssessor(model, opts...)
	server := dashboard.NewServer(assessor, c.ListenPort, serverOpts...)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("dashboard start failed")
	}

	waitForShutdown(ctx, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("dashboard did not stop cleanly")
	}
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// loadModel stops the process when the artifact cannot serve predictions.
func loadModel(ctx context.Context, c cfg.Settings, mw *metrics.MetricsWrapper) *ml.Model {
	model, err := ml.Load(ctx, c.ModelConfig(mw))
	if err != nil {
		log.Fatal().Err(err).
			Str("path", c.ModelPath).
			Str("format", c.ModelFormat).
			Msg("model load failed")
	}
	log.Info().
		Str("version", model.Metadata.Version).
		Str("format", model.Format).
		Str("source", model.Source).
		Msg("model loaded")
	return model
}

// initializeStorage opens the history store if DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without history")
		return nil
	}
	return store
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
