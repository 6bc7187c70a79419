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

	"github.com/kirillkom/fashion-recommender/internal/bootstrap"
	"github.com/kirillkom/fashion-recommender/internal/config"
	"github.com/kirillkom/fashion-recommender/internal/index"
	"github.com/kirillkom/fashion-recommender/internal/observability/logging"
	"github.com/kirillkom/fashion-recommender/internal/observability/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New("fashion-recommender-api", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "fashion-recommender-api",
		Endpoint:    cfg.OTelEndpoint,
		SampleRate:  cfg.OTelSampleRate,
		Enabled:     cfg.OTelEnabled,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		logger.Fatal("tracing init error", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("bootstrap error", zap.Error(err))
	}
	defer app.Close()

	// The listener only starts once every artifact has loaded.
	bundle, err := index.Load(ctx, cfg.IndexDir)
	if err != nil {
		logger.Fatal("index load error", zap.String("dir", cfg.IndexDir), zap.Error(err))
	}
	if _, err := app.Provider.Install(bundle); err != nil {
		logger.Fatal("index install error", zap.Error(err))
	}

	go func() {
		if err := app.WatchIndexEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("index event subscription stopped", zap.Error(err))
		}
	}()

	writeTimeout := cfg.RequestTimeout() + 10*time.Second
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           app.Router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", server.Addr), zap.String("index_version", bundle.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", zap.Error(err))
	}
}
