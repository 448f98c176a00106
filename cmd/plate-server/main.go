package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/menta2k/plate-reader/internal/bootstrap"
	"github.com/menta2k/plate-reader/internal/config"
	"github.com/menta2k/plate-reader/internal/logging"
	"github.com/menta2k/plate-reader/internal/server"
	"github.com/menta2k/plate-reader/pkg/pipeline"
)

func main() {
	var configPath, addr string
	var debug bool

	flag.StringVar(&configPath, "config", config.GetConfigPath(), "path to JSON config file")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if debug {
		cfg.Server.Debug = true
	}

	logger := logging.NewLogger("plate-server")
	logger.SetDebug(cfg.Server.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models, cleanup, err := bootstrap.BuildModels(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load models", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	p := pipeline.NewWithConfig(bootstrap.PipelineConfig(cfg))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(cfg.Server, p, models, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr,
			"max_concurrent_runs", cfg.Server.MaxConcurrentRuns,
			"request_timeout", cfg.RequestTimeout())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout()+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}
