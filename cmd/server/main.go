package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ephram/relay/internal/analytics"
	"github.com/ephram/relay/internal/config"
	"github.com/ephram/relay/internal/logger"
	"github.com/ephram/relay/internal/platform/otel"
	"github.com/ephram/relay/internal/server"
	"github.com/ephram/relay/internal/store/sqlite"
	"github.com/ephram/relay/internal/version"

	// Import backends to trigger init() registration.
	_ "github.com/ephram/relay/internal/llm/cloud"
	_ "github.com/ephram/relay/internal/llm/selfhosted"
)

func main() {
	log := logger.Get()
	defer logger.Sync()

	go version.CheckForUpdates()

	workspace, err := os.Getwd()
	if err != nil {
		log.Fatal("cannot determine working directory", zap.Error(err))
	}

	cfg, err := config.Load(workspace)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	opts := []server.Option{server.WithVersion(version.Version)}

	if cfg.Usage.Enabled {
		dsn := cfg.Usage.Path
		if dsn == "" {
			dsn = "relay-usage.db"
		}
		repo, err := sqlite.NewStorage(dsn)
		if err != nil {
			log.Fatal("failed to open usage store", zap.Error(err))
		}
		defer func() {
			_ = repo.Close()
		}()
		opts = append(opts, server.WithAnalytics(analytics.NewService(repo, log)))
	}

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer("relay", log, os.Stdout)
		if err != nil {
			log.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	srv, err := server.New(cfg, workspace, log, opts...)
	if err != nil {
		log.Fatal("failed to initialize server", zap.Error(err))
	}

	if _, _, err := srv.Start(); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}
