package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/efebarandurmaz/recall/internal/index"
	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/readiness"
	"github.com/efebarandurmaz/recall/internal/server"
	"github.com/efebarandurmaz/recall/internal/service"
	"github.com/efebarandurmaz/recall/internal/watch"
)

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	if observability.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	metrics := observability.Metrics()

	reader, err := openStore(ctx, cfg.Store)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	builder := index.NewBuilder(index.BuilderConfig{
		Dimension: cfg.Index.Dimension,
		ModelName: cfg.Index.ModelName,
		Normalize: cfg.Index.Normalize,
		Logger:    logger,
	})
	orch := readiness.New(builder, reader, readiness.Config{
		PollInterval: cfg.Index.PollInterval,
		MaxWait:      cfg.Index.MaxWait,
		LogEvery:     cfg.Index.LogEvery,
		Logger:       logger,
		Metrics:      metrics,
	})

	svc := service.New(orch, newQueryEmbedder(cfg.Embedding, metrics, logger), service.Config{
		Defaults: service.Defaults{
			TopK:      cfg.Search.TopK,
			TopN:      cfg.Search.TopN,
			Threshold: cfg.Search.Threshold,
		},
		Version: version,
		Metrics: metrics,
		Logger:  logger,
	})
	srv := server.NewHTTPServer(cfg.Server.Addr, server.NewRouter(svc, server.RouterConfig{
		Logger:  logger,
		Metrics: metrics.Handler(),
	}))

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	shutdown.Register(server.HTTPServerShutdownHook("http", srv.Shutdown))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	orch.Start(runCtx)
	shutdown.Register(server.BackgroundShutdownHook("index-loader", orch.Stop))

	if cfg.Index.WatchPath != "" {
		w, err := watch.New(cfg.Index.WatchPath, func(ctx context.Context) error {
			_, err := orch.Reload(ctx)
			return err
		}, watch.DefaultDebounce, logger)
		if err != nil {
			logger.Warn("store watch disabled", "path", cfg.Index.WatchPath, "error", err)
		} else {
			watchCtx, stopWatch := context.WithCancel(runCtx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = w.Run(watchCtx)
			}()
			shutdown.Register(server.BackgroundShutdownHook("watcher", func() {
				stopWatch()
				<-done
			}))
		}
	}

	shutdown.Register(server.StoreShutdownHook(reader.Close))
	shutdown.Register(server.TracingShutdownHook(tp.Shutdown))
	shutdown.Start()

	go func() {
		logger.Info("recall listening", "addr", srv.Addr, "backend", cfg.Store.Backend, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			shutdown.Shutdown()
		}
	}()

	err = shutdown.Wait()
	logger.Info("recall stopped")
	return err
}
