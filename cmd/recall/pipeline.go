package main

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/recall/internal/client"
	"github.com/efebarandurmaz/recall/internal/jobs"
	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/pipeline"
	"github.com/efebarandurmaz/recall/internal/temporal"
)

func runInitPipeline(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}

	tp, err := initTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tc, err := temporal.Dial(cfg.Temporal.Host, cfg.Temporal.Namespace, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	waiter := jobs.NewWaiter(temporal.NewStatusSource(tc),
		jobs.WithPollInterval(cfg.Pipeline.JobPollInterval),
		jobs.WithLogger(logger),
		jobs.WithMetrics(observability.Metrics()),
	)

	svc := client.New(cfg.Pipeline.ServiceURL, cfg.Embedding.Timeout).WithLogger(logger)
	serviceWait := pipeline.ServiceWaiterFunc(func(ctx context.Context) error {
		return svc.WaitReady(ctx, cfg.Pipeline.ServiceWaitTimeout, cfg.Index.PollInterval)
	})

	namespace := cfg.Pipeline.JobNamespace
	if namespace == "" {
		namespace = cfg.Temporal.Namespace
	}
	coord := pipeline.NewCoordinator(waiter, serviceWait, pipeline.Config{
		JobName:         cfg.Pipeline.JobName,
		Namespace:       namespace,
		JobMaxWait:      cfg.Pipeline.JobMaxWait,
		MonitorInterval: cfg.Pipeline.MonitorInterval,
		Logger:          logger,
	})

	steps := &pipeline.AlertSteps{
		DataDir:   cfg.Pipeline.DataDir,
		AlertsDir: cfg.Pipeline.AlertsDir,
		Searcher:  svc,
		Logger:    logger,
	}
	if err := pipeline.Run(ctx, coord, steps.Steps()); err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	return nil
}
