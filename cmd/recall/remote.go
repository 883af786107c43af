package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/recall/internal/client"
	"github.com/efebarandurmaz/recall/internal/service"
	"github.com/efebarandurmaz/recall/internal/temporal"
)

type searchOptions struct {
	serviceURL string
	topK       *int
	topN       *int
	threshold  *float64
	jsonOutput bool
}

func runSearch(ctx context.Context, configPath, query string, opts searchOptions) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	url := opts.serviceURL
	if url == "" {
		url = cfg.Pipeline.ServiceURL
	}

	resp, err := client.New(url, cfg.Embedding.Timeout).WithLogger(logger).Search(ctx, service.QueryRequest{
		Query:               query,
		TopK:                opts.topK,
		TopN:                opts.topN,
		SimilarityThreshold: opts.threshold,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Printf("%d result(s) in %.1fms\n", resp.Metadata.NumResults, resp.Metadata.SearchTimeMS)
	for i, r := range resp.Results {
		fmt.Printf("\n%d. [%.3f] %s  %s\n", i+1, r.SimilarityScore, r.ErrorID, r.ErrorTitle)
		if r.SourceFile != nil {
			if r.Page != nil {
				fmt.Printf("   source: %s (page %d)\n", *r.SourceFile, *r.Page)
			} else {
				fmt.Printf("   source: %s\n", *r.SourceFile)
			}
		}
	}
	return nil
}

func runReload(ctx context.Context, configPath, serviceURL string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	if serviceURL == "" {
		serviceURL = cfg.Pipeline.ServiceURL
	}
	resp, err := client.New(serviceURL, 5*time.Minute).WithLogger(logger).Reload(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s (%d records, snapshot %s)\n", resp.Status, resp.Message, resp.IndexSize, resp.SnapshotID)
	return nil
}

// runReloadWorkflow starts the reload workflow over every configured
// replica and waits for it.
func runReloadWorkflow(ctx context.Context, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	tc, err := temporal.Dial(cfg.Temporal.Host, cfg.Temporal.Namespace, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	run, err := tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        "recall-reload-" + uuid.NewString(),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporal.ReloadWorkflowName, temporal.ReloadInput{ServiceURLs: cfg.Temporal.ReloadTargets})
	if err != nil {
		return fmt.Errorf("starting reload workflow: %w", err)
	}
	logger.Info("reload workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out temporal.ReloadOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("reload workflow: %w", err)
	}
	for url, res := range out.Snapshots {
		fmt.Printf("%s: snapshot %s (%d records)\n", url, res.SnapshotID, res.Records)
	}
	return nil
}
