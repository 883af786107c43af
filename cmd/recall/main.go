package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "recall",
		Short:         "Incident similarity search over stored error embeddings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/recall.yaml", "Config file path (optional)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve similarity queries over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	pipelineCmd := &cobra.Command{
		Use:   "init-pipeline",
		Short: "Wait for the indexing job and the service, then match alert logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitPipeline(cmd.Context(), configPath)
		},
	}

	var (
		serviceURL string
		topK       int
		topN       int
		threshold  float64
		jsonOutput bool
	)
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Query a running service for similar incidents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := searchOptions{serviceURL: serviceURL, jsonOutput: jsonOutput}
			if cmd.Flags().Changed("top-k") {
				opts.topK = &topK
			}
			if cmd.Flags().Changed("top-n") {
				opts.topN = &topN
			}
			if cmd.Flags().Changed("threshold") {
				opts.threshold = &threshold
			}
			return runSearch(cmd.Context(), configPath, args[0], opts)
		},
	}
	searchCmd.Flags().StringVar(&serviceURL, "url", "", "Service base URL (default pipeline.service_url)")
	searchCmd.Flags().IntVar(&topK, "top-k", 10, "Candidates to consider")
	searchCmd.Flags().IntVar(&topN, "top-n", 3, "Results to return")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0.6, "Minimum similarity score")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")

	var viaWorkflow bool
	reloadCmd := &cobra.Command{
		Use:   "reload",
		Short: "Rebuild the index of a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viaWorkflow {
				return runReloadWorkflow(cmd.Context(), configPath)
			}
			return runReload(cmd.Context(), configPath, serviceURL)
		},
	}
	reloadCmd.Flags().StringVar(&serviceURL, "url", "", "Service base URL (default pipeline.service_url)")
	reloadCmd.Flags().BoolVar(&viaWorkflow, "workflow", false, "Reload every temporal.reload_targets replica through the reload workflow")

	var seedInput string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load JSON-lines embedding records into the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), configPath, seedInput)
		},
	}
	seedCmd.Flags().StringVar(&seedInput, "input", "", "JSON-lines file (- for stdin)")
	_ = seedCmd.MarkFlagRequired("input")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("recall", version)
		},
	}

	rootCmd.AddCommand(serveCmd, pipelineCmd, searchCmd, reloadCmd, seedCmd, versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
