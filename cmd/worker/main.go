package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/efebarandurmaz/recall/internal/client"
	"github.com/efebarandurmaz/recall/internal/config"
	"github.com/efebarandurmaz/recall/internal/observability"
	temporalmod "github.com/efebarandurmaz/recall/internal/temporal"
)

func main() {
	configPath := "configs/recall.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := observability.SetupLogging(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	c, err := temporalmod.Dial(cfg.Temporal.Host, cfg.Temporal.Namespace, logger)
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	acts := &temporalmod.Activities{Reloader: client.Reloader{Timeout: 5 * time.Minute}}
	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue, acts)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Reload worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Reload worker stopped")
}
