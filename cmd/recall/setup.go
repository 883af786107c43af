package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/recall/internal/config"
	"github.com/efebarandurmaz/recall/internal/embedding"
	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/secrets"
	"github.com/efebarandurmaz/recall/internal/store"
	"github.com/efebarandurmaz/recall/internal/store/neo4j"
	"github.com/efebarandurmaz/recall/internal/store/qdrant"
	"github.com/efebarandurmaz/recall/internal/store/sqlite"
)

// setup loads configuration, installs the process logger and fills empty
// credentials from the secrets backend.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.SetupLogging(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	m, err := secrets.NewManager(secrets.Config{
		Provider: cfg.Secrets.Provider,
		File:     cfg.Secrets.File,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			MountPath:  cfg.Secrets.Vault.MountPath,
			SecretPath: cfg.Secrets.Vault.SecretPath,
		},
	})
	if err != nil {
		return err
	}
	return m.Fill(ctx, map[string]*string{
		secrets.KeyEmbeddingAPIKey: &cfg.Embedding.APIKey,
		secrets.KeyNeo4jPassword:   &cfg.Store.Neo4j.Password,
	})
}

func initTracing(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	return observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "recall",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
}

// openStore connects the configured backend. Connections are lazy where the
// driver allows it so a store that is not up yet does not block startup.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Reader, error) {
	switch cfg.Backend {
	case "", "sqlite":
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		s, err := sqlite.New(db, cfg.SQLite.Table)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	case "qdrant":
		s, err := qdrant.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "neo4j":
		s, err := neo4j.New(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database, cfg.Neo4j.Label)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// newQueryEmbedder wires the HTTP client, rate limit, retries and query
// prefixing. Each retry attempt passes through the limiter.
func newQueryEmbedder(cfg config.EmbeddingConfig, m *observability.RecallMetrics, logger *slog.Logger) *embedding.QueryEmbedder {
	client := embedding.NewClient(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.Timeout)
	retryCfg := embedding.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		retryCfg.Timeout = cfg.Timeout
	}
	return embedding.NewQueryEmbedder(
		embedding.NewRetryProvider(embedding.NewRateLimitProvider(client, cfg.RequestsPerMinute, cfg.Burst), retryCfg),
		cfg.Model,
		embedding.WithTaskPrefix(cfg.TaskPrefix),
		embedding.WithMetrics(m),
		embedding.WithLogger(logger),
	)
}
