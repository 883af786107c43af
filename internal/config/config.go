package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Index     IndexConfig     `mapstructure:"index"`
	Store     StoreConfig     `mapstructure:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

// IndexConfig controls building and reloading the in-memory index.
type IndexConfig struct {
	Dimension    int           `mapstructure:"dimension"`
	ModelName    string        `mapstructure:"model_name"`
	Normalize    bool          `mapstructure:"normalize"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	LogEvery     time.Duration `mapstructure:"log_every"`

	// WatchPath, when set, triggers a reload whenever the file changes.
	WatchPath string `mapstructure:"watch_path"`
}

// StoreConfig selects the vector record backend.
type StoreConfig struct {
	Backend string       `mapstructure:"backend"` // sqlite, qdrant or neo4j
	SQLite  SQLiteConfig `mapstructure:"sqlite"`
	Qdrant  QdrantConfig `mapstructure:"qdrant"`
	Neo4j   Neo4jConfig  `mapstructure:"neo4j"`
}

type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Label    string `mapstructure:"label"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	TaskPrefix string        `mapstructure:"task_prefix"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	// RequestsPerMinute caps calls to the provider. Zero is unlimited.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// SearchConfig holds request defaults.
type SearchConfig struct {
	TopK      int     `mapstructure:"top_k"`
	TopN      int     `mapstructure:"top_n"`
	Threshold float64 `mapstructure:"threshold"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PipelineConfig drives the init-pipeline command.
type PipelineConfig struct {
	JobName            string        `mapstructure:"job_name"`
	JobNamespace       string        `mapstructure:"job_namespace"`
	JobMaxWait         time.Duration `mapstructure:"job_max_wait"`
	JobPollInterval    time.Duration `mapstructure:"job_poll_interval"`
	MonitorInterval    time.Duration `mapstructure:"monitor_interval"`
	ServiceURL         string        `mapstructure:"service_url"`
	ServiceWaitTimeout time.Duration `mapstructure:"service_wait_timeout"`
	DataDir            string        `mapstructure:"data_dir"`
	AlertsDir          string        `mapstructure:"alerts_dir"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// ReloadTargets are the service URLs the reload workflow visits.
	ReloadTargets []string `mapstructure:"reload_targets"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// SecretsConfig selects where empty credentials are resolved from.
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env, file or vault
	File     string      `mapstructure:"file"`
	Vault    VaultConfig `mapstructure:"vault"`
}

type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Index.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("index dimension %d must be positive", c.Index.Dimension))
	}
	if c.Index.PollInterval <= 0 {
		warnings = append(warnings, "index poll_interval is not positive; background loading will spin")
	}
	if c.Index.MaxWait > 0 && c.Index.MaxWait < c.Index.PollInterval {
		warnings = append(warnings, fmt.Sprintf("index max_wait %s is shorter than poll_interval %s", c.Index.MaxWait, c.Index.PollInterval))
	}

	switch c.Store.Backend {
	case "", "sqlite", "qdrant", "neo4j":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown store backend '%s'", c.Store.Backend))
	}

	if c.Search.TopK < 1 || c.Search.TopK > 100 {
		warnings = append(warnings, fmt.Sprintf("search top_k %d is outside [1, 100]", c.Search.TopK))
	}
	if c.Search.TopN < 1 || c.Search.TopN > 20 {
		warnings = append(warnings, fmt.Sprintf("search top_n %d is outside [1, 20]", c.Search.TopN))
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		warnings = append(warnings, fmt.Sprintf("search threshold %.2f is outside [0.0, 1.0]", c.Search.Threshold))
	}

	switch c.Secrets.Provider {
	case "", "env", "file", "vault":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown secrets provider '%s'", c.Secrets.Provider))
	}

	if c.Embedding.BaseURL == "" {
		warnings = append(warnings, "embedding base_url is empty; queries will fail")
	}

	return warnings
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("index.dimension", 768)
	v.SetDefault("index.model_name", "nomic-embed-text")
	v.SetDefault("index.normalize", false)
	v.SetDefault("index.poll_interval", 5*time.Second)
	v.SetDefault("index.max_wait", 10*time.Minute)
	v.SetDefault("index.log_every", 30*time.Second)
	v.SetDefault("index.watch_path", "")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite.path", "data/recall.db")
	v.SetDefault("store.sqlite.table", "ragembedding")
	v.SetDefault("store.qdrant.host", "localhost")
	v.SetDefault("store.qdrant.port", 6334)
	v.SetDefault("store.qdrant.collection", "ragembedding")
	v.SetDefault("store.neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("store.neo4j.username", "neo4j")
	v.SetDefault("store.neo4j.password", "")
	v.SetDefault("store.neo4j.database", "")
	v.SetDefault("store.neo4j.label", "RagEmbedding")

	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.task_prefix", "search_query: ")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.requests_per_minute", 0)
	v.SetDefault("embedding.burst", 5)

	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.top_n", 3)
	v.SetDefault("search.threshold", 0.6)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("pipeline.job_name", "embedding-indexer")
	v.SetDefault("pipeline.job_namespace", "default")
	v.SetDefault("pipeline.job_max_wait", 30*time.Minute)
	v.SetDefault("pipeline.job_poll_interval", 10*time.Second)
	v.SetDefault("pipeline.monitor_interval", 30*time.Second)
	v.SetDefault("pipeline.service_url", "http://localhost:8080")
	v.SetDefault("pipeline.service_wait_timeout", 5*time.Minute)
	v.SetDefault("pipeline.data_dir", "data")
	v.SetDefault("pipeline.alerts_dir", "alerts")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "recall-reload")
	v.SetDefault("temporal.reload_targets", []string{"http://localhost:8080"})

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.vault.address", "")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.mount_path", "secret")
	v.SetDefault("secrets.vault.secret_path", "recall")
}

// Load reads configuration from an optional file and the environment.
// An empty path uses defaults plus RECALL_* variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
