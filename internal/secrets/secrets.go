// Package secrets resolves credentials that should not live in the config
// file: the embedding API key and the graph store password.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys.
const (
	KeyEmbeddingAPIKey = "embedding_api_key"
	KeyNeo4jPassword   = "neo4j_password"
)

// ErrNotFound means no backend holds the key.
var ErrNotFound = errors.New("secret not found")

// Provider is a read-only secret backend.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Name() string
}

// Config selects the primary backend. The environment is always consulted
// as a fallback.
type Config struct {
	// Provider is "env", "file" or "vault".
	Provider string
	// File is a JSON object of key/value pairs, for local development.
	File  string
	Vault VaultConfig
	// EnvPrefix defaults to RECALL_.
	EnvPrefix string
}

// Manager reads from a primary provider, falls back to the environment and
// caches hits.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds the configured backend.
func NewManager(cfg Config) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)

	var primary Provider
	switch cfg.Provider {
	case "", "env":
		primary = env
	case "file":
		p, err := NewFileProvider(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("file secrets: %w", err)
		}
		primary = p
	case "vault":
		p, err := NewVaultProvider(cfg.Vault)
		if err != nil {
			return nil, fmt.Errorf("vault secrets: %w", err)
		}
		primary = p
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}

	m := &Manager{primary: primary, cache: make(map[string]string)}
	if _, isEnv := primary.(*EnvProvider); !isEnv {
		m.fallback = env
	}
	return m, nil
}

// Get returns the secret for key from the primary provider or the
// environment.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	val, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		val, err := p.Get(ctx, key)
		if err == nil && val != "" {
			m.mu.Lock()
			m.cache[key] = val
			m.mu.Unlock()
			return val, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Fill sets every empty target from the secret of the same key. Targets that
// already hold a value are left alone; missing secrets are skipped.
func (m *Manager) Fill(ctx context.Context, targets map[string]*string) error {
	for key, dst := range targets {
		if dst == nil || *dst != "" {
			continue
		}
		val, err := m.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = val
	}
	return nil
}

// EnvProvider reads PREFIX_KEY, then KEY, from the environment.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "RECALL_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	upper := strings.ToUpper(key)
	if val := os.Getenv(p.prefix + upper); val != "" {
		return val, nil
	}
	if val := os.Getenv(upper); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s%s", ErrNotFound, p.prefix, upper)
}
