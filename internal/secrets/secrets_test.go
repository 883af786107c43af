package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider_PrefixThenBare(t *testing.T) {
	t.Setenv("RECALL_EMBEDDING_API_KEY", "prefixed")
	t.Setenv("NEO4J_PASSWORD", "bare")

	p := NewEnvProvider("")
	if v, err := p.Get(context.Background(), KeyEmbeddingAPIKey); err != nil || v != "prefixed" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if v, err := p.Get(context.Background(), KeyNeo4jPassword); err != nil || v != "bare" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if _, err := p.Get(context.Background(), "nonexistent_secret_xyz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func writeSecretsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileProvider(t *testing.T) {
	p, err := NewFileProvider(writeSecretsFile(t, `{"embedding_api_key":"sk-file"}`))
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}
	if v, err := p.Get(context.Background(), KeyEmbeddingAPIKey); err != nil || v != "sk-file" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if _, err := p.Get(context.Background(), KeyNeo4jPassword); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileProvider_Errors(t *testing.T) {
	if _, err := NewFileProvider(""); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewFileProvider(writeSecretsFile(t, "not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestManager_FileWithEnvFallback(t *testing.T) {
	t.Setenv("RECALL_NEO4J_PASSWORD", "from-env")

	m, err := NewManager(Config{Provider: "file", File: writeSecretsFile(t, `{"embedding_api_key":"sk-file"}`)})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	apiKey, password, untouched := "", "", "configured"
	err = m.Fill(context.Background(), map[string]*string{
		KeyEmbeddingAPIKey: &apiKey,
		KeyNeo4jPassword:   &password,
		"other":            &untouched,
		"missing":          new(string),
	})
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if apiKey != "sk-file" {
		t.Errorf("apiKey = %q, want sk-file", apiKey)
	}
	if password != "from-env" {
		t.Errorf("password = %q, want from-env", password)
	}
	if untouched != "configured" {
		t.Errorf("configured value overwritten: %q", untouched)
	}
}

func TestManager_UnknownProvider(t *testing.T) {
	if _, err := NewManager(Config{Provider: "kms"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestVaultProvider(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/recall" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"data":{"embedding_api_key":"sk-vault","port":7687}}}`))
	}))
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "root"})
	if err != nil {
		t.Fatalf("NewVaultProvider: %v", err)
	}
	ctx := context.Background()
	if v, err := p.Get(ctx, KeyEmbeddingAPIKey); err != nil || v != "sk-vault" {
		t.Fatalf("Get = %q, %v", v, err)
	}
	if v, err := p.Get(ctx, "port"); err != nil || v != "7687" {
		t.Fatalf("Get(port) = %q, %v", v, err)
	}
	if _, err := p.Get(ctx, KeyNeo4jPassword); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("vault fetched %d times, want 1", calls)
	}
}

func TestVaultProvider_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "bad"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Get(context.Background(), KeyEmbeddingAPIKey)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want vault error", err)
	}
}

func TestNewVaultProvider_RequiresToken(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "")
	if _, err := NewVaultProvider(VaultConfig{Address: "http://localhost:8200"}); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewVaultProvider(VaultConfig{Token: "x"}); err == nil {
		t.Error("expected error without address")
	}
}
