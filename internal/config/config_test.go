package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %q", cfg.Embedding.Provider)
	}
	if cfg.Lock.TimeoutMS != 30_000 {
		t.Errorf("expected default lock timeout 30000ms, got %d", cfg.Lock.TimeoutMS)
	}
	if cfg.Recall.DomainMergeThreshold != 0.9 {
		t.Errorf("expected default domain merge threshold 0.9, got %v", cfg.Recall.DomainMergeThreshold)
	}
}

func TestEmbeddingDim(t *testing.T) {
	tests := []struct {
		name  string
		cfg   EmbeddingConfig
		want  int
	}{
		{"explicit wins", EmbeddingConfig{Model: "nomic-embed-text", Dimensions: 512}, 512},
		{"known model", EmbeddingConfig{Model: "mxbai-embed-large"}, 1024},
		{"unknown model falls back", EmbeddingConfig{Model: "some-custom-model"}, 768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Embedding: tt.cfg}
			if got := cfg.EmbeddingDim(); got != tt.want {
				t.Errorf("EmbeddingDim() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantDataDir := filepath.Join(dir, ".gitmemory", "data")
	if cfg.DataDir != wantDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
}

func TestLoadConfig_ReadsTOMLFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".gitmemory"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
data_dir = "custom/data"

[embedding]
provider = "openai"
model = "text-embedding-3-small"

[recall]
token_budget = 4000
`
	if err := os.WriteFile(ConfigFilePath(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Embedding.Provider = %q, want openai", cfg.Embedding.Provider)
	}
	if cfg.Recall.TokenBudget != 4000 {
		t.Errorf("Recall.TokenBudget = %d, want 4000", cfg.Recall.TokenBudget)
	}
	wantDataDir := filepath.Join(dir, "custom/data")
	if cfg.DataDir != wantDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".gitmemory"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
[embedding]
model = "nomic-embed-text"
`
	if err := os.WriteFile(ConfigFilePath(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GITMEM_EMBED_MODEL", "mxbai-embed-large")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Model != "mxbai-embed-large" {
		t.Errorf("Embedding.Model = %q, want env override mxbai-embed-large", cfg.Embedding.Model)
	}
}

func TestLoadConfig_UnknownKeyWarnsNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".gitmemory"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
totally_unknown_key = "whatever"
`
	if err := os.WriteFile(ConfigFilePath(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(dir); err != nil {
		t.Fatalf("unknown key should warn, not fail: %v", err)
	}
}

func TestUserDataDir_EnvOverride(t *testing.T) {
	t.Setenv("GITMEM_USER_DATA_DIR", "/tmp/gitmem-user-data")
	got, err := UserDataDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "/tmp/gitmem-user-data" {
		t.Errorf("UserDataDir() = %q, want override", got)
	}
}

func TestUserDataDir_XDGDataHome(t *testing.T) {
	os.Unsetenv("GITMEM_USER_DATA_DIR")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	got, err := UserDataDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join("/tmp/xdg-data", "gitmemory")
	if got != want {
		t.Errorf("UserDataDir() = %q, want %q", got, want)
	}
}
