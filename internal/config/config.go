// Package config provides gitmemory's configuration, loaded from
// environment variables > .gitmemory/config.toml > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// knownModelDims is a per-model embedding dimension table for providers
// that don't report their own dimensionality.
var knownModelDims = map[string]int{
	"nomic-embed-text":        768,
	"mxbai-embed-large":       1024,
	"all-minilm":              384,
	"snowflake-arctic-embed":  1024,
	"snowflake-arctic-embed2": 768,
	"text-embedding-3-small":  1536,
	"text-embedding-3-large":  3072,
	"text-embedding-ada-002":  1536,
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "ollama" (default), "openai", "openai-compatible", "none"
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"` // 0 = resolved from knownModelDims
}

// LockConfig holds advisory-lock tuning.
type LockConfig struct {
	TimeoutMS int `toml:"timeout_ms"`
}

// ReindexConfig holds Sync Service batching.
type ReindexConfig struct {
	BatchSize int  `toml:"batch_size"`
	Watch     bool `toml:"watch"`
}

// RecallConfig holds Recall Service tuning.
type RecallConfig struct {
	SimilarityThreshold   float64 `toml:"similarity_threshold"`
	TokenBudget           int     `toml:"token_budget"`
	WorkingMemoryFraction float64 `toml:"working_memory_fraction"`
	DomainMergeThreshold  float64 `toml:"domain_merge_threshold"`
}

// HydrationConfig bounds FILES-level hydration.
type HydrationConfig struct {
	FileCap   int   `toml:"file_cap"`
	FileBytes int64 `toml:"file_bytes"`
}

// RemoteConfig controls sync_with_remote's default push behavior.
type RemoteConfig struct {
	Sync bool `toml:"sync"`
}

// ConsolidateConfig configures the optional LLM-powered consolidation/decay
// post-processor, a pluggable subsystem disabled by default: gitmemory's
// core semantics never depend on it being present.
type ConsolidateConfig struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// Config holds all gitmemory configuration.
type Config struct {
	DataDir      string             `toml:"data_dir"`
	NotesRefRoot string             `toml:"notes_ref_root"`
	Namespaces   []string           `toml:"namespaces"`
	Embedding    EmbeddingConfig    `toml:"embedding"`
	Lock         LockConfig         `toml:"lock"`
	Reindex      ReindexConfig      `toml:"reindex"`
	Recall       RecallConfig       `toml:"recall"`
	Hydration    HydrationConfig    `toml:"hydration"`
	Remote       RemoteConfig       `toml:"remote"`
	Consolidate  ConsolidateConfig  `toml:"consolidate"`
}

// DefaultConfig returns a Config with all built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      ".gitmemory/data",
		NotesRefRoot: "refs/notes/gitmemory",
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    "all-minilm",
		},
		Lock: LockConfig{
			TimeoutMS: 30_000,
		},
		Reindex: ReindexConfig{
			BatchSize: 32,
		},
		Recall: RecallConfig{
			SimilarityThreshold:   0.3,
			TokenBudget:           2000,
			WorkingMemoryFraction: 0.5,
			DomainMergeThreshold:  0.9,
		},
		Hydration: HydrationConfig{
			FileCap:   20,
			FileBytes: 64 * 1024,
		},
		Remote: RemoteConfig{
			Sync: false,
		},
		Consolidate: ConsolidateConfig{
			Enabled: false,
			Model:   "llama3.2",
		},
	}
}

// EmbeddingDim resolves the configured embedding dimensionality: an explicit
// cfg.Embedding.Dimensions wins, otherwise the known-model table, otherwise
// 384 (all-minilm's dimension, the default model).
func (c *Config) EmbeddingDim() int {
	if c.Embedding.Dimensions > 0 {
		return c.Embedding.Dimensions
	}
	if d, ok := knownModelDims[c.Embedding.Model]; ok {
		return d
	}
	return 384
}

// ConfigFilePath returns the TOML config path for a repository root.
func ConfigFilePath(repoRoot string) string {
	return filepath.Join(repoRoot, ".gitmemory", "config.toml")
}

// LoadConfig merges built-in defaults, the repository's
// .gitmemory/config.toml (if present), and environment variable overrides,
// in that order.
func LoadConfig(repoRoot string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigFilePath(repoRoot)
	if _, err := os.Stat(configPath); err == nil {
		meta, err := toml.DecodeFile(configPath, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
		warnUnknownKeys(meta, configPath)
	}

	applyEnvOverrides(cfg)

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(repoRoot, cfg.DataDir)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITMEM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("GITMEM_NOTES_REF_ROOT"); v != "" {
		cfg.NotesRefRoot = v
	}
	if v := os.Getenv("GITMEM_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("GITMEM_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("GITMEM_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("GITMEM_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if cfg.Embedding.APIKey == "" && strings.HasPrefix(cfg.Embedding.Provider, "openai") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("GITMEM_LOCK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Lock.TimeoutMS = n
		}
	}
	if v := os.Getenv("GITMEM_REINDEX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reindex.BatchSize = n
		}
	}
	if v := os.Getenv("GITMEM_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recall.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("GITMEM_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Recall.TokenBudget = n
		}
	}
	if v := os.Getenv("GITMEM_REMOTE_SYNC"); v != "" {
		cfg.Remote.Sync = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GITMEM_CONSOLIDATE"); v != "" {
		cfg.Consolidate.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("GITMEM_CONSOLIDATE_MODEL"); v != "" {
		cfg.Consolidate.Model = v
	}
}

// warnUnknownKeys logs (non-fatally) any TOML keys the config schema doesn't
// recognize, so typos in config files are visible without being fatal.
func warnUnknownKeys(meta toml.MetaData, path string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}
	for _, key := range undecoded {
		fmt.Fprintf(os.Stderr, "gitmem: warning: unknown config key %q in %s\n", key.String(), path)
	}
}

// UserDataDir returns the per-user global data directory (the "user" domain
// store lives here, independent of any single repository), following the
// standard XDG_DATA_HOME-or-fallback convention.
func UserDataDir() (string, error) {
	if v := os.Getenv("GITMEM_USER_DATA_DIR"); v != "" {
		return v, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "gitmemory"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(home, ".local", "share", "gitmemory"), nil
}

// NamespaceList returns the configured namespace names, or nil if the
// deployment uses the built-in default set (memtypes.DefaultNamespaces).
func (c *Config) NamespaceList() []string {
	return c.Namespaces
}
