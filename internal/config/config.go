// Package config provides configuration loading for the tsunagu server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Graph     GraphConfig     `yaml:"graph"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Build     BuildConfig     `yaml:"build"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// IndexConfig holds the directory the vector index pairs persist under.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// GraphConfig holds HugeGraph server connection settings. Disabled runs the
// application without a graph store at all: graph-channel retrieval and the
// gremlin endpoint report themselves unavailable, vector retrieval still
// works.
type GraphConfig struct {
	URL            string `yaml:"url"`
	Name           string `yaml:"name"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Disabled       bool   `yaml:"disabled"`
}

// LLMConfig holds chat generation settings. APIKeyEnv names the environment
// variable holding the key; the key itself never lives in the file.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig holds embedder settings. Provider selects the backend:
// "onnx" (local model), "openai" (remote, BaseURL/Model/APIKeyEnv), or
// "mock" (deterministic, for tests and offline work).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

// RerankConfig holds remote reranker settings. An empty URL means the local
// lexical scorer is the only rerank method available.
type RerankConfig struct {
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetrievalConfig holds answer-path tuning knobs.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	GraphRatio     float64 `yaml:"graph_ratio"`
	MaxKeywords    int     `yaml:"max_keywords"`
	TopKPerKeyword int     `yaml:"top_k_per_keyword"`
	GraphDepth     int     `yaml:"graph_depth"`
	MaxGraphItems  int     `yaml:"max_graph_items"`
}

// BuildConfig holds knowledge-graph construction settings.
type BuildConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	FetchLimit   int `yaml:"fetch_limit"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	SyncOnStart bool     `yaml:"sync_on_start"`
}

// RecursiveOrDefault returns whether to watch recursively; true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, and
// expands relative paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory
// add/remove across restarts.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
