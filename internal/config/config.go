package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks configuration problems that must stop the process
// before any run begins.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all dossier configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation capability
	LLM LLMConfig `yaml:"llm"`

	// Retrieval capability
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`

	// Stage tuning
	Research ResearchConfig `yaml:"research"`
	Writer   WriterConfig   `yaml:"writer"`
	Verifier VerifierConfig `yaml:"verifier"`

	// Persistence and tooling
	History HistoryConfig `yaml:"history"`
	Eval    EvalConfig    `yaml:"eval"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dossier",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-20250514",
			BaseURL:  "https://api.anthropic.com/v1",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_QUERY",
		},

		Retrieval: RetrievalConfig{
			DatabasePath: "data/index.db",
			TopK:         4,
		},

		Ingest: IngestConfig{
			DataDir:      "data/docs",
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    32,
		},

		Research: ResearchConfig{
			Workers:     1,
			NoteMaxLen:  500,
			Temperature: 0.1,
		},

		Writer: WriterConfig{
			Temperature:  0.3,
			PromptNotes:  10,
			DefaultOwner: "Team Lead",
		},

		Verifier: VerifierConfig{
			PreviewFindings: 10,
			PreviewChars:    200,
		},

		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: "data/history.db",
		},

		Eval: EvalConfig{
			Parallelism:   2,
			CostPerToken:  0.000003,
			QueriesFile:   "eval/test_queries.json",
			ResultsPrefix: "eval_results",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    ".dossier/logs",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (later entries win)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" || c.LLM.APIKey == "" {
			c.LLM.APIKey = key
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if model := os.Getenv("DOSSIER_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}

	// Database paths from environment
	if path := os.Getenv("DOSSIER_INDEX_DB"); path != "" {
		c.Retrieval.DatabasePath = path
	}
	if path := os.Getenv("DOSSIER_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Embedding.validate(); err != nil {
		return err
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval.top_k must be positive, got %d", ErrInvalidConfig, c.Retrieval.TopK)
	}
	if c.Retrieval.DatabasePath == "" {
		return fmt.Errorf("%w: retrieval.database_path is required", ErrInvalidConfig)
	}
	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("%w: history.database_path is required when history is enabled", ErrInvalidConfig)
	}
	return nil
}
