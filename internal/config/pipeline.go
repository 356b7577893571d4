package config

import "fmt"

// EmbeddingConfig selects the embedding engine used by the chunk index.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // ollama, genai

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// TaskType for GenAI: SEMANTIC_SIMILARITY, RETRIEVAL_QUERY, RETRIEVAL_DOCUMENT
	TaskType string `yaml:"task_type"`
}

func (c EmbeddingConfig) validate() error {
	switch c.Provider {
	case "ollama":
		return nil
	case "genai":
		if c.GenAIAPIKey == "" {
			return fmt.Errorf("%w: embedding provider genai requires genai_api_key or GEMINI_API_KEY", ErrInvalidConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported embedding provider: %s (use 'ollama' or 'genai')", ErrInvalidConfig, c.Provider)
	}
}

// RetrievalConfig configures the persisted chunk index.
type RetrievalConfig struct {
	DatabasePath string `yaml:"database_path"`
	TopK         int    `yaml:"top_k"`
	// RequireVec fails startup when the sqlite-vec extension is missing
	// instead of falling back to in-process cosine distance.
	RequireVec bool `yaml:"require_vec"`
}

// IngestConfig configures document loading and chunking.
type IngestConfig struct {
	DataDir      string `yaml:"data_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	BatchSize    int    `yaml:"batch_size"` // embedding batch size
}

// ResearchConfig tunes the Researcher stage.
type ResearchConfig struct {
	// Workers > 1 fans sub-queries out concurrently.
	Workers     int     `yaml:"workers"`
	NoteMaxLen  int     `yaml:"note_max_len"`
	Temperature float64 `yaml:"temperature"`
}

// WriterConfig tunes the Writer stage.
type WriterConfig struct {
	Temperature  float64 `yaml:"temperature"`
	PromptNotes  int     `yaml:"prompt_notes"`
	DefaultOwner string  `yaml:"default_owner"`
}

// VerifierConfig tunes the Verifier stage.
type VerifierConfig struct {
	PreviewFindings int `yaml:"preview_findings"`
	PreviewChars    int `yaml:"preview_chars"`
}

// HistoryConfig configures run history persistence.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// EvalConfig configures batch evaluation.
type EvalConfig struct {
	Parallelism   int     `yaml:"parallelism"`
	CostPerToken  float64 `yaml:"cost_per_token"`
	QueriesFile   string  `yaml:"queries_file"`
	ResultsPrefix string  `yaml:"results_prefix"`
}
