package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderOllama           = "ollama"
	ProviderGemini           = "gemini"

	BackendMemory   = "memory"
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

// LLMConfig configures a model endpoint used for embeddings or inference.
type LLMConfig struct {
	Provider   string        `yaml:"provider" validate:"omitempty,oneof=openai openai-compatible ollama gemini"`
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Key        string        `yaml:"key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions" validate:"gte=0"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// RAGConfig holds chunking, embedding and retrieval parameters.
type RAGConfig struct {
	MinContentLength int           `yaml:"min_content_length" validate:"gte=1"`
	MaxChunkSize     int           `yaml:"max_chunk_size" validate:"gtfield=MinFlushSize"`
	MinFlushSize     int           `yaml:"min_flush_size" validate:"gte=0"`
	BatchSize        int           `yaml:"batch_size" validate:"gte=1"`
	BatchDelay       time.Duration `yaml:"batch_delay" validate:"gte=0"`
	MaxQueryLength   int           `yaml:"max_query_length" validate:"gte=1"`
	TopK             int           `yaml:"top_k" validate:"gte=1"`
	MinScore         *float64      `yaml:"min_score" validate:"omitempty,gte=-1,lte=1"`
	Backend          string        `yaml:"backend" validate:"oneof=memory chromem postgres"`
	EmbeddingsPath   string        `yaml:"embeddings_path" validate:"required"`
	DegradeOnError   bool          `yaml:"degrade_on_error"`
}

// Score returns the configured minimum similarity.
func (r RAGConfig) Score() float64 {
	if r.MinScore == nil {
		return 0.3
	}
	return *r.MinScore
}

// ChromemConfig configures the chromem-go mirror of the store.
type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection" validate:"required"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,len=32"`
}

// DatabaseConfig configures the postgres/pgvector backend.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	InferenceLLM LLMConfig      `yaml:"inference_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Chromem      ChromemConfig  `yaml:"chromem"`
	Database     DatabaseConfig `yaml:"database"`
	Log          LogConfig      `yaml:"log"`
}

// LoadConfig reads the YAML file at path, expanding ${VAR} references from the
// environment. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of the whole configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// Gemini only serves embeddings; chat goes through langchaingo.
	if c.InferenceLLM.Provider == ProviderGemini {
		return fmt.Errorf("invalid config: inference_llm.provider %q is embedding-only", c.InferenceLLM.Provider)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		EmbedLLM: LLMConfig{
			Provider:   ProviderOpenAI,
			Key:        os.Getenv("OPENAI_API_KEY"),
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		InferenceLLM: LLMConfig{
			Provider: ProviderOpenAI,
			Key:      os.Getenv("OPENAI_API_KEY"),
			Model:    "gpt-4o-mini",
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.InferenceLLM} {
		if llm.Provider == "" {
			llm.Provider = ProviderOpenAI
		}
		if llm.Timeout == 0 {
			llm.Timeout = 30 * time.Second
		}
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "text-embedding-3-small"
	}

	r := &cfg.RAG
	if r.MinContentLength == 0 {
		r.MinContentLength = 100
	}
	if r.MaxChunkSize == 0 {
		r.MaxChunkSize = 1500
	}
	if r.MinFlushSize == 0 {
		r.MinFlushSize = 300
	}
	if r.BatchSize == 0 {
		r.BatchSize = 20
	}
	if r.BatchDelay == 0 {
		r.BatchDelay = 200 * time.Millisecond
	}
	if r.MaxQueryLength == 0 {
		r.MaxQueryLength = 8000
	}
	if r.TopK == 0 {
		r.TopK = 8
	}
	if r.MinScore == nil {
		score := 0.3
		r.MinScore = &score
	}
	if r.Backend == "" {
		r.Backend = BackendMemory
	}
	if r.EmbeddingsPath == "" {
		r.EmbeddingsPath = "./data/megatrends-with-embeddings.json"
	}

	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "./chromemdb"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "megatrends"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
