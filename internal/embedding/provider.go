package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	langchainopenai "github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/helper"
)

// Provider turns a batch of texts into vectors, one per text and in input order.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates the embedding provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.LLMConfig) (Provider, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("base_url", cfg.BaseURL).
		Str("model", cfg.Model).
		Int("dimensions", cfg.Dimensions).
		Msg("Creating embedding provider")

	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		provider = NewOpenAIProvider(cfg)
	case config.ProviderOpenAICompatible:
		provider, err = NewOpenAICompatibleEmbedder(cfg)
	case config.ProviderOllama:
		provider, err = NewOllamaEmbedder(cfg)
	case config.ProviderGemini:
		provider, err = NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// OpenAIProvider calls the OpenAI embeddings endpoint with the official SDK.
type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
}

func NewOpenAIProvider(cfg *config.LLMConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimPrefix(cfg.Key, "Bearer ")),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

// NewOpenAICompatibleEmbedder creates a langchaingo embedder for any OpenAI compatible endpoint.
func NewOpenAICompatibleEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := langchainopenai.New(
		langchainopenai.WithBaseURL(cfg.BaseURL),
		langchainopenai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		langchainopenai.WithEmbeddingModel(cfg.Model),
		langchainopenai.WithHTTPClient(helper.NewHTTPClient(cfg.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding LLM: %w", err)
	}
	return newLangchainEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(helper.NewHTTPClient(cfg.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	return newLangchainEmbedder(llm)
}

// Batching is done by Embedder, so langchaingo gets the whole batch at once and
// must leave newlines in place.
func newLangchainEmbedder(client embeddings.EmbedderClient) (*embeddings.EmbedderImpl, error) {
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(maxProviderBatch),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// GeminiProvider embeds texts through the Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGeminiProvider(ctx context.Context, cfg *config.LLMConfig) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:      cfg.Key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		clientConfig.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (p *GeminiProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var embedConfig *genai.EmbedContentConfig
	if p.dimensions > 0 {
		outputDim := int32(p.dimensions)
		embedConfig = &genai.EmbedContentConfig{OutputDimensionality: &outputDim}
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	vectors := make([][]float32, 0, len(result.Embeddings))
	for _, e := range result.Embeddings {
		if e == nil {
			vectors = append(vectors, nil)
			continue
		}
		vectors = append(vectors, e.Values)
	}
	return vectors, nil
}
