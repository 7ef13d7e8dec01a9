package embedding

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/models"
)

const (
	defaultBatchSize      = 20
	defaultMaxQueryLength = 8000

	// upper bound handed to langchaingo so it never re-splits a batch
	maxProviderBatch = 2048
)

// ProviderError reports a failed provider call. Batch is the zero-based batch
// index, or -1 for a query embedding.
type ProviderError struct {
	Batch int
	Err   error
}

func (e *ProviderError) Error() string {
	if e.Batch < 0 {
		return fmt.Sprintf("embedding provider failed for query: %v", e.Err)
	}
	return fmt.Sprintf("embedding provider failed for batch %d: %v", e.Batch, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Embedder batches chunk texts through a Provider and embeds queries.
type Embedder struct {
	provider       Provider
	model          string
	batchSize      int
	batchDelay     time.Duration
	maxQueryLength int
}

// NewEmbedder wraps provider. Non-positive sizes fall back to 20 texts per batch
// and 8000-rune queries.
func NewEmbedder(provider Provider, model string, cfg config.RAGConfig) *Embedder {
	e := &Embedder{
		provider:       provider,
		model:          model,
		batchSize:      cfg.BatchSize,
		batchDelay:     cfg.BatchDelay,
		maxQueryLength: cfg.MaxQueryLength,
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	if e.batchDelay < 0 {
		e.batchDelay = 0
	}
	if e.maxQueryLength <= 0 {
		e.maxQueryLength = defaultMaxQueryLength
	}
	return e
}

// Model is the embedding model identifier recorded in the store.
func (e *Embedder) Model() string {
	return e.model
}

// EmbeddingText is the text sent to the provider for a chunk.
func EmbeddingText(chunk models.Chunk) string {
	return chunk.Title + models.TitleSeparator + chunk.Content
}

// EmbedChunks returns copies of chunks with their Embedding set. Any failed batch
// aborts the whole run.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.Chunk, error) {
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)

	dimensions := 0
	batches := (len(chunks) + e.batchSize - 1) / e.batchSize
	for batch := 0; batch < batches; batch++ {
		if batch > 0 && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.batchDelay):
			}
		}

		start := batch * e.batchSize
		end := min(start+e.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, EmbeddingText(c))
		}

		log.Info().Int("batch", batch+1).Int("of", batches).Int("size", len(texts)).Msg("Embedding batch")
		started := time.Now()
		vectors, err := e.provider.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, &ProviderError{Batch: batch, Err: err}
		}
		if len(vectors) != len(texts) {
			return nil, &ProviderError{Batch: batch, Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))}
		}
		for i, vec := range vectors {
			if len(vec) == 0 {
				return nil, &ProviderError{Batch: batch, Err: fmt.Errorf("empty embedding for %s", chunks[start+i].ID)}
			}
			if dimensions == 0 {
				dimensions = len(vec)
			}
			if len(vec) != dimensions {
				return nil, &ProviderError{Batch: batch, Err: fmt.Errorf("embedding for %s has %d dimensions, expected %d", chunks[start+i].ID, len(vec), dimensions)}
			}
			out[start+i].Embedding = vec
		}
		log.Debug().Int("batch", batch+1).Dur("took", time.Since(started)).Int("dimensions", dimensions).Msg("Embedded batch")
	}
	return out, nil
}

// EmbedQuery embeds a search query, truncated to the configured number of runes.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if utf8.RuneCountInString(query) > e.maxQueryLength {
		query = truncateRunes(query, e.maxQueryLength)
	}
	vectors, err := e.provider.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, &ProviderError{Batch: -1, Err: err}
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, &ProviderError{Batch: -1, Err: fmt.Errorf("no embedding returned for query")}
	}
	return vectors[0], nil
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
