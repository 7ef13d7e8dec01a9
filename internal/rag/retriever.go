package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/models"
)

var (
	// ErrModelMismatch means queries would be embedded with a different model than the store.
	ErrModelMismatch = errors.New("embedding model mismatch")
	// ErrDimensionMismatch means the query vector does not live in the store's vector space.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Model() string
}

// SearchOption overrides a default of a single search.
type SearchOption func(*Query)

func WithTopK(k int) SearchOption {
	return func(q *Query) { q.TopK = k }
}

func WithMinScore(score float64) SearchOption {
	return func(q *Query) { q.MinScore = score }
}

func WithThemes(themes ...models.Theme) SearchOption {
	return func(q *Query) { q.Themes = themes }
}

// Retriever answers semantic searches against an Index.
type Retriever struct {
	index    Index
	embedder QueryEmbedder
	defaults Query
}

func NewRetriever(index Index, embedder QueryEmbedder, cfg config.RAGConfig) *Retriever {
	defaults := Query{TopK: cfg.TopK, MinScore: cfg.Score()}
	if defaults.TopK <= 0 {
		defaults.TopK = 8
	}
	return &Retriever{index: index, embedder: embedder, defaults: defaults}
}

// Search returns the chunks most similar to query, best first.
func (r *Retriever) Search(ctx context.Context, query string, opts ...SearchOption) ([]models.Chunk, error) {
	results, err := r.SearchWithScores(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}

// SearchWithScores is Search with the similarity of each result.
func (r *Retriever) SearchWithScores(ctx context.Context, query string, opts ...SearchOption) ([]models.SearchResult, error) {
	q := r.defaults
	for _, opt := range opts {
		opt(&q)
	}

	meta, err := r.index.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	if meta.Count == 0 {
		return nil, nil
	}
	if meta.Model != r.embedder.Model() {
		return nil, fmt.Errorf("%w: store uses %q, queries use %q", ErrModelMismatch, meta.Model, r.embedder.Model())
	}

	started := time.Now()
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vec) != meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d", ErrDimensionMismatch, len(vec), meta.Dimensions)
	}

	results, err := r.index.Nearest(ctx, vec, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	if event := log.Debug(); event.Enabled() {
		scores := make([]float64, len(results))
		for i, res := range results {
			scores[i] = res.Score
		}
		event.
			Int("results", len(results)).
			Int("top_k", q.TopK).
			Float64("min_score", q.MinScore).
			Floats64("scores", scores).
			Dur("took", time.Since(started)).
			Msg("Retrieved chunks")
	}
	return results, nil
}
