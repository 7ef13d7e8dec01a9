package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"megatrend-rag/internal/config"
	"megatrend-rag/internal/models"
	"megatrend-rag/internal/store"
)

const testModel = "text-embedding-3-small"

type fakeEmbedder struct {
	model string
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

func (f *fakeEmbedder) Model() string { return f.model }

type fakeGenerator struct {
	messages []llms.MessageContent
	answer   string
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

// fiveChunks returns a store whose vectors overlap slightly, so every pair has a
// small positive similarity.
func fiveChunks() *models.EmbeddingsData {
	themes := []models.Theme{models.ThemePeople, models.ThemePower, models.ThemeNature, models.ThemeTechnology, models.ThemeGeneral}
	chunks := make([]models.Chunk, 5)
	for i := range chunks {
		vec := []float32{0.1, 0.1, 0.1, 0.1, 0.1}
		vec[i] = 1
		chunks[i] = models.Chunk{
			ID:        fmt.Sprintf("chunk-%d", i),
			Theme:     themes[i],
			Category:  models.CategoryGeneral,
			Title:     fmt.Sprintf("Otsikko %d", i),
			Content:   fmt.Sprintf("Sisältö %d", i),
			Embedding: vec,
		}
	}
	return &models.EmbeddingsData{Chunks: chunks, Model: testModel, Dimensions: 5}
}

func newRetriever(data *models.EmbeddingsData, embedder QueryEmbedder) *Retriever {
	return NewRetriever(NewMemoryIndex(store.NewStaticHandle(data)), embedder, config.RAGConfig{})
}

func TestSearchEndToEnd(t *testing.T) {
	data := fiveChunks()
	r := newRetriever(data, &fakeEmbedder{model: testModel, vec: data.Chunks[3].Embedding})

	results, err := r.SearchWithScores(context.Background(), "tekoäly", WithTopK(2), WithMinScore(0))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk-3", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Less(t, results[1].Score, results[0].Score)
	assert.Equal(t, "chunk-0", results[1].Chunk.ID, "ties keep store order")

	chunks, err := r.Search(context.Background(), "tekoäly", WithTopK(2), WithMinScore(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-3", "chunk-0"}, []string{chunks[0].ID, chunks[1].ID})
}

func TestSearchThresholdExclusion(t *testing.T) {
	r := newRetriever(fiveChunks(), &fakeEmbedder{model: testModel, vec: []float32{-1, 0, 0, 0, 0.05}})

	chunks, err := r.Search(context.Background(), "jotain muuta", WithMinScore(0.3))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSearchDefaults(t *testing.T) {
	data := fiveChunks()
	r := newRetriever(data, &fakeEmbedder{model: testModel, vec: []float32{1, 1, 1, 1, 1}})

	results, err := r.SearchWithScores(context.Background(), "kaikki")
	require.NoError(t, err)
	assert.Len(t, results, 5, "top 8 of 5 returns all")
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, 0.3)
	}
}

func TestSearchThemeFilter(t *testing.T) {
	r := newRetriever(fiveChunks(), &fakeEmbedder{model: testModel, vec: []float32{1, 1, 1, 1, 1}})

	chunks, err := r.Search(context.Background(), "q", WithThemes(models.ThemePower, models.ThemeNature))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Contains(t, []models.Theme{models.ThemePower, models.ThemeNature}, c.Theme)
	}
}

func TestSearchMonotonicity(t *testing.T) {
	data := fiveChunks()
	queries := [][]float32{
		{1, 0.5, 0.2, 0, 0},
		{0, 0, 1, 1, 0},
		{0.3, -0.2, 0.9, 0.1, 0.4},
	}
	for _, vec := range queries {
		r := newRetriever(data, &fakeEmbedder{model: testModel, vec: vec})
		results, err := r.SearchWithScores(context.Background(), "q", WithTopK(3), WithMinScore(0.1))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), 3)
		for i, res := range results {
			assert.GreaterOrEqual(t, res.Score, 0.1)
			if i > 0 {
				assert.LessOrEqual(t, res.Score, results[i-1].Score)
			}
		}
	}
}

func TestSearchEmptyStore(t *testing.T) {
	embedder := &fakeEmbedder{model: testModel, vec: []float32{1}}
	r := newRetriever(&models.EmbeddingsData{Model: testModel}, embedder)

	chunks, err := r.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, embedder.calls)
}

func TestSearchModelMismatch(t *testing.T) {
	embedder := &fakeEmbedder{model: "text-embedding-3-large", vec: make([]float32, 5)}
	_, err := newRetriever(fiveChunks(), embedder).Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.Equal(t, 0, embedder.calls, "no query is embedded for a mismatched store")
}

func TestSearchDimensionMismatch(t *testing.T) {
	_, err := newRetriever(fiveChunks(), &fakeEmbedder{model: testModel, vec: []float32{1, 0}}).Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchStoreMissing(t *testing.T) {
	handle := store.NewFileHandle(t.TempDir() + "/missing.json")
	r := NewRetriever(NewMemoryIndex(handle), &fakeEmbedder{model: testModel}, config.RAGConfig{})

	_, err := r.Search(context.Background(), "q")
	var missing *store.ArtifactMissingError
	assert.ErrorAs(t, err, &missing)
}

func TestSearchEmbedderError(t *testing.T) {
	boom := errors.New("provider down")
	_, err := newRetriever(fiveChunks(), &fakeEmbedder{model: testModel, err: boom}).Search(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestRankSkipsZeroVectors(t *testing.T) {
	chunks := []models.Chunk{
		{ID: "zero", Embedding: []float32{0, 0}},
		{ID: "short", Embedding: []float32{1}},
		{ID: "ok", Embedding: []float32{1, 0}},
	}
	results := Rank(chunks, []float32{1, 0}, Query{TopK: 5, MinScore: -1})
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Chunk.ID)

	assert.Empty(t, Rank(chunks, []float32{0, 0}, Query{TopK: 5, MinScore: -1}))
	assert.Empty(t, Rank(chunks, []float32{1, 0}, Query{TopK: 0}))
}

func TestMerge(t *testing.T) {
	a := []models.SearchResult{{Chunk: models.Chunk{ID: "a", Theme: models.ThemePower}, Score: 0.5}}
	b := []models.SearchResult{
		{Chunk: models.Chunk{ID: "b", Theme: models.ThemeNature}, Score: 0.9},
		{Chunk: models.Chunk{ID: "a", Theme: models.ThemePower}, Score: 0.5},
		{Chunk: models.Chunk{ID: "c", Theme: models.ThemeNature}, Score: 0.2},
	}
	merged := Merge(Query{TopK: 5, MinScore: 0.3}, a, b)
	require.Len(t, merged, 2)
	assert.Equal(t, "b", merged[0].Chunk.ID)
	assert.Equal(t, "a", merged[1].Chunk.ID)
}

func TestCosineSimilarity(t *testing.T) {
	vectors := [][]float32{
		{1, 2, 3},
		{-1, 0.5, 2},
		{0.001, -7, 3},
		{3, 3, 3},
	}
	for _, a := range vectors {
		assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
		for _, b := range vectors {
			sim := CosineSimilarity(a, b)
			assert.GreaterOrEqual(t, sim, -1.0)
			assert.LessOrEqual(t, sim, 1.0)
			assert.InDelta(t, sim, CosineSimilarity(b, a), 1e-12)
		}
	}
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.False(t, math.IsNaN(CosineSimilarity(nil, nil)))
}

func TestFormatChunksAsContext(t *testing.T) {
	assert.Equal(t, "", FormatChunksAsContext(nil))

	chunks := []models.Chunk{
		{Theme: models.ThemeTechnology, Title: "Tekoäly", Content: "Tekoäly muuttaa työn."},
		{Theme: models.ThemeGeneral, Title: "Johdanto", Content: "Megatrendit 2026."},
	}
	got := FormatChunksAsContext(chunks)
	assert.Equal(t, "### TEKNOLOGIA (Tekoälyn murros)\n**Tekoäly**\nTekoäly muuttaa työn."+
		"\n\n---\n\n"+
		"### YLEINEN\n**Johdanto**\nMegatrendit 2026.", got)
	assert.Less(t, strings.Index(got, "Tekoäly muuttaa"), strings.Index(got, "Megatrendit 2026"))
}

func TestRAGQuery(t *testing.T) {
	data := fiveChunks()
	gen := &fakeGenerator{answer: "Arvio"}
	r := NewRAG(newRetriever(data, &fakeEmbedder{model: testModel, vec: data.Chunks[1].Embedding}), gen, config.RAGConfig{})

	resp, err := r.Query(context.Background(), "Miten valta muuttuu?", WithTopK(1))
	require.NoError(t, err)
	assert.Equal(t, "Arvio", resp.Content)
	assert.Equal(t, "Miten valta muuttuu?", resp.Query)
	assert.Contains(t, resp.Source, "VALTA (Maailmanjärjestyksen murros)")

	require.Len(t, gen.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, gen.messages[0].Role)
	user := gen.messages[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, user, "Otsikko 1")
	assert.Contains(t, user, "Miten valta muuttuu?")
}

func TestRAGRetrievalFailure(t *testing.T) {
	embedder := &fakeEmbedder{model: "other-model"}
	gen := &fakeGenerator{answer: "Yleinen arvio"}

	strict := NewRAG(newRetriever(fiveChunks(), embedder), gen, config.RAGConfig{})
	_, err := strict.Query(context.Background(), "q")
	assert.ErrorIs(t, err, ErrModelMismatch)
	assert.Nil(t, gen.messages)

	degraded := NewRAG(newRetriever(fiveChunks(), embedder), gen, config.RAGConfig{DegradeOnError: true})
	resp, err := degraded.Query(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", resp.Source)
	assert.Contains(t, gen.messages[1].Parts[0].(llms.TextContent).Text, models.NoContextPlaceholder)
}

func TestRAGGeneratorError(t *testing.T) {
	data := fiveChunks()
	gen := &fakeGenerator{err: errors.New("quota")}
	r := NewRAG(newRetriever(data, &fakeEmbedder{model: testModel, vec: data.Chunks[0].Embedding}), gen, config.RAGConfig{})
	_, err := r.Query(context.Background(), "q")
	assert.ErrorContains(t, err, "quota")
}
