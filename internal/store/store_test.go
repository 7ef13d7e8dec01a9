package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/models"
)

func sampleStore() *models.EmbeddingsData {
	return &models.EmbeddingsData{
		Chunks: []models.Chunk{
			{ID: "chunk-0", Theme: models.ThemePeople, Category: models.CategoryGeneral, Title: "A", Content: "a", Embedding: []float32{1, 0}},
			{ID: "chunk-1", Theme: models.ThemePower, Category: models.CategoryTrends, Title: "B", Content: "b", Embedding: []float32{0, 1}},
		},
		Model:      "text-embedding-3-small",
		Dimensions: 2,
		CreatedAt:  time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "embeddings.json")
	want := sampleStore()
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"createdAt": "2025-11-03T10:00:00Z"`)
}

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := Load(path)

	var missing *ArtifactMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, path, missing.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "generation")
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"not json":          `{"chunks":`,
		"empty model":       `{"chunks":[],"model":"","dimensions":2,"createdAt":"2025-11-03T10:00:00Z"}`,
		"missing embedding": `{"chunks":[{"id":"chunk-0","content":"x"}],"model":"m","dimensions":2,"createdAt":"2025-11-03T10:00:00Z"}`,
		"wrong dimension":   `{"chunks":[{"id":"chunk-0","content":"x","embedding":[1,2,3]}],"model":"m","dimensions":2,"createdAt":"2025-11-03T10:00:00Z"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "embeddings.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestSaveRejectsInvalidAndKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")
	require.NoError(t, Save(path, sampleStore()))

	bad := sampleStore()
	bad.Chunks[1].Embedding = []float32{1}
	require.ErrorIs(t, Save(path, bad), ErrInvalidArtifact)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sampleStore(), got)
}

func TestNew(t *testing.T) {
	s := New(sampleStore().Chunks, "m")
	assert.Equal(t, 2, s.Dimensions)
	assert.Equal(t, "m", s.Model)
	assert.False(t, s.CreatedAt.IsZero())
	assert.NoError(t, Validate(s))

	empty := New(nil, "m")
	assert.Equal(t, 0, empty.Dimensions)
	assert.NoError(t, Validate(empty))
}

func TestChangedChunks(t *testing.T) {
	previous := sampleStore()
	previous.Chunks[0].Hash = helper.SHA256Hex([]byte("a"))

	chunks := []models.Chunk{
		{ID: "chunk-0", Content: "a", Hash: helper.SHA256Hex([]byte("a"))},
		{ID: "chunk-1", Content: "b changed", Hash: helper.SHA256Hex([]byte("b changed"))},
		{ID: "chunk-2", Content: "c", Hash: helper.SHA256Hex([]byte("c"))},
	}
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, ChangedChunks(previous, chunks))
	assert.Len(t, ChangedChunks(nil, chunks), 3)
}

func TestHandleLoadsOnce(t *testing.T) {
	var calls atomic.Int32
	h := NewHandle(func(context.Context) (*models.EmbeddingsData, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return sampleStore(), nil
	})

	var wg sync.WaitGroup
	results := make([]*models.EmbeddingsData, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := h.Get(context.Background())
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestHandleRetriesAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")
	h := NewFileHandle(path)

	_, err := h.Get(context.Background())
	var missing *ArtifactMissingError
	require.ErrorAs(t, err, &missing)

	require.NoError(t, Save(path, sampleStore()))
	data, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Chunks, 2)
}

func TestHandleCancelledContext(t *testing.T) {
	h := NewHandle(func(context.Context) (*models.EmbeddingsData, error) {
		return nil, errors.New("must not be called")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticHandle(t *testing.T) {
	data := sampleStore()
	got, err := NewStaticHandle(data).Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, data, got)
}

func TestStaticHandleWithoutData(t *testing.T) {
	h := NewStaticHandle(nil)
	require.NotPanics(t, func() {
		_, err := h.Get(context.Background())
		assert.ErrorIs(t, err, ErrInvalidArtifact)
	})
}
