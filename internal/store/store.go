package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/models"
)

// ErrInvalidArtifact is returned for stores whose vectors are inconsistent with their header.
var ErrInvalidArtifact = errors.New("invalid embeddings artifact")

// ArtifactMissingError is returned when the embeddings file has not been generated yet.
type ArtifactMissingError struct {
	Path string
	Err  error
}

func (e *ArtifactMissingError) Error() string {
	return fmt.Sprintf("embeddings file %s not found: run the generation step first (-source <document.json>)", e.Path)
}

func (e *ArtifactMissingError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return fs.ErrNotExist
}

// New builds a store from embedded chunks, taking dimensions from the first vector.
func New(chunks []models.Chunk, model string) *models.EmbeddingsData {
	dimensions := 0
	if len(chunks) > 0 {
		dimensions = len(chunks[0].Embedding)
	}
	return &models.EmbeddingsData{
		Chunks:     chunks,
		Model:      model,
		Dimensions: dimensions,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

// Load reads and validates the embeddings artifact at path.
func Load(path string) (*models.EmbeddingsData, error) {
	started := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ArtifactMissingError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to read embeddings file: %w", err)
	}

	var store models.EmbeddingsData
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArtifact, path, err)
	}
	if err := Validate(&store); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("chunks", len(store.Chunks)).
		Str("model", store.Model).
		Int("dimensions", store.Dimensions).
		Dur("took", time.Since(started)).
		Msg("Loaded embeddings")
	return &store, nil
}

// Save validates and atomically writes store to path.
func Save(path string, store *models.EmbeddingsData) error {
	if err := Validate(store); err != nil {
		return err
	}
	if err := helper.WriteJSONAtomic(path, store, true); err != nil {
		return fmt.Errorf("failed to save embeddings: %w", err)
	}
	return nil
}

// Validate checks that the model is set and that every chunk carries a vector of
// the declared dimension.
func Validate(store *models.EmbeddingsData) error {
	if store == nil {
		return fmt.Errorf("%w: store is nil", ErrInvalidArtifact)
	}
	if store.Model == "" {
		return fmt.Errorf("%w: model is empty", ErrInvalidArtifact)
	}
	if len(store.Chunks) > 0 && store.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrInvalidArtifact)
	}
	for _, c := range store.Chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", ErrInvalidArtifact, c.ID)
		}
		if len(c.Embedding) != store.Dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", ErrInvalidArtifact, c.ID, len(c.Embedding), store.Dimensions)
		}
	}
	return nil
}

// ChangedChunks compares content hashes by chunk id and returns the ids that are
// new or whose content changed since previous.
func ChangedChunks(previous *models.EmbeddingsData, chunks []models.Chunk) []string {
	known := map[string]string{}
	if previous != nil {
		for _, c := range previous.Chunks {
			hash := c.Hash
			if hash == "" {
				hash = helper.SHA256Hex([]byte(c.Content))
			}
			known[c.ID] = hash
		}
	}
	var changed []string
	for _, c := range chunks {
		if hash, ok := known[c.ID]; !ok || hash != c.Hash {
			changed = append(changed, c.ID)
		}
	}
	return changed
}
