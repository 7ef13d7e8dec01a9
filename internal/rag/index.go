package rag

import (
	"context"

	"megatrend-rag/internal/models"
	"megatrend-rag/internal/store"
)

// IndexMetadata describes the vector space of an index.
type IndexMetadata struct {
	Model      string
	Dimensions int
	Count      int
}

// Index is a searchable collection of embedded chunks.
type Index interface {
	Metadata(ctx context.Context) (IndexMetadata, error)
	Nearest(ctx context.Context, vec []float32, q Query) ([]models.SearchResult, error)
}

// MemoryIndex does a brute-force cosine scan over the loaded store.
type MemoryIndex struct {
	handle *store.Handle
}

func NewMemoryIndex(handle *store.Handle) *MemoryIndex {
	return &MemoryIndex{handle: handle}
}

func (m *MemoryIndex) Metadata(ctx context.Context) (IndexMetadata, error) {
	data, err := m.handle.Get(ctx)
	if err != nil {
		return IndexMetadata{}, err
	}
	return IndexMetadata{Model: data.Model, Dimensions: data.Dimensions, Count: len(data.Chunks)}, nil
}

func (m *MemoryIndex) Nearest(ctx context.Context, vec []float32, q Query) ([]models.SearchResult, error) {
	data, err := m.handle.Get(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(data.Chunks, vec, q), nil
}
