package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"megatrend-rag/internal/models"
)

// Loader produces the store on first use.
type Loader func(ctx context.Context) (*models.EmbeddingsData, error)

// Handle loads the store once and shares it read-only between concurrent callers.
// A failed load is not remembered; the next Get tries again.
type Handle struct {
	mu     sync.Mutex
	data   atomic.Pointer[models.EmbeddingsData]
	loader Loader
}

// NewHandle returns a handle that calls loader lazily.
func NewHandle(loader Loader) *Handle {
	return &Handle{loader: loader}
}

// NewFileHandle returns a handle that loads the artifact at path.
func NewFileHandle(path string) *Handle {
	return NewHandle(func(context.Context) (*models.EmbeddingsData, error) {
		return Load(path)
	})
}

// NewStaticHandle wraps an already loaded store.
func NewStaticHandle(data *models.EmbeddingsData) *Handle {
	h := &Handle{}
	h.data.Store(data)
	return h
}

func (h *Handle) Get(ctx context.Context) (*models.EmbeddingsData, error) {
	if data := h.data.Load(); data != nil {
		return data, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if data := h.data.Load(); data != nil {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.loader == nil {
		return nil, fmt.Errorf("%w: no store loaded", ErrInvalidArtifact)
	}
	data, err := h.loader(ctx)
	if err != nil {
		return nil, err
	}
	h.data.Store(data)
	return data, nil
}
