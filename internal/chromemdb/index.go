package chromemdb

import (
	"context"

	"github.com/philippgille/chromem-go"

	"megatrend-rag/internal/models"
	"megatrend-rag/internal/rag"
)

// Index serves retrieval from a published chromem collection.
type Index struct {
	manager *VectorDBManager
}

func NewIndex(manager *VectorDBManager) *Index {
	return &Index{manager: manager}
}

func (i *Index) Metadata(ctx context.Context) (rag.IndexMetadata, error) {
	manifest, err := i.manager.Manifest()
	if err != nil {
		return rag.IndexMetadata{}, err
	}
	count, err := i.manager.Count()
	if err != nil {
		return rag.IndexMetadata{}, err
	}
	return rag.IndexMetadata{Model: manifest.Model, Dimensions: manifest.Dimensions, Count: count}, nil
}

// Nearest runs one query per requested theme, since a where filter matches a
// single value, and re-ranks the union.
func (i *Index) Nearest(ctx context.Context, vec []float32, q rag.Query) ([]models.SearchResult, error) {
	if q.TopK <= 0 || !hasNorm(vec) {
		return nil, nil
	}

	filters := []map[string]string{nil}
	if len(q.Themes) > 0 {
		filters = filters[:0]
		for _, theme := range q.Themes {
			filters = append(filters, map[string]string{metaTheme: string(theme)})
		}
	}

	lists := make([][]models.SearchResult, 0, len(filters))
	for _, where := range filters {
		results, err := i.manager.SearchWithQueryOptions(ctx, chromem.QueryOptions{
			QueryEmbedding: vec,
			NResults:       q.TopK,
			Where:          where,
		})
		if err != nil {
			return nil, err
		}
		list := make([]models.SearchResult, 0, len(results))
		for _, res := range results {
			list = append(list, models.SearchResult{Chunk: ChunkFromResult(res), Score: float64(res.Similarity)})
		}
		lists = append(lists, list)
	}
	return rag.Merge(q, lists...), nil
}
