package rag

import (
	"slices"
	"sort"

	"megatrend-rag/internal/models"
)

// Query holds the ranking parameters of one search.
type Query struct {
	TopK     int
	MinScore float64
	// Themes restricts results to these themes; empty means all.
	Themes []models.Theme
}

func (q Query) allows(theme models.Theme) bool {
	return len(q.Themes) == 0 || slices.Contains(q.Themes, theme)
}

// Rank scores chunks against vec and returns at most q.TopK results with a score of
// at least q.MinScore, best first. Ties keep store order. Chunks without a usable
// vector are skipped.
func Rank(chunks []models.Chunk, vec []float32, q Query) []models.SearchResult {
	if q.TopK <= 0 || isZero(vec) {
		return nil
	}

	results := make([]models.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		if !q.allows(c.Theme) {
			continue
		}
		if len(c.Embedding) != len(vec) || isZero(c.Embedding) {
			continue
		}
		score := CosineSimilarity(vec, c.Embedding)
		if score < q.MinScore {
			continue
		}
		results = append(results, models.SearchResult{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results
}

// Merge combines result lists from several sub-queries and re-ranks them under q.
func Merge(q Query, lists ...[]models.SearchResult) []models.SearchResult {
	var merged []models.SearchResult
	seen := map[string]bool{}
	for _, list := range lists {
		for _, r := range list {
			if seen[r.Chunk.ID] || r.Score < q.MinScore || !q.allows(r.Chunk.Theme) {
				continue
			}
			seen[r.Chunk.ID] = true
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if q.TopK > 0 && len(merged) > q.TopK {
		merged = merged[:q.TopK]
	}
	return merged
}
