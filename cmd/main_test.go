package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"megatrend-rag/internal/models"
	"megatrend-rag/internal/rag"
)

func applyOptions(opts []rag.SearchOption) rag.Query {
	q := rag.Query{TopK: 5, MinScore: 0.3}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

func TestSearchOptions(t *testing.T) {
	opts, err := searchOptions(map[string]bool{"top-k": true, "min-score": true}, 3, 0, "valta, luonto")
	require.NoError(t, err)
	assert.Equal(t, rag.Query{
		TopK:     3,
		MinScore: 0,
		Themes:   []models.Theme{models.ThemePower, models.ThemeNature},
	}, applyOptions(opts))
}

func TestSearchOptionsKeepsDefaultsForUnsetFlags(t *testing.T) {
	opts, err := searchOptions(map[string]bool{}, 0, 0, "")
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.Equal(t, rag.Query{TopK: 5, MinScore: 0.3}, applyOptions(opts))
}

func TestSearchOptionsRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name     string
		set      map[string]bool
		topK     int
		minScore float64
		themes   string
	}{
		{name: "zero top-k", set: map[string]bool{"top-k": true}, topK: 0},
		{name: "negative top-k", set: map[string]bool{"top-k": true}, topK: -2},
		{name: "score above one", set: map[string]bool{"min-score": true}, minScore: 1.5},
		{name: "unknown theme", set: map[string]bool{}, themes: "valta,talous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := searchOptions(tt.set, tt.topK, tt.minScore, tt.themes)
			assert.Error(t, err)
		})
	}
}
