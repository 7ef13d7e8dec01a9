package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"megatrend-rag/internal/models"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.Category
	}{
		{"boundary conditions heading", "### Reunaehdot\nTalous ja väestö", models.CategoryBoundaryConditions},
		{"change heading", "## MUUTOS\nmitä muuttuu", models.CategoryChangeDrivers},
		{"opportunities heading", "### Mahdollisuudet\nuudet markkinat", models.CategoryOpportunities},
		{"loose trend keyword", "Keskeiset trendit ovat seuraavat", models.CategoryTrends},
		{"wildcards", "Villit kortit voivat muuttaa kaiken", models.CategoryWildcards},
		{"data heading", "### Data\nluvut", models.CategoryData},
		{"priority order", "### Muutos\nnäkyy useissa trendit-listan kohdissa", models.CategoryChangeDrivers},
		{"no match", "Tavallinen kappale ilman otsikoita", models.CategoryGeneral},
	}
	c := DefaultClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.content))
		})
	}
}

func TestKeywordClassifierFallback(t *testing.T) {
	assert.Equal(t, models.CategoryGeneral, (&KeywordClassifier{}).Classify("mitä tahansa"))
	assert.Equal(t, models.CategoryIntro, (&KeywordClassifier{Fallback: models.CategoryIntro}).Classify("mitä tahansa"))
}
