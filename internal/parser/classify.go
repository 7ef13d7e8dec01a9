package parser

import (
	"strings"

	"megatrend-rag/internal/models"
)

// Classifier assigns a category to a piece of source text.
type Classifier interface {
	Classify(content string) models.Category
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(content string) models.Category

func (f ClassifierFunc) Classify(content string) models.Category {
	return f(content)
}

// KeywordRule matches when any of its keywords occurs in the lower-cased text.
type KeywordRule struct {
	Category models.Category
	Keywords []string
}

// KeywordClassifier returns the category of the first matching rule.
type KeywordClassifier struct {
	Rules    []KeywordRule
	Fallback models.Category
}

// DefaultClassifier recognises the section headings used in the megatrend report.
// Rule order matters: "trendit" alone is a loose match and must not shadow the
// heading rules before it.
func DefaultClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Rules: []KeywordRule{
			{Category: models.CategoryBoundaryConditions, Keywords: []string{"### reunaehdot", "## reunaehdot"}},
			{Category: models.CategoryChangeDrivers, Keywords: []string{"### muutos", "## muutos"}},
			{Category: models.CategoryOpportunities, Keywords: []string{"### mahdollisuudet", "## mahdollisuudet"}},
			{Category: models.CategoryTrends, Keywords: []string{"### trendit", "trendit"}},
			{Category: models.CategoryWildcards, Keywords: []string{"villit kortit", "villi kortti"}},
			{Category: models.CategoryData, Keywords: []string{"### data", "## data"}},
		},
		Fallback: models.CategoryGeneral,
	}
}

func (k *KeywordClassifier) Classify(content string) models.Category {
	lower := strings.ToLower(content)
	for _, rule := range k.Rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lower, keyword) {
				return rule.Category
			}
		}
	}
	if k.Fallback == "" {
		return models.CategoryGeneral
	}
	return k.Fallback
}
