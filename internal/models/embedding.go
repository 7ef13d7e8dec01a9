package models

import "time"

// Theme is the top-level megatrend a chunk belongs to, derived from its source page.
type Theme string

const (
	ThemePeople     Theme = "ihmiset"
	ThemePower      Theme = "valta"
	ThemeNature     Theme = "luonto"
	ThemeTechnology Theme = "teknologia"
	ThemeGeneral    Theme = "general"
)

// Themes lists every theme in display order.
var Themes = []Theme{ThemePeople, ThemePower, ThemeNature, ThemeTechnology, ThemeGeneral}

// Category is the sub-classification of a chunk inside its theme.
type Category string

const (
	CategoryIntro              Category = "intro"
	CategoryBoundaryConditions Category = "reunaehdot"
	CategoryChangeDrivers      Category = "muutos"
	CategoryOpportunities      Category = "mahdollisuudet"
	CategoryTrends             Category = "trendit"
	CategoryWildcards          Category = "villit_kortit"
	CategoryData               Category = "data"
	CategoryGeneral            Category = "general"
)

// Chunk represents a retrievable piece of the megatrend report
type Chunk struct {
	ID        string    `json:"id"`
	Theme     Theme     `json:"theme"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Hash      string    `json:"hash,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// EmbeddingsData is the persisted embedding store produced by the offline generation step.
type EmbeddingsData struct {
	Chunks     []Chunk   `json:"chunks"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SearchResult pairs a chunk with its similarity to the query
type SearchResult struct {
	Chunk Chunk
	Score float64
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
