package rag

import (
	"strings"

	"megatrend-rag/internal/models"
)

// FormatChunksAsContext renders chunks as themed sections in the given order.
// No chunks render as the empty string.
func FormatChunksAsContext(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		sections[i] = "### " + c.Theme.DisplayName() + "\n**" + c.Title + "**\n" + c.Content
	}
	return strings.Join(sections, models.ContextSeparator)
}
