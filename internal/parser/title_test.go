package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTitle(t *testing.T) {
	long := strings.Repeat("x", 140)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"h1", "# Ihmiset\n\nVäestö ikääntyy.", "Ihmiset"},
		{"h3 after text", "Johdanto\n\n### Trendit\n\nlista", "Trendit"},
		{"long heading truncated", "## " + long, strings.Repeat("x", 100)},
		{"setext ignored", "Otsikko\n=======\n\nteksti", "Otsikko =======  teksti..."},
		{"no heading", "Lyhyt kappale\nkahdella rivillä", "Lyhyt kappale kahdella rivillä..."},
		{"fallback truncates", strings.Repeat("ö", 80), strings.Repeat("ö", 50) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.content))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "", truncateRunes("abc", 0))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "äö", truncateRunes("äöå", 2))
}
