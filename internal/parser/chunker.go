package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"megatrend-rag/internal/helper"
	"megatrend-rag/internal/models"
)

const (
	defaultMinContentLength = 100
	defaultMaxChunkSize     = 1500
	defaultMinFlushSize     = 300

	paragraphJoin = "\n\n"
)

var paragraphSeparator = regexp.MustCompile(`\n\n+`)

// ChunkerConfig bounds the size of produced chunks. Lengths are counted in runes.
type ChunkerConfig struct {
	// MinContentLength drops items (and trailing split buffers) shorter than this.
	MinContentLength int
	// MaxChunkSize is the ceiling above which an item is split on paragraphs.
	MaxChunkSize int
	// MinFlushSize keeps a split buffer growing until it is at least this long.
	MinFlushSize int
}

// Chunker turns a page-tagged source document into themed chunks.
type Chunker struct {
	cfg        ChunkerConfig
	classifier Classifier
}

// NewChunker creates a chunker; zero config values fall back to 100/1500/300 and a
// nil classifier to DefaultClassifier.
func NewChunker(cfg ChunkerConfig, classifier Classifier) *Chunker {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = defaultMinContentLength
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = defaultMaxChunkSize
	}
	if cfg.MinFlushSize <= 0 {
		cfg.MinFlushSize = defaultMinFlushSize
	}
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Chunker{cfg: cfg, classifier: classifier}
}

// Chunk splits every sufficiently long text item of doc into chunks, in document order.
func (c *Chunker) Chunk(doc *models.SourceDocument) ([]models.Chunk, error) {
	if doc == nil {
		return nil, &MalformedDocumentError{Reason: "document is nil"}
	}

	var chunks []models.Chunk
	for _, item := range doc.TextItems() {
		length := utf8.RuneCountInString(item.Content)
		if length < c.cfg.MinContentLength {
			continue
		}

		theme := ThemeForPage(item.Page)
		category := c.classifier.Classify(item.Content)

		if length <= c.cfg.MaxChunkSize {
			chunks = appendChunk(chunks, theme, category, item.Content)
			continue
		}
		for _, segment := range c.split(item.Content) {
			chunks = appendChunk(chunks, theme, category, segment)
		}
	}
	return chunks, nil
}

// split greedily packs blank-line separated paragraphs into segments.
func (c *Chunker) split(content string) []string {
	var segments []string
	var buf strings.Builder
	bufLen := 0

	for _, paragraph := range paragraphSeparator.Split(content, -1) {
		paragraphLen := utf8.RuneCountInString(paragraph)
		if bufLen+paragraphLen > c.cfg.MaxChunkSize && bufLen > c.cfg.MinFlushSize {
			segments = append(segments, buf.String())
			buf.Reset()
			buf.WriteString(paragraph)
			bufLen = paragraphLen
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(paragraphJoin)
			bufLen += len(paragraphJoin)
		}
		buf.WriteString(paragraph)
		bufLen += paragraphLen
	}

	if utf8.RuneCountInString(strings.TrimSpace(buf.String())) >= c.cfg.MinContentLength {
		segments = append(segments, buf.String())
	}
	return segments
}

// appendChunk titles the raw text, trims it and appends it with the next sequential id.
func appendChunk(chunks []models.Chunk, theme models.Theme, category models.Category, raw string) []models.Chunk {
	content := strings.TrimSpace(raw)
	if content == "" {
		return chunks
	}
	return append(chunks, models.Chunk{
		ID:       fmt.Sprintf("%s%d", models.ChunkIDPrefix, len(chunks)),
		Theme:    theme,
		Category: category,
		Title:    ExtractTitle(raw),
		Content:  content,
		Hash:     helper.SHA256Hex([]byte(content)),
	})
}

type pageRange struct {
	first, last int
	theme       models.Theme
}

// Inclusive page ranges of the four megatrend sections of the report.
var themePages = []pageRange{
	{first: 19, last: 30, theme: models.ThemePeople},
	{first: 31, last: 42, theme: models.ThemePower},
	{first: 43, last: 54, theme: models.ThemeNature},
	{first: 55, last: 70, theme: models.ThemeTechnology},
}

// ThemeForPage maps a source page number to its megatrend theme.
func ThemeForPage(page int) models.Theme {
	for _, r := range themePages {
		if page >= r.first && page <= r.last {
			return r.theme
		}
	}
	return models.ThemeGeneral
}
