package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	maxTitleLength      = 100
	fallbackTitleLength = 50
	titleEllipsis       = "..."
)

var markdown = goldmark.New()

// ExtractTitle returns the first ATX heading of content (at most 100 runes), or the
// first 50 runes with newlines flattened and an ellipsis appended.
func ExtractTitle(content string) string {
	if heading := firstHeading(content); heading != "" {
		return truncateRunes(heading, maxTitleLength)
	}
	return strings.ReplaceAll(truncateRunes(content, fallbackTitleLength), "\n", " ") + titleEllipsis
}

func firstHeading(content string) string {
	source := []byte(content)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := heading.Lines()
		if lines.Len() == 0 || !isATXLine(source, lines.At(0).Start) {
			return ast.WalkSkipChildren, nil
		}
		var b strings.Builder
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			b.Write(segment.Value(source))
		}
		if t := strings.TrimSpace(b.String()); t != "" {
			title = t
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})
	return title
}

// isATXLine reports whether the line holding offset starts with '#'. Setext
// headings (underlined with === or ---) are not treated as titles.
func isATXLine(source []byte, offset int) bool {
	lineStart := bytes.LastIndexByte(source[:offset], '\n') + 1
	return bytes.HasPrefix(bytes.TrimLeft(source[lineStart:offset], " "), []byte("#"))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
