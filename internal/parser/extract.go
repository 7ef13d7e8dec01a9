package parser

import (
	"archive/zip"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"megatrend-rag/internal/models"
)

const (
	defaultPageNumber = 1
	pageBreak         = "\f"
)

var (
	docxParagraphRe = regexp.MustCompile(`(?s)<w:p(?: [^>]*[^/])?>.*?</w:p>`)
	docxTextRe      = regexp.MustCompile(`(?s)<w:t(?: [^>]*)?>(.*?)</w:t>`)
	docxHeadingRe   = regexp.MustCompile(`<w:pStyle w:val="(?:Heading|heading|Otsikko)(\d)"`)
	docxPageBreakRe = regexp.MustCompile(`<w:br [^>]*w:type="page"`)
	pptxSlideRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxTextRe      = regexp.MustCompile(`(?s)<a:t(?: [^>]*)?>(.*?)</a:t>`)
)

// ExtractSourceDocument builds a page-tagged source document from a report file.
// Supported formats: .pdf, .docx, .pptx, .xlsx, .md and .txt.
func ExtractSourceDocument(filePath string) (*models.SourceDocument, error) {
	var (
		items []models.SourceItem
		err   error
	)

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		items, err = extractPDF(filePath)
	case ".docx":
		items, err = extractDOCX(filePath)
	case ".pptx":
		items, err = extractPPTX(filePath)
	case ".xlsx":
		items, err = extractXLSX(filePath)
	case ".md", ".txt":
		items, err = extractText(filePath)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("file", filePath).Int("items", len(items)).Msg("Extracted source document")
	return &models.SourceDocument{Items: items}, nil
}

// extractPDF emits one text item per page.
func extractPDF(filePath string) ([]models.SourceItem, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	var items []models.SourceItem
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		items = appendTextItem(items, i, pageText)
	}
	return items, nil
}

// extractDOCX walks the document paragraphs. Explicit page breaks advance the page
// number and Heading styles become markdown headings.
func extractDOCX(filePath string) ([]models.SourceItem, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var (
		items      []models.SourceItem
		paragraphs []string
	)
	page := defaultPageNumber
	flush := func() {
		items = appendTextItem(items, page, strings.Join(paragraphs, paragraphJoin))
		paragraphs = nil
	}

	for _, p := range docxParagraphRe.FindAllString(r.Editable().GetContent(), -1) {
		var text strings.Builder
		for _, m := range docxTextRe.FindAllStringSubmatch(p, -1) {
			text.WriteString(html.UnescapeString(m[1]))
		}
		line := strings.TrimSpace(text.String())
		if line != "" {
			if m := docxHeadingRe.FindStringSubmatch(p); m != nil {
				level, _ := strconv.Atoi(m[1])
				line = strings.Repeat("#", max(level, 1)) + " " + line
			}
			paragraphs = append(paragraphs, line)
		}
		if docxPageBreakRe.MatchString(p) {
			flush()
			page++
		}
	}
	flush()
	return items, nil
}

// extractPPTX emits one text item per slide, using the slide number as the page.
func extractPPTX(filePath string) ([]models.SourceItem, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []models.SourceItem
	for _, file := range f.File {
		m := pptxSlideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])
		data, err := readZipFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read slide %d: %w", slideNum, err)
		}
		items = appendTextItem(items, slideNum, extractTextFromXML(string(data)))
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Page < items[j].Page })
	return items, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// extractTextFromXML joins the <a:t> runs of a DrawingML part.
func extractTextFromXML(xmlContent string) string {
	var parts []string
	for _, m := range pptxTextRe.FindAllStringSubmatch(xmlContent, -1) {
		if text := strings.TrimSpace(html.UnescapeString(m[1])); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractXLSX reads rows of a sheet whose header contains "page" and "content"
// columns; an optional "type" column defaults to text.
func extractXLSX(filePath string) ([]models.SourceItem, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []models.SourceItem
	found := false
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			continue
		}
		columns := map[string]int{}
		for i, name := range rows[0] {
			columns[strings.ToLower(strings.TrimSpace(name))] = i
		}
		pageCol, hasPage := columns["page"]
		contentCol, hasContent := columns["content"]
		if !hasPage || !hasContent {
			log.Debug().Str("sheet", sheetName).Msg("Skipping sheet without page/content columns")
			continue
		}
		typeCol, hasType := columns["type"]
		found = true

		for rowNum, row := range rows[1:] {
			page, err := strconv.Atoi(strings.TrimSpace(cell(row, pageCol)))
			if err != nil {
				return nil, &MalformedDocumentError{
					Path:   filePath,
					Reason: fmt.Sprintf("sheet %s row %d: invalid page", sheetName, rowNum+2),
					Err:    err,
				}
			}
			itemType := models.ItemTypeText
			if hasType && strings.TrimSpace(cell(row, typeCol)) != "" {
				itemType = strings.TrimSpace(cell(row, typeCol))
			}
			items = append(items, models.SourceItem{Type: itemType, Page: page, Content: cell(row, contentCol)})
		}
	}
	if !found {
		return nil, &MalformedDocumentError{Path: filePath, Reason: "no sheet with page and content columns"}
	}
	return items, nil
}

// extractText treats form feeds as page breaks.
func extractText(filePath string) ([]models.SourceItem, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var items []models.SourceItem
	for i, pageText := range strings.Split(string(data), pageBreak) {
		items = appendTextItem(items, i+1, pageText)
	}
	return items, nil
}

func appendTextItem(items []models.SourceItem, page int, content string) []models.SourceItem {
	if strings.TrimSpace(content) == "" {
		return items
	}
	return append(items, models.SourceItem{Type: models.ItemTypeText, Page: page, Content: content})
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
