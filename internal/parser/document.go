package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"megatrend-rag/internal/models"
)

// MalformedDocumentError reports a source document without the expected items structure.
type MalformedDocumentError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	msg := "malformed source document"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// LoadSourceDocument reads and parses the JSON source document at path.
func LoadSourceDocument(path string) (*models.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document: %w", err)
	}
	doc, err := ParseSourceDocument(data)
	if err != nil {
		if malformed, ok := err.(*MalformedDocumentError); ok {
			malformed.Path = path
		}
		return nil, err
	}
	return doc, nil
}

// ParseSourceDocument decodes a {"items": [...]} container. A missing, null or
// non-array items field is a *MalformedDocumentError.
func ParseSourceDocument(data []byte) (*models.SourceDocument, error) {
	var raw struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedDocumentError{Reason: "invalid JSON", Err: err}
	}

	items := bytes.TrimSpace(raw.Items)
	if len(items) == 0 || bytes.Equal(items, []byte("null")) {
		return nil, &MalformedDocumentError{Reason: "missing items array"}
	}
	if items[0] != '[' {
		return nil, &MalformedDocumentError{Reason: "items is not an array"}
	}

	doc := &models.SourceDocument{}
	if err := json.Unmarshal(items, &doc.Items); err != nil {
		return nil, &MalformedDocumentError{Reason: "invalid item", Err: err}
	}
	return doc, nil
}
