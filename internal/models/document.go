package models

// SourceItem is one element of the structured source document.
// Only items of type "text" are chunked.
type SourceItem struct {
	Type    string `json:"type"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

// SourceDocument is the page-tagged container the chunker consumes.
type SourceDocument struct {
	Items []SourceItem `json:"items"`
}

// TextItems returns the items of type "text" in document order.
func (d *SourceDocument) TextItems() []SourceItem {
	items := make([]SourceItem, 0, len(d.Items))
	for _, item := range d.Items {
		if item.Type == ItemTypeText {
			items = append(items, item)
		}
	}
	return items
}
