package graph

// Document is one ingestion input record as handed over by the data
// acquisition side: an identifier, source metadata, and raw text. The
// pipeline segments the text into sentences before annotation.
type Document struct {
	ID          string `json:"document_id"`
	SourceTitle string `json:"source_title"`
	SourceType  string `json:"source_type"`
	Text        string `json:"raw_text"`
}

// Ref returns the provenance record for this document with a mention
// count of one; stores accumulate counts across merges.
func (d Document) Ref() SourceRef {
	return SourceRef{SourceTitle: d.SourceTitle, SourceType: d.SourceType, MentionCount: 1}
}

// Sentence is one extraction window. Relationships are never linked across
// sentence boundaries.
type Sentence struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}
