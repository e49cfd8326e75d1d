// Package knowledge stores property reference documents and retrieves the
// ones relevant to a guest question.
package knowledge

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDocument is returned for ingest payloads missing required fields.
var ErrInvalidDocument = errors.New("knowledge: invalid document")

// Category tags a document. Free-form values are accepted; these are the
// ones the admin UI offers.
const (
	CategoryRates      = "rates"
	CategoryRooms      = "rooms"
	CategoryFacilities = "facilities"
	CategoryFAQs       = "faqs"
	CategoryDirections = "directions"
	CategoryPolicies   = "policies"
)

// Document is one chunk of property knowledge.
type Document struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Category   string    `json:"category"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentInput is the ingest payload for a single document.
type DocumentInput struct {
	Category string `json:"doc_type" yaml:"doc_type"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
}

// Validate checks the fields required for ingestion.
func (d DocumentInput) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: %q has no content", ErrInvalidDocument, d.Title)
	}
	return nil
}

// NoContextText is used in prompts when retrieval found nothing.
const NoContextText = "No property information available yet."

// FormatContext renders documents as prompt context, one block per document.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return NoContextText
	}
	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		blocks = append(blocks, fmt.Sprintf("[%s] %s:\n%s", strings.ToUpper(doc.Category), doc.Title, doc.Content))
	}
	return strings.Join(blocks, "\n\n")
}
