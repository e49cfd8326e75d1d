package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// Ingestor embeds and bulk-replaces a property's knowledge base.
type Ingestor struct {
	embedder Embedder
	index    Index
	logger   *logging.Logger
}

func NewIngestor(embedder Embedder, index Index, logger *logging.Logger) *Ingestor {
	if embedder == nil || index == nil {
		panic("knowledge: embedder and index are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingestor{embedder: embedder, index: index, logger: logger.Component("knowledge")}
}

// Replace validates, embeds and stores inputs, replacing every existing
// document of the property. Documents whose embedding failed are stored
// without one and remain reachable through keyword search.
func (i *Ingestor) Replace(ctx context.Context, propertyID string, inputs []DocumentInput) (int, error) {
	if strings.TrimSpace(propertyID) == "" {
		return 0, fmt.Errorf("%w: property id is required", ErrInvalidDocument)
	}
	docs := make([]Document, 0, len(inputs))
	degraded := 0
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return 0, err
		}
		category := strings.ToLower(strings.TrimSpace(in.Category))
		if category == "" {
			category = CategoryFAQs
		}
		vec := i.embedder.Embed(ctx, in.Title+"\n"+in.Content)
		if IsDegenerate(vec) {
			degraded++
		}
		docs = append(docs, Document{
			PropertyID: propertyID,
			Category:   category,
			Title:      strings.TrimSpace(in.Title),
			Content:    strings.TrimSpace(in.Content),
			Embedding:  vec,
		})
	}

	if err := i.index.Replace(ctx, propertyID, docs); err != nil {
		return 0, err
	}
	i.logger.Info("knowledge base replaced", "property_id", propertyID, "documents", len(docs), "without_embedding", degraded)
	return len(docs), nil
}
