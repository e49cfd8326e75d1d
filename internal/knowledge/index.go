package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Index is the document store the retriever searches.
type Index interface {
	// SemanticSearch returns documents whose cosine distance to vec is
	// below maxDistance, nearest first.
	SemanticSearch(ctx context.Context, propertyID string, vec []float32, maxDistance float64, limit int) ([]Document, error)
	// KeywordSearch returns documents whose title or content contains any
	// keyword, case-insensitively.
	KeywordSearch(ctx context.Context, propertyID string, keywords []string, limit int) ([]Document, error)
	// Replace deletes every document of the property and inserts docs.
	Replace(ctx context.Context, propertyID string, docs []Document) error
}

// MemoryIndex keeps documents in process. Used in tests and when no
// database is configured.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string][]Document
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string][]Document)}
}

func (m *MemoryIndex) SemanticSearch(_ context.Context, propertyID string, vec []float32, maxDistance float64, limit int) ([]Document, error) {
	m.mu.RLock()
	candidates := m.docs[propertyID]
	m.mu.RUnlock()

	type scored struct {
		distance float64
		doc      Document
	}
	var results []scored
	for _, doc := range candidates {
		if IsDegenerate(doc.Embedding) {
			continue
		}
		d := 1 - cosineSimilarity(vec, doc.Embedding)
		if d < maxDistance {
			results = append(results, scored{distance: d, doc: doc})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].distance < results[j].distance })

	out := make([]Document, 0, len(results))
	for _, r := range results {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.doc)
	}
	return out, nil
}

func (m *MemoryIndex) KeywordSearch(_ context.Context, propertyID string, keywords []string, limit int) ([]Document, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	candidates := m.docs[propertyID]
	m.mu.RUnlock()

	var out []Document
	for _, doc := range candidates {
		if limit > 0 && len(out) >= limit {
			break
		}
		title := strings.ToLower(doc.Title)
		content := strings.ToLower(doc.Content)
		for _, kw := range keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(title, kw) || strings.Contains(content, kw) {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryIndex) Replace(_ context.Context, propertyID string, docs []Document) error {
	stored := make([]Document, len(docs))
	now := time.Now().UTC()
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.PropertyID = propertyID
		stored[i] = doc
	}
	m.mu.Lock()
	m.docs[propertyID] = stored
	m.mu.Unlock()
	return nil
}

// Count returns the number of documents stored for a property.
func (m *MemoryIndex) Count(propertyID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[propertyID])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
