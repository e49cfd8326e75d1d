package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxKeywords      = 5
	rawKeywordLimit  = 3
	minKeywordLength = 3
)

// stopWords is the bilingual (English / Bahasa Malaysia) list dropped from
// keyword queries.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "do": {}, "you": {}, "have": {},
	"can": {}, "i": {}, "we": {}, "my": {}, "your": {}, "what": {}, "how": {}, "when": {},
	"where": {}, "for": {}, "and": {}, "or": {}, "to": {}, "in": {}, "at": {}, "of": {},
	"it": {}, "this": {}, "that": {}, "any": {},
	"ada": {}, "boleh": {}, "apa": {}, "saya": {}, "nak": {}, "ke": {}, "di": {},
	"yang": {}, "ini": {}, "itu": {},
}

// StageRecorder observes which retrieval stage answered a search.
type StageRecorder interface {
	ObserveRetrieval(stage string)
}

// Retriever runs semantic search first and keyword search when that finds
// nothing. It never returns an error.
type Retriever struct {
	embedder    Embedder
	index       Index
	maxDistance float64
	timeout     time.Duration
	logger      *logging.Logger
	recorder    StageRecorder
	tracer      trace.Tracer
}

// RetrieverConfig tunes a Retriever.
type RetrieverConfig struct {
	MaxDistance float64
	Timeout     time.Duration
	Logger      *logging.Logger
	Recorder    StageRecorder
}

func NewRetriever(embedder Embedder, index Index, cfg RetrieverConfig) *Retriever {
	if embedder == nil || index == nil {
		panic("knowledge: embedder and index are required")
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = 0.3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		maxDistance: cfg.MaxDistance,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger.Component("knowledge"),
		recorder:    cfg.Recorder,
		tracer:      otel.Tracer("concierge.internal.knowledge"),
	}
}

// Search returns up to limit documents for the property, possibly none.
func (r *Retriever) Search(ctx context.Context, propertyID, query string, limit int) []Document {
	if limit <= 0 {
		limit = 5
	}
	ctx, span := r.tracer.Start(ctx, "knowledge.search", trace.WithAttributes(attribute.String("property_id", propertyID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec := r.embedder.Embed(ctx, query)
	if !IsDegenerate(vec) {
		docs, err := r.index.SemanticSearch(ctx, propertyID, vec, r.maxDistance, limit)
		if err != nil {
			span.RecordError(err)
			r.logger.Warn("semantic search failed, trying keyword fallback", "property_id", propertyID, "error", err)
		} else if len(docs) > 0 {
			r.observe("semantic")
			span.SetAttributes(attribute.String("knowledge.stage", "semantic"))
			return docs
		}
	}

	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		r.observe("empty")
		return nil
	}
	docs, err := r.index.KeywordSearch(ctx, propertyID, keywords, limit)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("keyword search failed", "property_id", propertyID, "error", err)
		r.observe("error")
		return nil
	}
	if len(docs) == 0 {
		r.observe("empty")
		return nil
	}
	r.logger.Info("keyword fallback returned results", "property_id", propertyID, "count", len(docs), "keywords", keywords)
	r.observe("keyword")
	span.SetAttributes(attribute.String("knowledge.stage", "keyword"))
	return docs
}

func (r *Retriever) observe(stage string) {
	if r.recorder != nil {
		r.recorder.ObserveRetrieval(stage)
	}
}

// ExtractKeywords lowercases and splits the query, keeps words longer than
// two characters, strips trailing punctuation and drops stop words. At most
// five keywords are kept; if every word was a stop word the first three
// words are used instead.
func ExtractKeywords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) < minKeywordLength {
			continue
		}
		w = strings.Trim(w, "?!.,")
		if w == "" {
			continue
		}
		words = append(words, w)
	}

	var keywords []string
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	if len(keywords) == 0 && len(words) > 0 {
		n := rawKeywordLimit
		if len(words) < n {
			n = len(words)
		}
		keywords = words[:n]
	}
	return keywords
}
