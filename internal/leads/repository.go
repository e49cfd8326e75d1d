package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, lead *Lead) (*Lead, error)
	GetByConversation(ctx context.Context, conversationID string) (*Lead, error)
	ListByProperty(ctx context.Context, propertyID string, filter ListFilter) ([]*Lead, error)
}

// InMemoryRepository keeps leads in process memory.
type InMemoryRepository struct {
	mu             sync.RWMutex
	byConversation map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byConversation: make(map[string]*Lead),
	}
}

// Create stores a lead, one per conversation.
func (r *InMemoryRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}

	stored := *lead
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Status == "" {
		stored.Status = StatusNew
	}
	if stored.CapturedAt.IsZero() {
		stored.CapturedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byConversation[stored.ConversationID]; exists {
		return nil, ErrLeadExists
	}
	r.byConversation[stored.ConversationID] = &stored

	out := stored
	return &out, nil
}

// GetByConversation returns the lead captured in a conversation.
func (r *InMemoryRepository) GetByConversation(ctx context.Context, conversationID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.byConversation[conversationID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	out := *lead
	return &out, nil
}

// ListByProperty returns a property's leads, newest first.
func (r *InMemoryRepository) ListByProperty(ctx context.Context, propertyID string, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	var out []*Lead
	for _, lead := range r.byConversation {
		if lead.PropertyID != propertyID {
			continue
		}
		if filter.Priority != "" && !strings.EqualFold(lead.Priority, filter.Priority) {
			continue
		}
		copied := *lead
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Lead{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
