package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations and their messages.
type Store interface {
	// GetOrCreate returns the active conversation for the candidate's
	// property and guest, inserting the candidate when none exists.
	GetOrCreate(ctx context.Context, candidate *Conversation) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	AppendMessage(ctx context.Context, msg *Message) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	AllMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, candidate *Conversation) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Conversation
	for _, c := range s.conversations {
		if c.PropertyID != candidate.PropertyID || c.GuestIdentifier != candidate.GuestIdentifier || c.Status != StatusActive {
			continue
		}
		if found == nil || c.StartedAt.After(found.StartedAt) {
			found = c
		}
	}
	if found != nil {
		out := *found
		return &out, nil
	}

	conv := *candidate
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.Status == "" {
		conv.Status = StatusActive
	}
	if conv.Mode == "" {
		conv.Mode = ModeConcierge
	}
	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now().UTC()
	}
	s.conversations[conv.ID] = &conv

	out := conv
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrConversationNotFound
	}
	stored := *conv
	s.conversations[conv.ID] = &stored
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrConversationNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (s *MemoryStore) AllMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[conversationID]...), nil
}
