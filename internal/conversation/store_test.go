package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetOrCreateReusesActive(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p1", GuestIdentifier: "+6012", Channel: ChannelWhatsApp})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, first.Status)
	assert.Equal(t, ModeConcierge, first.Mode)

	again, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p1", GuestIdentifier: "+6012", Channel: ChannelWhatsApp, IsAfterHours: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.False(t, again.IsAfterHours, "after-hours flag is fixed at creation")

	other, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p2", GuestIdentifier: "+6012", Channel: ChannelWhatsApp})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestMemoryStoreHandedOffStartsNewConversation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p1", GuestIdentifier: "g1", Channel: ChannelWeb})
	require.NoError(t, err)
	conv.Status = StatusHandedOff
	require.NoError(t, store.Save(ctx, conv))

	next, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p1", GuestIdentifier: "g1", Channel: ChannelWeb})
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, next.ID)
}

func TestMemoryStoreMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, err := store.GetOrCreate(ctx, &Conversation{PropertyID: "p1", GuestIdentifier: "g1", Channel: ChannelWeb})
	require.NoError(t, err)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ConversationID: conv.ID,
			Role:           RoleGuest,
			Content:        fmt.Sprintf("msg %d", i),
			SentAt:         base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := store.RecentMessages(ctx, conv.ID, HistoryWindow)
	require.NoError(t, err)
	require.Len(t, recent, HistoryWindow)
	assert.Equal(t, "msg 2", recent[0].Content)
	assert.Equal(t, "msg 11", recent[9].Content)

	all, err := store.AllMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, all, 12)

	err = store.AppendMessage(ctx, &Message{ConversationID: "missing", Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	err = store.Save(ctx, &Conversation{ID: "missing"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
