package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var conversationRowColumns = []string{"id", "property_id", "channel", "guest_identifier", "guest_name",
	"status", "mode", "is_after_hours", "message_count", "started_at", "last_message_at", "ended_at"}

func fixedStore(mock pgxmock.PgxPoolIface, now time.Time) *PostgresStore {
	store := NewPostgresStore(mock)
	store.now = func() time.Time { return now }
	return store
}

func TestPostgresStoreGetOrCreateExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM conversations\\s+WHERE property_id = \\$1 AND guest_identifier = \\$2 AND status = 'active'").
		WithArgs("p1", "+6012").
		WillReturnRows(pgxmock.NewRows(conversationRowColumns).
			AddRow("11111111-1111-1111-1111-111111111111", "p1", "whatsapp", "+6012", "Aisyah",
				"active", "lead_capture", true, 3, now, &now, (*time.Time)(nil)))

	conv, err := fixedStore(mock, now).GetOrCreate(context.Background(), &Conversation{PropertyID: "p1", GuestIdentifier: "+6012", Channel: ChannelWhatsApp})
	require.NoError(t, err)
	assert.Equal(t, ModeLeadCapture, conv.Mode)
	assert.Equal(t, 3, conv.MessageCount)
	assert.True(t, conv.IsAfterHours)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetOrCreateInsertsThenReselectsOnConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("status = 'active'").
		WithArgs("p1", "g1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "p1", "web", "g1", pgxmock.AnyArg(), "concierge", false, 0, now, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("status = 'active'").
		WithArgs("p1", "g1").
		WillReturnRows(pgxmock.NewRows(conversationRowColumns).
			AddRow("22222222-2222-2222-2222-222222222222", "p1", "web", "g1", "",
				"active", "concierge", false, 0, now, &now, (*time.Time)(nil)))

	conv, err := fixedStore(mock, now).GetOrCreate(context.Background(), &Conversation{PropertyID: "p1", GuestIdentifier: "g1", Channel: ChannelWeb})
	require.NoError(t, err)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", conv.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSaveNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewPostgresStore(mock).Save(context.Background(), &Conversation{ID: "33333333-3333-3333-3333-333333333333", Status: StatusActive, Mode: ModeConcierge})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestPostgresStoreAppendAndRecentMessages(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), "conv-1", "ai", "Hello", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := fixedStore(mock, now)
	require.NoError(t, store.AppendMessage(context.Background(), &Message{
		ConversationID: "conv-1",
		Role:           RoleAI,
		Content:        "Hello",
		Metadata:       MessageMetadata{Provider: "gemini", Mode: ModeConcierge, Channel: ChannelWeb},
	}))

	mock.ExpectQuery("ORDER BY sent_at DESC").
		WithArgs("conv-1", HistoryWindow).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "role", "content", "metadata", "sent_at"}).
			AddRow("m2", "conv-1", "ai", "Hello", []byte(`{"provider":"gemini"}`), now.Add(time.Second)).
			AddRow("m1", "conv-1", "guest", "Hi", []byte(`{"channel":"web"}`), now))

	msgs, err := store.RecentMessages(context.Background(), "conv-1", HistoryWindow)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID, "messages are returned oldest first")
	assert.Equal(t, RoleGuest, msgs[0].Role)
	assert.Equal(t, "gemini", msgs[1].Metadata.Provider)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetRejectsNonUUID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStore(mock).Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
