package private

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"boostchat/internal/api"
	"boostchat/internal/stub"
)

func newTestOverlay(t *testing.T, participantID, participantName string) (*Overlay, *stub.Server, *api.Client) {
	t.Helper()
	backend := stub.New()
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	client := api.NewClient(ts.URL + "/api")
	overlay := NewOverlay(context.Background(), Config{
		API:             client,
		ParticipantID:   participantID,
		ParticipantName: participantName,
		PollInterval:    time.Hour, // ticks driven manually via PollNow
	})
	t.Cleanup(overlay.Close)
	return overlay, backend, client
}

func TestOpenIsIdempotent(t *testing.T) {
	overlay, backend, _ := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	require.True(t, overlay.IsOpen())
	first := overlay.Conversation()
	require.NotNil(t, first)

	overlay.Close()
	require.False(t, overlay.IsOpen())

	// Reopening the same pair resolves to the same conversation.
	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	second := overlay.Conversation()
	require.NotNil(t, second)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, backend.ConversationCount())
}

func TestOpenGuards(t *testing.T) {
	overlay, backend, _ := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	t.Run("SelfTarget", func(t *testing.T) {
		require.NoError(t, overlay.Open(ctx, "p-lea", "Léa"))
		require.False(t, overlay.IsOpen())
		require.Zero(t, backend.ConversationCount())
	})

	t.Run("EmptyTarget", func(t *testing.T) {
		require.NoError(t, overlay.Open(ctx, "", ""))
		require.False(t, overlay.IsOpen())
		require.Zero(t, backend.ConversationCount())
	})
}

func TestOpenWithoutIdentity(t *testing.T) {
	overlay, backend, _ := newTestOverlay(t, "", "")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	require.False(t, overlay.IsOpen())
	require.Zero(t, backend.ConversationCount())
}

func TestSendAppendsOwnMessage(t *testing.T) {
	overlay, _, client := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	overlay.SetDraft("on s'entraîne demain ?")
	require.Equal(t, "on s'entraîne demain ?", overlay.Draft())

	overlay.Send(ctx, overlay.Draft())
	require.Empty(t, overlay.Draft())

	msgs := overlay.Messages()
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Mine)
	require.Equal(t, "on s'entraîne demain ?", msgs[0].Text)
	require.NotEmpty(t, msgs[0].ID)
	require.NotEmpty(t, msgs[0].HTML)

	// The message landed server-side too.
	serverMsgs, err := client.PrivateMessages(ctx, overlay.Conversation().ID)
	require.NoError(t, err)
	require.Len(t, serverMsgs, 1)
}

func TestSendIgnoresBlankAndClosed(t *testing.T) {
	overlay, _, _ := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	// No open conversation: the send is dropped but the draft survives.
	overlay.SetDraft("dans le vide")
	overlay.Send(ctx, "dans le vide")
	require.Empty(t, overlay.Messages())
	require.Equal(t, "dans le vide", overlay.Draft())

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	overlay.SetDraft("   ")
	overlay.Send(ctx, "   ")
	require.Empty(t, overlay.Messages())
	require.Equal(t, "   ", overlay.Draft())

	// A real send does clear it.
	overlay.SetDraft("coucou")
	overlay.Send(ctx, "coucou")
	require.Len(t, overlay.Messages(), 1)
	require.Empty(t, overlay.Draft())
}

func TestPollPicksUpIncomingAndMarksRead(t *testing.T) {
	overlay, _, client := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	convID := overlay.Conversation().ID

	// The peer writes into the same conversation.
	_, err := client.SendPrivateMessage(ctx, api.PrivateMessageRequest{
		ConversationID: convID,
		SenderID:       "p-marc",
		SenderName:     "Marc",
		RecipientID:    "p-lea",
		RecipientName:  "Léa",
		Content:        "oui, 18h ?",
	})
	require.NoError(t, err)

	overlay.PollNow(ctx, convID)

	msgs := overlay.Messages()
	require.Len(t, msgs, 1)
	require.False(t, msgs[0].Mine)
	require.Equal(t, "oui, 18h ?", msgs[0].Text)
	require.NotEmpty(t, msgs[0].HTML)

	// Viewing the conversation marked the peer's message read.
	serverMsgs, err := client.PrivateMessages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, serverMsgs, 1)
	require.True(t, serverMsgs[0].Read)
}

func TestPollSkipsWhenCountUnchanged(t *testing.T) {
	overlay, _, client := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	convID := overlay.Conversation().ID
	overlay.Send(ctx, "coucou")
	require.Len(t, overlay.Messages(), 1)

	// Same count server-side: the tick leaves read state alone.
	overlay.PollNow(ctx, convID)
	serverMsgs, err := client.PrivateMessages(ctx, convID)
	require.NoError(t, err)
	require.False(t, serverMsgs[0].Read)
}

func TestCloseTearsDownWindow(t *testing.T) {
	overlay, _, _ := newTestOverlay(t, "p-lea", "Léa")
	ctx := context.Background()

	require.NoError(t, overlay.Open(ctx, "p-marc", "Marc"))
	overlay.Send(ctx, "coucou")
	overlay.SetDraft("brouillon")

	overlay.Close()
	require.False(t, overlay.IsOpen())
	require.Nil(t, overlay.Conversation())
	require.Empty(t, overlay.Messages())
	require.Empty(t, overlay.Draft())

	// A poll for the old conversation after close is a no-op.
	overlay.PollNow(ctx, "stale-id")
	require.Empty(t, overlay.Messages())
}
