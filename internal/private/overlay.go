// Package private manages the floating 1:1 conversation window layered
// on top of the main chat: its own message list, its own polling loop
// and read-receipt marking, sharing only the participant identity.
package private

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c-pro/geche"

	"boostchat/internal/api"
	"boostchat/internal/content"
	"boostchat/internal/models"
)

const conversationTTL = 10 * time.Minute

type Config struct {
	API *api.Client

	// Local participant. Private chat stays disabled until a resolved
	// participant id exists.
	ParticipantID   string
	ParticipantName string

	PollInterval time.Duration

	// OnUpdate fires after any visible state change.
	OnUpdate func()
}

// Overlay is the private-conversation window. At most one conversation
// is open at a time; closing it tears down polling but leaves the
// conversation on the server for later reopening.
type Overlay struct {
	mu  sync.Mutex
	cfg Config
	api *api.Client

	// Conversations are idempotent server-side; the cache only saves a
	// round trip when the same peer is reopened shortly after.
	recent geche.Geche[string, api.Conversation]

	conv     *models.PrivateConversation
	messages []models.PrivateMessage
	draft    string

	pollCancel context.CancelFunc
}

// NewOverlay builds the overlay. ctx bounds the lifetime of the
// conversation cache janitor.
func NewOverlay(ctx context.Context, cfg Config) *Overlay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Overlay{
		cfg:    cfg,
		api:    cfg.API,
		recent: geche.NewMapTTLCache[string, api.Conversation](ctx, conversationTTL, time.Minute),
	}
}

// Open creates-or-fetches the conversation with the target participant,
// loads its messages and opens the floating window. Guards make it a
// silent no-op without a local participant, without a target, or when
// the target is the local participant.
func (o *Overlay) Open(ctx context.Context, targetID, targetName string) error {
	if o.cfg.ParticipantID == "" || targetID == "" || targetID == o.cfg.ParticipantID {
		return nil
	}

	conv, err := o.recent.Get(targetID)
	if err != nil {
		conv, err = o.api.OpenConversation(ctx, api.ConversationRequest{
			Participant1ID:   o.cfg.ParticipantID,
			Participant1Name: o.cfg.ParticipantName,
			Participant2ID:   targetID,
			Participant2Name: targetName,
		})
		if err != nil {
			return fmt.Errorf("failed to open private conversation: %w", err)
		}
		o.recent.Set(targetID, conv)
	}

	msgs, err := o.api.PrivateMessages(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to load private messages: %w", err)
	}

	o.mu.Lock()
	if o.pollCancel != nil {
		o.pollCancel()
	}
	o.conv = &models.PrivateConversation{
		ID:             conv.ID,
		ParticipantAID: o.cfg.ParticipantID,
		ParticipantBID: targetID,
		RecipientName:  targetName,
	}
	o.messages = o.mapMessages(msgs)

	pollCtx, cancel := context.WithCancel(context.Background())
	o.pollCancel = cancel
	go o.runPoll(pollCtx, conv.ID)
	o.mu.Unlock()

	o.notifyUpdate()
	return nil
}

// Send posts the draft text into the open conversation and appends it
// locally as the sender's own message. Failures are logged and dropped:
// the private window has no error surface.
func (o *Overlay) Send(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	o.mu.Lock()
	conv := o.conv
	o.mu.Unlock()

	if conv == nil || text == "" {
		return
	}

	o.mu.Lock()
	o.draft = ""
	o.mu.Unlock()

	sent, err := o.api.SendPrivateMessage(ctx, api.PrivateMessageRequest{
		ConversationID: conv.ID,
		SenderID:       o.cfg.ParticipantID,
		SenderName:     o.cfg.ParticipantName,
		RecipientID:    conv.ParticipantBID,
		RecipientName:  conv.RecipientName,
		Content:        text,
	})
	if err != nil {
		slog.Warn("private send failed", "error", err)
		return
	}

	o.mu.Lock()
	o.messages = append(o.messages, models.PrivateMessage{
		ID:         sent.ID,
		Text:       text,
		HTML:       content.Linkify(text),
		SenderName: o.cfg.ParticipantName,
		SenderID:   o.cfg.ParticipantID,
		Mine:       true,
		CreatedAt:  sent.CreatedAt,
	})
	o.mu.Unlock()
	o.notifyUpdate()
}

// Close clears the conversation, its messages and the draft input. No
// server-side teardown: the conversation persists for reopening.
func (o *Overlay) Close() {
	o.mu.Lock()
	if o.pollCancel != nil {
		o.pollCancel()
		o.pollCancel = nil
	}
	o.conv = nil
	o.messages = nil
	o.draft = ""
	o.mu.Unlock()
	o.notifyUpdate()
}

func (o *Overlay) runPoll(ctx context.Context, conversationID string) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.PollNow(ctx, conversationID)
		}
	}
}

// PollNow performs one private-sync tick: refetch the full list and, if
// the count changed, replace it and mark the conversation read for the
// local participant.
func (o *Overlay) PollNow(ctx context.Context, conversationID string) {
	msgs, err := o.api.PrivateMessages(ctx, conversationID)
	if err != nil {
		slog.Warn("private poll failed", "error", err)
		return
	}

	o.mu.Lock()
	if o.conv == nil || o.conv.ID != conversationID || len(msgs) == len(o.messages) {
		o.mu.Unlock()
		return
	}
	o.messages = o.mapMessages(msgs)
	o.mu.Unlock()

	if err := o.api.MarkPrivateRead(ctx, conversationID, o.cfg.ParticipantID); err != nil {
		slog.Warn("private read mark failed", "error", err)
	}
	o.notifyUpdate()
}

func (o *Overlay) mapMessages(msgs []api.PrivateMessage) []models.PrivateMessage {
	mapped := make([]models.PrivateMessage, 0, len(msgs))
	for _, m := range msgs {
		mapped = append(mapped, models.PrivateMessage{
			ID:         m.ID,
			Text:       m.Content,
			HTML:       content.Linkify(m.Content),
			SenderName: m.SenderName,
			SenderID:   m.SenderID,
			Mine:       m.SenderID == o.cfg.ParticipantID,
			CreatedAt:  m.CreatedAt,
		})
	}
	return mapped
}

func (o *Overlay) notifyUpdate() {
	if o.cfg.OnUpdate != nil {
		o.cfg.OnUpdate()
	}
}

// IsOpen reports whether a conversation window is currently open.
func (o *Overlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv != nil
}

func (o *Overlay) Conversation() *models.PrivateConversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return nil
	}
	conv := *o.conv
	return &conv
}

func (o *Overlay) Messages() []models.PrivateMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := make([]models.PrivateMessage, len(o.messages))
	copy(msgs, o.messages)
	return msgs
}

func (o *Overlay) SetDraft(text string) {
	o.mu.Lock()
	o.draft = text
	o.mu.Unlock()
}

func (o *Overlay) Draft() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}
