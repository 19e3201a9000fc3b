package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"boostchat/internal/api"
)

type Cue string

const (
	// CueMessage confirms an outgoing message or a synchronous reply.
	CueMessage Cue = "message"
	// CueCoach signals an incoming message from a non-user sender.
	CueCoach Cue = "coach"
)

// Player plays short notification cues. Tone synthesis is platform
// territory and stays outside this module; embedders plug their own.
type Player interface {
	Play(cue Cue)
}

// LogPlayer is the default Player: it only logs the cue.
type LogPlayer struct{}

func (LogPlayer) Play(cue Cue) {
	slog.Debug("notification cue", "cue", string(cue))
}

// Subscriber asks the platform for notification permission and, when
// granted, yields a webpush subscription for this device.
type Subscriber interface {
	Subscribe(ctx context.Context) (*webpush.Subscription, error)
}

const promptDelay = 2 * time.Second

// PushManager owns push-notification bootstrapping: it prompts at most
// once per widget lifetime, after a short delay so the ask is not the
// first thing the visitor sees, and registers the granted subscription
// with the backend.
type PushManager struct {
	mu         sync.Mutex
	client     *api.Client
	subscriber Subscriber
	delay      time.Duration
	enabled    bool
	prompted   bool
}

func NewPushManager(client *api.Client, subscriber Subscriber) *PushManager {
	return &PushManager{
		client:     client,
		subscriber: subscriber,
		delay:      promptDelay,
	}
}

// WithDelay overrides the prompt delay (tests).
func (m *PushManager) WithDelay(d time.Duration) *PushManager {
	m.delay = d
	return m
}

func (m *PushManager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SchedulePrompt arms the one-time permission prompt for the given
// participant. Subsequent calls, or calls after push is already
// enabled, are no-ops.
func (m *PushManager) SchedulePrompt(participantID string) {
	m.mu.Lock()
	if m.prompted || m.enabled || m.subscriber == nil || participantID == "" {
		m.mu.Unlock()
		return
	}
	m.prompted = true
	m.mu.Unlock()

	time.AfterFunc(m.delay, func() {
		if _, err := m.Prompt(context.Background(), participantID); err != nil {
			slog.Warn("push prompt failed", "error", err)
		}
	})
}

// Prompt asks the platform for a subscription and registers it with the
// backend. Returns whether push ended up enabled.
func (m *PushManager) Prompt(ctx context.Context, participantID string) (bool, error) {
	if m.subscriber == nil {
		return false, nil
	}

	sub, err := m.subscriber.Subscribe(ctx)
	if err != nil {
		return false, err
	}
	if sub == nil {
		// Permission denied is not an error, just a "no".
		return false, nil
	}

	if err := m.client.SubscribePush(ctx, participantID, sub); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
	return true, nil
}
