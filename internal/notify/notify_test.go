package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"boostchat/internal/api"
)

type fakeSubscriber struct {
	sub *webpush.Subscription
	err error
}

func (s fakeSubscriber) Subscribe(ctx context.Context) (*webpush.Subscription, error) {
	return s.sub, s.err
}

func newCountingBackend(t *testing.T) (*api.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(ts.Close)
	return api.NewClient(ts.URL), &calls
}

func TestPromptWithoutSubscriber(t *testing.T) {
	client, calls := newCountingBackend(t)
	m := NewPushManager(client, nil)

	enabled, err := m.Prompt(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if enabled || m.Enabled() {
		t.Error("expected push to stay disabled without a subscriber")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no registration calls, got %d", calls.Load())
	}
}

func TestPromptPermissionDenied(t *testing.T) {
	client, calls := newCountingBackend(t)
	m := NewPushManager(client, fakeSubscriber{sub: nil})

	enabled, err := m.Prompt(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if enabled {
		t.Error("denied permission must not enable push")
	}
	if calls.Load() != 0 {
		t.Errorf("expected no registration calls, got %d", calls.Load())
	}
}

func TestPromptRegistersSubscription(t *testing.T) {
	client, calls := newCountingBackend(t)
	m := NewPushManager(client, fakeSubscriber{sub: &webpush.Subscription{Endpoint: "https://push.test/sub"}})

	enabled, err := m.Prompt(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("Prompt failed: %v", err)
	}
	if !enabled || !m.Enabled() {
		t.Error("expected push enabled after granted subscription")
	}
	if calls.Load() != 1 {
		t.Errorf("expected one registration call, got %d", calls.Load())
	}
}

func TestSchedulePromptIsOneShot(t *testing.T) {
	client, calls := newCountingBackend(t)
	m := NewPushManager(client, fakeSubscriber{sub: &webpush.Subscription{Endpoint: "https://push.test/sub"}}).
		WithDelay(time.Millisecond)

	m.SchedulePrompt("p-1")
	m.SchedulePrompt("p-1")
	m.SchedulePrompt("p-1")

	deadline := time.After(time.Second)
	for !m.Enabled() {
		select {
		case <-deadline:
			t.Fatal("push never enabled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Settle: no further prompts may fire.
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected exactly one registration call, got %d", calls.Load())
	}
}
