package widget

import (
	"context"
	"log/slog"
	"time"

	"boostchat/internal/models"
	"boostchat/internal/notify"
)

// updateSync starts or stops the message poller so that it runs exactly
// while the invariant holds: a resolved session exists, the session is
// not AI-driven, and the widget shows the chat step. AI-mode sessions
// get their replies synchronously and need no polling.
func (w *Widget) updateSync() {
	w.mu.Lock()
	defer w.mu.Unlock()

	shouldRun := w.session != nil && !w.session.AIActive && w.step == StepChat

	if shouldRun && w.syncCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		w.syncCancel = cancel
		go w.runSync(ctx)
	}
	if !shouldRun && w.syncCancel != nil {
		w.syncCancel()
		w.syncCancel = nil
	}
}

func (w *Widget) runSync(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SyncNow(ctx)
		}
	}
}

// SyncNow performs one reconciliation tick: fetch the server's full
// message list and, when it grew past the known count, replace the
// local list wholesale. The newest message triggers a cue unless it
// came from the local participant or a plain user sender. A failed
// tick is skipped; the next one retries.
func (w *Widget) SyncNow(ctx context.Context) {
	w.mu.Lock()
	if w.session == nil {
		w.mu.Unlock()
		return
	}
	sessionID := w.session.ID
	w.mu.Unlock()

	msgs, err := w.api.SessionMessages(ctx, sessionID)
	if err != nil {
		slog.Warn("message poll failed", "error", err)
		return
	}

	w.mu.Lock()
	if len(msgs) <= w.knownCount {
		w.mu.Unlock()
		return
	}

	latest := msgs[len(msgs)-1]
	cue := latest.SenderID != w.participantID && latest.SenderType != string(models.MessageTypeUser)

	replaced := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		replaced = append(replaced, mapMessage(m))
	}
	w.messages = replaced
	w.knownCount = len(msgs)
	w.mu.Unlock()

	if cue {
		w.player.Play(notify.CueCoach)
	}
	w.notifyUpdate()
}
