package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"boostchat/internal/api"
	"boostchat/internal/models"
	"boostchat/internal/notify"
)

// LoadSessions refreshes the operator's session browser. Soft-deleted
// sessions are filtered out; the server's order is preserved.
func (w *Widget) LoadSessions(ctx context.Context) error {
	summaries, err := w.api.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	active := make([]models.CoachSessionSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.IsDeleted {
			continue
		}
		active = append(active, models.CoachSessionSummary{
			ID:        s.ID,
			Title:     s.Title,
			Mode:      models.Mode(s.Mode),
			CreatedAt: s.CreatedAt,
		})
	}

	w.mu.Lock()
	w.coachSessions = active
	w.mu.Unlock()
	w.notifyUpdate()
	return nil
}

// SelectSession loads a browsed session's messages into the shared
// message shape, regardless of who the session belongs to.
func (w *Widget) SelectSession(ctx context.Context, summary models.CoachSessionSummary) error {
	w.mu.Lock()
	w.selectedSession = &summary
	w.mu.Unlock()
	w.notifyUpdate()

	return w.loadSelectedMessages(ctx, summary.ID)
}

// Back clears the session selection without leaving the coach console.
func (w *Widget) Back() {
	w.mu.Lock()
	w.selectedSession = nil
	w.messages = nil
	w.knownCount = 0
	w.mu.Unlock()
	w.notifyUpdate()
}

// Reply posts a coach-typed message against the selected session, then
// reloads the list from the server: pull-after-push trades a little
// latency for guaranteed consistency with server state.
func (w *Widget) Reply(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	w.mu.Lock()
	selected := w.selectedSession
	w.mu.Unlock()
	if selected == nil {
		return errors.New("no session selected")
	}

	err := w.api.CoachResponse(ctx, api.CoachResponseRequest{
		SessionID: selected.ID,
		Message:   text,
		CoachName: w.cfg.CoachName,
	})
	if err != nil {
		return fmt.Errorf("failed to send coach response: %w", err)
	}

	if err := w.loadSelectedMessages(ctx, selected.ID); err != nil {
		return err
	}
	w.player.Play(notify.CueMessage)
	return nil
}

func (w *Widget) loadSelectedMessages(ctx context.Context, sessionID string) error {
	msgs, err := w.api.SessionMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session messages: %w", err)
	}

	loaded := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		loaded = append(loaded, mapMessage(m))
	}

	w.mu.Lock()
	w.messages = loaded
	w.knownCount = len(loaded)
	w.mu.Unlock()
	w.notifyUpdate()
	return nil
}

func (w *Widget) SelectedSession() *models.CoachSessionSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selectedSession == nil {
		return nil
	}
	selected := *w.selectedSession
	return &selected
}

func (w *Widget) CoachSessions() []models.CoachSessionSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	sessions := make([]models.CoachSessionSummary, len(w.coachSessions))
	copy(sessions, w.coachSessions)
	return sessions
}

// DeleteHistory marks every server-backed message of the current
// conversation as deleted, one request per message, then resets the
// local view to a single system notice. Per-item failures do not stop
// the loop; they come back joined into one summary error.
func (w *Widget) DeleteHistory(ctx context.Context) error {
	w.mu.Lock()
	session := w.session
	snapshot := make([]models.Message, len(w.messages))
	copy(snapshot, w.messages)
	w.mu.Unlock()

	if session == nil {
		return nil
	}
	if w.cfg.Confirm == nil || !w.cfg.Confirm("Êtes-vous sûr de vouloir supprimer votre historique de conversation ?") {
		return nil
	}

	var errs []error
	for _, msg := range snapshot {
		if msg.ID == "" {
			continue
		}
		if err := w.api.DeleteMessage(ctx, msg.ID); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
		}
	}

	w.mu.Lock()
	w.messages = []models.Message{aiMessage(historyClearedMsg)}
	w.knownCount = 1
	w.mu.Unlock()
	w.notifyUpdate()

	return errors.Join(errs...)
}
