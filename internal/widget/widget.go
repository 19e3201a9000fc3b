package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"boostchat/internal/api"
	"boostchat/internal/content"
	"boostchat/internal/models"
	"boostchat/internal/notify"
)

// Step is the widget's current screen.
type Step string

const (
	StepForm  Step = "form"
	StepChat  Step = "chat"
	StepCoach Step = "coach"
)

const (
	fallbackGreeting  = "Enchanté %s ! 👋 Comment puis-je t'aider ?"
	returningGreeting = "Bonjour %s ! 😊 Comment puis-je t'aider ?"
	sendErrorText     = "Désolé, une erreur s'est produite. Veuillez réessayer."
	emptyReplyText    = "Désolé, je n'ai pas pu traiter votre message."
	waitingHumanText  = "Message reçu ! Le coach vous répondra bientôt. 💬"
	waitingGroupText  = "Message envoyé au groupe ! 👥 Les autres participants verront votre message."
	historyClearedMsg = "🗑️ Historique supprimé. Comment puis-je vous aider ?"
)

var linkTokenRe = regexp.MustCompile(`/chat/([a-zA-Z0-9-]+)`)

// Store is the durable identity/session store consumed by the widget.
type Store interface {
	LoadIdentity() (models.Identity, error)
	SaveIdentity(models.Identity) error
	LoadSession() (models.Session, error)
	SaveSession(models.Session) error
	Clear() error
}

type Config struct {
	API   *api.Client
	Store Store

	// CoachEmail identifies the operator: a stored identity with this
	// email flips the widget into coach mode.
	CoachEmail string
	CoachName  string

	// PageURL is the URL the widget was mounted on. A `/chat/{token}`
	// path segment carries a one-shot share/link token.
	PageURL string

	PollInterval time.Duration
	Player       notify.Player
	Push         *notify.PushManager

	// OnUpdate fires after any visible state change (render hook).
	OnUpdate func()
	// Confirm gates destructive actions. A nil hook declines.
	Confirm func(prompt string) bool
}

// Widget is the chat widget engine: lead capture, smart entry, the
// session/mode state machine, the message sync loop and the coach
// console. One instance per device profile.
type Widget struct {
	mu  sync.Mutex
	cfg Config

	api    *api.Client
	store  Store
	player notify.Player
	now    func() time.Time

	isOpen    bool
	step      Step
	lead      content.Lead
	returning bool
	coachMode bool
	degraded  bool

	participantID string
	session       *models.Session
	linkToken     string

	messages   []models.Message
	knownCount int // server-acknowledged message count (sync baseline)
	sentCount  int // messages sent this widget lifetime (push prompt parity)

	coachSessions   []models.CoachSessionSummary
	selectedSession *models.CoachSessionSummary

	syncCancel context.CancelFunc
}

// New builds a widget and performs the mount-time load: stored identity
// short-circuits the lead form, a stored session restores the mode, and
// a link token in the page URL marks the widget for auto-open.
func New(cfg Config) (*Widget, error) {
	if cfg.API == nil {
		return nil, errors.New("api client is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Player == nil {
		cfg.Player = notify.LogPlayer{}
	}
	if cfg.CoachName == "" {
		cfg.CoachName = "Coach"
	}

	w := &Widget{
		cfg:    cfg,
		api:    cfg.API,
		store:  cfg.Store,
		player: cfg.Player,
		now:    time.Now,
		step:   StepForm,
	}

	if m := linkTokenRe.FindStringSubmatch(cfg.PageURL); m != nil {
		w.linkToken = m[1]
	}

	w.loadStored()

	// Arriving through a shared link opens the widget immediately.
	if w.linkToken != "" {
		w.Open(context.Background())
	}

	return w, nil
}

// loadStored reads the persisted identity and cached session. Coach
// mode is a pure function of the stored identity, recomputed here on
// every load and never persisted separately.
func (w *Widget) loadStored() {
	if w.store == nil {
		return
	}

	identity, err := w.store.LoadIdentity()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Warn("identity load failed", "error", err)
		}
		return
	}

	w.mu.Lock()
	w.lead = content.Lead{
		FirstName: identity.DisplayName,
		Email:     identity.Email,
		WhatsApp:  identity.WhatsApp,
	}
	w.returning = true
	w.participantID = identity.ParticipantID
	w.coachMode = w.isCoachIdentity(identity.Email)

	if session, err := w.store.LoadSession(); err == nil {
		w.session = &session
	}
	w.mu.Unlock()
	w.updateSync()
}

func (w *Widget) isCoachIdentity(email string) bool {
	return w.cfg.CoachEmail != "" && strings.EqualFold(email, w.cfg.CoachEmail)
}

// Open shows the widget. A recognized operator at the form step is
// routed straight to the coach console; a recognized visitor at the
// form step re-enters through smart entry.
func (w *Widget) Open(ctx context.Context) {
	w.mu.Lock()
	w.isOpen = true
	coach := w.coachMode && w.step == StepForm
	reenter := !coach && w.returning && w.step == StepForm
	if coach {
		w.step = StepCoach
	}
	w.mu.Unlock()

	if coach {
		if err := w.LoadSessions(ctx); err != nil {
			slog.Warn("coach session list load failed", "error", err)
		}
		w.notifyUpdate()
		return
	}
	if reenter {
		if _, err := w.Reenter(ctx); err != nil {
			slog.Warn("returning-client entry failed", "error", err)
		}
		return
	}
	w.notifyUpdate()
}

// Close hides the widget. State is kept: reopening resumes wherever the
// conversation left off, and the sync loop keeps running while its own
// conditions hold.
func (w *Widget) Close() {
	w.mu.Lock()
	w.isOpen = false
	w.mu.Unlock()
	w.notifyUpdate()
}

// Shutdown tears down the sync loop. Call on unmount.
func (w *Widget) Shutdown() {
	w.mu.Lock()
	if w.syncCancel != nil {
		w.syncCancel()
		w.syncCancel = nil
	}
	w.mu.Unlock()
}

// SubmitLead validates the lead form and runs smart entry. A valid
// submission always lands the visitor in the chat step, even when the
// backend is unreachable (degraded entry). The lead record itself is
// sent best-effort on the side.
func (w *Widget) SubmitLead(ctx context.Context, lead content.Lead) error {
	lead, err := content.ValidateLead(lead)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lead = lead
	w.mu.Unlock()

	degraded, err := w.resolve(ctx, lead)
	if err != nil {
		return err
	}

	source := "widget_ia"
	if w.linkToken != "" {
		source = "link_" + w.linkToken
	}
	go func() {
		if err := w.api.CreateLead(context.Background(), api.LeadRequest{
			FirstName: lead.FirstName,
			WhatsApp:  lead.WhatsApp,
			Email:     lead.Email,
			Source:    source,
		}); err != nil {
			slog.Warn("lead creation failed, continuing anyway", "error", err)
		}
	}()

	if degraded {
		slog.Warn("smart entry degraded, chat continues without session")
	}
	return nil
}

// Reenter runs smart entry for an already-recognized visitor, skipping
// the lead form. Returns whether the entry was degraded.
func (w *Widget) Reenter(ctx context.Context) (bool, error) {
	w.mu.Lock()
	lead := w.lead
	w.mu.Unlock()
	if lead.FirstName == "" {
		return false, errors.New("no recognized identity")
	}
	return w.resolve(ctx, lead)
}

// resolve is the smart-entry exchange: contact tuple in,
// participant + session + optional history out. Any failure degrades to
// a local-only greeting: the visitor is never blocked from chatting by
// a backend hiccup.
func (w *Widget) resolve(ctx context.Context, lead content.Lead) (degraded bool, err error) {
	resp, err := w.api.SmartEntry(ctx, api.SmartEntryRequest{
		Name:      lead.FirstName,
		Email:     lead.Email,
		WhatsApp:  lead.WhatsApp,
		LinkToken: w.linkToken,
	})
	if err != nil {
		slog.Warn("smart entry failed", "error", err)
		w.mu.Lock()
		greeting := fallbackGreeting
		if w.returning {
			greeting = returningGreeting
		}
		w.messages = []models.Message{aiMessage(fmt.Sprintf(greeting, lead.FirstName))}
		w.knownCount = 1
		w.degraded = true
		w.step = StepChat
		w.mu.Unlock()
		w.updateSync()
		w.notifyUpdate()
		return true, nil
	}

	session := models.Session{
		ID:        resp.Session.ID,
		Mode:      models.Mode(resp.Session.Mode),
		AIActive:  resp.Session.AIActive,
		CreatedAt: resp.Session.CreatedAt,
	}
	identity := models.Identity{
		DisplayName:   lead.FirstName,
		Email:         lead.Email,
		WhatsApp:      lead.WhatsApp,
		ParticipantID: resp.Participant.ID,
	}

	if w.store != nil {
		if err := w.store.SaveIdentity(identity); err != nil {
			slog.Warn("identity save failed", "error", err)
		}
		if err := w.store.SaveSession(session); err != nil {
			slog.Warn("session save failed", "error", err)
		}
	}

	w.mu.Lock()
	w.participantID = resp.Participant.ID
	w.session = &session
	w.returning = resp.IsReturning
	w.coachMode = w.isCoachIdentity(lead.Email)
	w.degraded = false

	greeting := aiMessage(resp.Message)
	if resp.IsReturning && len(resp.ChatHistory) > 0 {
		restored := make([]models.Message, 0, len(resp.ChatHistory)+1)
		restored = append(restored, greeting)
		for _, m := range resp.ChatHistory {
			restored = append(restored, mapMessage(m))
		}
		w.messages = restored
		w.knownCount = len(resp.ChatHistory) + 1
	} else {
		w.messages = []models.Message{greeting}
		w.knownCount = 1
	}
	w.step = StepChat
	w.mu.Unlock()

	w.updateSync()
	w.notifyUpdate()
	return false, nil
}

// SendMessage appends the visitor's message optimistically, then routes
// it through the session-aware AI endpoint or the legacy fallback. The
// conversation always gets a visible outcome, even on failure.
func (w *Widget) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	w.mu.Lock()
	w.messages = append(w.messages, models.Message{
		Type:       models.MessageTypeUser,
		Text:       text,
		HTML:       content.Linkify(text),
		SenderName: w.lead.FirstName,
		SenderID:   w.participantID,
	})
	w.knownCount++
	priorSent := w.sentCount
	w.sentCount++
	session := w.session
	participantID := w.participantID
	lead := w.lead
	community := session != nil && session.Mode == models.ModeCommunity
	w.mu.Unlock()
	w.notifyUpdate()

	if session != nil && participantID != "" {
		resp, err := w.api.AIResponse(ctx, api.AIResponseRequest{
			SessionID:     session.ID,
			ParticipantID: participantID,
			Message:       text,
		})
		switch {
		case err != nil:
			slog.Warn("chat send failed", "error", err)
			w.appendLocal(aiMessage(sendErrorText))
		case resp.Response != "":
			w.player.Play(notify.CueMessage)
			w.appendAcked(aiMessage(resp.Response))
		case !resp.AIActive:
			notice := waitingHumanText
			if community {
				notice = waitingGroupText
			}
			w.appendLocal(aiMessage(notice))
		}
	} else {
		reply, err := w.api.LegacyChat(ctx, api.LegacyChatRequest{
			Message:   text,
			FirstName: lead.FirstName,
			Email:     lead.Email,
			WhatsApp:  lead.WhatsApp,
			Source:    "chat_ia",
		})
		if err != nil {
			slog.Warn("chat send failed", "error", err)
			w.appendLocal(aiMessage(sendErrorText))
		} else {
			w.player.Play(notify.CueMessage)
			if reply == "" {
				reply = emptyReplyText
			}
			w.appendLocal(aiMessage(reply))
		}
	}

	// The permission ask waits for the second message of the lifetime:
	// by then the visitor is invested enough for the prompt not to feel
	// like a door slam.
	if priorSent == 1 && participantID != "" && w.cfg.Push != nil && !w.cfg.Push.Enabled() {
		w.cfg.Push.SchedulePrompt(participantID)
	}

	return nil
}

// appendAcked appends a message that exists server-side and advances
// the sync baseline with it.
func (w *Widget) appendAcked(msg models.Message) {
	w.mu.Lock()
	w.messages = append(w.messages, msg)
	w.knownCount++
	w.mu.Unlock()
	w.notifyUpdate()
}

// appendLocal appends a message that only exists locally (fallback
// replies, error notices). The sync baseline is left alone so the next
// poll reconciles against server truth.
func (w *Widget) appendLocal(msg models.Message) {
	w.mu.Lock()
	w.messages = append(w.messages, msg)
	w.mu.Unlock()
	w.notifyUpdate()
}

// Reset is the explicit "change identity" action: durable records,
// session and conversation all go, back to the lead form.
func (w *Widget) Reset() {
	if w.store != nil {
		if err := w.store.Clear(); err != nil {
			slog.Warn("identity clear failed", "error", err)
		}
	}

	w.mu.Lock()
	w.lead = content.Lead{}
	w.returning = false
	w.coachMode = false
	w.degraded = false
	w.participantID = ""
	w.session = nil
	w.messages = nil
	w.knownCount = 0
	w.step = StepForm
	w.coachSessions = nil
	w.selectedSession = nil
	w.mu.Unlock()

	w.updateSync()
	w.notifyUpdate()
}

func (w *Widget) notifyUpdate() {
	if w.cfg.OnUpdate != nil {
		w.cfg.OnUpdate()
	}
}

// aiMessage builds a system-side message with its rendered body.
func aiMessage(text string) models.Message {
	return models.Message{
		Type: models.MessageTypeAI,
		Text: text,
		HTML: content.Linkify(text),
	}
}

func mapMessage(m api.Message) models.Message {
	return models.Message{
		ID:         m.ID,
		Type:       models.MessageTypeFromSender(m.SenderType),
		Text:       m.Content,
		HTML:       content.Linkify(m.Content),
		SenderName: m.SenderName,
		SenderID:   m.SenderID,
	}
}

// Accessors return copies; the widget owns its state.

func (w *Widget) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isOpen
}

func (w *Widget) IsReturning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.returning
}

func (w *Widget) IsCoachMode() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.coachMode
}

// IsDegraded reports whether the last entry fell back to a local-only
// greeting (no session, sync and private chat disabled).
func (w *Widget) IsDegraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

func (w *Widget) ParticipantID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.participantID
}

func (w *Widget) Lead() content.Lead {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lead
}

func (w *Widget) Session() *models.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil
	}
	session := *w.session
	return &session
}

func (w *Widget) Messages() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	msgs := make([]models.Message, len(w.messages))
	copy(msgs, w.messages)
	return msgs
}
