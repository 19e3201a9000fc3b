// Package stub is an in-memory backend implementing the chat API
// contracts the widget consumes. It backs the package tests and the
// demo binary; it is not the production backend.
package stub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"boostchat/internal/api"
	"boostchat/internal/models"
)

type participant struct {
	ID       string
	Name     string
	Email    string
	WhatsApp string
}

type session struct {
	ID        string
	Title     string
	Mode      models.Mode
	AIActive  bool
	CreatedAt time.Time
	Deleted   bool
}

type message struct {
	ID         string
	SenderType string
	SenderID   string
	SenderName string
	Content    string
	CreatedAt  time.Time
	Deleted    bool
}

type conversation struct {
	ID               string
	Participant1ID   string
	Participant1Name string
	Participant2ID   string
	Participant2Name string
}

type privateMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	RecipientID    string
	RecipientName  string
	Content        string
	CreatedAt      time.Time
	Read           bool
}

// Server holds all backend state behind one mutex. New sessions get the
// configured mode; community mode shares a single session between all
// participants, mirroring the production grouping rules.
type Server struct {
	mu  sync.Mutex
	now func() time.Time

	sessionMode models.Mode
	aiActive    bool
	aiReply     func(input string) string
	unavailable bool

	participantsByEmail map[string]*participant
	sessionByOwner      map[string]string
	sessions            map[string]*session
	sessionOrder        []string
	messages            map[string][]*message

	conversations map[string]*conversation
	privMessages  map[string][]*privateMessage

	leads    []api.LeadRequest
	pushSubs map[string]*webpush.Subscription

	vapidPublicKey  string
	vapidPrivateKey string
	vapidSubject    string

	smartEntryCalls int
}

func New() *Server {
	return &Server{
		now:                 time.Now,
		sessionMode:         models.ModeAI,
		aiActive:            true,
		aiReply:             defaultAIReply,
		participantsByEmail: make(map[string]*participant),
		sessionByOwner:      make(map[string]string),
		sessions:            make(map[string]*session),
		messages:            make(map[string][]*message),
		conversations:       make(map[string]*conversation),
		privMessages:        make(map[string][]*privateMessage),
		pushSubs:            make(map[string]*webpush.Subscription),
	}
}

func defaultAIReply(input string) string {
	return "Très bonne question ! 💪 Parle-moi de tes objectifs et je te proposerai une session adaptée."
}

// SetSessionMode sets the mode and AI flag assigned to new sessions.
func (s *Server) SetSessionMode(mode models.Mode, aiActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionMode = mode
	s.aiActive = aiActive
}

// SetAIReply overrides the canned AI responder.
func (s *Server) SetAIReply(fn func(input string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiReply = fn
}

// SetUnavailable makes every endpoint answer 503, simulating an outage.
func (s *Server) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// SetVAPID enables webpush delivery of coach replies.
func (s *Server) SetVAPID(publicKey, privateKey, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vapidPublicKey = publicKey
	s.vapidPrivateKey = privateKey
	s.vapidSubject = subject
}

// Handler returns the API surface, mounted under /api like the
// production deployment.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat/smart-entry", s.guard(s.handleSmartEntry))
	mux.HandleFunc("GET /api/chat/sessions", s.guard(s.handleSessions))
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", s.guard(s.handleSessionMessages))
	mux.HandleFunc("POST /api/chat/ai-response", s.guard(s.handleAIResponse))
	mux.HandleFunc("POST /api/chat/coach-response", s.guard(s.handleCoachResponse))
	mux.HandleFunc("PUT /api/chat/messages/{id}/delete", s.guard(s.handleDeleteMessage))
	mux.HandleFunc("POST /api/chat", s.guard(s.handleLegacyChat))
	mux.HandleFunc("POST /api/private/conversations", s.guard(s.handleOpenConversation))
	mux.HandleFunc("GET /api/private/messages/{id}", s.guard(s.handlePrivateMessages))
	mux.HandleFunc("POST /api/private/messages", s.guard(s.handleSendPrivateMessage))
	mux.HandleFunc("PUT /api/private/messages/read/{id}", s.guard(s.handleMarkRead))
	mux.HandleFunc("POST /api/leads", s.guard(s.handleCreateLead))
	mux.HandleFunc("POST /api/notifications/subscribe", s.guard(s.handleSubscribe))

	return mux
}

func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.unavailable
		s.mu.Unlock()
		if down {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSmartEntry(w http.ResponseWriter, r *http.Request) {
	var req api.SmartEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.smartEntryCalls++

	email := strings.ToLower(strings.TrimSpace(req.Email))
	p, returning := s.participantsByEmail[email]
	if !returning {
		p = &participant{
			ID:       uuid.NewString(),
			Name:     req.Name,
			Email:    email,
			WhatsApp: req.WhatsApp,
		}
		s.participantsByEmail[email] = p
	}

	sess := s.sessionFor(p)

	var history []api.Message
	if returning {
		history = s.visibleMessages(sess.ID)
	}

	greeting := fmt.Sprintf("Bienvenue %s ! 💪 Prêt à booster ta forme ?", p.Name)
	if returning {
		greeting = fmt.Sprintf("Content de te revoir %s ! 👋 On reprend où on s'était arrêtés ?", p.Name)
	}
	s.mu.Unlock()

	writeJSON(w, api.SmartEntryResponse{
		Participant: api.Participant{ID: p.ID, Name: p.Name},
		Session: api.Session{
			ID:        sess.ID,
			Mode:      string(sess.Mode),
			AIActive:  sess.AIActive,
			CreatedAt: sess.CreatedAt.Unix(),
		},
		IsReturning: returning,
		ChatHistory: history,
		Message:     greeting,
	})
}

// sessionFor returns the participant's session, creating one with the
// configured mode. Community mode shares one session across everyone.
// Callers hold the lock.
func (s *Server) sessionFor(p *participant) *session {
	owner := p.ID
	if s.sessionMode == models.ModeCommunity {
		owner = "community"
	}

	if id, ok := s.sessionByOwner[owner]; ok {
		return s.sessions[id]
	}

	sess := &session{
		ID:        uuid.NewString(),
		Mode:      s.sessionMode,
		AIActive:  s.aiActive,
		CreatedAt: s.now(),
	}
	if owner == "community" {
		sess.Title = "Communauté"
	}
	s.sessionByOwner[owner] = sess.ID
	s.sessions[sess.ID] = sess
	s.sessionOrder = append(s.sessionOrder, sess.ID)
	return sess
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	summaries := make([]api.SessionSummary, 0, len(s.sessionOrder))
	for _, id := range s.sessionOrder {
		sess := s.sessions[id]
		summaries = append(summaries, api.SessionSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			Mode:      string(sess.Mode),
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
			IsDeleted: sess.Deleted,
		})
	}
	s.mu.Unlock()
	writeJSON(w, summaries)
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	msgs := s.visibleMessages(sessionID)
	s.mu.Unlock()

	writeJSON(w, msgs)
}

// visibleMessages maps non-deleted messages to the wire shape. Callers
// hold the lock.
func (s *Server) visibleMessages(sessionID string) []api.Message {
	msgs := make([]api.Message, 0, len(s.messages[sessionID]))
	for _, m := range s.messages[sessionID] {
		if m.Deleted {
			continue
		}
		msgs = append(msgs, api.Message{
			ID:         m.ID,
			SenderType: m.SenderType,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt.Format(time.RFC3339),
		})
	}
	return msgs
}

func (s *Server) handleAIResponse(w http.ResponseWriter, r *http.Request) {
	var req api.AIResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	senderName := ""
	for _, p := range s.participantsByEmail {
		if p.ID == req.ParticipantID {
			senderName = p.Name
			break
		}
	}
	s.appendMessage(req.SessionID, "user", req.ParticipantID, senderName, req.Message)

	result := api.AIResponseResult{AIActive: sess.AIActive}
	if sess.AIActive {
		result.Response = s.aiReply(req.Message)
		s.appendMessage(req.SessionID, "ai", "assistant", "Coach IA", result.Response)
	}
	s.mu.Unlock()

	writeJSON(w, result)
}

func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	var req api.LegacyChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	reply := s.aiReply(req.Message)
	s.mu.Unlock()

	writeJSON(w, map[string]string{"response": reply})
}

func (s *Server) handleCoachResponse(w http.ResponseWriter, r *http.Request) {
	var req api.CoachResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, ok := s.sessions[req.SessionID]; !ok {
		s.mu.Unlock()
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	s.appendMessage(req.SessionID, "coach", "coach", req.CoachName, req.Message)
	subs := make([]*webpush.Subscription, 0, len(s.pushSubs))
	if s.vapidPrivateKey != "" {
		for _, sub := range s.pushSubs {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	if len(subs) > 0 {
		go s.pushAll(subs, req.Message)
	}

	writeJSON(w, map[string]bool{"success": true})
}

// pushAll delivers a coach reply to every subscribed participant.
// Best-effort: failures are logged and otherwise ignored.
func (s *Server) pushAll(subs []*webpush.Subscription, content string) {
	payload, err := json.Marshal(map[string]string{
		"title": "Nouveau message du coach",
		"body":  content,
	})
	if err != nil {
		return
	}
	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
			Subscriber:      s.vapidSubject,
			VAPIDPublicKey:  s.vapidPublicKey,
			VAPIDPrivateKey: s.vapidPrivateKey,
			TTL:             30,
		})
		if err != nil {
			log.Printf("push delivery failed: %v", err)
			continue
		}
		_ = resp.Body.Close()
	}
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				m.Deleted = true
				writeJSON(w, map[string]bool{"success": true})
				return
			}
		}
	}
	http.Error(w, "Message not found", http.StatusNotFound)
}

func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	var req api.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant1ID == "" || req.Participant2ID == "" || req.Participant1ID == req.Participant2ID {
		http.Error(w, "Invalid participant pair", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	key := pairKey(req.Participant1ID, req.Participant2ID)
	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation{
			ID:               uuid.NewString(),
			Participant1ID:   req.Participant1ID,
			Participant1Name: req.Participant1Name,
			Participant2ID:   req.Participant2ID,
			Participant2Name: req.Participant2Name,
		}
		s.conversations[key] = conv
	}
	s.mu.Unlock()

	writeJSON(w, api.Conversation{
		ID:               conv.ID,
		Participant1ID:   conv.Participant1ID,
		Participant1Name: conv.Participant1Name,
		Participant2ID:   conv.Participant2ID,
		Participant2Name: conv.Participant2Name,
	})
}

func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

func (s *Server) handlePrivateMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	s.mu.Lock()
	msgs := make([]api.PrivateMessage, 0, len(s.privMessages[conversationID]))
	for _, m := range s.privMessages[conversationID] {
		msgs = append(msgs, api.PrivateMessage{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			SenderName:     m.SenderName,
			RecipientID:    m.RecipientID,
			RecipientName:  m.RecipientName,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt.Format(time.RFC3339),
			Read:           m.Read,
		})
	}
	s.mu.Unlock()

	writeJSON(w, msgs)
}

func (s *Server) handleSendPrivateMessage(w http.ResponseWriter, r *http.Request) {
	var req api.PrivateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || req.Content == "" {
		http.Error(w, "Missing conversation or content", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	msg := &privateMessage{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		RecipientID:    req.RecipientID,
		RecipientName:  req.RecipientName,
		Content:        req.Content,
		CreatedAt:      s.now(),
	}
	s.privMessages[req.ConversationID] = append(s.privMessages[req.ConversationID], msg)
	s.mu.Unlock()

	writeJSON(w, api.PrivateMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		RecipientID:    msg.RecipientID,
		RecipientName:  msg.RecipientName,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	readerID := r.URL.Query().Get("reader_id")

	s.mu.Lock()
	for _, m := range s.privMessages[conversationID] {
		if m.SenderID != readerID {
			m.Read = true
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req api.LeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.leads = append(s.leads, req)
	s.mu.Unlock()

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req api.PushSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" || req.Subscription == nil {
		http.Error(w, "Missing participant or subscription", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pushSubs[req.ParticipantID] = req.Subscription
	s.mu.Unlock()

	writeJSON(w, map[string]bool{"success": true})
}

// appendMessage records one message. Callers hold the lock.
func (s *Server) appendMessage(sessionID, senderType, senderID, senderName, content string) *message {
	msg := &message{
		ID:         uuid.NewString(),
		SenderType: senderType,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  s.now(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	return msg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Test and seeding helpers.

// SeedParticipant registers a participant with a session and returns
// both ids.
func (s *Server) SeedParticipant(name, email, whatsapp string) (participantID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	p, ok := s.participantsByEmail[email]
	if !ok {
		p = &participant{ID: uuid.NewString(), Name: name, Email: email, WhatsApp: whatsapp}
		s.participantsByEmail[email] = p
	}
	return p.ID, s.sessionFor(p).ID
}

// SeedSession registers a bare session (no owner) and returns its id.
func (s *Server) SeedSession(title string, mode models.Mode, aiActive, deleted bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		ID:        uuid.NewString(),
		Title:     title,
		Mode:      mode,
		AIActive:  aiActive,
		CreatedAt: s.now(),
		Deleted:   deleted,
	}
	s.sessions[sess.ID] = sess
	s.sessionOrder = append(s.sessionOrder, sess.ID)
	return sess.ID
}

// AppendMessage records a message server-side, as if another client had
// posted it, and returns the message id.
func (s *Server) AppendMessage(sessionID, senderType, senderID, senderName, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMessage(sessionID, senderType, senderID, senderName, content).ID
}

// SmartEntryCalls reports how many times smart entry was hit.
func (s *Server) SmartEntryCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smartEntryCalls
}

// ConversationCount reports how many distinct private conversations
// exist.
func (s *Server) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Leads returns the captured lead records.
func (s *Server) Leads() []api.LeadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	leads := make([]api.LeadRequest, len(s.leads))
	copy(leads, s.leads)
	return leads
}

// PushSubscriptionCount reports how many participants registered for
// push.
func (s *Server) PushSubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pushSubs)
}
