package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

type Mode string

const (
	ModeAI        Mode = "ai"
	ModeHuman     Mode = "human"
	ModeCommunity Mode = "community"
)

type MessageType string

const (
	MessageTypeUser  MessageType = "user"
	MessageTypeAI    MessageType = "ai"
	MessageTypeCoach MessageType = "coach"
)

// MessageTypeFromSender maps the server-provided sender role enum to a
// message type. The server is the authority here: anything that is not
// a plain user or the coach renders as an AI message.
func MessageTypeFromSender(senderType string) MessageType {
	switch senderType {
	case "user":
		return MessageTypeUser
	case "coach":
		return MessageTypeCoach
	default:
		return MessageTypeAI
	}
}

// Identity is the persisted visitor profile recognized across visits.
// ParticipantID is empty until the first successful smart entry.
type Identity struct {
	DisplayName   string `json:"displayName"`
	Email         string `json:"email"`
	WhatsApp      string `json:"whatsapp"`
	ParticipantID string `json:"participantId,omitempty"`
	SavedAt       int64  `json:"savedAt"` // Unix timestamp (seconds)
}

// Session is a server-assigned conversation context. The backend may
// flip Mode and AIActive server-side (coach takeover); everything else
// is immutable once issued.
type Session struct {
	ID        string `json:"id"`
	Mode      Mode   `json:"mode"`
	AIActive  bool   `json:"aiActive"`
	CreatedAt int64  `json:"createdAt"`
}

// Message is one entry of the session-scoped conversation. Ordering is
// whatever the server returned; the sync engine replaces the local list
// wholesale and never reorders it locally.
type Message struct {
	ID         string      `json:"id,omitempty"`
	Type       MessageType `json:"type"`
	Text       string      `json:"text"`
	// HTML is the sanitized, linkified rendering of Text, safe to
	// inject into a page.
	HTML       string `json:"html"`
	SenderName string `json:"senderName,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
}

// PrivateConversation is a 1:1 side channel between two participants,
// independent of the main session.
type PrivateConversation struct {
	ID             string `json:"id"`
	ParticipantAID string `json:"participantAId"`
	ParticipantBID string `json:"participantBId"`
	RecipientName  string `json:"recipientName"`
}

type PrivateMessage struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HTML       string `json:"html"`
	SenderName string `json:"senderName"`
	SenderID   string `json:"senderId"`
	Mine       bool   `json:"mine"`
	CreatedAt  string `json:"createdAt"`
}

// CoachSessionSummary is the read-only projection of a session shown in
// the operator's session browser.
type CoachSessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Mode      Mode   `json:"mode"`
	CreatedAt string `json:"createdAt"`
	Deleted   bool   `json:"deleted"`
}
