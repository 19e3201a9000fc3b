package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Client talks to the chat backend. Calls carry no client-side timeout:
// cancellation comes from the caller's context, a hang degrades to a
// visible spinner rather than an error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type SmartEntryRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	WhatsApp  string `json:"whatsapp"`
	LinkToken string `json:"link_token,omitempty"`
}

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Session struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	AIActive  bool   `json:"is_ai_active"`
	CreatedAt int64  `json:"created_at"`
}

type Message struct {
	ID         string `json:"id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	CreatedAt  string `json:"created_at"`
}

type SmartEntryResponse struct {
	Participant Participant `json:"participant"`
	Session     Session     `json:"session"`
	IsReturning bool        `json:"is_returning"`
	ChatHistory []Message   `json:"chat_history,omitempty"`
	Message     string      `json:"message"`
}

// SmartEntry exchanges the visitor's contact tuple for a canonical
// participant, a session and possibly restored history.
func (c *Client) SmartEntry(ctx context.Context, req SmartEntryRequest) (SmartEntryResponse, error) {
	var resp SmartEntryResponse
	err := c.doJSON(ctx, http.MethodPost, "/chat/smart-entry", req, &resp)
	return resp, err
}

// SessionMessages returns the full ordered message list for a session.
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	err := c.doJSON(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &msgs)
	return msgs, err
}

type AIResponseRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Message       string `json:"message"`
}

type AIResponseResult struct {
	Response string `json:"response,omitempty"`
	AIActive bool   `json:"ai_active"`
}

// AIResponse posts a visitor message against a resolved session.
func (c *Client) AIResponse(ctx context.Context, req AIResponseRequest) (AIResponseResult, error) {
	var resp AIResponseResult
	err := c.doJSON(ctx, http.MethodPost, "/chat/ai-response", req, &resp)
	return resp, err
}

type LegacyChatRequest struct {
	Message   string `json:"message"`
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	WhatsApp  string `json:"whatsapp"`
	Source    string `json:"source"`
	LeadID    string `json:"leadId"`
}

// LegacyChat is the session-less fallback chat endpoint.
func (c *Client) LegacyChat(ctx context.Context, req LegacyChatRequest) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/chat", req, &resp)
	return resp.Response, err
}

type CoachResponseRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	CoachName string `json:"coach_name"`
}

func (c *Client) CoachResponse(ctx context.Context, req CoachResponseRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/chat/coach-response", req, nil)
}

// DeleteMessage soft-deletes one message by id.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPut, "/chat/messages/"+url.PathEscape(messageID)+"/delete", nil, nil)
}

type SessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Mode      string `json:"mode"`
	CreatedAt string `json:"created_at"`
	IsDeleted bool   `json:"is_deleted"`
}

// Sessions lists all sessions, soft-deleted ones included; filtering is
// the caller's concern.
func (c *Client) Sessions(ctx context.Context) ([]SessionSummary, error) {
	var sessions []SessionSummary
	err := c.doJSON(ctx, http.MethodGet, "/chat/sessions", nil, &sessions)
	return sessions, err
}

type ConversationRequest struct {
	Participant1ID   string `json:"participant_1_id"`
	Participant1Name string `json:"participant_1_name"`
	Participant2ID   string `json:"participant_2_id"`
	Participant2Name string `json:"participant_2_name"`
}

type Conversation struct {
	ID               string `json:"id"`
	Participant1ID   string `json:"participant_1_id"`
	Participant1Name string `json:"participant_1_name"`
	Participant2ID   string `json:"participant_2_id"`
	Participant2Name string `json:"participant_2_name"`
}

// OpenConversation creates or fetches the private conversation between
// two participants. The server keys conversations by the participant
// pair, so repeated calls return the same record.
func (c *Client) OpenConversation(ctx context.Context, req ConversationRequest) (Conversation, error) {
	var conv Conversation
	err := c.doJSON(ctx, http.MethodPost, "/private/conversations", req, &conv)
	return conv, err
}

type PrivateMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	RecipientID    string `json:"recipient_id"`
	RecipientName  string `json:"recipient_name"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	Read           bool   `json:"read"`
}

func (c *Client) PrivateMessages(ctx context.Context, conversationID string) ([]PrivateMessage, error) {
	var msgs []PrivateMessage
	err := c.doJSON(ctx, http.MethodGet, "/private/messages/"+url.PathEscape(conversationID), nil, &msgs)
	return msgs, err
}

type PrivateMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	RecipientID    string `json:"recipient_id"`
	RecipientName  string `json:"recipient_name"`
	Content        string `json:"content"`
}

func (c *Client) SendPrivateMessage(ctx context.Context, req PrivateMessageRequest) (PrivateMessage, error) {
	var msg PrivateMessage
	err := c.doJSON(ctx, http.MethodPost, "/private/messages", req, &msg)
	return msg, err
}

// MarkPrivateRead marks every message of a conversation as read for the
// given reader.
func (c *Client) MarkPrivateRead(ctx context.Context, conversationID, readerID string) error {
	path := "/private/messages/read/" + url.PathEscape(conversationID) + "?reader_id=" + url.QueryEscape(readerID)
	return c.doJSON(ctx, http.MethodPut, path, nil, nil)
}

type LeadRequest struct {
	FirstName string `json:"firstName"`
	WhatsApp  string `json:"whatsapp"`
	Email     string `json:"email"`
	Source    string `json:"source"`
}

// CreateLead records a lead. Best-effort: callers fire and forget.
func (c *Client) CreateLead(ctx context.Context, req LeadRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/leads", req, nil)
}

type PushSubscriptionRequest struct {
	ParticipantID string                `json:"participant_id"`
	Subscription  *webpush.Subscription `json:"subscription"`
}

// SubscribePush registers a webpush subscription for a participant.
func (c *Client) SubscribePush(ctx context.Context, participantID string, sub *webpush.Subscription) error {
	return c.doJSON(ctx, http.MethodPost, "/notifications/subscribe", PushSubscriptionRequest{
		ParticipantID: participantID,
		Subscription:  sub,
	}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
