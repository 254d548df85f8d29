package chat

import (
	"time"

	"github.com/soyeahso/chatdesk/internal/domain"
)

// Outbound event names.
const (
	EventMessageSent          = "message_sent"
	EventMessageEdited        = "message_edited"
	EventMessageDeleted       = "message_deleted"
	EventNewChatSession       = "new_chat_session"
	EventSessionUpdated       = "session_updated"
	EventSessionAssigned      = "session_assigned"
	EventSessionClosed        = "session_closed"
	EventSessionDeleted       = "session_deleted"
	EventSessionUnreadCleared = "session_unread_cleared"
	EventClearCustomerSession = "clear_customer_session"
	EventAdminNotification    = "admin_notification"
	EventAgentTyping          = "agent_typing"
	EventUserTyping           = "user_typing"
)

// Events lists every outbound event name.
var Events = []string{
	EventMessageSent,
	EventMessageEdited,
	EventMessageDeleted,
	EventNewChatSession,
	EventSessionUpdated,
	EventSessionAssigned,
	EventSessionClosed,
	EventSessionDeleted,
	EventSessionUnreadCleared,
	EventClearCustomerSession,
	EventAdminNotification,
	EventAgentTyping,
	EventUserTyping,
}

// Fixed texts shown to participants.
const (
	closedBySupportText = "This chat session has been closed by support"
	sessionClosedText   = "This chat session has been closed"
	sessionStartedText  = "Chat session started"
	defaultSubject      = "General Inquiry"
	widgetSubject       = "Customer Support"
)

// MessageView is a message as clients render it.
type MessageView struct {
	*domain.Message
	SenderName string `json:"sender_name"`
}

// SessionView is a session with the names and preview fields dashboards
// show next to it.
type SessionView struct {
	*domain.Session
	CustomerName    string     `json:"customer_name"`
	AgentName       string     `json:"agent_name"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}

// AgentView is one agent with its presence.
type AgentView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Online bool   `json:"is_online"`
}

// SessionUpdate is the payload of session_updated and session_assigned.
type SessionUpdate struct {
	SessionID int64                `json:"session_id"`
	Status    domain.SessionStatus `json:"status,omitempty"`
	AgentID   *string              `json:"agent_id"`
	AgentName string               `json:"agent_name"`
	Message   string               `json:"message,omitempty"`
}

// SessionRef is the payload of events that only name a session.
type SessionRef struct {
	SessionID int64  `json:"session_id"`
	Message   string `json:"message,omitempty"`
}

// MessageRef identifies a deleted message.
type MessageRef struct {
	SessionID int64 `json:"session_id"`
	MessageID int64 `json:"message_id"`
}

// NewSession announces a session to the agents room.
type NewSession struct {
	SessionID      int64  `json:"session_id"`
	CustomerName   string `json:"customer_name"`
	MessagePreview string `json:"message_preview"`
}

// Alert is the payload of admin_notification.
type Alert struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	SessionID int64  `json:"session_id"`
}

// TypingState is relayed for typing indicators.
type TypingState struct {
	SessionID int64   `json:"session_id"`
	IsTyping  bool    `json:"is_typing"`
	UserID    *string `json:"user_id"`
}

// SystemNotice is the transient "session started" line; it is broadcast
// but never stored.
type SystemNotice struct {
	SessionID  int64             `json:"session_id"`
	Message    string            `json:"message"`
	SenderType domain.SenderType `json:"sender_type"`
	CreatedAt  time.Time         `json:"created_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
