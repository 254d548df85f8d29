package domain

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusClosed  SessionStatus = "closed"
)

// Priority ranks a session in the agent queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps free-form input onto a Priority. Unknown values fall
// back to normal.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityNormal
	}
}

// Session is one support conversation. CustomerID is empty for anonymous
// visitors; AgentID is set exactly when Status is active.
type Session struct {
	ID                   int64         `json:"id"`
	CustomerID           string        `json:"customer_id,omitempty"`
	AgentID              string        `json:"agent_id,omitempty"`
	LastAgentID          string        `json:"last_agent_id,omitempty"` // survives close for history
	Status               SessionStatus `json:"status"`
	Subject              string        `json:"subject,omitempty"`
	Priority             Priority      `json:"priority"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	AssignedAt           *time.Time    `json:"assigned_at,omitempty"`
	FirstResponseAt      *time.Time    `json:"first_response_at,omitempty"`
	ClosedAt             *time.Time    `json:"closed_at,omitempty"`
	SatisfactionRating   int           `json:"satisfaction_rating,omitempty"`
	SatisfactionFeedback string        `json:"satisfaction_feedback,omitempty"`
}

// Assigned reports whether an agent currently holds the session.
func (s *Session) Assigned() bool { return s.AgentID != "" }

// OwnedBy reports whether the session belongs to the given customer.
func (s *Session) OwnedBy(userID string) bool {
	return userID != "" && s.CustomerID == userID
}
