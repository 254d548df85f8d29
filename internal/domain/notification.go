package domain

import "time"

// Notification types persisted for agents and customers.
const (
	NotifySessionAssigned = "session_assigned"
	NotifyNewMessage      = "new_message"
	NotifySessionClosed   = "session_closed"
)

// Notification is a persisted alert addressed to one user.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID int64     `json:"session_id"`
	Type      string    `json:"notification_type"`
	Title     string    `json:"title"`
	Body      string    `json:"message"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// CannedResponse is a reusable agent reply.
type CannedResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Analytics is the per-day chat rollup. Durations are in seconds.
type Analytics struct {
	Date                 string  `json:"date"` // YYYY-MM-DD, UTC
	TotalChats           int     `json:"total_chats"`
	ChatsResolved        int     `json:"chats_resolved"`
	TotalMessages        int     `json:"total_messages"`
	AvgResponseTime      float64 `json:"avg_response_time"`
	AvgResolutionTime    float64 `json:"avg_resolution_time"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`
}
