// Package chat is the session coordinator. It owns the waiting/active/closed
// state machine, decides who may do what to a session, and announces every
// committed change to the interested rooms.
package chat

import (
	"context"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/rooms"
)

// SessionStore persists chat sessions.
type SessionStore interface {
	Create(ctx context.Context, customerID, subject string, priority domain.Priority) (*domain.Session, error)
	Get(ctx context.Context, id int64) (*domain.Session, error)
	FindForCustomer(ctx context.Context, customerID string) (*domain.Session, error)
	List(ctx context.Context, customerID string) ([]*domain.Session, error)
	Assign(ctx context.Context, id int64, agentID string) (*domain.Session, bool, error)
	Reopen(ctx context.Context, id int64) (*domain.Session, bool, error)
	Close(ctx context.Context, id int64) (*domain.Session, bool, error)
	MarkFirstResponse(ctx context.Context, id int64) (*domain.Session, bool, error)
	Rate(ctx context.Context, id int64, rating int, feedback string) (*domain.Session, error)
	Delete(ctx context.Context, id int64) error
}

// MessageStore persists session transcripts.
type MessageStore interface {
	Append(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	Get(ctx context.Context, id int64) (*domain.Message, error)
	ListBySession(ctx context.Context, sessionID int64) ([]*domain.Message, error)
	Last(ctx context.Context, sessionID int64) (*domain.Message, error)
	MarkAllReadExceptSender(ctx context.Context, sessionID int64, viewerID string) (int64, error)
	UnreadCount(ctx context.Context, sessionID int64, viewerID string) (int, error)
	Edit(ctx context.Context, id int64, body string) (*domain.Message, error)
	DeleteOne(ctx context.Context, id int64) error
}

// NotificationStore reads and acknowledges persisted notifications.
// Creation goes through the Notifier.
type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id int64, userID string) error
}

// CannedStore is the canned response table.
type CannedStore interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.CannedResponse, error)
	Get(ctx context.Context, id int64) (*domain.CannedResponse, error)
	Create(ctx context.Context, c domain.CannedResponse) (*domain.CannedResponse, error)
	Update(ctx context.Context, c domain.CannedResponse) (*domain.CannedResponse, error)
	Delete(ctx context.Context, id int64) error
}

// AnalyticsStore reads the daily rollup.
type AnalyticsStore interface {
	Today() string
	Get(ctx context.Context, date string) (*domain.Analytics, error)
}

// Rooms is the slice of the room router the coordinator needs.
type Rooms interface {
	Join(conn rooms.Conn, room string)
	Broadcast(room, event string, payload any)
	Users(room string) []string
}

// Directory resolves user IDs to display identities and lists agents.
type Directory interface {
	Lookup(userID string) (domain.Identity, bool)
	Agents() []domain.Identity
}

// Notifier persists a notification and forwards it to external senders.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) *domain.Notification
}

// Deps wires a Service.
type Deps struct {
	Sessions      SessionStore
	Messages      MessageStore
	Notifications NotificationStore
	Canned        CannedStore
	Analytics     AnalyticsStore
	Rooms         Rooms
	Directory     Directory
	Notifier      Notifier       // optional
	Hooks         *hooks.Manager // optional
	Log           *logging.Logger
}

// Service coordinates chat sessions. Every method takes the caller's
// identity and is safe to call from a socket handler or an HTTP handler.
type Service struct {
	sessions      SessionStore
	messages      MessageStore
	notifications NotificationStore
	canned        CannedStore
	analytics     AnalyticsStore
	rooms         Rooms
	dir           Directory
	notifier      Notifier
	hooks         *hooks.Manager
	log           *logging.Logger
}

// New creates a coordinator.
func New(d Deps) *Service {
	return &Service{
		sessions:      d.Sessions,
		messages:      d.Messages,
		notifications: d.Notifications,
		canned:        d.Canned,
		analytics:     d.Analytics,
		rooms:         d.Rooms,
		dir:           d.Directory,
		notifier:      d.Notifier,
		hooks:         d.Hooks,
		log:           d.Log.Sub("chat"),
	}
}

// broadcast sends one event to several rooms, in order.
func (s *Service) broadcast(event string, payload any, targets ...string) {
	for _, room := range targets {
		s.rooms.Broadcast(room, event, payload)
	}
}

func (s *Service) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.EmitAsync(ctx, event, data)
	}
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.notifier == nil || n.UserID == "" {
		return
	}
	s.notifier.Notify(ctx, n)
}

// name returns the display name for userID, or fallback when the user is
// unknown or empty.
func (s *Service) name(userID, fallback string) string {
	if userID == "" {
		return fallback
	}
	if s.dir != nil {
		if id, ok := s.dir.Lookup(userID); ok {
			return id.DisplayName()
		}
	}
	return userID
}

func (s *Service) agentName(userID string) string {
	return s.name(userID, "Unassigned")
}

// session loads a session, mapping a missing one to NotFound with a
// caller-facing message.
func (s *Service) session(ctx context.Context, id int64) (*domain.Session, error) {
	if id <= 0 {
		return nil, domain.NotFoundf("Session not found")
	}
	return s.sessions.Get(ctx, id)
}

// canParticipate reports whether the caller may join, type in or write to
// the session. Ownerless sessions are open to any non-agent so anonymous
// widget traffic works.
func canParticipate(id domain.Identity, sess *domain.Session) bool {
	if id.Agent {
		return true
	}
	return sess.CustomerID == "" || sess.OwnedBy(id.UserID)
}

// canManage reports whether the caller may read history, mark read or
// delete. Ownerless sessions are agent-only here.
func canManage(id domain.Identity, sess *domain.Session) bool {
	return id.Agent || sess.OwnedBy(id.UserID)
}
