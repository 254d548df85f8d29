package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/rooms"
)

// JoinRequest is the input of JoinSession.
type JoinRequest struct {
	SessionID    int64
	CustomerName string // shown to agents when the join creates a session
	Silent       bool   // agents only: skip the "admin joined" notice
}

// View decorates a session with names, its last message and the caller's
// unread count.
func (s *Service) View(ctx context.Context, sess *domain.Session, viewerID string) (*SessionView, error) {
	v := &SessionView{
		Session:      sess,
		CustomerName: s.name(sess.CustomerID, "Customer"),
		AgentName:    s.agentName(sess.AgentID),
	}
	last, err := s.messages.Last(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		v.LastMessage = last.Body
		t := last.CreatedAt
		v.LastMessageTime = &t
	}
	if v.UnreadCount, err = s.messages.UnreadCount(ctx, sess.ID, viewerID); err != nil {
		return nil, err
	}
	return v, nil
}

// ListSessions returns every session for agents and the caller's own
// sessions for customers, newest first.
func (s *Service) ListSessions(ctx context.Context, id domain.Identity) ([]*SessionView, error) {
	if id.Anonymous() {
		return nil, domain.Unauthenticated()
	}
	owner := id.UserID
	if id.Agent {
		owner = ""
	}
	list, err := s.sessions.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]*SessionView, 0, len(list))
	for _, sess := range list {
		v, err := s.View(ctx, sess, id.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CreateSession opens a new waiting session owned by the caller.
func (s *Service) CreateSession(ctx context.Context, id domain.Identity, subject, priority string) (*domain.Session, error) {
	if id.Anonymous() {
		return nil, domain.Unauthenticated()
	}
	if strings.TrimSpace(subject) == "" {
		subject = defaultSubject
	}
	return s.create(ctx, id, strings.TrimSpace(subject), domain.ParsePriority(priority), "")
}

// create stores a session and announces it to agents.
func (s *Service) create(ctx context.Context, id domain.Identity, subject string, priority domain.Priority, customerName string) (*domain.Session, error) {
	owner := ""
	if !id.Agent {
		owner = id.UserID
	}
	sess, err := s.sessions.Create(ctx, owner, subject, priority)
	if err != nil {
		return nil, err
	}
	if customerName == "" {
		customerName = s.name(owner, "Customer")
	}
	s.log.Session(sess.ID).Info().Str("customer", owner).Msg("chat session created")
	s.rooms.Broadcast(rooms.Agents, EventNewChatSession, NewSession{
		SessionID:    sess.ID,
		CustomerName: customerName,
	})
	s.emit(ctx, hooks.EventSessionCreated, map[string]any{hooks.DataSession: sess})
	return sess, nil
}

// GetOrCreateSession returns the caller's current session, preferring
// active over waiting over closed. A closed session is reopened; with none
// found a new one is created. Anonymous callers always get a fresh
// ownerless session.
func (s *Service) GetOrCreateSession(ctx context.Context, id domain.Identity) (*SessionView, error) {
	var sess *domain.Session
	if !id.Anonymous() && !id.Agent {
		found, err := s.sessions.FindForCustomer(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		if found != nil && found.Status == domain.StatusClosed {
			found, err = s.reopen(ctx, found.ID, "Customer reopened the chat and session is waiting for assignment")
			if err != nil {
				return nil, err
			}
		}
		sess = found
	}
	if sess == nil {
		created, err := s.create(ctx, id, defaultSubject, domain.PriorityNormal, "")
		if err != nil {
			return nil, err
		}
		sess = created
	}
	return s.View(ctx, sess, id.UserID)
}

// reopen moves a closed session back to waiting and tells agents and the
// session room that it needs an agent again.
func (s *Service) reopen(ctx context.Context, sessionID int64, reason string) (*domain.Session, error) {
	sess, changed, err := s.sessions.Reopen(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return sess, nil
	}
	s.log.Session(sess.ID).Info().Msg("chat session reopened")
	s.broadcast(EventSessionUpdated, SessionUpdate{
		SessionID: sess.ID,
		Status:    domain.StatusWaiting,
		AgentName: "Unassigned",
		Message:   reason,
	}, rooms.Agents, rooms.SessionRoom(sess.ID))
	s.emit(ctx, hooks.EventSessionReopened, map[string]any{hooks.DataSession: sess})
	return sess, nil
}

// JoinSession subscribes conn to the session room. A non-agent naming a
// missing session gets a new one, which is announced to agents and
// greeted with a transient system line. An agent entering a live session
// is announced to its participants unless the join is silent.
func (s *Service) JoinSession(ctx context.Context, id domain.Identity, conn rooms.Conn, req JoinRequest) (*domain.Session, error) {
	if req.SessionID <= 0 {
		return nil, domain.Validationf("session_id is required")
	}
	sess, err := s.session(ctx, req.SessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound) && !id.Agent:
		name := strings.TrimSpace(req.CustomerName)
		if name == "" {
			name = "Customer"
		}
		sess, err = s.create(ctx, id, widgetSubject, domain.PriorityNormal, name)
		if err != nil {
			return nil, err
		}
		room := rooms.SessionRoom(sess.ID)
		s.rooms.Join(conn, room)
		s.rooms.Broadcast(room, EventMessageSent, SystemNotice{
			SessionID:  sess.ID,
			Message:    sessionStartedText,
			SenderType: domain.SenderSystem,
			CreatedAt:  sess.CreatedAt,
		})
		return sess, nil
	case err != nil:
		return nil, err
	}

	if !canParticipate(id, sess) {
		return nil, domain.Forbiddenf("Access denied")
	}
	room := rooms.SessionRoom(sess.ID)
	s.rooms.Join(conn, room)

	if id.Agent && !req.Silent && sess.Status != domain.StatusClosed {
		s.rooms.Broadcast(room, EventAdminNotification, Alert{
			Title:     "Admin Joined Session",
			Message:   fmt.Sprintf("Admin %s joined the chat session", id.DisplayName()),
			SessionID: sess.ID,
		})
	}
	return sess, nil
}

// JoinRoom subscribes conn to a room by name. Session rooms are
// authorized like JoinSession but never create anything; the agents room
// is for agents only.
func (s *Service) JoinRoom(ctx context.Context, id domain.Identity, conn rooms.Conn, room string) error {
	if room == rooms.Agents {
		if !id.Agent {
			return domain.Forbiddenf("Access denied")
		}
		s.rooms.Join(conn, room)
		return nil
	}
	raw, ok := strings.CutPrefix(room, "session_")
	if !ok {
		return domain.Validationf("unknown room %q", room)
	}
	sessionID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.Validationf("unknown room %q", room)
	}
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if !canParticipate(id, sess) {
		return domain.Forbiddenf("Access denied")
	}
	s.rooms.Join(conn, rooms.SessionRoom(sess.ID))
	return nil
}

// AssignSession claims a waiting or closed session for the calling agent.
// Claiming a session the agent already holds is a no-op.
func (s *Service) AssignSession(ctx context.Context, id domain.Identity, sessionID int64) (*SessionView, error) {
	if !id.Agent {
		return nil, domain.Forbiddenf("Access denied")
	}
	sess, changed, err := s.sessions.Assign(ctx, sessionID, id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.log.Session(sessionID).Info().Str("agent", id.UserID).Msg("assign lost to another agent")
		}
		return nil, err
	}
	if changed {
		name := id.DisplayName()
		s.log.Session(sess.ID).Info().Str("agent", id.UserID).Msg("chat session assigned")

		s.rooms.Broadcast(rooms.SessionRoom(sess.ID), EventSessionUpdated, SessionUpdate{
			SessionID: sess.ID,
			Status:    domain.StatusActive,
			AgentID:   optional(id.UserID),
			AgentName: name,
			Message:   "Chat assigned to " + name,
		})
		s.rooms.Broadcast(rooms.Agents, EventSessionUpdated, SessionUpdate{
			SessionID: sess.ID,
			Status:    domain.StatusActive,
			AgentID:   optional(id.UserID),
			AgentName: name,
		})
		s.notify(ctx, domain.Notification{
			UserID:    sess.CustomerID,
			SessionID: sess.ID,
			Type:      domain.NotifySessionAssigned,
			Title:     "Support agent assigned",
			Body:      name + " has joined your chat",
		})
		s.rooms.Broadcast(rooms.SessionRoom(sess.ID), EventSessionAssigned, SessionUpdate{
			SessionID: sess.ID,
			AgentID:   optional(id.UserID),
			AgentName: name,
			Message:   name + " has joined the chat",
		})
		s.emit(ctx, hooks.EventSessionAssigned, map[string]any{hooks.DataSession: sess})
	}
	return s.View(ctx, sess, id.UserID)
}

// CloseSession closes the session. The owning customer, the assigned agent
// or, for an unassigned session, any agent may close it. The closing line
// is stored and broadcast before session_closed so clients render it
// first. Closing a closed session changes nothing.
func (s *Service) CloseSession(ctx context.Context, id domain.Identity, sessionID int64) (*domain.Session, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canManage(id, sess) {
		return nil, domain.Forbiddenf("Access denied")
	}
	if id.Agent && sess.Assigned() && sess.AgentID != id.UserID {
		return nil, domain.Forbiddenf("Only the assigned agent may close this session")
	}

	closed, changed, err := s.sessions.Close(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return closed, nil
	}
	s.log.Session(closed.ID).Info().Str("by", id.UserID).Msg("chat session closed")

	room := rooms.SessionRoom(closed.ID)
	notice, err := s.messages.Append(ctx, domain.NewMessage{
		SessionID:  closed.ID,
		SenderID:   id.UserID,
		SenderType: domain.SenderSystem,
		Body:       closedBySupportText,
		Type:       domain.MessageSystem,
	})
	if err != nil {
		s.log.Session(closed.ID).Warn().Err(err).Msg("failed to store closing message")
	} else {
		s.rooms.Broadcast(room, EventMessageSent, &MessageView{Message: notice, SenderName: s.name(id.UserID, "System")})
	}
	s.broadcast(EventSessionClosed, SessionRef{SessionID: closed.ID, Message: sessionClosedText}, room, rooms.Agents)

	if id.UserID != closed.CustomerID {
		s.notify(ctx, domain.Notification{
			UserID:    closed.CustomerID,
			SessionID: closed.ID,
			Type:      domain.NotifySessionClosed,
			Title:     "Chat closed",
			Body:      sessionClosedText,
		})
	}
	s.emit(ctx, hooks.EventSessionClosed, map[string]any{hooks.DataSession: closed})
	return closed, nil
}

// DeleteSession removes the session with its messages and notifications.
// Agents may delete any session, customers only their own.
func (s *Service) DeleteSession(ctx context.Context, id domain.Identity, sessionID int64) error {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if !canManage(id, sess) {
		return domain.Forbiddenf("Access denied")
	}
	return s.remove(ctx, id, sess.ID)
}

func (s *Service) remove(ctx context.Context, id domain.Identity, sessionID int64) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.log.Session(sessionID).Info().Str("by", id.UserID).Msg("chat session deleted")
	s.rooms.Broadcast(rooms.Agents, EventSessionDeleted, SessionRef{SessionID: sessionID})
	s.rooms.Broadcast(rooms.SessionRoom(sessionID), EventClearCustomerSession, SessionRef{SessionID: sessionID})
	s.emit(ctx, hooks.EventSessionDeleted, map[string]any{hooks.DataSessionID: sessionID})
	return nil
}

// ClearCustomerSession tells widgets in the session room to drop their
// saved state. Agents only.
func (s *Service) ClearCustomerSession(_ context.Context, id domain.Identity, sessionID int64) error {
	if !id.Agent {
		return domain.Forbiddenf("Access denied")
	}
	if sessionID <= 0 {
		return domain.Validationf("session_id is required")
	}
	s.rooms.Broadcast(rooms.SessionRoom(sessionID), EventClearCustomerSession, SessionRef{SessionID: sessionID})
	return nil
}

// RateSession stores the customer's satisfaction rating for a closed
// session.
func (s *Service) RateSession(ctx context.Context, id domain.Identity, sessionID int64, rating int, feedback string) (*domain.Session, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if id.Agent || !sess.OwnedBy(id.UserID) {
		return nil, domain.Forbiddenf("Only the customer may rate this session")
	}
	rated, err := s.sessions.Rate(ctx, sess.ID, rating, strings.TrimSpace(feedback))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, hooks.EventSessionRated, map[string]any{hooks.DataSession: rated})
	return rated, nil
}
