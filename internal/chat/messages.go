package chat

import (
	"context"
	"strings"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/rooms"
)

// SendRequest is the input of SendMessage.
type SendRequest struct {
	SessionID     int64
	Body          string
	Type          string
	AttachmentURL string
	ReplyToID     int64
}

// SendMessage appends a message to the session and broadcasts it.
//
// A customer writing into a closed session reopens it first. An agent may
// only write into a session assigned to them; the socket path drops that
// case silently, HTTP answers 403.
func (s *Service) SendMessage(ctx context.Context, id domain.Identity, req SendRequest) (*MessageView, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, domain.Validationf("Message content is required")
	}
	sess, err := s.session(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !canParticipate(id, sess) {
		return nil, domain.Forbiddenf("Access denied")
	}
	if id.Agent && sess.AgentID != id.UserID {
		s.log.Session(sess.ID).Debug().Str("agent", id.UserID).Msg("message from unassigned agent dropped")
		return nil, domain.Forbiddenf("Only the assigned agent may send messages for this session")
	}

	if !id.Agent && sess.Status == domain.StatusClosed {
		if sess, err = s.reopen(ctx, sess.ID, "Session reopened - customer sent new message"); err != nil {
			return nil, err
		}
	}

	msg, err := s.messages.Append(ctx, domain.NewMessage{
		SessionID:     sess.ID,
		SenderID:      id.UserID,
		SenderType:    id.SenderType(),
		Body:          body,
		Type:          domain.ParseMessageType(req.Type),
		AttachmentURL: strings.TrimSpace(req.AttachmentURL),
		ReplyToID:     req.ReplyToID,
	})
	if err != nil {
		return nil, err
	}
	view := &MessageView{Message: msg, SenderName: s.name(id.UserID, "Customer")}
	s.broadcast(EventMessageSent, view, rooms.SessionRoom(sess.ID), rooms.Agents)

	if id.Agent {
		if stamped, first, err := s.sessions.MarkFirstResponse(ctx, sess.ID); err != nil {
			s.log.Session(sess.ID).Warn().Err(err).Msg("failed to stamp first response")
		} else if first {
			s.emit(ctx, hooks.EventFirstResponse, map[string]any{hooks.DataSession: stamped})
		}
	} else {
		s.rooms.Broadcast(rooms.Agents, EventAdminNotification, Alert{
			Title:     "New Message",
			Message:   "New message from " + view.SenderName,
			SessionID: sess.ID,
		})
		s.notify(ctx, domain.Notification{
			UserID:    sess.AgentID,
			SessionID: sess.ID,
			Type:      domain.NotifyNewMessage,
			Title:     "New Message",
			Body:      "New message from " + view.SenderName,
		})
	}
	s.emit(ctx, hooks.EventMessageAppended, map[string]any{hooks.DataSession: sess, hooks.DataMessage: msg})
	return view, nil
}

// Typing relays a typing indicator to the session room. Agents are
// reported as agent_typing, everyone else as user_typing. Nothing is
// stored.
func (s *Service) Typing(ctx context.Context, id domain.Identity, sessionID int64, typing bool) error {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if !canParticipate(id, sess) {
		return domain.Forbiddenf("Access denied")
	}
	event := EventUserTyping
	if id.Agent {
		event = EventAgentTyping
	}
	s.rooms.Broadcast(rooms.SessionRoom(sess.ID), event, TypingState{
		SessionID: sess.ID,
		IsTyping:  typing,
		UserID:    optional(id.UserID),
	})
	return nil
}

// ListMessages returns the transcript in arrival order.
func (s *Service) ListMessages(ctx context.Context, id domain.Identity, sessionID int64) ([]*MessageView, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canManage(id, sess) {
		return nil, domain.Forbiddenf("Access denied")
	}
	msgs, err := s.messages.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = s.messageView(m)
	}
	return out, nil
}

func (s *Service) messageView(m *domain.Message) *MessageView {
	fallback := "Customer"
	if m.SenderType == domain.SenderSystem {
		fallback = "System"
	}
	return &MessageView{Message: m, SenderName: s.name(m.SenderID, fallback)}
}

// MarkRead flags every message in the session not written by the caller
// as read and tells dashboards to clear their badges. The flag is shared
// by all viewers of the session.
func (s *Service) MarkRead(ctx context.Context, id domain.Identity, sessionID int64) (int64, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !canManage(id, sess) {
		return 0, domain.Forbiddenf("Access denied")
	}
	n, err := s.messages.MarkAllReadExceptSender(ctx, sess.ID, id.UserID)
	if err != nil {
		return 0, err
	}
	s.broadcast(EventSessionUnreadCleared, SessionRef{SessionID: sess.ID}, rooms.Agents, rooms.SessionRoom(sess.ID))
	return n, nil
}

// DeleteMessage removes one message. When an agent deletes, the whole
// session is cleared and the customer's widget told to forget it;
// cleared reports that case. The session customer and the message's
// sender may remove just that message.
func (s *Service) DeleteMessage(ctx context.Context, id domain.Identity, sessionID, messageID int64) (cleared bool, err error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg.SessionID != sess.ID {
		return false, domain.Validationf("Message does not belong to session")
	}
	mine := id.UserID != "" && msg.SenderID == id.UserID
	if !id.Agent && !sess.OwnedBy(id.UserID) && !mine {
		return false, domain.Forbiddenf("Access denied")
	}

	if id.Agent {
		if err := s.remove(ctx, id, sess.ID); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.messages.DeleteOne(ctx, msg.ID); err != nil {
		return false, err
	}
	s.broadcast(EventMessageDeleted, MessageRef{SessionID: sess.ID, MessageID: msg.ID}, rooms.SessionRoom(sess.ID), rooms.Agents)
	return false, nil
}

// EditMessage replaces the body of a message. Only its sender may edit.
func (s *Service) EditMessage(ctx context.Context, id domain.Identity, sessionID, messageID int64, body string) (*MessageView, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SessionID != sessionID {
		return nil, domain.Validationf("Message does not belong to session")
	}
	if id.Anonymous() || msg.SenderID != id.UserID || msg.SenderType == domain.SenderSystem {
		return nil, domain.Forbiddenf("Only the sender may edit this message")
	}
	edited, err := s.messages.Edit(ctx, msg.ID, body)
	if err != nil {
		return nil, err
	}
	view := s.messageView(edited)
	s.broadcast(EventMessageEdited, view, rooms.SessionRoom(sessionID), rooms.Agents)
	return view, nil
}
