package gateway

import (
	"github.com/soyeahso/chatdesk/internal/chat"
	"github.com/soyeahso/chatdesk/internal/rooms"
	"github.com/soyeahso/chatdesk/internal/version"
)

// Socket request methods.
const (
	MethodConnect              = "connect"
	MethodHealth               = "health"
	MethodJoinSession          = "join_session"
	MethodJoinRoom             = "join_room"
	MethodSendMessage          = "send_message"
	MethodTyping               = "typing"
	MethodCloseSession         = "close_session"
	MethodDeleteSession        = "delete_session"
	MethodClearCustomerSession = "clear_customer_session"
)

type joinSessionParams struct {
	SessionID    int64  `json:"session_id"`
	CustomerName string `json:"customer_name,omitempty"`
	Silent       bool   `json:"silent,omitempty"`
}

type joinRoomParams struct {
	Room string `json:"room"`
}

type sendMessageParams struct {
	SessionID     int64  `json:"session_id"`
	Message       string `json:"message"`
	MessageType   string `json:"message_type,omitempty"`
	AttachmentURL string `json:"attachment_url,omitempty"`
	ReplyToID     int64  `json:"reply_to_id,omitempty"`
}

type typingParams struct {
	SessionID int64 `json:"session_id"`
	IsTyping  bool  `json:"is_typing"`
}

type sessionParams struct {
	SessionID int64 `json:"session_id"`
}

// joined acknowledges a join.
type joined struct {
	SessionID int64  `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Room      string `json:"room"`
}

// registerMethods sets up the chat request handlers.
func (s *Server) registerMethods() {
	s.Handle(MethodHealth, s.rpcHealth)
	if s.chat == nil {
		return
	}
	s.Handle(MethodJoinSession, s.rpcJoinSession)
	s.Handle(MethodJoinRoom, s.rpcJoinRoom)
	s.Handle(MethodSendMessage, s.rpcSendMessage)
	s.Handle(MethodTyping, s.rpcTyping)
	s.Handle(MethodCloseSession, s.rpcCloseSession)
	s.Handle(MethodDeleteSession, s.rpcDeleteSession)
	s.Handle(MethodClearCustomerSession, s.rpcClearCustomerSession)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) rpcJoinSession(rc *RequestContext) {
	var p joinSessionParams
	if !rc.Params(&p) {
		return
	}
	sess, err := s.chat.JoinSession(rc.Ctx, rc.Identity(), rc.Client, chat.JoinRequest{
		SessionID:    p.SessionID,
		CustomerName: p.CustomerName,
		Silent:       p.Silent,
	})
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(joined{SessionID: sess.ID, Status: string(sess.Status), Room: rooms.SessionRoom(sess.ID)})
}

func (s *Server) rpcJoinRoom(rc *RequestContext) {
	var p joinRoomParams
	if !rc.Params(&p) {
		return
	}
	if err := s.chat.JoinRoom(rc.Ctx, rc.Identity(), rc.Client, p.Room); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(joined{Room: p.Room})
}

func (s *Server) rpcSendMessage(rc *RequestContext) {
	var p sendMessageParams
	if !rc.Params(&p) {
		return
	}
	msg, err := s.chat.SendMessage(rc.Ctx, rc.Identity(), chat.SendRequest{
		SessionID:     p.SessionID,
		Body:          p.Message,
		Type:          p.MessageType,
		AttachmentURL: p.AttachmentURL,
		ReplyToID:     p.ReplyToID,
	})
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(msg)
}

func (s *Server) rpcTyping(rc *RequestContext) {
	var p typingParams
	if !rc.Params(&p) {
		return
	}
	if err := s.chat.Typing(rc.Ctx, rc.Identity(), p.SessionID, p.IsTyping); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(p)
}

func (s *Server) rpcCloseSession(rc *RequestContext) {
	var p sessionParams
	if !rc.Params(&p) {
		return
	}
	sess, err := s.chat.CloseSession(rc.Ctx, rc.Identity(), p.SessionID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(sess)
}

func (s *Server) rpcDeleteSession(rc *RequestContext) {
	var p sessionParams
	if !rc.Params(&p) {
		return
	}
	if err := s.chat.DeleteSession(rc.Ctx, rc.Identity(), p.SessionID); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(p)
}

func (s *Server) rpcClearCustomerSession(rc *RequestContext) {
	var p sessionParams
	if !rc.Params(&p) {
		return
	}
	if err := s.chat.ClearCustomerSession(rc.Ctx, rc.Identity(), p.SessionID); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(p)
}
