package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/soyeahso/chatdesk/internal/chat"
	"github.com/soyeahso/chatdesk/internal/domain"
)

// envelope is the JSON body of every API response.
type envelope map[string]any

// apiHandler serves one API route for a resolved caller.
type apiHandler func(w http.ResponseWriter, r *http.Request, id domain.Identity)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.chat != nil {
		mux.Handle("GET /chat/api/sessions", s.api(s.listSessions))
		mux.Handle("POST /chat/api/sessions", s.api(s.createSession))
		mux.Handle("GET /chat/api/session", s.api(s.getOrCreateSession))
		mux.Handle("POST /chat/api/sessions/{id}/close", s.api(s.closeSession))
		mux.Handle("DELETE /chat/api/sessions/{id}", s.api(s.deleteSession))
		mux.Handle("POST /chat/api/sessions/{id}/assign", s.api(s.assignSession))
		mux.Handle("GET /chat/api/sessions/{id}/messages", s.api(s.listMessages))
		mux.Handle("POST /chat/api/sessions/{id}/messages", s.api(s.sendMessage))
		mux.Handle("POST /chat/api/sessions/{id}/mark_read", s.api(s.markRead))
		mux.Handle("PUT /chat/api/sessions/{id}/messages/{mid}", s.api(s.editMessage))
		mux.Handle("DELETE /chat/api/sessions/{id}/messages/{mid}", s.api(s.deleteMessage))
		mux.Handle("POST /chat/api/sessions/{id}/rating", s.api(s.rateSession))
		mux.Handle("GET /chat/api/agents", s.api(s.listAgents))
		mux.Handle("GET /chat/api/canned-responses", s.api(s.listCanned))
		mux.Handle("POST /chat/api/canned-responses", s.api(s.createCanned))
		mux.Handle("PUT /chat/api/canned-responses/{id}", s.api(s.updateCanned))
		mux.Handle("DELETE /chat/api/canned-responses/{id}", s.api(s.deleteCanned))
		mux.Handle("GET /chat/api/analytics/today", s.api(s.todayAnalytics))
		mux.Handle("GET /chat/api/notifications", s.api(s.listNotifications))
		mux.Handle("POST /chat/api/notifications/{id}/read", s.api(s.markNotificationRead))
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// api resolves the bearer token and recovers handler panics. A request
// without a token runs as an anonymous visitor; an unknown token is
// rejected and counts towards the per-IP limit.
func (s *Server) api(h apiHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.allow(r.RemoteAddr) {
			writeJSON(w, http.StatusTooManyRequests, envelope{"success": false, "message": "Too many requests"})
			return
		}
		id, ok := s.resolver.ResolveRequest(r)
		if !ok {
			s.authLimiter.recordFailure(r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "message": "Invalid token"})
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("api handler panicked")
				writeJSON(w, http.StatusInternalServerError, envelope{"success": false, "message": "Internal server error"})
			}
		}()
		h(w, r, id)
	})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("api request failed")
	}
	writeJSON(w, status, envelope{"success": false, "message": domain.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func success(fields envelope) envelope {
	fields["success"] = true
	return fields
}

// pathID parses a numeric path segment.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validationf("Invalid %s", name)
	}
	return id, nil
}

// decodeBody reads a JSON body into dst. An empty body leaves dst as is.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayload)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.Validationf("Malformed request body")
	}
	return nil
}

// --- sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessions, err := s.chat.ListSessions(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"sessions": sessions}))
}

type createSessionBody struct {
	Subject  string `json:"subject"`
	Priority string `json:"priority"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	var body createSessionBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.chat.CreateSession(r.Context(), id, body.Subject, body.Priority)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Chat session created successfully", "session": sess}))
}

func (s *Server) getOrCreateSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	view, err := s.chat.GetOrCreateSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"session_id": view.ID, "status": view.Status, "session": view}))
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.chat.CloseSession(r.Context(), id, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Chat session closed successfully", "session": sess}))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.chat.DeleteSession(r.Context(), id, sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Chat session deleted successfully"}))
}

func (s *Server) assignSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.chat.AssignSession(r.Context(), id, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Chat session assigned successfully", "session": view}))
}

type rateBody struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

func (s *Server) rateSession(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body rateBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.chat.RateSession(r.Context(), id, sessionID, body.Rating, body.Feedback)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Thank you for your feedback", "session": sess}))
}

// --- messages ---

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msgs, err := s.chat.ListMessages(r.Context(), id, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"messages": msgs}))
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body sendMessageParams
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.chat.SendMessage(r.Context(), id, chat.SendRequest{
		SessionID:     sessionID,
		Body:          body.Message,
		Type:          body.MessageType,
		AttachmentURL: body.AttachmentURL,
		ReplyToID:     body.ReplyToID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Message sent successfully", "message_data": msg}))
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.chat.MarkRead(r.Context(), id, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Marked as read", "updated": n}))
}

type editBody struct {
	Message string `json:"message"`
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	messageID, err := pathID(r, "mid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body editBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.chat.EditMessage(r.Context(), id, sessionID, messageID, body.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Message updated successfully", "message_data": msg}))
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	sessionID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	messageID, err := pathID(r, "mid")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cleared, err := s.chat.DeleteMessage(r.Context(), id, sessionID, messageID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cleared {
		writeJSON(w, http.StatusOK, success(envelope{"message": "Message deleted and session cleared", "session_cleared": true}))
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Message deleted successfully"}))
}

// --- desk ---

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	agents, err := s.chat.ListAgents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"agents": agents}))
}

type cannedBody struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Active   *bool  `json:"is_active"`
}

func (s *Server) listCanned(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	list, err := s.chat.ListCanned(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"responses": list}))
}

func (s *Server) createCanned(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	var body cannedBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.chat.CreateCanned(r.Context(), id, domain.CannedResponse{
		Title:    body.Title,
		Content:  body.Content,
		Category: body.Category,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Canned response created successfully", "response": c}))
}

func (s *Server) updateCanned(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	cannedID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body cannedBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.chat.UpdateCanned(r.Context(), id, cannedID, chat.CannedPatch{
		Title:    body.Title,
		Content:  body.Content,
		Category: body.Category,
		Active:   body.Active,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Canned response updated successfully", "response": c}))
}

func (s *Server) deleteCanned(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	cannedID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.chat.DeleteCanned(r.Context(), id, cannedID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Canned response deleted successfully"}))
}

func (s *Server) todayAnalytics(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	a, err := s.chat.TodayAnalytics(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"analytics": a}))
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := s.chat.ListNotifications(r.Context(), id, unread)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"notifications": list}))
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	notificationID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.chat.MarkNotificationRead(r.Context(), id, notificationID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success(envelope{"message": "Notification marked as read"}))
}
