package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/chatdesk/internal/domain"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the socket method populates all fields.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "Not found"})
}

// RequestHandler processes an incoming request frame from a client.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Identity is the caller resolved at handshake.
func (rc *RequestContext) Identity() domain.Identity { return rc.Client.Identity }

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	if err := rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message}); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Fail renders a coordinator error on the socket. Callers acting on
// sessions they may not see, or that do not exist, get no frame at all.
func (rc *RequestContext) Fail(err error) {
	switch {
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnauthenticated):
		rc.Server.log.Debug().Err(err).
			Str("method", rc.Frame.Method).
			Str("user", rc.Client.Identity.UserID).
			Msg("request dropped")
	case errors.Is(err, domain.ErrValidation):
		rc.RespondError(CodeInvalidParams, domain.PublicMessage(err))
	case errors.Is(err, domain.ErrConflict):
		rc.RespondError(CodeConflict, domain.PublicMessage(err))
	case errors.Is(err, domain.ErrStorage):
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("store failure")
		rc.RespondError(CodeStorage, domain.PublicMessage(err))
	default:
		rc.Server.log.Error().Err(err).Str("method", rc.Frame.Method).Msg("request failed")
		rc.RespondError(CodeInternal, "Internal server error")
	}
}

// Params unmarshals the request params into the given target. Malformed
// params are answered with invalid_params and reported as false.
func (rc *RequestContext) Params(target any) bool {
	if len(rc.Frame.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(rc.Frame.Params, target); err != nil {
		rc.RespondError(CodeInvalidParams, "Malformed params")
		return false
	}
	return true
}
