// Package hooks lets downstream consumers observe chat lifecycle events
// without the coordinator knowing about them.
package hooks

import (
	"context"
	"sync"

	"github.com/soyeahso/chatdesk/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionCreated  = "session_created"
	EventSessionAssigned = "session_assigned"
	EventFirstResponse   = "session_first_response"
	EventSessionClosed   = "session_closed"
	EventSessionReopened = "session_reopened"
	EventSessionDeleted  = "session_deleted"
	EventSessionRated    = "session_rated"
	EventMessageAppended = "message_appended"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// Keys used in Payload.Data.
const (
	DataSession   = "session"    // *domain.Session
	DataMessage   = "message"    // *domain.Message
	DataSessionID = "session_id" // int64
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionCreated,
	EventSessionAssigned,
	EventFirstResponse,
	EventSessionClosed,
	EventSessionReopened,
	EventSessionDeleted,
	EventSessionRated,
	EventMessageAppended,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and for Off.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	return handlers
}

// Emit dispatches an event to all registered handlers synchronously, in
// registration order. A failing or panicking handler is logged and the
// rest still run.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	payload := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, payload, "hook handler error")
	}
}

// EmitAsync dispatches an event to all registered handlers concurrently
// and returns immediately. Handlers run detached from ctx cancellation so
// a finished request does not abort them; Drain waits for them.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		m.inflight.Add(1)
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.call(ctx, h, payload, "async hook handler error")
		}(h)
	}
}

// Drain blocks until every handler started by EmitAsync has returned.
func (m *Manager) Drain() {
	m.inflight.Wait()
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload, msg string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("event", p.Event).Str("handler", h.name).Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg(msg)
	}
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the list of events that have at least one handler registered.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	return events
}
