package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/rooms"
)

// SlowClientDrops is how many broadcasts in a row a client may miss to a
// full queue before it is disconnected.
const SlowClientDrops = 32

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client is one handshaken WebSocket connection. Outbound frames go
// through a bounded queue drained by writePump, so Send never blocks.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Identity    domain.Identity
	Socket      *websocket.Conn
	ConnectedAt time.Time

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	seq       *atomic.Int64
	drops     atomic.Int32 // consecutive broadcasts lost to a full queue
	log       *logging.Logger
}

// NewClient creates a Client for a connection that completed the handshake.
// seq numbers event frames across the server.
func NewClient(conn *websocket.Conn, info ClientInfo, id domain.Identity, queueSize int, seq *atomic.Int64, log *logging.Logger) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	if seq == nil {
		seq = new(atomic.Int64)
	}
	connID := uuid.New().String()
	return &Client{
		ConnID:      connID,
		Info:        info,
		Identity:    id,
		Socket:      conn,
		ConnectedAt: time.Now(),
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
		seq:         seq,
		log:         log.With("connId", connID),
	}
}

// ID implements rooms.Conn.
func (c *Client) ID() string { return c.ConnID }

// UserID implements rooms.Conn.
func (c *Client) UserID() string { return c.Identity.UserID }

// Send queues an event frame. It reports false when the client is closed
// or its queue is full.
func (c *Client) Send(event string, payload any) bool {
	f, err := NewEvent(event, payload, c.seq.Add(1))
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("event not encodable")
		return false
	}
	if c.enqueue(f) != nil {
		return false
	}
	c.drops.Store(0)
	return true
}

// EvictSlowClients returns a room drop handler that closes a client once
// it has missed limit broadcasts in a row. Closing ends its read loop,
// which removes it from every room; the client reconnects and resyncs.
func EvictSlowClients(limit int) func(conn rooms.Conn, room, event string) {
	return func(conn rooms.Conn, room, event string) {
		c, ok := conn.(*Client)
		if !ok {
			return
		}
		if n := c.drops.Add(1); int(n) >= limit {
			c.log.Warn().Int32("dropped", n).Str("room", room).Str("event", event).Msg("closing slow client")
			c.Close()
		}
	}
}

// Respond queues a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.enqueue(f)
}

// RespondError queues an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.enqueue(NewErrorResponse(reqID, errShape))
}

func (c *Client) enqueue(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.queue <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

var errMalformedFrame = errors.New("malformed frame")

// ReadFrame reads the next frame from the WebSocket. A frame that is not
// valid JSON yields errMalformedFrame; the socket is still usable.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return f, nil
}

// writePump owns all writes to the socket after the handshake. It returns
// when the client is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.queue:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Socket != nil {
			err = c.Socket.Close()
		}
	})
	return err
}

// ClientRegistry manages connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().
		Str("connId", c.ConnID).
		Str("user", c.Identity.UserID).
		Bool("agent", c.Identity.Agent).
		Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
