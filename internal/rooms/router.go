// Package rooms tracks which live connections belong to which broadcast
// rooms and fans events out to them.
package rooms

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/chatdesk/internal/logging"
)

// Agents is the room every agent connection joins on connect.
const Agents = "agents"

// SessionRoom names the room for a chat session.
func SessionRoom(id int64) string {
	return "session_" + strconv.FormatInt(id, 10)
}

// Conn is a live connection the router can deliver to. Send must not
// block; it reports false when the frame was dropped.
type Conn interface {
	ID() string
	UserID() string
	Send(event string, payload any) bool
}

// Router maps rooms to member connections. All methods are safe for
// concurrent use.
type Router struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Conn
	byConn  map[string]map[string]struct{}
	bus     Bus
	outbox  chan Envelope // relays waiting for the publisher in Run
	nodeID  string
	log     *logging.Logger
	dropped func(conn Conn, room, event string)
}

// Option configures a Router.
type Option func(*Router)

// WithBus relays every broadcast through bus so routers in other
// processes deliver it to their own members.
func WithBus(bus Bus) Option {
	return func(r *Router) { r.bus = bus }
}

// DefaultPublishBuffer bounds how many relays may wait for the bus.
const DefaultPublishBuffer = 256

// WithPublishBuffer sets how many relays may queue for the bus before
// further broadcasts are delivered locally only.
func WithPublishBuffer(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.outbox = make(chan Envelope, n)
		}
	}
}

// WithDropHandler is called whenever a member's queue rejects a frame.
func WithDropHandler(fn func(conn Conn, room, event string)) Option {
	return func(r *Router) { r.dropped = fn }
}

// New creates a Router.
func New(log *logging.Logger, opts ...Option) *Router {
	r := &Router{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
		nodeID: uuid.NewString(),
		log:    log.Sub("rooms"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bus != nil && r.outbox == nil {
		r.outbox = make(chan Envelope, DefaultPublishBuffer)
	}
	return r
}

// NodeID identifies this router on the bus.
func (r *Router) NodeID() string { return r.nodeID }

// Join adds conn to room. Joining twice is a no-op.
func (r *Router) Join(conn Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	members[conn.ID()] = conn

	joined, ok := r.byConn[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[conn.ID()] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes conn from room. Leaving a room not joined is a no-op.
func (r *Router) Leave(conn Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn.ID(), room)
}

// LeaveAll removes conn from every room and returns the rooms it was in.
func (r *Router) LeaveAll(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room := range r.byConn[conn.ID()] {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(conn.ID(), room)
	}
	delete(r.byConn, conn.ID())
	sort.Strings(left)
	return left
}

func (r *Router) leaveLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
}

// IsMember reports whether the connection is in room.
func (r *Router) IsMember(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// Members returns the number of local connections in room.
func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms a connection has joined, sorted.
func (r *Router) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byConn[connID]))
	for room := range r.byConn[connID] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Users returns the distinct user IDs with a local connection in room,
// sorted. Anonymous connections are skipped.
func (r *Router) Users(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range r.rooms[room] {
		if uid := c.UserID(); uid != "" {
			seen[uid] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// Broadcast delivers event to every member of room and, when a bus is
// configured, to members held by other processes. It never blocks on a
// slow member or a slow bus and never fails. Relays are published in
// broadcast order by Run; when the outbox is full the relay is dropped.
func (r *Router) Broadcast(room, event string, payload any) {
	r.deliver(room, event, payload)

	if r.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn().Err(err).Str("room", room).Str("event", event).Msg("payload not relayable")
		return
	}
	env := Envelope{Origin: r.nodeID, Room: room, Event: event, Payload: data}
	select {
	case r.outbox <- env:
	default:
		r.log.Warn().Str("room", room).Str("event", event).Msg("bus outbox full, relay dropped")
	}
}

func (r *Router) deliver(room, event string, payload any) int {
	r.mu.RLock()
	members := make([]Conn, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.Send(event, payload) {
			delivered++
			continue
		}
		r.log.Warn().Str("conn", c.ID()).Str("room", room).Str("event", event).Msg("dropping frame for slow connection")
		if r.dropped != nil {
			r.dropped(c, room, event)
		}
	}
	return delivered
}

// Run publishes queued relays and consumes the bus until ctx is done,
// delivering envelopes published by other nodes. Without a bus it
// returns immediately.
func (r *Router) Run(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	r.log.Info().Str("node", r.nodeID).Msg("relaying broadcasts over bus")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.publish(ctx)
	}()
	defer wg.Wait()

	return r.bus.Subscribe(ctx, func(env Envelope) {
		if env.Origin == r.nodeID {
			return
		}
		r.deliver(env.Room, env.Event, env.Payload)
	})
}

// publish drains the outbox one envelope at a time so relays leave in
// the order they were broadcast.
func (r *Router) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.outbox:
			if err := r.bus.Publish(ctx, env); err != nil {
				r.log.Warn().Err(err).Str("room", env.Room).Str("event", env.Event).Msg("bus publish failed")
			}
		}
	}
}
