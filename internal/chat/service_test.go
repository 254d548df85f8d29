package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/rooms"
	"github.com/soyeahso/chatdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	room    string
	event   string
	payload any
}

type fakeRooms struct {
	mu     sync.Mutex
	joined map[string][]string // conn id -> rooms
	log    []sent
	users  []string
}

func newFakeRooms() *fakeRooms { return &fakeRooms{joined: make(map[string][]string)} }

func (r *fakeRooms) Join(conn rooms.Conn, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined[conn.ID()] = append(r.joined[conn.ID()], room)
}

func (r *fakeRooms) Broadcast(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, sent{room, event, payload})
}

func (r *fakeRooms) Users(string) []string { return r.users }

func (r *fakeRooms) sent() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.log...)
}

// trail renders broadcasts as "room/event" for order assertions.
func (r *fakeRooms) trail() []string {
	var out []string
	for _, s := range r.sent() {
		out = append(out, s.room+"/"+s.event)
	}
	return out
}

func (r *fakeRooms) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}

func (r *fakeRooms) roomsOf(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined[connID]
}

type fakeConn struct{ id, user string }

func (c fakeConn) ID() string            { return c.id }
func (c fakeConn) UserID() string        { return c.user }
func (c fakeConn) Send(string, any) bool { return true }

type directory map[string]domain.Identity

func (d directory) Lookup(id string) (domain.Identity, bool) {
	v, ok := d[id]
	return v, ok
}

func (d directory) Agents() []domain.Identity {
	var out []domain.Identity
	for _, v := range d {
		if v.Agent {
			out = append(out, v)
		}
	}
	return out
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, in domain.Notification) *domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, in)
	return &in
}

func (n *fakeNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.got...)
}

var (
	agentA = domain.Identity{UserID: "a1", Name: "Dana Agent", Agent: true}
	agentB = domain.Identity{UserID: "a2", Name: "Lee Agent", Agent: true}
	alice  = domain.Identity{UserID: "c1", Name: "Alice", Email: "alice@example.com"}
	bob    = domain.Identity{UserID: "c2", Name: "Bob"}
	guest  = domain.Identity{}
)

type harness struct {
	svc      *Service
	db       *store.DB
	rooms    *fakeRooms
	notifier *fakeNotifier
	hooks    *hooks.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, ":memory:")
}

// newFileHarness backs the service with an on-disk WAL database, where
// concurrent calls contend on real SQLite locks.
func newFileHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessAt(t, filepath.Join(t.TempDir(), "chat.db"))
}

func newHarnessAt(t *testing.T, path string) *harness {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{db: db, rooms: newFakeRooms(), notifier: &fakeNotifier{}, hooks: hooks.NewManager(log)}
	h.svc = New(Deps{
		Sessions:      store.NewSessionStore(db),
		Messages:      store.NewMessageStore(db),
		Notifications: store.NewNotificationStore(db),
		Canned:        store.NewCannedStore(db),
		Analytics:     store.NewAnalyticsStore(db),
		Rooms:         h.rooms,
		Directory:     directory{"a1": agentA, "a2": agentB, "c1": alice, "c2": bob},
		Notifier:      h.notifier,
		Hooks:         h.hooks,
		Log:           log,
	})
	return h
}

func (h *harness) session(t *testing.T, id int64) *domain.Session {
	t.Helper()
	sess, err := h.svc.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, sess.Status == domain.StatusActive, sess.AgentID != "", "active <=> agent for session %d", id)
	if sess.Status == domain.StatusWaiting {
		assert.Empty(t, sess.AgentID)
	}
	return sess
}

func (h *harness) messages(t *testing.T, id int64) []*domain.Message {
	t.Helper()
	msgs, err := h.svc.messages.ListBySession(context.Background(), id)
	require.NoError(t, err)
	return msgs
}

func TestScenarioA_AnonymousLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	view, err := h.svc.GetOrCreateSession(ctx, guest)
	require.NoError(t, err)
	id := view.ID
	assert.Equal(t, domain.StatusWaiting, h.session(t, id).Status)
	assert.Empty(t, view.CustomerID)
	assert.Equal(t, "Customer", view.CustomerName)
	assert.Equal(t, "Unassigned", view.AgentName)

	assigned, err := h.svc.AssignSession(ctx, agentA, id)
	require.NoError(t, err)
	assert.Equal(t, "Dana Agent", assigned.AgentName)
	sess := h.session(t, id)
	assert.Equal(t, domain.StatusActive, sess.Status)
	assert.Equal(t, "a1", sess.AgentID)

	_, err = h.svc.CloseSession(ctx, agentA, id)
	require.NoError(t, err)
	sess = h.session(t, id)
	assert.Equal(t, domain.StatusClosed, sess.Status)
	msgs := h.messages(t, id)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, domain.SenderSystem, last.SenderType)
	assert.Contains(t, last.Body, "closed")

	_, err = h.svc.SendMessage(ctx, guest, SendRequest{SessionID: id, Body: "hello"})
	require.NoError(t, err)
	sess = h.session(t, id)
	assert.Equal(t, domain.StatusWaiting, sess.Status)
	assert.Empty(t, sess.AgentID)
	assert.Equal(t, "a1", sess.LastAgentID)
}

func TestScenarioB_SecondAgentConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	h.rooms.reset()
	_, err = h.svc.AssignSession(ctx, agentB, sess.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, h.rooms.sent(), "a lost claim announces nothing")
	assert.Equal(t, "a1", h.session(t, sess.ID).AgentID)

	// same agent again is an idempotent success
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	assert.NoError(t, err)
	assert.Empty(t, h.rooms.sent())
}

func TestAssignSession_Concurrent(t *testing.T) {
	backends := map[string]func(*testing.T) *harness{
		"memory": newHarness,
		"file":   newFileHarness,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			h := open(t)
			ctx := context.Background()

			for round := 0; round < 5; round++ {
				sess, err := h.svc.CreateSession(ctx, alice, "", "")
				require.NoError(t, err)

				var wg sync.WaitGroup
				errs := make([]error, 2)
				for i, agent := range []domain.Identity{agentA, agentB} {
					wg.Add(1)
					go func(i int, agent domain.Identity) {
						defer wg.Done()
						_, errs[i] = h.svc.AssignSession(ctx, agent, sess.ID)
					}(i, agent)
				}
				wg.Wait()

				var ok, conflicts int
				for _, err := range errs {
					switch {
					case err == nil:
						ok++
					case assert.ErrorIs(t, err, domain.ErrConflict):
						conflicts++
					}
				}
				assert.Equal(t, 1, ok)
				assert.Equal(t, 1, conflicts)
				assert.NotEmpty(t, h.session(t, sess.ID).AgentID)
			}
		})
	}
}

func TestSendMessage_ConcurrentOnFile(t *testing.T) {
	h := newFileHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	const each = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*each)
	for _, who := range []domain.Identity{alice, agentA} {
		wg.Add(1)
		go func(who domain.Identity) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if _, err := h.svc.SendMessage(ctx, who, SendRequest{SessionID: sess.ID, Body: "ping"}); err != nil {
					errs <- err
				}
			}
		}(who)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("send failed: %v", err)
	}

	assert.Len(t, h.messages(t, sess.ID), 2*each)
	got := h.session(t, sess.ID)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.NotNil(t, got.FirstResponseAt)
}

func TestAssignSession_Broadcasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "Order", "high")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, sess.Priority)
	h.rooms.reset()

	_, err = h.svc.AssignSession(ctx, alice, sess.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	room := rooms.SessionRoom(sess.ID)
	assert.Equal(t, []string{
		room + "/" + EventSessionUpdated,
		rooms.Agents + "/" + EventSessionUpdated,
		room + "/" + EventSessionAssigned,
	}, h.rooms.trail())

	upd := h.rooms.sent()[0].payload.(SessionUpdate)
	assert.Equal(t, "Chat assigned to Dana Agent", upd.Message)
	require.NotNil(t, upd.AgentID)
	assert.Equal(t, "a1", *upd.AgentID)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "c1", notes[0].UserID)
	assert.Equal(t, domain.NotifySessionAssigned, notes[0].Type)
	assert.Equal(t, "Dana Agent has joined your chat", notes[0].Body)
}

func TestSendMessage_UnassignedAgentIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	h.rooms.reset()

	_, err = h.svc.SendMessage(ctx, agentA, SendRequest{SessionID: sess.ID, Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	h.rooms.reset()

	_, err = h.svc.SendMessage(ctx, agentB, SendRequest{SessionID: sess.ID, Body: "me too"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, h.rooms.sent())
	assert.Empty(t, h.messages(t, sess.ID))
}

func TestSendMessage_CustomerBroadcasts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	h.rooms.reset()

	view, err := h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "  where is my order?  "})
	require.NoError(t, err)
	assert.Equal(t, "where is my order?", view.Body)
	assert.Equal(t, "Alice", view.SenderName)
	assert.Equal(t, domain.SenderCustomer, view.SenderType)
	assert.Equal(t, domain.StatusActive, h.session(t, sess.ID).Status)

	room := rooms.SessionRoom(sess.ID)
	assert.Equal(t, []string{
		room + "/" + EventMessageSent,
		rooms.Agents + "/" + EventMessageSent,
		rooms.Agents + "/" + EventAdminNotification,
	}, h.rooms.trail())
	alert := h.rooms.sent()[2].payload.(Alert)
	assert.Equal(t, "New message from Alice", alert.Message)

	notes := h.notifier.all()
	require.Len(t, notes, 2)
	assert.Equal(t, "a1", notes[1].UserID)
	assert.Equal(t, domain.NotifyNewMessage, notes[1].Type)
}

func TestSendMessage_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: " \n\t"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: 999, Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.SendMessage(ctx, bob, SendRequest{SessionID: sess.ID, Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSendMessage_WaitingStaysWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	for _, body := range []string{"one", "two"} {
		_, err := h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: body})
		require.NoError(t, err)
	}
	assert.Equal(t, domain.StatusWaiting, h.session(t, sess.ID).Status)

	msgs := h.messages(t, sess.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)
}

func TestSendMessage_CustomerReopensClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	_, err = h.svc.CloseSession(ctx, alice, sess.ID)
	require.NoError(t, err)
	h.rooms.reset()

	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "one more thing"})
	require.NoError(t, err)

	got := h.session(t, sess.ID)
	assert.Equal(t, domain.StatusWaiting, got.Status)
	assert.Nil(t, got.ClosedAt)

	trail := h.rooms.trail()
	require.GreaterOrEqual(t, len(trail), 3)
	assert.Equal(t, rooms.Agents+"/"+EventSessionUpdated, trail[0])
	assert.Equal(t, rooms.SessionRoom(sess.ID)+"/"+EventSessionUpdated, trail[1])
	assert.Equal(t, rooms.SessionRoom(sess.ID)+"/"+EventMessageSent, trail[2])

	upd := h.rooms.sent()[0].payload.(SessionUpdate)
	assert.Equal(t, "Unassigned", upd.AgentName)
	assert.Nil(t, upd.AgentID)
	assert.Equal(t, domain.StatusWaiting, upd.Status)

	// the agent lost the session on close and cannot write until reassigned
	_, err = h.svc.SendMessage(ctx, agentA, SendRequest{SessionID: sess.ID, Body: "hello?"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSendMessage_FirstResponseHook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var mu sync.Mutex
	var firsts int
	h.hooks.On(hooks.EventFirstResponse, "count", func(context.Context, hooks.Payload) error {
		mu.Lock()
		firsts++
		mu.Unlock()
		return nil
	})

	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	for _, body := range []string{"Hi Alice", "Let me check"} {
		_, err := h.svc.SendMessage(ctx, agentA, SendRequest{SessionID: sess.ID, Body: body})
		require.NoError(t, err)
	}
	h.hooks.Drain()

	assert.Equal(t, 1, firsts)
	assert.NotNil(t, h.session(t, sess.ID).FirstResponseAt)
}

func TestCloseSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	_, err = h.svc.CloseSession(ctx, agentB, sess.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.CloseSession(ctx, bob, sess.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.CloseSession(ctx, agentA, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h.rooms.reset()
	closed, err := h.svc.CloseSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Empty(t, closed.AgentID)
	assert.NotNil(t, closed.ClosedAt)

	room := rooms.SessionRoom(sess.ID)
	assert.Equal(t, []string{
		room + "/" + EventMessageSent,
		room + "/" + EventSessionClosed,
		rooms.Agents + "/" + EventSessionClosed,
	}, h.rooms.trail(), "closing line is broadcast before the closed banner")
	notice := h.rooms.sent()[0].payload.(*MessageView)
	assert.Equal(t, closedBySupportText, notice.Body)

	notes := h.notifier.all()
	assert.Equal(t, domain.NotifySessionClosed, notes[len(notes)-1].Type)

	h.rooms.reset()
	_, err = h.svc.CloseSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, h.rooms.sent(), "closing twice is a no-op")
	assert.Len(t, h.messages(t, sess.ID), 1)
}

func TestCloseSession_UnassignedByAnyAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	_, err = h.svc.CloseSession(ctx, agentB, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, h.session(t, sess.ID).Status)
}

func TestOwnerlessSession_ManagementIsAgentOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	view, err := h.svc.GetOrCreateSession(ctx, guest)
	require.NoError(t, err)

	_, err = h.svc.SendMessage(ctx, guest, SendRequest{SessionID: view.ID, Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, h.svc.Typing(ctx, guest, view.ID, true))

	_, err = h.svc.ListMessages(ctx, guest, view.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.CloseSession(ctx, bob, view.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, h.svc.DeleteSession(ctx, guest, view.ID), domain.ErrForbidden)
	_, err = h.svc.MarkRead(ctx, bob, view.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	msgs, err := h.svc.ListMessages(ctx, agentA, view.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Customer", msgs[0].SenderName)
}

func TestJoinSession_RequiresSessionID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []domain.Identity{guest, alice, agentA} {
		_, err := h.svc.JoinSession(ctx, id, fakeConn{id: "conn-x"}, JoinRequest{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	_, err := h.svc.JoinSession(ctx, guest, fakeConn{id: "conn-x"}, JoinRequest{SessionID: -4})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, h.rooms.trail())
	assert.Empty(t, h.rooms.roomsOf("conn-x"))
	all, err := h.svc.ListSessions(ctx, agentA)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJoinSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	conn := fakeConn{id: "conn-1", user: "c1"}

	sess, err := h.svc.JoinSession(ctx, alice, conn, JoinRequest{SessionID: 77, CustomerName: "Alice W"})
	require.NoError(t, err)
	assert.Equal(t, "c1", sess.CustomerID)
	assert.Equal(t, domain.StatusWaiting, sess.Status)
	room := rooms.SessionRoom(sess.ID)
	assert.Equal(t, []string{room}, h.rooms.roomsOf("conn-1"))
	assert.Equal(t, []string{
		rooms.Agents + "/" + EventNewChatSession,
		room + "/" + EventMessageSent,
	}, h.rooms.trail())
	assert.Equal(t, "Alice W", h.rooms.sent()[0].payload.(NewSession).CustomerName)
	notice := h.rooms.sent()[1].payload.(SystemNotice)
	assert.Equal(t, domain.SenderSystem, notice.SenderType)
	assert.Empty(t, h.messages(t, sess.ID), "the started line is not stored")

	// an agent naming a missing session gets nothing
	_, err = h.svc.JoinSession(ctx, agentA, fakeConn{id: "conn-2"}, JoinRequest{SessionID: 9999})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.rooms.roomsOf("conn-2"))

	// another customer may not listen in
	_, err = h.svc.JoinSession(ctx, bob, fakeConn{id: "conn-3"}, JoinRequest{SessionID: sess.ID})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, h.rooms.roomsOf("conn-3"))

	h.rooms.reset()
	_, err = h.svc.JoinSession(ctx, agentA, fakeConn{id: "conn-4"}, JoinRequest{SessionID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{room + "/" + EventAdminNotification}, h.rooms.trail())
	assert.Equal(t, "Admin Dana Agent joined the chat session", h.rooms.sent()[0].payload.(Alert).Message)

	h.rooms.reset()
	_, err = h.svc.JoinSession(ctx, agentB, fakeConn{id: "conn-5"}, JoinRequest{SessionID: sess.ID, Silent: true})
	require.NoError(t, err)
	assert.Empty(t, h.rooms.sent())
	assert.Equal(t, []string{room}, h.rooms.roomsOf("conn-5"))
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.JoinRoom(ctx, alice, fakeConn{id: "x"}, rooms.Agents), domain.ErrForbidden)
	assert.ErrorIs(t, h.svc.JoinRoom(ctx, alice, fakeConn{id: "x"}, "lobby"), domain.ErrValidation)
	assert.ErrorIs(t, h.svc.JoinRoom(ctx, alice, fakeConn{id: "x"}, "session_abc"), domain.ErrValidation)
	assert.ErrorIs(t, h.svc.JoinRoom(ctx, bob, fakeConn{id: "x"}, rooms.SessionRoom(sess.ID)), domain.ErrForbidden)
	assert.Empty(t, h.rooms.roomsOf("x"))

	require.NoError(t, h.svc.JoinRoom(ctx, agentA, fakeConn{id: "y"}, rooms.Agents))
	require.NoError(t, h.svc.JoinRoom(ctx, alice, fakeConn{id: "y"}, rooms.SessionRoom(sess.ID)))
	assert.Equal(t, []string{rooms.Agents, rooms.SessionRoom(sess.ID)}, h.rooms.roomsOf("y"))
}

func TestTyping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	h.rooms.reset()

	require.NoError(t, h.svc.Typing(ctx, alice, sess.ID, true))
	require.NoError(t, h.svc.Typing(ctx, agentA, sess.ID, false))
	assert.ErrorIs(t, h.svc.Typing(ctx, bob, sess.ID, true), domain.ErrForbidden)

	room := rooms.SessionRoom(sess.ID)
	assert.Equal(t, []string{room + "/" + EventUserTyping, room + "/" + EventAgentTyping}, h.rooms.trail())
	state := h.rooms.sent()[0].payload.(TypingState)
	assert.True(t, state.IsTyping)
	require.NotNil(t, state.UserID)
	assert.Equal(t, "c1", *state.UserID)
	assert.Empty(t, h.messages(t, sess.ID))
}

func TestDeleteSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.DeleteSession(ctx, bob, sess.ID), domain.ErrForbidden)

	h.rooms.reset()
	require.NoError(t, h.svc.DeleteSession(ctx, alice, sess.ID))
	assert.Equal(t, []string{
		rooms.Agents + "/" + EventSessionDeleted,
		rooms.SessionRoom(sess.ID) + "/" + EventClearCustomerSession,
	}, h.rooms.trail())

	_, err = h.svc.sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, h.messages(t, sess.ID))

	var orphans int
	require.NoError(t, h.db.SQL().QueryRow(
		`SELECT COUNT(*) FROM chat_notifications WHERE session_id = ?`, sess.ID).Scan(&orphans))
	assert.Zero(t, orphans)

	assert.ErrorIs(t, h.svc.DeleteSession(ctx, agentA, sess.ID), domain.ErrNotFound)
}

func TestDeleteMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	other, err := h.svc.CreateSession(ctx, bob, "", "")
	require.NoError(t, err)

	m1, err := h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "first"})
	require.NoError(t, err)
	m2, err := h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "second"})
	require.NoError(t, err)

	_, err = h.svc.DeleteMessage(ctx, alice, other.ID, m1.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = h.svc.DeleteMessage(ctx, bob, sess.ID, m1.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.DeleteMessage(ctx, alice, sess.ID, 5000)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h.rooms.reset()
	cleared, err := h.svc.DeleteMessage(ctx, alice, sess.ID, m1.ID)
	require.NoError(t, err)
	assert.False(t, cleared)
	msgs := h.messages(t, sess.ID)
	require.Len(t, msgs, 1)
	assert.Equal(t, m2.ID, msgs[0].ID)
	assert.Equal(t, rooms.SessionRoom(sess.ID)+"/"+EventMessageDeleted, h.rooms.trail()[0])

	// an agent deleting any message clears the whole session
	h.rooms.reset()
	cleared, err = h.svc.DeleteMessage(ctx, agentA, sess.ID, m2.ID)
	require.NoError(t, err)
	assert.True(t, cleared)
	_, err = h.svc.sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, h.rooms.trail(), rooms.SessionRoom(sess.ID)+"/"+EventClearCustomerSession)
}

func TestEditMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	m, err := h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "teh order"})
	require.NoError(t, err)

	_, err = h.svc.EditMessage(ctx, agentA, sess.ID, m.ID, "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	h.rooms.reset()
	edited, err := h.svc.EditMessage(ctx, alice, sess.ID, m.ID, "the order")
	require.NoError(t, err)
	assert.Equal(t, "the order", edited.Body)
	assert.True(t, edited.Edited)
	assert.Equal(t, rooms.SessionRoom(sess.ID)+"/"+EventMessageEdited, h.rooms.trail()[0])
}

func TestScenarioC_MarkRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.AssignSession(ctx, agentA, sess.ID)
	require.NoError(t, err)

	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "one"})
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: sess.ID, Body: "two"})
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, agentA, SendRequest{SessionID: sess.ID, Body: "mine"})
	require.NoError(t, err)

	h.rooms.reset()
	n, err := h.svc.MarkRead(ctx, agentA, sess.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, []string{
		rooms.Agents + "/" + EventSessionUnreadCleared,
		rooms.SessionRoom(sess.ID) + "/" + EventSessionUnreadCleared,
	}, h.rooms.trail())

	for _, m := range h.messages(t, sess.ID) {
		assert.Equal(t, m.SenderID != "a1", m.Read, "message %q", m.Body)
	}
}

func TestGetOrCreateSession_Precedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.GetOrCreateSession(ctx, alice)
	require.NoError(t, err)
	again, err := h.svc.GetOrCreateSession(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "an open session is reused")

	_, err = h.svc.CloseSession(ctx, alice, first.ID)
	require.NoError(t, err)
	h.rooms.reset()

	reopened, err := h.svc.GetOrCreateSession(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, reopened.ID)
	assert.Equal(t, domain.StatusWaiting, reopened.Status)
	assert.Contains(t, h.rooms.trail(), rooms.Agents+"/"+EventSessionUpdated)

	// anonymous callers never share a session
	g1, err := h.svc.GetOrCreateSession(ctx, guest)
	require.NoError(t, err)
	g2, err := h.svc.GetOrCreateSession(ctx, guest)
	require.NoError(t, err)
	assert.NotEqual(t, g1.ID, g2.ID)
}

func TestListSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)
	_, err = h.svc.CreateSession(ctx, bob, "", "")
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, alice, SendRequest{SessionID: a.ID, Body: "latest"})
	require.NoError(t, err)

	_, err = h.svc.ListSessions(ctx, guest)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	mine, err := h.svc.ListSessions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "latest", mine[0].LastMessage)
	assert.Zero(t, mine[0].UnreadCount)

	all, err := h.svc.ListSessions(ctx, agentA)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Bob", all[0].CustomerName, "newest first")
	assert.Equal(t, 1, all[1].UnreadCount)
}

func TestRateSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	_, err = h.svc.RateSession(ctx, alice, sess.ID, 5, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "open sessions cannot be rated")

	_, err = h.svc.CloseSession(ctx, alice, sess.ID)
	require.NoError(t, err)

	_, err = h.svc.RateSession(ctx, agentA, sess.ID, 5, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.RateSession(ctx, alice, sess.ID, 9, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	rated, err := h.svc.RateSession(ctx, alice, sess.ID, 4, " quick help ")
	require.NoError(t, err)
	assert.Equal(t, 4, rated.SatisfactionRating)
	assert.Equal(t, "quick help", rated.SatisfactionFeedback)
}

func TestListAgents(t *testing.T) {
	h := newHarness(t)
	h.rooms.users = []string{"a2"}

	_, err := h.svc.ListAgents(context.Background(), alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	agents, err := h.svc.ListAgents(context.Background(), agentA)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "a1", agents[0].ID)
	assert.False(t, agents[0].Online)
	assert.True(t, agents[1].Online)
}

func TestCannedAndAnalytics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateCanned(ctx, alice, domain.CannedResponse{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.svc.ListCanned(ctx, guest)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	c, err := h.svc.CreateCanned(ctx, agentA, domain.CannedResponse{Title: "Greeting", Content: "Hi, how can I help?"})
	require.NoError(t, err)
	_, err = h.svc.UpdateCanned(ctx, agentA, c.ID, CannedPatch{Title: c.Title, Content: "Hello! How can I help?"})
	require.NoError(t, err)

	list, err := h.svc.ListCanned(ctx, agentB)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Hello! How can I help?", list[0].Content)
	require.NoError(t, h.svc.DeleteCanned(ctx, agentA, c.ID))

	today, err := h.svc.TodayAnalytics(ctx, agentA)
	require.NoError(t, err)
	assert.Zero(t, today.TotalChats)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess, err := h.svc.CreateSession(ctx, alice, "", "")
	require.NoError(t, err)

	saved, err := store.NewNotificationStore(h.db).Create(ctx, domain.Notification{
		UserID: "c1", SessionID: sess.ID, Type: domain.NotifySessionAssigned, Title: "Support agent assigned",
	})
	require.NoError(t, err)

	_, err = h.svc.ListNotifications(ctx, guest, false)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	assert.ErrorIs(t, h.svc.MarkNotificationRead(ctx, bob, saved.ID), domain.ErrNotFound)
	require.NoError(t, h.svc.MarkNotificationRead(ctx, alice, saved.ID))

	unread, err := h.svc.ListNotifications(ctx, alice, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestClearCustomerSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.ClearCustomerSession(ctx, alice, 3), domain.ErrForbidden)
	assert.ErrorIs(t, h.svc.ClearCustomerSession(ctx, agentA, 0), domain.ErrValidation)
	require.NoError(t, h.svc.ClearCustomerSession(ctx, agentA, 3))
	assert.Equal(t, []string{rooms.SessionRoom(3) + "/" + EventClearCustomerSession}, h.rooms.trail())
}
