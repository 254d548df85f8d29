// Package notify persists chat notifications and fans them out to
// best-effort external senders.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/logging"
)

const sendTimeout = 15 * time.Second

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n domain.Notification) (*domain.Notification, error)
}

// Directory resolves a user ID to contact details.
type Directory interface {
	Lookup(userID string) (domain.Identity, bool)
}

// Sender delivers a persisted notification somewhere outside the app.
type Sender interface {
	Name() string
	Send(ctx context.Context, n *domain.Notification, to domain.Identity) error
}

// Starter is implemented by senders that hold a long-lived connection.
type Starter interface {
	Start(ctx context.Context) error
	Stop() error
}

// Relay creates notifications for the coordinator. Nothing it does can
// fail the transition that triggered it.
type Relay struct {
	store Store
	dir   Directory
	log   *logging.Logger

	mu       sync.RWMutex
	senders  []Sender
	inflight sync.WaitGroup
}

// NewRelay creates a relay. dir may be nil, in which case senders only
// see the recipient's user ID.
func NewRelay(store Store, dir Directory, log *logging.Logger) *Relay {
	return &Relay{store: store, dir: dir, log: log.Sub("notify")}
}

// Register adds a sender.
func (r *Relay) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders = append(r.senders, s)
	r.log.Info().Str("sender", s.Name()).Msg("notification sender registered")
}

// Senders returns the registered sender names.
func (r *Relay) Senders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.senders))
	for i, s := range r.senders {
		names[i] = s.Name()
	}
	return names
}

// Start launches every sender that keeps a connection. Each runs in its
// own goroutine until ctx is done.
func (r *Relay) Start(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.senders {
		st, ok := s.(Starter)
		if !ok {
			continue
		}
		go func(name string, st Starter) {
			if err := st.Start(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Str("sender", name).Msg("notification sender stopped")
			}
		}(s.Name(), st)
	}
}

// Stop disconnects long-lived senders and waits for in-flight sends.
func (r *Relay) Stop() {
	r.mu.RLock()
	for _, s := range r.senders {
		if st, ok := s.(Starter); ok {
			if err := st.Stop(); err != nil {
				r.log.Warn().Err(err).Str("sender", s.Name()).Msg("stopping notification sender")
			}
		}
	}
	r.mu.RUnlock()
	r.Wait()
}

// Wait blocks until every dispatched send has finished.
func (r *Relay) Wait() {
	r.inflight.Wait()
}

// Notify persists n and hands it to every sender in the background.
// Failures are logged; the persisted notification (or nil) is returned
// for callers that want to broadcast it.
func (r *Relay) Notify(ctx context.Context, n domain.Notification) *domain.Notification {
	saved, err := r.store.Create(ctx, n)
	if err != nil {
		r.log.Warn().Err(err).
			Str("user", n.UserID).
			Int64("session", n.SessionID).
			Str("type", n.Type).
			Msg("failed to persist notification")
		return nil
	}

	to := domain.Identity{UserID: n.UserID}
	if r.dir != nil {
		if id, ok := r.dir.Lookup(n.UserID); ok {
			to = id
		}
	}

	r.mu.RLock()
	senders := append([]Sender(nil), r.senders...)
	r.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, s := range senders {
		r.inflight.Add(1)
		go func(s Sender) {
			defer r.inflight.Done()
			defer func() {
				if p := recover(); p != nil {
					r.log.Error().Interface("panic", p).Str("sender", s.Name()).Msg("notification sender panicked")
				}
			}()
			sctx, cancel := context.WithTimeout(detached, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, saved, to); err != nil {
				r.log.Warn().Err(err).Str("sender", s.Name()).Int64("notification", saved.ID).Msg("notification delivery failed")
				return
			}
			r.log.Debug().Str("sender", s.Name()).Int64("notification", saved.ID).Msg("notification delivered")
		}(s)
	}
	return saved
}
