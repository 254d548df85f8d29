// Package analytics turns chat lifecycle hooks into the daily rollup and,
// optionally, a Kafka event stream.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/hooks"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/store"
)

// Rollup is the write side of the daily analytics table.
type Rollup interface {
	RecordChatStarted(ctx context.Context, date string) error
	RecordMessage(ctx context.Context, date string) error
	RecordFirstResponse(ctx context.Context, date string, d time.Duration) error
	RecordResolution(ctx context.Context, date string, d time.Duration) error
	RecordRating(ctx context.Context, date string, rating int) error
}

const recorderName = "analytics.rollup"

// Recorder keeps the rollup current from hook events.
type Recorder struct {
	rollup Rollup
	now    func() time.Time
	log    *logging.Logger
}

// NewRecorder creates a recorder writing to rollup.
func NewRecorder(rollup Rollup, log *logging.Logger) *Recorder {
	return &Recorder{rollup: rollup, now: time.Now, log: log.Sub("analytics")}
}

// Register subscribes the recorder to the events it counts.
func (r *Recorder) Register(m *hooks.Manager) {
	m.On(hooks.EventSessionCreated, recorderName, r.sessionCreated)
	m.On(hooks.EventMessageAppended, recorderName, r.messageAppended)
	m.On(hooks.EventFirstResponse, recorderName, r.firstResponse)
	m.On(hooks.EventSessionClosed, recorderName, r.sessionClosed)
	m.On(hooks.EventSessionRated, recorderName, r.sessionRated)
}

func (r *Recorder) sessionCreated(ctx context.Context, p hooks.Payload) error {
	sess, err := sessionOf(p)
	if err != nil {
		return err
	}
	return r.rollup.RecordChatStarted(ctx, store.Day(sess.CreatedAt))
}

func (r *Recorder) messageAppended(ctx context.Context, p hooks.Payload) error {
	msg, ok := p.Data[hooks.DataMessage].(*domain.Message)
	if !ok || msg == nil {
		return fmt.Errorf("%s: missing message", p.Event)
	}
	if msg.SenderType == domain.SenderSystem {
		return nil
	}
	return r.rollup.RecordMessage(ctx, store.Day(msg.CreatedAt))
}

func (r *Recorder) firstResponse(ctx context.Context, p hooks.Payload) error {
	sess, err := sessionOf(p)
	if err != nil {
		return err
	}
	if sess.FirstResponseAt == nil {
		return nil
	}
	// measured from assignment when there is one; waiting in the queue
	// is not response time
	from := sess.CreatedAt
	if sess.AssignedAt != nil {
		from = *sess.AssignedAt
	}
	return r.rollup.RecordFirstResponse(ctx, store.Day(*sess.FirstResponseAt), elapsed(from, *sess.FirstResponseAt))
}

func (r *Recorder) sessionClosed(ctx context.Context, p hooks.Payload) error {
	sess, err := sessionOf(p)
	if err != nil {
		return err
	}
	end := r.now()
	if sess.ClosedAt != nil {
		end = *sess.ClosedAt
	}
	return r.rollup.RecordResolution(ctx, store.Day(end), elapsed(sess.CreatedAt, end))
}

func (r *Recorder) sessionRated(ctx context.Context, p hooks.Payload) error {
	sess, err := sessionOf(p)
	if err != nil {
		return err
	}
	if sess.SatisfactionRating == 0 {
		return nil
	}
	return r.rollup.RecordRating(ctx, store.Day(r.now()), sess.SatisfactionRating)
}

func sessionOf(p hooks.Payload) (*domain.Session, error) {
	sess, ok := p.Data[hooks.DataSession].(*domain.Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("%s: missing session", p.Event)
	}
	return sess, nil
}

func elapsed(from, to time.Time) time.Duration {
	if to.Before(from) {
		return 0
	}
	return to.Sub(from)
}
