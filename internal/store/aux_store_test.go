package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationStore(t *testing.T) {
	db := testDB(t)
	notes := NewNotificationStore(db)
	ctx := context.Background()
	sess := newSession(t, db, "cust-1")

	_, err := notes.Create(ctx, domain.Notification{SessionID: sess.ID, Title: "x"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	first, err := notes.Create(ctx, domain.Notification{
		UserID: "cust-1", SessionID: sess.ID, Type: domain.NotifySessionAssigned,
		Title: "Support agent assigned", Body: "Dana has joined",
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = notes.Create(ctx, domain.Notification{UserID: "cust-1", SessionID: sess.ID, Type: domain.NotifySessionClosed, Title: "closed"})
	require.NoError(t, err)

	list, err := notes.ListForUser(ctx, "cust-1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.NotifySessionClosed, list[0].Type, "newest first")

	err = notes.MarkRead(ctx, first.ID, "someone-else")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, notes.MarkRead(ctx, first.ID, "cust-1"))

	unread, err := notes.ListForUser(ctx, "cust-1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	count, err := notes.CountBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCannedStore(t *testing.T) {
	canned := NewCannedStore(testDB(t))
	ctx := context.Background()

	_, err := canned.Create(ctx, domain.CannedResponse{Title: " ", Content: "x"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	greet, err := canned.Create(ctx, domain.CannedResponse{Title: "Greeting", Content: "Hi! How can I help?", Category: "general"})
	require.NoError(t, err)
	assert.True(t, greet.Active)

	_, err = canned.Create(ctx, domain.CannedResponse{Title: "Refund", Content: "Refunds take 5 days.", Category: "billing"})
	require.NoError(t, err)

	list, err := canned.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "billing", list[0].Category)

	greet.Active = false
	greet.Content = "Hello there"
	updated, err := canned.Update(ctx, *greet)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "Hello there", updated.Content)

	active, err := canned.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = canned.Update(ctx, domain.CannedResponse{ID: 999, Title: "a", Content: "b"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, canned.Delete(ctx, greet.ID))
	_, err = canned.Get(ctx, greet.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(canned.Delete(ctx, greet.ID), domain.ErrNotFound))
}

func TestAnalyticsStore(t *testing.T) {
	start := time.Date(2026, 5, 4, 23, 0, 0, 0, time.UTC)
	db := testDB(t, WithClock(func() time.Time { return start }))
	a := NewAnalyticsStore(db)
	ctx := context.Background()

	day := a.Today()
	assert.Equal(t, "2026-05-04", day)

	empty, err := a.Get(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalChats)

	require.NoError(t, a.RecordChatStarted(ctx, day))
	require.NoError(t, a.RecordChatStarted(ctx, day))
	require.NoError(t, a.RecordMessage(ctx, day))
	require.NoError(t, a.RecordFirstResponse(ctx, day, 30*time.Second))
	require.NoError(t, a.RecordFirstResponse(ctx, day, 90*time.Second))
	require.NoError(t, a.RecordResolution(ctx, day, 10*time.Minute))
	require.NoError(t, a.RecordRating(ctx, day, 5))
	require.NoError(t, a.RecordRating(ctx, day, 2))

	got, err := a.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalChats)
	assert.Equal(t, 1, got.TotalMessages)
	assert.Equal(t, 1, got.ChatsResolved)
	assert.InDelta(t, 60.0, got.AvgResponseTime, 0.001)
	assert.InDelta(t, 600.0, got.AvgResolutionTime, 0.001)
	assert.InDelta(t, 3.5, got.CustomerSatisfaction, 0.001)

	other, err := a.Get(ctx, Day(start.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "2026-05-05", other.Date)
	assert.Zero(t, other.TotalChats)
}
