package store

import (
	"context"
	"time"

	"github.com/soyeahso/chatdesk/internal/domain"
)

// AnalyticsStore maintains the daily chat rollup. Averages are kept as
// running means alongside their sample counts.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates an analytics store using the given database.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// Day formats t as a rollup key.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Today returns the rollup key for the store's current time.
func (s *AnalyticsStore) Today() string {
	return Day(s.db.now())
}

// Get returns the rollup for date. Days without activity return zeros.
func (s *AnalyticsStore) Get(ctx context.Context, date string) (*domain.Analytics, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	a := domain.Analytics{Date: date}
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT total_chats, chats_resolved, total_messages, avg_response_time, avg_resolution_time, customer_satisfaction
		 FROM chat_analytics WHERE date = ?`, date,
	).Scan(&a.TotalChats, &a.ChatsResolved, &a.TotalMessages, &a.AvgResponseTime, &a.AvgResolutionTime, &a.CustomerSatisfaction)
	if err != nil && !isNoRows(err) {
		return nil, domain.Storage("get analytics", err)
	}
	return &a, nil
}

// RecordChatStarted counts a new session.
func (s *AnalyticsStore) RecordChatStarted(ctx context.Context, date string) error {
	return s.upsert(ctx, "record chat", date,
		`INSERT INTO chat_analytics (date, total_chats) VALUES (?, 1)
		 ON CONFLICT(date) DO UPDATE SET total_chats = total_chats + 1`)
}

// RecordMessage counts a persisted message.
func (s *AnalyticsStore) RecordMessage(ctx context.Context, date string) error {
	return s.upsert(ctx, "record message", date,
		`INSERT INTO chat_analytics (date, total_messages) VALUES (?, 1)
		 ON CONFLICT(date) DO UPDATE SET total_messages = total_messages + 1`)
}

// RecordFirstResponse folds one first-response delay into the daily mean.
func (s *AnalyticsStore) RecordFirstResponse(ctx context.Context, date string, d time.Duration) error {
	return s.upsert(ctx, "record response time", date,
		`INSERT INTO chat_analytics (date, avg_response_time, response_samples) VALUES (?1, ?2, 1)
		 ON CONFLICT(date) DO UPDATE SET
			avg_response_time = (avg_response_time * response_samples + ?2) / (response_samples + 1),
			response_samples = response_samples + 1`, d.Seconds())
}

// RecordResolution counts a closed session and folds its lifetime into the
// daily mean resolution time.
func (s *AnalyticsStore) RecordResolution(ctx context.Context, date string, d time.Duration) error {
	return s.upsert(ctx, "record resolution", date,
		`INSERT INTO chat_analytics (date, chats_resolved, avg_resolution_time) VALUES (?1, 1, ?2)
		 ON CONFLICT(date) DO UPDATE SET
			avg_resolution_time = (avg_resolution_time * chats_resolved + ?2) / (chats_resolved + 1),
			chats_resolved = chats_resolved + 1`, d.Seconds())
}

// RecordRating folds one satisfaction rating into the daily mean.
func (s *AnalyticsStore) RecordRating(ctx context.Context, date string, rating int) error {
	return s.upsert(ctx, "record rating", date,
		`INSERT INTO chat_analytics (date, customer_satisfaction, rating_samples) VALUES (?1, ?2, 1)
		 ON CONFLICT(date) DO UPDATE SET
			customer_satisfaction = (customer_satisfaction * rating_samples + ?2) / (rating_samples + 1),
			rating_samples = rating_samples + 1`, float64(rating))
}

func (s *AnalyticsStore) upsert(ctx context.Context, name, date, stmt string, args ...any) error {
	ctx, cancel := s.db.op(ctx)
	defer cancel()
	if _, err := s.db.sql.ExecContext(ctx, stmt, append([]any{date}, args...)...); err != nil {
		return domain.Storage(name, err)
	}
	return nil
}
