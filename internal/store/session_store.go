package store

import (
	"context"
	"database/sql"

	"github.com/soyeahso/chatdesk/internal/domain"
)

const sessionColumns = `id, customer_id, agent_id, last_agent_id, status, subject, priority,
	created_at, updated_at, assigned_at, first_response_at, closed_at,
	satisfaction_rating, satisfaction_feedback`

// SessionStore persists chat sessions.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a session store using the given database.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                                 domain.Session
		customerID, agentID, lastAgentID  sql.NullString
		status, priority                  string
		createdAt, updatedAt              string
		assignedAt, firstResponse, closed sql.NullString
		rating                            sql.NullInt64
		feedback                          sql.NullString
	)
	err := row.Scan(&s.ID, &customerID, &agentID, &lastAgentID, &status, &s.Subject, &priority,
		&createdAt, &updatedAt, &assignedAt, &firstResponse, &closed, &rating, &feedback)
	if err != nil {
		return nil, err
	}
	s.CustomerID = customerID.String
	s.AgentID = agentID.String
	s.LastAgentID = lastAgentID.String
	s.Status = domain.SessionStatus(status)
	s.Priority = domain.Priority(priority)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	s.AssignedAt = nullableTime(assignedAt)
	s.FirstResponseAt = nullableTime(firstResponse)
	s.ClosedAt = nullableTime(closed)
	s.SatisfactionRating = int(rating.Int64)
	s.SatisfactionFeedback = feedback.String
	return &s, nil
}

// Create inserts a new waiting session. An empty customerID creates an
// ownerless (anonymous) session.
func (s *SessionStore) Create(ctx context.Context, customerID, subject string, priority domain.Priority) (*domain.Session, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	now := s.db.stamp()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_sessions (customer_id, status, subject, priority, created_at, updated_at)
		 VALUES (?, 'waiting', ?, ?, ?, ?)`,
		nullString(customerID), subject, string(domain.ParsePriority(string(priority))), now, now,
	)
	if err != nil {
		return nil, domain.Storage("create session", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain.Storage("create session", err)
	}
	return s.get(ctx, id)
}

// Get returns a session by ID.
func (s *SessionStore) Get(ctx context.Context, id int64) (*domain.Session, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()
	return s.get(ctx, id)
}

func (s *SessionStore) get(ctx context.Context, id int64) (*domain.Session, error) {
	sess, err := scanSession(s.db.sql.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, domain.NotFoundf("chat session %d not found", id)
	}
	if err != nil {
		return nil, domain.Storage("get session", err)
	}
	return sess, nil
}

// FindForCustomer returns the customer's most relevant session, preferring
// active over waiting over closed, newest first within a status. Returns
// nil when the customer has none.
func (s *SessionStore) FindForCustomer(ctx context.Context, customerID string) (*domain.Session, error) {
	if customerID == "" {
		return nil, nil
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	sess, err := scanSession(s.db.sql.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions
		 WHERE customer_id = ?
		 ORDER BY CASE status WHEN 'active' THEN 0 WHEN 'waiting' THEN 1 ELSE 2 END, id DESC
		 LIMIT 1`, customerID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage("find customer session", err)
	}
	return sess, nil
}

// List returns sessions newest first. An empty customerID lists every
// session; otherwise only that customer's.
func (s *SessionStore) List(ctx context.Context, customerID string) ([]*domain.Session, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM chat_sessions`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.Storage("list sessions", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, domain.Storage("scan session", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list sessions", err)
	}
	return out, nil
}

// Assign claims the session for agentID with a single conditional UPDATE,
// so of two racing agents exactly one wins. Re-assigning the holder is a
// no-op reported with changed=false.
func (s *SessionStore) Assign(ctx context.Context, id int64, agentID string) (sess *domain.Session, changed bool, err error) {
	if agentID == "" {
		return nil, false, domain.Validationf("agent id is required")
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	now := s.db.stamp()
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_sessions
		 SET status = 'active', agent_id = ?, last_agent_id = ?, assigned_at = ?, closed_at = NULL, updated_at = ?
		 WHERE id = ? AND agent_id IS NULL AND status IN ('waiting', 'closed')`,
		agentID, agentID, now, now, id,
	)
	if err != nil {
		return nil, false, domain.Storage("assign session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, domain.Storage("assign session", err)
	}

	sess, err = s.get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return sess, true, nil
	}
	if sess.AgentID == agentID {
		return sess, false, nil
	}
	return sess, false, domain.Conflictf("Session is already assigned to another agent")
}

// Reopen moves a closed session back to waiting. Sessions in any other
// state are returned unchanged.
func (s *SessionStore) Reopen(ctx context.Context, id int64) (*domain.Session, bool, error) {
	return s.transition(ctx, id, "reopen session",
		`UPDATE chat_sessions SET status = 'waiting', agent_id = NULL, closed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = 'closed'`)
}

// Close marks the session closed and releases its agent. The agent stays
// recorded in last_agent_id.
func (s *SessionStore) Close(ctx context.Context, id int64) (*domain.Session, bool, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	now := s.db.stamp()
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_sessions SET status = 'closed', agent_id = NULL, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status != 'closed'`, now, now, id)
	return s.after(ctx, id, "close session", res, err)
}

// MarkFirstResponse stamps first_response_at once.
func (s *SessionStore) MarkFirstResponse(ctx context.Context, id int64) (*domain.Session, bool, error) {
	return s.transition(ctx, id, "mark first response",
		`UPDATE chat_sessions SET first_response_at = ?1, updated_at = ?1
		 WHERE id = ?2 AND first_response_at IS NULL`)
}

// Rate records post-close satisfaction. Only closed sessions accept a rating.
func (s *SessionStore) Rate(ctx context.Context, id int64, rating int, feedback string) (*domain.Session, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.Validationf("Rating must be between 1 and 5")
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_sessions SET satisfaction_rating = ?, satisfaction_feedback = ?, updated_at = ?
		 WHERE id = ? AND status = 'closed'`, rating, nullString(feedback), s.db.stamp(), id)
	sess, changed, err := s.after(ctx, id, "rate session", res, err)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.Validationf("Only closed sessions can be rated")
	}
	return sess, nil
}

// Delete removes the session together with its notifications and
// messages, dependents first, in one transaction.
func (s *SessionStore) Delete(ctx context.Context, id int64) error {
	return s.db.inTx(ctx, "delete session", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM chat_notifications WHERE session_id = ?`,
			`DELETE FROM chat_messages WHERE session_id = ?`,
		} {
			if _, err := tx.Exec(stmt, id); err != nil {
				return domain.Storage("delete session dependents", err)
			}
		}
		res, err := tx.Exec(`DELETE FROM chat_sessions WHERE id = ?`, id)
		if err != nil {
			return domain.Storage("delete session", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFoundf("chat session %d not found", id)
		}
		return nil
	})
}

// transition runs a single-timestamp conditional update of the form
// "SET ... = ? WHERE id = ? AND <guard>".
func (s *SessionStore) transition(ctx context.Context, id int64, name, stmt string) (*domain.Session, bool, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()
	res, err := s.db.sql.ExecContext(ctx, stmt, s.db.stamp(), id)
	return s.after(ctx, id, name, res, err)
}

func (s *SessionStore) after(ctx context.Context, id int64, name string, res sql.Result, err error) (*domain.Session, bool, error) {
	if err != nil {
		return nil, false, domain.Storage(name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, domain.Storage(name, err)
	}
	sess, err := s.get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, n > 0, nil
}
