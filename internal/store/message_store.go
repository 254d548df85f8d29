package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/soyeahso/chatdesk/internal/domain"
)

const messageColumns = `id, session_id, sender_id, sender_type, message, message_type,
	attachment_url, is_read, is_edited, edited_at, reply_to_id, created_at`

// MessageStore persists the per-session message log.
type MessageStore struct {
	db *DB
}

// NewMessageStore creates a message store using the given database.
func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m                   domain.Message
		senderID, attachURL sql.NullString
		senderType, msgType string
		editedAt            sql.NullString
		replyTo             sql.NullInt64
		createdAt           string
	)
	err := row.Scan(&m.ID, &m.SessionID, &senderID, &senderType, &m.Body, &msgType,
		&attachURL, &m.Read, &m.Edited, &editedAt, &replyTo, &createdAt)
	if err != nil {
		return nil, err
	}
	m.SenderID = senderID.String
	m.SenderType = domain.SenderType(senderType)
	m.Type = domain.MessageType(msgType)
	m.AttachmentURL = attachURL.String
	m.EditedAt = nullableTime(editedAt)
	m.ReplyToID = replyTo.Int64
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// Append adds a message to the end of a session's log and bumps the
// session's updated_at in the same transaction.
func (s *MessageStore) Append(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, domain.Validationf("Message cannot be empty")
	}
	if in.SenderType == "" {
		in.SenderType = domain.SenderCustomer
	}
	if in.Type == "" {
		in.Type = domain.MessageText
	}

	var id int64
	err := s.db.inTx(ctx, "append message", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM chat_sessions WHERE id = ?`, in.SessionID).Scan(&exists)
		if err != nil {
			return domain.Storage("append message", err)
		}
		if exists == 0 {
			return domain.NotFoundf("chat session %d not found", in.SessionID)
		}

		if in.ReplyToID != 0 {
			var parentSession int64
			err := tx.QueryRow(`SELECT session_id FROM chat_messages WHERE id = ?`, in.ReplyToID).Scan(&parentSession)
			if isNoRows(err) || (err == nil && parentSession != in.SessionID) {
				return domain.Validationf("reply target %d is not in this session", in.ReplyToID)
			}
			if err != nil {
				return domain.Storage("append message", err)
			}
		}

		now := s.db.stamp()
		res, err := tx.Exec(
			`INSERT INTO chat_messages (session_id, sender_id, sender_type, message, message_type, attachment_url, reply_to_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			in.SessionID, nullString(in.SenderID), string(in.SenderType), body, string(in.Type),
			nullString(in.AttachmentURL), nullInt(in.ReplyToID), now,
		)
		if err != nil {
			return domain.Storage("append message", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return domain.Storage("append message", err)
		}
		if _, err := tx.Exec(`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, in.SessionID); err != nil {
			return domain.Storage("append message", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns a single message.
func (s *MessageStore) Get(ctx context.Context, id int64) (*domain.Message, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	m, err := scanMessage(s.db.sql.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, domain.NotFoundf("message %d not found", id)
	}
	if err != nil {
		return nil, domain.Storage("get message", err)
	}
	return m, nil
}

// ListBySession returns a session's messages in append order.
func (s *MessageStore) ListBySession(ctx context.Context, sessionID int64) ([]*domain.Message, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, domain.Storage("list messages", err)
	}
	defer rows.Close()

	out := []*domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, domain.Storage("scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Storage("list messages", err)
	}
	return out, nil
}

// Last returns the newest message of a session, or nil if it has none.
func (s *MessageStore) Last(ctx context.Context, sessionID int64) (*domain.Message, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	m, err := scanMessage(s.db.sql.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Storage("last message", err)
	}
	return m, nil
}

// MarkAllReadExceptSender flags every unread message in the session not
// written by viewerID. The flag is per session, not per recipient, so two
// viewers share it. Returns the number of messages newly flagged.
func (s *MessageStore) MarkAllReadExceptSender(ctx context.Context, sessionID int64, viewerID string) (int64, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_messages SET is_read = 1
		 WHERE session_id = ? AND is_read = 0 AND sender_id IS NOT ?`,
		sessionID, nullString(viewerID))
	if err != nil {
		return 0, domain.Storage("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Storage("mark read", err)
	}
	return n, nil
}

// UnreadCount counts unread messages in the session not written by viewerID.
func (s *MessageStore) UnreadCount(ctx context.Context, sessionID int64, viewerID string) (int, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = ? AND is_read = 0 AND sender_id IS NOT ?`,
		sessionID, nullString(viewerID)).Scan(&n)
	if err != nil {
		return 0, domain.Storage("unread count", err)
	}
	return n, nil
}

// Edit replaces a message body and flags it edited.
func (s *MessageStore) Edit(ctx context.Context, id int64, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.Validationf("Message cannot be empty")
	}
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_messages SET message = ?, is_edited = 1, edited_at = ? WHERE id = ?`,
		body, s.db.stamp(), id)
	if err != nil {
		return nil, domain.Storage("edit message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.NotFoundf("message %d not found", id)
	}
	return s.Get(ctx, id)
}

// DeleteOne removes a single message. Replies to it keep existing with
// their reply reference cleared.
func (s *MessageStore) DeleteOne(ctx context.Context, id int64) error {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ?`, id)
	if err != nil {
		return domain.Storage("delete message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("message %d not found", id)
	}
	return nil
}

// DeleteBySession removes every message in a session. Session deletion
// does this itself; this is for clearing a transcript in place.
func (s *MessageStore) DeleteBySession(ctx context.Context, sessionID int64) (int64, error) {
	ctx, cancel := s.db.op(ctx)
	defer cancel()

	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, domain.Storage("delete session messages", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
