package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chat sessions and messages",
		SQL: `
			CREATE TABLE chat_sessions (
				id                     INTEGER PRIMARY KEY AUTOINCREMENT,
				customer_id            TEXT,
				agent_id               TEXT,
				last_agent_id          TEXT,
				status                 TEXT NOT NULL DEFAULT 'waiting'
				                       CHECK (status IN ('waiting', 'active', 'closed')),
				subject                TEXT NOT NULL DEFAULT '',
				priority               TEXT NOT NULL DEFAULT 'normal'
				                       CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
				created_at             TEXT NOT NULL,
				updated_at             TEXT NOT NULL,
				assigned_at            TEXT,
				first_response_at      TEXT,
				closed_at              TEXT,
				satisfaction_rating    INTEGER CHECK (satisfaction_rating BETWEEN 1 AND 5),
				satisfaction_feedback  TEXT,
				CHECK ((status = 'active') = (agent_id IS NOT NULL))
			);

			CREATE INDEX idx_chat_sessions_customer ON chat_sessions (customer_id, status);
			CREATE INDEX idx_chat_sessions_agent ON chat_sessions (agent_id);

			CREATE TABLE chat_messages (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id      INTEGER NOT NULL REFERENCES chat_sessions(id),
				sender_id       TEXT,
				sender_type     TEXT NOT NULL CHECK (sender_type IN ('customer', 'agent', 'system')),
				message         TEXT NOT NULL,
				message_type    TEXT NOT NULL DEFAULT 'text'
				                CHECK (message_type IN ('text', 'system', 'image', 'file')),
				attachment_url  TEXT,
				is_read         INTEGER NOT NULL DEFAULT 0,
				is_edited       INTEGER NOT NULL DEFAULT 0,
				edited_at       TEXT,
				reply_to_id     INTEGER REFERENCES chat_messages(id) ON DELETE SET NULL,
				created_at      TEXT NOT NULL
			);

			CREATE INDEX idx_chat_messages_session ON chat_messages (session_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create notifications and canned responses",
		SQL: `
			CREATE TABLE chat_notifications (
				id                 INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id            TEXT NOT NULL,
				session_id         INTEGER NOT NULL REFERENCES chat_sessions(id),
				notification_type  TEXT NOT NULL,
				title              TEXT NOT NULL,
				message            TEXT NOT NULL DEFAULT '',
				is_read            INTEGER NOT NULL DEFAULT 0,
				created_at         TEXT NOT NULL
			);

			CREATE INDEX idx_chat_notifications_user ON chat_notifications (user_id, is_read);
			CREATE INDEX idx_chat_notifications_session ON chat_notifications (session_id);

			CREATE TABLE canned_responses (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				title       TEXT NOT NULL,
				content     TEXT NOT NULL,
				category    TEXT NOT NULL DEFAULT '',
				is_active   INTEGER NOT NULL DEFAULT 1,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);
		`,
	},
	{
		Version: 3,
		Name:    "create daily chat analytics",
		SQL: `
			CREATE TABLE chat_analytics (
				date                   TEXT PRIMARY KEY,
				total_chats            INTEGER NOT NULL DEFAULT 0,
				chats_resolved         INTEGER NOT NULL DEFAULT 0,
				total_messages         INTEGER NOT NULL DEFAULT 0,
				avg_response_time      REAL NOT NULL DEFAULT 0,
				response_samples       INTEGER NOT NULL DEFAULT 0,
				avg_resolution_time    REAL NOT NULL DEFAULT 0,
				customer_satisfaction  REAL NOT NULL DEFAULT 0,
				rating_samples         INTEGER NOT NULL DEFAULT 0
			);
		`,
	},
}
