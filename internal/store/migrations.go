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
				id            TEXT PRIMARY KEY,
				owner         TEXT NOT NULL,
				group_name    TEXT NOT NULL,
				title         TEXT NOT NULL DEFAULT '',
				api_key       TEXT NOT NULL DEFAULT '',
				base_url      TEXT NOT NULL DEFAULT '',
				model         TEXT NOT NULL DEFAULT '',
				company_name  TEXT NOT NULL DEFAULT '',
				revenue       TEXT NOT NULL DEFAULT '',
				created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
				updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
			);

			CREATE INDEX idx_chat_sessions_owner ON chat_sessions (owner, updated_at DESC);

			CREATE TABLE messages (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				role        TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now'))
			);

			CREATE INDEX idx_messages_session ON messages (session_id, created_at);
		`,
	},
}
