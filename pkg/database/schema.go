package database

import (
	"database/sql"
	"fmt"
)

// The core persists exactly two tables: the chat message log and the class
// roster it reads for notification fan-out. Everything else the classroom
// product stores belongs to the CRUD backend.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_created
	ON messages(room_id, created_at);

CREATE TABLE IF NOT EXISTS enrollments (
	class_id    TEXT NOT NULL,
	identity_id TEXT NOT NULL,
	role        TEXT NOT NULL,
	PRIMARY KEY (class_id, identity_id)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_class
	ON enrollments(class_id);
`

// InitSchema creates the tables and indexes if they do not exist. Safe to
// run on every startup.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
