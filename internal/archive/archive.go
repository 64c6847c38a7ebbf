// Package archive provides the durable, append-only history store for
// chat messages. It is the system of record; the KV store's Message
// collection is a queryable mirror kept in sync on every Store call.
package archive

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

// Store wraps a SQLite database holding the message archive.
type Store struct {
	db  *sql.DB
	kv  *kvstore.Client
}

// Open opens or creates the SQLite database at path and enables WAL mode
// for concurrent reads while a worker appends. Pass ":memory:" for tests.
func Open(path string, kv *kvstore.Client) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: enable WAL: %w", err)
	}
	return &Store{db: db, kv: kv}, nil
}

// Migrate creates the schema if it does not already exist.
func (s *Store) Migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id      TEXT NOT NULL,
		message_id   INTEGER NOT NULL,
		direction    TEXT NOT NULL,
		sender       TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		timestamp    REAL NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		session_id   TEXT NOT NULL DEFAULT '',
		UNIQUE(chat_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreResult reports whether Store actually inserted a new row.
type StoreResult struct {
	Stored bool
	ID     int64
}

// Store inserts msg, idempotent on (chat_id, message_id): a duplicate
// call returns Stored=false with no error. On a fresh insert it also
// publishes to the KV store's "messages" channel so the Message mirror
// collection can be kept current by a subscriber.
func (s *Store) Store(ctx context.Context, msg records.Message) (StoreResult, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages
		 (chat_id, message_id, direction, sender, content, timestamp, message_type, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.MessageID, msg.Direction, msg.Sender, msg.Content,
		msg.Timestamp, msg.MessageType, msg.SessionID,
	)
	if err != nil {
		return StoreResult{}, fmt.Errorf("archive: store: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return StoreResult{}, fmt.Errorf("archive: rows affected: %w", err)
	}
	if rows == 0 {
		return StoreResult{Stored: false}, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoreResult{}, fmt.Errorf("archive: last insert id: %w", err)
	}
	if s.kv != nil {
		if err := s.kv.Publish(ctx, "messages", msg); err != nil {
			return StoreResult{Stored: true, ID: id}, fmt.Errorf("archive: publish mirror event: %w", err)
		}
	}
	return StoreResult{Stored: true, ID: id}, nil
}

// Recent returns the most recent limit messages for chatID, oldest first.
func (s *Store) Recent(ctx context.Context, chatID string, limit int) ([]records.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, direction, sender, content, timestamp, message_type, session_id
		 FROM messages WHERE chat_id = ? ORDER BY timestamp DESC LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Search finds messages in chatID matching query by keyword, weighted
// toward recency: a simple LIKE match scored by 1/(age_days+1) so newer
// matches outrank older ones at equal relevance, following the
// recency-weighting the original history tool used.
func (s *Store) Search(ctx context.Context, chatID, query string, maxResults int, maxAgeDays float64) ([]records.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, direction, sender, content, timestamp, message_type, session_id
		 FROM messages
		 WHERE chat_id = ?
		   AND content LIKE '%' || ? || '%'
		   AND (? <= 0 OR (unixepoch('now') - timestamp) / 86400.0 <= ?)
		 ORDER BY (1.0 / (((unixepoch('now') - timestamp) / 86400.0) + 1.0)) DESC
		 LIMIT ?`,
		chatID, query, maxAgeDays, maxAgeDays, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Stats summarizes the archive for one chat.
type Stats struct {
	Count      int64
	FirstAt    float64
	LastAt     float64
	InCount    int64
	OutCount   int64
}

// Stats returns row count, first/last timestamp, and direction breakdown
// for chatID.
func (s *Store) Stats(ctx context.Context, chatID string) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MIN(timestamp),0), COALESCE(MAX(timestamp),0),
		        COALESCE(SUM(CASE WHEN direction='in' THEN 1 ELSE 0 END),0),
		        COALESCE(SUM(CASE WHEN direction='out' THEN 1 ELSE 0 END),0)
		 FROM messages WHERE chat_id = ?`,
		chatID,
	)
	if err := row.Scan(&st.Count, &st.FirstAt, &st.LastAt, &st.InCount, &st.OutCount); err != nil {
		return Stats{}, fmt.Errorf("archive: stats: %w", err)
	}
	return st, nil
}

func scanMessages(rows *sql.Rows) ([]records.Message, error) {
	var out []records.Message
	for rows.Next() {
		var m records.Message
		if err := rows.Scan(&m.ChatID, &m.MessageID, &m.Direction, &m.Sender,
			&m.Content, &m.Timestamp, &m.MessageType, &m.SessionID); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
