// Package convstore persists conversations and their messages in SQLite so
// an avatar can pick up a dialogue where it left off. An empty store path
// disables persistence; every method degrades to a no-op so callers never
// branch on whether history is enabled.
package convstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/llm"
	_ "modernc.org/sqlite"
)

// Sender values for stored messages.
const (
	SenderUser   = "user"
	SenderAvatar = "avatar"
)

// Message is one stored turn of a conversation.
type Message struct {
	ID             int64
	ConversationID string
	Sender         string
	Content        string
	CreatedAt      time.Time
}

// Store wraps a SQLite-backed conversation history.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the conversation store according to config. An empty
// path yields a disabled store whose methods are all no-ops.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "convstore")
	if cfg.Path == "" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("conversation store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("conversation store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    conversation_id TEXT PRIMARY KEY,
    avatar_id TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Enabled reports whether persistence is active.
func (s *Store) Enabled() bool {
	return s.db != nil
}

// EnsureConversation creates or touches a conversation row.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, avatarID string) error {
	if s.db == nil {
		return nil
	}
	now := s.clock().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations(conversation_id, avatar_id, created_at, updated_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET avatar_id=excluded.avatar_id, updated_at=excluded.updated_at`,
		conversationID, avatarID, now, now)
	return err
}

// AppendMessage writes one turn into a conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID, sender, content string) error {
	if s.db == nil {
		return nil
	}
	now := s.clock().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(conversation_id, sender, content, created_at) VALUES(?, ?, ?, ?)`,
		conversationID, sender, content, now)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`, now, conversationID)
	return err
}

// ListMessages retrieves up to limit messages ordered ascending by time.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, content, created_at FROM (
		     SELECT id, conversation_id, sender, content, created_at
		     FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			m.CreatedAt = ts
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// History returns the most recent messages as LLM chat turns, oldest first.
// User messages map to the user role, avatar messages to the assistant role.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	msgs, err := s.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Sender == SenderAvatar {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out, nil
}

// RecordTurn persists one completed exchange: the user's message and the
// avatar's reply. Satisfies the pipeline's Recorder interface.
func (s *Store) RecordTurn(ctx context.Context, conversationID, avatarID, userMessage, reply string) error {
	if s.db == nil {
		return nil
	}
	if err := s.EnsureConversation(ctx, conversationID, avatarID); err != nil {
		return err
	}
	if err := s.AppendMessage(ctx, conversationID, SenderUser, userMessage); err != nil {
		return err
	}
	return s.AppendMessage(ctx, conversationID, SenderAvatar, reply)
}

// Prune applies configured retention. Called on startup; safe to schedule.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxConversations > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id IN (
			SELECT conversation_id FROM conversations ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxConversations)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
