// Package session persists conversation sessions and their messages.
//
// A session is identified by (store ID, external session token) supplied by
// the widget. Creation is an atomic upsert so that two near-simultaneous
// first messages for the same token cannot fork two sessions.
//
// Messages are append-only: this core never edits or deletes them.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Role constants for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is one widget conversation. Immutable once created except for
// updated_at, which tracks the latest activity.
type Session struct {
	ID        uuid.UUID
	StoreID   uuid.UUID
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single transcript entry. Metadata carries free-form
// annotations such as the classified intent or surfaced product references.
type Message struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Role      string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Store manages session persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// FindOrCreate returns the session for (storeID, token), creating it if
// needed. The unique constraint on (store_id, session_token) makes this a
// single atomic upsert; concurrent callers converge on one row.
func (s *Store) FindOrCreate(ctx context.Context, storeID uuid.UUID, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("session token is required")
	}

	var sess Session
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (store_id, session_token)
		 VALUES ($1, $2)
		 ON CONFLICT (store_id, session_token) DO UPDATE SET updated_at = now()
		 RETURNING id, store_id, session_token, created_at, updated_at`,
		storeID, token,
	).Scan(&sess.ID, &sess.StoreID, &sess.Token, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting session: %w", err)
	}

	return &sess, nil
}

// AppendMessage appends one message to the session transcript.
func (s *Store) AppendMessage(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, fmt.Errorf("invalid message role: %q", role)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling message metadata: %w", err)
	}

	var msg Message
	var rawMeta []byte
	err = s.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, session_id, role, content, metadata, created_at`,
		sessionID, role, content, metaJSON,
	).Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &rawMeta, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	if err := json.Unmarshal(rawMeta, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
	}

	s.logger.Debug("appended message",
		"session_id", sessionID, "role", role, "content_length", len(content))
	return &msg, nil
}

// RecentHistory returns the most recent limit messages in chronological
// order. This is the bounded window loaded per turn; older messages are
// never consulted by the core.
func (s *Store) RecentHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM (
		   SELECT id, session_id, role, content, metadata, created_at
		   FROM chat_messages
		   WHERE session_id = $1
		   ORDER BY created_at DESC, id DESC
		   LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		var rawMeta []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &rawMeta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal(rawMeta, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling message metadata: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return msgs, nil
}
