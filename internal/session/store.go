package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages session persistence with a PostgreSQL backend.
// Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store. logger may be nil (defaults to slog.Default()).
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title, modelName string) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (title, model_name)
		VALUES ($1, $2)
		RETURNING id, COALESCE(title, ''), COALESCE(model_name, ''), created_at, updated_at`,
		nullable(title), nullable(modelName),
	).Scan(&sess.ID, &sess.Title, &sess.ModelName, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// GetSession retrieves a session by id. Returns ErrSessionNotFound if absent.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := &Session{}
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, COALESCE(s.title, ''), COALESCE(s.model_name, ''),
		       s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		WHERE s.id = $1`,
		id,
	).Scan(&sess.ID, &sess.Title, &sess.ModelName, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions lists sessions ordered by updated_at descending.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, COALESCE(s.title, ''), COALESCE(s.model_name, ''),
		       s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.ModelName,
			&sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionTitle sets the session title.
func (s *Store) UpdateSessionTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`,
		id, title,
	)
	if err != nil {
		return fmt.Errorf("updating session title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// DeleteSession removes a session; messages and attachments cascade.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AddMessage appends a message to a session, assigning the next sequence
// number, and touches the session's updated_at. Runs in a transaction so
// concurrent appends cannot claim the same sequence number.
func (s *Store) AddMessage(ctx context.Context, sessionID uuid.UUID, role string, parts []Part) (*Message, error) {
	switch role {
	case RoleUser, RoleAssistant, RoleTool:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	payload, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encoding message parts: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize appends per session.
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT true FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	msg := &Message{SessionID: sessionID, Role: role, Parts: parts}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, parts, sequence_number)
		VALUES ($1, $2, $3,
			COALESCE((SELECT MAX(sequence_number) FROM messages WHERE session_id = $1), 0) + 1)
		RETURNING id, sequence_number, created_at`,
		sessionID, role, payload,
	).Scan(&msg.ID, &msg.SequenceNumber, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("adding message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID,
	); err != nil {
		return nil, fmt.Errorf("touching session %s: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}
	return msg, nil
}

// GetMessages loads messages for a session in sequence order.
func (s *Store) GetMessages(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, parts, sequence_number, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number
		LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		var payload []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &payload,
			&msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal(payload, &msg.Parts); err != nil {
			return nil, fmt.Errorf("decoding message parts: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// nullable converts empty strings to nil for nullable columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
