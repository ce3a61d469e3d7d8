package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages attachment persistence with a PostgreSQL backend.
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

// Save validates and persists an attachment, filling in its id, size, and
// creation timestamp.
func (s *Store) Save(ctx context.Context, a *Attachment) error {
	if err := a.Validate(); err != nil {
		return err
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO attachments (session_id, filename, content_type, size_bytes, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.SessionID, a.Filename, a.ContentType, a.Size, a.Data,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving attachment %q: %w", a.Filename, err)
	}

	s.logger.Debug("saved attachment",
		"id", a.ID, "session_id", a.SessionID, "size", a.Size)
	return nil
}

// Get retrieves an attachment with its content.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	a := &Attachment{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, filename, content_type, size_bytes, data, created_at
		FROM attachments WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.SessionID, &a.Filename, &a.ContentType, &a.Size, &a.Data, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting attachment %s: %w", id, err)
	}
	return a, nil
}

// ListBySession returns attachment metadata (no content) for a session.
func (s *Store) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Attachment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, filename, content_type, size_bytes, created_at
		FROM attachments WHERE session_id = $1
		ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*Attachment, 0)
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Filename, &a.ContentType,
			&a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

// Delete removes an attachment.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting attachment %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	return nil
}
