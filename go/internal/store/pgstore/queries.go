package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_sessions (
    id         TEXT PRIMARY KEY,
    doc        JSONB       NOT NULL,
    revision   BIGINT      NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Queries binds the session statements to a pgx transaction.
type Queries struct {
	tx pgx.Tx
}

func newQueries(tx pgx.Tx) *Queries {
	return &Queries{tx: tx}
}

// Insert creates the row. It reports false when the id is taken.
func (q *Queries) Insert(ctx context.Context, s *models.Session) (bool, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}
	tag, err := q.tx.Exec(ctx,
		`INSERT INTO quiz_sessions (id, doc, revision, created_at, updated_at)
		 VALUES ($1, $2, 1, $3, $3)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, doc, s.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Lock reads the row and holds its lock until the transaction ends.
func (q *Queries) Lock(ctx context.Context, id string) (*models.Session, error) {
	return scanSession(q.tx.QueryRow(ctx,
		`SELECT doc, revision FROM quiz_sessions WHERE id = $1 FOR UPDATE`, id))
}

// Save writes the document back with the next revision.
func (q *Queries) Save(ctx context.Context, s *models.Session, now time.Time) error {
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = q.tx.Exec(ctx,
		`UPDATE quiz_sessions SET doc = $2, revision = $3, updated_at = $4 WHERE id = $1`,
		s.ID, doc, int64(s.Revision), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Notify queues a change notification delivered when the transaction commits.
func (q *Queries) Notify(ctx context.Context, channel, id string) error {
	if _, err := q.tx.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, id); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var (
		doc      []byte
		revision int64
	)
	if err := row.Scan(&doc, &revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	s.Revision = uint64(revision)
	return &s, nil
}
