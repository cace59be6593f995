// Package pgstore keeps session documents in Postgres and pushes changes to
// subscribers through LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/sqlutil"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to re-read watched sessions
	PingInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:    "quiz_session_changes",
		FallbackInterval: 5 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Store implements store.Store on a quiz_sessions table.
type Store struct {
	pool  *pgxpool.Pool
	cfg   Config
	clock clockwork.Clock
	hub   *Listener
}

// New ensures the schema exists and starts listening for changes.
// Run must be called to deliver notifications to subscribers.
func New(ctx context.Context, pool *pgxpool.Pool, cfg Config, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate quiz_sessions: %w", err)
	}

	s := &Store{pool: pool, cfg: cfg, clock: clock}
	hub, err := NewListener(cfg, s.Get)
	if err != nil {
		return nil, err
	}
	s.hub = hub
	return s, nil
}

// Run delivers change notifications until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	return s.hub.Start(ctx)
}

func (s *Store) Create(ctx context.Context, doc *models.Session) error {
	return sqlutil.RunPgx(ctx, s.pool, newQueries, func(q *Queries) error {
		inserted, err := q.Insert(ctx, doc)
		if err != nil {
			return err
		}
		if !inserted {
			return store.ErrSessionExists
		}
		doc.Revision = 1
		return q.Notify(ctx, s.cfg.NotifyChannel, doc.ID)
	})
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	return scanSession(s.pool.QueryRow(ctx,
		`SELECT doc, revision FROM quiz_sessions WHERE id = $1`, id))
}

func (s *Store) Transact(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	var result *models.Session
	err := sqlutil.RunPgx(ctx, s.pool, newQueries, func(q *Queries) error {
		cur, err := q.Lock(ctx, id)
		if err != nil {
			return err
		}
		result = cur.Clone()
		if err := fn(cur); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		cur.ID = id
		cur.Revision = result.Revision + 1
		cur.UpdatedAt = now
		if err := q.Save(ctx, cur, now); err != nil {
			return err
		}
		if err := q.Notify(ctx, s.cfg.NotifyChannel, id); err != nil {
			return err
		}
		result = cur
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		return result, err
	}
	return result, nil
}

func (s *Store) Subscribe(ctx context.Context, id string) (*store.Subscription, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sub := s.hub.watch(id)
	sub.Push(doc)
	return sub, nil
}

// Close stops listening. The pool is owned by the caller.
func (s *Store) Close() error {
	if err := s.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to close session listener")
		return err
	}
	return nil
}
