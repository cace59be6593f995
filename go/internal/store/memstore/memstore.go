// Package memstore is an in-process store.Store used by single-node
// deployments and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type entry struct {
	doc  *models.Session
	subs map[*store.Subscription]struct{}
}

// Store keeps documents in memory guarded by a single mutex. Writes are
// serialized, which gives the same atomicity a transactional backend does.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	clock    clockwork.Clock
}

// New creates an empty store. A nil clock means the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		sessions: make(map[string]*entry),
		clock:    clock,
	}
}

func (s *Store) Create(ctx context.Context, doc *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[doc.ID]; exists {
		return store.ErrSessionExists
	}
	c := doc.Clone()
	c.Revision = 1
	s.sessions[doc.ID] = &entry{doc: c, subs: make(map[*store.Subscription]struct{})}
	doc.Revision = 1

	log.Debug().Str("session_id", doc.ID).Msg("session created")
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return e.doc.Clone(), nil
}

func (s *Store) Transact(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}

	work := e.doc.Clone()
	if err := fn(work); err != nil {
		return e.doc.Clone(), err
	}

	work.ID = e.doc.ID
	work.Revision = e.doc.Revision + 1
	work.UpdatedAt = s.clock.Now().UTC()
	e.doc = work

	for sub := range e.subs {
		sub.Push(work.Clone())
	}
	return work.Clone(), nil
}

func (s *Store) Subscribe(ctx context.Context, id string) (*store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}

	var sub *store.Subscription
	sub = store.NewSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(e.subs, sub)
	})
	e.subs[sub] = struct{}{}
	sub.Push(e.doc.Clone())
	return sub, nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
