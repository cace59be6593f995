// Package store defines the shared session document store both participants
// coordinate through, and the push subscription used to observe it.
package store

import (
	"context"
	"errors"

	"github.com/mcdev12/quizduel/go/internal/models"
)

var (
	// ErrSessionNotFound is returned when no document exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned by Create when the id is taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrNoop is returned from a Transact callback to abort without writing.
	// Transact passes it through to the caller unchanged.
	ErrNoop = errors.New("no change")
)

// Store is a document store with atomic single-document transactions and
// push subscriptions.
type Store interface {
	// Create inserts a new document.
	Create(ctx context.Context, s *models.Session) error
	// Get returns the current document.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Transact applies fn to a private copy of the document and persists the
	// result atomically. fn may run more than once on contention. When fn
	// returns an error nothing is written and the error is returned together
	// with the document fn last observed.
	Transact(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error)
	// Subscribe pushes the current document and every later revision.
	Subscribe(ctx context.Context, id string) (*Subscription, error)
}
