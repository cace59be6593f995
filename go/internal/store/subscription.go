package store

import (
	"sync"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// Subscription is a cancellable stream of session snapshots.
//
// Delivery is latest-wins: a consumer that falls behind only ever sees the
// newest undelivered snapshot. Done is closed when either side ends the
// stream; consumers that want to keep observing subscribe again.
type Subscription struct {
	ch   chan *models.Session
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	err     error
	lastRev uint64

	stop     func()
	stopOnce sync.Once
}

// NewSubscription creates a subscription. stop is called once when the
// consumer unsubscribes and should release producer resources.
func NewSubscription(stop func()) *Subscription {
	return &Subscription{
		ch:   make(chan *models.Session, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan *models.Session {
	return s.ch
}

// Done is closed when the stream has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the producer error that ended the stream, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Push offers a snapshot to the consumer. Snapshots whose revision is not
// newer than the last pushed one are dropped. It never blocks.
func (s *Subscription) Push(snap *models.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || snap == nil {
		return false
	}
	if snap.Revision != 0 && snap.Revision <= s.lastRev {
		return false
	}
	s.lastRev = snap.Revision

	// Replace a stale undelivered snapshot.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	return true
}

// End is called by the producer when it can no longer deliver.
func (s *Subscription) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.done)
}

// Unsubscribe ends the stream and releases producer resources.
// It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.End(nil)
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}
