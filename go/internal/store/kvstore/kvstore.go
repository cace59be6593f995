// Package kvstore keeps session documents in a NATS JetStream key-value
// bucket. Transactions are optimistic: a write only lands if the key still
// has the revision that was read.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type Config struct {
	URL           string
	Bucket        string
	TTL           time.Duration // How long an idle session is kept
	Replicas      int
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAttempts   int // CAS attempts per transaction
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "QUIZ_SESSIONS",
		TTL:           24 * time.Hour,
		Replicas:      1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAttempts:   16,
	}
}

// ErrContention is returned when a transaction lost every CAS attempt.
var ErrContention = errors.New("too much contention on session")

type Store struct {
	nc    *nats.Conn
	kv    jetstream.KeyValue
	cfg   Config
	clock clockwork.Clock
}

// New connects to NATS and ensures the bucket exists.
func New(ctx context.Context, cfg Config, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := []nats.Option{
		nats.Name("quizduel-kvstore"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Quiz session documents",
		History:     1,
		TTL:         cfg.TTL,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("session bucket ready")
	return &Store{nc: nc, kv: kv, cfg: cfg, clock: clock}, nil
}

func (s *Store) Create(ctx context.Context, doc *models.Session) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	rev, err := s.kv.Create(ctx, doc.ID, data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrSessionExists
		}
		return fmt.Errorf("create session: %w", err)
	}
	doc.Revision = rev
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(entry)
}

func (s *Store) Transact(ctx context.Context, id string, fn func(*models.Session) error) (*models.Session, error) {
	var last *models.Session
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		last = cur.Clone()

		if err := fn(cur); err != nil {
			return last, err
		}
		cur.ID = id
		cur.UpdatedAt = s.clock.Now().UTC()

		data, err := json.Marshal(cur)
		if err != nil {
			return last, fmt.Errorf("marshal session: %w", err)
		}

		rev, err := s.kv.Update(ctx, id, data, last.Revision)
		if err == nil {
			cur.Revision = rev
			return cur, nil
		}
		if !isWrongRevision(err) {
			return last, fmt.Errorf("update session: %w", err)
		}

		log.Debug().
			Str("session_id", id).
			Int("attempt", attempt+1).
			Msg("session changed underneath transaction, retrying")
	}
	return last, fmt.Errorf("%w %s after %d attempts", ErrContention, id, s.cfg.MaxAttempts)
}

func (s *Store) Subscribe(ctx context.Context, id string) (*store.Subscription, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	w, err := s.kv.Watch(watchCtx, id)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch session: %w", err)
	}

	sub := store.NewSubscription(func() {
		cancel()
		if err := w.Stop(); err != nil {
			log.Debug().Err(err).Str("session_id", id).Msg("failed to stop watcher")
		}
	})

	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					sub.End(fmt.Errorf("watch on %s closed", id))
					return
				}
				if entry == nil {
					// Initial values delivered.
					continue
				}
				if entry.Operation() != jetstream.KeyValuePut {
					sub.End(store.ErrSessionNotFound)
					return
				}
				doc, err := decode(entry)
				if err != nil {
					log.Error().Err(err).Str("session_id", id).Msg("failed to decode session update")
					continue
				}
				sub.Push(doc)
			}
		}
	}()
	return sub, nil
}

func (s *Store) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func decode(entry jetstream.KeyValueEntry) (*models.Session, error) {
	var doc models.Session
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", entry.Key(), err)
	}
	doc.Revision = entry.Revision()
	return &doc, nil
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
