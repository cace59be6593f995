package pgstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type fetchFunc func(ctx context.Context, id string) (*models.Session, error)

// Listener fans session change notifications out to subscriptions.
type Listener struct {
	listener *pq.Listener
	fetch    fetchFunc
	cfg      Config

	mu   sync.Mutex
	subs map[string]map[*store.Subscription]struct{}
}

func NewListener(cfg Config, fetch fetchFunc) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for session changes")

	return &Listener{
		listener: l,
		fetch:    fetch,
		cfg:      cfg,
		subs:     make(map[string]map[*store.Subscription]struct{}),
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("session listener started")

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session listener shutting down")
			l.endAll(ctx.Err())
			return nil
		case note := <-l.listener.Notify:
			if note == nil {
				// Connection was re-established; notifications may have been missed.
				l.refreshAll(ctx)
				continue
			}
			l.refresh(ctx, note.Extra)
		case <-fallbackTicker.C:
			l.refreshAll(ctx)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.listener.Close()
}

func (l *Listener) watch(id string) *store.Subscription {
	var sub *store.Subscription
	sub = store.NewSubscription(func() { l.unwatch(id, sub) })

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs[id] == nil {
		l.subs[id] = make(map[*store.Subscription]struct{})
	}
	l.subs[id][sub] = struct{}{}
	return sub
}

func (l *Listener) unwatch(id string, sub *store.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if subs, ok := l.subs[id]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(l.subs, id)
		}
	}
}

func (l *Listener) watchers(id string) []*store.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*store.Subscription, 0, len(l.subs[id]))
	for sub := range l.subs[id] {
		out = append(out, sub)
	}
	return out
}

// refresh re-reads one session and pushes it to its watchers. Subscriptions
// drop revisions they have already seen, so spurious refreshes are harmless.
func (l *Listener) refresh(ctx context.Context, id string) {
	targets := l.watchers(id)
	if len(targets) == 0 {
		return
	}
	doc, err := l.fetch(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("failed to fetch changed session")
		return
	}
	for _, sub := range targets {
		sub.Push(doc.Clone())
	}
}

func (l *Listener) refreshAll(ctx context.Context) {
	l.mu.Lock()
	ids := make([]string, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.refresh(ctx, id)
	}
}

func (l *Listener) endAll(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, subs := range l.subs {
		for sub := range subs {
			sub.End(err)
		}
		delete(l.subs, id)
	}
}
