package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// Stats is a point-in-time summary of the view stream.
type Stats struct {
	Active    int                  `json:"active"`
	Finished  int                  `json:"finished"`
	ByPhase   map[models.Phase]int `json:"byPhase"`
	LastEvent time.Time            `json:"lastEvent,omitempty"`
}

// Tracker folds view changes into per-session stages.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]models.Stage
	finished map[string]bool
	last     time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]models.Stage),
		finished: make(map[string]bool),
	}
}

// Apply records ev. Events older than the stage already seen for the
// session, and any event for a finished session, are ignored.
func (t *Tracker) Apply(ev ViewChanged) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Timestamp.After(t.last) {
		t.last = ev.Timestamp
	}
	if t.finished[ev.Code] {
		return
	}
	cur, known := t.sessions[ev.Code]
	next := models.Stage{Phase: ev.Phase, Round: ev.Round}
	if known && !later(next, cur) {
		return
	}
	if ev.Phase == models.PhaseFinal {
		delete(t.sessions, ev.Code)
		t.finished[ev.Code] = true
		return
	}
	t.sessions[ev.Code] = next
}

// later reports whether a comes after b in play order.
func later(a, b models.Stage) bool {
	if a.Round != b.Round && a.Phase.Rounded() && b.Phase.Rounded() {
		return a.Round > b.Round
	}
	return phaseIndex(a.Phase) > phaseIndex(b.Phase)
}

func phaseIndex(p models.Phase) int {
	for i, q := range models.Phases {
		if q == p {
			return i
		}
	}
	return -1
}

func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Stats{
		Active:    len(t.sessions),
		Finished:  len(t.finished),
		ByPhase:   make(map[models.Phase]int),
		LastEvent: t.last,
	}
	for _, st := range t.sessions {
		out.ByPhase[st.Phase]++
	}
	return out
}

func (t *Tracker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write stats")
	}
}

type ConsumerConfig struct {
	ConsumerName string        `env:"EVENTS_CONSUMER" envDefault:"quiz-stats"`
	AckWait      time.Duration `env:"EVENTS_ACK_WAIT" envDefault:"30s"`
	MaxDeliver   int           `env:"EVENTS_MAX_DELIVER" envDefault:"5"`
}

// Consumer feeds a Tracker from the view stream.
type Consumer struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	tracker  *Tracker
	name     string
}

func NewConsumer(ctx context.Context, js JetStreamConfig, cfg ConsumerConfig, tracker *Tracker) (*Consumer, error) {
	nc, jsc, err := dial(js.URL, js.MaxReconnects, js.ReconnectWait)
	if err != nil {
		return nil, err
	}

	stream, err := jsc.Stream(ctx, js.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.ConsumerName,
		Durable:       cfg.ConsumerName,
		Description:   "Quiz view statistics",
		FilterSubject: js.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	log.Info().Str("consumer", cfg.ConsumerName).Str("stream", js.StreamName).Msg("view consumer ready")
	return &Consumer{nc: nc, consumer: consumer, tracker: tracker, name: cfg.ConsumerName}, nil
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	msgs := make(chan jetstream.Msg, 100)
	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer cc.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("consumer", c.name).Msg("view consumer shutting down")
			return nil
		case msg := <-msgs:
			var ev ViewChanged
			if err := json.Unmarshal(msg.Data(), &ev); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed view event")
				_ = msg.Term()
				continue
			}
			c.tracker.Apply(ev)
			if err := msg.Ack(); err != nil {
				log.Error().Err(err).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
