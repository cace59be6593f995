package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/models"
)

func TestMsgIDAndSubject(t *testing.T) {
	ev := ViewChanged{Code: "ABC", Phase: models.PhaseMarking, Round: 3}
	assert.Equal(t, "ABC:marking:3", ev.MsgID())
	assert.Equal(t, "quiz.views.ABC.marking", ev.Subject("quiz.views"))

	lobby := ViewChanged{Code: "ABC", Phase: models.PhaseLobby}
	assert.Equal(t, "ABC:lobby:0", lobby.MsgID())
}

type memPublisher struct {
	mu   sync.Mutex
	evs  []ViewChanged
	fail bool
}

func (m *memPublisher) Publish(_ context.Context, ev ViewChanged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broker down")
	}
	m.evs = append(m.evs, ev)
	return nil
}

func (m *memPublisher) Close() error { return nil }

func TestViewSink(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	pub := &memPublisher{}
	sink := ViewSink(pub, models.RoleGuest, clock)

	sink.View(context.Background(), controller.ViewToken{Code: "ABC", Phase: models.PhaseAward, Round: 2})
	require.Len(t, pub.evs, 1)
	ev := pub.evs[0]
	assert.Equal(t, "/game/ABC/award/2", ev.Path)
	assert.Equal(t, models.RoleGuest, ev.Role)
	assert.Equal(t, clock.Now(), ev.Timestamp)

	pub.fail = true
	assert.NotPanics(t, func() {
		sink.View(context.Background(), controller.ViewToken{Code: "ABC", Phase: models.PhaseFinal})
	})
	assert.NoError(t, LogPublisher{}.Publish(context.Background(), ev))
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Apply(ViewChanged{Code: "A", Phase: models.PhaseLobby, Timestamp: now})
	tr.Apply(ViewChanged{Code: "B", Phase: models.PhaseQuestions, Round: 2, Timestamp: now})
	tr.Apply(ViewChanged{Code: "B", Phase: models.PhaseCountdown, Round: 2, Timestamp: now})
	tr.Apply(ViewChanged{Code: "B", Phase: models.PhaseCountdown, Round: 3, Timestamp: now})
	tr.Apply(ViewChanged{Code: "C", Phase: models.PhaseMaths, Timestamp: now})
	tr.Apply(ViewChanged{Code: "C", Phase: models.PhaseFinal, Timestamp: now.Add(time.Second)})

	st := tr.Stats()
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Finished)
	assert.Equal(t, map[models.Phase]int{models.PhaseLobby: 1, models.PhaseCountdown: 1}, st.ByPhase)
	assert.Equal(t, now.Add(time.Second), st.LastEvent)

	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	var got Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 2, got.Active)
}

func TestTrackerIgnoresEventsAfterFinal(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.Apply(ViewChanged{Code: "A", Phase: models.PhaseMaths, Round: 5, Timestamp: now})
	tr.Apply(ViewChanged{Code: "A", Phase: models.PhaseFinal, Round: 5, Timestamp: now})

	// A redelivered final and a late maths view after a rejoin.
	tr.Apply(ViewChanged{Code: "A", Phase: models.PhaseFinal, Round: 5, Timestamp: now.Add(time.Minute)})
	tr.Apply(ViewChanged{Code: "A", Phase: models.PhaseMaths, Round: 5, Timestamp: now.Add(time.Minute)})

	st := tr.Stats()
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 1, st.Finished)
	assert.Empty(t, st.ByPhase)
}

func TestJetStreamRoundTrip(t *testing.T) {
	url := os.Getenv("QUIZDUEL_TEST_NATS")
	if url == "" {
		t.Skip("QUIZDUEL_TEST_NATS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := DefaultJetStreamConfig()
	cfg.URL = url
	cfg.StreamName = "QUIZ_VIEWS_TEST"
	cfg.SubjectPrefix = "quiz.test." + time.Now().Format("150405")
	cfg.Replicas = 1

	pub, err := NewJetStreamPublisher(ctx, cfg)
	require.NoError(t, err)
	defer pub.Close()

	ev := ViewChanged{Code: "ABC", Phase: models.PhaseCountdown, Round: 1, Timestamp: time.Now()}
	require.NoError(t, pub.Publish(ctx, ev))
	require.NoError(t, pub.Publish(ctx, ev), "duplicate publish is accepted")

	tr := NewTracker()
	c, err := NewConsumer(ctx, cfg, ConsumerConfig{ConsumerName: "stats-test", AckWait: time.Second, MaxDeliver: 1}, tr)
	require.NoError(t, err)
	defer c.Close()
	go func() { _ = c.Run(ctx) }()

	require.Eventually(t, func() bool { return tr.Stats().Active == 1 }, 5*time.Second, 20*time.Millisecond)
}
