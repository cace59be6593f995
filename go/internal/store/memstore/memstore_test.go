package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

func newStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	return New(clock), clock
}

func recv(t *testing.T, sub *store.Subscription) *models.Session {
	t.Helper()
	select {
	case s := <-sub.C():
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	st, clock := newStore(t)

	require.NoError(t, st.Create(ctx, models.NewSession("ABC", clock.Now())))
	assert.ErrorIs(t, st.Create(ctx, models.NewSession("ABC", clock.Now())), store.ErrSessionExists)

	got, err := st.Get(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, got.Phase)
	assert.Equal(t, uint64(1), got.Revision)

	_, err = st.Get(ctx, "NOPE")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestTransactNoopWritesNothing(t *testing.T) {
	ctx := context.Background()
	st, clock := newStore(t)
	require.NoError(t, st.Create(ctx, models.NewSession("ABC", clock.Now())))

	cur, err := st.Transact(ctx, "ABC", func(s *models.Session) error {
		s.Phase = models.PhaseFinal
		return store.ErrNoop
	})
	assert.ErrorIs(t, err, store.ErrNoop)
	assert.Equal(t, models.PhaseLobby, cur.Phase)

	got, err := st.Get(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseLobby, got.Phase)
	assert.Equal(t, uint64(1), got.Revision)
}

func TestTransactSerializesWriters(t *testing.T) {
	ctx := context.Background()
	st, clock := newStore(t)
	require.NoError(t, st.Create(ctx, models.NewSession("ABC", clock.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Transact(ctx, "ABC", func(s *models.Session) error {
				s.Round++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.Get(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Round)
	assert.Equal(t, uint64(51), got.Revision)
}

func TestSubscribePushesCurrentThenUpdates(t *testing.T) {
	ctx := context.Background()
	st, clock := newStore(t)
	require.NoError(t, st.Create(ctx, models.NewSession("ABC", clock.Now())))

	sub, err := st.Subscribe(ctx, "ABC")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := recv(t, sub)
	assert.Equal(t, models.PhaseLobby, first.Phase)

	_, err = st.Transact(ctx, "ABC", func(s *models.Session) error {
		s.Phase = models.PhaseSeeding
		return nil
	})
	require.NoError(t, err)

	next := recv(t, sub)
	assert.Equal(t, models.PhaseSeeding, next.Phase)
	assert.Equal(t, uint64(2), next.Revision)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	st, clock := newStore(t)
	require.NoError(t, st.Create(ctx, models.NewSession("ABC", clock.Now())))

	sub, err := st.Subscribe(ctx, "ABC")
	require.NoError(t, err)
	recv(t, sub)
	sub.Unsubscribe()

	_, err = st.Transact(ctx, "ABC", func(s *models.Session) error {
		s.Phase = models.PhaseSeeding
		return nil
	})
	require.NoError(t, err)

	select {
	case s := <-sub.C():
		t.Fatalf("unexpected snapshot after unsubscribe: %s", s.Phase)
	default:
	}
	st.mu.RLock()
	assert.Empty(t, st.sessions["ABC"].subs)
	st.mu.RUnlock()
}
