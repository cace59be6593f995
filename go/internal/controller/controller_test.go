package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizduel/go/internal/anchor"
	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/content/bank"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/store"
	"github.com/mcdev12/quizduel/go/internal/store/memstore"
)

const (
	code   = "ABC"
	hostP  = "u1"
	guestP = "u2"
)

var epoch = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	ctx   context.Context
	clock *clockwork.FakeClock
	store *memstore.Store
	host  *Controller
	guest *Controller
	views *viewLog
}

type viewLog struct {
	mu    sync.Mutex
	paths []string
}

func (v *viewLog) View(_ context.Context, tok ViewToken) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paths = append(v.paths, tok.Path())
}

func (v *viewLog) list() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.paths...)
}

type recordingArchiver struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingArchiver) Record(_ context.Context, s *models.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, s.ID)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func seededContent() models.Content {
	var c models.Content
	for r := 1; r <= models.MaxRounds; r++ {
		rd := &models.Round{}
		for i := 0; i < models.ItemsPerRound; i++ {
			rd.HostItems = append(rd.HostItems, models.Item{Question: fmt.Sprintf("h%d-%d", r, i), CorrectAnswer: "yes"})
			rd.GuestItems = append(rd.GuestItems, models.Item{Question: fmt.Sprintf("g%d-%d", r, i), CorrectAnswer: "yes"})
		}
		c.SetRound(r, rd)
	}
	c.Maths = &models.Puzzle{
		Location:  "market",
		Beats:     []string{"a", "b", "c", "d"},
		Questions: []string{"How many apples?", "How many pears?"},
		Answers:   []int{3, 5},
	}
	return c
}

type setup struct {
	session  func(s *models.Session)
	seeder   func(st store.Store, clock clockwork.Clock) Seeder
	archiver Archiver
	noGuest  bool
}

func newHarness(t *testing.T, cfg setup) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClockAt(epoch)
	st := memstore.New(clock)

	s := models.NewSession(code, clock.Now())
	s.Identities.Host = hostP
	if !cfg.noGuest {
		s.Identities.Guest = guestP
	}
	if cfg.session != nil {
		cfg.session(s)
	}
	require.NoError(t, st.Create(ctx, s))

	h := &harness{t: t, ctx: ctx, clock: clock, store: st, views: &viewLog{}}
	client := func(pid string, role models.Role) *SessionClient {
		return &SessionClient{
			Store:         st,
			SessionID:     code,
			ParticipantID: pid,
			Role:          role,
			Clock:         clock,
			Windows:       anchor.DefaultWindows(),
		}
	}
	hc := client(hostP, models.RoleHost)
	if cfg.seeder != nil {
		hc.Seeder = cfg.seeder(st, clock)
	}
	if cfg.archiver != nil {
		hc.Archiver = cfg.archiver
	}
	h.host = New(hc)
	h.guest = New(client(guestP, models.RoleGuest), WithViewSink(h.views))

	var wg sync.WaitGroup
	for _, c := range []*Controller{h.host, h.guest} {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			assert.NoError(t, c.Run(ctx))
		}(c)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return h
}

func (h *harness) get() *models.Session {
	s, err := h.store.Get(context.Background(), code)
	require.NoError(h.t, err)
	return s
}

// waitFor waits without moving the clock.
func (h *harness) waitFor(msg string, cond func(s *models.Session) bool) *models.Session {
	h.t.Helper()
	var last *models.Session
	require.Eventually(h.t, func() bool {
		last = h.get()
		return cond(last)
	}, 3*time.Second, 2*time.Millisecond, msg)
	return last
}

// advanceUntil steps the clock one tick at a time until cond holds.
func (h *harness) advanceUntil(msg string, cond func(s *models.Session) bool) *models.Session {
	h.t.Helper()
	var last *models.Session
	require.Eventually(h.t, func() bool {
		last = h.get()
		if cond(last) {
			return true
		}
		h.clock.Advance(DefaultTickInterval)
		return false
	}, 10*time.Second, time.Millisecond, msg)
	return last
}

// do retries while the controller has not observed the expected phase yet.
func (h *harness) do(c *Controller, a Action) {
	h.t.Helper()
	var err error
	require.Eventually(h.t, func() bool {
		err = c.Do(h.ctx, a)
		return !errors.Is(err, ErrNotReady) && !errors.Is(err, ErrWrongPhase)
	}, 3*time.Second, 2*time.Millisecond)
	require.NoError(h.t, err, "%s", a.Kind)
}

func at(p models.Phase, round int) func(s *models.Session) bool {
	return func(s *models.Session) bool {
		return s.Phase == p && s.Round == round
	}
}

func TestFullRoundReachesNextCountdown(t *testing.T) {
	b, err := bank.Load("../content/bank/testdata/bank.yaml", 7)
	require.NoError(t, err)
	h := newHarness(t, setup{seeder: func(st store.Store, clock clockwork.Clock) Seeder {
		return content.NewSeeder(st, b, content.DefaultSeederConfig(), clock)
	}})

	h.do(h.host, Start())

	s := h.waitFor("countdown(1) after seeding", at(models.PhaseCountdown, 1))
	require.True(t, s.Timers.Countdown.Set())
	assert.Equal(t, 1, s.Timers.Countdown.Round)
	assert.NoError(t, content.ReadyToStart(s))

	s = h.advanceUntil("questions(1)", at(models.PhaseQuestions, 1))

	// Guest answers its first item correctly, the rest wrong.
	guestItems := s.ItemsFor(models.RoleGuest, 1)
	h.do(h.guest, ChooseAnswer(0, guestItems[0].CorrectAnswer))
	h.do(h.guest, ChooseAnswer(1, "nope"))
	h.do(h.guest, ChooseAnswer(2, "nope"))
	for i := 0; i < models.ItemsPerRound; i++ {
		h.do(h.host, ChooseAnswer(i, "whatever"))
	}

	h.waitFor("marking(1)", at(models.PhaseMarking, 1))

	// Host judges [right, right, unknown] on truth [T, F, F]: +1 -1 0.
	h.do(h.host, SetVerdict(0, models.VerdictRight))
	h.do(h.host, SetVerdict(1, models.VerdictRight))
	h.do(h.host, SetVerdict(2, models.VerdictUnknown))
	h.do(h.host, SubmitVerdicts())
	for i := 0; i < models.ItemsPerRound; i++ {
		h.do(h.guest, SetVerdict(i, models.VerdictUnknown))
	}
	h.do(h.guest, SubmitVerdicts())

	s = h.waitFor("award(1) once both acked", at(models.PhaseAward, 1))
	assert.True(t, s.Timers.Award.Set())
	assert.Equal(t, scoring.Scores{Host: 0, Guest: 0}, scoring.ComputeScores(s))

	s = h.advanceUntil("countdown(2)", at(models.PhaseCountdown, 2))
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, 2, s.Timers.Countdown.Round)
	assert.Equal(t, []string{"nope", "nope"}, s.AnswersFor(models.RoleGuest, 1)[1:])

	require.Eventually(t, func() bool {
		paths := h.views.list()
		return len(paths) > 0 && paths[len(paths)-1] == "/game/ABC/countdown/2"
	}, 3*time.Second, 2*time.Millisecond)
	assert.Equal(t, "/lobby/ABC", h.views.list()[0])
}

func TestMarkingDeadlineFillsUnknown(t *testing.T) {
	h := newHarness(t, setup{session: func(s *models.Session) {
		s.Content = seededContent()
	}})

	h.do(h.host, Start())
	h.advanceUntil("questions(1)", at(models.PhaseQuestions, 1))
	for i := 0; i < models.ItemsPerRound; i++ {
		h.do(h.host, ChooseAnswer(i, "yes"))
		h.do(h.guest, ChooseAnswer(i, "yes"))
	}
	h.waitFor("marking(1)", at(models.PhaseMarking, 1))

	h.do(h.host, SetVerdict(0, models.VerdictWrong))
	h.do(h.host, SetVerdict(1, models.VerdictRight))
	h.do(h.host, SetVerdict(2, models.VerdictRight))
	h.do(h.host, SubmitVerdicts())
	h.do(h.guest, SetVerdict(0, models.VerdictRight))

	s := h.advanceUntil("guest acked after the deadline", func(s *models.Session) bool {
		return s.Acked(models.RoleGuest, 1)
	})
	assert.Equal(t,
		[]models.Verdict{models.VerdictRight, models.VerdictUnknown, models.VerdictUnknown},
		s.VerdictsBy(models.RoleGuest, 1))

	s = h.waitFor("award(1)", at(models.PhaseAward, 1))
	assert.Equal(t, scoring.Scores{Host: 1, Guest: 1}, scoring.ComputeScores(s))
}

func anchorAt(at time.Time, round int) models.Anchor {
	ms := at.UnixMilli()
	return models.Anchor{StartAt: &ms, Round: round}
}

func TestAwardFiveOpensMaths(t *testing.T) {
	h := newHarness(t, setup{session: func(s *models.Session) {
		s.Content = seededContent()
		s.Phase, s.Round = models.PhaseAward, models.MaxRounds
		s.Timers.Award = anchorAt(epoch, models.MaxRounds)
	}})

	s := h.advanceUntil("maths", func(s *models.Session) bool {
		return s.Phase != models.PhaseAward
	})
	assert.Equal(t, models.PhaseMaths, s.Phase)
	assert.Equal(t, models.MaxRounds, s.Round)
	assert.GreaterOrEqual(t, h.clock.Since(epoch), anchor.DefaultWindows().Award)
	assert.True(t, s.Acked(models.RoleHost, models.MaxRounds))
	assert.True(t, s.Acked(models.RoleGuest, models.MaxRounds))
}

func TestHostRejoinRestartsStaleCountdown(t *testing.T) {
	w := anchor.DefaultWindows()
	h := newHarness(t, setup{session: func(s *models.Session) {
		s.Content = seededContent()
		s.Phase, s.Round = models.PhaseCountdown, 1
		s.Timers.Countdown = anchorAt(epoch.Add(-10*time.Minute), 1)
	}})

	restarted := epoch.Add(w.Lead).UnixMilli()
	h.waitFor("countdown anchor rewritten", func(s *models.Session) bool {
		return s.Timers.Countdown.Set() && *s.Timers.Countdown.StartAt == restarted
	})
	assert.Never(t, func() bool {
		return h.get().Phase != models.PhaseCountdown
	}, 100*time.Millisecond, 5*time.Millisecond, "countdown restarts instead of being skipped")

	h.advanceUntil("questions(1)", at(models.PhaseQuestions, 1))
	assert.GreaterOrEqual(t, h.clock.Since(epoch), w.Lead+w.Countdown)
}

func TestHostRejoinRestartsStaleMarking(t *testing.T) {
	h := newHarness(t, setup{session: func(s *models.Session) {
		s.Content = seededContent()
		s.Phase, s.Round = models.PhaseMarking, 2
		s.SetAnswers(models.RoleHost, 2, []string{"yes", "yes", "yes"})
		s.SetAnswers(models.RoleGuest, 2, []string{"yes", "no", "yes"})
		s.Timers.Marking = anchorAt(epoch.Add(-10*time.Minute), 2)
	}})

	h.waitFor("marking anchor rewritten", func(s *models.Session) bool {
		return s.Timers.Marking.Set() && *s.Timers.Marking.StartAt == epoch.UnixMilli()
	})
	assert.Never(t, func() bool {
		s := h.get()
		return s.Phase != models.PhaseMarking || s.HasVerdicts(models.RoleHost, 2) || s.HasVerdicts(models.RoleGuest, 2)
	}, 100*time.Millisecond, 5*time.Millisecond, "no verdicts are autofilled from the old deadline")

	h.do(h.guest, SetVerdict(0, models.VerdictRight))
	h.do(h.guest, SetVerdict(1, models.VerdictRight))
	h.do(h.guest, SetVerdict(2, models.VerdictWrong))
	h.do(h.guest, SubmitVerdicts())

	s := h.advanceUntil("award(2)", at(models.PhaseAward, 2))
	assert.Equal(t,
		[]models.Verdict{models.VerdictRight, models.VerdictRight, models.VerdictWrong},
		s.VerdictsBy(models.RoleGuest, 2))
	assert.Equal(t,
		[]models.Verdict{models.VerdictUnknown, models.VerdictUnknown, models.VerdictUnknown},
		s.VerdictsBy(models.RoleHost, 2))
	assert.GreaterOrEqual(t, h.clock.Since(epoch), anchor.DefaultWindows().Marking)
}

func TestStartRules(t *testing.T) {
	t.Run("guest cannot start", func(t *testing.T) {
		h := newHarness(t, setup{session: func(s *models.Session) { s.Content = seededContent() }})
		var err error
		require.Eventually(t, func() bool {
			err = h.guest.Do(h.ctx, Start())
			return !errors.Is(err, ErrNotReady)
		}, 3*time.Second, 2*time.Millisecond)
		assert.ErrorIs(t, err, ErrNotHost)
		assert.Equal(t, models.PhaseLobby, h.get().Phase)
	})

	t.Run("needs a guest", func(t *testing.T) {
		h := newHarness(t, setup{noGuest: true})
		var err error
		require.Eventually(t, func() bool {
			err = h.host.Do(h.ctx, Start())
			return !errors.Is(err, ErrNotReady)
		}, 3*time.Second, 2*time.Millisecond)
		assert.ErrorIs(t, err, ErrGuestMissing)
	})

	t.Run("wrong action in lobby", func(t *testing.T) {
		h := newHarness(t, setup{})
		var err error
		require.Eventually(t, func() bool {
			err = h.host.Do(h.ctx, SubmitVerdicts())
			return !errors.Is(err, ErrNotReady)
		}, 3*time.Second, 2*time.Millisecond)
		assert.ErrorIs(t, err, ErrWrongPhase)
	})
}

func TestAnswersAreWriteOnce(t *testing.T) {
	h := newHarness(t, setup{session: func(s *models.Session) {
		s.Content = seededContent()
		s.Phase, s.Round = models.PhaseQuestions, 1
	}})

	for i := 0; i < models.ItemsPerRound; i++ {
		h.do(h.host, ChooseAnswer(i, "first"))
	}
	h.waitFor("host answers stored", func(s *models.Session) bool {
		return s.HasAnswers(models.RoleHost, 1)
	})

	err := h.host.Do(h.ctx, ChooseAnswer(0, "second"))
	assert.ErrorIs(t, err, ErrAlreadyCommitted)
	assert.ErrorIs(t, h.host.Do(h.ctx, ChooseAnswer(5, "x")), ErrInvalidAction)

	s := h.get()
	assert.Equal(t, []string{"first", "first", "first"}, s.AnswersFor(models.RoleHost, 1))
	assert.Equal(t, models.PhaseQuestions, s.Phase, "guest has not answered")
}

func TestAdvanceIsConditional(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	st := memstore.New(clock)
	ctx := context.Background()
	s := models.NewSession(code, clock.Now())
	s.Phase = models.PhaseSeeding
	require.NoError(t, st.Create(ctx, s))

	c := &SessionClient{Store: st, SessionID: code, Role: models.RoleGuest, Clock: clock, Windows: anchor.DefaultWindows()}

	moved, err := c.Advance(ctx, models.Stage{Phase: models.PhaseLobby}, models.PhaseSeeding, nil)
	require.NoError(t, err)
	assert.False(t, moved, "stale source stage")

	moved, err = c.Advance(ctx, models.Stage{Phase: models.PhaseSeeding}, models.PhaseCountdown, func(s *models.Session, now time.Time) {
		s.Round = 1
	})
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = c.Advance(ctx, models.Stage{Phase: models.PhaseSeeding}, models.PhaseCountdown, nil)
	require.NoError(t, err)
	assert.False(t, moved, "second writer loses")

	got, err := st.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.Stage{Phase: models.PhaseCountdown, Round: 1}, got.Stage())
}

func TestEnsureAnchorHostOnly(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	st := memstore.New(clock)
	ctx := context.Background()
	s := models.NewSession(code, clock.Now())
	s.Phase, s.Round = models.PhaseMarking, 2
	require.NoError(t, st.Create(ctx, s))

	guest := &SessionClient{Store: st, SessionID: code, Role: models.RoleGuest, Clock: clock, Windows: anchor.DefaultWindows()}
	wrote, err := guest.EnsureAnchor(ctx, s)
	require.NoError(t, err)
	assert.False(t, wrote)
	got, _ := st.Get(ctx, code)
	assert.False(t, got.Timers.Marking.Set())

	host := &SessionClient{Store: st, SessionID: code, Role: models.RoleHost, Clock: clock, Windows: anchor.DefaultWindows()}
	wrote, err = host.EnsureAnchor(ctx, s)
	require.NoError(t, err)
	assert.True(t, wrote)
	got, _ = st.Get(ctx, code)
	require.True(t, got.Timers.Marking.Set())
	assert.Equal(t, 2, got.Timers.Marking.Round)
	assert.Equal(t, epoch.UnixMilli(), *got.Timers.Marking.StartAt)

	// A fresh anchor is left alone.
	clock.Advance(time.Second)
	wrote, err = host.EnsureAnchor(ctx, got)
	require.NoError(t, err)
	assert.False(t, wrote)
	again, _ := st.Get(ctx, code)
	assert.Equal(t, got.Revision, again.Revision)
}

func TestMathsToFinal(t *testing.T) {
	archiver := &recordingArchiver{}
	h := newHarness(t, setup{
		archiver: archiver,
		session: func(s *models.Session) {
			s.Content = seededContent()
			s.Phase, s.Round = models.PhaseMaths, models.MaxRounds
		},
	})

	var err error
	require.Eventually(t, func() bool {
		err = h.guest.Do(h.ctx, SubmitMaths(3))
		return !errors.Is(err, ErrNotReady)
	}, 3*time.Second, 2*time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidAction)

	h.do(h.host, SubmitMaths(3, 5))
	assert.ErrorIs(t, h.host.Do(h.ctx, SubmitMaths(1, 1)), ErrAlreadyCommitted)
	h.do(h.guest, SubmitMaths(3, 4))

	s := h.waitFor("final", func(s *models.Session) bool { return s.Phase == models.PhaseFinal })
	assert.Equal(t, []int{3, 4}, s.MathsAnswers[models.RoleGuest])

	require.Eventually(t, func() bool { return archiver.count() == 1 }, 3*time.Second, 2*time.Millisecond)
	h.clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, archiver.count(), "archived once")
}

func TestDoAfterStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	st := memstore.New(clock)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, st.Create(ctx, models.NewSession(code, clock.Now())))

	c := New(&SessionClient{Store: st, SessionID: code, Role: models.RoleHost, Clock: clock, Windows: anchor.DefaultWindows()})
	done := make(chan error)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, func() bool {
		return !errors.Is(c.Do(ctx, Start()), ErrNotReady)
	}, 3*time.Second, 2*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, c.Do(context.Background(), Start()), ErrStopped)
}

func TestRunMissingSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(&SessionClient{Store: memstore.New(clock), SessionID: "nope", Role: models.RoleHost, Clock: clock})
	assert.Error(t, c.Run(context.Background()))
}
