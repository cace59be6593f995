package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// seedRetryDelay spaces out seeding attempts after a failure.
const seedRetryDelay = 5 * time.Second

func handlers() map[models.Phase]PhaseHandler {
	hs := []PhaseHandler{
		lobbyHandler{},
		seedingHandler{},
		countdownHandler{},
		questionsHandler{},
		markingHandler{},
		awardHandler{},
		mathsHandler{},
		finalHandler{},
	}
	out := make(map[models.Phase]PhaseHandler, len(hs))
	for _, h := range hs {
		out[h.Phase()] = h
	}
	return out
}

// base supplies no-op hooks.
type base struct{}

func (base) OnEnter(context.Context, *Turn) error    { return nil }
func (base) OnSnapshot(context.Context, *Turn) error { return nil }
func (base) OnTick(context.Context, *Turn) error     { return nil }
func (base) OnExit(context.Context, *Turn) error     { return nil }

func (base) HandleAction(_ context.Context, t *Turn, a Action) error {
	return fmt.Errorf("%w: %s during %s", ErrWrongPhase, a.Kind, t.Stage())
}

// lobby: waits for the host to start once a guest has joined.

type lobbyHandler struct{ base }

func (lobbyHandler) Phase() models.Phase { return models.PhaseLobby }

func (lobbyHandler) OnSnapshot(_ context.Context, t *Turn) error {
	if t.Session.Identities.Guest == "" {
		t.SetStatus("waiting for a guest")
	} else if t.Client.IsHost() {
		t.SetStatus("ready to start")
	} else {
		t.SetStatus("waiting for the host to start")
	}
	return nil
}

func (h lobbyHandler) HandleAction(ctx context.Context, t *Turn, a Action) error {
	if a.Kind != ActionStart {
		return h.base.HandleAction(ctx, t, a)
	}
	if !t.Client.IsHost() {
		return ErrNotHost
	}
	if t.Session.Identities.Guest == "" {
		return ErrGuestMissing
	}
	_, err := t.Client.Advance(ctx, t.Stage(), models.PhaseSeeding, nil)
	return err
}

// seeding: the host generates content and starts round 1 once it is valid.

type seedingHandler struct{ base }

func (seedingHandler) Phase() models.Phase { return models.PhaseSeeding }

func (h seedingHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h seedingHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (seedingHandler) evaluate(ctx context.Context, t *Turn) error {
	if !t.Client.IsHost() {
		t.SetStatus("preparing questions")
		return nil
	}
	if err := content.ReadyToStart(t.Session); err != nil {
		t.SetStatus(fmt.Sprintf("preparing questions: %v", err))
		t.reseed(ctx)
		return nil
	}
	_, err := t.Client.Advance(ctx, t.Stage(), models.PhaseCountdown, func(s *models.Session, now time.Time) {
		s.Round = 1
		s.Timers.Countdown = t.Client.Windows.Fresh(s, now)
	})
	return err
}

// countdown(r): the host opens questions(r) when the anchor elapses.

type countdownHandler struct{ base }

func (countdownHandler) Phase() models.Phase { return models.PhaseCountdown }

func (h countdownHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h countdownHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (countdownHandler) evaluate(ctx context.Context, t *Turn) error {
	if !t.Client.IsHost() {
		return nil
	}
	if wrote, err := t.Client.EnsureAnchor(ctx, t.Session); err != nil || wrote {
		return err
	}
	if !t.Client.Windows.Due(t.Session, t.Now) {
		return nil
	}
	if err := content.RoundReady(t.Session, t.Session.Round); err != nil {
		t.SetStatus(fmt.Sprintf("preparing questions: %v", err))
		t.reseed(ctx)
		return nil
	}
	_, err := t.Client.Advance(ctx, t.Stage(), models.PhaseQuestions, nil)
	return err
}

// questions(r): each side answers its three items; either client moves to
// marking once both answer sets are stored.

type questionsHandler struct{ base }

func (questionsHandler) Phase() models.Phase { return models.PhaseQuestions }

func (h questionsHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h questionsHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h questionsHandler) HandleAction(ctx context.Context, t *Turn, a Action) error {
	if a.Kind != ActionChooseAnswer {
		return h.base.HandleAction(ctx, t, a)
	}
	if err := checkSlot(a.Index); err != nil {
		return err
	}
	if a.Answer == "" {
		return fmt.Errorf("%w: empty answer", ErrInvalidAction)
	}
	r := t.Session.Round
	if t.Local.AnswersSubmitted || t.Session.HasAnswers(t.role(), r) {
		return ErrAlreadyCommitted
	}
	t.Local.Answers[a.Index] = a.Answer
	if !t.Local.answersComplete() {
		return nil
	}
	t.Local.AnswersSubmitted = true
	if err := t.Client.CommitAnswers(ctx, r, t.Local.Answers); err != nil {
		// Kept locally; evaluate retries on the next tick.
		log.Warn().Err(err).Str("session_id", t.Session.ID).Msg("answers not committed yet")
	}
	return nil
}

func (questionsHandler) evaluate(ctx context.Context, t *Turn) error {
	s, r := t.Session, t.Session.Round
	if t.Local.AnswersSubmitted && !s.HasAnswers(t.role(), r) {
		if err := t.Client.CommitAnswers(ctx, r, t.Local.Answers); err != nil {
			return err
		}
	}
	if s.HasAnswers(models.RoleHost, r) && s.HasAnswers(models.RoleGuest, r) {
		_, err := t.Client.Advance(ctx, t.Stage(), models.PhaseMarking, nil)
		return err
	}
	if s.HasAnswers(t.role(), r) {
		t.SetStatus("waiting for your opponent to answer")
	}
	return nil
}

// marking(r): each side judges the opponent's answers. At the deadline
// missing verdicts become unknown. The host moves on when both sides have
// acknowledged or the deadline passed.

type markingHandler struct{ base }

func (markingHandler) Phase() models.Phase { return models.PhaseMarking }

func (h markingHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h markingHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h markingHandler) HandleAction(ctx context.Context, t *Turn, a Action) error {
	r := t.Session.Round
	switch a.Kind {
	case ActionSetVerdict:
		if err := checkSlot(a.Index); err != nil {
			return err
		}
		if !a.Verdict.Valid() {
			return fmt.Errorf("%w: verdict %q", ErrInvalidAction, a.Verdict)
		}
		if t.Local.VerdictsSubmitted || t.Session.HasVerdicts(t.role(), r) {
			return ErrAlreadyCommitted
		}
		t.Local.Verdicts[a.Index] = a.Verdict
		return nil
	case ActionSubmitVerdicts:
		if t.Session.HasVerdicts(t.role(), r) {
			return ErrAlreadyCommitted
		}
		if !t.Local.verdictsComplete() {
			return ErrIncomplete
		}
		t.Local.VerdictsSubmitted = true
		if err := t.Client.CommitVerdicts(ctx, r, t.Local.Verdicts); err != nil {
			log.Warn().Err(err).Str("session_id", t.Session.ID).Msg("verdicts not committed yet")
		}
		return nil
	}
	return h.base.HandleAction(ctx, t, a)
}

func (markingHandler) evaluate(ctx context.Context, t *Turn) error {
	s, r, c := t.Session, t.Session.Round, t.Client
	elapsed := c.Windows.Due(s, t.Now)

	if elapsed && !t.Local.VerdictsSubmitted && !s.HasVerdicts(t.role(), r) {
		t.Local.fillUnknown()
		t.Local.VerdictsSubmitted = true
		log.Info().Str("session_id", s.ID).Str("role", string(t.role())).Int("round", r).Msg("marking deadline passed, submitting open verdicts as unknown")
	}
	if t.Local.VerdictsSubmitted && !s.Acked(t.role(), r) {
		if err := c.CommitVerdicts(ctx, r, t.Local.Verdicts); err != nil {
			return err
		}
	}

	if !c.IsHost() {
		return nil
	}
	if wrote, err := c.EnsureAnchor(ctx, s); err != nil || wrote {
		return err
	}
	if elapsed || (s.Acked(models.RoleHost, r) && s.Acked(models.RoleGuest, r)) {
		_, err := c.Advance(ctx, t.Stage(), models.PhaseAward, func(s *models.Session, now time.Time) {
			s.Timers.Award = c.Windows.Fresh(s, now)
		})
		return err
	}
	return nil
}

// award(r): scores are shown until the anchor elapses, then the host starts
// the next round or the maths puzzle.

type awardHandler struct{ base }

func (awardHandler) Phase() models.Phase { return models.PhaseAward }

func (h awardHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h awardHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (awardHandler) evaluate(ctx context.Context, t *Turn) error {
	s, r, c := t.Session, t.Session.Round, t.Client

	// Marking may have closed before this client's verdicts landed.
	if !s.Acked(t.role(), r) {
		if !t.Local.VerdictsSubmitted {
			t.Local.fillUnknown()
			t.Local.VerdictsSubmitted = true
		}
		if err := c.CommitVerdicts(ctx, r, t.Local.Verdicts); err != nil {
			return err
		}
	}

	if !c.IsHost() {
		return nil
	}
	if wrote, err := c.EnsureAnchor(ctx, s); err != nil || wrote {
		return err
	}
	if !c.Windows.Due(s, t.Now) {
		return nil
	}
	if r >= models.MaxRounds {
		_, err := c.Advance(ctx, t.Stage(), models.PhaseMaths, nil)
		return err
	}
	_, err := c.Advance(ctx, t.Stage(), models.PhaseCountdown, func(s *models.Session, now time.Time) {
		s.Round = r + 1
		s.Timers.Countdown = c.Windows.Fresh(s, now)
	})
	return err
}

// maths: both sides answer the puzzle; either client finishes the game once
// both have acknowledged.

type mathsHandler struct{ base }

func (mathsHandler) Phase() models.Phase { return models.PhaseMaths }

func (h mathsHandler) OnSnapshot(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h mathsHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.evaluate(ctx, t)
}

func (h mathsHandler) HandleAction(ctx context.Context, t *Turn, a Action) error {
	if a.Kind != ActionSubmitMaths {
		return h.base.HandleAction(ctx, t, a)
	}
	if len(a.Numbers) != models.MathsQuestions {
		return fmt.Errorf("%w: want %d numbers, got %d", ErrInvalidAction, models.MathsQuestions, len(a.Numbers))
	}
	if t.Local.Maths != nil || t.Session.HasMathsAnswers(t.role()) {
		return ErrAlreadyCommitted
	}
	t.Local.Maths = append([]int(nil), a.Numbers...)
	if err := t.Client.CommitMaths(ctx, t.Local.Maths); err != nil {
		log.Warn().Err(err).Str("session_id", t.Session.ID).Msg("maths answers not committed yet")
	}
	return nil
}

func (mathsHandler) evaluate(ctx context.Context, t *Turn) error {
	s := t.Session
	if t.Local.Maths != nil && !s.HasMathsAnswers(t.role()) {
		if err := t.Client.CommitMaths(ctx, t.Local.Maths); err != nil {
			return err
		}
	}
	if s.MathsAcks[models.RoleHost] && s.MathsAcks[models.RoleGuest] {
		_, err := t.Client.Advance(ctx, t.Stage(), models.PhaseFinal, nil)
		return err
	}
	return nil
}

// final: terminal. The host archives the result once.

type finalHandler struct{ base }

func (finalHandler) Phase() models.Phase { return models.PhaseFinal }

func (h finalHandler) OnEnter(ctx context.Context, t *Turn) error {
	return h.archive(ctx, t)
}

func (h finalHandler) OnTick(ctx context.Context, t *Turn) error {
	return h.archive(ctx, t)
}

func (finalHandler) archive(ctx context.Context, t *Turn) error {
	if !t.Client.IsHost() || t.Client.Archiver == nil || t.host.archived {
		return nil
	}
	if err := t.Client.Archiver.Record(ctx, t.Session); err != nil {
		return fmt.Errorf("failed to archive result: %w", err)
	}
	t.host.archived = true
	return nil
}
