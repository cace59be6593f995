package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/anchor"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// Seeder fills a session with content. It is only used by the host.
type Seeder interface {
	Seed(ctx context.Context, sessionID string) error
}

// Archiver persists the outcome of a finished session.
type Archiver interface {
	Record(ctx context.Context, s *models.Session) error
}

// SessionClient is the handle one participant uses to read and write one
// session. Every phase handler receives it; nothing is process-global.
type SessionClient struct {
	Store         store.Store
	SessionID     string
	ParticipantID string
	Role          models.Role
	Clock         clockwork.Clock
	Windows       anchor.Windows

	// Optional host collaborators.
	Seeder   Seeder
	Archiver Archiver
}

func (c *SessionClient) IsHost() bool {
	return c.Role == models.RoleHost
}

func (c *SessionClient) now() time.Time {
	return c.Clock.Now()
}

// Advance moves the session from one stage to the next phase if, and only
// if, the stored stage still equals from. It reports whether it wrote.
// Losing the race to another writer is not an error.
func (c *SessionClient) Advance(ctx context.Context, from models.Stage, to models.Phase, mutate func(s *models.Session, now time.Time)) (bool, error) {
	now := c.now()
	_, err := c.Store.Transact(ctx, c.SessionID, func(s *models.Session) error {
		if s.Stage() != from {
			return store.ErrNoop
		}
		s.Phase = to
		if mutate != nil {
			mutate(s, now)
		}
		return nil
	})
	if errors.Is(err, store.ErrNoop) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to advance from %s to %s: %w", from, to, err)
	}

	log.Info().
		Str("session_id", c.SessionID).
		Str("role", string(c.Role)).
		Str("from", from.String()).
		Str("to", string(to)).
		Msg("phase advanced")
	return true, nil
}

// EnsureAnchor writes a fresh anchor for the current timed phase when the
// stored one is missing, from another round or stale, and reports whether it
// wrote. A rewritten anchor restarts the phase. Host only.
func (c *SessionClient) EnsureAnchor(ctx context.Context, s *models.Session) (bool, error) {
	now := c.now()
	if !c.IsHost() || !s.Phase.Timed() || !c.Windows.NeedsRefresh(s, now) {
		return false, nil
	}
	stage := s.Stage()
	_, err := c.Store.Transact(ctx, c.SessionID, func(cur *models.Session) error {
		if cur.Stage() != stage || !c.Windows.NeedsRefresh(cur, now) {
			return store.ErrNoop
		}
		*cur.Timers.For(cur.Phase) = c.Windows.Fresh(cur, now)
		return nil
	})
	if errors.Is(err, store.ErrNoop) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to write %s anchor: %w", stage, err)
	}
	log.Debug().Str("session_id", c.SessionID).Str("stage", stage.String()).Msg("anchor written")
	return true, nil
}

// CommitAnswers writes this role's answers for round once.
func (c *SessionClient) CommitAnswers(ctx context.Context, round int, answers []string) error {
	if len(answers) != models.ItemsPerRound {
		return fmt.Errorf("%w: %d answers", ErrIncomplete, len(answers))
	}
	want := models.Stage{Phase: models.PhaseQuestions, Round: round}
	_, err := c.Store.Transact(ctx, c.SessionID, func(s *models.Session) error {
		if s.Stage() != want || s.HasAnswers(c.Role, round) {
			return store.ErrNoop
		}
		s.SetAnswers(c.Role, round, answers)
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNoop) {
		return fmt.Errorf("failed to commit answers: %w", err)
	}
	return nil
}

// CommitVerdicts writes this role's verdicts and marking ack for round once.
// Late verdicts are still accepted while the round's award is showing.
func (c *SessionClient) CommitVerdicts(ctx context.Context, round int, verdicts []models.Verdict) error {
	if len(verdicts) != models.ItemsPerRound {
		return fmt.Errorf("%w: %d verdicts", ErrIncomplete, len(verdicts))
	}
	_, err := c.Store.Transact(ctx, c.SessionID, func(s *models.Session) error {
		if s.Round != round || (s.Phase != models.PhaseMarking && s.Phase != models.PhaseAward) {
			return store.ErrNoop
		}
		if s.HasVerdicts(c.Role, round) && s.Acked(c.Role, round) {
			return store.ErrNoop
		}
		if !s.HasVerdicts(c.Role, round) {
			s.SetVerdicts(c.Role, round, verdicts)
		}
		s.SetAck(c.Role, round)
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNoop) {
		return fmt.Errorf("failed to commit verdicts: %w", err)
	}
	return nil
}

// CommitMaths writes this role's maths answers and ack once.
func (c *SessionClient) CommitMaths(ctx context.Context, answers []int) error {
	if len(answers) != models.MathsQuestions {
		return fmt.Errorf("%w: %d maths answers", ErrIncomplete, len(answers))
	}
	_, err := c.Store.Transact(ctx, c.SessionID, func(s *models.Session) error {
		if s.Phase != models.PhaseMaths || s.HasMathsAnswers(c.Role) {
			return store.ErrNoop
		}
		s.SetMaths(c.Role, answers)
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNoop) {
		return fmt.Errorf("failed to commit maths answers: %w", err)
	}
	return nil
}
