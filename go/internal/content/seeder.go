package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

type SeederConfig struct {
	MaxAttempts int           `env:"SEED_MAX_ATTEMPTS" envDefault:"4"`
	RetryDelay  time.Duration `env:"SEED_RETRY_DELAY" envDefault:"500ms"`
}

func DefaultSeederConfig() SeederConfig {
	return SeederConfig{
		MaxAttempts: 4,
		RetryDelay:  500 * time.Millisecond,
	}
}

// Seeder fills a session's content from a Pipeline. Round 1 and the maths
// puzzle are written first so play can start while later rounds generate.
type Seeder struct {
	store    store.Store
	pipeline Pipeline
	cfg      SeederConfig
	clock    clockwork.Clock

	mu      sync.Mutex
	running map[string]bool
}

func NewSeeder(st store.Store, p Pipeline, cfg SeederConfig, clock clockwork.Clock) *Seeder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Seeder{
		store:    st,
		pipeline: p,
		cfg:      cfg,
		clock:    clock,
		running:  make(map[string]bool),
	}
}

// Seed generates every missing round and the puzzle. Content that is already
// playable is left alone, so Seed can be re-run after a failure. A second
// call for a session that is still seeding returns immediately.
func (s *Seeder) Seed(ctx context.Context, sessionID string) error {
	if !s.begin(sessionID) {
		return nil
	}
	defer s.end(sessionID)

	logger := log.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("seeding content")

	if err := s.seedPuzzle(ctx, sessionID); err != nil {
		return err
	}
	for r := 1; r <= models.MaxRounds; r++ {
		if err := s.seedRound(ctx, sessionID, r); err != nil {
			return err
		}
		logger.Info().Int("round", r).Msg("round content ready")
	}
	logger.Info().Msg("content seeded")
	return nil
}

func (s *Seeder) begin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Seeder) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *Seeder) seedPuzzle(ctx context.Context, sessionID string) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if ValidatePuzzle(sess.Content.Maths) == nil {
		return nil
	}

	var puzzle *models.Puzzle
	err = s.retry(ctx, sessionID, "puzzle", func(attempt int) error {
		p, err := s.pipeline.GeneratePuzzle(ctx, PuzzleSpec{SessionID: sessionID})
		if err != nil {
			return err
		}
		if err := ValidatePuzzle(p); err != nil {
			return err
		}
		puzzle = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to generate puzzle: %w", err)
	}

	return s.write(ctx, sessionID, func(sess *models.Session) error {
		if ValidatePuzzle(sess.Content.Maths) == nil {
			return store.ErrNoop
		}
		sess.Content.Maths = puzzle
		return nil
	})
}

func (s *Seeder) seedRound(ctx context.Context, sessionID string, r int) error {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if RoundReady(sess, r) == nil {
		return nil
	}

	rd := &models.Round{}
	used := usedQuestions(sess)
	for _, side := range models.Roles {
		spec := RoundSpec{
			SessionID:  sessionID,
			Round:      r,
			Side:       side,
			Difficulty: models.DifficultyForRound(r),
			Exclude:    used,
		}
		items, err := s.generateSide(ctx, spec)
		if err != nil {
			return fmt.Errorf("round %d %s items: %w", r, side, err)
		}
		for _, it := range items {
			used = append(used, it.Question)
		}
		if side == models.RoleHost {
			rd.HostItems = items
		} else {
			rd.GuestItems = items
		}
	}
	if err := ValidateRound(rd); err != nil {
		return fmt.Errorf("round %d: %w", r, err)
	}

	return s.write(ctx, sessionID, func(sess *models.Session) error {
		if RoundReady(sess, r) == nil {
			return store.ErrNoop
		}
		sess.Content.SetRound(r, rd)
		return nil
	})
}

// generateSide collects three approved items, regenerating rejected ones.
func (s *Seeder) generateSide(ctx context.Context, spec RoundSpec) ([]models.Item, error) {
	var approved []models.Item
	label := fmt.Sprintf("round %d %s", spec.Round, spec.Side)

	err := s.retry(ctx, spec.SessionID, label, func(attempt int) error {
		need := models.ItemsPerRound - len(approved)
		items, err := s.pipeline.GenerateRoundItems(ctx, spec, need)
		if err != nil {
			return err
		}
		v, err := s.pipeline.VerifyItems(ctx, items)
		if err != nil {
			return err
		}
		for _, it := range v.Approved {
			if ValidateItem(it) != nil || len(approved) == models.ItemsPerRound {
				continue
			}
			approved = append(approved, it)
			spec.Exclude = append(spec.Exclude, it.Question)
		}
		for _, it := range v.Rejected {
			spec.Exclude = append(spec.Exclude, it.Question)
		}
		if len(approved) < models.ItemsPerRound {
			return fmt.Errorf("%w: %d of %d items approved", ErrVerificationFailed, len(approved), models.ItemsPerRound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// retry runs fn up to MaxAttempts times with a linear backoff.
func (s *Seeder) retry(ctx context.Context, sessionID, what string, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(delay):
			}
		}

		if err := fn(attempt); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("session_id", sessionID).
				Str("content", what).
				Int("attempt", attempt+1).
				Msg("content generation failed, retrying")
			continue
		}
		return nil
	}
	if errors.Is(lastErr, ErrVerificationFailed) {
		return lastErr
	}
	return fmt.Errorf("%s failed after %d attempts: %w", what, s.cfg.MaxAttempts, lastErr)
}

func (s *Seeder) write(ctx context.Context, sessionID string, fn func(*models.Session) error) error {
	_, err := s.store.Transact(ctx, sessionID, func(sess *models.Session) error {
		if sess.Phase == models.PhaseFinal {
			return store.ErrNoop
		}
		return fn(sess)
	})
	if err != nil && !errors.Is(err, store.ErrNoop) {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// usedQuestions lists every question already placed in the session.
func usedQuestions(sess *models.Session) []string {
	var out []string
	for _, rd := range sess.Content.Rounds {
		if rd == nil {
			continue
		}
		for _, it := range rd.HostItems {
			out = append(out, it.Question)
		}
		for _, it := range rd.GuestItems {
			out = append(out, it.Question)
		}
	}
	return out
}
