// Package sessions creates sessions and exposes them over a connect API.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/anchor"
	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/roles"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 8
)

var ErrCodeSpace = errors.New("could not allocate a free session code")

type App struct {
	store   store.Store
	roles   *roles.Service
	clock   clockwork.Clock
	windows anchor.Windows
	intn    func(n int) int
}

func NewApp(st store.Store, clock clockwork.Clock, windows anchor.Windows) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		store:   st,
		roles:   roles.NewService(st),
		clock:   clock,
		windows: windows,
		intn:    rand.IntN,
	}
}

func (a *App) newCode() string {
	var b strings.Builder
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[a.intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode upper-cases a user-typed code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateSession stores an empty lobby under a fresh code.
func (a *App) CreateSession(ctx context.Context) (*models.Session, error) {
	for i := 0; i < codeAttempts; i++ {
		s := models.NewSession(a.newCode(), a.clock.Now())
		err := a.store.Create(ctx, s)
		if errors.Is(err, store.ErrSessionExists) {
			log.Debug().Str("code", s.ID).Msg("session code taken, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Info().Str("session_id", s.ID).Msg("session created")
		return s, nil
	}
	return nil, ErrCodeSpace
}

// ClaimRole seats a participant. An empty participant id is replaced with a
// new one, which is returned.
func (a *App) ClaimRole(ctx context.Context, code, participantID string, role models.Role) (roles.ClaimResult, string, error) {
	if participantID == "" {
		participantID = uuid.NewString()
	}
	res, err := a.roles.Claim(ctx, NormalizeCode(code), participantID, role)
	if err != nil {
		return "", participantID, err
	}
	return res, participantID, nil
}

// GetSession returns the session with derived state for participantID.
func (a *App) GetSession(ctx context.Context, code, participantID string) (*Snapshot, error) {
	s, err := a.store.Get(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return a.snapshot(s, participantID), nil
}

func (a *App) snapshot(s *models.Session, participantID string) *Snapshot {
	view := controller.TokenFor(s)
	out := &Snapshot{
		Scores: scoring.ComputeScores(s),
		View:   view,
		Path:   view.Path(),
	}
	if s.Phase.Timed() {
		out.RemainingMs = a.windows.Remaining(s, a.clock.Now()).Milliseconds()
	}
	if role, ok := roles.RoleOf(s, participantID); ok {
		out.Role = role
		switch s.Phase {
		case models.PhaseQuestions:
			out.Choices = s.ChoicesFor(role, s.Round)
		case models.PhaseAward:
			out.Breakdown = scoring.Breakdown(s, s.Round, role)
		}
	}
	out.Session = s.Redacted(out.Role)
	return out
}
