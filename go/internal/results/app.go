// Package results archives finished sessions.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/scoring"
	"github.com/mcdev12/quizduel/go/internal/sqlutil"
)

// Result is the archived outcome of one session.
type Result struct {
	Code       string         `json:"code"`
	HostID     string         `json:"hostId"`
	GuestID    string         `json:"guestId"`
	Scores     scoring.Scores `json:"scores"`
	Winner     models.Role    `json:"winner,omitempty"`
	Rounds     []RoundResult  `json:"rounds"`
	Maths      *Maths         `json:"maths,omitempty"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// RoundResult holds the scored verdicts of a round. Host is the host's
// judgement of the guest's answers, Guest the reverse.
type RoundResult struct {
	Round int            `json:"round"`
	Host  []scoring.Slot `json:"host"`
	Guest []scoring.Slot `json:"guest"`
}

type Maths struct {
	Correct []int                 `json:"correct"`
	Answers map[models.Role][]int `json:"answers"`
}

// Summarize builds the archive record of s.
func Summarize(s *models.Session, finishedAt time.Time) *Result {
	res := &Result{
		Code:       s.ID,
		HostID:     s.Identities.Host,
		GuestID:    s.Identities.Guest,
		Scores:     scoring.ComputeScores(s),
		FinishedAt: finishedAt.UTC(),
	}
	switch {
	case res.Scores.Host > res.Scores.Guest:
		res.Winner = models.RoleHost
	case res.Scores.Guest > res.Scores.Host:
		res.Winner = models.RoleGuest
	}
	for r := 1; r <= models.MaxRounds; r++ {
		if s.Content.Rounds[r] == nil {
			continue
		}
		res.Rounds = append(res.Rounds, RoundResult{
			Round: r,
			Host:  scoring.Breakdown(s, r, models.RoleHost),
			Guest: scoring.Breakdown(s, r, models.RoleGuest),
		})
	}
	if s.Content.Maths != nil || len(s.MathsAnswers) > 0 {
		res.Maths = &Maths{Answers: s.MathsAnswers}
		if s.Content.Maths != nil {
			res.Maths.Correct = s.Content.Maths.Answers
		}
	}
	return res
}

// App writes and reads the archive inside database/sql transactions.
type App struct {
	db    *sql.DB
	clock func() time.Time
}

func NewApp(db *sql.DB) *App {
	return &App{db: db, clock: time.Now}
}

// Migrate creates the archive table.
func (a *App) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate results: %w", err)
	}
	return nil
}

func repoTx(tx *sql.Tx) *Repository {
	return NewRepository(New(tx))
}

// Record archives a finished session. Recording the same code twice is a
// no-op.
func (a *App) Record(ctx context.Context, s *models.Session) error {
	if s.Phase != models.PhaseFinal {
		return fmt.Errorf("session %s is not finished (phase %s)", s.ID, s.Phase)
	}
	res := Summarize(s, a.clock())
	return sqlutil.Run(ctx, a.db, repoTx, func(r *Repository) error {
		inserted, err := r.Insert(ctx, res)
		if err != nil {
			return err
		}
		log.Info().
			Str("session_id", s.ID).
			Int("host_score", res.Scores.Host).
			Int("guest_score", res.Scores.Guest).
			Bool("inserted", inserted).
			Msg("result archived")
		return nil
	})
}

func (a *App) Get(ctx context.Context, code string) (*Result, error) {
	return NewRepository(New(a.db)).Get(ctx, code)
}

func (a *App) Recent(ctx context.Context, limit int) ([]*Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return NewRepository(New(a.db)).Recent(ctx, limit)
}

// Discard is an archiver that only logs.
type Discard struct{}

func (Discard) Record(_ context.Context, s *models.Session) error {
	log.Debug().Str("session_id", s.ID).Msg("results archive disabled")
	return nil
}
