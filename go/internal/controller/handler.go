package controller

import (
	"context"
	"time"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// PhaseHandler reacts to one phase. The set is closed: handlers() builds
// every implementation and the controller accepts no others.
type PhaseHandler interface {
	Phase() models.Phase
	OnEnter(ctx context.Context, t *Turn) error
	OnSnapshot(ctx context.Context, t *Turn) error
	OnTick(ctx context.Context, t *Turn) error
	OnExit(ctx context.Context, t *Turn) error
	HandleAction(ctx context.Context, t *Turn, a Action) error
}

// Inputs are the local participant's uncommitted choices. Answers and
// verdicts are buffered here and written in one piece.
type Inputs struct {
	Round             int              `json:"round"`
	Answers           []string         `json:"answers"`
	AnswersSubmitted  bool             `json:"answersSubmitted"`
	Verdicts          []models.Verdict `json:"verdicts"`
	VerdictsSubmitted bool             `json:"verdictsSubmitted"`
	Maths             []int            `json:"maths,omitempty"`
}

func newInputs(round int) Inputs {
	return Inputs{
		Round:    round,
		Answers:  make([]string, models.ItemsPerRound),
		Verdicts: make([]models.Verdict, models.ItemsPerRound),
	}
}

// sync drops buffers from a previous round.
func (in *Inputs) sync(s *models.Session) {
	if in.Answers == nil || s.Round != in.Round {
		maths := in.Maths
		*in = newInputs(s.Round)
		in.Maths = maths
	}
}

func (in *Inputs) answersComplete() bool {
	for _, a := range in.Answers {
		if a == "" {
			return false
		}
	}
	return true
}

func (in *Inputs) verdictsComplete() bool {
	for _, v := range in.Verdicts {
		if v == "" {
			return false
		}
	}
	return true
}

func (in *Inputs) copy() Inputs {
	out := *in
	out.Answers = append([]string(nil), in.Answers...)
	out.Verdicts = append([]models.Verdict(nil), in.Verdicts...)
	out.Maths = append([]int(nil), in.Maths...)
	return out
}

// fillUnknown sets every unset verdict to unknown.
func (in *Inputs) fillUnknown() {
	for i, v := range in.Verdicts {
		if v == "" {
			in.Verdicts[i] = models.VerdictUnknown
		}
	}
}

// hostState is controller-owned bookkeeping for host-only side effects.
type hostState struct {
	seeding      bool
	seedFailedAt time.Time
	archived     bool
}

// Turn is what a handler sees for one event.
type Turn struct {
	Client  *SessionClient
	Session *models.Session
	Now     time.Time
	Local   *Inputs

	status string
	host   *hostState
	seed   func(ctx context.Context)
}

// Stage is the stage of the snapshot being handled.
func (t *Turn) Stage() models.Stage {
	return t.Session.Stage()
}

// SetStatus publishes a human-readable note for the screen.
func (t *Turn) SetStatus(s string) {
	t.status = s
}

// reseed restarts content generation on the host when nothing is running
// and the last attempt failed long enough ago.
func (t *Turn) reseed(ctx context.Context) {
	if t.Client.Seeder == nil || t.host.seeding || t.Now.Sub(t.host.seedFailedAt) < seedRetryDelay {
		return
	}
	t.seed(ctx)
}

func (t *Turn) role() models.Role {
	return t.Client.Role
}
