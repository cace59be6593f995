package controller

import (
	"context"
	"fmt"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/scoring"
)

// ViewToken identifies the screen a participant should be on.
type ViewToken struct {
	Code  string       `json:"code"`
	Phase models.Phase `json:"phase"`
	Round int          `json:"round,omitempty"`
}

// TokenFor derives the view token of a snapshot.
func TokenFor(s *models.Session) ViewToken {
	t := ViewToken{Code: s.ID, Phase: s.Phase}
	if s.Phase.Rounded() {
		t.Round = s.Round
	}
	return t
}

// Path renders the token as a router path.
func (v ViewToken) Path() string {
	switch {
	case v.Phase == models.PhaseLobby:
		return "/lobby/" + v.Code
	case v.Phase == models.PhaseFinal:
		return "/results/" + v.Code
	case v.Phase.Rounded():
		return fmt.Sprintf("/game/%s/%s/%d", v.Code, v.Phase, v.Round)
	}
	return fmt.Sprintf("/game/%s/%s", v.Code, v.Phase)
}

// Frame is what a participant's screen renders. Session is redacted for
// Role; Choices holds the options for Role's items while questions are open.
type Frame struct {
	Session     *models.Session `json:"session"`
	Choices     [][]string      `json:"choices,omitempty"`
	Role        models.Role     `json:"role"`
	View        ViewToken       `json:"view"`
	Scores      scoring.Scores  `json:"scores"`
	RemainingMs int64           `json:"remainingMs"`
	Status      string          `json:"status,omitempty"`
	Local       Inputs          `json:"local"`
}

// ViewSink receives a token each time the observed stage changes.
type ViewSink interface {
	View(ctx context.Context, v ViewToken)
}

// FrameSink receives render state on every snapshot and timed tick.
type FrameSink interface {
	Frame(ctx context.Context, f Frame)
}

// ViewFunc adapts a function to ViewSink.
type ViewFunc func(ctx context.Context, v ViewToken)

func (f ViewFunc) View(ctx context.Context, v ViewToken) { f(ctx, v) }

// FrameFunc adapts a function to FrameSink.
type FrameFunc func(ctx context.Context, fr Frame)

func (f FrameFunc) Frame(ctx context.Context, fr Frame) { f(ctx, fr) }
