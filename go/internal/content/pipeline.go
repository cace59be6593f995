package content

import (
	"context"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// RoundSpec describes the items requested for one side of a round.
type RoundSpec struct {
	SessionID  string            `json:"sessionId"`
	Round      int               `json:"round"`
	Side       models.Role       `json:"side"`
	Difficulty models.Difficulty `json:"difficulty"`
	Exclude    []string          `json:"exclude,omitempty"` // questions already used
}

// PuzzleSpec describes the requested maths puzzle.
type PuzzleSpec struct {
	SessionID string `json:"sessionId"`
}

// Verification splits items into those that passed review and those that did not.
type Verification struct {
	Approved []models.Item `json:"approved"`
	Rejected []models.Item `json:"rejected"`
}

// Pipeline produces content. Implementations may be slow and may fail.
type Pipeline interface {
	GenerateRoundItems(ctx context.Context, spec RoundSpec, count int) ([]models.Item, error)
	VerifyItems(ctx context.Context, items []models.Item) (Verification, error)
	GeneratePuzzle(ctx context.Context, spec PuzzleSpec) (*models.Puzzle, error)
}
