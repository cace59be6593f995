package controller

import (
	"fmt"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// ActionKind names a local participant input.
type ActionKind string

const (
	ActionStart          ActionKind = "start"
	ActionChooseAnswer   ActionKind = "choose_answer"
	ActionSetVerdict     ActionKind = "set_verdict"
	ActionSubmitVerdicts ActionKind = "submit_verdicts"
	ActionSubmitMaths    ActionKind = "submit_maths"
)

// Action is an input from the local participant.
type Action struct {
	Kind    ActionKind     `json:"type"`
	Index   int            `json:"index,omitempty"`
	Answer  string         `json:"answer,omitempty"`
	Verdict models.Verdict `json:"verdict,omitempty"`
	Numbers []int          `json:"numbers,omitempty"`
}

func Start() Action { return Action{Kind: ActionStart} }

func ChooseAnswer(index int, answer string) Action {
	return Action{Kind: ActionChooseAnswer, Index: index, Answer: answer}
}

func SetVerdict(index int, v models.Verdict) Action {
	return Action{Kind: ActionSetVerdict, Index: index, Verdict: v}
}

func SubmitVerdicts() Action { return Action{Kind: ActionSubmitVerdicts} }

func SubmitMaths(numbers ...int) Action {
	return Action{Kind: ActionSubmitMaths, Numbers: numbers}
}

func checkSlot(i int) error {
	if i < 0 || i >= models.ItemsPerRound {
		return fmt.Errorf("%w: slot %d out of range", ErrInvalidAction, i)
	}
	return nil
}
