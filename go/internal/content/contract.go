// Package content checks generated material against the minimal contract
// the session needs, and fills sessions with material from a Pipeline.
package content

import (
	"fmt"
	"strings"

	"github.com/mcdev12/quizduel/go/internal/models"
)

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &IncompleteError{Missing: p}
}

// ValidateItem checks the fields the game relies on.
func ValidateItem(it models.Item) error {
	var p problems
	checkItem(&p, "item", it)
	return p.err()
}

func checkItem(p *problems, label string, it models.Item) {
	if strings.TrimSpace(it.Question) == "" {
		p.addf("%s question is empty", label)
	}
	if strings.TrimSpace(it.CorrectAnswer) == "" {
		p.addf("%s correct answer is empty", label)
	}
}

func checkItems(p *problems, side string, items []models.Item) {
	if len(items) != models.ItemsPerRound {
		p.addf("%s has %d items, want %d", side, len(items), models.ItemsPerRound)
	}
	for i, it := range items {
		checkItem(p, fmt.Sprintf("%s[%d]", side, i), it)
	}
}

// ValidateRound reports whether a round is playable: both sides have exactly
// three items with a question and a correct answer.
func ValidateRound(rd *models.Round) error {
	var p problems
	if rd == nil {
		p.addf("round is missing")
		return p.err()
	}
	checkItems(&p, "hostItems", rd.HostItems)
	checkItems(&p, "guestItems", rd.GuestItems)
	return p.err()
}

// ValidatePuzzle reports whether the maths puzzle has two prompts and two answers.
func ValidatePuzzle(pz *models.Puzzle) error {
	var p problems
	if pz == nil {
		p.addf("maths puzzle is missing")
		return p.err()
	}
	if len(pz.Questions) != models.MathsQuestions {
		p.addf("maths has %d questions, want %d", len(pz.Questions), models.MathsQuestions)
	}
	for i, q := range pz.Questions {
		if strings.TrimSpace(q) == "" {
			p.addf("maths question %d is empty", i)
		}
	}
	if len(pz.Answers) != models.MathsQuestions {
		p.addf("maths has %d answers, want %d", len(pz.Answers), models.MathsQuestions)
	}
	return p.err()
}

// RoundReady validates round r of the session.
func RoundReady(s *models.Session, r int) error {
	if err := ValidateRound(s.Content.Rounds[r]); err != nil {
		return fmt.Errorf("round %d: %w", r, err)
	}
	return nil
}

// ReadyToStart reports whether seeding may finish: round 1 and the puzzle
// are both valid.
func ReadyToStart(s *models.Session) error {
	if err := RoundReady(s, 1); err != nil {
		return err
	}
	return ValidatePuzzle(s.Content.Maths)
}
