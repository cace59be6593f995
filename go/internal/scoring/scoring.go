// Package scoring derives scores from committed answers and verdicts. Scores
// are never stored; they are recomputed from the document on demand.
package scoring

import (
	"github.com/mcdev12/quizduel/go/internal/models"
)

// Scores holds each seat's total.
type Scores struct {
	Host  int `json:"host"`
	Guest int `json:"guest"`
}

// Of returns the total for role.
func (s Scores) Of(r models.Role) int {
	if r == models.RoleHost {
		return s.Host
	}
	return s.Guest
}

// Slot is one scored verdict.
type Slot struct {
	Question      string         `json:"question"`
	Answer        string         `json:"answer"`
	CorrectAnswer string         `json:"correctAnswer"`
	Truth         bool           `json:"truth"`
	Verdict       models.Verdict `json:"verdict"`
	Points        int            `json:"points"`
}

// Points scores one verdict against the truth of the judged answer.
func Points(v models.Verdict, truth bool) int {
	switch v {
	case models.VerdictRight:
		if truth {
			return 1
		}
		return -1
	case models.VerdictWrong:
		if truth {
			return -1
		}
		return 1
	}
	return 0
}

// Breakdown scores the verdicts marker gave on the opponent's answers in
// round. Slots without an answer, item or verdict score zero.
func Breakdown(s *models.Session, round int, marker models.Role) []Slot {
	opp := marker.Opponent()
	answers := s.AnswersFor(opp, round)
	items := s.ItemsFor(opp, round)
	verdicts := s.VerdictsBy(marker, round)

	slots := make([]Slot, models.ItemsPerRound)
	for i := range slots {
		slot := Slot{Verdict: models.VerdictUnknown}
		if i < len(verdicts) {
			slot.Verdict = verdicts[i]
		}
		if i < len(items) {
			slot.Question = items[i].Question
			slot.CorrectAnswer = items[i].CorrectAnswer
		}
		if i < len(answers) && i < len(items) {
			slot.Answer = answers[i]
			slot.Truth = answers[i] == items[i].CorrectAnswer
			slot.Points = Points(slot.Verdict, slot.Truth)
		}
		slots[i] = slot
	}
	return slots
}

// RoundScore is the sum of marker's points in round.
func RoundScore(s *models.Session, round int, marker models.Role) int {
	total := 0
	for _, slot := range Breakdown(s, round, marker) {
		total += slot.Points
	}
	return total
}

// ComputeScores sums every round for both seats.
func ComputeScores(s *models.Session) Scores {
	var out Scores
	if s == nil {
		return out
	}
	for r := 1; r <= models.MaxRounds; r++ {
		out.Host += RoundScore(s, r, models.RoleHost)
		out.Guest += RoundScore(s, r, models.RoleGuest)
	}
	return out
}
