package models

// Difficulty grades the distractor sets attached to an item.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Distractors holds wrong options per difficulty.
type Distractors struct {
	Easy   []string `json:"easy,omitempty" yaml:"easy"`
	Medium []string `json:"medium,omitempty" yaml:"medium"`
	Hard   []string `json:"hard,omitempty" yaml:"hard"`
}

// Item is a single multiple-choice question.
type Item struct {
	Question                string      `json:"question" yaml:"question"`
	CorrectAnswer           string      `json:"correctAnswer" yaml:"correct_answer"`
	DistractorsByDifficulty Distractors `json:"distractorsByDifficulty" yaml:"distractors"`
}

// Choices returns the options shown for the item at difficulty d,
// correct answer first. Presentation order is up to the renderer.
func (it Item) Choices(d Difficulty) []string {
	var wrong []string
	switch d {
	case DifficultyEasy:
		wrong = it.DistractorsByDifficulty.Easy
	case DifficultyHard:
		wrong = it.DistractorsByDifficulty.Hard
	default:
		wrong = it.DistractorsByDifficulty.Medium
	}
	out := make([]string, 0, len(wrong)+1)
	out = append(out, it.CorrectAnswer)
	return append(out, wrong...)
}

// DifficultyForRound is the distractor set used for items in round.
func DifficultyForRound(round int) Difficulty {
	switch {
	case round <= 2:
		return DifficultyEasy
	case round <= 4:
		return DifficultyMedium
	}
	return DifficultyHard
}

// Round is the content of one question round.
type Round struct {
	HostItems  []Item `json:"hostItems" yaml:"host_items"`
	GuestItems []Item `json:"guestItems" yaml:"guest_items"`
	Narrative  string `json:"narrative,omitempty" yaml:"narrative"`
}

// Puzzle is the final maths challenge.
type Puzzle struct {
	Location  string   `json:"location" yaml:"location"`
	Beats     []string `json:"beats" yaml:"beats"`
	Questions []string `json:"questions" yaml:"questions"`
	Answers   []int    `json:"answers" yaml:"answers"`
}

// Content is the generated material for a whole session.
type Content struct {
	Rounds map[int]*Round `json:"rounds,omitempty"`
	Maths  *Puzzle        `json:"maths,omitempty"`
}

// SetRound stores the content of round r.
func (c *Content) SetRound(r int, rd *Round) {
	if c.Rounds == nil {
		c.Rounds = map[int]*Round{}
	}
	c.Rounds[r] = rd
}
