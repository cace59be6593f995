package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Role identifies one of the two seats in a session.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Roles lists both seats in a stable order.
var Roles = []Role{RoleHost, RoleGuest}

// Valid reports whether r names a seat.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleGuest
}

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

// Phase is a state of the session machine.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseSeeding   Phase = "seeding"
	PhaseCountdown Phase = "countdown"
	PhaseQuestions Phase = "questions"
	PhaseMarking   Phase = "marking"
	PhaseAward     Phase = "award"
	PhaseMaths     Phase = "maths"
	PhaseFinal     Phase = "final"
)

// Phases lists every phase in play order.
var Phases = []Phase{
	PhaseLobby, PhaseSeeding, PhaseCountdown, PhaseQuestions,
	PhaseMarking, PhaseAward, PhaseMaths, PhaseFinal,
}

// Rounded reports whether the phase is scoped to a round.
func (p Phase) Rounded() bool {
	switch p {
	case PhaseCountdown, PhaseQuestions, PhaseMarking, PhaseAward:
		return true
	}
	return false
}

// Timed reports whether the phase is bounded by a timer anchor.
func (p Phase) Timed() bool {
	return p == PhaseCountdown || p == PhaseMarking || p == PhaseAward
}

const (
	// MaxRounds is the number of question rounds before the maths phase.
	MaxRounds = 5
	// ItemsPerRound is the number of questions each seat answers per round.
	ItemsPerRound = 3
	// MathsQuestions is the number of prompts in the maths puzzle.
	MathsQuestions = 2
)

// Verdict is one participant's judgement of an opponent answer.
type Verdict string

const (
	VerdictRight   Verdict = "right"
	VerdictWrong   Verdict = "wrong"
	VerdictUnknown Verdict = "unknown"
)

// Valid reports whether v is one of the three verdicts.
func (v Verdict) Valid() bool {
	return v == VerdictRight || v == VerdictWrong || v == VerdictUnknown
}

// Stage is the (phase, round) pair that transitions compare against.
type Stage struct {
	Phase Phase `json:"phase"`
	Round int   `json:"round"`
}

func (s Stage) String() string {
	if s.Phase.Rounded() {
		return fmt.Sprintf("%s(%d)", s.Phase, s.Round)
	}
	return string(s.Phase)
}

// Anchor is the authoritative start instant of a timed phase.
// StartAt is epoch milliseconds; Round tags which round wrote it.
type Anchor struct {
	StartAt *int64 `json:"startAt"`
	Round   int    `json:"round,omitempty"`
}

// Set reports whether the anchor has a start instant.
func (a Anchor) Set() bool {
	return a.StartAt != nil
}

// Start returns the start instant. The zero time is returned when unset.
func (a Anchor) Start() time.Time {
	if a.StartAt == nil {
		return time.Time{}
	}
	return time.UnixMilli(*a.StartAt)
}

// Timers holds one anchor per timed phase.
type Timers struct {
	Countdown Anchor `json:"countdown"`
	Marking   Anchor `json:"marking"`
	Award     Anchor `json:"award"`
}

// For returns the anchor slot for a timed phase, or nil.
func (t *Timers) For(p Phase) *Anchor {
	switch p {
	case PhaseCountdown:
		return &t.Countdown
	case PhaseMarking:
		return &t.Marking
	case PhaseAward:
		return &t.Award
	}
	return nil
}

// Identities records which participant holds each seat.
type Identities struct {
	Host  string `json:"host,omitempty"`
	Guest string `json:"guest,omitempty"`
}

// Get returns the participant id in the seat, empty when unclaimed.
func (i Identities) Get(r Role) string {
	if r == RoleHost {
		return i.Host
	}
	return i.Guest
}

// Set stores the participant id in the seat.
func (i *Identities) Set(r Role, participantID string) {
	if r == RoleHost {
		i.Host = participantID
		return
	}
	i.Guest = participantID
}

// RoleOf returns the seat held by participantID.
func (i Identities) RoleOf(participantID string) (Role, bool) {
	switch {
	case participantID == "":
		return "", false
	case i.Host == participantID:
		return RoleHost, true
	case i.Guest == participantID:
		return RoleGuest, true
	}
	return "", false
}

// Session is the shared document both participants subscribe to.
type Session struct {
	ID           string                     `json:"id"`
	Phase        Phase                      `json:"phase"`
	Round        int                        `json:"round"`
	Identities   Identities                 `json:"identities"`
	Timers       Timers                     `json:"timers"`
	Answers      map[Role]map[int][]string  `json:"answers,omitempty"`
	Verdicts     map[Role]map[int][]Verdict `json:"verdicts,omitempty"`
	Acks         map[Role]map[int]bool      `json:"acks,omitempty"`
	MathsAnswers map[Role][]int             `json:"mathsAnswers,omitempty"`
	MathsAcks    map[Role]bool              `json:"mathsAcks,omitempty"`
	Content      Content                    `json:"content"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`

	// Revision is maintained by the store and is not part of the document.
	Revision uint64 `json:"-"`
}

// NewSession returns a fresh lobby document.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Phase:     PhaseLobby,
		Content:   Content{Rounds: map[int]*Round{}},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Stage returns the current (phase, round).
func (s *Session) Stage() Stage {
	return Stage{Phase: s.Phase, Round: s.Round}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("models: clone session %s: %v", s.ID, err))
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("models: clone session %s: %v", s.ID, err))
	}
	out.Revision = s.Revision
	return &out
}

// AnswersFor returns the committed answers of role for round, or nil.
func (s *Session) AnswersFor(r Role, round int) []string {
	return s.Answers[r][round]
}

// HasAnswers reports whether role committed a full answer set for round.
func (s *Session) HasAnswers(r Role, round int) bool {
	return len(s.Answers[r][round]) == ItemsPerRound
}

// SetAnswers commits answers for role and round.
func (s *Session) SetAnswers(r Role, round int, answers []string) {
	if s.Answers == nil {
		s.Answers = map[Role]map[int][]string{}
	}
	if s.Answers[r] == nil {
		s.Answers[r] = map[int][]string{}
	}
	s.Answers[r][round] = append([]string(nil), answers...)
}

// VerdictsBy returns the verdicts role produced for round, or nil.
func (s *Session) VerdictsBy(r Role, round int) []Verdict {
	return s.Verdicts[r][round]
}

// HasVerdicts reports whether role committed verdicts for round.
func (s *Session) HasVerdicts(r Role, round int) bool {
	return len(s.Verdicts[r][round]) == ItemsPerRound
}

// SetVerdicts commits verdicts produced by role for round.
func (s *Session) SetVerdicts(r Role, round int, verdicts []Verdict) {
	if s.Verdicts == nil {
		s.Verdicts = map[Role]map[int][]Verdict{}
	}
	if s.Verdicts[r] == nil {
		s.Verdicts[r] = map[int][]Verdict{}
	}
	s.Verdicts[r][round] = append([]Verdict(nil), verdicts...)
}

// Acked reports whether role finished marking round.
func (s *Session) Acked(r Role, round int) bool {
	return s.Acks[r][round]
}

// SetAck marks role as finished marking round.
func (s *Session) SetAck(r Role, round int) {
	if s.Acks == nil {
		s.Acks = map[Role]map[int]bool{}
	}
	if s.Acks[r] == nil {
		s.Acks[r] = map[int]bool{}
	}
	s.Acks[r][round] = true
}

// HasMathsAnswers reports whether role committed the maths answers.
func (s *Session) HasMathsAnswers(r Role) bool {
	return len(s.MathsAnswers[r]) == MathsQuestions
}

// SetMaths commits role's maths answers and acknowledgement.
func (s *Session) SetMaths(r Role, answers []int) {
	if s.MathsAnswers == nil {
		s.MathsAnswers = map[Role][]int{}
	}
	if s.MathsAcks == nil {
		s.MathsAcks = map[Role]bool{}
	}
	s.MathsAnswers[r] = append([]int(nil), answers...)
	s.MathsAcks[r] = true
}

// ItemsFor returns the items role answers in round, or nil.
func (s *Session) ItemsFor(r Role, round int) []Item {
	rd := s.Content.Rounds[round]
	if rd == nil {
		return nil
	}
	if r == RoleHost {
		return rd.HostItems
	}
	return rd.GuestItems
}

// ChoicesFor returns the options shown for each of role's items in round,
// sorted so the correct answer's position gives nothing away.
func (s *Session) ChoicesFor(r Role, round int) [][]string {
	items := s.ItemsFor(r, round)
	if len(items) == 0 {
		return nil
	}
	out := make([][]string, len(items))
	for i, it := range items {
		choices := it.Choices(DifficultyForRound(round))
		slices.Sort(choices)
		out[i] = choices
	}
	return out
}

// Redacted returns a copy that is safe to send to viewer. Items lose their
// correct answer and distractors until their owner has committed answers,
// and the maths answers are removed until viewer has submitted. An empty
// viewer keeps the maths answers hidden until both sides have submitted.
func (s *Session) Redacted(viewer Role) *Session {
	out := s.Clone()
	if out == nil {
		return nil
	}
	for round, rd := range out.Content.Rounds {
		if rd == nil {
			continue
		}
		if !out.HasAnswers(RoleHost, round) {
			rd.HostItems = hideAnswers(rd.HostItems)
		}
		if !out.HasAnswers(RoleGuest, round) {
			rd.GuestItems = hideAnswers(rd.GuestItems)
		}
	}
	mathsDone := out.HasMathsAnswers(viewer)
	if viewer == "" {
		mathsDone = out.HasMathsAnswers(RoleHost) && out.HasMathsAnswers(RoleGuest)
	}
	if out.Content.Maths != nil && !mathsDone {
		out.Content.Maths.Answers = nil
	}
	return out
}

func hideAnswers(items []Item) []Item {
	for i := range items {
		items[i].CorrectAnswer = ""
		items[i].DistractorsByDifficulty = Distractors{}
	}
	return items
}
