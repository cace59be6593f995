// Package anchor implements the timer protocol for timed phases: the host
// writes one start instant per phase and every client derives the remaining
// time from it on a local tick.
package anchor

import (
	"time"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// Windows holds the phase durations.
type Windows struct {
	Countdown time.Duration `env:"COUNTDOWN_WINDOW" envDefault:"5s"`
	// Lead delays the countdown start so both clients see it from the top.
	Lead    time.Duration `env:"COUNTDOWN_LEAD" envDefault:"3s"`
	Marking time.Duration `env:"MARKING_WINDOW" envDefault:"30s"`
	Award   time.Duration `env:"AWARD_WINDOW" envDefault:"8s"`
	// StaleFactor multiplies window+lead to get the age past which an anchor
	// is rewritten. Zero disables staleness.
	StaleFactor int `env:"ANCHOR_STALE_FACTOR" envDefault:"3"`
}

func DefaultWindows() Windows {
	return Windows{
		Countdown:   5 * time.Second,
		Lead:        3 * time.Second,
		Marking:     30 * time.Second,
		Award:       8 * time.Second,
		StaleFactor: 3,
	}
}

// Window returns the duration of a timed phase, zero for untimed ones.
func (w Windows) Window(p models.Phase) time.Duration {
	switch p {
	case models.PhaseCountdown:
		return w.Countdown
	case models.PhaseMarking:
		return w.Marking
	case models.PhaseAward:
		return w.Award
	}
	return 0
}

// LeadFor returns the start delay for p. Only countdown has one.
func (w Windows) LeadFor(p models.Phase) time.Duration {
	if p == models.PhaseCountdown {
		return w.Lead
	}
	return 0
}

// New returns an anchor starting lead after now, tagged with round.
func New(now time.Time, lead time.Duration, round int) models.Anchor {
	at := now.Add(lead).UnixMilli()
	return models.Anchor{StartAt: &at, Round: round}
}

// Remaining is max(0, startAt+window-now), capped at window while the
// anchor lies in the future. An unset anchor has the full window left.
func Remaining(a models.Anchor, window time.Duration, now time.Time) time.Duration {
	if !a.Set() {
		return window
	}
	left := a.Start().Add(window).Sub(now)
	switch {
	case left < 0:
		return 0
	case left > window:
		return window
	}
	return left
}

// Elapsed reports whether a set anchor has run out.
func Elapsed(a models.Anchor, window time.Duration, now time.Time) bool {
	return a.Set() && Remaining(a, window, now) == 0
}

// Remaining returns the time left in the session's current timed phase. An
// anchor left over from another round counts as unset.
func (w Windows) Remaining(s *models.Session, now time.Time) time.Duration {
	a := s.Timers.For(s.Phase)
	if a == nil {
		return 0
	}
	if a.Round != s.Round {
		return w.Window(s.Phase)
	}
	return Remaining(*a, w.Window(s.Phase), now)
}

// Elapsed reports whether the current timed phase's anchor has run out for
// the current round.
func (w Windows) Elapsed(s *models.Session, now time.Time) bool {
	a := s.Timers.For(s.Phase)
	if a == nil || a.Round != s.Round {
		return false
	}
	return Elapsed(*a, w.Window(s.Phase), now)
}

// NeedsRefresh reports whether the host should write a new anchor for the
// session's current timed phase: the anchor is unset, belongs to another
// round, or is older than StaleFactor windows.
func (w Windows) NeedsRefresh(s *models.Session, now time.Time) bool {
	a := s.Timers.For(s.Phase)
	if a == nil {
		return false
	}
	if !a.Set() || a.Round != s.Round {
		return true
	}
	if w.StaleFactor <= 0 {
		return false
	}
	span := w.Window(s.Phase) + w.LeadFor(s.Phase)
	return now.Sub(a.Start()) > time.Duration(w.StaleFactor)*span
}

// Due reports whether the phase deadline has passed on an anchor the host
// will keep. An anchor waiting to be rewritten is never due.
func (w Windows) Due(s *models.Session, now time.Time) bool {
	return w.Elapsed(s, now) && !w.NeedsRefresh(s, now)
}

// Fresh returns a new anchor for the session's current timed phase.
func (w Windows) Fresh(s *models.Session, now time.Time) models.Anchor {
	return New(now, w.LeadFor(s.Phase), s.Round)
}
