// Package events carries view changes out of the controllers: a publisher
// writes one message per stage a session enters, and a tracker folds the
// stream into live statistics.
package events

import (
	"fmt"
	"time"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// ViewChanged is published when a participant's screen moves to a new stage.
type ViewChanged struct {
	Code      string       `json:"code"`
	Phase     models.Phase `json:"phase"`
	Round     int          `json:"round,omitempty"`
	Path      string       `json:"path"`
	Role      models.Role  `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
}

// MsgID identifies a stage of a session. Both participants publish the same
// stage, so the id is what lets the stream drop the second copy.
func (v ViewChanged) MsgID() string {
	return fmt.Sprintf("%s:%s:%d", v.Code, v.Phase, v.Round)
}

// Subject returns the subject the event is published on.
func (v ViewChanged) Subject(prefix string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, v.Code, v.Phase)
}
