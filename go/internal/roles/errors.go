package roles

import (
	"errors"
	"fmt"

	"github.com/mcdev12/quizduel/go/internal/models"
)

var (
	ErrSessionMissing = errors.New("session missing")
	ErrSlotOccupied   = errors.New("slot occupied")
	// ErrAlreadySeated is returned when a participant asks for the second seat.
	ErrAlreadySeated = errors.New("participant already holds the other seat")
	// ErrInvalidClaim wraps validation failures of the claim arguments.
	ErrInvalidClaim = errors.New("invalid claim")
)

// Code classifies a failed claim.
type Code string

const (
	CodeMissing   Code = "missing"
	CodeOccupied  Code = "occupied"
	CodeException Code = "exception"
)

// ClaimError describes why a claim failed.
type ClaimError struct {
	Code      Code
	SessionID string
	Role      models.Role
	Err       error
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("claim %s in session %s: %s: %v", e.Role, e.SessionID, e.Code, e.Err)
}

func (e *ClaimError) Unwrap() error {
	return e.Err
}

// CodeOf returns the claim error code of err, or "" when err is not a claim error.
func CodeOf(err error) Code {
	var ce *ClaimError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
