package content

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContentIncomplete marks content that does not satisfy the contract.
	ErrContentIncomplete = errors.New("content incomplete")
	// ErrVerificationFailed is returned when too few generated items pass verification.
	ErrVerificationFailed = errors.New("content verification failed")
	// ErrUnknownSource is returned for an unregistered content source key.
	ErrUnknownSource = errors.New("unknown content source")
)

// IncompleteError lists what is missing from a round or puzzle.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%v: %s", ErrContentIncomplete, strings.Join(e.Missing, "; "))
}

func (e *IncompleteError) Unwrap() error {
	return ErrContentIncomplete
}
