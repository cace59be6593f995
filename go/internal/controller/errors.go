package controller

import "errors"

var (
	ErrNotHost          = errors.New("only the host can do that")
	ErrGuestMissing     = errors.New("waiting for a guest to join")
	ErrWrongPhase       = errors.New("action not allowed in this phase")
	ErrAlreadyCommitted = errors.New("already submitted")
	ErrInvalidAction    = errors.New("invalid action")
	ErrIncomplete       = errors.New("not every slot has a value")
	ErrNotReady         = errors.New("session not loaded yet")
	ErrStopped          = errors.New("controller stopped")
)
