// Package roles assigns the host and guest seats exactly once.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// ClaimResult is the outcome of a successful claim.
type ClaimResult string

const (
	// ClaimOK means the seat was empty and now belongs to the participant.
	ClaimOK ClaimResult = "ok"
	// ClaimAlreadySet means the participant already held the seat.
	ClaimAlreadySet ClaimResult = "already-set"
)

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Claim atomically assigns role to participantID. Seats are never released.
func (s *Service) Claim(ctx context.Context, sessionID, participantID string, role models.Role) (ClaimResult, error) {
	claimErr := func(code Code, err error) error {
		return &ClaimError{Code: code, SessionID: sessionID, Role: role, Err: err}
	}
	if !role.Valid() {
		return "", claimErr(CodeException, fmt.Errorf("%w: role %q", ErrInvalidClaim, role))
	}
	if participantID == "" {
		return "", claimErr(CodeException, fmt.Errorf("%w: participant id is required", ErrInvalidClaim))
	}

	var result ClaimResult
	_, err := s.store.Transact(ctx, sessionID, func(sess *models.Session) error {
		holder := sess.Identities.Get(role)
		switch {
		case holder == participantID:
			result = ClaimAlreadySet
			return store.ErrNoop
		case holder != "":
			return ErrSlotOccupied
		case sess.Identities.Get(role.Opponent()) == participantID:
			return ErrAlreadySeated
		}
		sess.Identities.Set(role, participantID)
		result = ClaimOK
		return nil
	})

	switch {
	case err == nil, errors.Is(err, store.ErrNoop):
		log.Info().
			Str("session_id", sessionID).
			Str("participant_id", participantID).
			Str("role", string(role)).
			Str("result", string(result)).
			Msg("role claimed")
		return result, nil
	case errors.Is(err, store.ErrSessionNotFound):
		return "", claimErr(CodeMissing, ErrSessionMissing)
	case errors.Is(err, ErrSlotOccupied):
		return "", claimErr(CodeOccupied, ErrSlotOccupied)
	default:
		log.Error().Err(err).Str("session_id", sessionID).Str("role", string(role)).Msg("claim failed")
		return "", claimErr(CodeException, err)
	}
}

// RoleOf resolves the seat a participant holds in sess.
func RoleOf(sess *models.Session, participantID string) (models.Role, bool) {
	if sess == nil {
		return "", false
	}
	return sess.Identities.RoleOf(participantID)
}
