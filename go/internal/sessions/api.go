package sessions

import (
	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/roles"
	"github.com/mcdev12/quizduel/go/internal/scoring"
)

const ServiceName = "quizduel.session.v1.SessionService"

const (
	CreateSessionProcedure = "/" + ServiceName + "/CreateSession"
	ClaimRoleProcedure     = "/" + ServiceName + "/ClaimRole"
	GetSessionProcedure    = "/" + ServiceName + "/GetSession"
)

type CreateSessionRequest struct{}

type CreateSessionResponse struct {
	Code    string          `json:"code"`
	Session *models.Session `json:"session"`
}

type ClaimRoleRequest struct {
	Code          string      `json:"code"`
	ParticipantID string      `json:"participantId,omitempty"`
	Role          models.Role `json:"role"`
}

type ClaimRoleResponse struct {
	ParticipantID string            `json:"participantId"`
	Role          models.Role       `json:"role"`
	Result        roles.ClaimResult `json:"result"`
}

type GetSessionRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId,omitempty"`
}

// Snapshot is a session as one participant sees it, redacted for Role.
type Snapshot struct {
	Session     *models.Session      `json:"session"`
	Choices     [][]string           `json:"choices,omitempty"`
	Role        models.Role          `json:"role,omitempty"`
	Scores      scoring.Scores       `json:"scores"`
	RemainingMs int64                `json:"remainingMs"`
	View        controller.ViewToken `json:"view"`
	Path        string               `json:"path"`
	Breakdown   []scoring.Slot       `json:"breakdown,omitempty"`
}

type GetSessionResponse = Snapshot
