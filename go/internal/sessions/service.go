package sessions

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/roles"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// SessionsApp is what the service needs from the application layer.
type SessionsApp interface {
	CreateSession(ctx context.Context) (*models.Session, error)
	ClaimRole(ctx context.Context, code, participantID string, role models.Role) (roles.ClaimResult, string, error)
	GetSession(ctx context.Context, code, participantID string) (*Snapshot, error)
}

// Service implements the session API.
type Service struct {
	app SessionsApp
}

func NewService(app SessionsApp) *Service {
	return &Service{app: app}
}

func (s *Service) CreateSession(ctx context.Context, _ *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	sess, err := s.app.CreateSession(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&CreateSessionResponse{Code: sess.ID, Session: sess}), nil
}

func (s *Service) ClaimRole(ctx context.Context, req *connect.Request[ClaimRoleRequest]) (*connect.Response[ClaimRoleResponse], error) {
	if req.Msg.Code == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("code is required"))
	}
	res, pid, err := s.app.ClaimRole(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Role)
	if err != nil {
		return nil, claimError(err)
	}
	return connect.NewResponse(&ClaimRoleResponse{ParticipantID: pid, Role: req.Msg.Role, Result: res}), nil
}

func (s *Service) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	snap, err := s.app.GetSession(ctx, req.Msg.Code, req.Msg.ParticipantID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(snap), nil
}

func claimError(err error) *connect.Error {
	switch roles.CodeOf(err) {
	case roles.CodeMissing:
		return connect.NewError(connect.CodeNotFound, err)
	case roles.CodeOccupied:
		return connect.NewError(connect.CodeAlreadyExists, err)
	}
	switch {
	case errors.Is(err, roles.ErrInvalidClaim):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, roles.ErrAlreadySeated):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// NewHandler returns the path prefix and handler serving the API.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(ClaimRoleProcedure, connect.NewUnaryHandler(ClaimRoleProcedure, svc.ClaimRole, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	return "/" + ServiceName + "/", mux
}
