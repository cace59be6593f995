package sessions

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/quizduel/go/internal/models"
)

// Client calls the session API.
type Client struct {
	create *connect.Client[CreateSessionRequest, CreateSessionResponse]
	claim  *connect.Client[ClaimRoleRequest, ClaimRoleResponse]
	get    *connect.Client[GetSessionRequest, GetSessionResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		create: connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		claim:  connect.NewClient[ClaimRoleRequest, ClaimRoleResponse](httpClient, baseURL+ClaimRoleProcedure, opts...),
		get:    connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context) (*CreateSessionResponse, error) {
	res, err := c.create.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ClaimRole(ctx context.Context, code, participantID string, role models.Role) (*ClaimRoleResponse, error) {
	res, err := c.claim.CallUnary(ctx, connect.NewRequest(&ClaimRoleRequest{
		Code:          code,
		ParticipantID: participantID,
		Role:          role,
	}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetSession(ctx context.Context, code, participantID string) (*Snapshot, error) {
	res, err := c.get.CallUnary(ctx, connect.NewRequest(&GetSessionRequest{Code: code, ParticipantID: participantID}))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
