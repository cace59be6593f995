// Package generation_client talks to the external content generation service.
package generation_client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mcdev12/quizduel/go/clients"
	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/models"
)

type Client struct {
	*clients.BaseClient
}

func NewClient(baseURL, apiKey string) *Client {
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return client
}

// Factory builds a client from a source block with url, api_key and an
// optional timeout in seconds.
func Factory(cfg map[string]string) (content.Pipeline, error) {
	url := cfg["url"]
	if url == "" {
		return nil, fmt.Errorf("pipeline source needs a url")
	}
	c := NewClient(url, cfg["api_key"])
	if raw := cfg["timeout_sec"]; raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout_sec %q: %w", raw, err)
		}
		c.SetTimeout(time.Duration(sec) * time.Second)
	}
	return c, nil
}

type generateRoundRequest struct {
	content.RoundSpec
	Count int `json:"count"`
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
}

func (c *Client) GenerateRoundItems(ctx context.Context, spec content.RoundSpec, count int) ([]models.Item, error) {
	var resp itemsResponse
	if err := c.PostJSON(ctx, EndpointGenerateRound, generateRoundRequest{RoundSpec: spec, Count: count}, &resp); err != nil {
		return nil, fmt.Errorf("generate round items: %w", err)
	}
	return resp.Items, nil
}

type verifyRequest struct {
	Items []models.Item `json:"items"`
}

func (c *Client) VerifyItems(ctx context.Context, items []models.Item) (content.Verification, error) {
	var resp content.Verification
	if err := c.PostJSON(ctx, EndpointVerifyItems, verifyRequest{Items: items}, &resp); err != nil {
		return content.Verification{}, fmt.Errorf("verify items: %w", err)
	}
	return resp, nil
}

type puzzleResponse struct {
	Puzzle *models.Puzzle `json:"puzzle"`
}

func (c *Client) GeneratePuzzle(ctx context.Context, spec content.PuzzleSpec) (*models.Puzzle, error) {
	var resp puzzleResponse
	if err := c.PostJSON(ctx, EndpointGeneratePuzzle, spec, &resp); err != nil {
		return nil, fmt.Errorf("generate puzzle: %w", err)
	}
	if resp.Puzzle == nil {
		return nil, fmt.Errorf("generate puzzle: empty response")
	}
	return resp.Puzzle, nil
}
