package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockticker/internal/archive"
	"stockticker/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type JoinResponse struct {
	GameID      string          `json:"game_id"`
	PlayerCount int             `json:"player_count"`
	Player      game.JoinResult `json:"player"`
}

type RankingsResponse struct {
	GameOver      bool           `json:"game_over"`
	Winner        *game.Winner   `json:"winner"`
	FinalRankings []game.Ranking `json:"final_rankings"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func gamePath(gameID, action string) string {
	p := "/v1/games/" + url.PathEscape(gameID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) Join(ctx context.Context, gameID, identity, name string, playerCount int, slot *int) (JoinResponse, error) {
	in := map[string]any{
		"identity":     identity,
		"name":         name,
		"player_count": playerCount,
	}
	if slot != nil {
		in["slot"] = *slot
	}
	var out JoinResponse
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "join"), in, &out, "")
	return out, err
}

func (c *Client) Leave(ctx context.Context, gameID, identity string) (game.DisconnectResult, error) {
	var out game.DisconnectResult
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "leave"), map[string]any{"identity": identity}, &out, "")
	return out, err
}

func (c *Client) Start(ctx context.Context, gameID string, settings game.SettingsInput) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "start"), settings, &out, "")
	return out, err
}

// Trade places a buy or sell. side is "buy" or "sell".
func (c *Client) Trade(ctx context.Context, gameID, side, identity string, slot int, stock game.Stock, amount int64, idem string) (game.TradeResult, error) {
	var out game.TradeResult
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, side), map[string]any{
		"identity": identity,
		"slot":     slot,
		"stock":    string(stock),
		"amount":   amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Done(ctx context.Context, gameID, identity string, slot int) (game.DoneResult, error) {
	var out game.DoneResult
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "done"), map[string]any{
		"identity": identity,
		"slot":     slot,
	}, &out, "")
	return out, err
}

func (c *Client) Roll(ctx context.Context, gameID, identity string, slot int, idem string) (game.RollResult, error) {
	var out game.RollResult
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID, "roll"), map[string]any{
		"identity": identity,
		"slot":     slot,
	}, &out, idem)
	return out, err
}

func (c *Client) State(ctx context.Context, gameID string) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, ""), nil, &out, "")
	return out, err
}

func (c *Client) Rankings(ctx context.Context, gameID string) (RankingsResponse, error) {
	var out RankingsResponse
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID, "rankings"), nil, &out, "")
	return out, err
}

func (c *Client) Games(ctx context.Context) ([]game.GameSummary, error) {
	var out struct {
		Games []game.GameSummary `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games", nil, &out, "")
	return out.Games, err
}

func (c *Client) Results(ctx context.Context, limit int) ([]archive.Result, error) {
	var out struct {
		Results []archive.Result `json:"results"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/results?limit="+strconv.Itoa(limit), nil, &out, "")
	return out.Results, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
