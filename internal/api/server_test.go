package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockticker/internal/archive"
	"stockticker/internal/config"
	"stockticker/internal/game"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, results archive.Store) (*Server, *game.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := game.NewRegistry(game.RegistryOptions{
		Logger: logger,
		Dice:   func() game.RandomSource { return game.NewSequenceSource(1, 1, 1) },
	})
	cfg := config.APIConfig{DedupWindow: time.Minute, DefaultPlayerCount: 4}
	return New(cfg, logger, reg, NewHub(logger, nil), results), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func joinPair(t *testing.T, h http.Handler, id string) {
	t.Helper()
	code, _ := do(t, h, http.MethodPost, "/v1/games/"+id+"/join", map[string]any{"identity": "id-alice", "name": "alice", "player_count": 2})
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, h, http.MethodPost, "/v1/games/"+id+"/join", map[string]any{"identity": "id-bob", "name": "bob"})
	require.Equal(t, http.StatusOK, code)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	code, body := do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestJoinCreatesGameAndState(t *testing.T) {
	s, reg := newTestServer(t, nil)
	h := s.Handler()
	joinPair(t, h, "room1")

	require.Equal(t, 1, reg.Len())
	code, state := do(t, h, http.MethodGet, "/v1/games/room1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "waiting", state["current_phase"])
	assert.EqualValues(t, 2, state["player_count"])
	assert.EqualValues(t, 0, state["host_player_id"])

	code, list := do(t, h, http.MethodGet, "/v1/games", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list["games"], 1)
}

func TestGameFlowOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	joinPair(t, h, "flow")

	code, state := do(t, h, http.MethodPost, "/v1/games/flow/start", map[string]any{"max_rounds": 3})
	require.Equal(t, http.StatusOK, code, state)
	assert.Equal(t, "trading", state["current_phase"])

	code, trade := do(t, h, http.MethodPost, "/v1/games/flow/buy", map[string]any{"identity": "id-alice", "slot": 0, "stock": "gold", "amount": 10})
	require.Equal(t, http.StatusOK, code, trade)
	assert.EqualValues(t, 10, trade["holding"])

	code, _ = do(t, h, http.MethodPost, "/v1/games/flow/done", map[string]any{"slot": 0})
	require.Equal(t, http.StatusOK, code)
	code, done := do(t, h, http.MethodPost, "/v1/games/flow/done", map[string]any{"slot": 1})
	require.Equal(t, http.StatusOK, code)
	transition := done["transition"].(map[string]any)
	assert.Equal(t, "trading_ended", transition["kind"])
	assert.Equal(t, "all_done", transition["reason"])

	code, body := do(t, h, http.MethodPost, "/v1/games/flow/roll", map[string]any{"slot": 1})
	assert.Equal(t, http.StatusConflict, code, body)

	code, roll := do(t, h, http.MethodPost, "/v1/games/flow/roll", map[string]any{"slot": 0})
	require.Equal(t, http.StatusOK, code, roll)
	assert.Equal(t, "Gold", roll["stock"])
	assert.EqualValues(t, 105, roll["price_cents"])
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	joinPair(t, h, "errs")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown game", method: http.MethodGet, path: "/v1/games/missing", want: http.StatusNotFound},
		{name: "bad game id", method: http.MethodGet, path: "/v1/games/bad%20id", want: http.StatusBadRequest},
		{name: "unknown stock", method: http.MethodPost, path: "/v1/games/errs/buy", body: map[string]any{"slot": 0, "stock": "tin", "amount": 1}, want: http.StatusBadRequest},
		{name: "trade before start", method: http.MethodPost, path: "/v1/games/errs/buy", body: map[string]any{"slot": 0, "stock": "gold", "amount": 1}, want: http.StatusConflict},
		{name: "foreign slot", method: http.MethodPost, path: "/v1/games/errs/done", body: map[string]any{"identity": "id-bob", "slot": 0}, want: http.StatusBadRequest},
		{name: "stranger", method: http.MethodPost, path: "/v1/games/errs/leave", body: map[string]any{"identity": "nobody"}, want: http.StatusConflict},
		{name: "unknown field", method: http.MethodPost, path: "/v1/games/errs/start", body: map[string]any{"rounds": 3}, want: http.StatusBadRequest},
		{name: "bad settings", method: http.MethodPost, path: "/v1/games/errs/start", body: map[string]any{"max_rounds": 0}, want: http.StatusBadRequest},
		{name: "results without archive", method: http.MethodGet, path: "/v1/results", want: http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, h, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, code, body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestIdempotencyKeyReplayRejected(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()
	joinPair(t, h, "idem")
	code, _ := do(t, h, http.MethodPost, "/v1/games/idem/start", nil)
	require.Equal(t, http.StatusOK, code)

	body := map[string]any{"slot": 0, "stock": "oil", "amount": 5}
	code, _ = do(t, h, http.MethodPost, "/v1/games/idem/buy", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, h, http.MethodPost, "/v1/games/idem/buy", body, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusConflict, code)

	_, state := do(t, h, http.MethodGet, "/v1/games/idem", nil)
	players := state["players"].([]any)
	portfolio := players[0].(map[string]any)["portfolio"].(map[string]any)
	assert.EqualValues(t, 5, portfolio["Oil"])
}

func TestResultsEndpoint(t *testing.T) {
	store, err := archive.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.SaveResult(context.Background(), archive.Result{
		GameID:     "done1",
		FinishedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		LastRound:  15,
		WinnerSlot: 0,
		WinnerName: "alice",
	}))

	s, _ := newTestServer(t, store)
	code, body := do(t, s.Handler(), http.MethodGet, "/v1/results?limit=5", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["results"], 1)

	code, _ = do(t, s.Handler(), http.MethodGet, "/v1/results?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketPushAndDisconnectOnClose(t *testing.T) {
	s, reg := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	joinPair(t, s.Handler(), "live")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/games/live/ws?identity=id-bob"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	first := readMessage(t, conn)
	assert.Equal(t, MessageGameState, first.Type)
	assert.Equal(t, "live", first.GameID)
	require.Eventually(t, func() bool { return s.hub.Subscribers("live") == 1 }, 2*time.Second, 10*time.Millisecond)

	code, _ := do(t, s.Handler(), http.MethodPost, "/v1/games/live/start", nil)
	require.Equal(t, http.StatusOK, code)

	var types []string
	for len(types) < 2 {
		types = append(types, readMessage(t, conn).Type)
	}
	assert.Equal(t, []string{MessagePhaseTransition, MessageGameState}, types)

	require.NoError(t, conn.Close())
	g, err := reg.Get("live")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p, ok := g.State().Player(1)
		return ok && !p.IsConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketSecondTabKeepsPlayerConnected(t *testing.T) {
	s, reg := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	joinPair(t, s.Handler(), "tabs")
	g, err := reg.Get("tabs")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/games/tabs/ws?identity=id-bob"
	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	readMessage(t, first)
	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer second.Close()
	readMessage(t, second)
	require.Eventually(t, func() bool { return s.hub.Subscribers("tabs") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.hub.Subscribers("tabs") == 1 }, 2*time.Second, 10*time.Millisecond)
	p, ok := g.State().Player(1)
	require.True(t, ok)
	assert.True(t, p.IsConnected, "bob still has an open tab")

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		p, ok := g.State().Player(1)
		return ok && !p.IsConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsStranger(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	joinPair(t, s.Handler(), "closed")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/games/closed/ws?identity=nobody"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPublishTransitionFromScheduler(t *testing.T) {
	s, reg := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	joinPair(t, s.Handler(), "sched")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/games/sched/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readMessage(t, conn)
	require.Eventually(t, func() bool { return s.hub.Subscribers("sched") == 1 }, 2*time.Second, 10*time.Millisecond)

	g, err := reg.Get("sched")
	require.NoError(t, err)
	s.PublishTransition(g, game.Transition{Kind: game.TransitionTradingEnded, From: game.PhaseTrading, To: game.PhaseDice, Round: 1})

	assert.Equal(t, MessagePhaseTransition, readMessage(t, conn).Type)
	assert.Equal(t, MessageGameState, readMessage(t, conn).Type)

	s.ForgetGames(context.Background(), []*game.Game{g})
	require.Eventually(t, func() bool { return s.hub.Subscribers("sched") == 0 }, 2*time.Second, 10*time.Millisecond)
}
