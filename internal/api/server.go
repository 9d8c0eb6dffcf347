package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stockticker/internal/archive"
	"stockticker/internal/config"
	"stockticker/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var errInvalidGameID = &game.Error{Kind: game.KindValidation, Code: "invalid_game_id", Message: "game id must be 1-64 letters, digits, '-' or '_'"}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	registry *game.Registry
	hub      *Hub
	results  archive.Store
	dedup    *game.Dedup
	mux      *chi.Mux
}

// New wires the routes. results may be nil when no archive is configured.
func New(cfg config.APIConfig, logger *slog.Logger, registry *game.Registry, hub *Hub, results archive.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger, cfg.AllowedOrigins)
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		hub:      hub,
		results:  results,
		dedup:    game.NewDedup(cfg.DedupWindow, nil),
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "games": s.registry.Len()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/games", s.handleGamesList)
			r.Get("/results", s.handleResults)
		})

		r.Route("/games/{id}", func(r chi.Router) {
			// Sockets outlive the request timeout.
			r.Get("/ws", s.handleSubscribe)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Get("/", s.handleGameState)
				r.Get("/rankings", s.handleRankings)

				r.Group(func(r chi.Router) {
					r.Use(s.idempotencyMiddleware)
					r.Post("/join", s.handleJoin)
					r.Post("/leave", s.handleLeave)
					r.Post("/start", s.handleStart)
					r.Post("/buy", s.handleBuy)
					r.Post("/sell", s.handleSell)
					r.Post("/done", s.handleDone)
					r.Post("/roll", s.handleRoll)
				})
			})
		})
	})
}

// idempotencyMiddleware claims the Idempotency-Key for the route; a replay
// inside the dedup window is rejected.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.dedup.Claim(idempotencyKey(r), r.URL.Path) {
			writeDomainError(w, game.ErrDuplicateAction)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PublishTransition is the scheduler hook. It runs after the game lock is
// released.
func (s *Server) PublishTransition(g *game.Game, tr game.Transition) {
	s.publish(g, tr)
}

// ForgetGames closes the sockets of reaped games.
func (s *Server) ForgetGames(_ context.Context, games []*game.Game) {
	for _, g := range games {
		s.hub.CloseGame(g.ID())
	}
}

// publish pushes the messages for one completed operation: the roll if
// any, the phase change if any, the fresh snapshot and, once finished, the
// final result.
func (s *Server) publish(g *game.Game, tr game.Transition) {
	state := g.State()
	if tr.Roll != nil {
		s.hub.Broadcast(Message{Type: MessageDiceRolled, GameID: g.ID(), Payload: tr.Roll})
	}
	if tr.To != "" && tr.To != tr.From {
		s.hub.Broadcast(Message{Type: MessagePhaseTransition, GameID: g.ID(), Payload: tr})
	}
	s.hub.Broadcast(Message{Type: MessageGameState, GameID: g.ID(), Payload: state})
	if state.GameOver {
		s.hub.Broadcast(Message{Type: MessageGameOver, GameID: g.ID(), Payload: map[string]any{
			"winner":         state.Winner,
			"final_rankings": state.FinalRankings,
		}})
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*game.Game, bool) {
	id := chi.URLParam(r, "id")
	if !gameIDPattern.MatchString(id) {
		writeDomainError(w, errInvalidGameID)
		return nil, false
	}
	g, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return g, true
}

func (s *Server) handleGamesList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": s.registry.Summaries()})
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g.State())
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	state := g.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"game_over":      state.GameOver,
		"winner":         state.Winner,
		"final_rankings": state.FinalRankings,
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !gameIDPattern.MatchString(id) {
		writeDomainError(w, errInvalidGameID)
		return
	}
	var in struct {
		Identity    string `json:"identity"`
		Name        string `json:"name"`
		PlayerCount int    `json:"player_count"`
		Slot        *int   `json:"slot"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, created := s.registry.GetOrCreate(id, in.PlayerCount)
	res, err := g.Join(game.JoinInput{Identity: in.Identity, Name: in.Name, Slot: in.Slot})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(g, game.Transition{})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"game_id":      g.ID(),
		"player_count": g.PlayerCount(),
		"player":       res,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in struct {
		Identity string `json:"identity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := g.Disconnect(in.Identity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(g, res.Transition)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in game.SettingsInput
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := g.Start(in); err != nil {
		writeDomainError(w, err)
		return
	}
	state := g.State()
	s.publish(g, game.Transition{From: game.PhaseWaiting, To: state.Phase, Round: state.Round})
	writeJSON(w, http.StatusOK, state)
}

type tradeRequest struct {
	Identity string `json:"identity,omitempty"`
	Slot     int    `json:"slot"`
	Stock    string `json:"stock"`
	Amount   int64  `json:"amount"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, (*game.Game).Buy)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, (*game.Game).Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, trade func(*game.Game, int, game.Stock, int64) (game.TradeResult, error)) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in tradeRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkActor(g, in.Identity, in.Slot); err != nil {
		writeDomainError(w, err)
		return
	}
	stock, err := game.ParseStock(in.Stock)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := trade(g, in.Slot, stock, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(g, game.Transition{})
	writeJSON(w, http.StatusOK, res)
}

type slotRequest struct {
	Identity string `json:"identity,omitempty"`
	Slot     int    `json:"slot"`
}

func (s *Server) handleDone(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in slotRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkActor(g, in.Identity, in.Slot); err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := g.MarkDoneTrading(in.Slot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(g, res.Transition)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var in slotRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checkActor(g, in.Identity, in.Slot); err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := g.Roll(in.Slot)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	tr := game.Transition{Roll: &res, Round: res.Advance.Round}
	if res.Advance.PhaseChanged {
		tr.From = game.PhaseDice
		tr.To = res.Advance.Phase
	}
	s.publish(g, tr)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusNotFound, "results archive is not configured")
		return
	}
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	out, err := s.results.ListResults(r.Context(), limit)
	if err != nil {
		s.log.Error("list results failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// handleSubscribe streams game messages. Sockets opened with an identity
// own that player's session: closing the last one disconnects the player.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookup(w, r)
	if !ok {
		return
	}
	identity := strings.TrimSpace(r.URL.Query().Get("identity"))
	if identity != "" {
		if _, ok := g.SlotOf(identity); !ok {
			writeDomainError(w, game.ErrNotInGame)
			return
		}
	}
	initial := &Message{Type: MessageGameState, GameID: g.ID(), Payload: g.State()}
	err := s.hub.Serve(w, r, g.ID(), identity, initial, func() {
		if identity == "" {
			return
		}
		res, err := g.Disconnect(identity)
		if err != nil {
			if !errors.Is(err, game.ErrNotInGame) && !errors.Is(err, game.ErrGameOver) {
				s.log.Warn("disconnect on socket close failed", "game_id", g.ID(), "err", err)
			}
			return
		}
		s.publish(g, res.Transition)
	})
	if err != nil {
		s.log.Warn("ws upgrade failed", "game_id", g.ID(), "err", err)
	}
}

// checkActor rejects a request whose identity does not own slot. Requests
// without an identity are trusted.
func checkActor(g *game.Game, identity string, slot int) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil
	}
	owned, ok := g.SlotOf(identity)
	if !ok {
		return game.ErrNotInGame
	}
	if owned != slot {
		return game.ErrInvalidPlayer
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch game.KindOf(err) {
	case game.KindValidation, game.KindResource:
		writeError(w, http.StatusBadRequest, err.Error())
	case game.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case game.KindState:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
