package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

const (
	MessageGameState       = "game_state"
	MessageDiceRolled      = "dice_rolled"
	MessagePhaseTransition = "phase_transition"
	MessageGameOver        = "game_over"
)

// Message is the envelope pushed to websocket subscribers.
type Message struct {
	Type    string `json:"type"`
	GameID  string `json:"game_id"`
	Payload any    `json:"payload"`
}

// Hub fans game messages out to websocket subscribers, grouped by game id.
// Broadcast never blocks: a subscriber whose buffer is full is dropped.
type Hub struct {
	mu       sync.RWMutex
	log      *slog.Logger
	upgrader websocket.Upgrader
	games    map[string]map[*subscriber]struct{}
}

type subscriber struct {
	hub      *Hub
	gameID   string
	identity string
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once
}

func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		log:   logger,
		games: make(map[string]map[*subscriber]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Serve upgrades the request and pumps messages until the socket closes.
// onClose runs when the last socket of identity in the game is gone, so a
// player with several open tabs stays connected until all of them close.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, gameID, identity string, initial *Message, onClose func()) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	sub := &subscriber{
		hub:      h,
		gameID:   gameID,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			sub.send <- data
		}
	}
	h.register(sub)
	h.log.Info("ws subscribed", "game_id", gameID, "identity", identity)

	go sub.writePump()
	sub.readPump()

	last := h.unregister(sub)
	h.log.Info("ws closed", "game_id", gameID, "identity", identity, "last", last)
	if last && onClose != nil {
		onClose()
	}
	return nil
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.games[sub.gameID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.games[sub.gameID] = subs
	}
	subs[sub] = struct{}{}
}

// unregister reports whether sub was the last socket of its identity.
func (h *Hub) unregister(sub *subscriber) bool {
	h.mu.Lock()
	last := true
	if subs, ok := h.games[sub.gameID]; ok {
		delete(subs, sub)
		for other := range subs {
			if other.identity == sub.identity {
				last = false
				break
			}
		}
		if len(subs) == 0 {
			delete(h.games, sub.gameID)
		}
	}
	h.mu.Unlock()
	sub.close()
	return last
}

// Broadcast sends msg to every subscriber of msg.GameID.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws marshal failed", "game_id", msg.GameID, "type", msg.Type, "err", err)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for sub := range h.games[msg.GameID] {
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.log.Warn("ws subscriber too slow, dropping", "game_id", sub.gameID, "identity", sub.identity)
		_ = sub.conn.Close()
	}
}

// CloseGame closes every socket of a reaped game.
func (h *Hub) CloseGame(gameID string) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.games[gameID]))
	for sub := range h.games[gameID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		_ = sub.conn.Close()
	}
}

func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

// readPump only watches for close and pong frames; clients act over HTTP.
func (s *subscriber) readPump() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
