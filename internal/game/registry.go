package game

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

type RegistryOptions struct {
	Logger             *slog.Logger
	Clock              Clock
	Dice               func() RandomSource
	Retention          time.Duration
	DefaultPlayerCount int
	HistoryLimit       int
}

// Registry owns every live game. Its map lock is independent of the
// per-game locks and is never held while a game lock is taken.
type Registry struct {
	log            *slog.Logger
	now            Clock
	dice           func() RandomSource
	retention      time.Duration
	defaultPlayers int
	historyLimit   int

	mu    sync.RWMutex
	games map[string]*Game
}

func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	dice := opts.Dice
	if dice == nil {
		dice = func() RandomSource { return NewRandomSource(0) }
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	return &Registry{
		log:            logger,
		now:            clock,
		dice:           dice,
		retention:      retention,
		defaultPlayers: ClampPlayerCount(opts.DefaultPlayerCount),
		historyLimit:   opts.HistoryLimit,
		games:          make(map[string]*Game),
	}
}

// GetOrCreate returns the game for id, creating it on first reference.
// playerCount only applies to a new game; <= 0 selects the default.
func (r *Registry) GetOrCreate(id string, playerCount int) (*Game, bool) {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	g, ok := r.games[id]
	r.mu.RUnlock()
	if ok {
		return g, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.games[id]; ok {
		return g, false
	}
	if playerCount <= 0 {
		playerCount = r.defaultPlayers
	}
	g = NewGame(id, playerCount, Options{
		Logger:       r.log,
		Clock:        r.now,
		Dice:         r.dice(),
		HistoryLimit: r.historyLimit,
	})
	r.games[id] = g
	r.log.Info("game created", "game_id", id, "player_count", g.PlayerCount())
	return g, true
}

func (r *Registry) Get(id string) (*Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Games returns the registered games ordered by id.
func (r *Registry) Games() []*Game {
	r.mu.RLock()
	out := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Registry) Summaries() []GameSummary {
	games := r.Games()
	out := make([]GameSummary, 0, len(games))
	for _, g := range games {
		out = append(out, g.Summary())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// Reap removes games that finished at least the retention window before now
// and returns them.
func (r *Registry) Reap(now time.Time) []*Game {
	var expired []*Game
	for _, g := range r.Games() {
		finishedAt, over := g.FinishedAt()
		if over && now.Sub(finishedAt) >= r.retention {
			expired = append(expired, g)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reaped := expired[:0]
	for _, g := range expired {
		if r.games[g.ID()] != g {
			continue
		}
		delete(r.games, g.ID())
		reaped = append(reaped, g)
	}
	if len(reaped) > 0 {
		r.log.Info("reaped finished games", "count", len(reaped), "remaining", len(r.games))
	}
	return reaped
}
