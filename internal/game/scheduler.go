package game

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

type SchedulerOptions struct {
	Logger    *slog.Logger
	Clock     Clock
	TickEvery time.Duration
	ReapEvery time.Duration
	// OnTransition runs after the game lock is released.
	OnTransition func(g *Game, tr Transition)
	// OnReap receives games removed from the registry.
	OnReap func(ctx context.Context, games []*Game)
}

// Scheduler advances games that received no player input: expired trading
// timers, disconnected or timed-out dice turns and instant dice.
type Scheduler struct {
	registry     *Registry
	log          *slog.Logger
	now          Clock
	tickEvery    time.Duration
	reapEvery    time.Duration
	onTransition func(g *Game, tr Transition)
	onReap       func(ctx context.Context, games []*Game)
}

func NewScheduler(registry *Registry, opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	tickEvery := opts.TickEvery
	if tickEvery <= 0 {
		tickEvery = time.Second
	}
	reapEvery := opts.ReapEvery
	if reapEvery <= 0 {
		reapEvery = time.Minute
	}
	return &Scheduler{
		registry:     registry,
		log:          logger,
		now:          clock,
		tickEvery:    tickEvery,
		reapEvery:    reapEvery,
		onTransition: opts.OnTransition,
		onReap:       opts.OnReap,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	reaper := time.NewTicker(s.reapEvery)
	defer reaper.Stop()

	s.log.Info("scheduler started", "tick_every", s.tickEvery.String(), "reap_every", s.reapEvery.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutdown")
			return
		case <-ticker.C:
			s.Tick(ctx)
		case <-reaper.C:
			s.Reap(ctx)
		}
	}
}

// Tick applies at most one pending transition to every active game and
// returns how many games changed.
func (s *Scheduler) Tick(ctx context.Context) int {
	applied := 0
	for _, g := range s.registry.Games() {
		if ctx.Err() != nil {
			break
		}
		if g.Phase().Status() != StatusActive {
			continue
		}
		if s.advance(g) {
			applied++
		}
	}
	return applied
}

func (s *Scheduler) advance(g *Game) (applied bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panicked", "game_id", g.ID(), "panic", r, "stack", string(debug.Stack()))
			applied = false
		}
	}()

	tr, err := g.Advance()
	if err != nil {
		s.log.Error("advance game failed", "game_id", g.ID(), "err", err)
		return false
	}
	if !tr.Applied() {
		return false
	}
	s.log.Info("scheduler transition", "game_id", g.ID(), "kind", tr.Kind, "reason", tr.Reason, "round", tr.Round)
	if s.onTransition != nil {
		s.onTransition(g, tr)
	}
	return true
}

func (s *Scheduler) Reap(ctx context.Context) int {
	reaped := s.registry.Reap(s.now())
	if len(reaped) > 0 && s.onReap != nil {
		s.onReap(ctx, reaped)
	}
	return len(reaped)
}
