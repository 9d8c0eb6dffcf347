package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu  sync.Mutex
	got []Transition
}

func (l *transitionLog) record(_ *Game, tr Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, tr)
}

func startedGame(t *testing.T, reg *Registry, id string) *Game {
	t.Helper()
	g, _ := reg.GetOrCreate(id, 4)
	for _, name := range []string{"alice", "bob"} {
		_, err := g.Join(JoinInput{Identity: name, Name: name})
		require.NoError(t, err)
	}
	require.NoError(t, g.Start(SettingsInput{}))
	return g
}

func TestSchedulerAutoRollsDisconnectedTurn(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(clock)
	log := &transitionLog{}
	sched := NewScheduler(reg, SchedulerOptions{Logger: discardLogger(), Clock: clock.Now, OnTransition: log.record})

	g := startedGame(t, reg, "G1")
	for _, slot := range []int{0, 1} {
		_, err := g.MarkDoneTrading(slot)
		require.NoError(t, err)
	}
	require.Equal(t, PhaseDice, g.Phase())

	_, err := g.Disconnect("alice")
	require.NoError(t, err)

	applied := sched.Tick(context.Background())
	require.Equal(t, 1, applied)
	require.Len(t, log.got, 1)
	tr := log.got[0]
	assert.Equal(t, TransitionAutoRoll, tr.Kind)
	assert.Equal(t, ReasonDisconnected, tr.Reason)
	require.NotNil(t, tr.Roll)
	assert.True(t, tr.Roll.Auto)
	assert.Equal(t, 0, tr.Roll.Slot)

	s := g.State()
	assert.Equal(t, 1, s.CurrentTurn)
	assert.True(t, hasHistory(s, "alice (disconnected) - auto-rolling..."))

	assert.Equal(t, 0, sched.Tick(context.Background()), "connected player's turn waits for the timer")
}

func TestSchedulerEndsExpiredTrading(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(clock)
	sched := NewScheduler(reg, SchedulerOptions{Logger: discardLogger(), Clock: clock.Now})

	g := startedGame(t, reg, "G1")
	waiting, _ := reg.GetOrCreate("lobby", 4)

	clock.Advance(DefaultTradingDuration)
	require.Equal(t, 1, sched.Tick(context.Background()))
	assert.Equal(t, PhaseDice, g.Phase())
	assert.Equal(t, PhaseWaiting, waiting.Phase())
}

type brokenAdvance struct{}

func (brokenAdvance) Die() int { panic("boom") }

func TestSchedulerIsolatesFailingGame(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(clock)
	sched := NewScheduler(reg, SchedulerOptions{Logger: discardLogger(), Clock: clock.Now})

	bad := startedGame(t, reg, "A-bad")
	good := startedGame(t, reg, "B-good")
	for _, g := range []*Game{bad, good} {
		for _, slot := range []int{0, 1} {
			_, err := g.MarkDoneTrading(slot)
			require.NoError(t, err)
		}
	}
	bad.dice = brokenAdvance{}
	clock.Advance(DefaultDiceDuration)

	assert.Equal(t, 1, sched.Tick(context.Background()))
	assert.Equal(t, 1, good.State().CurrentTurn)
	assert.Equal(t, 0, bad.State().CurrentTurn)
}

func TestSchedulerReapHandsOffGames(t *testing.T) {
	clock := newManualClock()
	reg := newTestRegistry(clock)
	var reaped []*Game
	sched := NewScheduler(reg, SchedulerOptions{
		Logger: discardLogger(),
		Clock:  clock.Now,
		OnReap: func(_ context.Context, games []*Game) { reaped = append(reaped, games...) },
	})

	g := startedGame(t, reg, "G1")
	_, _ = g.Disconnect("alice")
	_, _ = g.Disconnect("bob")
	clock.Advance(2 * time.Hour)

	assert.Equal(t, 1, sched.Reap(context.Background()))
	require.Len(t, reaped, 1)
	assert.Equal(t, "G1", reaped[0].ID())
	assert.Zero(t, reg.Len())
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(newManualClock())
	sched := NewScheduler(reg, SchedulerOptions{Logger: discardLogger(), TickEvery: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
