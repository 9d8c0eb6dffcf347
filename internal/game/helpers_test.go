package game

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type table struct {
	game  *Game
	clock *manualClock
	dice  *SequenceSource
}

func newTable(t *testing.T, playerCount int) *table {
	t.Helper()
	clock := newManualClock()
	dice := NewSequenceSource()
	g := NewGame("G1", playerCount, Options{Logger: discardLogger(), Clock: clock.Now, Dice: dice})
	return &table{game: g, clock: clock, dice: dice}
}

// seat joins alice (slot 0) and bob (slot 1).
func (tb *table) seat(t *testing.T) {
	t.Helper()
	for _, name := range []string{"alice", "bob"} {
		if _, err := tb.game.Join(JoinInput{Identity: name, Name: name}); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
}

func (tb *table) start(t *testing.T, in SettingsInput) {
	t.Helper()
	tb.seat(t)
	if err := tb.game.Start(in); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// toDice ends trading by having every connected slot vote done.
func (tb *table) toDice(t *testing.T) {
	t.Helper()
	for _, slot := range tb.game.roster.connectedSlots() {
		if _, err := tb.game.MarkDoneTrading(slot); err != nil {
			t.Fatalf("done trading slot %d: %v", slot, err)
		}
	}
	if p := tb.game.Phase(); p != PhaseDice {
		t.Fatalf("expected dice phase, got %s", p)
	}
}

// checkInvariants asserts the money, share and turn invariants.
func checkInvariants(t *testing.T, s GameState) {
	t.Helper()
	for _, p := range s.Players {
		if !p.IsActive {
			continue
		}
		if p.CashCents < 0 {
			t.Fatalf("slot %d cash negative: %d", p.Slot, p.CashCents)
		}
		worth := p.CashCents
		for _, q := range s.Stocks {
			shares := p.Portfolio[q.Stock]
			if shares < 0 {
				t.Fatalf("slot %d holds %d %s", p.Slot, shares, q.Stock)
			}
			worth += shares * q.PriceCents
		}
		if worth != p.NetWorth {
			t.Fatalf("slot %d net worth %d != cash+holdings %d", p.Slot, p.NetWorth, worth)
		}
		if p.DoneTrading && (!p.IsConnected || s.Phase != PhaseTrading) {
			t.Fatalf("slot %d done outside trading or while disconnected", p.Slot)
		}
	}
	for _, q := range s.Stocks {
		if q.PriceCents <= 0 || q.PriceCents >= SplitPriceCents {
			t.Fatalf("%s price out of range: %d", q.Stock, q.PriceCents)
		}
	}
	if s.Phase == PhaseDice {
		p, ok := s.Player(s.CurrentTurn)
		if !ok || !p.IsActive {
			t.Fatalf("current turn %d is not an active slot", s.CurrentTurn)
		}
	}
}
