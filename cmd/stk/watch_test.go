package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	cl "stockticker/internal/cli"
	"stockticker/internal/game"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleState() game.GameState {
	return game.GameState{
		GameID:      "den",
		Phase:       game.PhaseDice,
		CurrentTurn: 2,
		Round:       3,
		MaxRounds:   15,
		HostSlot:    0,
		PlayerCount: 4,
		Stocks: []game.StockQuote{
			{Stock: game.Gold, PriceCents: 135},
			{Stock: game.Oil, PriceCents: 60},
		},
		Players: []game.PlayerView{
			{Slot: 0, Name: "ann", IsActive: true, IsConnected: true, CashCents: 100, NetWorth: 200},
			{Slot: 1, Name: "Empty Slot 2"},
			{Slot: 2, Name: "cy", IsActive: true, IsConnected: true, Portfolio: map[game.Stock]int64{game.Gold: 500}},
			{Slot: 3, Name: "di", IsActive: true},
		},
		History: []game.HistoryEntry{{Message: "cy's turn to roll"}},
	}
}

func TestPlayerRowsSkipEmptySeats(t *testing.T) {
	s := sampleState()
	rows := playerRows(s)
	if len(rows) != 3 {
		t.Fatalf("rows got=%d want=3", len(rows))
	}
	if rows[0][1] != "ann *" {
		t.Fatalf("host marker missing: %q", rows[0][1])
	}
	if rows[1][4] != "rolling" || rows[2][4] != "offline" {
		t.Fatalf("statuses got=%q,%q", rows[1][4], rows[2][4])
	}
	if got := rowIndex(s, 3); got != 2 {
		t.Fatalf("row index for slot 3 got=%d want=2", got)
	}
}

func TestWatchModelRendersState(t *testing.T) {
	m := newWatchModel(context.Background(), cl.NewClient("http://127.0.0.1:0"), "den", "", 2)
	next, cmd := m.Update(stateMsg{state: sampleState()})
	if cmd == nil {
		t.Fatalf("expected a poll command after a state update")
	}
	view := next.(watchModel).View()
	for _, want := range []string{"STOCK TICKER", "den", "Gold", "cy", "Gold 500", "cy's turn to roll"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestWatchModelSpectatorCannotAct(t *testing.T) {
	m := newWatchModel(context.Background(), cl.NewClient("http://127.0.0.1:0"), "den", "", -1)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatalf("expected an action command")
	}
	msg, ok := cmd().(actionMsg)
	if !ok || msg.err == nil {
		t.Fatalf("spectator roll should fail, got %+v", msg)
	}

	next, _ := m.Update(actionMsg{err: &cl.APIError{Status: 409, Message: "not your turn"}})
	if got := next.(watchModel).flash; got != "not your turn" {
		t.Fatalf("flash got=%q", got)
	}
	next, _ = m.Update(actionMsg{err: errors.New("boom")})
	if got := next.(watchModel).flash; got != "boom" {
		t.Fatalf("flash got=%q", got)
	}
}

func TestWatchModelQuits(t *testing.T) {
	m := newWatchModel(context.Background(), cl.NewClient("http://127.0.0.1:0"), "den", "", -1)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestInviteLink(t *testing.T) {
	if got := inviteLink("http://host:8080", "my game"); got != "http://host:8080/v1/games/my%20game" {
		t.Fatalf("got %q", got)
	}
}
