package game

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseStock(t *testing.T) {
	valid := map[string]Stock{"Gold": Gold, "gold": Gold, " OIL ": Oil, "industrials": Industrials}
	for in, want := range valid {
		got, err := ParseStock(in)
		if err != nil {
			t.Fatalf("expected stock %q to be valid: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseStock(%q) got=%s want=%s", in, got, want)
		}
	}

	invalid := []string{"", "Copper", "Gold2"}
	for _, s := range invalid {
		if _, err := ParseStock(s); !errors.Is(err, ErrInvalidStock) {
			t.Fatalf("expected stock %q to fail with ErrInvalidStock, got %v", s, err)
		}
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 0, want: "$0.00"},
		{cents: 5, want: "$0.05"},
		{cents: 100, want: "$1.00"},
		{cents: 500_000, want: "$5,000.00"},
		{cents: 123_456_789, want: "$1,234,567.89"},
		{cents: -250, want: "-$2.50"},
	}
	for _, tc := range tests {
		if got := FormatCents(tc.cents); got != tc.want {
			t.Fatalf("cents=%d got=%s want=%s", tc.cents, got, tc.want)
		}
	}
}

func TestClampPlayerCount(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultPlayerCount},
		{in: -3, want: DefaultPlayerCount},
		{in: 1, want: MinPlayerCount},
		{in: 5, want: 5},
		{in: 40, want: MaxPlayerCount},
	}
	for _, tc := range tests {
		if got := ClampPlayerCount(tc.in); got != tc.want {
			t.Fatalf("in=%d got=%d want=%d", tc.in, got, tc.want)
		}
	}
}

func TestPhaseStatus(t *testing.T) {
	tests := map[Phase]Status{
		PhaseWaiting:  StatusWaiting,
		PhaseTrading:  StatusActive,
		PhaseDice:     StatusActive,
		PhaseGameOver: StatusFinished,
	}
	for phase, want := range tests {
		if got := phase.Status(); got != want {
			t.Fatalf("phase=%s got=%s want=%s", phase, got, want)
		}
	}
}

func TestSettingsInputResolve(t *testing.T) {
	intp := func(v int) *int { return &v }
	cashp := func(v int64) *int64 { return &v }

	got, err := SettingsInput{}.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("empty input got=%+v want defaults", got)
	}

	got, err = SettingsInput{
		MaxRounds:      intp(3),
		TradingMinutes: intp(5),
		DiceSeconds:    intp(0),
		StartingCash:   cashp(1_000),
	}.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Settings{MaxRounds: 3, TradingDuration: 5 * time.Minute, DiceDuration: 0, StartingCash: 100_000}
	if got != want {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	if !got.InstantDice() {
		t.Fatalf("zero dice duration should select instant dice")
	}

	bad := []SettingsInput{
		{MaxRounds: intp(0)},
		{TradingMinutes: intp(0)},
		{DiceSeconds: intp(-1)},
		{StartingCash: cashp(0)},
	}
	for i, in := range bad {
		if _, err := in.Resolve(); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("case %d: expected ErrInvalidSettings, got %v", i, err)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: ErrInvalidStock, want: KindValidation},
		{err: fmt.Errorf("buy: %w", ErrInsufficientCash), want: KindResource},
		{err: ErrNotYourTurn, want: KindState},
		{err: ErrGameNotFound, want: KindNotFound},
		{err: internalError(errors.New("boom")), want: KindInternal},
		{err: errors.New("plain"), want: KindInternal},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("err=%v got=%s want=%s", tc.err, got, tc.want)
		}
	}
	if !errors.Is(internalError(errors.New("boom")), ErrInternal) {
		t.Fatalf("wrapped internal error should match ErrInternal")
	}
}
