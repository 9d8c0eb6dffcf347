package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	CentsPerDollar = int64(100)

	ParPriceCents   = int64(100)
	SplitPriceCents = int64(200)

	DefaultStartingCashCents = int64(5_000) * CentsPerDollar
	DefaultMaxRounds         = 15
	DefaultTradingDuration   = 2 * time.Minute
	DefaultDiceDuration      = 15 * time.Second

	DefaultPlayerCount = 4
	MinPlayerCount     = 2
	MaxPlayerCount     = 8

	HistoryLimit = 1000
)

type Stock string

const (
	Gold        Stock = "Gold"
	Silver      Stock = "Silver"
	Oil         Stock = "Oil"
	Bonds       Stock = "Bonds"
	Industrials Stock = "Industrials"
	Grain       Stock = "Grain"
)

// Stocks is ordered by stock die face.
var Stocks = []Stock{Gold, Silver, Oil, Bonds, Industrials, Grain}

func ParseStock(name string) (Stock, error) {
	name = strings.TrimSpace(name)
	for _, s := range Stocks {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, ErrInvalidStock)
}

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseTrading  Phase = "trading"
	PhaseDice     Phase = "dice"
	PhaseGameOver Phase = "game_over"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

func (p Phase) Status() Status {
	switch p {
	case PhaseTrading, PhaseDice:
		return StatusActive
	case PhaseGameOver:
		return StatusFinished
	default:
		return StatusWaiting
	}
}

type Action string

const (
	ActionUp       Action = "up"
	ActionDown     Action = "down"
	ActionDividend Action = "div"
)

var (
	actionFaces = [6]Action{ActionUp, ActionUp, ActionDown, ActionDown, ActionDividend, ActionDividend}
	amountFaces = [6]int64{5, 5, 10, 10, 20, 20}
)

// Reason explains why a transition predicate fired.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonAllDone      Reason = "all_done"
	ReasonTimerExpired Reason = "timer_expired"
	ReasonDisconnected Reason = "disconnected"
	ReasonInstant      Reason = "instant"
	ReasonAllGone      Reason = "all_players_gone"
	ReasonMaxRounds    Reason = "max_rounds"
)

func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/CentsPerDollar), cents%CentsPerDollar)
}

func DollarsToCents(dollars int64) int64 {
	return dollars * CentsPerDollar
}

func ClampPlayerCount(n int) int {
	if n <= 0 {
		return DefaultPlayerCount
	}
	if n < MinPlayerCount {
		return MinPlayerCount
	}
	if n > MaxPlayerCount {
		return MaxPlayerCount
	}
	return n
}
