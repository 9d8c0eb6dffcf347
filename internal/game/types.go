package game

import (
	"fmt"
	"time"
)

type Settings struct {
	MaxRounds       int
	TradingDuration time.Duration
	DiceDuration    time.Duration
	StartingCash    int64
}

func DefaultSettings() Settings {
	return Settings{
		MaxRounds:       DefaultMaxRounds,
		TradingDuration: DefaultTradingDuration,
		DiceDuration:    DefaultDiceDuration,
		StartingCash:    DefaultStartingCashCents,
	}
}

// InstantDice reports whether dice turns auto-roll without waiting.
func (s Settings) InstantDice() bool {
	return s.DiceDuration == 0
}

// SettingsInput is the start-of-game settings bag. Nil fields take defaults.
// Trading duration is given in minutes, dice duration in seconds and
// starting cash in whole dollars.
type SettingsInput struct {
	MaxRounds      *int   `json:"max_rounds,omitempty"`
	TradingMinutes *int   `json:"trading_duration,omitempty"`
	DiceSeconds    *int   `json:"dice_duration,omitempty"`
	StartingCash   *int64 `json:"starting_cash,omitempty"`
}

func (in SettingsInput) Resolve() (Settings, error) {
	s := DefaultSettings()
	if in.MaxRounds != nil {
		if *in.MaxRounds < 1 || *in.MaxRounds > 100 {
			return s, fmt.Errorf("max_rounds must be 1-100: %w", ErrInvalidSettings)
		}
		s.MaxRounds = *in.MaxRounds
	}
	if in.TradingMinutes != nil {
		if *in.TradingMinutes < 1 || *in.TradingMinutes > 60 {
			return s, fmt.Errorf("trading_duration must be 1-60 minutes: %w", ErrInvalidSettings)
		}
		s.TradingDuration = time.Duration(*in.TradingMinutes) * time.Minute
	}
	if in.DiceSeconds != nil {
		if *in.DiceSeconds < 0 || *in.DiceSeconds > 300 {
			return s, fmt.Errorf("dice_duration must be 0-300 seconds: %w", ErrInvalidSettings)
		}
		s.DiceDuration = time.Duration(*in.DiceSeconds) * time.Second
	}
	if in.StartingCash != nil {
		if *in.StartingCash < 1 || *in.StartingCash > 1_000_000 {
			return s, fmt.Errorf("starting_cash must be 1-1000000 dollars: %w", ErrInvalidSettings)
		}
		s.StartingCash = DollarsToCents(*in.StartingCash)
	}
	return s, nil
}

type JoinInput struct {
	Identity string
	Name     string
	Slot     *int
}

type JoinResult struct {
	Slot     int    `json:"slot"`
	Name     string `json:"name"`
	Rejoined bool   `json:"rejoined"`
	IsHost   bool   `json:"is_host"`
}

type DisconnectResult struct {
	Message    string     `json:"message"`
	Slot       int        `json:"slot"`
	NewHost    *int       `json:"new_host,omitempty"`
	GameOver   bool       `json:"game_over"`
	Transition Transition `json:"transition"`
}

type TradeResult struct {
	Slot       int    `json:"slot"`
	Stock      Stock  `json:"stock"`
	Shares     int64  `json:"shares"`
	PriceCents int64  `json:"price_cents"`
	TotalCents int64  `json:"total_cents"`
	CashCents  int64  `json:"cash_cents"`
	Holding    int64  `json:"holding"`
	Message    string `json:"message"`
}

type DoneResult struct {
	DoneCount  int        `json:"done_count"`
	Connected  int        `json:"connected_count"`
	Transition Transition `json:"transition"`
}

type TurnAdvance struct {
	NextTurn     int   `json:"next_turn"`
	PhaseChanged bool  `json:"phase_changed"`
	Phase        Phase `json:"phase"`
	Round        int   `json:"round"`
}

type RollResult struct {
	RollID     int64       `json:"roll_id"`
	Slot       int         `json:"slot"`
	Dice       [3]int      `json:"dice"`
	Stock      Stock       `json:"stock"`
	Action     Action      `json:"action"`
	Amount     int64       `json:"amount"`
	PriceCents int64       `json:"price_cents"`
	Split      bool        `json:"split"`
	Bankrupt   bool        `json:"bankrupt"`
	Message    string      `json:"message"`
	Auto       bool        `json:"auto"`
	Reason     Reason      `json:"reason,omitempty"`
	Advance    TurnAdvance `json:"advance"`
	Timestamp  time.Time   `json:"timestamp"`
}

type TransitionKind string

const (
	TransitionNone         TransitionKind = ""
	TransitionTradingEnded TransitionKind = "trading_ended"
	TransitionAutoRoll     TransitionKind = "auto_roll"
)

// Transition describes what a single check-and-apply step changed.
type Transition struct {
	Kind       TransitionKind `json:"kind,omitempty"`
	Reason     Reason         `json:"reason,omitempty"`
	From       Phase          `json:"from,omitempty"`
	To         Phase          `json:"to,omitempty"`
	Round      int            `json:"round"`
	AutoMarked []int          `json:"auto_marked,omitempty"`
	Roll       *RollResult    `json:"roll,omitempty"`
}

func (t Transition) Applied() bool {
	return t.Kind != TransitionNone
}

func (t Transition) GameOver() bool {
	return t.To == PhaseGameOver
}

type StockQuote struct {
	Stock      Stock `json:"name"`
	PriceCents int64 `json:"price"`
}

type PlayerView struct {
	Slot        int             `json:"player_id"`
	Name        string          `json:"name"`
	CashCents   int64           `json:"cash"`
	Portfolio   map[Stock]int64 `json:"portfolio"`
	NetWorth    int64           `json:"net_worth"`
	IsActive    bool            `json:"is_active"`
	IsConnected bool            `json:"is_connected"`
	DoneTrading bool            `json:"done_trading"`
	HasLeft     bool            `json:"has_left"`
}

type NetWorthPoint struct {
	Round    int   `json:"round"`
	NetWorth int64 `json:"net_worth"`
}

type Winner struct {
	Slot     int    `json:"slot"`
	Name     string `json:"name"`
	NetWorth int64  `json:"net_worth"`
}

type Ranking struct {
	Rank            int             `json:"rank"`
	Slot            int             `json:"slot"`
	Name            string          `json:"name"`
	NetWorth        int64           `json:"net_worth"`
	CashCents       int64           `json:"cash"`
	Portfolio       map[Stock]int64 `json:"portfolio"`
	WasDisconnected bool            `json:"was_disconnected"`
}

type GameState struct {
	GameID               string                  `json:"game_id"`
	Stocks               []StockQuote            `json:"stocks"`
	Players              []PlayerView            `json:"players"`
	Phase                Phase                   `json:"current_phase"`
	CurrentTurn          int                     `json:"current_turn"`
	Round                int                     `json:"current_round"`
	MaxRounds            int                     `json:"max_rounds"`
	Status               Status                  `json:"status"`
	PhaseStartTime       time.Time               `json:"phase_start_time"`
	TimeRemaining        float64                 `json:"time_remaining"`
	TradingDuration      int                     `json:"trading_duration"`
	DiceDuration         int                     `json:"dice_duration"`
	DoneTradingCount     int                     `json:"done_trading_count"`
	ActivePlayerCount    int                     `json:"active_player_count"`
	ConnectedPlayerCount int                     `json:"connected_player_count"`
	DiceResults          *RollResult             `json:"dice_results"`
	RollCount            int64                   `json:"roll_count"`
	TradingComplete      bool                    `json:"trading_complete"`
	AutoRollNeeded       bool                    `json:"auto_roll_needed"`
	History              []HistoryEntry          `json:"history"`
	GameOver             bool                    `json:"game_over"`
	Winner               *Winner                 `json:"winner"`
	NetWorthHistory      map[int][]NetWorthPoint `json:"networth_history"`
	FinalRankings        []Ranking               `json:"final_rankings"`
	PlayerCount          int                     `json:"player_count"`
	HostSlot             int                     `json:"host_player_id"`
	FinishedAt           *time.Time              `json:"finished_at,omitempty"`
}

// Player returns the view for slot, if the slot exists.
func (s GameState) Player(slot int) (PlayerView, bool) {
	if slot < 0 || slot >= len(s.Players) {
		return PlayerView{}, false
	}
	return s.Players[slot], true
}

func (s GameState) Price(stock Stock) int64 {
	for _, q := range s.Stocks {
		if q.Stock == stock {
			return q.PriceCents
		}
	}
	return 0
}

type GameSummary struct {
	ID               string    `json:"id"`
	Phase            Phase     `json:"phase"`
	Status           Status    `json:"status"`
	Round            int       `json:"round"`
	MaxRounds        int       `json:"max_rounds"`
	PlayerCount      int       `json:"player_count"`
	ActivePlayers    int       `json:"active_players"`
	ConnectedPlayers int       `json:"connected_players"`
	CreatedAt        time.Time `json:"created_at"`
}
