package game

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

type Options struct {
	Logger       *slog.Logger
	Clock        Clock
	Dice         RandomSource
	HistoryLimit int
}

// Game is one table. All mutations are serialized on mu; read-only queries
// take the read lock and return copies.
type Game struct {
	id          string
	playerCount int
	log         *slog.Logger
	now         Clock
	dice        RandomSource
	createdAt   time.Time

	mu         sync.RWMutex
	settings   Settings
	roster     *roster
	market     *market
	history    *history
	engine     engine
	netWorth   map[int][]NetWorthPoint
	winner     *Winner
	finishedAt time.Time
}

func NewGame(id string, playerCount int, opts Options) *Game {
	playerCount = ClampPlayerCount(playerCount)
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
		dice = NewRandomSource(0)
	}
	now := clock()
	return &Game{
		id:          id,
		playerCount: playerCount,
		log:         logger.With("game_id", id),
		now:         clock,
		dice:        dice,
		createdAt:   now,
		settings:    DefaultSettings(),
		roster:      newRoster(playerCount),
		market:      newMarket(),
		history:     newHistory(opts.HistoryLimit),
		engine:      newEngine(now),
		netWorth:    make(map[int][]NetWorthPoint),
	}
}

func (g *Game) ID() string {
	return g.id
}

func (g *Game) PlayerCount() int {
	return g.playerCount
}

func (g *Game) CreatedAt() time.Time {
	return g.createdAt
}

func (g *Game) addHistory(kind HistoryType, message string) {
	g.history.add(HistoryEntry{
		Type:      kind,
		Message:   message,
		Timestamp: g.now(),
		Round:     g.engine.round,
		Phase:     g.engine.phase,
	})
}

// recoverInternal turns a panic inside an operation into ErrInternal so one
// broken game cannot take the process down.
func (g *Game) recoverInternal(op string, err *error) {
	if r := recover(); r != nil {
		g.log.Error("game operation panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
		*err = internalError(fmt.Errorf("%s: %v", op, r))
	}
}

func (g *Game) Join(in JoinInput) (res JoinResult, err error) {
	identity := strings.TrimSpace(in.Identity)
	if identity == "" {
		return JoinResult{}, ErrInvalidIdentity
	}
	requested := -1
	if in.Slot != nil {
		requested = *in.Slot
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("join", &err)

	if g.engine.phase == PhaseGameOver {
		return JoinResult{}, ErrGameOver
	}
	out, err := g.roster.join(identity, in.Name, requested, g.settings.StartingCash, g.engine.phase == PhaseWaiting)
	if err != nil {
		return JoinResult{}, err
	}
	switch {
	case out.AlreadyConnected:
	case out.Rejoined:
		delete(g.engine.done, out.Slot)
		g.addHistory(HistorySystem, fmt.Sprintf("%s reconnected", out.Name))
		g.log.Info("player reconnected", "slot", out.Slot)
	default:
		g.addHistory(HistorySystem, fmt.Sprintf("%s joined the game", out.Name))
		g.log.Info("player joined", "slot", out.Slot, "name", out.Name)
	}
	if out.BecameHost && out.Rejoined {
		g.addHistory(HistorySystem, fmt.Sprintf("%s is now the host", out.Name))
	}
	return JoinResult{
		Slot:     out.Slot,
		Name:     out.Name,
		Rejoined: out.Rejoined,
		IsHost:   g.roster.host == out.Slot,
	}, nil
}

func (g *Game) Disconnect(identity string) (res DisconnectResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("disconnect", &err)

	// Final rankings are frozen once the game ends.
	if g.engine.phase == PhaseGameOver {
		return DisconnectResult{}, ErrGameOver
	}
	out, err := g.roster.disconnect(strings.TrimSpace(identity))
	if err != nil {
		return DisconnectResult{}, err
	}
	now := g.now()
	if g.engine.phase == PhaseTrading {
		delete(g.engine.done, out.Slot)
	}
	g.addHistory(HistorySystem, fmt.Sprintf("%s disconnected", out.Name))
	g.log.Info("player disconnected", "slot", out.Slot, "remaining", out.Remaining)

	res = DisconnectResult{Message: fmt.Sprintf("%s left the game", out.Name), Slot: out.Slot}
	if out.HostChanged && out.NewHost >= 0 {
		host := out.NewHost
		res.NewHost = &host
		g.addHistory(HistorySystem, fmt.Sprintf("%s is now the host", g.roster.name(host)))
	}

	if out.Remaining == 0 && g.engine.phase.Status() == StatusActive {
		g.addHistory(HistorySystem, "All players disconnected. Game ending...")
		g.endGame(now, ReasonAllGone)
		res.Message = "All players left. Game over!"
		res.GameOver = true
		return res, nil
	}
	if ok, reason := g.shouldEndTrading(now); ok && reason == ReasonAllDone {
		res.Transition = g.endTrading(now, reason)
	}
	return res, nil
}

func (g *Game) Start(in SettingsInput) (err error) {
	settings, err := in.Resolve()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("start", &err)

	switch g.engine.phase {
	case PhaseWaiting:
	case PhaseGameOver:
		return ErrGameOver
	default:
		return ErrWrongPhase
	}
	active := g.roster.activeSlots()
	if len(active) < 2 {
		return ErrNotEnoughPlayers
	}

	now := g.now()
	g.settings = settings
	for _, p := range g.roster.activePlayers() {
		p.Cash = settings.StartingCash
	}
	g.engine.phase = PhaseTrading
	g.engine.round = 1
	g.engine.clearDone()
	g.engine.phaseStarted = now
	g.engine.turnStarted = now
	g.engine.turn = active[0]

	g.recordNetWorth()
	g.addHistory(HistoryPhase, "Game started - Trading Phase Round 1")
	g.log.Info("game started",
		"players", len(active),
		"max_rounds", settings.MaxRounds,
		"trading_duration", settings.TradingDuration.String(),
		"dice_duration", settings.DiceDuration.String())
	return nil
}

// tradeTarget validates a buy or sell before anything is mutated.
func (g *Game) tradeTarget(slot int, stock Stock, shares int64) (*Player, error) {
	if g.engine.phase == PhaseGameOver {
		return nil, ErrGameOver
	}
	p, ok := g.roster.player(slot)
	if !ok {
		return nil, ErrInvalidPlayer
	}
	if _, ok := g.market.prices[stock]; !ok {
		return nil, ErrInvalidStock
	}
	if shares <= 0 {
		return nil, ErrInvalidAmount
	}
	if g.engine.phase != PhaseTrading {
		return nil, ErrWrongPhase
	}
	return p, nil
}

func (g *Game) Buy(slot int, stock Stock, shares int64) (res TradeResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("buy", &err)

	p, err := g.tradeTarget(slot, stock, shares)
	if err != nil {
		return TradeResult{}, err
	}
	price := g.market.price(stock)
	if shares > p.Cash/price {
		return TradeResult{}, ErrInsufficientCash
	}
	cost := shares * price
	p.Cash -= cost
	p.Portfolio[stock] += shares

	g.addHistory(HistoryTrade, fmt.Sprintf("%s bought %d %s", p.Name, shares, stock))
	return TradeResult{
		Slot:       slot,
		Stock:      stock,
		Shares:     shares,
		PriceCents: price,
		TotalCents: cost,
		CashCents:  p.Cash,
		Holding:    p.Portfolio[stock],
		Message:    fmt.Sprintf("Bought %d shares of %s", shares, stock),
	}, nil
}

func (g *Game) Sell(slot int, stock Stock, shares int64) (res TradeResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("sell", &err)

	p, err := g.tradeTarget(slot, stock, shares)
	if err != nil {
		return TradeResult{}, err
	}
	if shares > p.Portfolio[stock] {
		return TradeResult{}, ErrInsufficientShares
	}
	price := g.market.price(stock)
	proceeds := shares * price
	p.Portfolio[stock] -= shares
	p.Cash += proceeds

	g.addHistory(HistoryTrade, fmt.Sprintf("%s sold %d %s", p.Name, shares, stock))
	return TradeResult{
		Slot:       slot,
		Stock:      stock,
		Shares:     shares,
		PriceCents: price,
		TotalCents: proceeds,
		CashCents:  p.Cash,
		Holding:    p.Portfolio[stock],
		Message:    fmt.Sprintf("Sold %d shares of %s", shares, stock),
	}, nil
}

// MarkDoneTrading records slot's vote and ends trading immediately once every
// connected slot has voted.
func (g *Game) MarkDoneTrading(slot int) (res DoneResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("done_trading", &err)

	if g.engine.phase == PhaseGameOver {
		return DoneResult{}, ErrGameOver
	}
	p, ok := g.roster.player(slot)
	if !ok {
		return DoneResult{}, ErrInvalidPlayer
	}
	if p.Disconnected {
		return DoneResult{}, ErrPlayerDisconnected
	}
	if g.engine.phase != PhaseTrading {
		return DoneResult{}, ErrWrongPhase
	}

	now := g.now()
	if !g.engine.done[slot] {
		g.engine.done[slot] = true
		g.addHistory(HistorySystem, fmt.Sprintf("%s is done trading", p.Name))
	}
	res = DoneResult{DoneCount: len(g.engine.done), Connected: len(g.roster.connectedSlots())}
	if ok, reason := g.shouldEndTrading(now); ok {
		res.Transition = g.endTrading(now, reason)
	}
	return res, nil
}

// Roll rolls for the acting slot.
func (g *Game) Roll(slot int) (res RollResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("roll", &err)

	switch g.engine.phase {
	case PhaseDice:
	case PhaseGameOver:
		return RollResult{}, ErrGameOver
	default:
		return RollResult{}, ErrWrongPhase
	}
	if _, ok := g.roster.player(slot); !ok {
		return RollResult{}, ErrInvalidPlayer
	}
	if !g.canRoll(slot) {
		return RollResult{}, ErrNotYourTurn
	}
	return g.roll(g.now(), false, ReasonNone)
}

// AutoRoll is a system-issued roll for whoever holds the turn.
func (g *Game) AutoRoll() (res RollResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("auto_roll", &err)

	switch g.engine.phase {
	case PhaseDice:
	case PhaseGameOver:
		return RollResult{}, ErrGameOver
	default:
		return RollResult{}, ErrWrongPhase
	}
	now := g.now()
	_, reason := g.shouldAutoRoll(now)
	return g.autoRoll(now, reason)
}

func (g *Game) ShouldEndTrading() (bool, Reason) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shouldEndTrading(g.now())
}

func (g *Game) ShouldAutoRoll() (bool, Reason) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shouldAutoRoll(g.now())
}

// Advance re-evaluates the transition predicates under the write lock and
// applies at most one transition.
func (g *Game) Advance() (tr Transition, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer g.recoverInternal("advance", &err)

	now := g.now()
	switch g.engine.phase {
	case PhaseTrading:
		if ok, reason := g.shouldEndTrading(now); ok {
			return g.endTrading(now, reason), nil
		}
	case PhaseDice:
		if ok, reason := g.shouldAutoRoll(now); ok {
			round := g.engine.round
			roll, err := g.autoRoll(now, reason)
			if err != nil {
				return Transition{}, err
			}
			return Transition{
				Kind:   TransitionAutoRoll,
				Reason: reason,
				From:   PhaseDice,
				To:     g.engine.phase,
				Round:  round,
				Roll:   &roll,
			}, nil
		}
	}
	return Transition{}, nil
}

func (g *Game) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.engine.phase
}

// FinishedAt reports when the game reached game_over.
func (g *Game) FinishedAt() (time.Time, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.finishedAt, g.engine.phase == PhaseGameOver
}

// SlotOf returns the slot permanently bound to identity.
func (g *Game) SlotOf(identity string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roster.slotOf(identity)
}

func (g *Game) FinalRankings() []Ranking {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rankings()
}

func (g *Game) Summary() GameSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GameSummary{
		ID:               g.id,
		Phase:            g.engine.phase,
		Status:           g.engine.phase.Status(),
		Round:            g.engine.round,
		MaxRounds:        g.settings.MaxRounds,
		PlayerCount:      g.playerCount,
		ActivePlayers:    len(g.roster.activeSlots()),
		ConnectedPlayers: len(g.roster.connectedSlots()),
		CreatedAt:        g.createdAt,
	}
}

// State returns a full copy of the game suitable for serializing verbatim.
func (g *Game) State() GameState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	players := make([]PlayerView, g.playerCount)
	for slot := range players {
		p, ok := g.roster.player(slot)
		if !ok {
			players[slot] = PlayerView{
				Slot:      slot,
				Name:      fmt.Sprintf("Empty Slot %d", slot+1),
				CashCents: g.settings.StartingCash,
				Portfolio: copyPortfolio(nil),
				NetWorth:  g.settings.StartingCash,
			}
			continue
		}
		players[slot] = PlayerView{
			Slot:        slot,
			Name:        p.Name,
			CashCents:   p.Cash,
			Portfolio:   copyPortfolio(p.Portfolio),
			NetWorth:    g.market.netWorth(p),
			IsActive:    true,
			IsConnected: !p.Disconnected,
			DoneTrading: g.engine.done[slot],
			HasLeft:     p.Disconnected,
		}
	}

	netWorth := make(map[int][]NetWorthPoint, len(g.netWorth))
	for slot, points := range g.netWorth {
		netWorth[slot] = append([]NetWorthPoint(nil), points...)
	}

	tradingComplete, _ := g.shouldEndTrading(now)
	autoRoll, _ := g.shouldAutoRoll(now)
	state := GameState{
		GameID:               g.id,
		Stocks:               g.market.quotes(),
		Players:              players,
		Phase:                g.engine.phase,
		CurrentTurn:          g.engine.turn,
		Round:                g.engine.round,
		MaxRounds:            g.settings.MaxRounds,
		Status:               g.engine.phase.Status(),
		PhaseStartTime:       g.engine.phaseStarted,
		TimeRemaining:        g.remaining(now).Seconds(),
		TradingDuration:      int(g.settings.TradingDuration / time.Second),
		DiceDuration:         int(g.settings.DiceDuration / time.Second),
		DoneTradingCount:     len(g.engine.done),
		ActivePlayerCount:    len(g.roster.activeSlots()),
		ConnectedPlayerCount: len(g.roster.connectedSlots()),
		RollCount:            g.engine.rolls,
		TradingComplete:      tradingComplete,
		AutoRollNeeded:       autoRoll,
		History:              g.history.list(),
		GameOver:             g.engine.phase == PhaseGameOver,
		NetWorthHistory:      netWorth,
		FinalRankings:        []Ranking{},
		PlayerCount:          g.playerCount,
		HostSlot:             g.roster.host,
	}
	if g.engine.lastRoll != nil {
		roll := *g.engine.lastRoll
		state.DiceResults = &roll
	}
	if g.winner != nil {
		w := *g.winner
		state.Winner = &w
	}
	if state.GameOver {
		state.FinalRankings = g.rankings()
		finished := g.finishedAt
		state.FinishedAt = &finished
	}
	return state
}
