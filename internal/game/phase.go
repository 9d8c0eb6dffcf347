package game

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// engine is the phase state machine. Every field is guarded by Game.mu.
type engine struct {
	phase        Phase
	round        int
	turn         int
	phaseStarted time.Time
	turnStarted  time.Time
	done         map[int]bool
	rolls        int64
	lastRoll     *RollResult
}

func newEngine(now time.Time) engine {
	return engine{
		phase:        PhaseWaiting,
		turn:         -1,
		phaseStarted: now,
		turnStarted:  now,
		done:         make(map[int]bool),
	}
}

func (e *engine) clearDone() {
	for slot := range e.done {
		delete(e.done, slot)
	}
}

// shouldEndTrading reports whether the trading phase is over. It never
// mutates state; connected players are only auto-marked when endTrading runs.
func (g *Game) shouldEndTrading(now time.Time) (bool, Reason) {
	if g.engine.phase != PhaseTrading {
		return false, ReasonNone
	}
	connected := g.roster.connectedSlots()
	if len(connected) > 0 {
		all := true
		for _, slot := range connected {
			if !g.engine.done[slot] {
				all = false
				break
			}
		}
		if all {
			return true, ReasonAllDone
		}
	}
	if now.Sub(g.engine.phaseStarted) >= g.settings.TradingDuration {
		return true, ReasonTimerExpired
	}
	return false, ReasonNone
}

func (g *Game) shouldAutoRoll(now time.Time) (bool, Reason) {
	if g.engine.phase != PhaseDice {
		return false, ReasonNone
	}
	if !g.roster.connected(g.engine.turn) {
		return true, ReasonDisconnected
	}
	if g.settings.InstantDice() {
		return true, ReasonInstant
	}
	if now.Sub(g.engine.turnStarted) >= g.settings.DiceDuration {
		return true, ReasonTimerExpired
	}
	return false, ReasonNone
}

// remaining is the time left on whichever timer the current phase runs.
func (g *Game) remaining(now time.Time) time.Duration {
	var left time.Duration
	switch g.engine.phase {
	case PhaseTrading:
		left = g.settings.TradingDuration - now.Sub(g.engine.phaseStarted)
	case PhaseDice:
		left = g.settings.DiceDuration - now.Sub(g.engine.turnStarted)
	}
	if left < 0 {
		return 0
	}
	return left
}

func (g *Game) endTrading(now time.Time, reason Reason) Transition {
	var marked []int
	if reason == ReasonTimerExpired {
		for _, slot := range g.roster.connectedSlots() {
			if !g.engine.done[slot] {
				marked = append(marked, slot)
			}
			g.engine.done[slot] = true
		}
		g.addHistory(HistorySystem, "⏰ Trading time expired")
	}

	active := g.roster.activeSlots()
	g.engine.phase = PhaseDice
	g.engine.clearDone()
	g.engine.turn = active[0]
	g.engine.phaseStarted = now
	g.engine.turnStarted = now
	g.engine.lastRoll = nil

	g.addHistory(HistoryPhase, "▶ Phase changed to Dice Phase")
	g.addHistory(HistoryRoll, fmt.Sprintf("%s's turn to roll", g.roster.name(g.engine.turn)))
	g.log.Info("trading ended", "round", g.engine.round, "reason", reason, "auto_marked", len(marked))

	return Transition{
		Kind:       TransitionTradingEnded,
		Reason:     reason,
		From:       PhaseTrading,
		To:         PhaseDice,
		Round:      g.engine.round,
		AutoMarked: marked,
	}
}

// advanceDiceTurn hands the dice to the next active slot, or closes the dice
// phase when the last active slot has rolled.
func (g *Game) advanceDiceTurn(now time.Time) TurnAdvance {
	for _, slot := range g.roster.activeSlots() {
		if slot <= g.engine.turn {
			continue
		}
		g.engine.lastRoll = nil
		g.engine.turn = slot
		g.engine.turnStarted = now
		g.addHistory(HistoryRoll, fmt.Sprintf("%s's turn to roll", g.roster.name(slot)))
		return TurnAdvance{NextTurn: slot, Phase: PhaseDice, Round: g.engine.round}
	}
	g.endDicePhase(now)
	return TurnAdvance{NextTurn: -1, PhaseChanged: true, Phase: g.engine.phase, Round: g.engine.round}
}

func (g *Game) endDicePhase(now time.Time) {
	g.recordNetWorth()
	g.engine.round++
	g.engine.clearDone()
	g.engine.phaseStarted = now
	if g.engine.round > g.settings.MaxRounds {
		g.endGame(now, ReasonMaxRounds)
		return
	}
	g.engine.phase = PhaseTrading
	g.engine.turn = g.roster.activeSlots()[0]
	g.addHistory(HistoryPhase, fmt.Sprintf("▶ Round %d started - Trading Phase", g.engine.round))
	g.log.Info("round started", "round", g.engine.round)
}

func (g *Game) endGame(now time.Time, reason Reason) {
	g.engine.phase = PhaseGameOver
	g.engine.clearDone()
	g.finishedAt = now

	var best *Player
	var bestWorth int64
	for _, p := range g.roster.activePlayers() {
		worth := g.market.netWorth(p)
		if best == nil || worth > bestWorth {
			best, bestWorth = p, worth
		}
	}
	if best == nil {
		g.addHistory(HistoryPhase, "Game Over! No players.")
		g.log.Info("game over", "reason", reason)
		return
	}
	g.winner = &Winner{Slot: best.Slot, Name: best.Name, NetWorth: bestWorth}
	g.addHistory(HistoryPhase, fmt.Sprintf("🏆 Game Over! %s wins with %s!", best.Name, FormatCents(bestWorth)))
	g.log.Info("game over", "reason", reason, "winner_slot", best.Slot, "net_worth", bestWorth)
}

func (g *Game) canRoll(actor int) bool {
	return actor == g.engine.turn || !g.roster.connected(g.engine.turn) || g.settings.InstantDice()
}

// roll draws three dice for the current turn and applies them. auto marks a
// system-issued roll.
func (g *Game) roll(now time.Time, auto bool, reason Reason) (RollResult, error) {
	faces := [3]int{g.dice.Die(), g.dice.Die(), g.dice.Die()}
	for _, f := range faces {
		if f < 1 || f > 6 {
			return RollResult{}, internalError(fmt.Errorf("die face %d out of range", f))
		}
	}
	stock := Stocks[faces[0]-1]
	action := actionFaces[faces[1]-1]
	amount := amountFaces[faces[2]-1]

	roller, _ := g.roster.player(g.engine.turn)
	offline := roller.Disconnected
	g.engine.rolls++

	res := RollResult{
		RollID:    g.engine.rolls,
		Slot:      roller.Slot,
		Dice:      faces,
		Stock:     stock,
		Action:    action,
		Amount:    amount,
		Auto:      auto || offline,
		Reason:    reason,
		Timestamp: now,
	}

	var msg strings.Builder
	if offline {
		fmt.Fprintf(&msg, "🤖 %s (offline) rolled: ", roller.Name)
	} else {
		fmt.Fprintf(&msg, "🎲 %s rolled: ", roller.Name)
	}

	players := g.roster.activePlayers()
	var marketNote string
	switch action {
	case ActionDividend:
		div := g.market.applyDividend(stock, amount, players)
		switch {
		case !div.Payable:
			fmt.Fprintf(&msg, "%s dividend - dividends not payable.", stock)
		case len(div.Payees) == 0:
			fmt.Fprintf(&msg, "%s dividend - Nobody owns %s.", stock, stock)
		default:
			fmt.Fprintf(&msg, "%s paid %s dividend per share - dividends paid to: %s",
				stock, FormatCents(amount), strings.Join(div.Payees, ", "))
		}
		res.PriceCents = g.market.price(stock)
	default:
		delta, word := amount, "UP"
		if action == ActionDown {
			delta, word = -amount, "DOWN"
		}
		move := g.market.applyMove(stock, delta, players)
		fmt.Fprintf(&msg, "%s moved %s %d¢", stock, word, amount)
		res.PriceCents, res.Split, res.Bankrupt = move.Price, move.Split, move.Bankrupt
		switch {
		case move.Split:
			marketNote = fmt.Sprintf("📈 %s SPLIT! All shares doubled, price reset to %s", stock, FormatCents(ParPriceCents))
		case move.Bankrupt:
			marketNote = fmt.Sprintf("💥 %s went BANKRUPT! All shares lost, price reset to %s", stock, FormatCents(ParPriceCents))
		}
	}
	res.Message = msg.String()
	g.addHistory(HistoryRoll, res.Message)
	if marketNote != "" {
		g.addHistory(HistoryMarket, marketNote)
	}

	stored := res
	g.engine.lastRoll = &stored
	res.Advance = g.advanceDiceTurn(now)
	if g.engine.lastRoll != nil {
		g.engine.lastRoll.Advance = res.Advance
	}
	g.log.Info("dice rolled",
		"roll_id", res.RollID, "slot", res.Slot, "stock", stock, "action", action,
		"amount", amount, "auto", res.Auto, "reason", reason)
	return res, nil
}

func (g *Game) autoRoll(now time.Time, reason Reason) (RollResult, error) {
	name := g.roster.name(g.engine.turn)
	switch reason {
	case ReasonDisconnected:
		g.addHistory(HistorySystem, fmt.Sprintf("%s (disconnected) - auto-rolling...", name))
	case ReasonTimerExpired:
		g.addHistory(HistorySystem, fmt.Sprintf("%s - dice timer expired, auto-rolling...", name))
	case ReasonInstant:
	default:
		g.addHistory(HistorySystem, fmt.Sprintf("%s - auto-rolling...", name))
	}
	return g.roll(now, true, reason)
}

func (g *Game) recordNetWorth() {
	for _, p := range g.roster.activePlayers() {
		g.netWorth[p.Slot] = append(g.netWorth[p.Slot], NetWorthPoint{
			Round:    g.engine.round,
			NetWorth: g.market.netWorth(p),
		})
	}
}

// rankings orders active slots by net worth, highest first, ties by slot.
func (g *Game) rankings() []Ranking {
	players := g.roster.activePlayers()
	out := make([]Ranking, 0, len(players))
	for _, p := range players {
		out = append(out, Ranking{
			Slot:            p.Slot,
			Name:            p.Name,
			NetWorth:        g.market.netWorth(p),
			CashCents:       p.Cash,
			Portfolio:       copyPortfolio(p.Portfolio),
			WasDisconnected: p.Disconnected,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NetWorth != out[j].NetWorth {
			return out[i].NetWorth > out[j].NetWorth
		}
		return out[i].Slot < out[j].Slot
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func copyPortfolio(in map[Stock]int64) map[Stock]int64 {
	out := make(map[Stock]int64, len(Stocks))
	for _, s := range Stocks {
		out[s] = in[s]
	}
	return out
}
