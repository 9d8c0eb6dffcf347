package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"stockticker/internal/archive"
	"stockticker/internal/game"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func promptStock(label string) (game.Stock, error) {
	names := make([]string, len(game.Stocks))
	for i, s := range game.Stocks {
		names[i] = string(s)
	}
	for {
		text, err := promptRequired(fmt.Sprintf("%s (%s)", label, strings.Join(names, "/")))
		if err != nil {
			return "", err
		}
		stock, err := game.ParseStock(text)
		if err != nil {
			printWarn(err.Error())
			continue
		}
		return stock, nil
	}
}

func renderState(s game.GameState, mySlot int) {
	accent.Printf("\n== GAME %s ==\n", s.GameID)
	fmt.Printf("Phase:   %s\n", phaseLabel(s))
	if s.Phase != game.PhaseWaiting {
		fmt.Printf("Round:   %d / %d\n", min(s.Round, s.MaxRounds), s.MaxRounds)
	}
	if s.Phase == game.PhaseTrading || s.Phase == game.PhaseDice {
		fmt.Printf("Timer:   %.0fs left\n", s.TimeRemaining)
	}

	fmt.Println()
	accent.Println("Market")
	fmt.Printf("%-12s %10s\n", "STOCK", "PRICE")
	for _, q := range s.Stocks {
		fmt.Printf("%-12s %10s\n", q.Stock, colorizePrice(q.PriceCents))
	}

	fmt.Println()
	accent.Println("Players")
	fmt.Printf("%-4s %-18s %14s %14s %-10s\n", "SLOT", "NAME", "CASH", "NET WORTH", "STATUS")
	for _, p := range s.Players {
		if !p.IsActive {
			continue
		}
		name := truncate(p.Name, 18)
		if p.Slot == s.HostSlot {
			name = truncate(p.Name, 16) + " *"
		}
		line := fmt.Sprintf("%-4d %-18s %14s %14s %-10s", p.Slot, name, game.FormatCents(p.CashCents), game.FormatCents(p.NetWorth), playerStatus(s, p))
		if p.Slot == mySlot {
			success.Println(line)
			continue
		}
		fmt.Println(line)
	}

	if me, ok := s.Player(mySlot); ok && me.IsActive {
		fmt.Println()
		accent.Println("Your Portfolio")
		for _, stock := range game.Stocks {
			if n := me.Portfolio[stock]; n > 0 {
				fmt.Printf("%-12s %10s shares\n", stock, humanize.Comma(n))
			}
		}
	}

	if n := len(s.History); n > 0 {
		fmt.Println()
		accent.Println("Recent")
		for _, h := range s.History[max(0, n-6):] {
			fmt.Printf("  %s\n", h.Message)
		}
	}
	if s.GameOver {
		renderRankings(s.Winner, s.FinalRankings)
	}
	fmt.Println()
}

func renderRankings(winner *game.Winner, rankings []game.Ranking) {
	accent.Println("\n== FINAL RANKINGS ==")
	if winner != nil {
		success.Printf("Winner: %s with %s\n", winner.Name, game.FormatCents(winner.NetWorth))
	}
	if len(rankings) == 0 {
		printInfo("No rankings yet.")
		return
	}
	fmt.Printf("%-6s %-18s %14s %14s\n", "RANK", "PLAYER", "NET WORTH", "CASH")
	for _, r := range rankings {
		name := truncate(r.Name, 18)
		if r.WasDisconnected {
			name = truncate(r.Name, 13) + " (dc)"
		}
		fmt.Printf("%-6d %-18s %14s %14s\n", r.Rank, name, game.FormatCents(r.NetWorth), game.FormatCents(r.CashCents))
	}
}

func renderResults(results []archive.Result) {
	accent.Println("\n== RECENT GAMES ==")
	if len(results) == 0 {
		printInfo("No finished games archived yet.")
		return
	}
	fmt.Printf("%-20s %-16s %-18s %14s %7s\n", "GAME", "FINISHED", "WINNER", "NET WORTH", "ROUNDS")
	for _, r := range results {
		winner := r.WinnerName
		if r.WinnerSlot < 0 {
			winner = "-"
		}
		fmt.Printf("%-20s %-16s %-18s %14s %7d\n",
			truncate(r.GameID, 20),
			humanize.Time(r.FinishedAt),
			truncate(winner, 18),
			game.FormatCents(r.WinnerNetWorth),
			r.LastRound,
		)
	}
	fmt.Println()
}

func renderRoll(r game.RollResult) {
	accent.Printf("Dice: %d %d %d\n", r.Dice[0], r.Dice[1], r.Dice[2])
	fmt.Println(r.Message)
	switch {
	case r.Split:
		success.Printf("%s split! Holdings doubled.\n", r.Stock)
	case r.Bankrupt:
		danger.Printf("%s went bankrupt! Holdings wiped.\n", r.Stock)
	}
	if r.Advance.PhaseChanged {
		printInfo(fmt.Sprintf("Phase is now %s (round %d).", r.Advance.Phase, r.Advance.Round))
	}
}

func phaseLabel(s game.GameState) string {
	switch s.Phase {
	case game.PhaseWaiting:
		return fmt.Sprintf("Waiting for players (%d/%d)", s.ActivePlayerCount, s.PlayerCount)
	case game.PhaseTrading:
		return fmt.Sprintf("Trading (%d/%d done)", s.DoneTradingCount, s.ConnectedPlayerCount)
	case game.PhaseDice:
		if p, ok := s.Player(s.CurrentTurn); ok {
			return "Dice, " + p.Name + " to roll"
		}
		return "Dice"
	default:
		return "Game over"
	}
}

func playerStatus(s game.GameState, p game.PlayerView) string {
	switch {
	case !p.IsConnected:
		return "offline"
	case s.Phase == game.PhaseDice && s.CurrentTurn == p.Slot:
		return "rolling"
	case p.DoneTrading:
		return "done"
	default:
		return "online"
	}
}

func colorizePrice(cents int64) string {
	text := game.FormatCents(cents)
	switch {
	case cents > game.ParPriceCents:
		return success.Sprint(text)
	case cents < game.ParPriceCents:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
