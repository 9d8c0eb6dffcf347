package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "stockticker/internal/cli"
	"stockticker/internal/config"
	"stockticker/internal/game"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "stk",
		Short:        "Stock Ticker board game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newJoinCmd(&apiBase),
		newLeaveCmd(&apiBase),
		newStartCmd(&apiBase),
		newTradeCmd(&apiBase, "buy"),
		newTradeCmd(&apiBase, "sell"),
		newDoneCmd(&apiBase),
		newRollCmd(&apiBase),
		newStateCmd(&apiBase),
		newRankingsCmd(&apiBase),
		newGamesCmd(&apiBase),
		newResultsCmd(&apiBase),
		newWatchCmd(&apiBase),
		newInviteCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newJoinCmd(apiBase *string) *cobra.Command {
	var (
		name    string
		players int
		slot    int
	)
	cmd := &cobra.Command{
		Use:   "join <game>",
		Short: "Join or create a game; rejoining restores your old seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			gameID := strings.TrimSpace(args[0])
			if name == "" {
				name = sess.Name
			}
			if name == "" {
				if name, err = promptRequired("Name"); err != nil {
					return err
				}
			}
			var requested *int
			if cmd.Flags().Changed("slot") {
				requested = &slot
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Join(ctx, gameID, sess.Identity, name, players, requested)
			if err != nil {
				return err
			}
			sess.GameID = out.GameID
			sess.Slot = out.Player.Slot
			sess.Name = out.Player.Name
			if err := cl.SaveSession(sess); err != nil {
				return err
			}

			verb := "Joined"
			if out.Player.Rejoined {
				verb = "Rejoined"
			}
			printSuccess(fmt.Sprintf("%s %s as %s (slot %d of %d).", verb, out.GameID, out.Player.Name, out.Player.Slot, out.PlayerCount))
			if out.Player.IsHost {
				printInfo("You are the host. Run `stk start` once everyone is in.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().IntVar(&players, "players", 0, "seats for a new game (2-8, default 4)")
	cmd.Flags().IntVar(&slot, "slot", 0, "preferred seat")
	return cmd
}

func newLeaveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leave the current game",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireGame()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Leave(ctx, sess.GameID, sess.Identity)
			var apiErr *cl.APIError
			switch {
			case err == nil:
			case errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Message == game.ErrGameOver.Error()):
				// finished or reaped games have nothing left to leave
				out.Message = "Left " + sess.GameID + " (" + apiErr.Message + ")"
			default:
				return err
			}
			if err := cl.ClearGame(); err != nil {
				return err
			}
			printSuccess(out.Message)
			return nil
		},
	}
}

func newStartCmd(apiBase *string) *cobra.Command {
	var (
		rounds  int
		trading int
		dice    int
		cash    int64
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the game (needs at least two players)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireGame()
			if err != nil {
				return err
			}
			var in game.SettingsInput
			if cmd.Flags().Changed("rounds") {
				in.MaxRounds = &rounds
			}
			if cmd.Flags().Changed("trading-minutes") {
				in.TradingMinutes = &trading
			}
			if cmd.Flags().Changed("dice-seconds") {
				in.DiceSeconds = &dice
			}
			if cmd.Flags().Changed("cash") {
				in.StartingCash = &cash
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			state, err := newClient(apiBase).Start(ctx, sess.GameID, in)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Game started: %d rounds, %ds trading, %ds dice.", state.MaxRounds, state.TradingDuration, state.DiceDuration))
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", game.DefaultMaxRounds, "number of rounds")
	cmd.Flags().IntVar(&trading, "trading-minutes", int(game.DefaultTradingDuration/time.Minute), "trading phase length in minutes")
	cmd.Flags().IntVar(&dice, "dice-seconds", int(game.DefaultDiceDuration/time.Second), "seconds per dice turn, 0 rolls instantly")
	cmd.Flags().Int64Var(&cash, "cash", game.DefaultStartingCashCents/game.CentsPerDollar, "starting cash in dollars")
	return cmd
}

func newTradeCmd(apiBase *string, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " [stock] [shares]",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares during the trading phase",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireGame()
			if err != nil {
				return err
			}
			stock, err := stockFromArgsOrPrompt(args)
			if err != nil {
				return err
			}
			shares, err := int64FromArgOrPrompt(args, 1, "Shares")
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Trade(ctx, sess.GameID, side, sess.Identity, sess.Slot, stock, shares, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(out.Message)
			fmt.Printf("Price %s, total %s, cash now %s, holding %d.\n",
				game.FormatCents(out.PriceCents), game.FormatCents(out.TotalCents), game.FormatCents(out.CashCents), out.Holding)
			return nil
		},
	}
}

func newDoneCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "done",
		Short: "Mark yourself done trading for this round",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireGame()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Done(ctx, sess.GameID, sess.Identity, sess.Slot)
			if err != nil {
				return err
			}
			if out.Transition.Applied() {
				printSuccess("Everyone is done. Dice phase!")
				return nil
			}
			printSuccess(fmt.Sprintf("Done trading (%d/%d).", out.DoneCount, out.Connected))
			return nil
		},
	}
}

func newRollCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "roll",
		Short: "Roll the dice on your turn",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.RequireGame()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Roll(ctx, sess.GameID, sess.Identity, sess.Slot, uuid.NewString())
			if err != nil {
				return err
			}
			renderRoll(out)
			return nil
		},
	}
}

func newStateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state [game]",
		Short: "Show a game snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, slot, err := gameFromArgsOrSession(args)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			state, err := newClient(apiBase).State(ctx, gameID)
			if err != nil {
				return err
			}
			renderState(state, slot)
			return nil
		},
	}
}

func newRankingsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rankings [game]",
		Short: "Show final rankings of a finished game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, _, err := gameFromArgsOrSession(args)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Rankings(ctx, gameID)
			if err != nil {
				return err
			}
			if !out.GameOver {
				printWarn("Game is still running.")
				return nil
			}
			renderRankings(out.Winner, out.FinalRankings)
			return nil
		},
	}
}

func newGamesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List live games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			games, err := newClient(apiBase).Games(ctx)
			if err != nil {
				return err
			}
			accent.Println("\n== LIVE GAMES ==")
			if len(games) == 0 {
				printInfo("No games yet. Create one with `stk join <name>`.")
				return nil
			}
			fmt.Printf("%-20s %-10s %8s %9s\n", "GAME", "PHASE", "ROUND", "PLAYERS")
			for _, g := range games {
				fmt.Printf("%-20s %-10s %8s %9s\n",
					truncate(g.ID, 20),
					g.Phase,
					fmt.Sprintf("%d/%d", min(g.Round, g.MaxRounds), g.MaxRounds),
					fmt.Sprintf("%d/%d", g.ConnectedPlayers, g.PlayerCount),
				)
			}
			fmt.Println()
			return nil
		},
	}
}

func newResultsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show archived results of finished games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(apiBase).Results(ctx, limit)
			if err != nil {
				return err
			}
			renderResults(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of games")
	return cmd
}

func gameFromArgsOrSession(args []string) (string, int, error) {
	if len(args) > 0 {
		gameID := strings.TrimSpace(args[0])
		slot := -1
		if sess, err := cl.LoadSession(); err == nil && sess.GameID == gameID {
			slot = sess.Slot
		}
		return gameID, slot, nil
	}
	sess, err := cl.RequireGame()
	if err != nil {
		return "", -1, err
	}
	return sess.GameID, sess.Slot, nil
}

func stockFromArgsOrPrompt(args []string) (game.Stock, error) {
	if len(args) > 0 {
		return game.ParseStock(args[0])
	}
	return promptStock("Stock")
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}
