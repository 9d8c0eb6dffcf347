package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cl "stockticker/internal/cli"
	"stockticker/internal/game"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const watchPoll = time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	flashStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
)

func newWatchCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [game]",
		Short: "Live view of a game; d marks done, r rolls, q quits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, slot, err := gameFromArgsOrSession(args)
			if err != nil {
				return err
			}
			client := newClient(apiBase)

			if !term.IsTerminal(int(os.Stdout.Fd())) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				state, err := client.State(ctx, gameID)
				if err != nil {
					return err
				}
				renderState(state, slot)
				return nil
			}

			identity := ""
			if sess, err := cl.LoadSession(); err == nil && sess.GameID == gameID {
				identity = sess.Identity
			}
			m := newWatchModel(cmd.Context(), client, gameID, identity, slot)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

type stateMsg struct {
	state game.GameState
	err   error
}

type actionMsg struct {
	text string
	err  error
}

type pollMsg struct{}

type watchModel struct {
	ctx      context.Context
	client   *cl.Client
	gameID   string
	identity string
	slot     int

	state   *game.GameState
	players table.Model
	flash   string
	err     error
	width   int
}

func newWatchModel(ctx context.Context, client *cl.Client, gameID, identity string, slot int) watchModel {
	players := table.New(
		table.WithColumns([]table.Column{
			{Title: "Slot", Width: 4},
			{Title: "Player", Width: 18},
			{Title: "Cash", Width: 12},
			{Title: "Net worth", Width: 12},
			{Title: "Status", Width: 8},
		}),
		table.WithHeight(game.MaxPlayerCount+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	players.SetStyles(styles)

	return watchModel{
		ctx:      ctx,
		client:   client,
		gameID:   gameID,
		identity: identity,
		slot:     slot,
		players:  players,
	}
}

func (m watchModel) Init() tea.Cmd {
	return m.fetch()
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		state, err := m.client.State(ctx, m.gameID)
		return stateMsg{state: state, err: err}
	}
}

func (m watchModel) poll() tea.Cmd {
	return tea.Tick(watchPoll, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m watchModel) act(action string) tea.Cmd {
	if m.identity == "" {
		return func() tea.Msg { return actionMsg{err: errors.New("spectating, join the game to act")} }
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		switch action {
		case "roll":
			res, err := m.client.Roll(ctx, m.gameID, m.identity, m.slot, uuid.NewString())
			return actionMsg{text: res.Message, err: err}
		default:
			res, err := m.client.Done(ctx, m.gameID, m.identity, m.slot)
			return actionMsg{text: fmt.Sprintf("Done trading (%d/%d)", res.DoneCount, res.Connected), err: err}
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.act("roll")
		case "d":
			return m, m.act("done")
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case pollMsg:
		return m, m.fetch()
	case stateMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = &msg.state
			m.players.SetRows(playerRows(msg.state))
			if m.slot >= 0 {
				m.players.SetCursor(rowIndex(msg.state, m.slot))
			}
		}
		return m, m.poll()
	case actionMsg:
		if msg.err != nil {
			var apiErr *cl.APIError
			if errors.As(msg.err, &apiErr) {
				m.flash = apiErr.Message
			} else {
				m.flash = msg.err.Error()
			}
		} else {
			m.flash = msg.text
		}
		return m, m.fetch()
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.state == nil {
		if m.err != nil {
			return downStyle.Render("error: "+m.err.Error()) + "\n"
		}
		return dimStyle.Render("loading "+m.gameID+"...") + "\n"
	}
	s := *m.state

	var b strings.Builder
	b.WriteString(titleStyle.Render("STOCK TICKER  " + s.GameID))
	b.WriteString("   " + phaseLabel(s))
	if s.Phase == game.PhaseTrading || s.Phase == game.PhaseDice {
		b.WriteString(dimStyle.Render(fmt.Sprintf("   round %d/%d, %.0fs left", min(s.Round, s.MaxRounds), s.MaxRounds, s.TimeRemaining)))
	}
	b.WriteString("\n\n")

	market := boxStyle.Render(marketView(s))
	people := boxStyle.Render(m.players.View())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, market, " ", people))
	b.WriteString("\n")

	if me, ok := s.Player(m.slot); ok && me.IsActive {
		b.WriteString(boxStyle.Render(portfolioView(me)))
		b.WriteString("\n")
	}
	b.WriteString(boxStyle.Render(historyView(s, 8)))
	b.WriteString("\n")

	if s.GameOver && s.Winner != nil {
		b.WriteString(flashStyle.Render(fmt.Sprintf("Game over! %s wins with %s", s.Winner.Name, game.FormatCents(s.Winner.NetWorth))))
		b.WriteString("\n")
	}
	if m.flash != "" {
		b.WriteString(flashStyle.Render(m.flash) + "\n")
	}
	if m.err != nil {
		b.WriteString(downStyle.Render("refresh failed: "+m.err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("d done trading  r roll  q quit"))
	return b.String()
}

func marketView(s game.GameState) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Market") + "\n")
	for _, q := range s.Stocks {
		price := game.FormatCents(q.PriceCents)
		switch {
		case q.PriceCents > game.ParPriceCents:
			price = upStyle.Render(price)
		case q.PriceCents < game.ParPriceCents:
			price = downStyle.Render(price)
		}
		fmt.Fprintf(&b, "%-12s %s\n", q.Stock, price)
	}
	if s.DiceResults != nil {
		r := s.DiceResults
		fmt.Fprintf(&b, "\nLast roll: %s %s %s", r.Stock, r.Action, game.FormatCents(r.Amount))
	}
	return b.String()
}

func portfolioView(p game.PlayerView) string {
	var parts []string
	for _, stock := range game.Stocks {
		if n := p.Portfolio[stock]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", stock, n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, dimStyle.Render("no shares"))
	}
	return titleStyle.Render("You") + "  cash " + game.FormatCents(p.CashCents) + "  |  " + strings.Join(parts, ", ")
}

func historyView(s game.GameState, n int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("History"))
	start := max(0, len(s.History)-n)
	for _, h := range s.History[start:] {
		b.WriteString("\n" + h.Message)
	}
	return b.String()
}

func playerRows(s game.GameState) []table.Row {
	rows := make([]table.Row, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.IsActive {
			continue
		}
		name := p.Name
		if p.Slot == s.HostSlot {
			name += " *"
		}
		rows = append(rows, table.Row{
			fmt.Sprint(p.Slot),
			truncate(name, 18),
			game.FormatCents(p.CashCents),
			game.FormatCents(p.NetWorth),
			playerStatus(s, p),
		})
	}
	return rows
}

func rowIndex(s game.GameState, slot int) int {
	idx := 0
	for _, p := range s.Players {
		if !p.IsActive {
			continue
		}
		if p.Slot == slot {
			return idx
		}
		idx++
	}
	return 0
}
