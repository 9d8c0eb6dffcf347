// Package archive keeps the results of finished games after they are reaped
// from memory. Live games are never written here.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stockticker/internal/db"
	"stockticker/internal/game"
)

var ErrUnsupportedURL = errors.New("archive url must start with postgres://, postgresql:// or sqlite:")

type Result struct {
	GameID         string         `json:"game_id"`
	FinishedAt     time.Time      `json:"finished_at"`
	LastRound      int            `json:"last_round"`
	WinnerSlot     int            `json:"winner_slot"`
	WinnerName     string         `json:"winner_name"`
	WinnerNetWorth int64          `json:"winner_net_worth"`
	Rankings       []game.Ranking `json:"rankings"`
}

type Store interface {
	SaveResult(ctx context.Context, r Result) error
	ListResults(ctx context.Context, limit int) ([]Result, error)
	Close() error
}

// FromState builds a result from a finished game's snapshot.
func FromState(s game.GameState) Result {
	r := Result{
		GameID:     s.GameID,
		LastRound:  min(s.Round, s.MaxRounds),
		WinnerSlot: -1,
		Rankings:   s.FinalRankings,
	}
	if s.FinishedAt != nil {
		r.FinishedAt = s.FinishedAt.UTC()
	}
	if s.Winner != nil {
		r.WinnerSlot = s.Winner.Slot
		r.WinnerName = s.Winner.Name
		r.WinnerNetWorth = s.Winner.NetWorth
	}
	if r.Rankings == nil {
		r.Rankings = []game.Ranking{}
	}
	return r
}

// Open picks a backend from the url scheme.
func Open(ctx context.Context, url string) (Store, error) {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		pool, err := db.Connect(ctx, db.PoolConfig{URL: url, Attempts: 5})
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(url, "sqlite:"):
		store, err := OpenSQLite(strings.TrimPrefix(url, "sqlite:"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, ErrUnsupportedURL
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}

// Recorder saves reaped games to a store. Failures are logged and skipped.
type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, log: logger}
}

func (r *Recorder) Archive(ctx context.Context, games []*game.Game) {
	for _, g := range games {
		result := FromState(g.State())
		if err := r.store.SaveResult(ctx, result); err != nil {
			r.log.Error("archive result failed", "game_id", g.ID(), "err", err)
			continue
		}
		r.log.Info("archived result", "game_id", g.ID(), "winner", result.WinnerName)
	}
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
