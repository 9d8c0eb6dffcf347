package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-file backend, handy for local servers.
type SQLiteStore struct {
	conn *sqlx.DB
}

type resultRow struct {
	GameID         string `db:"game_id"`
	FinishedAtMS   int64  `db:"finished_at_ms"`
	LastRound      int    `db:"last_round"`
	WinnerSlot     int    `db:"winner_slot"`
	WinnerName     string `db:"winner_name"`
	WinnerNetWorth int64  `db:"winner_net_worth"`
	RankingsJSON   string `db:"rankings_json"`
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapErr("open sqlite", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, wrapErr("migrate", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.conn.Exec(`
	CREATE TABLE IF NOT EXISTS game_results (
		game_id TEXT NOT NULL,
		finished_at_ms INTEGER NOT NULL,
		last_round INTEGER NOT NULL,
		winner_slot INTEGER NOT NULL,
		winner_name TEXT NOT NULL,
		winner_net_worth INTEGER NOT NULL,
		rankings_json TEXT NOT NULL,
		PRIMARY KEY (game_id, finished_at_ms)
	);
	CREATE INDEX IF NOT EXISTS idx_game_results_finished ON game_results(finished_at_ms DESC);
	`)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r Result) error {
	rankings, err := json.Marshal(r.Rankings)
	if err != nil {
		return wrapErr("marshal rankings", err)
	}
	row := resultRow{
		GameID:         r.GameID,
		FinishedAtMS:   r.FinishedAt.UnixMilli(),
		LastRound:      r.LastRound,
		WinnerSlot:     r.WinnerSlot,
		WinnerName:     r.WinnerName,
		WinnerNetWorth: r.WinnerNetWorth,
		RankingsJSON:   string(rankings),
	}
	_, err = s.conn.NamedExecContext(ctx, `
		INSERT INTO game_results
			(game_id, finished_at_ms, last_round, winner_slot, winner_name, winner_net_worth, rankings_json)
		VALUES
			(:game_id, :finished_at_ms, :last_round, :winner_slot, :winner_name, :winner_net_worth, :rankings_json)
		ON CONFLICT (game_id, finished_at_ms) DO NOTHING
	`, row)
	if err != nil {
		return wrapErr("insert result", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]Result, error) {
	var rows []resultRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT game_id, finished_at_ms, last_round, winner_slot, winner_name, winner_net_worth, rankings_json
		FROM game_results
		ORDER BY finished_at_ms DESC, game_id
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, wrapErr("list results", err)
	}
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		r := Result{
			GameID:         row.GameID,
			FinishedAt:     time.UnixMilli(row.FinishedAtMS).UTC(),
			LastRound:      row.LastRound,
			WinnerSlot:     row.WinnerSlot,
			WinnerName:     row.WinnerName,
			WinnerNetWorth: row.WinnerNetWorth,
		}
		if err := json.Unmarshal([]byte(row.RankingsJSON), &r.Rankings); err != nil {
			return nil, wrapErr("decode rankings", err)
		}
		out = append(out, r)
	}
	return out, nil
}
