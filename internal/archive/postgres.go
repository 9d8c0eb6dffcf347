package archive

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{db: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, wrapErr("migrate", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_results (
			game_id TEXT NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			last_round INT NOT NULL,
			winner_slot INT NOT NULL,
			winner_name TEXT NOT NULL,
			winner_net_worth BIGINT NOT NULL,
			rankings JSONB NOT NULL,
			PRIMARY KEY (game_id, finished_at)
		)
	`)
	return err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r Result) error {
	rankings, err := json.Marshal(r.Rankings)
	if err != nil {
		return wrapErr("marshal rankings", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO game_results
			(game_id, finished_at, last_round, winner_slot, winner_name, winner_net_worth, rankings)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (game_id, finished_at) DO NOTHING
	`, r.GameID, r.FinishedAt, r.LastRound, r.WinnerSlot, r.WinnerName, r.WinnerNetWorth, string(rankings))
	if err != nil {
		return wrapErr("insert result", err)
	}
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]Result, error) {
	rows, err := s.db.Query(ctx, `
		SELECT game_id, finished_at, last_round, winner_slot, winner_name, winner_net_worth, rankings
		FROM game_results
		ORDER BY finished_at DESC, game_id
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, wrapErr("list results", err)
	}
	defer rows.Close()

	out := make([]Result, 0)
	for rows.Next() {
		var r Result
		var rankings []byte
		if err := rows.Scan(&r.GameID, &r.FinishedAt, &r.LastRound, &r.WinnerSlot, &r.WinnerName, &r.WinnerNetWorth, &rankings); err != nil {
			return nil, wrapErr("scan result", err)
		}
		if err := json.Unmarshal(rankings, &r.Rankings); err != nil {
			return nil, wrapErr("decode rankings", err)
		}
		r.FinishedAt = r.FinishedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list results", err)
	}
	return out, nil
}
