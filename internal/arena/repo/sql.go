package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/shared/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS arena_configs (
    date       TEXT PRIMARY KEY,
    team_a     TEXT   NOT NULL,
    team_b     TEXT   NOT NULL,
    created_ms BIGINT NOT NULL,
    updated_ms BIGINT NOT NULL
);
`

// SQL guarda cada time como JSON na tabela arena_configs
type SQL struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewSQL(conn *sql.DB, d db.Dialect) *SQL { return &SQL{db: conn, dialect: d} }

func (s *SQL) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("arena repo.Migrate: %w", err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, date string) (arena.Config, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT date, team_a, team_b, created_ms, updated_ms FROM arena_configs WHERE date = ?`), date)
	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return arena.Config{}, arena.ErrNotFound
	}
	return c, err
}

func (s *SQL) List(ctx context.Context) ([]arena.Config, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, team_a, team_b, created_ms, updated_ms FROM arena_configs ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("arena repo.List: %w", err)
	}
	defer rows.Close()

	var out []arena.Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQL) Upsert(ctx context.Context, c arena.Config) (arena.Config, error) {
	a, err := json.Marshal(c.TeamA)
	if err != nil {
		return arena.Config{}, fmt.Errorf("arena repo.Upsert: marshal team_a: %w", err)
	}
	b, err := json.Marshal(c.TeamB)
	if err != nil {
		return arena.Config{}, fmt.Errorf("arena repo.Upsert: marshal team_b: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO arena_configs (date, team_a, team_b, created_ms, updated_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE SET
		    team_a = excluded.team_a,
		    team_b = excluded.team_b,
		    updated_ms = excluded.updated_ms`),
		c.Date, string(a), string(b), c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return arena.Config{}, fmt.Errorf("arena repo.Upsert: %w", err)
	}
	return s.Get(ctx, c.Date)
}

func (s *SQL) Delete(ctx context.Context, date string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM arena_configs WHERE date = ?`), date)
	if err != nil {
		return fmt.Errorf("arena repo.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("arena repo.Delete: %w", err)
	}
	if n == 0 {
		return arena.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (arena.Config, error) {
	var (
		c                arena.Config
		teamA, teamB     string
		created, updated int64
	)
	if err := row.Scan(&c.Date, &teamA, &teamB, &created, &updated); err != nil {
		return arena.Config{}, err
	}
	if err := json.Unmarshal([]byte(teamA), &c.TeamA); err != nil {
		return arena.Config{}, fmt.Errorf("arena repo: team_a: %w", err)
	}
	if err := json.Unmarshal([]byte(teamB), &c.TeamB); err != nil {
		return arena.Config{}, fmt.Errorf("arena repo: team_b: %w", err)
	}
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return c, nil
}
