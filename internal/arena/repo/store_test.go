package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/arena/repo"
	"github.com/radieske/arena-escrow/internal/shared/db"
)

func stores(t *testing.T) map[string]arena.Store {
	conn, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	s := repo.NewSQL(conn, db.SQLite)
	require.NoError(t, s.Migrate(context.Background()))

	return map[string]arena.Store{"memory": repo.NewMemory(), "sqlite": s}
}

func TestArenaStore(t *testing.T) {
	created := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "2026-01-22")
			assert.ErrorIs(t, err, arena.ErrNotFound)

			cfg := arena.Default("2026-01-22")
			cfg.TeamA.Memes = []string{"https://img/1.png"}
			cfg.CreatedAt, cfg.UpdatedAt = created, created
			got, err := s.Upsert(ctx, cfg)
			require.NoError(t, err)
			assert.Equal(t, "Red Corner", got.TeamA.Name)
			assert.Equal(t, []string{"https://img/1.png"}, got.TeamA.Memes)

			// upsert mantém created_at e troca o resto
			cfg.TeamB.Name = "Gold Corner"
			cfg.CreatedAt = created.Add(time.Hour)
			cfg.UpdatedAt = created.Add(time.Hour)
			got, err = s.Upsert(ctx, cfg)
			require.NoError(t, err)
			assert.Equal(t, "Gold Corner", got.TeamB.Name)
			assert.True(t, got.CreatedAt.Equal(created))
			assert.True(t, got.UpdatedAt.Equal(created.Add(time.Hour)))

			_, err = s.Upsert(ctx, arena.Default("2026-01-24"))
			require.NoError(t, err)
			_, err = s.Upsert(ctx, arena.Default("2026-01-23"))
			require.NoError(t, err)

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "2026-01-24", all[0].Date)
			assert.Equal(t, "2026-01-22", all[2].Date)

			require.NoError(t, s.Delete(ctx, "2026-01-23"))
			assert.ErrorIs(t, s.Delete(ctx, "2026-01-23"), arena.ErrNotFound)
			all, err = s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}
