// Package bootstrap monta as dependências compartilhadas pelos binários:
// stores, Redis e Kafka a partir da config.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	arenarepo "github.com/radieske/arena-escrow/internal/arena/repo"
	"github.com/radieske/arena-escrow/internal/ledger"
	ledgerrepo "github.com/radieske/arena-escrow/internal/ledger/repo"
	"github.com/radieske/arena-escrow/internal/shared/config"
	"github.com/radieske/arena-escrow/internal/shared/db"
)

// Stores agrupa os stores do ledger e do catálogo sobre a mesma conexão
type Stores struct {
	Ledger ledger.Store
	Arena  arena.Store
	conn   *sql.DB
}

// OpenStores conecta no driver configurado e aplica as migrações.
// Com STORE_DRIVER=memory nada é persistido.
func OpenStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*Stores, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, state is lost on restart")
		return &Stores{Ledger: ledgerrepo.NewMemory(), Arena: arenarepo.NewMemory()}, nil
	}

	conn, dialect, err := db.Connect(cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.StoreDriver, err)
	}

	ls := ledgerrepo.NewSQL(conn, dialect)
	if err := ls.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	as := arenarepo.NewSQL(conn, dialect)
	if err := as.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate arena: %w", err)
	}

	log.Info("store connected", zap.String("driver", cfg.StoreDriver))
	return &Stores{Ledger: ls, Arena: as, conn: conn}, nil
}

// Ping verifica a conexão (sempre ok no modo memória)
func (s *Stores) Ping(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.PingContext(ctx)
}

func (s *Stores) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
