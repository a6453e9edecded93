package keeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/metrics"
)

// Ledger é o subconjunto do ledger usado pelo keeper
type Ledger interface {
	Rounds(ctx context.Context, f ledger.RoundFilter) ([]ledger.Round, error)
	Round(ctx context.Context, topic string) (ledger.Round, error)
	OpenRound(ctx context.Context, caller ledger.Identity, topic string, deadline time.Time) (ledger.Round, error)
	SettleAutomatic(ctx context.Context, topic string, caller ledger.Identity) (ledger.Round, error)
}

type Config struct {
	Interval      time.Duration
	Identity      ledger.Identity // quem assina o SettleAutomatic
	Authority     ledger.Identity // usado apenas para abrir a rodada do dia
	AutoOpen      bool
	RoundDuration time.Duration
	BatchSize     int
}

// Keeper varre rodadas vencidas e chama SettleAutomatic.
// Não tem privilégio: corridas com outro liquidante terminam em AlreadySettled.
type Keeper struct {
	l       Ledger
	cfg     Config
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Keeper
}

func New(l Ledger, cfg Config, log *zap.Logger, m *metrics.Keeper) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Keeper{l: l, cfg: cfg, now: time.Now, log: log, metrics: m}
}

// WithClock troca a fonte de tempo (testes)
func (k *Keeper) WithClock(now func() time.Time) *Keeper {
	k.now = now
	return k
}

// Run executa Tick a cada intervalo até o contexto ser cancelado
func (k *Keeper) Run(ctx context.Context) error {
	k.log.Info("keeper started",
		zap.Duration("interval", k.cfg.Interval),
		zap.String("identity", string(k.cfg.Identity)),
		zap.Bool("auto_open", k.cfg.AutoOpen),
	)
	t := time.NewTicker(k.cfg.Interval)
	defer t.Stop()

	for {
		if _, err := k.Tick(ctx); err != nil && ctx.Err() == nil {
			k.log.Warn("keeper tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			k.log.Info("keeper stopped")
			return nil
		case <-t.C:
		}
	}
}

// Tick abre a rodada do dia (se configurado) e liquida as rodadas vencidas.
// Devolve quantas rodadas este keeper liquidou.
func (k *Keeper) Tick(ctx context.Context) (int, error) {
	if k.metrics != nil {
		k.metrics.Ticks.Inc()
	}
	now := k.now()

	if k.cfg.AutoOpen {
		if err := k.openToday(ctx, now); err != nil {
			k.log.Warn("auto open failed", zap.Error(err))
		}
	}

	due, err := k.l.Rounds(ctx, ledger.RoundFilter{Status: ledger.StatusOpen, DueBefore: now, Limit: k.cfg.BatchSize})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, r := range due {
		res, err := k.l.SettleAutomatic(ctx, r.Topic, k.cfg.Identity)
		result := ledger.Kind(err)
		if k.metrics != nil {
			k.metrics.Settlements.WithLabelValues(result).Inc()
		}
		switch {
		case err == nil:
			settled++
			k.log.Info("round settled",
				zap.String("topic", res.Topic),
				zap.String("winner", string(res.Winner)),
				zap.Uint64("pool_a", res.PoolA),
				zap.Uint64("pool_b", res.PoolB),
				zap.Uint64("fee", res.FeePaid),
			)
		case errors.Is(err, ledger.ErrAlreadySettled), errors.Is(err, ledger.ErrNotEnded):
			// outro liquidante chegou antes, ou o relógio do store ainda não alcançou o prazo
			k.log.Debug("settle skipped", zap.String("topic", r.Topic), zap.String("reason", result))
		default:
			k.log.Error("settle failed", zap.String("topic", r.Topic), zap.Error(err))
		}
	}
	return settled, nil
}

func (k *Keeper) openToday(ctx context.Context, now time.Time) error {
	topic := arena.Topic(now.UTC().Format(arena.DateLayout))
	_, err := k.l.Round(ctx, topic)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ledger.ErrRoundNotFound) {
		return err
	}

	r, err := k.l.OpenRound(ctx, k.cfg.Authority, topic, now.Add(k.cfg.RoundDuration))
	if errors.Is(err, ledger.ErrRoundAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	k.log.Info("daily round opened", zap.String("topic", r.Topic), zap.Time("deadline", r.Deadline))
	return nil
}
