package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/arena-escrow/internal/bootstrap"
	"github.com/radieske/arena-escrow/internal/keeper"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/config"
	"github.com/radieske/arena-escrow/internal/shared/logger"
	"github.com/radieske/arena-escrow/internal/shared/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-keeper"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if cfg.StoreDriver == "memory" {
		log.Fatal("settlement-keeper needs a shared store (postgres or sqlite)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer stores.Close()

	// o keeper publica as liquidações nos mesmos destinos da API
	fanout, err := bootstrap.OpenFanout(cfg, log)
	if err != nil {
		log.Fatal("failed to open event fanout", zap.Error(err))
	}
	defer fanout.Close()

	lm := metrics.NewLedger(nil)
	opts := []ledger.Option{ledger.WithLogger(log), ledger.WithOpObserver(lm.Observe)}
	for _, li := range fanout.Listeners {
		opts = append(opts, ledger.WithListener(li))
	}
	l, err := ledger.New(stores.Ledger, ledger.Config{
		Authority:    ledger.Identity(cfg.Authority),
		FeeRecipient: ledger.Identity(cfg.FeeRecipient),
		FeeBps:       cfg.FeeBps,
	}, opts...)
	if err != nil {
		log.Fatal("invalid ledger config", zap.Error(err))
	}

	k := keeper.New(l, keeper.Config{
		Interval:      cfg.KeeperInterval,
		Identity:      ledger.Identity(cfg.KeeperIdentity),
		Authority:     ledger.Identity(cfg.Authority),
		AutoOpen:      cfg.KeeperAutoOpen,
		RoundDuration: cfg.RoundDuration,
	}, log, metrics.NewKeeper(nil))

	metricsSrv := metrics.NewMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return errors.Join(stores.Ping(ctx), fanout.Ping(ctx))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return k.Run(gctx) })
	g.Go(func() error {
		log.Info("metrics/health server starting", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("keeper stopped with error", zap.Error(err))
	}
}
