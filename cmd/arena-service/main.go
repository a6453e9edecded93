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

	"github.com/radieske/arena-escrow/internal/arena"
	httpapi "github.com/radieske/arena-escrow/internal/arena-service/http"
	"github.com/radieske/arena-escrow/internal/arena-service/ws"
	"github.com/radieske/arena-escrow/internal/bootstrap"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/config"
	"github.com/radieske/arena-escrow/internal/shared/logger"
	"github.com/radieske/arena-escrow/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "arena-service"
	}

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer stores.Close()

	fanout, err := bootstrap.OpenFanout(cfg, log)
	if err != nil {
		log.Fatal("failed to open event fanout", zap.Error(err))
	}
	defer fanout.Close()

	// ledger com métricas e listeners pós-commit
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

	catalog := arena.NewCatalog(stores.Arena, log, time.Now)

	apiOpts := []httpapi.Option{httpapi.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst)}
	if fanout.Redis != nil {
		// POC: aceita qualquer origem, como o simulador
		hub := ws.NewHub(func(r *http.Request) bool { return true }, log)
		if err := ws.StartRedisSubscriber(ctx, fanout.Redis, cfg.RedisPubSubChannel, hub, log); err != nil {
			log.Fatal("failed to subscribe round updates", zap.Error(err))
		}
		apiOpts = append(apiOpts, httpapi.WithCache(fanout.Cache), httpapi.WithHub(hub))
	}
	api := httpapi.NewServer(log, l, catalog, apiOpts...)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.NewMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := stores.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if err := fanout.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiSrv, metricsSrv} {
		srv := srv
		g.Go(func() error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(apiSrv.Shutdown(sctx), metricsSrv.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
	}
}
