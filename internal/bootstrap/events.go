package bootstrap

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rcache "github.com/radieske/arena-escrow/internal/arena-service/cache"
	"github.com/radieske/arena-escrow/internal/arena-service/producer"
	"github.com/radieske/arena-escrow/internal/arena-service/ws"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/cache"
	"github.com/radieske/arena-escrow/internal/shared/config"
	"github.com/radieske/arena-escrow/internal/shared/kafka"
)

// Fanout reúne os destinos dos eventos do ledger: Kafka e o canal Redis dos hubs
type Fanout struct {
	Redis     *redis.Client      // nil quando REDIS_ADDR está vazio
	Cache     *rcache.RoundCache // nil sem Redis
	Listeners []ledger.Listener

	writers []*kafka.Writer
}

// OpenFanout conecta Redis e cria os writers Kafka conforme a config.
// Cada destino é opcional; endereço vazio desliga.
func OpenFanout(cfg config.Config, log *zap.Logger) (*Fanout, error) {
	f := &Fanout{}

	if cfg.RedisAddr != "" {
		rdb, err := cache.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		f.Redis = rdb
		f.Cache = rcache.New(rdb, cfg.RoundCacheTTL)
		f.Listeners = append(f.Listeners, ws.NewNotifier(rdb, cfg.RedisPubSubChannel, f.Cache, log))
		log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		w := producer.Writers{
			RoundOpened:   f.writer(brokers, cfg.TopicRoundOpened),
			StakePlaced:   f.writer(brokers, cfg.TopicStakePlaced),
			RoundSettled:  f.writer(brokers, cfg.TopicRoundSettled),
			RewardClaimed: f.writer(brokers, cfg.TopicRewardClaimed),
		}
		f.Listeners = append(f.Listeners, producer.NewKafkaPublisher(w, log))
		log.Info("kafka writers ready", zap.Strings("brokers", brokers))
	}
	return f, nil
}

func (f *Fanout) writer(brokers []string, topic string) *kafka.Writer {
	w := kafka.NewWriter(brokers, topic)
	f.writers = append(f.writers, w)
	return w
}

// Ping verifica o Redis, quando configurado
func (f *Fanout) Ping(ctx context.Context) error {
	if f.Redis == nil {
		return nil
	}
	return f.Redis.Ping(ctx).Err()
}

func (f *Fanout) Close() error {
	var errs []error
	for _, w := range f.writers {
		errs = append(errs, w.Close())
	}
	if f.Redis != nil {
		errs = append(errs, f.Redis.Close())
	}
	return errors.Join(errs...)
}
