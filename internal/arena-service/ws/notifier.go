package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rcache "github.com/radieske/arena-escrow/internal/arena-service/cache"
	"github.com/radieske/arena-escrow/internal/arena-service/dto"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

// Notifier é um ledger.Listener: a cada transição confirmada atualiza o cache
// da rodada e publica o snapshot no canal Redis lido pelos hubs.
// Listeners rodam fora da transação, então eventos da mesma rodada podem chegar
// fora de ordem; snapshots com versão menor que a do cache não são publicados.
type Notifier struct {
	R       *redis.Client
	Channel string
	Cache   *rcache.RoundCache // opcional
	Log     *zap.Logger
}

func NewNotifier(r *redis.Client, channel string, cache *rcache.RoundCache, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{R: r, Channel: channel, Cache: cache, Log: log}
}

func (n *Notifier) OnEvent(ctx context.Context, ev ledger.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	snap := dto.Snapshot(ev.Round, ev.At)
	if n.Cache != nil {
		stored, err := n.Cache.Set(ctx, snap)
		switch {
		case err != nil:
			// sem cache ainda publica; o hub descarta versões antigas
			n.Log.Warn("round cache refresh failed", zap.String("topic", snap.Topic), zap.Error(err))
		case !stored:
			n.Log.Debug("stale round update dropped",
				zap.String("topic", snap.Topic),
				zap.String("kind", string(ev.Kind)),
				zap.Uint64("version", snap.Version),
			)
			return
		}
	}

	b, err := json.Marshal(events.RoundUpdate{Kind: string(ev.Kind), Round: snap})
	if err != nil {
		n.Log.Error("marshal round update", zap.Error(err))
		return
	}
	if err := n.R.Publish(ctx, n.Channel, b).Err(); err != nil {
		n.Log.Warn("round update publish failed", zap.String("topic", snap.Topic), zap.Error(err))
	}
}
