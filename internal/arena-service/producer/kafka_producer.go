package producer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena-service/dto"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/kafka"
	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

// Writers associa cada tipo de evento ao writer do seu tópico
type Writers struct {
	RoundOpened   kafka.MessageWriter
	StakePlaced   kafka.MessageWriter
	RoundSettled  kafka.MessageWriter
	RewardClaimed kafka.MessageWriter
}

// KafkaPublisher é um ledger.Listener que publica as transições confirmadas.
// A chave da mensagem é o tópico da rodada, mantendo a ordem por rodada na partição.
type KafkaPublisher struct {
	w   Writers
	log *zap.Logger
}

func NewKafkaPublisher(w Writers, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) OnEvent(ctx context.Context, ev ledger.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var (
		w       kafka.MessageWriter
		payload any
	)
	ts := ev.At.UnixMilli()
	snap := dto.Snapshot(ev.Round, ev.At)

	switch ev.Kind {
	case ledger.EventRoundOpened:
		w = p.w.RoundOpened
		payload = events.RoundOpened{Round: snap, OpenedBy: string(ev.Caller), TsUnixMs: ts}
	case ledger.EventStakePlaced:
		w = p.w.StakePlaced
		payload = events.StakePlaced{
			Topic:    ev.Round.Topic,
			UserID:   string(ev.Stake.User),
			Side:     string(ev.Stake.Side),
			Amount:   ev.Stake.Amount,
			PoolA:    ev.Round.PoolA,
			PoolB:    ev.Round.PoolB,
			TsUnixMs: ts,
		}
	case ledger.EventRoundSettled:
		w = p.w.RoundSettled
		payload = events.RoundSettled{
			Round:     snap,
			Winner:    string(ev.Round.Winner),
			FeePaid:   ev.Round.FeePaid,
			SettledBy: string(ev.Round.SettledBy),
			TsUnixMs:  ts,
		}
	case ledger.EventRewardClaimed:
		w = p.w.RewardClaimed
		payload = events.RewardClaimed{
			Topic:    ev.Round.Topic,
			UserID:   string(ev.Stake.User),
			Side:     string(ev.Stake.Side),
			Stake:    ev.Stake.Amount,
			Reward:   ev.Amount,
			TsUnixMs: ts,
		}
	default:
		return
	}
	if w == nil {
		return
	}

	if err := kafka.WriteJSON(ctx, w, ev.Round.Topic, payload); err != nil {
		p.log.Error("failed to publish ledger event", zap.String("kind", string(ev.Kind)), zap.String("topic", ev.Round.Topic), zap.Error(err))
		return
	}
	p.log.Debug("published ledger event", zap.String("kind", string(ev.Kind)), zap.String("topic", ev.Round.Topic))
}
