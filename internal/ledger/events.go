package ledger

import (
	"context"
	"time"
)

// EventKind identifica a transição confirmada
type EventKind string

const (
	EventRoundOpened   EventKind = "round_opened"
	EventStakePlaced   EventKind = "stake_placed"
	EventRoundSettled  EventKind = "round_settled"
	EventRewardClaimed EventKind = "reward_claimed"
)

// Event descreve uma transição já confirmada no Store.
// Round é o snapshot da rodada após o commit.
type Event struct {
	Kind   EventKind
	Round  Round
	Stake  Stake // preenchido para stake_placed e reward_claimed
	Amount uint64
	Caller Identity
	At     time.Time
}

// Listener recebe eventos depois do commit; nunca participa da transação
type Listener interface {
	OnEvent(ctx context.Context, ev Event)
}

// ListenerFunc adapta uma função para Listener
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) { f(ctx, ev) }

// OpObserver é chamado ao fim de cada operação (métricas)
type OpObserver func(op string, err error, elapsed time.Duration)
