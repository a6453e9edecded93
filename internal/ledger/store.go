package ledger

import (
	"context"
	"time"
)

// Store persiste rodadas, apostas e contas de custódia.
// InTx executa fn como uma unidade atômica: qualquer erro devolvido por fn
// desfaz todos os efeitos aplicados dentro dela.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Round(ctx context.Context, topic string) (Round, error)
	Rounds(ctx context.Context, f RoundFilter) ([]Round, error)
	Stake(ctx context.Context, topic string, user Identity) (Stake, error)
	Stakes(ctx context.Context, topic string) ([]Stake, error)
	Balance(ctx context.Context, acc Account) (uint64, error)
	Entries(ctx context.Context, acc Account, limit int) ([]Entry, error)
}

// Tx são as operações disponíveis dentro de uma transação do Store.
// LockRound serializa as transações que tocam a mesma rodada.
type Tx interface {
	// LockRound devolve ErrRoundNotFound se o tópico não existir
	LockRound(ctx context.Context, topic string) (Round, error)
	// InsertRound devolve ErrRoundAlreadyExists em colisão de tópico
	InsertRound(ctx context.Context, r Round) error
	// IncrementPool soma amount ao pool do lado em uma rodada ainda OPEN
	IncrementPool(ctx context.Context, topic string, side Side, amount uint64) error
	// SettleRound grava status/winner/fee somente se a rodada ainda estiver OPEN,
	// caso contrário devolve ErrAlreadySettled
	SettleRound(ctx context.Context, r Round) error

	// GetStake devolve ErrNoSuchStake se não houver aposta para (topic, user)
	GetStake(ctx context.Context, topic string, user Identity) (Stake, error)
	// InsertStake devolve ErrDuplicateStake se a chave (topic, user) já existir
	InsertStake(ctx context.Context, s Stake) error
	// MarkClaimed marca a aposta como paga somente se claimed ainda for false,
	// caso contrário devolve ErrAlreadyClaimed
	MarkClaimed(ctx context.Context, s Stake) error

	Credit(ctx context.Context, acc Account, amount uint64, ref string, at time.Time) error
	// Debit devolve ErrInsufficientFunds se o saldo não cobrir amount
	Debit(ctx context.Context, acc Account, amount uint64, ref string, at time.Time) error
	Balance(ctx context.Context, acc Account) (uint64, error)
}
