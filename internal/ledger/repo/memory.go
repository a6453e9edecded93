package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/arena-escrow/internal/ledger"
)

type stakeKey struct {
	topic string
	user  ledger.Identity
}

// Memory implementa ledger.Store em memória.
// Transações são serializadas por um único mutex e desfeitas via log de undo.
type Memory struct {
	mu       sync.Mutex
	rounds   map[string]ledger.Round
	stakes   map[stakeKey]ledger.Stake
	balances map[ledger.Account]uint64
	entries  []ledger.Entry
}

// NewMemory cria um store vazio
func NewMemory() *Memory {
	return &Memory{
		rounds:   make(map[string]ledger.Round),
		stakes:   make(map[stakeKey]ledger.Stake),
		balances: make(map[ledger.Account]uint64),
	}
}

// InTx executa fn com acesso exclusivo; em erro aplica o undo em ordem reversa
func (m *Memory) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (m *Memory) Round(_ context.Context, topic string) (ledger.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[topic]
	if !ok {
		return ledger.Round{}, ledger.ErrRoundNotFound
	}
	return r, nil
}

func (m *Memory) Rounds(_ context.Context, f ledger.RoundFilter) ([]ledger.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Round
	for _, r := range m.rounds {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.DueBefore.IsZero() && r.Deadline.After(f.DueBefore) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Topic < out[j].Topic
		}
		return out[i].Deadline.After(out[j].Deadline)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Stake(_ context.Context, topic string, user ledger.Identity) (ledger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stakes[stakeKey{topic, user}]
	if !ok {
		return ledger.Stake{}, ledger.ErrNoSuchStake
	}
	return s, nil
}

func (m *Memory) Stakes(_ context.Context, topic string) ([]ledger.Stake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Stake
	for k, s := range m.stakes {
		if k.topic == topic {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (m *Memory) Balance(_ context.Context, acc ledger.Account) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[acc], nil
}

func (m *Memory) Entries(_ context.Context, acc ledger.Account, limit int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Account != acc {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// memTx opera direto nos mapas do Memory (mutex já adquirido) e registra o undo
type memTx struct {
	m    *Memory
	undo []func()
}

func (t *memTx) LockRound(_ context.Context, topic string) (ledger.Round, error) {
	r, ok := t.m.rounds[topic]
	if !ok {
		return ledger.Round{}, ledger.ErrRoundNotFound
	}
	return r, nil
}

func (t *memTx) InsertRound(_ context.Context, r ledger.Round) error {
	if _, ok := t.m.rounds[r.Topic]; ok {
		return ledger.ErrRoundAlreadyExists
	}
	t.m.rounds[r.Topic] = r
	t.undo = append(t.undo, func() { delete(t.m.rounds, r.Topic) })
	return nil
}

func (t *memTx) IncrementPool(_ context.Context, topic string, side ledger.Side, amount uint64) error {
	r, ok := t.m.rounds[topic]
	if !ok {
		return ledger.ErrRoundNotFound
	}
	if r.Status != ledger.StatusOpen {
		return ledger.ErrRoundClosed
	}
	prev := r
	switch side {
	case ledger.SideA:
		r.PoolA += amount
	case ledger.SideB:
		r.PoolB += amount
	default:
		return ledger.ErrInvalidSide
	}
	r.Version++
	t.m.rounds[topic] = r
	t.undo = append(t.undo, func() { t.m.rounds[topic] = prev })
	return nil
}

func (t *memTx) SettleRound(_ context.Context, r ledger.Round) error {
	prev, ok := t.m.rounds[r.Topic]
	if !ok {
		return ledger.ErrRoundNotFound
	}
	if prev.Status != ledger.StatusOpen {
		return ledger.ErrAlreadySettled
	}
	cur := prev
	cur.Status = r.Status
	cur.Winner = r.Winner
	cur.FeePaid = r.FeePaid
	cur.SettledAt = r.SettledAt
	cur.SettledBy = r.SettledBy
	cur.Version = prev.Version + 1
	t.m.rounds[r.Topic] = cur
	t.undo = append(t.undo, func() { t.m.rounds[r.Topic] = prev })
	return nil
}

func (t *memTx) GetStake(_ context.Context, topic string, user ledger.Identity) (ledger.Stake, error) {
	s, ok := t.m.stakes[stakeKey{topic, user}]
	if !ok {
		return ledger.Stake{}, ledger.ErrNoSuchStake
	}
	return s, nil
}

func (t *memTx) InsertStake(_ context.Context, s ledger.Stake) error {
	k := stakeKey{s.Topic, s.User}
	if _, ok := t.m.stakes[k]; ok {
		return ledger.ErrDuplicateStake
	}
	t.m.stakes[k] = s
	t.undo = append(t.undo, func() { delete(t.m.stakes, k) })
	return nil
}

func (t *memTx) MarkClaimed(_ context.Context, s ledger.Stake) error {
	k := stakeKey{s.Topic, s.User}
	prev, ok := t.m.stakes[k]
	if !ok {
		return ledger.ErrNoSuchStake
	}
	if prev.Claimed {
		return ledger.ErrAlreadyClaimed
	}
	cur := prev
	cur.Claimed = true
	cur.Reward = s.Reward
	cur.ClaimedAt = s.ClaimedAt
	t.m.stakes[k] = cur
	t.undo = append(t.undo, func() { t.m.stakes[k] = prev })
	return nil
}

func (t *memTx) Credit(_ context.Context, acc ledger.Account, amount uint64, ref string, at time.Time) error {
	prev := t.m.balances[acc]
	t.m.balances[acc] = prev + amount
	t.appendEntry(acc, ledger.OpCredit, amount, ref, at)
	t.undo = append(t.undo, func() { t.m.balances[acc] = prev })
	return nil
}

func (t *memTx) Debit(_ context.Context, acc ledger.Account, amount uint64, ref string, at time.Time) error {
	prev := t.m.balances[acc]
	if prev < amount {
		return ledger.ErrInsufficientFunds
	}
	t.m.balances[acc] = prev - amount
	t.appendEntry(acc, ledger.OpDebit, amount, ref, at)
	t.undo = append(t.undo, func() { t.m.balances[acc] = prev })
	return nil
}

func (t *memTx) Balance(_ context.Context, acc ledger.Account) (uint64, error) {
	return t.m.balances[acc], nil
}

func (t *memTx) appendEntry(acc ledger.Account, op string, amount uint64, ref string, at time.Time) {
	n := len(t.m.entries)
	t.m.entries = append(t.m.entries, ledger.Entry{
		ID:        uuid.NewString(),
		Account:   acc,
		Op:        op,
		Amount:    amount,
		Ref:       ref,
		CreatedAt: at,
	})
	t.undo = append(t.undo, func() { t.m.entries = t.m.entries[:n] })
}
