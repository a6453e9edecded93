package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config define a autoridade do sistema e a taxa de protocolo
type Config struct {
	Authority    Identity // única identidade que pode abrir e forçar a liquidação de rodadas
	FeeRecipient Identity // padrão: Authority
	FeeBps       uint64   // 0 desliga a taxa; o default (DefaultFeeBps) vem do config.Load
}

// Ledger é a máquina de estados de custódia: rodadas, apostas e cofres.
// Cada operação executa como uma única transação no Store.
type Ledger struct {
	store     Store
	cfg       Config
	now       func() time.Time
	log       *zap.Logger
	listeners []Listener
	observe   OpObserver
}

// Option configura o Ledger
type Option func(*Ledger)

// WithClock substitui a fonte de tempo (testes, keeper)
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithLogger define o logger estruturado
func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }

// WithListener registra um listener pós-commit
func WithListener(li Listener) Option {
	return func(l *Ledger) { l.listeners = append(l.listeners, li) }
}

// WithOpObserver registra o callback de métricas por operação
func WithOpObserver(o OpObserver) Option { return func(l *Ledger) { l.observe = o } }

// New valida a configuração e cria o Ledger
func New(store Store, cfg Config, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	if cfg.Authority == "" {
		return nil, errors.New("ledger: authority required")
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = cfg.Authority
	}
	if cfg.FeeBps > BpsDenominator {
		return nil, fmt.Errorf("ledger: fee bps %d above %d", cfg.FeeBps, BpsDenominator)
	}
	l := &Ledger{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Config devolve a configuração efetiva
func (l *Ledger) Config() Config { return l.cfg }

func (l *Ledger) clock() time.Time { return l.now().UTC().Truncate(time.Millisecond) }

// OpenRound cria a rodada do tópico com pools zerados e um cofre vazio
func (l *Ledger) OpenRound(ctx context.Context, caller Identity, topic string, deadline time.Time) (r Round, err error) {
	now := l.clock()
	defer func() {
		l.finish(ctx, "open_round", now, err, Event{Kind: EventRoundOpened, Round: r, Caller: caller, At: now})
	}()

	if err = validateTopic(topic); err != nil {
		return Round{}, err
	}
	if caller != l.cfg.Authority {
		return Round{}, fmt.Errorf("%w: %q cannot open rounds", ErrUnauthorized, caller)
	}
	deadline = deadline.UTC().Truncate(time.Millisecond)
	if !deadline.After(now) {
		return Round{}, fmt.Errorf("%w: deadline %s is not after %s", ErrInvalidDeadline, deadline.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	r = Round{
		Topic:        topic,
		Authority:    caller,
		FeeRecipient: l.cfg.FeeRecipient,
		Deadline:     deadline,
		FeeBps:       l.cfg.FeeBps,
		Status:       StatusOpen,
		Winner:       SideNone,
		CreatedAt:    now,
		Version:      1,
	}
	err = l.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertRound(ctx, r)
	})
	if err != nil {
		return Round{}, err
	}
	return r, nil
}

// PlaceStake transfere amount da carteira do usuário para o cofre, cria a aposta
// e incrementa o pool do lado, tudo na mesma transação
func (l *Ledger) PlaceStake(ctx context.Context, topic string, user Identity, side Side, amount uint64) (s Stake, err error) {
	now := l.clock()
	var snap Round
	defer func() {
		l.finish(ctx, "place_stake", now, err, Event{Kind: EventStakePlaced, Round: snap, Stake: s, Amount: amount, Caller: user, At: now})
	}()

	if user == "" {
		return Stake{}, fmt.Errorf("%w: empty identity", ErrUnauthorized)
	}
	if !side.Valid() {
		return Stake{}, ErrInvalidSide
	}
	if amount == 0 {
		return Stake{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount > MaxAmount {
		return Stake{}, ErrAmountOverflow
	}

	s = Stake{Topic: topic, User: user, Side: side, Amount: amount, CreatedAt: now}
	err = l.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.LockRound(ctx, topic)
		if err != nil {
			return err
		}
		if r.Status != StatusOpen {
			return fmt.Errorf("%w: round %q is settled", ErrRoundClosed, topic)
		}
		if r.Ended(now) {
			return fmt.Errorf("%w: betting on %q ended at %s", ErrRoundClosed, topic, r.Deadline.Format(time.RFC3339))
		}
		if _, ok := addChecked(r.Total(), amount); !ok {
			return ErrAmountOverflow
		}

		if err := tx.InsertStake(ctx, s); err != nil {
			return err
		}
		ref := "stake:" + topic + ":" + string(user)
		if err := tx.Debit(ctx, WalletAccount(user), amount, ref, now); err != nil {
			return err
		}
		if err := tx.Credit(ctx, VaultAccount(topic), amount, ref, now); err != nil {
			return err
		}
		if err := tx.IncrementPool(ctx, topic, side, amount); err != nil {
			return err
		}

		if side == SideA {
			r.PoolA += amount
		} else {
			r.PoolB += amount
		}
		r.Version++
		snap = r
		return nil
	})
	if err != nil {
		return Stake{}, err
	}
	return s, nil
}

// SettleByAuthority liquida a rodada a pedido da autoridade; não exige prazo vencido
func (l *Ledger) SettleByAuthority(ctx context.Context, topic string, caller Identity) (Round, error) {
	return l.settle(ctx, "settle_authority", topic, caller, true)
}

// SettleAutomatic liquida a rodada a pedido de qualquer identidade, desde que o prazo tenha passado
func (l *Ledger) SettleAutomatic(ctx context.Context, topic string, caller Identity) (Round, error) {
	return l.settle(ctx, "settle_automatic", topic, caller, false)
}

func (l *Ledger) settle(ctx context.Context, op, topic string, caller Identity, byAuthority bool) (r Round, err error) {
	now := l.clock()
	defer func() {
		l.finish(ctx, op, now, err, Event{Kind: EventRoundSettled, Round: r, Amount: r.FeePaid, Caller: caller, At: now})
	}()

	err = l.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.LockRound(ctx, topic)
		if err != nil {
			return err
		}
		if byAuthority && caller != cur.Authority {
			return fmt.Errorf("%w: %q is not the round authority", ErrUnauthorized, caller)
		}
		if cur.Status != StatusOpen {
			return ErrAlreadySettled
		}
		if !byAuthority && !cur.Ended(now) {
			return fmt.Errorf("%w: deadline is %s", ErrNotEnded, cur.Deadline.Format(time.RFC3339))
		}

		fee := Fee(cur.Total(), cur.FeeBps)
		if fee > 0 {
			ref := "fee:" + topic
			if err := tx.Debit(ctx, VaultAccount(topic), fee, ref, now); err != nil {
				return err
			}
			if err := tx.Credit(ctx, WalletAccount(cur.FeeRecipient), fee, ref, now); err != nil {
				return err
			}
		}

		cur.Status = StatusSettled
		cur.Winner = Winner(cur.PoolA, cur.PoolB)
		cur.FeePaid = fee
		cur.SettledAt = now
		cur.SettledBy = caller
		cur.Version++
		if err := tx.SettleRound(ctx, cur); err != nil {
			return err
		}
		r = cur
		return nil
	})
	if err != nil {
		return Round{}, err
	}
	return r, nil
}

// ClaimReward paga ao vencedor a sua parte proporcional do cofre, uma única vez
func (l *Ledger) ClaimReward(ctx context.Context, topic string, user Identity) (reward uint64, err error) {
	now := l.clock()
	var snap Round
	var s Stake
	defer func() {
		l.finish(ctx, "claim_reward", now, err, Event{Kind: EventRewardClaimed, Round: snap, Stake: s, Amount: reward, Caller: user, At: now})
	}()

	err = l.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.LockRound(ctx, topic)
		if err != nil {
			return err
		}
		if r.Status != StatusSettled {
			return ErrNotSettled
		}
		st, err := tx.GetStake(ctx, topic, user)
		if err != nil {
			return err
		}
		if st.Side != r.Winner {
			return ErrNotWinner
		}
		if st.Claimed {
			return ErrAlreadyClaimed
		}

		amt := Reward(st.Amount, r.Distributable(), r.Pool(r.Winner))
		if amt > 0 {
			ref := "claim:" + topic + ":" + string(user)
			if err := tx.Debit(ctx, VaultAccount(topic), amt, ref, now); err != nil {
				return err
			}
			if err := tx.Credit(ctx, WalletAccount(user), amt, ref, now); err != nil {
				return err
			}
		}
		st.Claimed = true
		st.Reward = amt
		st.ClaimedAt = now
		if err := tx.MarkClaimed(ctx, st); err != nil {
			return err
		}
		snap, s, reward = r, st, amt
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reward, nil
}

// Deposit credita a carteira do usuário a partir de uma fonte externa
func (l *Ledger) Deposit(ctx context.Context, user Identity, amount uint64, ref string) (balance uint64, err error) {
	now := l.clock()
	defer func() { l.finish(ctx, "deposit", now, err, Event{}) }()

	if user == "" {
		return 0, fmt.Errorf("%w: empty identity", ErrUnauthorized)
	}
	if amount == 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	err = l.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Balance(ctx, WalletAccount(user))
		if err != nil {
			return err
		}
		if _, ok := addChecked(cur, amount); !ok {
			return ErrAmountOverflow
		}
		if err := tx.Credit(ctx, WalletAccount(user), amount, "deposit:"+ref, now); err != nil {
			return err
		}
		// relido após o crédito: inclui depósitos concorrentes confirmados entre a leitura e o UPDATE
		after, err := tx.Balance(ctx, WalletAccount(user))
		if err != nil {
			return err
		}
		if after > MaxAmount || after < amount {
			return ErrAmountOverflow
		}
		balance = after
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Round devolve o snapshot atual da rodada
func (l *Ledger) Round(ctx context.Context, topic string) (Round, error) {
	return l.store.Round(ctx, topic)
}

// Rounds lista rodadas conforme o filtro
func (l *Ledger) Rounds(ctx context.Context, f RoundFilter) ([]Round, error) {
	return l.store.Rounds(ctx, f)
}

// Stake devolve a aposta do usuário na rodada
func (l *Ledger) Stake(ctx context.Context, topic string, user Identity) (Stake, error) {
	if _, err := l.store.Round(ctx, topic); err != nil {
		return Stake{}, err
	}
	return l.store.Stake(ctx, topic, user)
}

// Stakes lista as apostas de uma rodada
func (l *Ledger) Stakes(ctx context.Context, topic string) ([]Stake, error) {
	return l.store.Stakes(ctx, topic)
}

// Balance devolve o saldo da carteira do usuário
func (l *Ledger) Balance(ctx context.Context, user Identity) (uint64, error) {
	return l.store.Balance(ctx, WalletAccount(user))
}

// VaultBalance devolve o saldo em custódia da rodada
func (l *Ledger) VaultBalance(ctx context.Context, topic string) (uint64, error) {
	if _, err := l.store.Round(ctx, topic); err != nil {
		return 0, err
	}
	return l.store.Balance(ctx, VaultAccount(topic))
}

// Entries lista os últimos movimentos de uma conta
func (l *Ledger) Entries(ctx context.Context, acc Account, limit int) ([]Entry, error) {
	return l.store.Entries(ctx, acc, limit)
}

// finish registra log, métricas e, em caso de sucesso, notifica os listeners
func (l *Ledger) finish(ctx context.Context, op string, start time.Time, err error, ev Event) {
	elapsed := l.now().Sub(start)
	if l.observe != nil {
		l.observe(op, err, elapsed)
	}
	if err != nil {
		l.log.Debug("ledger op rejected", zap.String("op", op), zap.String("kind", Kind(err)), zap.Error(err))
		return
	}
	if ev.Kind == "" {
		return
	}
	l.log.Info("ledger op committed",
		zap.String("op", op),
		zap.String("topic", ev.Round.Topic),
		zap.String("caller", string(ev.Caller)),
		zap.Uint64("amount", ev.Amount),
		zap.Uint64("pool_a", ev.Round.PoolA),
		zap.Uint64("pool_b", ev.Round.PoolB),
	)
	for _, li := range l.listeners {
		li.OnEvent(ctx, ev)
	}
}

func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(topic) > MaxTopicLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, MaxTopicLen)
	}
	return nil
}
