package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/ledger/repo"
	"github.com/radieske/arena-escrow/internal/shared/db"
)

const (
	authority = ledger.Identity("admin")
	treasury  = ledger.Identity("treasury")
	topic     = "arena-2026-01-22"
)

var t0 = time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	ledger *ledger.Ledger
	store  ledger.Store
	clock  *fakeClock
	events []ledger.Event
	mu     sync.Mutex
}

func (f *fixture) recorded() []ledger.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Event(nil), f.events...)
}

// stores devolve os stores sobre os quais cada cenário roda
func stores(t *testing.T) map[string]func(t *testing.T) ledger.Store {
	return map[string]func(t *testing.T) ledger.Store{
		"memory": func(t *testing.T) ledger.Store { return repo.NewMemory() },
		"sqlite": func(t *testing.T) ledger.Store {
			conn, err := db.ConnectSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { conn.Close() })
			s := repo.NewSQL(conn, db.SQLite)
			require.NoError(t, s.Migrate(context.Background()))
			return s
		},
	}
}

func newFixture(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	f := &fixture{store: store, clock: &fakeClock{now: t0}}
	l, err := ledger.New(store, ledger.Config{Authority: authority, FeeRecipient: treasury, FeeBps: ledger.DefaultFeeBps},
		ledger.WithClock(f.clock.Now),
		ledger.WithListener(ledger.ListenerFunc(func(_ context.Context, ev ledger.Event) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		})),
	)
	require.NoError(t, err)
	f.ledger = l
	return f
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	_, err := f.ledger.OpenRound(context.Background(), authority, topic, t0.Add(time.Hour))
	require.NoError(t, err)
}

func (f *fixture) fund(t *testing.T, user ledger.Identity, amount uint64) {
	t.Helper()
	_, err := f.ledger.Deposit(context.Background(), user, amount, "test")
	require.NoError(t, err)
}

func (f *fixture) vault(t *testing.T) uint64 {
	t.Helper()
	v, err := f.ledger.VaultBalance(context.Background(), topic)
	require.NoError(t, err)
	return v
}

func (f *fixture) balance(t *testing.T, user ledger.Identity) uint64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), user)
	require.NoError(t, err)
	return b
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t, mk(t)))
		})
	}
}

func TestLedger_ReferenceScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "user1", 100)
		f.fund(t, "user2", 80)

		_, err := f.ledger.PlaceStake(ctx, topic, "user1", ledger.SideA, 100)
		require.NoError(t, err)
		_, err = f.ledger.PlaceStake(ctx, topic, "user2", ledger.SideB, 50)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), f.vault(t))

		f.clock.Set(t0.Add(time.Hour + time.Second))
		r, err := f.ledger.SettleAutomatic(ctx, topic, "passer-by")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusSettled, r.Status)
		assert.Equal(t, ledger.SideA, r.Winner)
		assert.Equal(t, uint64(7), r.FeePaid)
		assert.Equal(t, ledger.Identity("passer-by"), r.SettledBy)
		assert.Equal(t, uint64(143), f.vault(t))
		assert.Equal(t, uint64(7), f.balance(t, treasury))

		reward, err := f.ledger.ClaimReward(ctx, topic, "user1")
		require.NoError(t, err)
		assert.Equal(t, uint64(143), reward)
		assert.Equal(t, uint64(0), f.vault(t))
		assert.Equal(t, uint64(143), f.balance(t, "user1"))

		st, err := f.ledger.Stake(ctx, topic, "user1")
		require.NoError(t, err)
		assert.True(t, st.Claimed)
		assert.Equal(t, uint64(143), st.Reward)

		_, err = f.ledger.ClaimReward(ctx, topic, "user2")
		assert.ErrorIs(t, err, ledger.ErrNotWinner)
		assert.Equal(t, uint64(30), f.balance(t, "user2"))
	})
}

func TestLedger_TieFavorsB(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "alice", 100)
		f.fund(t, "bob", 100)
		_, err := f.ledger.PlaceStake(ctx, topic, "alice", ledger.SideA, 100)
		require.NoError(t, err)
		_, err = f.ledger.PlaceStake(ctx, topic, "bob", ledger.SideB, 100)
		require.NoError(t, err)

		r, err := f.ledger.SettleByAuthority(ctx, topic, authority)
		require.NoError(t, err)
		assert.Equal(t, ledger.SideB, r.Winner)
		assert.Equal(t, uint64(10), r.FeePaid)

		reward, err := f.ledger.ClaimReward(ctx, topic, "bob")
		require.NoError(t, err)
		assert.Equal(t, uint64(190), reward)

		_, err = f.ledger.ClaimReward(ctx, topic, "alice")
		assert.ErrorIs(t, err, ledger.ErrNotWinner)
	})
}

func TestLedger_AuthorityMaySettleBeforeDeadline(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)

		_, err := f.ledger.SettleAutomatic(ctx, topic, "anyone")
		assert.ErrorIs(t, err, ledger.ErrNotEnded)

		_, err = f.ledger.SettleByAuthority(ctx, topic, "mallory")
		assert.ErrorIs(t, err, ledger.ErrUnauthorized)

		// a autoridade pode encerrar antes do prazo; o caminho automático não
		r, err := f.ledger.SettleByAuthority(ctx, topic, authority)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusSettled, r.Status)
		assert.True(t, r.SettledAt.Before(r.Deadline))

		_, err = f.ledger.SettleAutomatic(ctx, topic, "anyone")
		assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	})
}

func TestLedger_SettlementIsExactlyOnce(t *testing.T) {
	combos := []struct {
		name          string
		first, second func(l *ledger.Ledger) error
	}{
		{"authority then automatic",
			func(l *ledger.Ledger) error {
				_, err := l.SettleByAuthority(context.Background(), topic, authority)
				return err
			},
			func(l *ledger.Ledger) error {
				_, err := l.SettleAutomatic(context.Background(), topic, "x")
				return err
			}},
		{"automatic then authority",
			func(l *ledger.Ledger) error {
				_, err := l.SettleAutomatic(context.Background(), topic, "x")
				return err
			},
			func(l *ledger.Ledger) error {
				_, err := l.SettleByAuthority(context.Background(), topic, authority)
				return err
			}},
		{"automatic twice",
			func(l *ledger.Ledger) error {
				_, err := l.SettleAutomatic(context.Background(), topic, "x")
				return err
			},
			func(l *ledger.Ledger) error {
				_, err := l.SettleAutomatic(context.Background(), topic, "y")
				return err
			}},
		{"authority twice",
			func(l *ledger.Ledger) error {
				_, err := l.SettleByAuthority(context.Background(), topic, authority)
				return err
			},
			func(l *ledger.Ledger) error {
				_, err := l.SettleByAuthority(context.Background(), topic, authority)
				return err
			}},
	}
	for _, c := range combos {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t, repo.NewMemory())
			f.open(t)
			f.fund(t, "u", 40)
			_, err := f.ledger.PlaceStake(context.Background(), topic, "u", ledger.SideA, 40)
			require.NoError(t, err)
			f.clock.Set(t0.Add(2 * time.Hour))

			require.NoError(t, c.first(f.ledger))
			assert.ErrorIs(t, c.second(f.ledger), ledger.ErrAlreadySettled)
			assert.Equal(t, uint64(2), f.balance(t, treasury), "fee paid once")
		})
	}
}

func TestLedger_DuplicateStakeLeavesStateUnchanged(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "carol", 500)

		_, err := f.ledger.PlaceStake(ctx, topic, "carol", ledger.SideA, 100)
		require.NoError(t, err)

		_, err = f.ledger.PlaceStake(ctx, topic, "carol", ledger.SideB, 200)
		assert.ErrorIs(t, err, ledger.ErrDuplicateStake)

		r, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), r.PoolA)
		assert.Equal(t, uint64(0), r.PoolB)
		assert.Equal(t, uint64(100), f.vault(t))
		assert.Equal(t, uint64(400), f.balance(t, "carol"))

		st, err := f.ledger.Stake(ctx, topic, "carol")
		require.NoError(t, err)
		assert.Equal(t, ledger.SideA, st.Side)
		assert.Equal(t, uint64(100), st.Amount)
	})
}

func TestLedger_InsufficientFundsIsAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "dave", 10)

		_, err := f.ledger.PlaceStake(ctx, topic, "dave", ledger.SideA, 11)
		assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		_, err = f.ledger.Stake(ctx, topic, "dave")
		assert.ErrorIs(t, err, ledger.ErrNoSuchStake, "no stake recorded")
		r, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), r.Total())
		assert.Equal(t, uint64(0), f.vault(t))
		assert.Equal(t, uint64(10), f.balance(t, "dave"))

		// a falha não consome a chave (round, user)
		_, err = f.ledger.PlaceStake(ctx, topic, "dave", ledger.SideA, 10)
		require.NoError(t, err)
	})
}

func TestLedger_DeadlineEnforcement(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "erin", 100)

		f.clock.Set(t0.Add(time.Hour - time.Millisecond))
		_, err := f.ledger.SettleAutomatic(ctx, topic, "x")
		assert.ErrorIs(t, err, ledger.ErrNotEnded)

		f.clock.Set(t0.Add(time.Hour))
		_, err = f.ledger.PlaceStake(ctx, topic, "erin", ledger.SideA, 5)
		assert.ErrorIs(t, err, ledger.ErrRoundClosed, "staking at the deadline is closed")

		_, err = f.ledger.SettleAutomatic(ctx, topic, "x")
		require.NoError(t, err, "settlement allowed at the deadline")

		f.clock.Set(t0)
		_, err = f.ledger.PlaceStake(ctx, topic, "erin", ledger.SideA, 5)
		assert.ErrorIs(t, err, ledger.ErrRoundClosed, "settled rounds reject stakes")
		assert.Contains(t, err.Error(), "settled")
	})
}

func TestLedger_ClaimGuards(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "fay", 100)
		_, err := f.ledger.PlaceStake(ctx, topic, "fay", ledger.SideB, 100)
		require.NoError(t, err)

		_, err = f.ledger.ClaimReward(ctx, topic, "fay")
		assert.ErrorIs(t, err, ledger.ErrNotSettled)

		_, err = f.ledger.SettleByAuthority(ctx, topic, authority)
		require.NoError(t, err)

		_, err = f.ledger.ClaimReward(ctx, topic, "ghost")
		assert.ErrorIs(t, err, ledger.ErrNoSuchStake)

		reward, err := f.ledger.ClaimReward(ctx, topic, "fay")
		require.NoError(t, err)
		assert.Equal(t, uint64(95), reward)

		_, err = f.ledger.ClaimReward(ctx, topic, "fay")
		assert.ErrorIs(t, err, ledger.ErrAlreadyClaimed)
		assert.Equal(t, uint64(95), f.balance(t, "fay"))
		assert.Equal(t, uint64(0), f.vault(t))

		_, err = f.ledger.ClaimReward(ctx, "nope", "fay")
		assert.ErrorIs(t, err, ledger.ErrRoundNotFound)
	})
}

func TestLedger_OpenRoundGuards(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		deadline := t0.Add(time.Hour)

		_, err := f.ledger.OpenRound(ctx, "mallory", topic, deadline)
		assert.ErrorIs(t, err, ledger.ErrUnauthorized)

		_, err = f.ledger.OpenRound(ctx, authority, "", deadline)
		assert.ErrorIs(t, err, ledger.ErrInvalidTopic)

		_, err = f.ledger.OpenRound(ctx, authority, string(make([]byte, ledger.MaxTopicLen+1)), deadline)
		assert.ErrorIs(t, err, ledger.ErrInvalidTopic)

		_, err = f.ledger.OpenRound(ctx, authority, topic, t0)
		assert.ErrorIs(t, err, ledger.ErrInvalidDeadline)

		r, err := f.ledger.OpenRound(ctx, authority, topic, deadline)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusOpen, r.Status)
		assert.Equal(t, ledger.SideNone, r.Winner)
		assert.Equal(t, treasury, r.FeeRecipient)
		assert.Equal(t, ledger.DefaultFeeBps, r.FeeBps)

		_, err = f.ledger.OpenRound(ctx, authority, topic, deadline.Add(time.Hour))
		assert.ErrorIs(t, err, ledger.ErrRoundAlreadyExists)

		got, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.True(t, got.Deadline.Equal(deadline), "collision does not overwrite")
		assert.Equal(t, uint64(0), f.vault(t))

		_, err = f.ledger.Round(ctx, "missing")
		assert.ErrorIs(t, err, ledger.ErrRoundNotFound)
	})
}

func TestLedger_StakeValidation(t *testing.T) {
	f := newFixture(t, repo.NewMemory())
	ctx := context.Background()
	f.open(t)
	f.fund(t, "gus", 10)

	_, err := f.ledger.PlaceStake(ctx, topic, "gus", ledger.SideA, 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = f.ledger.PlaceStake(ctx, topic, "gus", ledger.Side("C"), 1)
	assert.ErrorIs(t, err, ledger.ErrInvalidSide)
	_, err = f.ledger.PlaceStake(ctx, "missing", "gus", ledger.SideA, 1)
	assert.ErrorIs(t, err, ledger.ErrRoundNotFound)
	_, err = f.ledger.PlaceStake(ctx, topic, "", ledger.SideA, 1)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
}

func TestLedger_ConservationWithManyWinners(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)

		winners := []uint64{7, 13, 29, 31, 3}
		var poolA uint64
		for i, amt := range winners {
			u := ledger.Identity(fmt.Sprintf("w%d", i))
			f.fund(t, u, amt)
			_, err := f.ledger.PlaceStake(ctx, topic, u, ledger.SideA, amt)
			require.NoError(t, err)
			poolA += amt
		}
		f.fund(t, "loser", 50)
		_, err := f.ledger.PlaceStake(ctx, topic, "loser", ledger.SideB, 50)
		require.NoError(t, err)

		r, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, r.Total(), f.vault(t), "pools match vault before settlement")

		f.clock.Set(t0.Add(2 * time.Hour))
		r, err = f.ledger.SettleAutomatic(ctx, topic, "keeper")
		require.NoError(t, err)
		require.Equal(t, ledger.SideA, r.Winner)
		assert.Equal(t, r.Total()-r.FeePaid, f.vault(t))

		var paid uint64
		for i := range winners {
			reward, err := f.ledger.ClaimReward(ctx, topic, ledger.Identity(fmt.Sprintf("w%d", i)))
			require.NoError(t, err)
			assert.Positive(t, reward)
			paid += reward
		}
		dust := f.vault(t)
		assert.Equal(t, r.Total()-r.FeePaid-paid, dust)
		assert.Less(t, dust, uint64(len(winners)))
	})
}

func TestLedger_ConcurrentSameUserStakes(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "hal", 1000)

		const n = 25
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.ledger.PlaceStake(ctx, topic, "hal", ledger.SideA, 10)
			}(i)
		}
		wg.Wait()

		ok, dup := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrDuplicateStake):
				dup++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, dup)
		assert.Equal(t, uint64(10), f.vault(t))
		assert.Equal(t, uint64(990), f.balance(t, "hal"))
	})
}

func TestLedger_ConcurrentDistinctUsersNoLostUpdates(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)

		const n = 40
		for i := 0; i < n; i++ {
			f.fund(t, ledger.Identity(fmt.Sprintf("p%d", i)), 10)
		}
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				side := ledger.SideA
				if i%2 == 1 {
					side = ledger.SideB
				}
				_, err := f.ledger.PlaceStake(ctx, topic, ledger.Identity(fmt.Sprintf("p%d", i)), side, uint64(i+1))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		var wantA, wantB uint64
		for i := 0; i < n; i++ {
			if i%2 == 1 {
				wantB += uint64(i + 1)
			} else {
				wantA += uint64(i + 1)
			}
		}
		r, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, wantA, r.PoolA)
		assert.Equal(t, wantB, r.PoolB)
		assert.Equal(t, wantA+wantB, f.vault(t))

		stakes, err := f.ledger.Stakes(ctx, topic)
		require.NoError(t, err)
		assert.Len(t, stakes, n)
	})
}

func TestLedger_ConcurrentSettleAndClaim(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "ivy", 100)
		f.fund(t, "jon", 60)
		_, err := f.ledger.PlaceStake(ctx, topic, "ivy", ledger.SideA, 100)
		require.NoError(t, err)
		_, err = f.ledger.PlaceStake(ctx, topic, "jon", ledger.SideB, 60)
		require.NoError(t, err)
		f.clock.Set(t0.Add(2 * time.Hour))

		const n = 10
		var wg sync.WaitGroup
		settleErrs := make([]error, 2*n)
		for i := 0; i < n; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				_, settleErrs[2*i] = f.ledger.SettleAutomatic(ctx, topic, "bot")
			}(i)
			go func(i int) {
				defer wg.Done()
				_, settleErrs[2*i+1] = f.ledger.SettleByAuthority(ctx, topic, authority)
			}(i)
		}
		wg.Wait()
		assertExactlyOne(t, settleErrs, ledger.ErrAlreadySettled)
		assert.Equal(t, uint64(8), f.balance(t, treasury))

		claimErrs := make([]error, n)
		rewards := make([]uint64, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rewards[i], claimErrs[i] = f.ledger.ClaimReward(ctx, topic, "ivy")
			}(i)
		}
		wg.Wait()
		assertExactlyOne(t, claimErrs, ledger.ErrAlreadyClaimed)

		var total uint64
		for _, r := range rewards {
			total += r
		}
		assert.Equal(t, uint64(152), total)
		assert.Equal(t, uint64(152), f.balance(t, "ivy"))
		assert.Equal(t, uint64(0), f.vault(t))
	})
}

func assertExactlyOne(t *testing.T, errs []error, loser error) {
	t.Helper()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, loser)
	}
	assert.Equal(t, 1, ok)
}

func TestLedger_ListenerSeesOnlyCommittedTransitions(t *testing.T) {
	f := newFixture(t, repo.NewMemory())
	ctx := context.Background()
	f.open(t)
	f.fund(t, "kim", 5)

	_, err := f.ledger.PlaceStake(ctx, topic, "kim", ledger.SideA, 50)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	_, err = f.ledger.PlaceStake(ctx, topic, "kim", ledger.SideA, 5)
	require.NoError(t, err)
	_, err = f.ledger.SettleByAuthority(ctx, topic, authority)
	require.NoError(t, err)
	_, err = f.ledger.ClaimReward(ctx, topic, "kim")
	require.NoError(t, err)

	evs := f.recorded()
	require.Len(t, evs, 4)
	assert.Equal(t, ledger.EventRoundOpened, evs[0].Kind)
	assert.Equal(t, ledger.EventStakePlaced, evs[1].Kind)
	assert.Equal(t, uint64(5), evs[1].Round.PoolA)
	assert.Equal(t, ledger.Identity("kim"), evs[1].Stake.User)
	assert.Equal(t, ledger.EventRoundSettled, evs[2].Kind)
	assert.Equal(t, ledger.SideA, evs[2].Round.Winner)
	assert.Equal(t, ledger.EventRewardClaimed, evs[3].Kind)
	assert.Equal(t, uint64(5), evs[3].Amount)
}

func TestLedger_OpObserver(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	l, err := ledger.New(repo.NewMemory(), ledger.Config{Authority: authority},
		ledger.WithOpObserver(func(op string, err error, _ time.Duration) {
			mu.Lock()
			seen[op] = ledger.Kind(err)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	_, err = l.OpenRound(context.Background(), "mallory", topic, time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, "unauthorized", seen["open_round"])

	_, err = l.OpenRound(context.Background(), authority, topic, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "ok", seen["open_round"])
	assert.Equal(t, authority, l.Config().FeeRecipient, "fee recipient defaults to the authority")
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := ledger.New(repo.NewMemory(), ledger.Config{})
	assert.Error(t, err)
	_, err = ledger.New(repo.NewMemory(), ledger.Config{Authority: authority, FeeBps: 10_001})
	assert.Error(t, err)
	_, err = ledger.New(nil, ledger.Config{Authority: authority})
	assert.Error(t, err)
}

func TestParseSide(t *testing.T) {
	s, err := ledger.ParseSide("a")
	require.NoError(t, err)
	assert.Equal(t, ledger.SideA, s)
	s, err = ledger.ParseSide("team_b")
	require.NoError(t, err)
	assert.Equal(t, ledger.SideB, s)
	_, err = ledger.ParseSide("draw")
	assert.ErrorIs(t, err, ledger.ErrInvalidSide)
}

func TestLedger_ZeroFeeKeepsWholePot(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: t0}
			l, err := ledger.New(mk(t), ledger.Config{Authority: authority, FeeRecipient: treasury, FeeBps: 0},
				ledger.WithClock(clock.Now))
			require.NoError(t, err)
			assert.Equal(t, uint64(0), l.Config().FeeBps)

			_, err = l.OpenRound(ctx, authority, topic, t0.Add(time.Hour))
			require.NoError(t, err)
			_, err = l.Deposit(ctx, "ana", 1000, "")
			require.NoError(t, err)
			_, err = l.PlaceStake(ctx, topic, "ana", ledger.SideA, 1000)
			require.NoError(t, err)

			r, err := l.SettleByAuthority(ctx, topic, authority)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), r.FeePaid)
			vault, err := l.VaultBalance(ctx, topic)
			require.NoError(t, err)
			assert.Equal(t, uint64(1000), vault)
			fees, err := l.Balance(ctx, treasury)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), fees)

			reward, err := l.ClaimReward(ctx, topic, "ana")
			require.NoError(t, err)
			assert.Equal(t, uint64(1000), reward)
		})
	}
}

func TestLedger_RoundVersionFollowsTransitions(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.open(t)
		f.fund(t, "ana", 10)
		f.fund(t, "rui", 10)
		_, err := f.ledger.PlaceStake(ctx, topic, "ana", ledger.SideA, 10)
		require.NoError(t, err)
		_, err = f.ledger.PlaceStake(ctx, topic, "rui", ledger.SideB, 5)
		require.NoError(t, err)
		_, err = f.ledger.SettleByAuthority(ctx, topic, authority)
		require.NoError(t, err)
		_, err = f.ledger.ClaimReward(ctx, topic, "ana")
		require.NoError(t, err)

		var versions []uint64
		for _, ev := range f.recorded() {
			versions = append(versions, ev.Round.Version)
		}
		assert.Equal(t, []uint64{1, 2, 3, 4, 4}, versions, "claim does not change the round")

		r, err := f.ledger.Round(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), r.Version, "stored version matches the last event")
	})
}

// raceOnCredit simula outra sessão que confirma um depósito entre a leitura
// do saldo e o crédito desta transação
type raceOnCredit struct {
	ledger.Store
	other uint64
}

func (s raceOnCredit) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(tx ledger.Tx) error {
		return fn(&racyTx{Tx: tx, other: s.other})
	})
}

type racyTx struct {
	ledger.Tx
	other uint64
	done  bool
}

func (t *racyTx) Credit(ctx context.Context, acc ledger.Account, amount uint64, ref string, at time.Time) error {
	if !t.done {
		t.done = true
		if err := t.Tx.Credit(ctx, acc, t.other, "deposit:other-session", at); err != nil {
			return err
		}
	}
	return t.Tx.Credit(ctx, acc, amount, ref, at)
}

func TestLedger_DepositReturnsBalanceAfterCredit(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	l, err := ledger.New(raceOnCredit{Store: store, other: 30}, ledger.Config{Authority: authority})
	require.NoError(t, err)

	bal, err := l.Deposit(ctx, "ana", 100, "pix-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(130), bal)

	stored, err := store.Balance(ctx, ledger.WalletAccount("ana"))
	require.NoError(t, err)
	assert.Equal(t, stored, bal)
}

func TestLedger_DepositOverflow(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.fund(t, "ana", ledger.MaxAmount-1)
		_, err := f.ledger.Deposit(context.Background(), "ana", 2, "")
		assert.ErrorIs(t, err, ledger.ErrAmountOverflow)
		assert.Equal(t, ledger.MaxAmount-1, f.balance(t, "ana"))
	})
}
