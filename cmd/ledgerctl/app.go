package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/internal/arena"
	"github.com/radieske/arena-escrow/internal/bootstrap"
	"github.com/radieske/arena-escrow/internal/ledger"
	"github.com/radieske/arena-escrow/internal/shared/config"
	"github.com/radieske/arena-escrow/internal/shared/kafka"
)

// env concentra o que os comandos precisam; open é trocado nos testes
type env struct {
	cfg  config.Config
	log  *zap.Logger
	out  io.Writer
	open func(ctx context.Context, cfg config.Config, log *zap.Logger) (*bootstrap.Stores, error)

	stores *bootstrap.Stores
	fanout *bootstrap.Fanout
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*bootstrap.Stores, error) {
	return bootstrap.OpenStores(ctx, cfg, log)
}

func (e *env) ledger(ctx context.Context) (*ledger.Ledger, error) {
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	// mesmos destinos do serviço: cache, hubs e Kafka veem as operações do CLI
	if e.fanout == nil {
		f, err := bootstrap.OpenFanout(e.cfg, e.log)
		if err != nil {
			return nil, err
		}
		e.fanout = f
	}
	opts := []ledger.Option{ledger.WithLogger(e.log)}
	for _, li := range e.fanout.Listeners {
		opts = append(opts, ledger.WithListener(li))
	}
	return ledger.New(e.stores.Ledger, ledger.Config{
		Authority:    ledger.Identity(e.cfg.Authority),
		FeeRecipient: ledger.Identity(e.cfg.FeeRecipient),
		FeeBps:       e.cfg.FeeBps,
	}, opts...)
}

func (e *env) catalog(ctx context.Context) (*arena.Catalog, error) {
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	return arena.NewCatalog(e.stores.Arena, e.log, time.Now), nil
}

func (e *env) connect(ctx context.Context) error {
	if e.stores != nil {
		return nil
	}
	s, err := e.open(ctx, e.cfg, e.log)
	if err != nil {
		return err
	}
	e.stores = s
	return nil
}

func newApp(e *env) *cli.App {
	app := cli.NewApp()
	app.Name = "ledgerctl"
	app.Usage = "operate arena rounds directly against the configured store"
	app.Writer = e.out
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "identity, i",
			Value: e.cfg.Authority,
			Usage: "caller identity",
		},
	}
	app.After = func(c *cli.Context) error {
		var errs []error
		if e.fanout != nil {
			errs = append(errs, e.fanout.Close())
		}
		if e.stores != nil {
			errs = append(errs, e.stores.Close())
		}
		return errors.Join(errs...)
	}

	app.Commands = []cli.Command{
		{
			Name:  "rounds",
			Usage: "list rounds, newest deadline first",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "status", Usage: "OPEN or SETTLED"},
				cli.IntFlag{Name: "limit", Value: 50},
			},
			Action: e.listRounds,
		},
		{
			Name:      "round",
			Usage:     "show a round and its stakes",
			ArgsUsage: "<topic>",
			Action:    e.showRound,
		},
		{
			Name:      "open",
			Usage:     "open a round (authority only)",
			ArgsUsage: "<topic>",
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "duration", Value: e.cfg.RoundDuration, Usage: "time until the deadline"},
			},
			Action: e.openRound,
		},
		{
			Name:      "stake",
			Usage:     "place a stake as --identity",
			ArgsUsage: "<topic> <A|B> <amount>",
			Action:    e.placeStake,
		},
		{
			Name:      "settle",
			Usage:     "settle a round as authority, or permissionlessly with --auto",
			ArgsUsage: "<topic>",
			Flags:     []cli.Flag{cli.BoolFlag{Name: "auto"}},
			Action:    e.settle,
		},
		{
			Name:      "claim",
			Usage:     "claim the reward of --identity",
			ArgsUsage: "<topic>",
			Action:    e.claim,
		},
		{
			Name:      "deposit",
			Usage:     "credit the wallet of --identity",
			ArgsUsage: "<amount>",
			Flags:     []cli.Flag{cli.StringFlag{Name: "ref"}},
			Action:    e.deposit,
		},
		{
			Name:      "seed-arena",
			Usage:     "upsert arena configs from a YAML file",
			ArgsUsage: "<file.yaml>",
			Action:    e.seedArena,
		},
		{
			Name:      "events",
			Usage:     "tail a ledger event topic from Kafka",
			ArgsUsage: "<kafka-topic>",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "group", Value: "ledgerctl"},
				cli.IntFlag{Name: "max", Usage: "stop after n messages (0 = follow)"},
			},
			Action: e.tailEvents,
		},
	}
	return app
}

func caller(c *cli.Context) ledger.Identity {
	return ledger.Identity(c.GlobalString("identity"))
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s: expected %d argument(s): %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return nil
}

func (e *env) listRounds(c *cli.Context) error {
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	rounds, err := l.Rounds(ctx, ledger.RoundFilter{Status: ledger.Status(strings.ToUpper(c.String("status"))), Limit: c.Int("limit")})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(e.out)
	table.Header("Topic", "Status", "Deadline", "Pool A", "Pool B", "Winner", "Fee")
	for _, r := range rounds {
		_ = table.Append(
			r.Topic,
			string(r.Status),
			r.Deadline.UTC().Format(time.RFC3339),
			strconv.FormatUint(r.PoolA, 10),
			strconv.FormatUint(r.PoolB, 10),
			string(r.Winner),
			strconv.FormatUint(r.FeePaid, 10),
		)
	}
	return table.Render()
}

func (e *env) showRound(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	topic := c.Args().First()
	r, err := l.Round(ctx, topic)
	if err != nil {
		return err
	}
	vault, err := l.VaultBalance(ctx, topic)
	if err != nil {
		return err
	}
	stakes, err := l.Stakes(ctx, topic)
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "topic:     %s\n", r.Topic)
	fmt.Fprintf(e.out, "status:    %s\n", r.Status)
	fmt.Fprintf(e.out, "deadline:  %s\n", r.Deadline.UTC().Format(time.RFC3339))
	fmt.Fprintf(e.out, "pools:     A=%d B=%d\n", r.PoolA, r.PoolB)
	fmt.Fprintf(e.out, "vault:     %d\n", vault)
	if r.Status == ledger.StatusSettled {
		fmt.Fprintf(e.out, "winner:    %s (fee %d, by %s)\n", r.Winner, r.FeePaid, r.SettledBy)
	}

	table := tablewriter.NewWriter(e.out)
	table.Header("User", "Side", "Amount", "Claimed", "Reward")
	for _, s := range stakes {
		_ = table.Append(
			string(s.User),
			string(s.Side),
			strconv.FormatUint(s.Amount, 10),
			strconv.FormatBool(s.Claimed),
			strconv.FormatUint(s.Reward, 10),
		)
	}
	return table.Render()
}

func (e *env) openRound(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	r, err := l.OpenRound(ctx, caller(c), c.Args().First(), time.Now().Add(c.Duration("duration")))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "opened %s until %s\n", r.Topic, r.Deadline.UTC().Format(time.RFC3339))
	return nil
}

func (e *env) placeStake(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	side, err := ledger.ParseSide(c.Args().Get(1))
	if err != nil {
		return err
	}
	amount, err := strconv.ParseUint(c.Args().Get(2), 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	s, err := l.PlaceStake(ctx, c.Args().First(), caller(c), side, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "staked %d on %s in %s\n", s.Amount, s.Side, s.Topic)
	return nil
}

func (e *env) settle(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	var r ledger.Round
	if c.Bool("auto") {
		r, err = l.SettleAutomatic(ctx, c.Args().First(), caller(c))
	} else {
		r, err = l.SettleByAuthority(ctx, c.Args().First(), caller(c))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "settled %s: winner %s, fee %d\n", r.Topic, r.Winner, r.FeePaid)
	return nil
}

func (e *env) claim(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	reward, err := l.ClaimReward(ctx, c.Args().First(), caller(c))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "claimed %d\n", reward)
	return nil
}

func (e *env) deposit(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	amount, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	ctx := context.Background()
	l, err := e.ledger(ctx)
	if err != nil {
		return err
	}
	bal, err := l.Deposit(ctx, caller(c), amount, c.String("ref"))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "balance %d\n", bal)
	return nil
}

func (e *env) seedArena(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	cfgs, err := arena.LoadSeed(f)
	if err != nil {
		return err
	}
	ctx := context.Background()
	cat, err := e.catalog(ctx)
	if err != nil {
		return err
	}
	n, err := cat.Seed(ctx, cfgs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "seeded %d arena config(s)\n", n)
	return nil
}

func (e *env) tailEvents(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	brokers := e.cfg.Brokers()
	if len(brokers) == 0 {
		return errors.New("KAFKA_BROKERS is empty")
	}
	r := kafka.NewReader(brokers, c.Args().First(), c.String("group"))
	defer r.Close()

	ctx := context.Background()
	for n := 0; c.Int("max") == 0 || n < c.Int("max"); n++ {
		key, value, err := kafka.ReadNext(ctx, r)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s\t%s\n", key, value)
	}
	return nil
}
