package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Catalog expõe a configuração diária da arena
type Catalog struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

func NewCatalog(store Store, log *zap.Logger, now func() time.Time) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Catalog{store: store, now: now, log: log}
}

// TodayDate devolve a data corrente no formato da chave
func (c *Catalog) TodayDate() string { return c.now().UTC().Format(DateLayout) }

// Today devolve a configuração do dia ou, se ausente, a padrão
func (c *Catalog) Today(ctx context.Context) (Config, error) {
	date := c.TodayDate()
	cfg, err := c.store.Get(ctx, date)
	if errors.Is(err, ErrNotFound) {
		return Default(date), nil
	}
	return cfg, err
}

func (c *Catalog) ByDate(ctx context.Context, date string) (Config, error) {
	if err := ValidateDate(date); err != nil {
		return Config{}, err
	}
	return c.store.Get(ctx, date)
}

func (c *Catalog) List(ctx context.Context) ([]Config, error) {
	return c.store.List(ctx)
}

// Save cria ou atualiza a configuração da data
func (c *Catalog) Save(ctx context.Context, cfg Config) (Config, error) {
	if err := ValidateDate(cfg.Date); err != nil {
		return Config{}, fmt.Errorf("%w: %q", err, cfg.Date)
	}
	cfg.TeamA.Memes = normalizeMemes(cfg.TeamA.Memes)
	cfg.TeamB.Memes = normalizeMemes(cfg.TeamB.Memes)
	now := c.now().UTC().Truncate(time.Millisecond)
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	saved, err := c.store.Upsert(ctx, cfg)
	if err != nil {
		return Config{}, err
	}
	c.log.Info("arena config saved", zap.String("date", saved.Date),
		zap.String("team_a", saved.TeamA.Name), zap.String("team_b", saved.TeamB.Name))
	return saved, nil
}

func (c *Catalog) Delete(ctx context.Context, date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, date); err != nil {
		return err
	}
	c.log.Info("arena config deleted", zap.String("date", date))
	return nil
}
