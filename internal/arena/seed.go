package arena

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Arenas []Config `yaml:"arenas"`
}

// LoadSeed lê uma lista de configurações no formato:
//
//	arenas:
//	  - date: "2026-01-22"
//	    team_a: {name: ..., color: "#ec4899"}
//	    team_b: {name: ..., color: "#3b82f6"}
func LoadSeed(r io.Reader) ([]Config, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("arena seed: %w", err)
	}
	for _, c := range f.Arenas {
		if err := ValidateDate(c.Date); err != nil {
			return nil, fmt.Errorf("arena seed: %w: %q", err, c.Date)
		}
	}
	return f.Arenas, nil
}

// Seed grava todas as configurações via Save
func (c *Catalog) Seed(ctx context.Context, cfgs []Config) (int, error) {
	for i, cfg := range cfgs {
		if _, err := c.Save(ctx, cfg); err != nil {
			return i, err
		}
	}
	return len(cfgs), nil
}
