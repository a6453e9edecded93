package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/radieske/arena-escrow/internal/arena"
)

type Memory struct {
	mu      sync.RWMutex
	configs map[string]arena.Config
}

func NewMemory() *Memory {
	return &Memory{configs: make(map[string]arena.Config)}
}

func (m *Memory) Get(_ context.Context, date string) (arena.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[date]
	if !ok {
		return arena.Config{}, arena.ErrNotFound
	}
	return c, nil
}

func (m *Memory) List(_ context.Context) ([]arena.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]arena.Config, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Upsert preserva CreatedAt de um registro existente
func (m *Memory) Upsert(_ context.Context, c arena.Config) (arena.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.configs[c.Date]; ok {
		c.CreatedAt = prev.CreatedAt
	}
	m.configs[c.Date] = c
	return c, nil
}

func (m *Memory) Delete(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[date]; !ok {
		return arena.ErrNotFound
	}
	delete(m.configs, date)
	return nil
}
