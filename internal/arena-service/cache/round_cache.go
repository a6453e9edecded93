package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

// RoundCache guarda snapshots de rodada para os pollers do front.
// Cada chave é um hash {v: versão, data: snapshot JSON}.
type RoundCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *RoundCache { return &RoundCache{R: r, TTL: ttl} }

func keyRound(topic string) string { return "arena:round:" + topic }

// setIfNewer grava o snapshot só se a versão em cache não for maior.
// KEYS[1]=chave, ARGV[1]=json, ARGV[2]=versão, ARGV[3]=ttl em ms (0 = sem expiração)
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[2], 'data', ARGV[1])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

func (c *RoundCache) Get(ctx context.Context, topic string) (events.RoundSnapshot, bool, error) {
	var snap events.RoundSnapshot
	b, err := c.R.HGet(ctx, keyRound(topic), "data").Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false, err
	}
	return snap, true, nil
}

// Set grava o snapshot e renova o TTL. Devolve false, sem erro, quando o cache
// já tem uma versão mais nova da rodada (entrega fora de ordem).
func (c *RoundCache) Set(ctx context.Context, snap events.RoundSnapshot) (bool, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.R, []string{keyRound(snap.Topic)}, b, snap.Version, c.TTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RoundCache) Invalidate(ctx context.Context, topic string) error {
	return c.R.Del(ctx, keyRound(topic)).Err()
}
