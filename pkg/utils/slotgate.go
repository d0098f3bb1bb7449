package utils

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] zset of holder tokens scored by expiry (ms).
// ARGV[1] limit, ARGV[2] now ms, ARGV[3] ttl ms, ARGV[4] token, ARGV[5] expiry ms.
var slotTake = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[5], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// SlotGate lets at most limit holders share a key across every process
// using the same Redis. Each holder owns a token that expires after ttl, so
// a late Release never frees someone else's slot.
type SlotGate struct {
	rdb    *redis.Client
	prefix string
	limit  int
	ttl    time.Duration
	now    func() time.Time
}

func NewSlotGate(rdb *redis.Client, prefix string, limit int, ttl time.Duration) (*SlotGate, error) {
	switch {
	case rdb == nil:
		return nil, errors.New("slot gate: redis client is nil")
	case limit <= 0:
		return nil, errors.New("slot gate: limit must be > 0")
	case ttl <= 0:
		return nil, errors.New("slot gate: ttl must be > 0")
	}
	return &SlotGate{rdb: rdb, prefix: prefix, limit: limit, ttl: ttl, now: time.Now}, nil
}

// Acquire takes a slot for key. The returned token is what Release needs;
// it is empty when no slot was free.
func (g *SlotGate) Acquire(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("slot gate: key is required")
	}
	token := uuid.NewString()
	now := g.now()
	ok, err := slotTake.Run(ctx, g.rdb, []string{g.prefix + key},
		g.limit, now.UnixMilli(), g.ttl.Milliseconds(), token, now.Add(g.ttl).UnixMilli()).Int()
	if err != nil {
		return "", false, err
	}
	if ok != 1 {
		return "", false, nil
	}
	return token, true, nil
}

// Release gives back the slot held by token. Releasing an expired or
// unknown token is a no-op.
func (g *SlotGate) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return errors.New("slot gate: key and token are required")
	}
	return g.rdb.ZRem(ctx, g.prefix+key, token).Err()
}
