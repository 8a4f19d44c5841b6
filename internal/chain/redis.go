package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	id "poe/pkg/domain"
	"poe/pkg/platform/sentinel"
)

// raiseHeight sets KEYS[1] to ARGV[1] only when that raises it, and returns
// the resulting value.
var raiseHeight = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local proposed = tonumber(ARGV[1])
if proposed > current then
	redis.call("SET", KEYS[1], ARGV[1])
	return proposed
end
return current
`)

// RedisHeight reads the height from a key maintained by an external block
// producer. A missing key reads as the last observed height (0 initially).
// A stored value below the last observed height is reported as a regression
// and the observed height is kept.
type RedisHeight struct {
	client redis.Cmdable
	key    string
	seen   highWater
	logger *slog.Logger
}

type RedisOption func(*RedisHeight)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *RedisHeight) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRedisHeight(client redis.Cmdable, key string, opts ...RedisOption) *RedisHeight {
	r := &RedisHeight{client: client, key: key, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisHeight) Height(ctx context.Context) (id.BlockNumber, error) {
	raw, err := r.client.Get(ctx, r.key).Uint64()
	if errors.Is(err, redis.Nil) {
		return r.seen.observe(0), nil
	}
	if err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	stored := id.BlockNumber(raw)
	observed := r.seen.observe(stored)
	if observed > stored {
		r.logger.WarnContext(ctx, "ledger height moved backwards",
			"key", r.key,
			"stored", uint64(stored),
			"observed", uint64(observed),
			"error", fmt.Errorf("height key %s: %w", r.key, sentinel.ErrRegression),
		)
	}
	return observed, nil
}

// Advance raises the stored height to h and returns the stored value, which
// is higher than h when another producer got there first.
func (r *RedisHeight) Advance(ctx context.Context, h id.BlockNumber) (id.BlockNumber, error) {
	res, err := raiseHeight.Run(ctx, r.client, []string{r.key}, uint64(h)).Int64()
	if err != nil {
		return 0, fmt.Errorf("advance height: %w", err)
	}
	return id.BlockNumber(res), nil
}
