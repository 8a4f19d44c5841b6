package chain

import (
	"context"
	"errors"
	"time"

	id "poe/pkg/domain"
)

// BlockClock derives the height from wall time: one block per interval since
// genesis. Height is 0 before genesis. A wall clock stepping backwards never
// lowers the reported height.
type BlockClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
	seen     highWater
}

type ClockOption func(*BlockClock)

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) ClockOption {
	return func(c *BlockClock) {
		c.now = now
	}
}

func NewBlockClock(genesis time.Time, interval time.Duration, opts ...ClockOption) (*BlockClock, error) {
	if interval <= 0 {
		return nil, errors.New("block interval must be positive")
	}
	c := &BlockClock{genesis: genesis, interval: interval, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *BlockClock) Height(ctx context.Context) (id.BlockNumber, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	elapsed := c.now().Sub(c.genesis)
	var h id.BlockNumber
	if elapsed > 0 {
		h = id.BlockNumber(elapsed / c.interval)
	}
	return c.seen.observe(h), nil
}
