// Package chain supplies the ledger height at which registry operations apply.
//
// Every source is monotonic: a height once observed is never followed by a
// lower one from the same source.
package chain

import (
	"context"
	"sync/atomic"

	id "poe/pkg/domain"
)

// Counter is a height source advanced explicitly. Tests and replay tools use
// it to control which height each operation is stamped with.
type Counter struct {
	height atomic.Uint64
}

// NewCounter returns a Counter starting at start.
func NewCounter(start id.BlockNumber) *Counter {
	c := &Counter{}
	c.height.Store(uint64(start))
	return c
}

func (c *Counter) Height(context.Context) (id.BlockNumber, error) {
	return id.BlockNumber(c.height.Load()), nil
}

// Advance moves the counter forward by one block and returns the new height.
func (c *Counter) Advance() id.BlockNumber {
	return id.BlockNumber(c.height.Add(1))
}

// AdvanceTo raises the counter to h. Lower values are ignored.
func (c *Counter) AdvanceTo(h id.BlockNumber) id.BlockNumber {
	for {
		current := c.height.Load()
		if uint64(h) <= current {
			return id.BlockNumber(current)
		}
		if c.height.CompareAndSwap(current, uint64(h)) {
			return h
		}
	}
}

// highWater keeps the maximum height returned so far.
type highWater struct {
	max atomic.Uint64
}

func (w *highWater) observe(h id.BlockNumber) id.BlockNumber {
	for {
		current := w.max.Load()
		if uint64(h) <= current {
			return id.BlockNumber(current)
		}
		if w.max.CompareAndSwap(current, uint64(h)) {
			return h
		}
	}
}
