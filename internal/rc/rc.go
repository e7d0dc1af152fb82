// Package rc provides a small atomic reference/join counter, the building
// block for Node.join_counter and Topology.join_counter.
package rc

import "sync/atomic"

// Counter is an atomic integer counter. It is the Go rendition of the
// teacher's utils.RC helper: increase on dependency registration, decrease
// on completion, zero means ready.
type Counter struct {
	v atomic.Int64
}

// New returns a Counter initialized to zero.
func New() *Counter {
	return &Counter{}
}

// Increase adds one and returns the new value.
func (c *Counter) Increase() int64 {
	return c.v.Add(1)
}

// Decrease subtracts one and returns the new value.
func (c *Counter) Decrease() int64 {
	return c.v.Add(-1)
}

// DecreaseBy subtracts n and returns the new value.
func (c *Counter) DecreaseBy(n int64) int64 {
	return c.v.Add(-n)
}

// Value returns the current value.
func (c *Counter) Value() int64 {
	return c.v.Load()
}

// Set overwrites the counter.
func (c *Counter) Set(n int64) {
	c.v.Store(n)
}
