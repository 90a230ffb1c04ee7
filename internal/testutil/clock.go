package testutil

import (
	"context"
	"mailru-backend/internal/chrono"
	"sync"
	"time"
)

// FakeClock is a chrono.TimeAPI whose sleeps return immediately and advance
// the clock.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep runs after every sleep with the 1 based sleep count.
	OnSleep func(n int)
}

var _ chrono.TimeAPI = (*FakeClock)(nil)

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Sleeps returns every duration slept so far.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
