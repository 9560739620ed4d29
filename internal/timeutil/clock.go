// Package timeutil lets the pipeline, the retention worker and replay
// pacing run against either the wall clock or a clock driven by tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used throughout area-monitor.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// After delivers the clock's time once d has elapsed.
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the workers need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{time.NewTicker(d)}
}

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// MockClock only moves when Set or Advance is called. Timers and tickers
// created from it fire during Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

// waiter is a pending After timer (period 0) or a ticker.
type waiter struct {
	ch      chan time.Time
	due     time.Time
	period  time.Duration
	stopped bool
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Set jumps the clock without firing anything.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every due waiter once.
// A ticker that falls several periods behind delivers a single tick, like
// time.Ticker with a slow reader.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)

	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if !c.now.Before(w.due) {
			select {
			case w.ch <- c.now:
			default:
			}
			if w.period == 0 {
				continue
			}
			w.due = c.now.Add(w.period)
		}
		live = append(live, w)
	}
	c.waiters = live
}

// Pending reports how many timers and tickers are still waiting.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.add(d, 0).ch
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return &MockTicker{clock: c, w: c.add(d, d)}
}

func (c *MockClock) add(d, period time.Duration) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1), due: c.now.Add(d), period: period}
	if d <= 0 && period == 0 {
		w.ch <- c.now
		return w
	}
	c.waiters = append(c.waiters, w)
	return w
}

// MockTicker is returned by MockClock.NewTicker.
type MockTicker struct {
	clock *MockClock
	w     *waiter
}

func (t *MockTicker) C() <-chan time.Time { return t.w.ch }

func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	t.w.stopped = true
	t.clock.mu.Unlock()
}
