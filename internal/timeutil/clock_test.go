package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClock(t *testing.T) {
	t.Parallel()
	var c Clock = RealClock{}
	start := c.Now()
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-c.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}

func TestMockClockAdvance(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	assert.Equal(t, base, c.Now())
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, c.Since(base))

	later := base.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestMockTicker(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	tk := c.NewTicker(time.Minute)

	c.Advance(30 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case got := <-tk.C():
		assert.Equal(t, base.Add(time.Minute), got)
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	assert.Equal(t, 0, c.Pending())
	c.Advance(time.Hour)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockAfter(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	ch := c.After(100 * time.Millisecond)
	assert.Equal(t, 1, c.Pending())
	c.Advance(99 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}
	c.Advance(time.Millisecond)
	assert.Equal(t, base.Add(100*time.Millisecond), <-ch)
	assert.Equal(t, 0, c.Pending())

	// Non-positive durations are already due.
	assert.Equal(t, c.Now(), <-c.After(0))
}

func TestMockTickerSkipsMissedTicks(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	tk := c.NewTicker(time.Second)
	defer tk.Stop()

	c.Advance(5 * time.Second)
	assert.Equal(t, base.Add(5*time.Second), <-tk.C())
	select {
	case <-tk.C():
		t.Fatal("expected a single tick")
	default:
	}
	c.Advance(time.Second)
	assert.Equal(t, base.Add(6*time.Second), <-tk.C())
}
