package alerts

import (
	"sync"
	"time"
)

// rateWindow is the trailing window the rate limit counts over.
const rateWindow = time.Minute

// LimiterConfig controls alert gating.
type LimiterConfig struct {
	Cooldown     time.Duration // minimum gap between two alerts with the same key
	MaxPerMinute int           // trailing-minute cap; 0 disables the rate limit
	// PerKey keeps a separate rate counter for every key. When false one
	// counter is shared by every key the limiter sees.
	PerKey bool
}

// Decision is the outcome of a gating check.
type Decision int

const (
	Allowed Decision = iota
	SuppressedCooldown
	SuppressedRateLimit
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case SuppressedCooldown:
		return "cooldown"
	case SuppressedRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// Suppressed counts alerts rejected by each gate.
type Suppressed struct {
	Cooldown  int64 `json:"cooldown"`
	RateLimit int64 `json:"rate_limit"`
}

// Total returns the number of rejected alerts.
func (s Suppressed) Total() int64 { return s.Cooldown + s.RateLimit }

// Limiter owns cooldown and rate-limit state. It is safe for concurrent
// use, so one Limiter may be shared by the engines of several cameras.
type Limiter struct {
	cfg LimiterConfig

	mu         sync.Mutex
	lastFired  map[string]time.Time
	shared     []time.Time
	perKey     map[string][]time.Time
	suppressed Suppressed
}

// NewLimiter returns a Limiter with empty state.
func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		cfg:       cfg,
		lastFired: make(map[string]time.Time),
		perKey:    make(map[string][]time.Time),
	}
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() LimiterConfig { return l.cfg }

// Allow checks key at ts against both gates and, when allowed, records the
// fire. A key fires iff it never fired before or ts is at least Cooldown
// after its last fire, and fewer than MaxPerMinute alerts fired in the
// minute before ts.
func (l *Limiter) Allow(key string, ts time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastFired[key]; ok && ts.Sub(last) < l.cfg.Cooldown {
		l.suppressed.Cooldown++
		return SuppressedCooldown
	}

	window := l.window(key, ts)
	if l.cfg.MaxPerMinute > 0 && len(window) >= l.cfg.MaxPerMinute {
		l.suppressed.RateLimit++
		return SuppressedRateLimit
	}

	l.recordLocked(key, ts)
	return Allowed
}

// Record marks key as fired at ts without checking either gate. Forced
// alerts still count toward later cooldown and rate decisions.
func (l *Limiter) Record(key string, ts time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window(key, ts)
	l.recordLocked(key, ts)
}

// Suppressed returns the rejection counters.
func (l *Limiter) Suppressed() Suppressed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}

// Reset clears all gating state and counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastFired = make(map[string]time.Time)
	l.perKey = make(map[string][]time.Time)
	l.shared = nil
	l.suppressed = Suppressed{}
}

// window prunes and returns the fire times that count against key at ts.
func (l *Limiter) window(key string, ts time.Time) []time.Time {
	if l.cfg.PerKey {
		w := prune(l.perKey[key], ts)
		if len(w) == 0 {
			delete(l.perKey, key)
		} else {
			l.perKey[key] = w
		}
		return w
	}
	l.shared = prune(l.shared, ts)
	return l.shared
}

func (l *Limiter) recordLocked(key string, ts time.Time) {
	l.lastFired[key] = ts
	if l.cfg.PerKey {
		l.perKey[key] = append(l.perKey[key], ts)
		return
	}
	l.shared = append(l.shared, ts)
}

// prune drops entries at least rateWindow older than ts. Entries are kept
// in fire order, so the cut point is the first one still inside.
func prune(times []time.Time, ts time.Time) []time.Time {
	i := 0
	for i < len(times) && ts.Sub(times[i]) >= rateWindow {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
