package db

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/area-monitor/internal/monitoring"
	"github.com/banshee-data/area-monitor/internal/timeutil"
)

// RetentionWorker periodically deletes history older than Retention.
// Extra PruneFuncs run on each pass, e.g. to trim in-memory alert history.
type RetentionWorker struct {
	DB        *DB
	Retention time.Duration
	Interval  time.Duration // how often to run (e.g., 1h)
	Clock     timeutil.Clock
	// PruneFuncs receive the retention and return how many items they dropped.
	PruneFuncs []func(retention time.Duration) int
	StopChan   chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func NewRetentionWorker(db *DB, retention time.Duration, clock timeutil.Clock) *RetentionWorker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RetentionWorker{
		DB:        db,
		Retention: retention,
		Interval:  time.Hour,
		Clock:     clock,
		StopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the periodic worker loop in a goroutine.
func (w *RetentionWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	ticker := w.Clock.NewTicker(w.Interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := w.RunOnce(); err != nil {
					monitoring.Logf("retention worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop and waits for the loop to exit. Stop is
// safe to call more than once.
func (w *RetentionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.StopChan) })
	if w.started.Load() {
		<-w.done
	}
}

// RunOnce prunes rows older than w.Retention and runs every PruneFunc.
func (w *RetentionWorker) RunOnce() (PruneResult, error) {
	res, err := w.DB.PruneOlderThan(w.Retention, w.Clock.Now())
	if err != nil {
		return res, err
	}
	memory := 0
	for _, fn := range w.PruneFuncs {
		memory += fn(w.Retention)
	}
	if res.Alerts > 0 || res.Frames > 0 || memory > 0 {
		monitoring.Logf("Retention: removed %d alerts, %d frame summaries, %d in-memory alerts older than %s",
			res.Alerts, res.Frames, memory, w.Retention)
	}
	return res, nil
}
