package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/config"
	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/timeutil"
)

// DefaultCamera names frames that carry no camera id.
const DefaultCamera = "default"

// Manager owns one Pipeline per camera, created on first use.
type Manager struct {
	tuning *config.TuningConfig
	clock  timeutil.Clock
	// shared is non-nil when every camera is gated by one limiter.
	shared *alerts.Limiter

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	sinks     []alerts.Sink
}

// NewManager creates a manager. The tuning limiter scope decides whether
// cameras share cooldown and rate-limit state.
func NewManager(tuning *config.TuningConfig, clock timeutil.Clock, sinks ...alerts.Sink) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	m := &Manager{
		tuning:    tuning,
		clock:     clock,
		pipelines: make(map[string]*Pipeline),
		sinks:     sinks,
	}
	if tuning.GetLimiterScope() == config.ScopeGlobal {
		m.shared = alerts.NewLimiter(ConfigFromTuning("", tuning).Limiter)
	}
	return m
}

// SharedLimiter returns the limiter shared by all cameras, or nil when each
// camera owns its own.
func (m *Manager) SharedLimiter() *alerts.Limiter { return m.shared }

// AddSink registers an alert sink on every current and future pipeline.
func (m *Manager) AddSink(s alerts.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
	for _, p := range m.pipelines {
		p.AddSink(s)
	}
}

// Pipeline returns the pipeline for camera, creating it if needed.
func (m *Manager) Pipeline(camera string) *Pipeline {
	if camera == "" {
		camera = DefaultCamera
	}
	m.mu.RLock()
	p, ok := m.pipelines[camera]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipelines[camera]; ok {
		return p
	}
	cfg := ConfigFromTuning(camera, m.tuning)
	cfg.Clock = m.clock
	p = New(cfg, m.shared, m.sinks...)
	m.pipelines[camera] = p
	diagf("camera %s: pipeline created", camera)
	return p
}

// Get returns an existing pipeline.
func (m *Manager) Get(camera string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[camera]
	if !ok {
		return nil, errs.NotFound("camera", camera)
	}
	return p, nil
}

// Cameras lists known camera ids in order.
func (m *Manager) Cameras() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ProcessFrame routes f to its camera's pipeline.
func (m *Manager) ProcessFrame(f Frame) FrameResult {
	return m.Pipeline(f.CameraID).ProcessFrame(f)
}

// Run fans frames out to one goroutine per camera so cameras progress
// independently while each camera's frames stay in order. It returns when
// frames closes and every camera has drained, or when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, frames <-chan Frame, buffer int) error {
	if buffer < 1 {
		buffer = 1
	}
	queues := make(map[string]chan Frame)
	var wg sync.WaitGroup
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			p := m.Pipeline(f.CameraID)
			q, ok := queues[p.CameraID()]
			if !ok {
				q = make(chan Frame, buffer)
				queues[p.CameraID()] = q
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = p.Run(ctx, q)
				}()
			}
			select {
			case q <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// PruneAlerts prunes alert history on every camera and returns the total
// removed.
func (m *Manager) PruneAlerts(maxAge time.Duration) int {
	m.mu.RLock()
	ps := make([]*Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		ps = append(ps, p)
	}
	m.mu.RUnlock()

	n := 0
	for _, p := range ps {
		n += p.PruneAlerts(maxAge)
	}
	return n
}
