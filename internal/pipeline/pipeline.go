// Package pipeline composes the per-camera processing chain: tracking,
// zone membership, alerting and analytics, run strictly in that order for
// each frame.
//
// A Pipeline never performs blocking I/O while processing a frame. Alert
// sinks that write to storage should be wrapped in alerts.AsyncSink.
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/analytics"
	"github.com/banshee-data/area-monitor/internal/config"
	"github.com/banshee-data/area-monitor/internal/geometry"
	"github.com/banshee-data/area-monitor/internal/timeutil"
	"github.com/banshee-data/area-monitor/internal/tracking"
	"github.com/banshee-data/area-monitor/internal/zones"
)

// Frame is one detector output for a camera.
type Frame struct {
	CameraID   string
	Number     int64
	Timestamp  time.Time // zero means "now" on the pipeline clock
	Detections []tracking.Detection
}

// FrameResult is what one ProcessFrame call produced.
type FrameResult struct {
	CameraID       string
	FrameNumber    int64
	Timestamp      time.Time
	Detections     int // valid detections after dropping malformed ones
	Tracks         []tracking.Snapshot
	Created        []int64
	Evicted        []tracking.Retired
	Memberships    []zones.Membership
	Occupancy      map[string]int
	Alerts         []alerts.Alert
	Dropped        int
	ProcessingTime time.Duration
	FPS            float64
}

// Config holds everything needed to build one camera pipeline.
type Config struct {
	CameraID          string
	Tracker           tracking.TrackerConfig
	Limiter           alerts.LimiterConfig
	AlertsEnabled     bool
	AlertHistoryLimit int
	WindowSize        int
	Clock             timeutil.Clock
}

// ConfigFromTuning builds a pipeline Config for camera from loaded tuning.
func ConfigFromTuning(camera string, cfg *config.TuningConfig) Config {
	return Config{
		CameraID: camera,
		Tracker:  tracking.TrackerConfigFromTuning(cfg),
		Limiter: alerts.LimiterConfig{
			Cooldown:     cfg.GetAlertCooldown(),
			MaxPerMinute: cfg.GetMaxAlertsPerMinute(),
			PerKey:       cfg.GetRateLimitPerKey(),
		},
		AlertsEnabled:     cfg.GetAlertsEnabled(),
		AlertHistoryLimit: cfg.GetAlertHistoryLimit(),
		WindowSize:        cfg.GetWindowSize(),
	}
}

// TrackDetail is a live track with its retained centroid history.
type TrackDetail struct {
	tracking.Snapshot
	History  []geometry.Point `json:"history"`
	AvgSpeed float64          `json:"avg_speed"` // pixels per matched frame
}

// Pipeline processes the frames of a single camera.
type Pipeline struct {
	cameraID  string
	clock     timeutil.Clock
	tracker   *tracking.Tracker
	zones     *zones.Registry
	alerts    *alerts.Engine
	analytics *analytics.Aggregator

	// mu serialises frame processing; component state has its own locks
	// so readers never wait on it.
	mu     sync.Mutex
	lastTS time.Time
}

// New builds a pipeline. When limiter is nil the pipeline owns a fresh
// limiter built from cfg.Limiter; pass a shared limiter to gate several
// cameras together.
func New(cfg Config, limiter *alerts.Limiter, sinks ...alerts.Sink) *Pipeline {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if limiter == nil {
		limiter = alerts.NewLimiter(cfg.Limiter)
	}
	return &Pipeline{
		cameraID: cfg.CameraID,
		clock:    clock,
		tracker:  tracking.NewTracker(cfg.Tracker),
		zones:    zones.NewRegistry(),
		alerts: alerts.NewEngine(alerts.Config{
			CameraID:     cfg.CameraID,
			Enabled:      cfg.AlertsEnabled,
			HistoryLimit: cfg.AlertHistoryLimit,
		}, limiter, sinks...),
		analytics: analytics.NewAggregator(cfg.WindowSize),
	}
}

// CameraID returns the camera this pipeline serves.
func (p *Pipeline) CameraID() string { return p.cameraID }

// AddSink registers an additional alert sink.
func (p *Pipeline) AddSink(s alerts.Sink) { p.alerts.AddSink(s) }

// ProcessFrame runs one frame through tracking, zones, alerts and
// analytics. Malformed detections are dropped and logged; the rest of the
// frame is processed normally.
func (p *Pipeline) ProcessFrame(f Frame) FrameResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.clock.Now()
	ts := f.Timestamp
	if ts.IsZero() {
		ts = start
	}

	valid := make([]tracking.Detection, 0, len(f.Detections))
	for i, d := range f.Detections {
		if !d.Valid() {
			opsf("camera %s frame %d: dropping malformed detection %d: box=%+v confidence=%v",
				p.cameraID, f.Number, i, d.Box, d.Confidence)
			continue
		}
		valid = append(valid, d)
	}
	dropped := len(f.Detections) - len(valid)

	tr := p.tracker.Update(f.Number, valid)
	for _, id := range tr.Created {
		diagf("camera %s frame %d: track %d created", p.cameraID, f.Number, id)
	}
	for _, r := range tr.Evicted {
		diagf("camera %s frame %d: track %d evicted after %d frames (path %.1f)",
			p.cameraID, f.Number, r.TrackID, r.Lifetime, r.PathLength)
	}

	centroids := make([]zones.TrackCentroid, len(tr.Tracks))
	for i, s := range tr.Tracks {
		centroids[i] = zones.TrackCentroid{TrackID: s.TrackID, Centroid: s.Centroid}
	}
	eval := p.zones.Evaluate(centroids)

	before := p.alerts.Suppressed().Total()
	fired := p.alerts.Evaluate(eval.Occupancy, tr.Tracks, ts)
	suppressed := int(p.alerts.Suppressed().Total() - before)

	elapsed := p.clock.Since(start)
	var fps float64
	if !p.lastTS.IsZero() {
		if dt := ts.Sub(p.lastTS); dt > 0 {
			fps = float64(time.Second) / float64(dt)
		}
	}
	p.lastTS = ts

	confidences := make([]float64, len(valid))
	for i, d := range valid {
		confidences[i] = d.Confidence
	}
	counts := eval.Counts()
	p.analytics.RecordFrame(analytics.FrameSample{
		FrameNumber:    f.Number,
		Timestamp:      ts,
		DetectionCount: len(valid),
		TrackCount:     len(tr.Tracks),
		Confidences:    confidences,
		ProcessingTime: elapsed,
		FPS:            fps,
	})
	if dropped > 0 {
		p.analytics.RecordDropped(dropped)
	}
	p.analytics.RecordZoneOccupancy(counts, ts)
	p.analytics.RecordTracks(len(tr.Tracks), tr.Created, tr.Evicted)
	p.analytics.RecordAlerts(len(fired), suppressed)

	tracef("camera %s frame %d: %d detections (%d dropped), %d tracks, %d alerts, %d suppressed in %s",
		p.cameraID, f.Number, len(valid), dropped, len(tr.Tracks), len(fired), suppressed, elapsed)

	return FrameResult{
		CameraID:       p.cameraID,
		FrameNumber:    f.Number,
		Timestamp:      ts,
		Detections:     len(valid),
		Tracks:         tr.Tracks,
		Created:        tr.Created,
		Evicted:        tr.Evicted,
		Memberships:    eval.Memberships,
		Occupancy:      counts,
		Alerts:         fired,
		Dropped:        dropped,
		ProcessingTime: elapsed,
		FPS:            fps,
	}
}

// Run processes frames until the channel closes or ctx is cancelled. A
// frame already being processed always completes.
func (p *Pipeline) Run(ctx context.Context, frames <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			p.ProcessFrame(f)
		}
	}
}

// ---------------------------------------------------------------------------
// Zones
// ---------------------------------------------------------------------------

// AddZone validates and registers a zone.
func (p *Pipeline) AddZone(rec zones.Record) (zones.Record, error) {
	z, err := rec.Zone()
	if err != nil {
		return zones.Record{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.zones.Add(z); err != nil {
		return zones.Record{}, err
	}
	diagf("camera %s: zone %s added (%s)", p.cameraID, z.ID, z.Shape.Kind)
	return p.GetZone(z.ID)
}

// UpdateZone replaces an existing zone definition.
func (p *Pipeline) UpdateZone(rec zones.Record) (zones.Record, error) {
	z, err := rec.Zone()
	if err != nil {
		return zones.Record{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.zones.Update(z); err != nil {
		return zones.Record{}, err
	}
	if !z.Enabled {
		p.analytics.ClearOccupancy(z.ID)
	}
	diagf("camera %s: zone %s updated (%s)", p.cameraID, z.ID, z.Shape.Kind)
	return p.GetZone(z.ID)
}

// RemoveZone deletes a zone and its statistics. Like the other zone edits
// it holds p.mu, so it lands between frames and never between the zone
// evaluation and the analytics update of one frame.
func (p *Pipeline) RemoveZone(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.zones.Remove(id); err != nil {
		return err
	}
	p.analytics.RemoveZone(id)
	diagf("camera %s: zone %s removed", p.cameraID, id)
	return nil
}

// ToggleZone enables or disables a zone. A disabled zone reports zero
// current occupancy.
func (p *Pipeline) ToggleZone(id string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.zones.Toggle(id, enabled); err != nil {
		return err
	}
	if !enabled {
		p.analytics.ClearOccupancy(id)
	}
	diagf("camera %s: zone %s enabled=%t", p.cameraID, id, enabled)
	return nil
}

// GetZone returns one zone record.
func (p *Pipeline) GetZone(id string) (zones.Record, error) {
	z, err := p.zones.Get(id)
	if err != nil {
		return zones.Record{}, err
	}
	return z.Record(), nil
}

// ListZones returns every zone ordered by id.
func (p *Pipeline) ListZones() []zones.Record { return p.zones.List() }

// ---------------------------------------------------------------------------
// Alerts
// ---------------------------------------------------------------------------

// ListAlerts returns matching alerts, newest first.
func (p *Pipeline) ListAlerts(f alerts.Filter) []alerts.Alert { return p.alerts.List(f) }

// GetAlert returns one alert.
func (p *Pipeline) GetAlert(id string) (alerts.Alert, error) { return p.alerts.Get(id) }

// AcknowledgeAlert marks an alert as acknowledged.
func (p *Pipeline) AcknowledgeAlert(id string) error { return p.alerts.Acknowledge(id) }

// RaiseAlert fires an alert outside frame processing, timestamped with the
// pipeline clock.
func (p *Pipeline) RaiseAlert(req alerts.Request) (alerts.Alert, bool, error) {
	return p.alerts.Raise(req, p.clock.Now())
}

// ExportAlerts writes the retained alert history to w as JSON.
func (p *Pipeline) ExportAlerts(w io.Writer) error { return p.alerts.Export(w) }

// ClearAlerts drops the alert history; cooldowns keep running.
func (p *Pipeline) ClearAlerts() { p.alerts.Clear() }

// AlertStats returns alert history statistics.
func (p *Pipeline) AlertStats() alerts.Stats { return p.alerts.Stats() }

// PruneAlerts drops alerts older than maxAge on the pipeline clock.
func (p *Pipeline) PruneAlerts(maxAge time.Duration) int {
	return p.alerts.PruneOlderThan(maxAge, p.clock.Now())
}

// SetAlertsEnabled turns zone alerts on or off.
func (p *Pipeline) SetAlertsEnabled(enabled bool) { p.alerts.SetEnabled(enabled) }

// ---------------------------------------------------------------------------
// Tracks and statistics
// ---------------------------------------------------------------------------

// Tracks returns every live track ordered by id.
func (p *Pipeline) Tracks() []tracking.Snapshot { return p.tracker.Tracks() }

// Track returns a live track with its centroid history.
func (p *Pipeline) Track(id int64) (TrackDetail, error) {
	s, err := p.tracker.Snapshot(id)
	if err != nil {
		return TrackDetail{}, err
	}
	hist, err := p.tracker.History(id)
	if err != nil {
		return TrackDetail{}, err
	}
	d := TrackDetail{Snapshot: s, History: hist}
	if s.Age > 1 {
		d.AvgSpeed = s.PathLength / float64(s.Age-1)
	}
	return d, nil
}

// TrackerCounters returns lifetime track totals.
func (p *Pipeline) TrackerCounters() tracking.Counters { return p.tracker.Counters() }

// FrameStatistics returns rolling frame statistics.
func (p *Pipeline) FrameStatistics() analytics.FrameStats { return p.analytics.FrameStatistics() }

// ZoneStatistics returns statistics for one zone.
func (p *Pipeline) ZoneStatistics(id string) (analytics.ZoneStats, error) {
	return p.analytics.ZoneStatistics(id)
}

// AllZoneStatistics returns statistics for every zone seen so far.
func (p *Pipeline) AllZoneStatistics() []analytics.ZoneStats { return p.analytics.AllZoneStatistics() }

// TrackStatistics returns track lifecycle statistics.
func (p *Pipeline) TrackStatistics() analytics.TrackStats { return p.analytics.TrackStatistics() }

// DetectionTrend returns per-frame detection counts in the window.
func (p *Pipeline) DetectionTrend() []analytics.TrendPoint { return p.analytics.DetectionTrend() }

// Summary returns every statistic in one snapshot.
func (p *Pipeline) Summary() analytics.Summary { return p.analytics.Summary() }

// Reset clears tracks and statistics. Zones, alerts and gating state are
// kept.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracker.Reset()
	p.analytics.Reset()
	p.lastTS = time.Time{}
}
