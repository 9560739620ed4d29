// Package analytics keeps sliding-window statistics over frames, zones,
// tracks and alerts. Windows are bounded by sample count, not wall-clock
// time. All derived values are computed on demand and are zero for empty
// windows.
package analytics

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/tracking"
)

// FrameSample is one processed frame as seen by the aggregator.
type FrameSample struct {
	FrameNumber    int64
	Timestamp      time.Time
	DetectionCount int
	TrackCount     int
	Confidences    []float64
	ProcessingTime time.Duration
	FPS            float64
}

// FrameStats are derived from the frame windows.
type FrameStats struct {
	TotalFrames       int64   `json:"total_frames"`
	WindowFrames      int     `json:"window_frames"`
	AvgDetections     float64 `json:"avg_detections"`
	MaxDetections     float64 `json:"max_detections"`
	AvgTracks         float64 `json:"avg_tracks"`
	MaxTracks         float64 `json:"max_tracks"`
	AvgConfidence     float64 `json:"avg_confidence"`
	AvgProcessingMs   float64 `json:"avg_processing_ms"`
	MaxProcessingMs   float64 `json:"max_processing_ms"`
	AvgFPS            float64 `json:"avg_fps"`
	MaxFPS            float64 `json:"max_fps"`
	LastFrameNumber   int64   `json:"last_frame_number"`
	TotalDetections   int64   `json:"total_detections"`
	DroppedDetections int64   `json:"dropped_detections"`
}

// ZoneStats summarise one zone.
type ZoneStats struct {
	ZoneID           string     `json:"zone_id"`
	OccupiedFrames   int64      `json:"occupied_frames"`
	TotalEntries     int64      `json:"total_entries"`
	TotalExits       int64      `json:"total_exits"`
	CurrentOccupancy int        `json:"current_occupancy"`
	PeakOccupancy    int        `json:"peak_occupancy"`
	AvgOccupancy     float64    `json:"avg_occupancy"`
	LastOccupied     *time.Time `json:"last_occupied,omitempty"`
}

// TrackStats summarise track lifecycle.
type TrackStats struct {
	ActiveTracks      int     `json:"active_tracks"`
	TotalCreated      int64   `json:"total_created"`
	TotalEvicted      int64   `json:"total_evicted"`
	AvgLifetimeFrames float64 `json:"avg_lifetime_frames"`
	MaxLifetimeFrames float64 `json:"max_lifetime_frames"`
	AvgPathLength     float64 `json:"avg_path_length"`
	MaxPathLength     float64 `json:"max_path_length"`
}

// AlertStats count fired and suppressed alerts.
type AlertStats struct {
	Fired      int64 `json:"fired"`
	Suppressed int64 `json:"suppressed"`
}

// TrendPoint is one entry of the detection trend.
type TrendPoint struct {
	FrameNumber int64     `json:"frame"`
	Timestamp   time.Time `json:"timestamp"`
	Detections  int       `json:"detections"`
	Tracks      int       `json:"tracks"`
}

// Summary bundles every statistic.
type Summary struct {
	Frames      FrameStats  `json:"frame_statistics"`
	Zones       []ZoneStats `json:"zone_statistics"`
	Tracks      TrackStats  `json:"track_statistics"`
	Alerts      AlertStats  `json:"alert_statistics"`
	LastFrameAt time.Time   `json:"last_frame_at"`
}

type zoneState struct {
	occupiedFrames int64
	entries        int64
	exits          int64
	current        int
	peak           int
	seen           bool
	lastOccupied   time.Time
	occupancy      *RollingWindow[float64]
}

// Aggregator collects statistics for one camera pipeline.
type Aggregator struct {
	windowSize int

	mu            sync.RWMutex
	totalFrames   int64
	totalDets     int64
	droppedDets   int64
	lastFrame     int64
	lastFrameAt   time.Time
	trend         *RollingWindow[TrendPoint]
	detections    *RollingWindow[float64]
	tracks        *RollingWindow[float64]
	confidences   *RollingWindow[float64]
	processingMs  *RollingWindow[float64]
	fps           *RollingWindow[float64]
	zones         map[string]*zoneState
	activeTracks  int
	created       int64
	evicted       int64
	lifetimes     *RollingWindow[float64]
	pathLengths   *RollingWindow[float64]
	alertsFired   int64
	alertsDropped int64
}

// NewAggregator returns an aggregator whose windows hold windowSize
// samples.
func NewAggregator(windowSize int) *Aggregator {
	if windowSize < 1 {
		windowSize = 1
	}
	a := &Aggregator{windowSize: windowSize}
	a.resetLocked()
	return a
}

// WindowSize returns the per-window sample capacity.
func (a *Aggregator) WindowSize() int { return a.windowSize }

func (a *Aggregator) resetLocked() {
	a.totalFrames, a.totalDets, a.droppedDets = 0, 0, 0
	a.lastFrame = 0
	a.lastFrameAt = time.Time{}
	a.trend = NewRollingWindow[TrendPoint](a.windowSize)
	a.detections = NewRollingWindow[float64](a.windowSize)
	a.tracks = NewRollingWindow[float64](a.windowSize)
	a.confidences = NewRollingWindow[float64](a.windowSize)
	a.processingMs = NewRollingWindow[float64](a.windowSize)
	a.fps = NewRollingWindow[float64](a.windowSize)
	a.zones = make(map[string]*zoneState)
	a.activeTracks = 0
	a.created, a.evicted = 0, 0
	a.lifetimes = NewRollingWindow[float64](a.windowSize)
	a.pathLengths = NewRollingWindow[float64](a.windowSize)
	a.alertsFired, a.alertsDropped = 0, 0
}

// RecordFrame appends one sample to each frame window. Every confidence is
// pushed into the confidence window individually.
func (a *Aggregator) RecordFrame(s FrameSample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalFrames++
	a.totalDets += int64(s.DetectionCount)
	a.lastFrame = s.FrameNumber
	a.lastFrameAt = s.Timestamp
	a.trend.Push(TrendPoint{FrameNumber: s.FrameNumber, Timestamp: s.Timestamp, Detections: s.DetectionCount, Tracks: s.TrackCount})
	a.detections.Push(float64(s.DetectionCount))
	a.tracks.Push(float64(s.TrackCount))
	for _, c := range s.Confidences {
		a.confidences.Push(c)
	}
	a.processingMs.Push(float64(s.ProcessingTime) / float64(time.Millisecond))
	a.fps.Push(s.FPS)
}

// RecordDropped counts detections discarded as malformed.
func (a *Aggregator) RecordDropped(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.droppedDets += int64(n)
}

// FrameStatistics derives frame statistics from the current windows.
func (a *Aggregator) FrameStatistics() FrameStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frameStatsLocked()
}

func (a *Aggregator) frameStatsLocked() FrameStats {
	dets := a.detections.Values()
	trk := a.tracks.Values()
	proc := a.processingMs.Values()
	fps := a.fps.Values()
	return FrameStats{
		TotalFrames:       a.totalFrames,
		WindowFrames:      len(dets),
		AvgDetections:     mean(dets),
		MaxDetections:     maxOf(dets),
		AvgTracks:         mean(trk),
		MaxTracks:         maxOf(trk),
		AvgConfidence:     mean(a.confidences.Values()),
		AvgProcessingMs:   mean(proc),
		MaxProcessingMs:   maxOf(proc),
		AvgFPS:            mean(fps),
		MaxFPS:            maxOf(fps),
		LastFrameNumber:   a.lastFrame,
		TotalDetections:   a.totalDets,
		DroppedDetections: a.droppedDets,
	}
}

// RecordZoneOccupancy records one frame of per-zone counts. An entry is
// counted on a 0 to non-zero transition and an exit on the reverse, both
// relative to the previous recorded frame for that zone. Zones missing
// from counts keep their previous state.
func (a *Aggregator) RecordZoneOccupancy(counts map[string]int, ts time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, n := range counts {
		z, ok := a.zones[id]
		if !ok {
			z = &zoneState{occupancy: NewRollingWindow[float64](a.windowSize)}
			a.zones[id] = z
		}
		prev := z.current
		if z.seen {
			if prev == 0 && n > 0 {
				z.entries++
			} else if prev > 0 && n == 0 {
				z.exits++
			}
		} else if n > 0 {
			z.entries++
		}
		z.seen = true
		z.current = n
		if n > z.peak {
			z.peak = n
		}
		if n > 0 {
			z.occupiedFrames++
			z.lastOccupied = ts
		}
		z.occupancy.Push(float64(n))
	}
}

// ZoneStatistics returns the statistics of one zone.
func (a *Aggregator) ZoneStatistics(id string) (ZoneStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	z, ok := a.zones[id]
	if !ok {
		return ZoneStats{}, errs.NotFound("zone", id)
	}
	return z.stats(id), nil
}

// AllZoneStatistics returns statistics for every recorded zone ordered by
// zone id.
func (a *Aggregator) AllZoneStatistics() []ZoneStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allZonesLocked()
}

func (a *Aggregator) allZonesLocked() []ZoneStats {
	ids := make([]string, 0, len(a.zones))
	for id := range a.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ZoneStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.zones[id].stats(id))
	}
	return out
}

// ClearOccupancy zeroes a zone's current occupancy without counting an
// exit. Used when a zone stops being evaluated.
func (a *Aggregator) ClearOccupancy(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if z, ok := a.zones[id]; ok {
		z.current = 0
	}
}

// RemoveZone forgets a zone's statistics.
func (a *Aggregator) RemoveZone(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.zones, id)
}

func (z *zoneState) stats(id string) ZoneStats {
	s := ZoneStats{
		ZoneID:           id,
		OccupiedFrames:   z.occupiedFrames,
		TotalEntries:     z.entries,
		TotalExits:       z.exits,
		CurrentOccupancy: z.current,
		PeakOccupancy:    z.peak,
		AvgOccupancy:     mean(z.occupancy.Values()),
	}
	if !z.lastOccupied.IsZero() {
		t := z.lastOccupied
		s.LastOccupied = &t
	}
	return s
}

// RecordTracks records one frame of tracker output.
func (a *Aggregator) RecordTracks(active int, created []int64, evicted []tracking.Retired) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeTracks = active
	a.created += int64(len(created))
	a.evicted += int64(len(evicted))
	for _, r := range evicted {
		a.lifetimes.Push(float64(r.Lifetime))
		a.pathLengths.Push(r.PathLength)
	}
}

// TrackStatistics returns track totals and retired-track averages over the
// window.
func (a *Aggregator) TrackStatistics() TrackStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trackStatsLocked()
}

func (a *Aggregator) trackStatsLocked() TrackStats {
	life := a.lifetimes.Values()
	paths := a.pathLengths.Values()
	return TrackStats{
		ActiveTracks:      a.activeTracks,
		TotalCreated:      a.created,
		TotalEvicted:      a.evicted,
		AvgLifetimeFrames: mean(life),
		MaxLifetimeFrames: maxOf(life),
		AvgPathLength:     mean(paths),
		MaxPathLength:     maxOf(paths),
	}
}

// RecordAlerts adds to the fired and suppressed alert counters.
func (a *Aggregator) RecordAlerts(fired, suppressed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alertsFired += int64(fired)
	a.alertsDropped += int64(suppressed)
}

// AlertStatistics returns the alert counters.
func (a *Aggregator) AlertStatistics() AlertStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return AlertStats{Fired: a.alertsFired, Suppressed: a.alertsDropped}
}

// DetectionTrend returns the per-frame detection and track counts in the
// window, oldest first.
func (a *Aggregator) DetectionTrend() []TrendPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trend.Values()
}

// Summary bundles all statistics in one snapshot.
func (a *Aggregator) Summary() Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Summary{
		Frames:      a.frameStatsLocked(),
		Zones:       a.allZonesLocked(),
		Tracks:      a.trackStatsLocked(),
		Alerts:      AlertStats{Fired: a.alertsFired, Suppressed: a.alertsDropped},
		LastFrameAt: a.lastFrameAt,
	}
}

// Reset clears every window and counter.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Max(xs)
}
