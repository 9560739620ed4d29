// Package tracking assigns persistent identities to per-frame detections
// using greedy nearest-centroid association.
package tracking

import (
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/banshee-data/area-monitor/internal/config"
	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/geometry"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	StateActive  TrackState = "active"  // matched on the most recent frame
	StateStale   TrackState = "stale"   // unmatched, still within MaxDisappeared
	StateEvicted TrackState = "evicted" // removed; the id is never reissued
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxDisappeared int     // Consecutive unmatched frames tolerated before eviction
	MaxDistance    float64 // Association gate on centroid distance (pixels)
	HistoryLength  int     // Centroid history ring capacity per track
	MaxTracks      int     // Maximum live tracks; 0 means unlimited
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MaxDisappeared: cfg.GetMaxDisappeared(),
		MaxDistance:    cfg.GetMaxDistance(),
		HistoryLength:  cfg.GetTrackHistoryLength(),
		MaxTracks:      cfg.GetMaxTracks(),
	}
}

// Detection is one detector output for a single frame.
type Detection struct {
	Box        geometry.Box `json:"box"`
	Confidence float64      `json:"confidence"`
	ClassLabel string       `json:"label,omitempty"`
}

// Centroid returns the centre of the detection's bounding box.
func (d Detection) Centroid() geometry.Point {
	return d.Box.Center()
}

// Valid reports whether the detection has a finite, non-negative box and a
// confidence within [0, 1].
func (d Detection) Valid() bool {
	if !d.Box.IsValid() {
		return false
	}
	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return false
	}
	return true
}

// Snapshot is a read-only copy of a live track.
type Snapshot struct {
	TrackID        int64          `json:"track_id"`
	Centroid       geometry.Point `json:"centroid"`
	Box            geometry.Box   `json:"box"`
	ClassLabel     string         `json:"label,omitempty"`
	Confidence     float64        `json:"confidence"`
	Age            int            `json:"age"` // frames the track has been matched
	Disappeared    int            `json:"disappeared"`
	State          TrackState     `json:"state"`
	FirstSeenFrame int64          `json:"first_seen_frame"`
	LastSeenFrame  int64          `json:"last_seen_frame"`
	PathLength     float64        `json:"path_length"`
}

// Retired describes a track at the moment it was evicted.
type Retired struct {
	TrackID    int64   `json:"track_id"`
	Lifetime   int64   `json:"lifetime_frames"` // first to last matched frame, inclusive
	Age        int     `json:"age"`
	PathLength float64 `json:"path_length"`
}

// Result is the outcome of one Update call.
type Result struct {
	Frame   int64
	Tracks  []Snapshot // live tracks ordered by id
	Created []int64
	Evicted []Retired
}

// Counters are lifetime totals for a tracker.
type Counters struct {
	Created int64 `json:"created"`
	Evicted int64 `json:"evicted"`
	Dropped int64 `json:"dropped"` // detections refused because MaxTracks was reached
}

type track struct {
	id          int64
	slot        int
	centroid    geometry.Point
	box         geometry.Box
	label       string
	confidence  float64
	age         int
	disappeared int
	state       TrackState
	firstSeen   int64
	lastSeen    int64
	pathLength  float64
}

func (t *track) snapshot() Snapshot {
	return Snapshot{
		TrackID:        t.id,
		Centroid:       t.centroid,
		Box:            t.box,
		ClassLabel:     t.label,
		Confidence:     t.confidence,
		Age:            t.age,
		Disappeared:    t.disappeared,
		State:          t.state,
		FirstSeenFrame: t.firstSeen,
		LastSeenFrame:  t.lastSeen,
		PathLength:     t.pathLength,
	}
}

// Tracker maintains the live track set of one camera stream.
type Tracker struct {
	Config TrackerConfig

	tracks   map[int64]*track
	nextID   int64
	history  *historyArena
	counters Counters

	mu sync.RWMutex
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		Config:  cfg,
		tracks:  make(map[int64]*track),
		nextID:  1,
		history: newHistoryArena(cfg.HistoryLength),
	}
}

// candidate is one gated (track, detection) pairing.
type candidate struct {
	dist    float64
	trackID int64
	det     int
}

// Update associates detections with live tracks for one frame.
//
// Pairs within MaxDistance are committed greedily, globally smallest
// distance first, ties broken by track id then detection index. Tracks left
// unmatched age by one frame and are evicted once Disappeared exceeds
// MaxDisappeared. Detections left unmatched open new tracks. Invalid
// detections are ignored.
func (t *Tracker) Update(frame int64, detections []Detection) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	dets := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Valid() {
			dets = append(dets, d)
		}
	}

	ids := t.sortedIDs()
	var cands []candidate
	for _, id := range ids {
		tr := t.tracks[id]
		for di := range dets {
			dist := geometry.Distance(tr.centroid, dets[di].Centroid())
			if dist <= t.Config.MaxDistance {
				cands = append(cands, candidate{dist: dist, trackID: id, det: di})
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.det < b.det
	})

	matchedTrack := make(map[int64]bool, len(ids))
	matchedDet := make([]bool, len(dets))
	for _, c := range cands {
		if matchedTrack[c.trackID] || matchedDet[c.det] {
			continue
		}
		matchedTrack[c.trackID] = true
		matchedDet[c.det] = true
		t.observe(t.tracks[c.trackID], dets[c.det], frame)
	}

	res := Result{Frame: frame}
	for _, id := range ids {
		if matchedTrack[id] {
			continue
		}
		tr := t.tracks[id]
		tr.disappeared++
		tr.state = StateStale
		if tr.disappeared > t.Config.MaxDisappeared {
			res.Evicted = append(res.Evicted, t.evict(tr))
		}
	}

	for di, d := range dets {
		if matchedDet[di] {
			continue
		}
		if t.Config.MaxTracks > 0 && len(t.tracks) >= t.Config.MaxTracks {
			t.counters.Dropped++
			continue
		}
		res.Created = append(res.Created, t.open(d, frame))
	}

	res.Tracks = t.snapshotsLocked()
	return res
}

func (t *Tracker) observe(tr *track, d Detection, frame int64) {
	c := d.Centroid()
	tr.pathLength += geometry.Distance(tr.centroid, c)
	tr.centroid = c
	tr.box = d.Box
	tr.confidence = d.Confidence
	if d.ClassLabel != "" {
		tr.label = d.ClassLabel
	}
	tr.age++
	tr.disappeared = 0
	tr.state = StateActive
	tr.lastSeen = frame
	t.history.push(tr.slot, c)
}

func (t *Tracker) open(d Detection, frame int64) int64 {
	tr := &track{
		id:         t.nextID,
		slot:       t.history.alloc(),
		centroid:   d.Centroid(),
		box:        d.Box,
		label:      d.ClassLabel,
		confidence: d.Confidence,
		age:        1,
		state:      StateActive,
		firstSeen:  frame,
		lastSeen:   frame,
	}
	t.nextID++
	t.history.push(tr.slot, tr.centroid)
	t.tracks[tr.id] = tr
	t.counters.Created++
	return tr.id
}

func (t *Tracker) evict(tr *track) Retired {
	tr.state = StateEvicted
	t.history.release(tr.slot)
	delete(t.tracks, tr.id)
	t.counters.Evicted++
	return Retired{
		TrackID:    tr.id,
		Lifetime:   tr.lastSeen - tr.firstSeen + 1,
		Age:        tr.age,
		PathLength: tr.pathLength,
	}
}

// Tracks returns snapshots of all live tracks ordered by id.
func (t *Tracker) Tracks() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotsLocked()
}

// Snapshot returns the live track with the given id.
func (t *Tracker) Snapshot(id int64) (Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[id]
	if !ok {
		return Snapshot{}, errs.NotFound("track", strconv.FormatInt(id, 10))
	}
	return tr.snapshot(), nil
}

// History returns the retained centroid history of a live track, oldest
// first.
func (t *Tracker) History(id int64) ([]geometry.Point, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[id]
	if !ok {
		return nil, errs.NotFound("track", strconv.FormatInt(id, 10))
	}
	return t.history.values(tr.slot), nil
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Counters returns lifetime creation and eviction totals.
func (t *Tracker) Counters() Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counters
}

// Reset drops every live track. Ids continue from where they left off so
// an id is never issued twice by the same tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int64]*track)
	t.history.reset()
}

func (t *Tracker) snapshotsLocked() []Snapshot {
	ids := t.sortedIDs()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.tracks[id].snapshot())
	}
	return out
}

func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
