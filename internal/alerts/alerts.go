// Package alerts turns per-frame zone occupancy into alerts, gated by a
// per-key cooldown and a trailing-minute rate limit.
package alerts

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/monitoring"
	"github.com/banshee-data/area-monitor/internal/tracking"
	"github.com/banshee-data/area-monitor/internal/zones"
)

// Level is the caller-supplied severity of an alert.
type Level string

const (
	LevelInfo     Level = zones.LevelInfo
	LevelWarning  Level = zones.LevelWarning
	LevelCritical Level = zones.LevelCritical
)

// ParseLevel validates s as a Level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelInfo, LevelWarning, LevelCritical:
		return l, nil
	}
	return "", errs.Validation("level", fmt.Sprintf("unknown level %q", s))
}

// Alert types produced by Evaluate. Raise accepts any type string.
const (
	TypePersonInZone = "personInZone"
	TypeZoneExit     = "zoneExit"
	TypeZoneCrowded  = "zoneCrowded"
	TypeManual       = "manual"
)

// Key builds the gating key for an alert type scoped to a zone.
func Key(alertType, zoneID string) string {
	return alertType + ":" + zoneID
}

// Alert is one fired alert.
type Alert struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	Type            string    `json:"type"`
	Message         string    `json:"message"`
	Level           Level     `json:"level"`
	Timestamp       time.Time `json:"timestamp"`
	CameraID        string    `json:"camera_id,omitempty"`
	ZoneID          string    `json:"zone_id,omitempty"`
	TriggeringCount int       `json:"triggering_count"`
	TrackIDs        []int64   `json:"track_ids,omitempty"`
	Labels          []string  `json:"labels,omitempty"`
	Forced          bool      `json:"forced,omitempty"`
	Acknowledged    bool      `json:"acknowledged"`
}

// Request describes an alert raised directly rather than by Evaluate.
type Request struct {
	Key             string // gating key; defaults to Type:ZoneID
	Type            string
	Message         string
	Level           Level
	ZoneID          string
	TriggeringCount int
	TrackIDs        []int64
	// Force bypasses both gates. The fire is still recorded.
	Force bool
}

// Config holds engine parameters.
type Config struct {
	CameraID     string
	Enabled      bool
	HistoryLimit int // retained alerts; oldest are dropped first
}

// Filter selects alerts in List. Zero fields match everything.
type Filter struct {
	Level              Level
	Since              time.Time
	ZoneID             string
	UnacknowledgedOnly bool
	Limit              int // most recent N after filtering
}

func (f Filter) match(a *Alert) bool {
	if f.Level != "" && a.Level != f.Level {
		return false
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	if f.ZoneID != "" && a.ZoneID != f.ZoneID {
		return false
	}
	if f.UnacknowledgedOnly && a.Acknowledged {
		return false
	}
	return true
}

// Stats summarises the retained alert history.
type Stats struct {
	Total          int           `json:"total_alerts"`
	Unacknowledged int           `json:"unacknowledged"`
	ByLevel        map[Level]int `json:"by_level"`
	Fired          int64         `json:"fired"`
	Suppressed     Suppressed    `json:"suppressed"`
}

// Engine evaluates occupancy for one camera and keeps its alert history.
type Engine struct {
	cfg     Config
	limiter *Limiter

	mu         sync.RWMutex
	alerts     []*Alert
	byID       map[string]*Alert
	fired      int64
	suppressed Suppressed // rejections of this engine's own alerts
	sinks      []Sink
}

// NewEngine creates an engine gated by limiter. Passing the same limiter to
// several engines makes cooldown and rate limit shared between them.
func NewEngine(cfg Config, limiter *Limiter, sinks ...Sink) *Engine {
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = 1000
	}
	return &Engine{
		cfg:     cfg,
		limiter: limiter,
		byID:    make(map[string]*Alert),
		sinks:   sinks,
	}
}

// AddSink registers another alert sink.
func (e *Engine) AddSink(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// Limiter returns the limiter gating this engine.
func (e *Engine) Limiter() *Limiter { return e.limiter }

// SetEnabled turns alert generation on or off. Disabled engines fire
// nothing from Evaluate; forced requests still go through.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Enabled = enabled
}

// Evaluate derives candidate alerts from the current occupancy of every
// enabled zone and returns the ones that pass the limiter. Candidates are
// considered in zone order, then entry, exit, crowding.
func (e *Engine) Evaluate(occupancy []zones.Occupancy, tracks []tracking.Snapshot, ts time.Time) []Alert {
	e.mu.RLock()
	enabled := e.cfg.Enabled
	e.mu.RUnlock()
	if !enabled {
		return nil
	}

	labels := make(map[int64]string, len(tracks))
	for _, t := range tracks {
		labels[t.TrackID] = t.ClassLabel
	}

	var out []Alert
	for _, occ := range occupancy {
		for _, req := range candidates(occ) {
			req.TrackIDs = occ.TrackIDs
			if a, ok := e.fire(req, ts, labelsOf(occ.TrackIDs, labels)); ok {
				out = append(out, a)
			}
		}
	}
	return out
}

func candidates(occ zones.Occupancy) []Request {
	level := Level(occ.Trigger.Level)
	var reqs []Request
	if occ.Trigger.AlertOnEntry && occ.Count >= 1 {
		reqs = append(reqs, Request{
			Type:            TypePersonInZone,
			Message:         "Person detected in zone: " + occ.Name,
			Level:           level,
			ZoneID:          occ.ZoneID,
			TriggeringCount: occ.Count,
		})
	}
	if occ.Trigger.AlertOnExit && occ.PrevCount >= 1 && occ.Count == 0 {
		reqs = append(reqs, Request{
			Type:            TypeZoneExit,
			Message:         "Zone cleared: " + occ.Name,
			Level:           level,
			ZoneID:          occ.ZoneID,
			TriggeringCount: occ.PrevCount,
		})
	}
	if occ.Trigger.MaxOccupancy > 0 && occ.Count >= occ.Trigger.MaxOccupancy {
		reqs = append(reqs, Request{
			Type:            TypeZoneCrowded,
			Message:         fmt.Sprintf("Zone %s over capacity: %d/%d", occ.Name, occ.Count, occ.Trigger.MaxOccupancy),
			Level:           LevelCritical,
			ZoneID:          occ.ZoneID,
			TriggeringCount: occ.Count,
		})
	}
	return reqs
}

func labelsOf(ids []int64, labels map[int64]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		l := labels[id]
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Raise fires a single alert. It returns false when the alert was
// suppressed or the engine is disabled and the request is not forced.
func (e *Engine) Raise(req Request, ts time.Time) (Alert, bool, error) {
	if req.Level == "" {
		req.Level = LevelWarning
	}
	if _, err := ParseLevel(string(req.Level)); err != nil {
		return Alert{}, false, err
	}
	if req.Message == "" {
		return Alert{}, false, errs.Validation("message", "must not be empty")
	}
	if req.Type == "" {
		req.Type = TypeManual
	}
	if !req.Force {
		e.mu.RLock()
		enabled := e.cfg.Enabled
		e.mu.RUnlock()
		if !enabled {
			return Alert{}, false, nil
		}
	}
	a, ok := e.fire(req, ts, nil)
	return a, ok, nil
}

func (e *Engine) fire(req Request, ts time.Time, labels []string) (Alert, bool) {
	key := req.Key
	if key == "" {
		key = Key(req.Type, req.ZoneID)
	}
	if req.Force {
		e.limiter.Record(key, ts)
	} else if d := e.limiter.Allow(key, ts); d != Allowed {
		e.mu.Lock()
		if d == SuppressedCooldown {
			e.suppressed.Cooldown++
		} else {
			e.suppressed.RateLimit++
		}
		e.mu.Unlock()
		return Alert{}, false
	}

	a := &Alert{
		ID:              uuid.NewString(),
		Key:             key,
		Type:            req.Type,
		Message:         req.Message,
		Level:           req.Level,
		Timestamp:       ts,
		CameraID:        e.cfg.CameraID,
		ZoneID:          req.ZoneID,
		TriggeringCount: req.TriggeringCount,
		TrackIDs:        append([]int64(nil), req.TrackIDs...),
		Labels:          labels,
		Forced:          req.Force,
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, a)
	e.byID[a.ID] = a
	e.fired++
	if over := len(e.alerts) - e.cfg.HistoryLimit; over > 0 {
		for _, old := range e.alerts[:over] {
			delete(e.byID, old.ID)
		}
		e.alerts = append(e.alerts[:0], e.alerts[over:]...)
	}
	sinks := e.sinks
	out := *a
	e.mu.Unlock()

	monitoring.Logf("alert %s [%s] %s", out.Key, out.Level, out.Message)
	for _, s := range sinks {
		if err := s.RecordAlert(out); err != nil {
			monitoring.Logf("alert sink error for %s: %v", out.ID, err)
		}
	}
	return out, true
}

// Acknowledge marks an alert as acknowledged. Gating state is unaffected.
func (e *Engine) Acknowledge(id string) error {
	e.mu.Lock()
	a, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return errs.NotFound("alert", id)
	}
	a.Acknowledged = true
	sinks := e.sinks
	e.mu.Unlock()

	for _, s := range sinks {
		if ack, ok := s.(Acknowledger); ok {
			if err := ack.AcknowledgeAlert(id); err != nil {
				monitoring.Logf("alert sink acknowledge error for %s: %v", id, err)
			}
		}
	}
	return nil
}

// Get returns the alert with the given id.
func (e *Engine) Get(id string) (Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.byID[id]
	if !ok {
		return Alert{}, errs.NotFound("alert", id)
	}
	return *a, nil
}

// List returns matching alerts, newest first.
func (e *Engine) List(f Filter) []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := []Alert{}
	for i := len(e.alerts) - 1; i >= 0; i-- {
		a := e.alerts[i]
		if !f.match(a) {
			continue
		}
		out = append(out, *a)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Suppressed returns how many of this engine's alerts were rejected. With a
// shared limiter this differs from Limiter().Suppressed().
func (e *Engine) Suppressed() Suppressed {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.suppressed
}

// Stats returns totals over the retained history plus lifetime fire and
// suppression counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{
		Total: len(e.alerts),
		ByLevel: map[Level]int{
			LevelInfo:     0,
			LevelWarning:  0,
			LevelCritical: 0,
		},
		Fired:      e.fired,
		Suppressed: e.suppressed,
	}
	for _, a := range e.alerts {
		if !a.Acknowledged {
			s.Unacknowledged++
		}
		s.ByLevel[a.Level]++
	}
	return s
}

// PruneOlderThan drops alerts whose age at now is maxAge or more and
// returns how many were removed.
func (e *Engine) PruneOlderThan(maxAge time.Duration, now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.alerts[:0]
	removed := 0
	for _, a := range e.alerts {
		if now.Sub(a.Timestamp) >= maxAge {
			delete(e.byID, a.ID)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	e.alerts = kept
	if removed > 0 {
		monitoring.Logf("Cleared %d old alerts", removed)
	}
	return removed
}

// Clear drops the whole alert history. Gating state is kept.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = nil
	e.byID = make(map[string]*Alert)
}

// Export writes the retained history as a JSON array, oldest first.
func (e *Engine) Export(w io.Writer) error {
	e.mu.RLock()
	list := make([]Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		list = append(list, *a)
	}
	e.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("failed to encode alerts: %w", err)
	}
	return nil
}
