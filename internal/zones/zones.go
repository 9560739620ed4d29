// Package zones owns the user-defined monitoring zones of one camera and
// evaluates per-frame track membership against them.
package zones

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/geometry"
)

// Alert levels accepted in a zone trigger. They mirror alerts.Level; the
// alert engine passes them through unchanged.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// TriggerConfig controls which alerts a zone produces.
type TriggerConfig struct {
	AlertOnEntry bool   `json:"alert_on_entry"`
	AlertOnExit  bool   `json:"alert_on_exit"`
	Level        string `json:"level"`
	// MaxOccupancy raises a crowding alert when at least this many tracks
	// are inside the zone. Zero disables it.
	MaxOccupancy int `json:"max_occupancy,omitempty"`
}

// DefaultTrigger alerts on entry at warning level.
func DefaultTrigger() TriggerConfig {
	return TriggerConfig{AlertOnEntry: true, Level: LevelWarning}
}

func (c TriggerConfig) validate() error {
	switch c.Level {
	case LevelInfo, LevelWarning, LevelCritical:
	default:
		return errs.Validation("trigger.level", fmt.Sprintf("unknown level %q", c.Level))
	}
	if c.MaxOccupancy < 0 {
		return errs.Validation("trigger.max_occupancy", "must be non-negative")
	}
	return nil
}

// Zone is a named region of the camera image.
type Zone struct {
	ID      string
	Name    string
	Shape   geometry.Shape
	Enabled bool
	Trigger TriggerConfig
}

// Record is the JSON-safe representation of a Zone.
type Record struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Shape   geometry.Record `json:"shape"`
	Enabled bool            `json:"enabled"`
	Trigger TriggerConfig   `json:"trigger"`
}

// DefaultRecord is the starting point for decoding a zone: enabled, with
// the default trigger. Fields absent from the JSON keep these values.
func DefaultRecord() Record {
	return Record{Enabled: true, Trigger: DefaultTrigger()}
}

// Record converts z to its JSON-safe form.
func (z Zone) Record() Record {
	return Record{ID: z.ID, Name: z.Name, Shape: z.Shape.Record(), Enabled: z.Enabled, Trigger: z.Trigger}
}

// Zone parses r into a Zone, validating its geometry. An empty trigger
// level defaults to warning.
func (r Record) Zone() (Zone, error) {
	shape, err := r.Shape.Shape()
	if err != nil {
		return Zone{}, err
	}
	trigger := r.Trigger
	if trigger.Level == "" {
		trigger.Level = LevelWarning
	}
	return Zone{ID: r.ID, Name: r.Name, Shape: shape, Enabled: r.Enabled, Trigger: trigger}, nil
}

// TrackCentroid is the read-only position of one live track.
type TrackCentroid struct {
	TrackID  int64
	Centroid geometry.Point
}

// Membership records that a track's centroid lies inside a zone this frame.
type Membership struct {
	TrackID int64
	ZoneID  string
}

// Occupancy summarises one enabled zone for the current frame.
type Occupancy struct {
	ZoneID    string
	Name      string
	Trigger   TriggerConfig
	Count     int
	PrevCount int // count retained from the previous evaluation
	TrackIDs  []int64
}

// Evaluation is the per-frame output of Registry.Evaluate.
type Evaluation struct {
	Memberships []Membership
	Occupancy   []Occupancy
}

// Counts returns the occupancy counts keyed by zone id.
func (e Evaluation) Counts() map[string]int {
	out := make(map[string]int, len(e.Occupancy))
	for _, o := range e.Occupancy {
		out[o.ZoneID] = o.Count
	}
	return out
}

// Registry holds the zones of one camera.
type Registry struct {
	mu        sync.RWMutex
	zones     map[string]*Zone
	lastCount map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		zones:     make(map[string]*Zone),
		lastCount: make(map[string]int),
	}
}

// Add registers a zone. The id must be non-empty and unused and the shape
// must be valid.
func (r *Registry) Add(z Zone) error {
	z, err := prepare(z)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[z.ID]; ok {
		return errs.Duplicate("zone", z.ID)
	}
	r.zones[z.ID] = &z
	return nil
}

// Update replaces an existing zone's definition. The retained occupancy
// count survives so an unchanged crowd is not reported as a fresh entry.
func (r *Registry) Update(z Zone) error {
	z, err := prepare(z)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[z.ID]; !ok {
		return errs.NotFound("zone", z.ID)
	}
	r.zones[z.ID] = &z
	if !z.Enabled {
		delete(r.lastCount, z.ID)
	}
	return nil
}

func prepare(z Zone) (Zone, error) {
	if z.ID == "" {
		return z, errs.Validation("id", "must not be empty")
	}
	if err := z.Shape.Validate(); err != nil {
		return z, err
	}
	if z.Trigger.Level == "" {
		z.Trigger.Level = LevelWarning
	}
	if err := z.Trigger.validate(); err != nil {
		return z, err
	}
	if z.Shape.Kind == geometry.KindPolygon {
		z.Shape.Points = append([]geometry.Point(nil), z.Shape.Points...)
	}
	return z, nil
}

// Remove deletes a zone and any occupancy retained for it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[id]; !ok {
		return errs.NotFound("zone", id)
	}
	delete(r.zones, id)
	delete(r.lastCount, id)
	return nil
}

// Toggle enables or disables a zone.
func (r *Registry) Toggle(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return errs.NotFound("zone", id)
	}
	z.Enabled = enabled
	if !enabled {
		delete(r.lastCount, id)
	}
	return nil
}

// Get returns a copy of the zone with the given id.
func (r *Registry) Get(id string) (Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return Zone{}, errs.NotFound("zone", id)
	}
	return *z, nil
}

// List returns all zones as JSON-safe records ordered by id.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.zones))
	for _, id := range r.sortedIDs() {
		out = append(out, r.zones[id].Record())
	}
	return out
}

// Len returns the number of registered zones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// Clear removes every zone.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = make(map[string]*Zone)
	r.lastCount = make(map[string]int)
}

// Evaluate tests every track centroid against every enabled zone. The
// result is rebuilt from scratch on each call; only the per-zone count is
// retained so the next call can report PrevCount.
func (r *Registry) Evaluate(tracks []TrackCentroid) Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eval Evaluation
	for _, id := range r.sortedIDs() {
		z := r.zones[id]
		if !z.Enabled {
			continue
		}
		occ := Occupancy{ZoneID: z.ID, Name: z.Name, Trigger: z.Trigger, PrevCount: r.lastCount[z.ID]}
		for _, tc := range tracks {
			if geometry.Contains(z.Shape, tc.Centroid) {
				eval.Memberships = append(eval.Memberships, Membership{TrackID: tc.TrackID, ZoneID: z.ID})
				occ.TrackIDs = append(occ.TrackIDs, tc.TrackID)
			}
		}
		occ.Count = len(occ.TrackIDs)
		r.lastCount[z.ID] = occ.Count
		eval.Occupancy = append(eval.Occupancy, occ)
	}
	return eval
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.zones))
	for id := range r.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
