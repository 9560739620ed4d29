package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/config"
	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/geometry"
	"github.com/banshee-data/area-monitor/internal/timeutil"
	"github.com/banshee-data/area-monitor/internal/tracking"
	"github.com/banshee-data/area-monitor/internal/zones"
)

var t0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testPipeline(t *testing.T) (*Pipeline, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(t0)
	cfg := ConfigFromTuning("cam1", config.MustLoadDefaultConfig())
	cfg.Clock = clock
	return New(cfg, nil), clock
}

func rectRecord(id string, x, y, w, h float64) zones.Record {
	return zones.Record{
		ID:      id,
		Name:    "Zone " + id,
		Enabled: true,
		Shape: geometry.Record{
			Type:   geometry.KindRectangle,
			Corner: &geometry.Point{X: x, Y: y},
			Width:  ptr(w),
			Height: ptr(h),
		},
		Trigger: zones.DefaultTrigger(),
	}
}

func person(cx, cy float64) tracking.Detection {
	return tracking.Detection{
		Box:        geometry.Box{X: cx - 5, Y: cy - 10, W: 10, H: 20},
		Confidence: 0.8,
		ClassLabel: "person",
	}
}

func frame(n int64, dets ...tracking.Detection) Frame {
	return Frame{CameraID: "cam1", Number: n, Timestamp: t0.Add(time.Duration(n) * 100 * time.Millisecond), Detections: dets}
}

func TestProcessFrameEndToEnd(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("door", 0, 0, 100, 100))
	require.NoError(t, err)

	res := p.ProcessFrame(frame(1, person(50, 50), person(300, 300)))
	assert.Equal(t, []int64{1, 2}, res.Created)
	assert.Equal(t, []zones.Membership{{TrackID: 1, ZoneID: "door"}}, res.Memberships)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "personInZone:door", res.Alerts[0].Key)
	assert.Equal(t, "cam1", res.Alerts[0].CameraID)
	assert.Equal(t, []string{"person"}, res.Alerts[0].Labels)

	// Same track still inside 100ms later: suppressed by the 5s cooldown.
	res = p.ProcessFrame(frame(2, person(52, 50), person(300, 300)))
	assert.Empty(t, res.Alerts)
	assert.InDelta(t, 10.0, res.FPS, 1e-9)

	stats := p.FrameStatistics()
	assert.Equal(t, int64(2), stats.TotalFrames)
	assert.Equal(t, 2.0, stats.AvgDetections)

	zs, err := p.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, int64(1), zs.TotalEntries)
	assert.Equal(t, int64(2), zs.OccupiedFrames)

	sum := p.Summary()
	assert.Equal(t, int64(1), sum.Alerts.Fired)
	assert.Equal(t, int64(1), sum.Alerts.Suppressed)
	assert.Equal(t, int64(2), sum.Tracks.TotalCreated)

	list := p.ListAlerts(alerts.Filter{})
	require.Len(t, list, 1)
	require.NoError(t, p.AcknowledgeAlert(list[0].ID))
	got, err := p.GetAlert(list[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
}

func TestMalformedDetectionsDroppedAndLogged(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	p, _ := testPipeline(t)
	bad := tracking.Detection{Box: geometry.Box{X: math.NaN(), Y: 1, W: 1, H: 1}, Confidence: 0.5}
	res := p.ProcessFrame(frame(1, bad, person(10, 10)))
	assert.Equal(t, 1, res.Dropped)
	assert.Len(t, res.Tracks, 1)
	assert.Contains(t, ops.String(), "dropping malformed detection 0")

	// The next frame is unaffected.
	res = p.ProcessFrame(frame(2, person(11, 10)))
	assert.Equal(t, 0, res.Dropped)
	assert.Len(t, res.Tracks, 1)
	assert.Equal(t, int64(1), p.FrameStatistics().DroppedDetections)
}

func TestZoneCRUD(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)

	rec, err := p.AddZone(rectRecord("a", 0, 0, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ID)

	_, err = p.AddZone(rectRecord("a", 0, 0, 10, 10))
	assert.True(t, errors.Is(err, errs.ErrDuplicateID))

	invalid := rectRecord("b", 0, 0, -1, 10)
	_, err = p.AddZone(invalid)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	require.NoError(t, p.ToggleZone("a", false))
	z, err := p.GetZone("a")
	require.NoError(t, err)
	assert.False(t, z.Enabled)

	p.ProcessFrame(frame(1, person(5, 5)))
	assert.Empty(t, p.ListAlerts(alerts.Filter{}))

	require.NoError(t, p.RemoveZone("a"))
	assert.Empty(t, p.ListZones())
	assert.True(t, errors.Is(p.RemoveZone("a"), errs.ErrNotFound))
	assert.True(t, errors.Is(p.ToggleZone("a", true), errs.ErrNotFound))
}

func TestRemoveZoneClearsStatistics(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("a", 0, 0, 100, 100))
	require.NoError(t, err)
	p.ProcessFrame(frame(1, person(50, 50)))

	require.NoError(t, p.RemoveZone("a"))
	_, err = p.ZoneStatistics("a")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestTrackDetail(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	for i := int64(1); i <= 3; i++ {
		p.ProcessFrame(frame(i, person(float64(10*i), 50)))
	}

	d, err := p.Track(1)
	require.NoError(t, err)
	assert.Len(t, d.History, 3)
	assert.InDelta(t, 10.0, d.AvgSpeed, 1e-9)
	assert.Equal(t, 3, d.Age)

	_, err = p.Track(42)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRaiseAndPruneUsePipelineClock(t *testing.T) {
	t.Parallel()
	p, clock := testPipeline(t)

	a, ok, err := p.RaiseAlert(alerts.Request{Message: "manual check", Level: alerts.LevelInfo})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, a.Timestamp.Equal(t0))

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, p.PruneAlerts(time.Hour))
	assert.Equal(t, 0, p.AlertStats().Total)
}

func TestZeroTimestampUsesClock(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	res := p.ProcessFrame(Frame{Number: 1, Detections: []tracking.Detection{person(1, 1)}})
	assert.True(t, res.Timestamp.Equal(t0))
}

func TestResetKeepsZones(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("a", 0, 0, 100, 100))
	require.NoError(t, err)
	p.ProcessFrame(frame(1, person(50, 50)))

	p.Reset()
	assert.Empty(t, p.Tracks())
	assert.Equal(t, int64(0), p.FrameStatistics().TotalFrames)
	assert.Len(t, p.ListZones(), 1)

	res := p.ProcessFrame(frame(2, person(50, 50)))
	assert.Equal(t, []int64{2}, res.Created)
}

func TestRunConsumesUntilClosed(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	frames := make(chan Frame, 3)
	frames <- frame(1, person(1, 1))
	frames <- frame(2, person(2, 1))
	frames <- frame(3, person(3, 1))
	close(frames)

	require.NoError(t, p.Run(context.Background(), frames))
	assert.Equal(t, int64(3), p.FrameStatistics().TotalFrames)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, make(chan Frame))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateZone(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("a", 0, 0, 10, 10))
	require.NoError(t, err)

	rec := rectRecord("a", 0, 0, 100, 100)
	rec.Name = "lobby"
	got, err := p.UpdateZone(rec)
	require.NoError(t, err)
	assert.Equal(t, "lobby", got.Name)

	res := p.ProcessFrame(frame(1, person(50, 50)))
	assert.Len(t, res.Alerts, 1)

	_, err = p.UpdateZone(rectRecord("b", 0, 0, 1, 1))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestRemoveZoneWaitsForFrameInFlight(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("door", 0, 0, 100, 100))
	require.NoError(t, err)

	// The sink runs while the frame is being processed; the removal it
	// starts must not slip in before the frame's zone statistics are
	// recorded.
	removed := make(chan error, 1)
	earlyRemoval := false
	p.AddSink(alerts.SinkFunc(func(a alerts.Alert) error {
		go func() { removed <- p.RemoveZone("door") }()
		select {
		case err := <-removed:
			earlyRemoval = true
			removed <- err
		case <-time.After(20 * time.Millisecond):
		}
		return nil
	}))

	res := p.ProcessFrame(frame(1, person(50, 50)))
	require.Len(t, res.Alerts, 1)
	assert.False(t, earlyRemoval, "zone removed in the middle of a frame")
	require.NoError(t, <-removed)

	_, err = p.GetZone("door")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	_, err = p.ZoneStatistics("door")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Empty(t, p.AllZoneStatistics())
}

func TestDisabledZoneReportsNoOccupancy(t *testing.T) {
	t.Parallel()
	p, _ := testPipeline(t)
	_, err := p.AddZone(rectRecord("door", 0, 0, 100, 100))
	require.NoError(t, err)

	p.ProcessFrame(frame(1, person(50, 50)))
	stats, err := p.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CurrentOccupancy)

	require.NoError(t, p.ToggleZone("door", false))
	p.ProcessFrame(frame(2, person(51, 50)))
	stats, err = p.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentOccupancy)
	assert.Equal(t, int64(0), stats.TotalExits)

	// Re-enabling sees the person as a fresh entry in both the registry
	// and the statistics.
	require.NoError(t, p.ToggleZone("door", true))
	res := p.ProcessFrame(frame(3, person(52, 50)))
	require.Len(t, res.Occupancy, 1)
	stats, err = p.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, 1, stats.CurrentOccupancy)

	// Disabling through an update clears it too.
	rec := rectRecord("door", 0, 0, 100, 100)
	rec.Enabled = false
	_, err = p.UpdateZone(rec)
	require.NoError(t, err)
	stats, err = p.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentOccupancy)
}
