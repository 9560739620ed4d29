package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/area-monitor/internal/errs"
	"github.com/banshee-data/area-monitor/internal/tracking"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRollingWindowKeepsMostRecent(t *testing.T) {
	t.Parallel()
	w := NewRollingWindow[int](5)
	for i := 1; i <= 8; i++ {
		w.Push(i)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8}, w.Values())
	assert.Equal(t, 5, w.Len())
	assert.Equal(t, 5, w.Cap())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 8, last)

	w.Reset()
	assert.Empty(t, w.Values())
	_, ok = w.Last()
	assert.False(t, ok)
}

func TestRollingWindowPartialAndMinimumCapacity(t *testing.T) {
	t.Parallel()
	w := NewRollingWindow[string](3)
	w.Push("a")
	w.Push("b")
	assert.Equal(t, []string{"a", "b"}, w.Values())

	tiny := NewRollingWindow[float64](0)
	tiny.Push(1)
	tiny.Push(2)
	assert.Equal(t, []float64{2}, tiny.Values())
}

func TestEmptyStatisticsAreZero(t *testing.T) {
	t.Parallel()
	a := NewAggregator(10)
	assert.Equal(t, FrameStats{}, a.FrameStatistics())
	assert.Equal(t, TrackStats{}, a.TrackStatistics())
	assert.Empty(t, a.AllZoneStatistics())
	assert.Empty(t, a.DetectionTrend())
}

func TestFrameStatistics(t *testing.T) {
	t.Parallel()
	a := NewAggregator(3)
	samples := []FrameSample{
		{FrameNumber: 1, DetectionCount: 9, TrackCount: 9, Confidences: []float64{0.1}, ProcessingTime: 100 * time.Millisecond, FPS: 1},
		{FrameNumber: 2, DetectionCount: 2, TrackCount: 1, Confidences: []float64{0.5, 0.7}, ProcessingTime: 10 * time.Millisecond, FPS: 10},
		{FrameNumber: 3, DetectionCount: 4, TrackCount: 3, Confidences: []float64{0.9}, ProcessingTime: 20 * time.Millisecond, FPS: 20},
		{FrameNumber: 4, DetectionCount: 0, TrackCount: 2, ProcessingTime: 30 * time.Millisecond, FPS: 30},
	}
	for _, s := range samples {
		s.Timestamp = t0.Add(time.Duration(s.FrameNumber) * time.Second)
		a.RecordFrame(s)
	}

	got := a.FrameStatistics()
	assert.Equal(t, int64(4), got.TotalFrames)
	assert.Equal(t, 3, got.WindowFrames)
	assert.InDelta(t, 2.0, got.AvgDetections, 1e-9)
	assert.Equal(t, 4.0, got.MaxDetections)
	assert.InDelta(t, 2.0, got.AvgTracks, 1e-9)
	assert.Equal(t, 3.0, got.MaxTracks)
	// Confidence window holds the last three values: 0.5, 0.7, 0.9.
	assert.InDelta(t, 0.7, got.AvgConfidence, 1e-9)
	assert.InDelta(t, 20.0, got.AvgProcessingMs, 1e-9)
	assert.InDelta(t, 20.0, got.AvgFPS, 1e-9)
	assert.Equal(t, 30.0, got.MaxFPS)
	assert.Equal(t, int64(4), got.LastFrameNumber)
	assert.Equal(t, int64(15), got.TotalDetections)

	trend := a.DetectionTrend()
	want := []TrendPoint{
		{FrameNumber: 2, Timestamp: t0.Add(2 * time.Second), Detections: 2, Tracks: 1},
		{FrameNumber: 3, Timestamp: t0.Add(3 * time.Second), Detections: 4, Tracks: 3},
		{FrameNumber: 4, Timestamp: t0.Add(4 * time.Second), Detections: 0, Tracks: 2},
	}
	if diff := cmp.Diff(want, trend); diff != "" {
		t.Errorf("trend mismatch (-want +got):\n%s", diff)
	}
}

func TestZoneEntriesAndExits(t *testing.T) {
	t.Parallel()
	a := NewAggregator(10)
	sequence := []int{0, 1, 2, 0, 0, 3, 0}
	for i, n := range sequence {
		a.RecordZoneOccupancy(map[string]int{"door": n}, t0.Add(time.Duration(i)*time.Second))
	}

	got, err := a.ZoneStatistics("door")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalEntries)
	assert.Equal(t, int64(2), got.TotalExits)
	assert.Equal(t, int64(3), got.OccupiedFrames)
	assert.Equal(t, 0, got.CurrentOccupancy)
	assert.Equal(t, 3, got.PeakOccupancy)
	assert.InDelta(t, 6.0/7.0, got.AvgOccupancy, 1e-9)
	require.NotNil(t, got.LastOccupied)
	assert.True(t, got.LastOccupied.Equal(t0.Add(5*time.Second)))
}

func TestZoneFirstFrameOccupiedCountsEntry(t *testing.T) {
	t.Parallel()
	a := NewAggregator(10)
	a.RecordZoneOccupancy(map[string]int{"a": 2, "b": 0}, t0)

	all := a.AllZoneStatistics()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ZoneID)
	assert.Equal(t, int64(1), all[0].TotalEntries)
	assert.Equal(t, int64(0), all[1].TotalEntries)
	assert.Nil(t, all[1].LastOccupied)

	a.RemoveZone("a")
	_, err := a.ZoneStatistics("a")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestTrackStatistics(t *testing.T) {
	t.Parallel()
	a := NewAggregator(2)
	a.RecordTracks(2, []int64{1, 2}, nil)
	a.RecordTracks(1, []int64{3}, []tracking.Retired{{TrackID: 1, Lifetime: 10, PathLength: 100}})
	a.RecordTracks(0, nil, []tracking.Retired{
		{TrackID: 2, Lifetime: 20, PathLength: 40},
		{TrackID: 3, Lifetime: 30, PathLength: 60},
	})

	got := a.TrackStatistics()
	assert.Equal(t, TrackStats{
		ActiveTracks:      0,
		TotalCreated:      3,
		TotalEvicted:      3,
		AvgLifetimeFrames: 25,
		MaxLifetimeFrames: 30,
		AvgPathLength:     50,
		MaxPathLength:     60,
	}, got)
}

func TestSummaryAndReset(t *testing.T) {
	t.Parallel()
	a := NewAggregator(5)
	a.RecordFrame(FrameSample{FrameNumber: 7, Timestamp: t0, DetectionCount: 1, TrackCount: 1, FPS: 15})
	a.RecordZoneOccupancy(map[string]int{"z": 1}, t0)
	a.RecordTracks(1, []int64{1}, nil)
	a.RecordAlerts(2, 3)
	a.RecordDropped(4)

	s := a.Summary()
	assert.Equal(t, int64(1), s.Frames.TotalFrames)
	assert.Equal(t, int64(4), s.Frames.DroppedDetections)
	require.Len(t, s.Zones, 1)
	assert.Equal(t, 1, s.Tracks.ActiveTracks)
	assert.Equal(t, AlertStats{Fired: 2, Suppressed: 3}, s.Alerts)
	assert.True(t, s.LastFrameAt.Equal(t0))
	assert.Equal(t, AlertStats{Fired: 2, Suppressed: 3}, a.AlertStatistics())

	a.Reset()
	s = a.Summary()
	assert.Equal(t, FrameStats{}, s.Frames)
	assert.Empty(t, s.Zones)
	assert.Equal(t, AlertStats{}, s.Alerts)
	assert.Equal(t, 5, a.WindowSize())
}
