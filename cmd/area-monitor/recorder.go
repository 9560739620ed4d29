package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/banshee-data/area-monitor/internal/db"
	"github.com/banshee-data/area-monitor/internal/pipeline"
	"github.com/banshee-data/area-monitor/internal/zones"
)

// summaryWriter is the storage side of frameRecorder.
type summaryWriter interface {
	RecordFrameSummary(s db.FrameSummary) error
}

// frameRecorder persists frame summaries from a bounded queue so frame
// processing never waits on the database.
type frameRecorder struct {
	store   summaryWriter
	queue   chan db.FrameSummary
	drops   atomic.Int64
	written atomic.Int64
}

func newFrameRecorder(store summaryWriter, size int) *frameRecorder {
	return &frameRecorder{store: store, queue: make(chan db.FrameSummary, size)}
}

// record queues a summary of res; it drops the summary when the queue is
// full.
func (r *frameRecorder) record(res pipeline.FrameResult) {
	select {
	case r.queue <- summaryFromResult(res):
	default:
		r.drops.Add(1)
	}
}

func (r *frameRecorder) dropped() int64 { return r.drops.Load() }

// run writes queued summaries until ctx is cancelled, then drains what is
// already queued.
func (r *frameRecorder) run(ctx context.Context) {
	for {
		select {
		case s := <-r.queue:
			r.write(s)
		case <-ctx.Done():
			for {
				select {
				case s := <-r.queue:
					r.write(s)
				default:
					return
				}
			}
		}
	}
}

func (r *frameRecorder) write(s db.FrameSummary) {
	if err := r.store.RecordFrameSummary(s); err != nil {
		log.Printf("frame summary %s/%d: %v", s.CameraID, s.FrameNumber, err)
		return
	}
	r.written.Add(1)
}

func summaryFromResult(res pipeline.FrameResult) db.FrameSummary {
	return db.FrameSummary{
		CameraID:     res.CameraID,
		FrameNumber:  res.FrameNumber,
		Timestamp:    res.Timestamp,
		Detections:   res.Detections,
		Dropped:      res.Dropped,
		Tracks:       len(res.Tracks),
		Alerts:       len(res.Alerts),
		Occupancy:    res.Occupancy,
		ProcessingMs: float64(res.ProcessingTime.Nanoseconds()) / 1e6,
		FPS:          res.FPS,
	}
}

// zoneSeed is one entry of the -zones file: a zone record plus the camera
// it belongs to.
type zoneSeed struct {
	Camera string `json:"camera"`
	zones.Record
}

// seedZones registers every zone in the JSON array at path and returns how
// many were added. Omitted zone fields take the zones.DefaultRecord values.
func seedZones(m *pipeline.Manager, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i, r := range raw {
		s := zoneSeed{Record: zones.DefaultRecord()}
		if err := json.Unmarshal(r, &s); err != nil {
			return i, fmt.Errorf("%s: zone %d: %w", path, i, err)
		}
		if _, err := m.Pipeline(s.Camera).AddZone(s.Record); err != nil {
			return i, fmt.Errorf("%s: zone %d (%q): %w", path, i, s.ID, err)
		}
	}
	return len(raw), nil
}
