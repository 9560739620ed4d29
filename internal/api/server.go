// Package api exposes the camera pipelines over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/db"
	"github.com/banshee-data/area-monitor/internal/httputil"
	"github.com/banshee-data/area-monitor/internal/pipeline"
	"github.com/banshee-data/area-monitor/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// HistoryStore is the persisted history the server can query. *db.DB
// satisfies it.
type HistoryStore interface {
	ListAlerts(q db.AlertQuery) ([]alerts.Alert, error)
	FrameSummaries(camera string, start, end time.Time, limit int) ([]db.FrameSummary, error)
}

type Server struct {
	manager *pipeline.Manager
	history HistoryStore
	hub     *Broadcaster
	started time.Time

	// FrameHook, when set, receives every frame ingested over HTTP after it
	// has been processed.
	FrameHook func(pipeline.FrameResult)
}

// NewServer builds a server. history and hub may be nil; the routes that
// need them then answer 503.
func NewServer(manager *pipeline.Manager, history HistoryStore, hub *Broadcaster) *Server {
	return &Server{
		manager: manager,
		history: history,
		hub:     hub,
		started: time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs for hijacking.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/alerts" {
			// Hijacked connections never report a status.
			log.Printf("[ws] %s %s%s%s", r.Method, colorCyan, r.RequestURI, colorReset)
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/cameras", s.listCameras)
	mux.HandleFunc("POST /api/frames", s.ingestFrame)

	mux.HandleFunc("GET /api/cameras/{camera}/zones", s.listZones)
	mux.HandleFunc("POST /api/cameras/{camera}/zones", s.createZone)
	mux.HandleFunc("GET /api/cameras/{camera}/zones/{id}", s.getZone)
	mux.HandleFunc("PUT /api/cameras/{camera}/zones/{id}", s.updateZone)
	mux.HandleFunc("DELETE /api/cameras/{camera}/zones/{id}", s.deleteZone)
	mux.HandleFunc("POST /api/cameras/{camera}/zones/{id}/toggle", s.toggleZone)

	mux.HandleFunc("GET /api/cameras/{camera}/alerts", s.listAlerts)
	mux.HandleFunc("POST /api/cameras/{camera}/alerts", s.raiseAlert)
	mux.HandleFunc("DELETE /api/cameras/{camera}/alerts", s.clearAlerts)
	mux.HandleFunc("GET /api/cameras/{camera}/alerts/export", s.exportAlerts)
	mux.HandleFunc("GET /api/cameras/{camera}/alerts/stats", s.alertStats)
	mux.HandleFunc("GET /api/cameras/{camera}/alerts/history", s.alertHistory)
	mux.HandleFunc("GET /api/cameras/{camera}/alerts/{id}", s.getAlert)
	mux.HandleFunc("POST /api/cameras/{camera}/alerts/{id}/acknowledge", s.acknowledgeAlert)

	mux.HandleFunc("GET /api/cameras/{camera}/tracks", s.listTracks)
	mux.HandleFunc("GET /api/cameras/{camera}/tracks/{id}", s.getTrack)

	mux.HandleFunc("GET /api/cameras/{camera}/statistics", s.statisticsSummary)
	mux.HandleFunc("GET /api/cameras/{camera}/statistics/frames", s.frameStatistics)
	mux.HandleFunc("GET /api/cameras/{camera}/statistics/zones", s.allZoneStatistics)
	mux.HandleFunc("GET /api/cameras/{camera}/statistics/zones/{id}", s.zoneStatistics)
	mux.HandleFunc("GET /api/cameras/{camera}/statistics/tracks", s.trackStatistics)
	mux.HandleFunc("GET /api/cameras/{camera}/statistics/detections", s.detectionTrend)
	mux.HandleFunc("GET /api/cameras/{camera}/frames/history", s.frameHistory)

	mux.HandleFunc("GET /api/cameras/{camera}/charts/detections", s.detectionChartHTML)
	mux.HandleFunc("GET /api/cameras/{camera}/charts/detections.png", s.detectionChartPNG)

	if s.hub != nil {
		mux.Handle("GET /ws/alerts", s.hub)
	}
	return mux
}

// camera resolves the {camera} path value to an existing pipeline. Unknown
// cameras answer 404, except for zone creation which may create one.
func (s *Server) camera(w http.ResponseWriter, r *http.Request) (*pipeline.Pipeline, bool) {
	p, err := s.manager.Get(r.PathValue("camera"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return p, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":         "ok",
		"version":        version.Version,
		"cameras":        len(s.manager.Cameras()),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) listCameras(w http.ResponseWriter, r *http.Request) {
	type cameraInfo struct {
		ID     string `json:"id"`
		Zones  int    `json:"zones"`
		Tracks int    `json:"tracks"`
		Frames int64  `json:"frames"`
	}
	ids := s.manager.Cameras()
	out := make([]cameraInfo, 0, len(ids))
	for _, id := range ids {
		p, err := s.manager.Get(id)
		if err != nil {
			continue
		}
		out = append(out, cameraInfo{
			ID:     id,
			Zones:  len(p.ListZones()),
			Tracks: len(p.Tracks()),
			Frames: p.FrameStatistics().TotalFrames,
		})
	}
	httputil.WriteJSONOK(w, out)
}

type frameResponse struct {
	CameraID     string         `json:"camera_id"`
	FrameNumber  int64          `json:"frame"`
	Timestamp    time.Time      `json:"timestamp"`
	Tracks       int            `json:"tracks"`
	Created      []int64        `json:"created,omitempty"`
	Evicted      []int64        `json:"evicted,omitempty"`
	Occupancy    map[string]int `json:"occupancy"`
	Alerts       []alerts.Alert `json:"alerts"`
	Dropped      int            `json:"dropped"`
	ProcessingMs float64        `json:"processing_ms"`
}

func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	var msg pipeline.FrameMessage
	if !decodeJSON(w, r, &msg) {
		return
	}
	res := s.manager.ProcessFrame(msg.ToFrame())
	if s.FrameHook != nil {
		s.FrameHook(res)
	}
	evicted := make([]int64, len(res.Evicted))
	for i, e := range res.Evicted {
		evicted[i] = e.TrackID
	}
	fired := res.Alerts
	if fired == nil {
		fired = []alerts.Alert{}
	}
	httputil.WriteJSONOK(w, frameResponse{
		CameraID:     res.CameraID,
		FrameNumber:  res.FrameNumber,
		Timestamp:    res.Timestamp,
		Tracks:       len(res.Tracks),
		Created:      res.Created,
		Evicted:      evicted,
		Occupancy:    res.Occupancy,
		Alerts:       fired,
		Dropped:      res.Dropped,
		ProcessingMs: float64(res.ProcessingTime.Nanoseconds()) / 1e6,
	})
}
