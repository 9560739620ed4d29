package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/area-monitor/internal/analytics"
	"github.com/banshee-data/area-monitor/internal/db"
	"github.com/banshee-data/area-monitor/internal/httputil"
	"github.com/banshee-data/area-monitor/internal/tracking"
)

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	tracks := p.Tracks()
	if tracks == nil {
		tracks = []tracking.Snapshot{}
	}
	httputil.WriteJSONOK(w, tracks)
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "track id must be an integer")
		return
	}
	d, err := p.Track(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, d)
}

func (s *Server) statisticsSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, p.Summary())
}

func (s *Server) frameStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, p.FrameStatistics())
}

func (s *Server) allZoneStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	stats := p.AllZoneStatistics()
	if stats == nil {
		stats = []analytics.ZoneStats{}
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) zoneStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	zs, err := p.ZoneStatistics(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, zs)
}

func (s *Server) trackStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, p.TrackStatistics())
}

func (s *Server) detectionTrend(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	trend := p.DetectionTrend()
	if trend == nil {
		trend = []analytics.TrendPoint{}
	}
	httputil.WriteJSONOK(w, trend)
}

// frameHistory serves persisted frame summaries. Query params:
//   - hours (optional; default 1) lookback from now
//   - limit (optional; default 1000)
func (s *Server) frameHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}
	hours := 1
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'hours' parameter")
			return
		}
		hours = n
	}
	limit := 1000
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	rows, err := s.history.FrameSummaries(r.PathValue("camera"), start, end, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []db.FrameSummary{}
	}
	httputil.WriteJSONOK(w, rows)
}
