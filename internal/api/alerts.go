package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/banshee-data/area-monitor/internal/alerts"
	"github.com/banshee-data/area-monitor/internal/db"
	"github.com/banshee-data/area-monitor/internal/httputil"
)

// parseAlertFilter reads level, zone, since (RFC3339), unacknowledged and
// limit from the query string.
func parseAlertFilter(q url.Values) (alerts.Filter, error) {
	var f alerts.Filter
	if v := q.Get("level"); v != "" {
		level, err := alerts.ParseLevel(v)
		if err != nil {
			return f, err
		}
		f.Level = level
	}
	f.ZoneID = q.Get("zone")
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid 'since' parameter: %v", err)
		}
		f.Since = ts
	}
	if v := q.Get("unacknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid 'unacknowledged' parameter: %v", err)
		}
		f.UnacknowledgedOnly = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid 'limit' parameter")
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	list := p.ListAlerts(f)
	if list == nil {
		list = []alerts.Alert{}
	}
	httputil.WriteJSONOK(w, list)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	a, err := p.GetAlert(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, a)
}

func (s *Server) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := p.AcknowledgeAlert(id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := p.GetAlert(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, a)
}

type raiseRequest struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Level   string  `json:"level"`
	ZoneID  string  `json:"zone_id"`
	Key     string  `json:"key"`
	Force   bool    `json:"force"`
	Tracks  []int64 `json:"track_ids"`
}

// raiseAlert fires a manual alert. A gated request answers 202 with
// fired=false.
func (s *Server) raiseAlert(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	var body raiseRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	a, fired, err := p.RaiseAlert(alerts.Request{
		Key:      body.Key,
		Type:     body.Type,
		Message:  body.Message,
		Level:    alerts.Level(body.Level),
		ZoneID:   body.ZoneID,
		TrackIDs: body.Tracks,
		Force:    body.Force,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !fired {
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"fired": false})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"fired": true, "alert": a})
}

// exportAlerts downloads the in-memory history as a JSON file.
func (s *Server) exportAlerts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := p.ExportAlerts(&buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	name := fmt.Sprintf("alerts_%s_%s.json", p.CameraID(), time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Write(buf.Bytes())
}

func (s *Server) clearAlerts(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	p.ClearAlerts()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) alertStats(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, p.AlertStats())
}

// alertHistory serves persisted alerts, which outlive the in-memory
// history limit and process restarts.
func (s *Server) alertHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if f.Limit == 0 {
		f.Limit = 500
	}
	list, err := s.history.ListAlerts(db.AlertQuery{CameraID: r.PathValue("camera"), Filter: f})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	httputil.WriteJSONOK(w, list)
}
