package api

import (
	"net/http"

	"github.com/banshee-data/area-monitor/internal/httputil"
	"github.com/banshee-data/area-monitor/internal/zones"
)

func (s *Server) listZones(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, p.ListZones())
}

// createZone registers a zone, creating the camera pipeline on first use.
// Omitted fields take the zones.DefaultRecord values.
func (s *Server) createZone(w http.ResponseWriter, r *http.Request) {
	rec := zones.DefaultRecord()
	if !decodeJSON(w, r, &rec) {
		return
	}
	p := s.manager.Pipeline(r.PathValue("camera"))
	stored, err := p.AddZone(rec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, stored)
}

func (s *Server) getZone(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	rec, err := p.GetZone(r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

// updateZone replaces a zone. The id in the path wins over the body.
func (s *Server) updateZone(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	rec := zones.DefaultRecord()
	if !decodeJSON(w, r, &rec) {
		return
	}
	rec.ID = r.PathValue("id")
	stored, err := p.UpdateZone(rec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, stored)
}

func (s *Server) deleteZone(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	if err := p.RemoveZone(r.PathValue("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) toggleZone(w http.ResponseWriter, r *http.Request) {
	p, ok := s.camera(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		httputil.BadRequest(w, "enabled is required")
		return
	}
	id := r.PathValue("id")
	if err := p.ToggleZone(id, *body.Enabled); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := p.GetZone(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}
