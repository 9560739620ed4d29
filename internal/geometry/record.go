package geometry

import (
	"fmt"

	"github.com/banshee-data/area-monitor/internal/errs"
)

// Record is the JSON-safe form of a Shape exchanged with the API layer.
//
//	{"type":"polygon","points":[{"x":0,"y":0},...]}
//	{"type":"rectangle","corner":{"x":0,"y":0},"width":100,"height":50}
//	{"type":"circle","center":{"x":10,"y":10},"radius":5}
type Record struct {
	Type   Kind     `json:"type"`
	Points []Point  `json:"points,omitempty"`
	Corner *Point   `json:"corner,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Center *Point   `json:"center,omitempty"`
	Radius *float64 `json:"radius,omitempty"`
}

// Record converts s to its JSON-safe form.
func (s Shape) Record() Record {
	switch s.Kind {
	case KindPolygon:
		return Record{Type: KindPolygon, Points: append([]Point(nil), s.Points...)}
	case KindRectangle:
		corner, w, h := s.Corner, s.Width, s.Height
		return Record{Type: KindRectangle, Corner: &corner, Width: &w, Height: &h}
	case KindCircle:
		center, r := s.Center, s.Radius
		return Record{Type: KindCircle, Center: &center, Radius: &r}
	}
	return Record{Type: s.Kind}
}

// Shape parses r into a validated Shape. Missing parameters for the
// declared type are reported as validation errors.
func (r Record) Shape() (Shape, error) {
	switch r.Type {
	case KindPolygon:
		return NewPolygon(r.Points)
	case KindRectangle:
		if r.Corner == nil || r.Width == nil || r.Height == nil {
			return Shape{}, errs.Validation("rectangle", "corner, width and height are required")
		}
		return NewRectangle(*r.Corner, *r.Width, *r.Height)
	case KindCircle:
		if r.Center == nil || r.Radius == nil {
			return Shape{}, errs.Validation("circle", "center and radius are required")
		}
		return NewCircle(*r.Center, *r.Radius)
	}
	return Shape{}, errs.Validation("type", fmt.Sprintf("unknown shape type %q", r.Type))
}
