// Package geometry implements the point-in-shape tests used for zone
// membership.
//
// A Shape is a tagged variant over polygon, rectangle and circle. All
// containment logic lives in Contains, which switches exhaustively on the
// kind; there is no per-shape interface dispatch.
package geometry

import (
	"fmt"
	"math"

	"github.com/banshee-data/area-monitor/internal/errs"
)

// Point is a 2D position in image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Box is an axis-aligned bounding box given by its top-left corner and size.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the centroid of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// IsValid reports whether the box has finite coordinates and a
// non-negative size.
func (b Box) IsValid() bool {
	return isFinite(b.X) && isFinite(b.Y) && isFinite(b.W) && isFinite(b.H) &&
		b.W >= 0 && b.H >= 0
}

// Kind enumerates the supported zone shapes.
type Kind string

const (
	KindPolygon   Kind = "polygon"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
)

// Shape is the tagged zone-shape variant. Only the fields belonging to
// Kind are meaningful:
//
//	polygon:   Points (ordered vertices, implicitly closed)
//	rectangle: Corner (top-left), Width, Height
//	circle:    Center, Radius
type Shape struct {
	Kind   Kind
	Points []Point
	Corner Point
	Width  float64
	Height float64
	Center Point
	Radius float64
}

// NewPolygon builds a validated polygon. The vertex slice is copied.
func NewPolygon(points []Point) (Shape, error) {
	s := Shape{Kind: KindPolygon, Points: append([]Point(nil), points...)}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// NewRectangle builds a validated rectangle from its top-left corner and size.
func NewRectangle(corner Point, width, height float64) (Shape, error) {
	s := Shape{Kind: KindRectangle, Corner: corner, Width: width, Height: height}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// NewCircle builds a validated circle.
func NewCircle(center Point, radius float64) (Shape, error) {
	s := Shape{Kind: KindCircle, Center: center, Radius: radius}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// RectangleFromCorners builds a rectangle from two opposite corners given in
// any order, as drawn by a user dragging a selection.
func RectangleFromCorners(a, b Point) (Shape, error) {
	corner := Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)}
	return NewRectangle(corner, math.Abs(a.X-b.X), math.Abs(a.Y-b.Y))
}

// CircleThrough builds a circle centred on center that passes through edge.
func CircleThrough(center, edge Point) (Shape, error) {
	return NewCircle(center, Distance(center, edge))
}

// Validate rejects malformed geometry. Values are never clamped.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindPolygon:
		if len(s.Points) < 3 {
			return errs.Validation("points", fmt.Sprintf("polygon needs at least 3 vertices, got %d", len(s.Points)))
		}
		for i, p := range s.Points {
			if !p.IsFinite() {
				return errs.Validation("points", fmt.Sprintf("vertex %d is not finite", i))
			}
		}
	case KindRectangle:
		if !s.Corner.IsFinite() || !isFinite(s.Width) || !isFinite(s.Height) {
			return errs.Validation("rectangle", "coordinates must be finite")
		}
		if s.Width < 0 {
			return errs.Validation("width", fmt.Sprintf("must be non-negative, got %g", s.Width))
		}
		if s.Height < 0 {
			return errs.Validation("height", fmt.Sprintf("must be non-negative, got %g", s.Height))
		}
	case KindCircle:
		if !s.Center.IsFinite() || !isFinite(s.Radius) {
			return errs.Validation("circle", "coordinates must be finite")
		}
		if s.Radius < 0 {
			return errs.Validation("radius", fmt.Sprintf("must be non-negative, got %g", s.Radius))
		}
	default:
		return errs.Validation("type", fmt.Sprintf("unknown shape kind %q", s.Kind))
	}
	return nil
}

// Contains reports whether p lies inside s. It is pure and deterministic.
//
// Rectangle bounds are inclusive and a circle contains points at exactly
// its radius. Polygons use the even-odd ray-casting rule; points lying on
// an edge or vertex may fall either way. A polygon with fewer than three
// vertices contains nothing.
func Contains(s Shape, p Point) bool {
	if !p.IsFinite() {
		return false
	}
	switch s.Kind {
	case KindRectangle:
		return p.X >= s.Corner.X && p.X <= s.Corner.X+s.Width &&
			p.Y >= s.Corner.Y && p.Y <= s.Corner.Y+s.Height
	case KindCircle:
		return Distance(s.Center, p) <= s.Radius
	case KindPolygon:
		return polygonContains(s.Points, p)
	}
	return false
}

func polygonContains(vertices []Point, p Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := vertices[i], vertices[j]
		// Edge straddles the horizontal ray through p.
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
