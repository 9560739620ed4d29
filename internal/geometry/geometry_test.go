package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/area-monitor/internal/errs"
)

func mustRect(t *testing.T, x, y, w, h float64) Shape {
	t.Helper()
	s, err := NewRectangle(Point{X: x, Y: y}, w, h)
	require.NoError(t, err)
	return s
}

func TestRectangleContains(t *testing.T) {
	t.Parallel()
	rect := mustRect(t, 0, 0, 100, 100)

	tests := []struct {
		p    Point
		want bool
	}{
		{Point{50, 50}, true},
		{Point{150, 50}, false},
		{Point{100, 100}, true}, // inclusive far corner
		{Point{0, 0}, true},
		{Point{-0.001, 50}, false},
		{Point{50, 100.001}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Contains(rect, tt.p), "point %+v", tt.p)
	}
}

func TestCircleContains(t *testing.T) {
	t.Parallel()
	circle, err := NewCircle(Point{0, 0}, 10)
	require.NoError(t, err)

	assert.True(t, Contains(circle, Point{10, 0}))
	assert.False(t, Contains(circle, Point{10.01, 0}))
	assert.True(t, Contains(circle, Point{0, 0}))
	assert.True(t, Contains(circle, Point{6, 8}))
	assert.False(t, Contains(circle, Point{7.1, 7.1}))
}

func TestPolygonContains(t *testing.T) {
	t.Parallel()

	// Concave "L" shape.
	poly, err := NewPolygon([]Point{{0, 0}, {10, 0}, {10, 4}, {4, 4}, {4, 10}, {0, 10}})
	require.NoError(t, err)

	assert.True(t, Contains(poly, Point{2, 2}))
	assert.True(t, Contains(poly, Point{8, 2}))
	assert.True(t, Contains(poly, Point{2, 8}))
	assert.False(t, Contains(poly, Point{8, 8}), "notch of the L")
	assert.False(t, Contains(poly, Point{-1, 5}))
	assert.False(t, Contains(poly, Point{11, 2}))
}

func TestDegeneratePolygonNeverContains(t *testing.T) {
	t.Parallel()

	// Built literally, bypassing validation.
	for _, pts := range [][]Point{nil, {{0, 0}}, {{0, 0}, {10, 10}}} {
		s := Shape{Kind: KindPolygon, Points: pts}
		assert.NotPanics(t, func() {
			assert.False(t, Contains(s, Point{0, 0}))
		})
	}
}

func TestContainsIdempotent(t *testing.T) {
	t.Parallel()
	poly, err := NewPolygon([]Point{{0, 0}, {50, 0}, {25, 40}})
	require.NoError(t, err)
	shapes := []Shape{poly, mustRect(t, 0, 0, 10, 10)}
	points := []Point{{25, 10}, {0, 0}, {50, 0}, {25, 40}, {10, 10}, {12.5, 20}}

	for _, s := range shapes {
		for _, p := range points {
			first := Contains(s, p)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, Contains(s, p))
			}
		}
	}
}

func TestContainsRejectsNonFinitePoint(t *testing.T) {
	t.Parallel()
	rect := mustRect(t, 0, 0, 100, 100)
	assert.False(t, Contains(rect, Point{math.NaN(), 5}))
	assert.False(t, Contains(rect, Point{5, math.Inf(1)}))
}

func TestValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPolygon([]Point{{0, 0}, {1, 1}})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = NewPolygon([]Point{{0, 0}, {1, 1}, {math.NaN(), 2}})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = NewRectangle(Point{0, 0}, -1, 10)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = NewRectangle(Point{0, 0}, 10, -1)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, err = NewCircle(Point{0, 0}, -0.5)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	err = Shape{Kind: "hexagon"}.Validate()
	assert.True(t, errors.Is(err, errs.ErrValidation))

	// Zero-size shapes are valid: they contain only their own point.
	zero, err := NewRectangle(Point{5, 5}, 0, 0)
	require.NoError(t, err)
	assert.True(t, Contains(zero, Point{5, 5}))
}

func TestNewPolygonCopiesVertices(t *testing.T) {
	t.Parallel()
	pts := []Point{{0, 0}, {10, 0}, {0, 10}}
	poly, err := NewPolygon(pts)
	require.NoError(t, err)
	pts[1] = Point{-100, -100}
	assert.Equal(t, Point{10, 0}, poly.Points[1])
}

func TestRectangleFromCorners(t *testing.T) {
	t.Parallel()
	s, err := RectangleFromCorners(Point{100, 80}, Point{20, 10})
	require.NoError(t, err)
	assert.Equal(t, Point{20, 10}, s.Corner)
	assert.Equal(t, 80.0, s.Width)
	assert.Equal(t, 70.0, s.Height)
}

func TestCircleThrough(t *testing.T) {
	t.Parallel()
	s, err := CircleThrough(Point{0, 0}, Point{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, s.Radius, 1e-12)
}

func TestBoxCenterAndValidity(t *testing.T) {
	t.Parallel()
	b := Box{X: 10, Y: 20, W: 30, H: 40}
	assert.Equal(t, Point{25, 40}, b.Center())
	assert.True(t, b.IsValid())
	assert.False(t, Box{X: math.NaN()}.IsValid())
	assert.False(t, Box{W: -1}.IsValid())
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	poly, err := NewPolygon([]Point{{0, 0}, {10, 0}, {5, 5}})
	require.NoError(t, err)
	circle, err := NewCircle(Point{1, 2}, 3)
	require.NoError(t, err)

	for _, s := range []Shape{poly, circle, mustRect(t, 1, 2, 3, 4)} {
		got, err := s.Record().Shape()
		require.NoError(t, err)
		if diff := cmp.Diff(s, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRecordMissingFields(t *testing.T) {
	t.Parallel()
	_, err := Record{Type: KindRectangle}.Shape()
	assert.True(t, errors.Is(err, errs.ErrValidation))
	_, err = Record{Type: KindCircle}.Shape()
	assert.True(t, errors.Is(err, errs.ErrValidation))
	_, err = Record{Type: "blob"}.Shape()
	assert.True(t, errors.Is(err, errs.ErrValidation))
}
