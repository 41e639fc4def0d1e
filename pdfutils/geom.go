package pdfutils

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Point is a position in a top-left origin coordinate system.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromPoints returns the smallest rectangle containing both points.
func RectFromPoints(a, b Point) Rect {
	return RectFromR2(r2.RectFromPoints(
		r2.Point{X: a.X, Y: a.Y},
		r2.Point{X: b.X, Y: b.Y},
	))
}

// RectFromR2 converts an r2 rectangle. Empty rectangles map to the zero Rect.
func RectFromR2(r r2.Rect) Rect {
	if r.IsEmpty() {
		return Rect{}
	}

	return Rect{
		X:      r.X.Lo,
		Y:      r.Y.Lo,
		Width:  r.X.Hi - r.X.Lo,
		Height: r.Y.Hi - r.Y.Lo,
	}
}

func (r Rect) R2() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: r.X, Hi: r.X + r.Width},
		Y: r1.Interval{Lo: r.Y, Hi: r.Y + r.Height},
	}
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Valid reports whether all fields are finite and the extents non-negative.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Width >= 0 && r.Height >= 0
}

func (r Rect) Union(o Rect) Rect {
	return RectFromR2(r.R2().Union(o.R2()))
}

func (r Rect) Intersection(o Rect) Rect {
	return RectFromR2(r.R2().Intersection(o.R2()))
}

// Overlaps reports whether the interiors of the two rectangles intersect.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

func IsWithinOverlapThresh(annot r2.Rect, mark r2.Rect) bool {
	markSize := getArea(mark)
	if markSize == 0 {
		return false
	}

	intersect := getArea(annot.Intersection(mark))

	return intersect/markSize >= 0.5
}

func getArea(r r2.Rect) float64 {
	if r.IsEmpty() {
		return 0
	}

	s := r.Size()
	return s.X * s.Y
}

// VerticalOverlap returns the shared height of a and b divided by the
// smaller of the two heights.
func VerticalOverlap(a, b Rect) float64 {
	shared := a.R2().Y.Intersection(b.R2().Y)
	if shared.IsEmpty() {
		return 0
	}

	minH := math.Min(a.Height, b.Height)
	if minH <= 0 {
		return 0
	}

	return shared.Length() / minH
}

// UnionRects returns the bounding box of the valid, non-empty rectangles.
func UnionRects(rects []Rect) Rect {
	bound := r2.EmptyRect()

	for _, rect := range rects {
		r := rect.R2()
		if !rect.Valid() || r.IsEmpty() {
			continue
		}

		bound = bound.Union(r)
	}

	return RectFromR2(bound)
}
