// Package viewport maps between document space and the scaled, rotated
// viewport a page is displayed in.
//
// Document space has its origin in the top-left corner of the unrotated page
// at scale 1.0. Viewport space is what the page looks like on screen: scaled,
// turned clockwise by a multiple of 90 degrees about the page origin, and
// translated so that the page again occupies the positive quadrant.
package viewport

import (
	"math"

	"github.com/pkg/errors"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	"github.com/mgmeyers/pdfmarks/pdfutils"
)

type (
	Point = pdfutils.Point
	Rect  = pdfutils.Rect
)

// Rotation is a clockwise page rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

var (
	ErrInvalidScale    = errors.New("scale must be a finite value > 0")
	ErrInvalidRotation = errors.New("rotation must be a multiple of 90 degrees")
	ErrInvalidPageSize = errors.New("page size must be finite and positive")
)

// NormalizeRotation folds any multiple of 90 into [0, 360).
func NormalizeRotation(deg int) (Rotation, error) {
	if deg%90 != 0 {
		return 0, errors.Wrapf(ErrInvalidRotation, "got %d", deg)
	}

	return Rotation(((deg % 360) + 360) % 360), nil
}

// Swapped reports whether the rotation exchanges width and height.
func (r Rotation) Swapped() bool {
	return r == Rotate90 || r == Rotate270
}

func checkScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return errors.Wrapf(ErrInvalidScale, "got %v", scale)
	}
	return nil
}

// Mapper converts coordinates for one page of the given unrotated size.
type Mapper struct {
	width  float64
	height float64
}

func New(width, height float64) (*Mapper, error) {
	for _, v := range []float64{width, height} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return nil, errors.Wrapf(ErrInvalidPageSize, "got %vx%v", width, height)
		}
	}

	return &Mapper{width: width, height: height}, nil
}

// Size returns the unrotated page size in document units.
func (m *Mapper) Size() (width, height float64) {
	return m.width, m.height
}

// base returns the rotation for scale 1.0 and its inverse.
func (m *Mapper) base(rot Rotation) (fwd, inv matrix.Matrix) {
	w, h := m.width, m.height

	switch rot {
	case Rotate90:
		return matrix.Matrix{0, 1, -1, 0, h, 0}, matrix.Matrix{0, -1, 1, 0, 0, h}
	case Rotate180:
		return matrix.Matrix{-1, 0, 0, -1, w, h}, matrix.Matrix{-1, 0, 0, -1, w, h}
	case Rotate270:
		return matrix.Matrix{0, -1, 1, 0, 0, w}, matrix.Matrix{0, 1, -1, 0, w, 0}
	default:
		return matrix.Identity, matrix.Identity
	}
}

// Viewport validates scale and rotation and returns the resulting viewport.
func (m *Mapper) Viewport(scale float64, rotation Rotation) (Viewport, error) {
	if err := checkScale(scale); err != nil {
		return Viewport{}, err
	}

	rot, err := NormalizeRotation(int(rotation))
	if err != nil {
		return Viewport{}, err
	}

	fwd, inv := m.base(rot)

	vp := Viewport{
		Scale:    scale,
		Rotation: rot,
		Width:    m.width * scale,
		Height:   m.height * scale,
		mapper:   m,
		toVP:     fwd.Mul(matrix.Scale(scale, scale)),
		toDoc:    matrix.Scale(1/scale, 1/scale).Mul(inv),
	}
	if rot.Swapped() {
		vp.Width, vp.Height = vp.Height, vp.Width
	}

	return vp, nil
}

func (m *Mapper) ToViewport(p Point, scale float64, rotation Rotation) (Point, error) {
	vp, err := m.Viewport(scale, rotation)
	if err != nil {
		return Point{}, err
	}

	return vp.ToViewport(p), nil
}

func (m *Mapper) ToDocument(p Point, scale float64, rotation Rotation) (Point, error) {
	vp, err := m.Viewport(scale, rotation)
	if err != nil {
		return Point{}, err
	}

	return vp.ToDocument(p), nil
}

func (m *Mapper) RectToViewport(r Rect, scale float64, rotation Rotation) (Rect, error) {
	vp, err := m.Viewport(scale, rotation)
	if err != nil {
		return Rect{}, err
	}

	return vp.RectToViewport(r), nil
}

func (m *Mapper) RectToDocument(r Rect, scale float64, rotation Rotation) (Rect, error) {
	vp, err := m.Viewport(scale, rotation)
	if err != nil {
		return Rect{}, err
	}

	return vp.RectToDocument(r), nil
}

// ToPDF converts a document-space rectangle into PDF user space, whose
// origin is the bottom-left corner of the page.
func (m *Mapper) ToPDF(r Rect) Rect {
	return Rect{
		X:      r.X,
		Y:      m.height - r.Y - r.Height,
		Width:  r.Width,
		Height: r.Height,
	}
}

// FromPDF converts a point in PDF user space into document space.
func (m *Mapper) FromPDF(p Point) Point {
	return Point{X: p.X, Y: m.height - p.Y}
}

// PDFMatrix returns the transformation from PDF user space into document
// space, for composing with glyph matrices.
func (m *Mapper) PDFMatrix() matrix.Matrix {
	return matrix.Matrix{1, 0, 0, -1, 0, m.height}
}

// Clamp restricts r to the page area.
func (m *Mapper) Clamp(r Rect) Rect {
	return r.Intersection(Rect{Width: m.width, Height: m.height})
}

// Contains reports whether p lies on the page.
func (m *Mapper) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= m.width && p.Y <= m.height
}

// Viewport is a validated scale and rotation for one page.
type Viewport struct {
	Scale    float64
	Rotation Rotation

	// Width and Height are the on-screen extents of the page.
	Width  float64
	Height float64

	mapper *Mapper
	toVP   matrix.Matrix
	toDoc  matrix.Matrix
}

func (v Viewport) Mapper() *Mapper {
	return v.mapper
}

// Transform returns the document-to-viewport matrix.
func (v Viewport) Transform() matrix.Matrix {
	return v.toVP
}

func (v Viewport) ToViewport(p Point) Point {
	q := v.toVP.Apply(vec.Vec2{X: p.X, Y: p.Y})
	return Point{X: q.X, Y: q.Y}
}

func (v Viewport) ToDocument(p Point) Point {
	q := v.toDoc.Apply(vec.Vec2{X: p.X, Y: p.Y})
	return Point{X: q.X, Y: q.Y}
}

func (v Viewport) RectToViewport(r Rect) Rect {
	return mapRect(r, v.ToViewport)
}

func (v Viewport) RectToDocument(r Rect) Rect {
	return mapRect(r, v.ToDocument)
}

// Same reports whether both viewports describe the same page geometry.
func (v Viewport) Same(o Viewport) bool {
	return v.mapper == o.mapper && v.Scale == o.Scale && v.Rotation == o.Rotation
}

func mapRect(r Rect, f func(Point) Point) Rect {
	a := f(Point{X: r.X, Y: r.Y})
	b := f(Point{X: r.Right(), Y: r.Bottom()})
	return pdfutils.RectFromPoints(a, b)
}
