package viewport

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rotations = []Rotation{Rotate0, Rotate90, Rotate180, Rotate270}

func TestRoundTrip(t *testing.T) {
	m, err := New(612, 792)
	require.NoError(t, err)

	points := []Point{
		{X: 0, Y: 0},
		{X: 612, Y: 792},
		{X: 10.5, Y: 700.25},
		{X: 301.123456, Y: 0.000001},
	}

	for _, rot := range rotations {
		for _, scale := range []float64{0.1, 0.5, 1, 1.333, 2.5, 5} {
			t.Run(fmt.Sprintf("r%d-s%g", rot, scale), func(t *testing.T) {
				for _, p := range points {
					v, err := m.ToViewport(p, scale, rot)
					require.NoError(t, err)

					back, err := m.ToDocument(v, scale, rot)
					require.NoError(t, err)

					if d := cmp.Diff(p, back, cmpopts.EquateApprox(0, 1e-6)); d != "" {
						t.Error(d)
					}
				}
			})
		}
	}
}

func TestRotationSwapsExtents(t *testing.T) {
	m, err := New(600, 800)
	require.NoError(t, err)

	for _, rot := range rotations {
		vp, err := m.Viewport(1.5, rot)
		require.NoError(t, err)

		if rot.Swapped() {
			assert.InDelta(t, 800*1.5, vp.Width, 1e-9)
			assert.InDelta(t, 600*1.5, vp.Height, 1e-9)
		} else {
			assert.InDelta(t, 600*1.5, vp.Width, 1e-9)
			assert.InDelta(t, 800*1.5, vp.Height, 1e-9)
		}
	}
}

func TestPageStaysInPositiveQuadrant(t *testing.T) {
	m, err := New(100, 200)
	require.NoError(t, err)

	corners := []Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 200}, {X: 100, Y: 200}}

	for _, rot := range rotations {
		vp, err := m.Viewport(2, rot)
		require.NoError(t, err)

		for _, c := range corners {
			p := vp.ToViewport(c)
			assert.GreaterOrEqual(t, p.X, -1e-9, "rot %d corner %v", rot, c)
			assert.GreaterOrEqual(t, p.Y, -1e-9, "rot %d corner %v", rot, c)
			assert.LessOrEqual(t, p.X, vp.Width+1e-9)
			assert.LessOrEqual(t, p.Y, vp.Height+1e-9)
		}
	}
}

func TestRotate90IsClockwise(t *testing.T) {
	m, err := New(100, 200)
	require.NoError(t, err)

	// the top-left corner of the page ends up in the top-right corner
	p, err := m.ToViewport(Point{X: 0, Y: 0}, 1, Rotate90)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 200, Y: 0}, p)
}

func TestRectMapping(t *testing.T) {
	m, err := New(100, 200)
	require.NoError(t, err)

	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}

	for _, rot := range rotations {
		vr, err := m.RectToViewport(r, 2, rot)
		require.NoError(t, err)

		if rot.Swapped() {
			assert.InDelta(t, 80, vr.Width, 1e-9)
			assert.InDelta(t, 60, vr.Height, 1e-9)
		} else {
			assert.InDelta(t, 60, vr.Width, 1e-9)
			assert.InDelta(t, 80, vr.Height, 1e-9)
		}

		back, err := m.RectToDocument(vr, 2, rot)
		require.NoError(t, err)
		if d := cmp.Diff(r, back, cmpopts.EquateApprox(0, 1e-9)); d != "" {
			t.Errorf("rot %d: %s", rot, d)
		}
	}
}

func TestInvalidInput(t *testing.T) {
	m, err := New(100, 100)
	require.NoError(t, err)

	_, err = m.ToViewport(Point{}, 0, Rotate0)
	assert.True(t, errors.Is(err, ErrInvalidScale))

	_, err = m.ToViewport(Point{}, -1, Rotate0)
	assert.True(t, errors.Is(err, ErrInvalidScale))

	_, err = m.ToDocument(Point{}, 1, Rotation(45))
	assert.True(t, errors.Is(err, ErrInvalidRotation))

	_, err = New(0, 100)
	assert.True(t, errors.Is(err, ErrInvalidPageSize))
}

func TestNormalizeRotation(t *testing.T) {
	cases := map[int]Rotation{0: 0, 90: 90, 360: 0, 450: 90, -90: 270, -180: 180}
	for in, want := range cases {
		got, err := NormalizeRotation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %d", in)
	}
}

func TestToPDF(t *testing.T) {
	m, err := New(612, 792)
	require.NoError(t, err)

	got := m.ToPDF(Rect{X: 10, Y: 10, Width: 50, Height: 20})
	assert.Equal(t, Rect{X: 10, Y: 792 - 30, Width: 50, Height: 20}, got)

	assert.Equal(t, Point{X: 5, Y: 692}, m.FromPDF(Point{X: 5, Y: 100}))
}
