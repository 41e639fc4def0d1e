package pdfutils

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// Color is an RGB colour with components in [0, 1].
type Color struct {
	R float64
	G float64
	B float64
}

var (
	Yellow = Color{R: 1, G: 0.92, B: 0.23}
	Blue   = Color{R: 0.13, G: 0.59, B: 0.95}
	Red    = Color{R: 0.96, G: 0.26, B: 0.21}
	Orange = Color{R: 1, G: 0.6, B: 0}
)

func toHEXStr(i int) string {
	s := fmt.Sprintf("%x", i)

	if len(s) == 1 {
		return "0" + s
	}

	return s
}

func channel(v float64) int {
	return int(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ParseColor reads a "#rrggbb" string.
func ParseColor(s string) (Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return Color{}, errors.Wrapf(err, "invalid color %q", s)
	}

	return Color{R: c.R, G: c.G, B: c.B}, nil
}

// Hex formats the colour as "#rrggbb".
func (c Color) Hex() string {
	return "#" + toHEXStr(channel(c.R)) + toHEXStr(channel(c.G)) + toHEXStr(channel(c.B))
}

func (c Color) String() string {
	return c.Hex()
}

// Clamped returns the colour with every component forced into [0, 1].
func (c Color) Clamped() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B)}
}

// Valid reports whether every component is a finite value in [0, 1].
func (c Color) Valid() bool {
	for _, v := range []float64{c.R, c.G, c.B} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

// Category names the hue family of the colour.
func (c Color) Category() string {
	color := colorful.Color{
		R: c.R,
		G: c.G,
		B: c.B,
	}
	h, s, l := color.Hsl()

	// define color category based on HSL
	if l < 0.12 {
		return "Black"
	}
	if l > 0.98 {
		return "White"
	}
	if s < 0.2 {
		return "Gray"
	}
	if h < 15 {
		return "Red"
	}
	if h < 45 {
		return "Orange"
	}
	if h < 65 {
		return "Yellow"
	}
	if h < 170 {
		return "Green"
	}
	if h < 190 {
		return "Cyan"
	}
	if h < 263 {
		return "Blue"
	}
	if h < 280 {
		return "Purple"
	}
	if h < 335 {
		return "Magenta"
	}
	return "Red"
}
