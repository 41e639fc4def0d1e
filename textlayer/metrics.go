package textlayer

import (
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/mgmeyers/pdfmarks/pdfutils"
)

const (
	SansSerif = "sans-serif"
	Serif     = "serif"
	Monospace = "monospace"
)

// Metrics measures the advance width of text set in a generic family.
type Metrics interface {
	// Advance returns the width of text at the given font size, or false if
	// the family cannot be measured.
	Advance(text, family string, size float64) (float64, bool)
}

// fontFamily maps a PDF font name to a generic family. The second result
// is false when the name gave no hint and the fallback was used.
func fontFamily(name string) (string, bool) {
	n := strings.ToLower(pdfutils.StripSubsetPrefix(name))

	switch {
	case n == "":
		return SansSerif, false
	case strings.Contains(n, "courier"), strings.Contains(n, "mono"),
		strings.Contains(n, "consola"), strings.Contains(n, "typewriter"):
		return Monospace, true
	case strings.Contains(n, "sans"), strings.Contains(n, "helvetica"),
		strings.Contains(n, "arial"), strings.Contains(n, "verdana"),
		strings.Contains(n, "calibri"):
		return SansSerif, true
	case strings.Contains(n, "times"), strings.Contains(n, "serif"),
		strings.Contains(n, "georgia"), strings.Contains(n, "garamond"),
		strings.Contains(n, "cambria"), strings.Contains(n, "roman"),
		strings.Contains(n, "cmr"), strings.Contains(n, "minion"):
		return Serif, true
	}

	return SansSerif, false
}

// measureSize is the point size faces are opened at; advances are scaled
// linearly from there.
const measureSize = 1000

// GoFontMetrics measures with the Go fonts bundled in x/image. Proportional
// families share the Go Regular face.
type GoFontMetrics struct {
	mu    sync.Mutex
	faces map[string]font.Face
	bad   map[string]bool
}

func NewGoFontMetrics() *GoFontMetrics {
	return &GoFontMetrics{
		faces: make(map[string]font.Face),
		bad:   make(map[string]bool),
	}
}

func (m *GoFontMetrics) face(family string) (font.Face, bool) {
	key := "regular"
	data := goregular.TTF
	if family == Monospace {
		key = "mono"
		data = gomono.TTF
	}

	if f, ok := m.faces[key]; ok {
		return f, true
	}
	if m.bad[key] {
		return nil, false
	}

	parsed, err := opentype.Parse(data)
	if err != nil {
		m.bad[key] = true
		return nil, false
	}

	f, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    measureSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		m.bad[key] = true
		return nil, false
	}

	m.faces[key] = f
	return f, true
}

func (m *GoFontMetrics) Advance(text, family string, size float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.face(family)
	if !ok {
		return 0, false
	}

	adv := font.MeasureString(f, text)
	w := float64(adv) / 64 * size / measureSize
	if w <= 0 {
		return 0, false
	}
	return w, true
}
