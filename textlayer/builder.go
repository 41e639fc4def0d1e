// Package textlayer turns the glyph runs of a page into positioned,
// independently selectable text nodes in viewport space.
package textlayer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"seehuhn.de/go/geom/matrix"

	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// GlyphRun is a contiguous string sharing one text rendering matrix and font,
// as reported by text extraction. Transform is in PDF user space (origin at
// the bottom left of the page); its translation is the baseline start.
type GlyphRun struct {
	Text      string
	Transform [6]float64
	FontName  string

	// Width is the advance of the run in PDF units, 0 when unknown.
	Width float64
}

var (
	ErrNoViewport      = errors.New("viewport has no page geometry")
	ErrNonFiniteMatrix = errors.New("glyph run transform is not finite")
	ErrBuildFailed     = errors.New("text layer build failed")
)

// ascent is the share of the font size above the baseline used to place the
// top of a node box.
const ascent = 0.8

// Builder reconstructs text layers. The zero value is ready to use.
type Builder struct {
	// Metrics measures text for horizontal scaling; nil uses the Go fonts.
	Metrics Metrics

	// LineTolerance is the bucket height, in document units, within which
	// baselines count as the same visual line. Defaults to 1.
	LineTolerance float64

	Log logrus.FieldLogger

	once sync.Once
}

// metrics is called from concurrent page renders sharing one builder.
func (b *Builder) metrics() Metrics {
	b.once.Do(func() {
		if b.Metrics == nil {
			b.Metrics = NewGoFontMetrics()
		}
	})
	return b.Metrics
}

func (b *Builder) log() logrus.FieldLogger {
	if b.Log == nil {
		return logrus.StandardLogger()
	}
	return b.Log
}

// item is a validated run in document space.
type item struct {
	text     string
	x        float64 // baseline start
	baseline float64
	size     float64 // font size in document units
	hscale   float64 // horizontal transform magnitude
	angle    float64 // clockwise degrees in document space
	width    float64
	font     string
	line     int
}

// Build reconstructs the text layer of one page. It never fails: if the runs
// cannot be processed the returned layer is Unavailable and carries the
// cause in Err.
func (b *Builder) Build(page int, runs []GlyphRun, vp viewport.Viewport) (layer *Layer) {
	defer func() {
		if r := recover(); r != nil {
			layer = b.Unavailable(page, vp, errors.Wrapf(ErrBuildFailed, "panic: %v", r))
		}
	}()

	items, err := b.collect(runs, vp)
	if err != nil {
		return b.Unavailable(page, vp, err)
	}

	return &Layer{
		Page:     page,
		Viewport: vp,
		Status:   Ready,
		items:    items,
		metrics:  b.metrics(),
	}
}

// Unavailable returns the placeholder layer for a page whose text could not
// be obtained. It only logs at debug level; reporting the failure is up to
// the caller.
func (b *Builder) Unavailable(page int, vp viewport.Viewport, err error) *Layer {
	b.log().WithFields(logrus.Fields{
		"page":  page,
		"error": err,
	}).Debug("text layer unavailable")

	return &Layer{
		Page:     page,
		Viewport: vp,
		Status:   Unavailable,
		Err:      err,
	}
}

func (b *Builder) collect(runs []GlyphRun, vp viewport.Viewport) ([]item, error) {
	m := vp.Mapper()
	if m == nil {
		return nil, ErrNoViewport
	}

	tol := b.LineTolerance
	if tol <= 0 {
		tol = 1
	}

	buckets := make(map[int64][]item)
	for i, run := range runs {
		for _, v := range run.Transform {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrapf(ErrNonFiniteMatrix, "run %d", i)
			}
		}
		if math.IsNaN(run.Width) || math.IsInf(run.Width, 0) {
			return nil, errors.Wrapf(ErrNonFiniteMatrix, "run %d width", i)
		}

		if pdfutils.IsBlank(run.Text) {
			continue
		}

		// text rendering matrix followed by the flip into document space
		t := matrix.Matrix(run.Transform).Mul(m.PDFMatrix())
		size := math.Hypot(t[2], t[3])
		if size == 0 {
			continue
		}

		it := item{
			text:     run.Text,
			x:        t[4],
			baseline: t[5],
			size:     size,
			hscale:   math.Hypot(t[0], t[1]),
			angle:    math.Atan2(t[1], t[0]) * 180 / math.Pi,
			width:    math.Abs(run.Width),
			font:     run.FontName,
		}

		key := int64(math.Round(it.baseline / tol))
		buckets[key] = append(buckets[key], it)
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	items := make([]item, 0, len(runs))
	for line, k := range keys {
		bucket := buckets[k]
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].x < bucket[j].x })
		for _, it := range bucket {
			it.line = line
			items = append(items, it)
		}
	}

	return items, nil
}

// docBox returns the document-space box of an item together with its
// horizontal scale factor and family.
func (l *Layer) docBox(it item) (box viewport.Rect, scaleX float64, family string, fallback bool) {
	family, known := fontFamily(it.font)
	fallback = !known

	var measured float64
	var ok bool
	if l.metrics != nil {
		measured, ok = l.metrics.Advance(it.text, family, it.size)
	}

	switch {
	case it.width > 0 && ok:
		scaleX = it.width / measured
	case it.size > 0:
		scaleX = it.hscale / it.size
	default:
		scaleX = 1
	}

	width := it.width
	if width == 0 {
		if ok {
			width = measured * scaleX
		} else {
			// half an em per character
			width = float64(utf8.RuneCountInString(it.text)) * it.size * 0.5 * scaleX
		}
	}

	box = viewport.Rect{
		X:      it.x,
		Y:      it.baseline - ascent*it.size,
		Width:  width,
		Height: it.size,
	}
	return box, scaleX, family, fallback
}

func (l *Layer) node(i int) Node {
	it := l.items[i]
	box, scaleX, family, fallback := l.docBox(it)
	vp := l.Viewport

	return Node{
		Index:        i,
		Line:         it.line,
		Text:         it.text,
		Origin:       vp.ToViewport(viewport.Point{X: box.X, Y: box.Y}),
		Bounds:       vp.RectToViewport(box),
		FontSize:     it.size * vp.Scale,
		FontFamily:   family,
		FallbackFont: fallback,
		ScaleX:       scaleX,
		Width:        box.Width * vp.Scale,
		Height:       box.Height * vp.Scale,
		Angle:        normalizeAngle(it.angle + float64(vp.Rotation)),
	}
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		return 0
	}
	return a
}

// String describes a node for debugging output.
func (n Node) String() string {
	return fmt.Sprintf("#%d line %d (%.1f,%.1f) %.1fpx %s x%.3f %q",
		n.Index, n.Line, n.Origin.X, n.Origin.Y, n.FontSize, n.FontFamily, n.ScaleX, n.Text)
}
