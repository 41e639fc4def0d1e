package export

import (
	"strings"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

type shapeKind int

const (
	fill shapeKind = iota + 1
	bar
	note
)

// shape is one annotation converted to PDF user space.
type shape struct {
	id    string
	kind  shapeKind
	rect  viewport.Rect
	color pdfutils.Color
	lines []string
}

// planPage converts the annotations of one page into shapes. origin is the
// lower-left corner of the page box, which need not be at (0, 0).
func planPage(m *viewport.Mapper, origin viewport.Point, annots []annotation.Annotation, opts Options) []shape {
	shapes := make([]shape, 0, len(annots))

	for _, a := range annots {
		r := m.ToPDF(a.Rect)
		r.X += origin.X
		r.Y += origin.Y

		s := shape{id: a.ID, rect: r, color: a.Color.Clamped()}

		switch a.Type {
		case annotation.Highlight, annotation.Rectangle:
			s.kind = fill
		case annotation.Underline:
			s.kind = bar
			s.rect.Height = opts.UnderlineWidth
		case annotation.Note:
			s.kind = note
			size := opts.NoteMarker
			s.rect = viewport.Rect{X: r.X, Y: r.Y + r.Height - size, Width: size, Height: size}
			s.lines = noteLines(a.Text)
		default:
			continue
		}

		shapes = append(shapes, s)
	}

	return shapes
}

func noteLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimRight(pdfutils.RemoveNul(l), " \t")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
