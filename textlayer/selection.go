package textlayer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// Caret is a position inside the layer: a node index and a rune offset into
// that node's text.
type Caret struct {
	Node   int
	Offset int
}

func (c Caret) before(o Caret) bool {
	if c.Node != o.Node {
		return c.Node < o.Node
	}
	return c.Offset < o.Offset
}

// Selection is the result of selecting a range of text: the selected string
// and one viewport rectangle per node fragment, in reading order.
type Selection struct {
	Text  string
	Rects []viewport.Rect
}

func (s Selection) Empty() bool {
	return len(s.Rects) == 0 || strings.TrimSpace(s.Text) == ""
}

// Select returns the text between two carets, in either order. Fragment
// boxes are proportional to rune counts within each node. An unavailable
// layer selects nothing.
func (l *Layer) Select(from, to Caret) Selection {
	if l.Len() == 0 {
		return Selection{}
	}
	if to.before(from) {
		from, to = to, from
	}

	from = l.clampCaret(from)
	to = l.clampCaret(to)

	var (
		sb    strings.Builder
		rects []viewport.Rect
		last  = -1
		prev  string
	)

	for i := from.Node; i <= to.Node; i++ {
		it := l.items[i]
		runes := []rune(it.text)

		start, end := 0, len(runes)
		if i == from.Node {
			start = from.Offset
		}
		if i == to.Node {
			end = to.Offset
		}
		if start >= end {
			continue
		}

		frag := string(runes[start:end])
		if last >= 0 {
			switch {
			case it.line != last:
				sb.WriteByte('\n')
			case !endsSpace(prev) && !startsSpace(frag):
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(frag)
		last, prev = it.line, frag

		box, _, _, _ := l.docBox(it)
		n := float64(len(runes))
		part := viewport.Rect{
			X:      box.X + box.Width*float64(start)/n,
			Y:      box.Y,
			Width:  box.Width * float64(end-start) / n,
			Height: box.Height,
		}
		rects = append(rects, l.Viewport.RectToViewport(part))
	}

	return Selection{Text: sb.String(), Rects: rects}
}

func (l *Layer) clampCaret(c Caret) Caret {
	if c.Node < 0 {
		return Caret{}
	}
	if c.Node >= len(l.items) {
		i := len(l.items) - 1
		return Caret{Node: i, Offset: utf8.RuneCountInString(l.items[i].text)}
	}

	n := utf8.RuneCountInString(l.items[c.Node].text)
	if c.Offset < 0 {
		c.Offset = 0
	}
	if c.Offset > n {
		c.Offset = n
	}
	return c
}

func endsSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

// TextIn returns the text of the nodes lying mostly inside r, a rectangle in
// document space, together with their bounding box. It is how stored
// annotations recover the text they cover.
func (l *Layer) TextIn(r viewport.Rect) (string, viewport.Rect) {
	var (
		sb    strings.Builder
		boxes []viewport.Rect
		last  = -1
		prev  string
	)

	for i := 0; i < l.Len(); i++ {
		it := l.items[i]
		box, _, _, _ := l.docBox(it)
		if !pdfutils.IsWithinOverlapThresh(r.R2(), box.R2()) {
			continue
		}

		if last >= 0 {
			switch {
			case it.line != last:
				sb.WriteByte('\n')
			case !endsSpace(prev) && !startsSpace(it.text):
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(it.text)
		last, prev = it.line, it.text
		boxes = append(boxes, box)
	}

	return sb.String(), pdfutils.UnionRects(boxes)
}
