package textlayer

import (
	"iter"

	"github.com/mgmeyers/pdfmarks/viewport"
)

// Status tells whether a layer can be used for selection.
type Status int

const (
	Ready Status = iota
	Unavailable
)

func (s Status) String() string {
	if s == Unavailable {
		return "unavailable"
	}
	return "ready"
}

// Placeholder is shown in place of a text layer that could not be built.
const Placeholder = "text layer unavailable"

// Node describes one positioned, selectable span. Positions and sizes are in
// viewport space.
type Node struct {
	Index int
	Line  int
	Text  string

	// Origin is the top-left corner of the unrotated box.
	Origin viewport.Point
	Bounds viewport.Rect

	FontSize     float64
	FontFamily   string
	FallbackFont bool

	// ScaleX stretches the rendered glyphs so their advance matches the
	// source.
	ScaleX float64

	Width  float64
	Height float64

	// Angle is the clockwise rotation of the node in degrees.
	Angle float64
}

// Layer is the text layer of one page.
type Layer struct {
	Page     int
	Viewport viewport.Viewport
	Status   Status

	// Err is the cause when Status is Unavailable.
	Err error

	items   []item
	metrics Metrics
}

// Available reports whether selection-based annotation can use the layer.
func (l *Layer) Available() bool {
	return l != nil && l.Status == Ready
}

// Len is the number of nodes the layer yields.
func (l *Layer) Len() int {
	if !l.Available() {
		return 0
	}
	return len(l.items)
}

// Lines is the number of visual lines.
func (l *Layer) Lines() int {
	if l.Len() == 0 {
		return 0
	}
	return l.items[len(l.items)-1].line + 1
}

// Nodes returns a fresh cursor over the nodes of the layer, top to bottom and
// left to right. Nodes are computed as the cursor advances.
func (l *Layer) Nodes() *Sequence {
	return &Sequence{layer: l}
}

// Node returns the node at index i.
func (l *Layer) Node(i int) (Node, bool) {
	if i < 0 || i >= l.Len() {
		return Node{}, false
	}
	return l.node(i), true
}

// Sequence is a single-pass cursor over the nodes of a layer. Once drained it
// stays empty.
type Sequence struct {
	layer *Layer
	next  int
}

func (s *Sequence) Next() (Node, bool) {
	if s.next >= s.layer.Len() {
		return Node{}, false
	}
	n := s.layer.node(s.next)
	s.next++
	return n, true
}

// All adapts the cursor for range loops. It advances the same cursor as
// Next.
func (s *Sequence) All() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for {
			n, ok := s.Next()
			if !ok || !yield(n) {
				return
			}
		}
	}
}
