// Package interaction turns pointer gestures on a page into annotations.
package interaction

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/mgmeyers/pdfmarks/annotation"
)

// Tool is the active annotation mode. Exactly one tool is active at a time.
type Tool int

const (
	None Tool = iota
	Highlight
	Underline
	Rectangle
	Note
)

var toolNames = map[Tool]string{
	None:      "none",
	Highlight: "highlight",
	Underline: "underline",
	Rectangle: "rectangle",
	Note:      "note",
}

var ErrUnknownTool = errors.New("unknown tool")

func (t Tool) String() string {
	if s, ok := toolNames[t]; ok {
		return s
	}
	return "unknown"
}

func ParseTool(s string) (Tool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range toolNames {
		if name == s {
			return t, nil
		}
	}
	return None, errors.Wrapf(ErrUnknownTool, "%q", s)
}

// Type returns the annotation type the tool creates.
func (t Tool) Type() (annotation.Type, bool) {
	switch t {
	case Highlight:
		return annotation.Highlight, true
	case Underline:
		return annotation.Underline, true
	case Rectangle:
		return annotation.Rectangle, true
	case Note:
		return annotation.Note, true
	}
	return 0, false
}

// selects reports whether the tool works on text selections.
func (t Tool) selects() bool {
	return t == Highlight || t == Underline
}

// State is the gesture state of a controller.
type State int

const (
	Idle State = iota
	Drawing
	Selecting
	Composing
)

func (s State) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Selecting:
		return "selecting"
	case Composing:
		return "composing"
	}
	return "idle"
}
