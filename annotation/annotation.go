// Package annotation holds the annotation model and the store that owns every
// annotation of an open document.
package annotation

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mgmeyers/pdfmarks/pdfutils"
)

type (
	Rect  = pdfutils.Rect
	Color = pdfutils.Color
)

// Type is the kind of an annotation.
type Type int

const (
	Highlight Type = iota + 1
	Underline
	Rectangle
	Note
)

var typeNames = map[Type]string{
	Highlight: "highlight",
	Underline: "underline",
	Rectangle: "rectangle",
	Note:      "note",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unsupported"
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// TextBased reports whether annotations of this type are created from a
// text selection.
func (t Type) TextBased() bool {
	return t == Highlight || t == Underline
}

func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidType, "%q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, errors.Wrapf(ErrInvalidType, "%d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var (
	ErrInvalidType    = errors.New("unsupported annotation type")
	ErrPageOutOfRange = errors.New("page out of range")
	ErrInvalidRect    = errors.New("rect must be finite with non-negative extents")
	ErrEmptyNote      = errors.New("note text must not be empty")
	ErrInvalidColor   = errors.New("color components must be within [0, 1]")
)

// Annotation is a single mark on a page. Rect is in document space: scale
// 1.0, unrotated, top-left origin.
type Annotation struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Page      int       `json:"page"`
	Rect      Rect      `json:"rect"`
	Color     Color     `json:"color"`
	Text      string    `json:"text,omitempty"`
	OCRText   string    `json:"ocrText,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	AuthorID  string    `json:"authorId,omitempty"`
}

// Validate checks the annotation invariants. A pageCount of zero or less
// disables the upper page bound.
func (a *Annotation) Validate(pageCount int) error {
	if !a.Type.Valid() {
		return errors.Wrapf(ErrInvalidType, "%d", int(a.Type))
	}

	if a.Page < 1 || (pageCount > 0 && a.Page > pageCount) {
		return errors.Wrapf(ErrPageOutOfRange, "page %d of %d", a.Page, pageCount)
	}

	if !a.Rect.Valid() {
		return errors.Wrapf(ErrInvalidRect, "%+v", a.Rect)
	}

	if !a.Color.Valid() {
		return errors.Wrapf(ErrInvalidColor, "%+v", a.Color)
	}

	if a.Type == Note && pdfutils.IsBlank(a.Text) {
		return ErrEmptyNote
	}

	return nil
}

// ByPosition orders annotations by page, then top to bottom, then left to
// right.
type ByPosition []*Annotation

func (a ByPosition) Len() int      { return len(a) }
func (a ByPosition) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByPosition) Less(i, j int) bool {
	if a[i].Page != a[j].Page {
		return a[i].Page < a[j].Page
	}
	if a[i].Rect.Y != a[j].Rect.Y {
		return a[i].Rect.Y < a[j].Rect.Y
	}
	return a[i].Rect.X < a[j].Rect.X
}
