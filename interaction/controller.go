package interaction

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

var (
	ErrNoPage       = errors.New("no page is active")
	ErrNotComposing = errors.New("no note is being composed")
)

// Host is the presentation side of a controller.
type Host interface {
	// ClearSelection drops the native text selection after it has been
	// turned into annotations.
	ClearSelection()

	// OpenNotePrompt asks the user for a note body. The answer comes back
	// through SubmitNote or CancelNote.
	OpenNotePrompt(page int, at viewport.Point)
}

type Config struct {
	Colors   map[Tool]pdfutils.Color
	AuthorID string

	// MinRectSize is the smallest accepted rectangle, in document units, on
	// both axes.
	MinRectSize float64

	// MinSelectionSize drops selection rects that are narrower or shorter
	// than this, in document units.
	MinSelectionSize float64

	// NoteSize is the side of the square a note occupies.
	NoteSize float64

	Now func() time.Time
	Log logrus.FieldLogger
}

func DefaultConfig() Config {
	return Config{
		Colors: map[Tool]pdfutils.Color{
			Highlight: pdfutils.Yellow,
			Underline: pdfutils.Red,
			Rectangle: pdfutils.Blue,
			Note:      pdfutils.Orange,
		},
		MinRectSize:      5,
		MinSelectionSize: 2,
		NoteSize:         16,
		Now:              time.Now,
	}
}

// Controller is the gesture state machine of one viewer. It is driven from a
// single event loop and is not safe for concurrent use.
type Controller struct {
	store *annotation.Store
	host  Host
	cfg   Config
	log   logrus.FieldLogger

	tool  Tool
	state State

	page      int
	vp        viewport.Viewport
	hasPage   bool
	textReady bool

	// anchor and end are in document space.
	anchor viewport.Point
	end    viewport.Point
}

func New(store *annotation.Store, host Host, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.Colors == nil {
		cfg.Colors = def.Colors
	}
	if cfg.MinRectSize <= 0 {
		cfg.MinRectSize = def.MinRectSize
	}
	if cfg.MinSelectionSize <= 0 {
		cfg.MinSelectionSize = def.MinSelectionSize
	}
	if cfg.NoteSize <= 0 {
		cfg.NoteSize = def.NoteSize
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Controller{
		store: store,
		host:  host,
		cfg:   cfg,
		log:   log,
	}
}

func (c *Controller) Tool() Tool   { return c.tool }
func (c *Controller) State() State { return c.state }
func (c *Controller) Page() int    { return c.page }

// SetTool switches the active tool, cancelling any gesture in progress.
func (c *Controller) SetTool(t Tool) {
	if t == c.tool {
		return
	}
	c.Cancel()
	c.tool = t
}

// SetPage makes page the target of new gestures. A gesture in progress on
// another page is cancelled.
func (c *Controller) SetPage(page int, vp viewport.Viewport, layer *textlayer.Layer) {
	if c.hasPage && page != c.page {
		c.Cancel()
	}
	c.page = page
	c.vp = vp
	c.hasPage = true
	c.textReady = layer.Available()
}

// SetViewport replaces the viewport of the current page after a zoom or a
// rotation. Gestures in progress are cancelled because their points were
// taken in the old viewport.
func (c *Controller) SetViewport(vp viewport.Viewport) {
	if !vp.Same(c.vp) {
		c.Cancel()
	}
	c.vp = vp
}

// SetTextLayer records whether selection can be used on the current page.
func (c *Controller) SetTextLayer(layer *textlayer.Layer) {
	c.textReady = layer.Available()
	if !c.textReady && c.state == Selecting {
		c.Cancel()
	}
}

// Cancel abandons the gesture in progress. Nothing is written.
func (c *Controller) Cancel() {
	if c.state != Idle {
		c.log.WithFields(logrus.Fields{
			"page":  c.page,
			"state": c.state,
		}).Debug("gesture cancelled")
	}
	c.state = Idle
	c.anchor = viewport.Point{}
	c.end = viewport.Point{}
}

// PointerDown starts a gesture at p, in viewport space.
func (c *Controller) PointerDown(p viewport.Point) {
	if !c.hasPage || c.state != Idle {
		return
	}

	doc := c.vp.ToDocument(p)

	switch {
	case c.tool == Rectangle:
		c.anchor, c.end = doc, doc
		c.state = Drawing
	case c.tool.selects():
		if !c.textReady {
			return
		}
		c.state = Selecting
	case c.tool == Note:
		c.anchor = doc
		c.state = Composing
		if c.host != nil {
			c.host.OpenNotePrompt(c.page, p)
		}
	}
}

// PointerMove updates the live preview of a rectangle.
func (c *Controller) PointerMove(p viewport.Point) {
	if c.state != Drawing {
		return
	}
	c.end = c.vp.ToDocument(p)
}

// Preview returns the rectangle being drawn, in viewport space.
func (c *Controller) Preview() (viewport.Rect, bool) {
	if c.state != Drawing {
		return viewport.Rect{}, false
	}
	r := pdfutils.RectFromPoints(c.anchor, c.end)
	return c.vp.RectToViewport(r), true
}

// PointerUp ends the gesture at p. For the selection tools sel carries the
// selected text and its line rects in viewport space. It returns the IDs of
// the annotations created; a rejected gesture yields none and no error.
func (c *Controller) PointerUp(p viewport.Point, sel textlayer.Selection) ([]string, error) {
	switch c.state {
	case Drawing:
		c.end = c.vp.ToDocument(p)
		anchor, end := c.anchor, c.end
		c.Cancel()
		return c.commitRect(anchor, end)
	case Selecting:
		c.Cancel()
		return c.commitSelection(sel)
	}
	return nil, nil
}

func (c *Controller) commitRect(anchor, end viewport.Point) ([]string, error) {
	dx := math.Abs(end.X - anchor.X)
	dy := math.Abs(end.Y - anchor.Y)
	if dx < c.cfg.MinRectSize || dy < c.cfg.MinRectSize {
		c.log.WithFields(logrus.Fields{"dx": dx, "dy": dy}).Debug("rectangle below threshold")
		return nil, nil
	}

	// a drag that is mostly off the page may clamp below the threshold
	r := c.clamp(pdfutils.RectFromPoints(anchor, end))
	if r.Width < c.cfg.MinRectSize || r.Height < c.cfg.MinRectSize {
		c.log.WithField("rect", r).Debug("rectangle off page")
		return nil, nil
	}

	id, err := c.add(Rectangle, r, "")
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func (c *Controller) commitSelection(sel textlayer.Selection) ([]string, error) {
	if sel.Empty() {
		return nil, nil
	}

	doc := make([]viewport.Rect, 0, len(sel.Rects))
	for _, r := range sel.Rects {
		doc = append(doc, c.vp.RectToDocument(r))
	}

	lines := LineRects(doc, c.cfg.MinSelectionSize)
	if len(lines) == 0 {
		return nil, nil
	}

	// a selection commits all of its lines or none
	ids := make([]string, 0, len(lines))
	for _, r := range lines {
		id, err := c.add(c.tool, r, sel.Text)
		if err != nil {
			for _, added := range ids {
				c.store.Remove(added)
			}
			return nil, err
		}
		ids = append(ids, id)
	}

	if c.host != nil {
		c.host.ClearSelection()
	}
	return ids, nil
}

// SubmitNote commits the note being composed. Blank text is treated as a
// cancel.
func (c *Controller) SubmitNote(text string) (string, error) {
	if c.state != Composing {
		return "", ErrNotComposing
	}
	at := c.anchor
	c.Cancel()

	if pdfutils.IsBlank(text) {
		return "", nil
	}

	size := c.cfg.NoteSize
	r := c.clamp(viewport.Rect{X: at.X, Y: at.Y, Width: size, Height: size})
	return c.add(Note, r, text)
}

// CancelNote closes the note prompt without writing anything.
func (c *Controller) CancelNote() {
	if c.state == Composing {
		c.Cancel()
	}
}

func (c *Controller) clamp(r viewport.Rect) viewport.Rect {
	if m := c.vp.Mapper(); m != nil {
		return m.Clamp(r)
	}
	return r
}

func (c *Controller) add(tool Tool, r viewport.Rect, text string) (string, error) {
	typ, ok := tool.Type()
	if !ok {
		return "", errors.Wrapf(ErrUnknownTool, "%v", tool)
	}
	if !c.hasPage {
		return "", ErrNoPage
	}

	id, err := c.store.Add(&annotation.Annotation{
		Type:      typ,
		Page:      c.page,
		Rect:      r,
		Color:     c.cfg.Colors[tool],
		Text:      text,
		CreatedAt: c.cfg.Now(),
		AuthorID:  c.cfg.AuthorID,
	})
	if err != nil {
		return "", errors.Wrapf(err, "commit %s on page %d", tool, c.page)
	}
	return id, nil
}

// lineOverlap is the share of the shorter height two rects must have in
// common to count as the same line.
const lineOverlap = 0.5

// LineRects reduces the client rects of a selection, in document space, to
// one rect per visual line. Fragments on one line are merged, rects of
// consecutive lines are trimmed so they do not overlap, and anything smaller
// than minSize on either axis is dropped.
func LineRects(rects []viewport.Rect, minSize float64) []viewport.Rect {
	var lines []viewport.Rect

	for _, r := range rects {
		if !r.Valid() || r.Width < minSize || r.Height < minSize {
			continue
		}

		merged := false
		for i, l := range lines {
			if pdfutils.VerticalOverlap(l, r) >= lineOverlap {
				lines[i] = l.Union(r)
				merged = true
				break
			}
		}
		if !merged {
			lines = append(lines, r)
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].Y < lines[j].Y })

	out := lines[:0]
	for _, l := range lines {
		if n := len(out); n > 0 {
			prev := out[n-1]
			if l.Y < prev.Bottom() {
				mid := (l.Y + prev.Bottom()) / 2
				out[n-1].Height = mid - prev.Y
				l.Height = l.Bottom() - mid
				l.Y = mid
			}
		}
		if l.Height < minSize {
			continue
		}
		out = append(out, l)
	}

	return out
}
