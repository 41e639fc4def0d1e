// Package engine is the single document viewer every presentation layer
// drives. It ties page geometry, rendering, the text layer, gestures, the
// annotation store and export together; presentation code only forwards
// input and paints what the viewer reports.
package engine

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/export"
	"github.com/mgmeyers/pdfmarks/interaction"
	"github.com/mgmeyers/pdfmarks/pdfdoc"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/render"
	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// Document is the decoded PDF behind a viewer. *pdfdoc.Document implements
// it.
type Document interface {
	NumPages() int
	Geometry(page int) (pdfdoc.PageGeometry, error)
	GlyphRuns(ctx context.Context, page int) ([]textlayer.GlyphRun, error)
	Bytes() []byte
}

var (
	ErrPageRange = errors.New("page out of range")
	ErrNotNote   = errors.New("annotation is not a note")
)

type Config struct {
	Scale       float64
	Rotation    viewport.Rotation
	Interaction interaction.Config
	Export      export.Options
	IDs         annotation.IDGenerator

	// OnRender is called with every current render result, from the
	// render goroutine.
	OnRender func(render.Result)

	Log logrus.FieldLogger
}

// Overlay is an annotation as the renderer paints it, in viewport space.
type Overlay struct {
	ID    string
	Type  annotation.Type
	Rect  viewport.Rect
	Color pdfutils.Color
	Text  string
}

type Viewer struct {
	doc      Document
	store    *annotation.Store
	sched    *render.Scheduler
	exporter *export.Exporter
	log      logrus.FieldLogger
	onRender func(render.Result)

	mu       sync.Mutex
	ctrl     *interaction.Controller
	page     int
	scale    float64
	rotation viewport.Rotation
	mappers  map[int]*viewport.Mapper
	layers   map[int]*textlayer.Layer
	failed   map[int]bool
}

func New(doc Document, raster render.Rasterizer, host interaction.Host, cfg Config) (*Viewer, error) {
	if doc.NumPages() < 1 {
		return nil, errors.New("document has no pages")
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Interaction.Log == nil {
		cfg.Interaction.Log = cfg.Log
	}
	if cfg.Export.Log == nil {
		cfg.Export.Log = cfg.Log
	}

	v := &Viewer{
		doc:      doc,
		log:      cfg.Log,
		onRender: cfg.OnRender,
		scale:    cfg.Scale,
		rotation: cfg.Rotation,
		mappers:  make(map[int]*viewport.Mapper),
		layers:   make(map[int]*textlayer.Layer),
		failed:   make(map[int]bool),
	}

	v.store = annotation.NewStore(annotation.Options{
		IDs:       cfg.IDs,
		PageCount: doc.NumPages(),
		Log:       cfg.Log,
	})
	v.ctrl = interaction.New(v.store, host, cfg.Interaction)
	v.exporter = export.New(cfg.Export)
	v.sched = render.NewScheduler(raster, doc, render.Options{
		Builder: &textlayer.Builder{Log: cfg.Log},
		Deliver: v.deliver,
		Log:     cfg.Log,
	})

	return v, nil
}

func (v *Viewer) Store() *annotation.Store { return v.store }

func (v *Viewer) NumPages() int { return v.doc.NumPages() }

func (v *Viewer) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *Viewer) mapper(page int) (*viewport.Mapper, viewport.Rotation, error) {
	if page < 1 || page > v.doc.NumPages() {
		return nil, 0, errors.Wrapf(ErrPageRange, "page %d of %d", page, v.doc.NumPages())
	}

	g, err := v.doc.Geometry(page)
	if err != nil {
		return nil, 0, err
	}

	m, ok := v.mappers[page]
	if !ok {
		m, err = viewport.New(g.Width, g.Height)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "page %d", page)
		}
		v.mappers[page] = m
	}
	return m, g.Rotation, nil
}

func (v *Viewer) viewportLocked(page int) (viewport.Viewport, error) {
	m, own, err := v.mapper(page)
	if err != nil {
		return viewport.Viewport{}, err
	}

	rot, err := viewport.NormalizeRotation(int(own) + int(v.rotation))
	if err != nil {
		return viewport.Viewport{}, err
	}
	return m.Viewport(v.scale, rot)
}

// Viewport returns the current viewport of a page.
func (v *Viewer) Viewport(page int) (viewport.Viewport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewportLocked(page)
}

// GoTo makes page current and starts rendering it. A gesture in progress on
// the previous page is cancelled.
func (v *Viewer) GoTo(ctx context.Context, page int) error {
	v.mu.Lock()
	vp, err := v.viewportLocked(page)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.page = page
	v.ctrl.SetPage(page, vp, v.layers[page])
	v.mu.Unlock()

	_, err = v.sched.Request(ctx, page, vp)
	return err
}

// SetScale zooms the current page.
func (v *Viewer) SetScale(ctx context.Context, scale float64) error {
	v.mu.Lock()
	old := v.scale
	v.scale = scale
	err := v.refreshLocked()
	if err != nil {
		v.scale = old
	}
	page := v.page
	v.mu.Unlock()

	if err != nil {
		return err
	}
	return v.rerender(ctx, page)
}

// Rotate turns every page by a further deg degrees clockwise.
func (v *Viewer) Rotate(ctx context.Context, deg int) error {
	v.mu.Lock()
	rot, err := viewport.NormalizeRotation(int(v.rotation) + deg)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	old := v.rotation
	v.rotation = rot
	if err := v.refreshLocked(); err != nil {
		v.rotation = old
		v.mu.Unlock()
		return err
	}
	page := v.page
	v.mu.Unlock()

	return v.rerender(ctx, page)
}

func (v *Viewer) refreshLocked() error {
	if v.page == 0 {
		return nil
	}
	vp, err := v.viewportLocked(v.page)
	if err != nil {
		return err
	}
	v.ctrl.SetViewport(vp)

	// the old layer was laid out for the old viewport
	delete(v.layers, v.page)
	v.ctrl.SetTextLayer(nil)
	return nil
}

func (v *Viewer) rerender(ctx context.Context, page int) error {
	if page == 0 {
		return nil
	}
	vp, err := v.Viewport(page)
	if err != nil {
		return err
	}
	_, err = v.sched.Request(ctx, page, vp)
	return err
}

func (v *Viewer) deliver(res render.Result) {
	v.mu.Lock()
	cur, err := v.viewportLocked(res.Page)
	fresh := err == nil && cur.Same(res.Viewport)
	if fresh {
		v.layers[res.Page] = res.Layer
		v.failed[res.Page] = res.Placeholder
		if res.Page == v.page {
			v.ctrl.SetTextLayer(res.Layer)
		}
	}
	v.mu.Unlock()

	if !fresh {
		v.log.WithField("page", res.Page).Debug("render for old viewport dropped")
		return
	}

	if v.onRender != nil {
		v.onRender(res)
	}
}

// Wait blocks until no render is in flight.
func (v *Viewer) Wait() { v.sched.Wait() }

// Layer returns the text layer of a page, nil before it has been rendered.
func (v *Viewer) Layer(page int) *textlayer.Layer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.layers[page]
}

// Failed reports whether the last render of page showed a placeholder.
func (v *Viewer) Failed(page int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failed[page]
}

// Overlays returns the annotations of page mapped into its current viewport.
func (v *Viewer) Overlays(page int) ([]Overlay, error) {
	vp, err := v.Viewport(page)
	if err != nil {
		return nil, err
	}

	list := v.store.ListForPage(page)
	out := make([]Overlay, 0, len(list))
	for _, a := range list {
		out = append(out, Overlay{
			ID:    a.ID,
			Type:  a.Type,
			Rect:  vp.RectToViewport(a.Rect),
			Color: a.Color,
			Text:  a.Text,
		})
	}
	return out, nil
}

func (v *Viewer) SetTool(t interaction.Tool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctrl.SetTool(t)
}

func (v *Viewer) Tool() interaction.Tool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Tool()
}

func (v *Viewer) State() interaction.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.State()
}

// The pointer methods take viewport coordinates on the current page. The
// host must not call back into the viewer from inside OpenNotePrompt.

func (v *Viewer) PointerDown(p viewport.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctrl.PointerDown(p)
}

func (v *Viewer) PointerMove(p viewport.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctrl.PointerMove(p)
}

func (v *Viewer) PointerUp(p viewport.Point, sel textlayer.Selection) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.PointerUp(p, sel)
}

func (v *Viewer) Preview() (viewport.Rect, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Preview()
}

func (v *Viewer) SubmitNote(text string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.SubmitNote(text)
}

func (v *Viewer) CancelNote() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctrl.CancelNote()
}

// Select resolves a selection on the current page's text layer.
func (v *Viewer) Select(from, to textlayer.Caret) textlayer.Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.layers[v.page].Select(from, to)
}

// Remove deletes an annotation on explicit user request.
func (v *Viewer) Remove(id string) bool {
	return v.store.Remove(id)
}

// EditNote replaces the body of a note. Other annotation types keep the
// text they were created with.
func (v *Viewer) EditNote(id, text string) (*annotation.Annotation, error) {
	a, ok := v.store.Value(id)
	if !ok {
		return nil, &annotation.NotFoundError{ID: id}
	}
	if a.Type != annotation.Note {
		return nil, errors.Wrapf(ErrNotNote, "%s is a %s", id, a.Type)
	}
	return v.store.Update(id, annotation.Patch{Text: &text})
}

// Export bakes the current annotations into a copy of the document.
func (v *Viewer) Export(ctx context.Context) ([]byte, error) {
	return v.exporter.Export(ctx, v.doc.Bytes(), v.store)
}

func (v *Viewer) Close() {
	v.sched.Close()
}
