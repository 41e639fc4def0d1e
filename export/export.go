// Package export bakes annotations into the pages of a PDF as permanent
// content.
package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mgmeyers/unipdf/v3/contentstream"
	"github.com/mgmeyers/unipdf/v3/core"
	"github.com/mgmeyers/unipdf/v3/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/viewport"
)

const (
	gsName   core.PdfObjectName = "GSpdfmarks"
	fontName core.PdfObjectName = "Fpdfmarks"
)

// Source provides the annotations to export. *annotation.Store implements
// it.
type Source interface {
	Snapshot() []annotation.Annotation
}

// Error is returned when the document as a whole cannot be exported. The
// input bytes are never modified.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	// Opacity of highlight and rectangle fills.
	Opacity float64

	// UnderlineWidth is the thickness of underline bars.
	UnderlineWidth float64

	NoteMarker   float64
	NoteFontSize float64

	// Validate, when set, checks the written document. A failure is
	// returned as an *Error.
	Validate func([]byte) error

	Log logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{
		Opacity:        0.35,
		UnderlineWidth: 1.5,
		NoteMarker:     8,
		NoteFontSize:   9,
	}
}

type Exporter struct {
	opts Options
	log  logrus.FieldLogger
}

func New(opts Options) *Exporter {
	def := DefaultOptions()
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = def.Opacity
	}
	if opts.UnderlineWidth <= 0 {
		opts.UnderlineWidth = def.UnderlineWidth
	}
	if opts.NoteMarker <= 0 {
		opts.NoteMarker = def.NoteMarker
	}
	if opts.NoteFontSize <= 0 {
		opts.NoteFontSize = def.NoteFontSize
	}

	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Exporter{opts: opts, log: log}
}

// Export returns a copy of original with every annotation of src drawn into
// its page. Pages without annotations are left as they are; the new content
// is written as an incremental update.
func (e *Exporter) Export(ctx context.Context, original []byte, src Source) ([]byte, error) {
	annots := src.Snapshot()
	if len(annots) == 0 {
		out := make([]byte, len(original))
		copy(out, original)
		return out, nil
	}

	byPage := make(map[int][]annotation.Annotation)
	for _, a := range annots {
		byPage[a.Page] = append(byPage[a.Page], a)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	// the reader works on its own copy so nothing can write through to
	// the caller's slice
	input := make([]byte, len(original))
	copy(input, original)

	reader, err := model.NewPdfReader(bytes.NewReader(input))
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	appender, err := model.NewPdfAppender(reader)
	if err != nil {
		return nil, &Error{Op: "append", Err: err}
	}

	drawn := 0
	for _, n := range pages {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Op: "export", Err: err}
		}

		log := e.log.WithField("page", n)
		if n < 1 || n > numPages {
			log.WithField("pages", numPages).Warn("annotations on missing page skipped")
			continue
		}

		page, err := reader.GetPage(n)
		if err != nil {
			log.WithError(err).Warn("page skipped")
			continue
		}

		count, err := e.drawPage(page, byPage[n], log)
		if err != nil {
			log.WithError(err).Warn("page skipped")
			continue
		}
		if count == 0 {
			continue
		}

		appender.UpdatePage(page)
		drawn += count
	}

	var buf bytes.Buffer
	if err := appender.Write(&buf); err != nil {
		return nil, &Error{Op: "write", Err: err}
	}

	out := buf.Bytes()
	if e.opts.Validate != nil {
		if err := e.opts.Validate(out); err != nil {
			return nil, &Error{Op: "validate", Err: err}
		}
	}

	e.log.WithFields(logrus.Fields{
		"annotations": len(annots),
		"drawn":       drawn,
		"size":        len(out),
	}).Info("export complete")

	return out, nil
}

func (e *Exporter) drawPage(page *model.PdfPage, annots []annotation.Annotation, log logrus.FieldLogger) (int, error) {
	box, err := page.GetMediaBox()
	if err != nil {
		return 0, errors.Wrap(err, "media box")
	}

	m, err := viewport.New(box.Width(), box.Height())
	if err != nil {
		return 0, err
	}

	shapes := planPage(m, viewport.Point{X: box.Llx, Y: box.Lly}, annots, e.opts)

	var overlay bytes.Buffer
	count := 0
	for _, s := range shapes {
		ops, err := e.drawShape(s)
		if err != nil {
			log.WithFields(logrus.Fields{
				"id":    s.id,
				"error": err,
			}).Warn("annotation skipped")
			continue
		}
		overlay.WriteString(ops)
		overlay.WriteByte('\n')
		count++
	}
	if count == 0 {
		return 0, nil
	}

	if page.Resources == nil {
		page.Resources = model.NewPdfPageResources()
	}

	gs := core.MakeDict()
	gs.Set("ca", core.MakeFloat(e.opts.Opacity))
	gs.Set("CA", core.MakeFloat(e.opts.Opacity))
	if err := page.AddExtGState(gsName, gs); err != nil {
		return 0, errors.Wrap(err, "ext gstate")
	}

	helv, err := model.NewStandard14Font(model.HelveticaName)
	if err != nil {
		return 0, errors.Wrap(err, "font")
	}
	if err := page.AddFont(fontName, helv.ToPdfObject()); err != nil {
		return 0, errors.Wrap(err, "font")
	}

	streams, err := page.GetContentStreams()
	if err != nil {
		return 0, errors.Wrap(err, "content")
	}

	// isolate the existing content so its graphics state cannot leak into
	// the overlay
	wrapped := make([]string, 0, len(streams)+3)
	wrapped = append(wrapped, "q")
	wrapped = append(wrapped, streams...)
	wrapped = append(wrapped, "Q", overlay.String())

	if err := page.SetContentStreams(wrapped, core.NewFlateEncoder()); err != nil {
		return 0, errors.Wrap(err, "content")
	}

	return count, nil
}

// drawShape returns the content stream operators for one shape. A panic
// while drawing is returned as an error.
func (e *Exporter) drawShape(s shape) (ops string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("draw panic: %v", r)
		}
	}()

	if !s.rect.Valid() {
		return "", errors.Errorf("invalid rect %+v", s.rect)
	}

	cc := contentstream.NewContentCreator()
	cc.Add_q()

	switch s.kind {
	case fill:
		cc.Add_gs(gsName)
		cc.Add_rg(s.color.R, s.color.G, s.color.B)
		cc.Add_re(s.rect.X, s.rect.Y, s.rect.Width, s.rect.Height)
		cc.Add_f()

	case bar:
		cc.Add_rg(s.color.R, s.color.G, s.color.B)
		cc.Add_re(s.rect.X, s.rect.Y, s.rect.Width, s.rect.Height)
		cc.Add_f()

	case note:
		cc.Add_rg(s.color.R, s.color.G, s.color.B)
		cc.Add_re(s.rect.X, s.rect.Y, s.rect.Width, s.rect.Height)
		cc.Add_f()

		if len(s.lines) > 0 {
			size := e.opts.NoteFontSize
			cc.Add_rg(0, 0, 0)
			cc.Add_BT()
			cc.Add_Tf(fontName, size)
			cc.Add_Td(s.rect.X+s.rect.Width+2, s.rect.Y+s.rect.Height-size)
			for i, line := range s.lines {
				if i > 0 {
					cc.Add_Td(0, -size*1.2)
				}
				enc, err := winAnsi(line)
				if err != nil {
					return "", err
				}
				cc.Add_Tj(*core.MakeString(enc))
			}
			cc.Add_ET()
		}

	default:
		return "", errors.Errorf("unknown shape %d", s.kind)
	}

	cc.Add_Q()
	return cc.String(), nil
}

// winAnsi encodes s for the standard Helvetica font. Characters outside
// the encoding become '?'.
func winAnsi(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return '?'
		}
		return r
	}, s)

	out, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil {
		return "", errors.Wrap(err, "encode note text")
	}
	return out, nil
}
