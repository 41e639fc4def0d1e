// Package pdfdoc binds the page decoding the viewer needs to real PDF
// libraries: unipdf for structure and text, go-fitz for rasters and pdfcpu
// for probing and validation.
package pdfdoc

import (
	"bytes"
	"context"
	"math"
	"sync"

	"github.com/mgmeyers/unipdf/v3/extractor"
	"github.com/mgmeyers/unipdf/v3/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

var ErrPageRange = errors.New("page out of range")

// Document is an open PDF. Pages are 1-based. Methods are safe for
// concurrent use; access to the underlying reader is serialized.
type Document struct {
	mu     sync.Mutex
	reader *model.PdfReader
	pages  int
	data   []byte
	log    logrus.FieldLogger
}

// Open parses data. The slice is kept and must not be modified afterwards.
func Open(data []byte, log logrus.FieldLogger) (*Document, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}

	n, err := reader.GetNumPages()
	if err != nil {
		return nil, errors.Wrap(err, "count pages")
	}

	return &Document{reader: reader, pages: n, data: data, log: log}, nil
}

func (d *Document) NumPages() int { return d.pages }

// Bytes returns the document as it was opened.
func (d *Document) Bytes() []byte { return d.data }

func (d *Document) page(n int) (*model.PdfPage, error) {
	if n < 1 || n > d.pages {
		return nil, errors.Wrapf(ErrPageRange, "page %d of %d", n, d.pages)
	}
	p, err := d.reader.GetPage(n)
	if err != nil {
		return nil, errors.Wrapf(err, "page %d", n)
	}
	return p, nil
}

// PageGeometry is the unrotated size of a page and its /Rotate entry.
type PageGeometry struct {
	Width    float64
	Height   float64
	Rotation viewport.Rotation
}

func (d *Document) Geometry(n int) (PageGeometry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.page(n)
	if err != nil {
		return PageGeometry{}, err
	}

	box, err := p.GetMediaBox()
	if err != nil {
		return PageGeometry{}, errors.Wrapf(err, "page %d media box", n)
	}

	g := PageGeometry{Width: box.Width(), Height: box.Height()}
	if p.Rotate != nil {
		rot, err := viewport.NormalizeRotation(int(*p.Rotate))
		if err != nil {
			d.log.WithFields(logrus.Fields{"page": n, "rotate": *p.Rotate}).Warn("ignoring invalid page rotation")
		} else {
			g.Rotation = rot
		}
	}
	return g, nil
}

// Mapper returns the coordinate mapper for a page.
func (d *Document) Mapper(n int) (*viewport.Mapper, error) {
	g, err := d.Geometry(n)
	if err != nil {
		return nil, err
	}
	return viewport.New(g.Width, g.Height)
}

// GlyphRuns extracts the text of a page as runs in PDF user space.
func (d *Document) GlyphRuns(ctx context.Context, n int) ([]textlayer.GlyphRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.page(n)
	if err != nil {
		return nil, err
	}

	box, err := p.GetMediaBox()
	if err != nil {
		return nil, errors.Wrapf(err, "page %d media box", n)
	}

	ext, err := extractor.New(p)
	if err != nil {
		return nil, errors.Wrapf(err, "page %d extractor", n)
	}

	txt, _, _, err := ext.ExtractPageText()
	if err != nil {
		return nil, errors.Wrapf(err, "page %d text", n)
	}

	marks := txt.Marks().Elements()
	glyphs := make([]glyph, 0, len(marks))
	for _, m := range marks {
		if m.Meta {
			continue
		}

		name := ""
		if m.Font != nil {
			name = m.Font.BaseFont()
		}

		glyphs = append(glyphs, glyph{
			text: pdfutils.RemoveNul(m.Text),
			font: name,
			size: m.FontSize,
			// relative to the media box origin
			llx: m.BBox.Llx - box.Llx,
			lly: m.BBox.Lly - box.Lly,
			urx: m.BBox.Urx - box.Llx,
			ury: m.BBox.Ury - box.Lly,
		})
	}

	return groupRuns(glyphs), nil
}

// glyph is one extracted text mark.
type glyph struct {
	text               string
	font               string
	size               float64
	llx, lly, urx, ury float64
}

// groupRuns joins consecutive glyphs that share a font, a baseline and sit
// next to each other into runs. Whitespace ends a run.
func groupRuns(glyphs []glyph) []textlayer.GlyphRun {
	var (
		runs []textlayer.GlyphRun
		cur  []glyph
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}

		first, last := cur[0], cur[len(cur)-1]
		size := first.size
		if size <= 0 {
			size = first.ury - first.lly
		}

		text := ""
		for _, g := range cur {
			text += g.text
		}

		runs = append(runs, textlayer.GlyphRun{
			Text:      text,
			Transform: [6]float64{size, 0, 0, size, first.llx, first.lly},
			FontName:  first.font,
			Width:     last.urx - first.llx,
		})
		cur = cur[:0]
	}

	for _, g := range glyphs {
		if pdfutils.IsBlank(g.text) {
			flush()
			continue
		}

		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			h := math.Max(prev.ury-prev.lly, 1)
			sameLine := math.Abs(prev.lly-g.lly) <= h*0.3
			gap := g.llx - prev.urx
			adjacent := gap > -h*0.5 && gap <= h*0.25
			if !sameLine || !adjacent || prev.font != g.font || prev.size != g.size {
				flush()
			}
		}

		cur = append(cur, g)
	}
	flush()

	return runs
}
