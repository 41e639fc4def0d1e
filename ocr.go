package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/ocr"
	"github.com/mgmeyers/pdfmarks/pdfdoc"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

type OCRCmd struct {
	TesseractPath string  `default:"tesseract" help:"Path to the tesseract binary"`
	OCRLang       string  `short:"l" default:"eng" help:"Tesseract language"`
	TessDataDir   string  `type:"path" help:"Tesseract tessdata directory"`
	DPI           float64 `short:"d" default:"300" help:"DPI pages are rendered at for recognition"`
	Concurrency   int     `short:"c" default:"4" help:"Annotations recognized at a time"`

	Input       string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
	Annotations string `arg:"" name:"annotations" help:"Path to a JSON array of annotations" type:"path"`
}

func (c *OCRCmd) Run(log *logrus.Logger) error {
	doc, err := openPDF(c.Input, log)
	if err != nil {
		return err
	}

	store, err := loadAnnotations(c.Annotations, doc.NumPages(), log)
	if err != nil {
		return err
	}

	fillFromTextLayer(doc, store, log)

	ids := ocr.Candidates(store.Snapshot())
	if len(ids) == 0 {
		return logOutput(store.Snapshot())
	}

	raster, err := pdfdoc.NewRasterizer(doc.Bytes(), doc)
	if err != nil {
		return err
	}
	defer raster.Close()

	tess, err := ocr.NewTesseract(raster, ocr.TesseractOptions{
		Path:    c.TesseractPath,
		Lang:    c.OCRLang,
		DataDir: c.TessDataDir,
		DPI:     c.DPI,
		Rotation: func(n int) viewport.Rotation {
			g, err := doc.Geometry(n)
			if err != nil {
				return 0
			}
			return g.Rotation
		},
	})
	if err != nil {
		return err
	}

	outcomes, err := ocr.AttachAll(context.Background(), store, tess, ids, c.Concurrency, log)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("some annotations have no ocr text")
	}

	return logOutput(store.Snapshot())
}

// fillFromTextLayer gives highlights and underlines without text the text of
// the page they cover. Pages whose text cannot be extracted are left to OCR.
func fillFromTextLayer(doc *pdfdoc.Document, store *annotation.Store, log logrus.FieldLogger) {
	b := &textlayer.Builder{Log: log}
	layers := map[int]*textlayer.Layer{}

	for _, a := range store.Snapshot() {
		if !a.Type.TextBased() || !pdfutils.IsBlank(a.Text) {
			continue
		}

		layer, ok := layers[a.Page]
		if !ok {
			layer = pageLayer(doc, b, a.Page)
			layers[a.Page] = layer
		}

		text, _ := layer.TextIn(a.Rect)
		if pdfutils.IsBlank(text) {
			continue
		}
		if _, err := store.Update(a.ID, annotation.Patch{Text: &text}); err != nil {
			log.WithError(err).WithField("id", a.ID).Warn("text not attached")
		}
	}
}

func pageLayer(doc *pdfdoc.Document, b *textlayer.Builder, n int) *textlayer.Layer {
	vp, err := pageViewport(doc, n, 1, 0)
	if err != nil {
		return nil
	}

	runs, err := doc.GlyphRuns(context.Background(), n)
	if err != nil {
		return b.Unavailable(n, vp, err)
	}
	return b.Build(n, runs, vp)
}
