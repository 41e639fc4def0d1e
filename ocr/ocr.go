// Package ocr recognizes the text under annotations and attaches it to them.
package ocr

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

var (
	ErrNoTesseract = errors.New("tesseract not found")
	ErrNoLanguage  = errors.New("tesseract language data missing")
)

// Recognizer returns the text found inside rect, in document space, on a
// page.
type Recognizer interface {
	Recognize(ctx context.Context, page int, rect viewport.Rect) (string, error)
}

// PageImager renders whole pages. *pdfdoc.Rasterizer implements it.
type PageImager interface {
	Image(page int, dpi float64) (image.Image, error)
}

type TesseractOptions struct {
	Path    string
	Lang    string
	DataDir string
	DPI     float64

	// Rotation returns the /Rotate of a page; rendered pages come back
	// rotated and are turned back before cropping.
	Rotation func(page int) viewport.Rotation
}

// Tesseract crops the page raster to the annotation and runs the tesseract
// binary on it.
type Tesseract struct {
	imager PageImager
	opts   TesseractOptions
}

func NewTesseract(imager PageImager, opts TesseractOptions) (*Tesseract, error) {
	if opts.Path == "" {
		opts.Path = "tesseract"
	}
	if opts.Lang == "" {
		opts.Lang = "eng"
	}
	if opts.DPI <= 0 {
		opts.DPI = 300
	}

	if !pdfutils.CheckForTesseract(opts.Path) {
		return nil, errors.Wrap(ErrNoTesseract, opts.Path)
	}
	if !pdfutils.ValidateLang(opts.Path, opts.Lang) {
		return nil, errors.Wrap(ErrNoLanguage, opts.Lang)
	}

	return &Tesseract{imager: imager, opts: opts}, nil
}

func (t *Tesseract) Recognize(ctx context.Context, page int, rect viewport.Rect) (string, error) {
	img, err := t.imager.Image(page, t.opts.DPI)
	if err != nil {
		return "", err
	}

	if t.opts.Rotation != nil {
		img = pdfutils.RotateImage(img, -int(t.opts.Rotation(page)))
	}

	crop, err := pdfutils.CropImage(img, pdfutils.PixelRect(rect, t.opts.DPI/72))
	if err != nil {
		return "", errors.Wrapf(err, "page %d", page)
	}

	return pdfutils.OCRImage(ctx, crop, t.opts.Path, t.opts.Lang, t.opts.DataDir)
}

// Attach recognizes the text under the annotation with the given ID and
// stores it as the annotation's OCR text. It looks the annotation up by ID
// both before and after recognition, so text never lands on another
// annotation.
func Attach(ctx context.Context, store *annotation.Store, r Recognizer, id string) (string, error) {
	a, ok := store.Value(id)
	if !ok {
		return "", &annotation.NotFoundError{ID: id}
	}

	text, err := r.Recognize(ctx, a.Page, a.Rect)
	if err != nil {
		return "", errors.Wrapf(err, "recognize %s", id)
	}

	if _, err := store.Update(id, annotation.Patch{OCRText: &text}); err != nil {
		return "", err
	}
	return text, nil
}

// Candidates returns the IDs of the annotations that need recognition:
// every rectangle, and highlights or underlines whose text is missing or
// mostly made of replacement characters.
func Candidates(annots []annotation.Annotation) []string {
	var ids []string
	for _, a := range annots {
		switch {
		case a.Type == annotation.Rectangle:
		case a.Type.TextBased() && (pdfutils.IsBlank(a.Text) || pdfutils.ShouldUseFallback(a.Text)):
		default:
			continue
		}
		ids = append(ids, a.ID)
	}
	return ids
}

// Outcome is the result of one attachment in a batch.
type Outcome struct {
	ID   string
	Text string
	Err  error
}

// AttachAll runs Attach for every ID with at most limit recognitions at a
// time. A failure on one annotation does not stop the others; only a
// cancelled context does.
func AttachAll(ctx context.Context, store *annotation.Store, r Recognizer, ids []string, limit int, log logrus.FieldLogger) ([]Outcome, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if limit <= 0 {
		limit = 4
	}

	out := make([]Outcome, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			text, err := Attach(gctx, store, r, id)
			out[i] = Outcome{ID: id, Text: text, Err: err}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithFields(logrus.Fields{"id": id, "error": err}).Warn("ocr failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
