package pdfdoc

import (
	"context"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"

	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// Rasterizer renders pages with MuPDF. MuPDF applies the page's /Rotate
// entry itself, so the image is turned only by the difference to the
// requested rotation.
type Rasterizer struct {
	mu  sync.Mutex
	doc *fitz.Document

	// rotation of page n, may be nil
	rotation func(n int) viewport.Rotation
}

// NewRasterizer opens data for rendering. doc, when given, supplies the
// page rotations.
func NewRasterizer(data []byte, doc *Document) (*Rasterizer, error) {
	fd, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.Wrap(err, "open raster document")
	}

	r := &Rasterizer{doc: fd}
	if doc != nil {
		r.rotation = func(n int) viewport.Rotation {
			g, err := doc.Geometry(n)
			if err != nil {
				return 0
			}
			return g.Rotation
		}
	}
	return r, nil
}

func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Close()
}

// Image renders page n at dpi without any extra rotation.
func (r *Rasterizer) Image(n int, dpi float64) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < 1 || n > r.doc.NumPage() {
		return nil, errors.Wrapf(ErrPageRange, "page %d of %d", n, r.doc.NumPage())
	}

	img, err := r.doc.ImageDPI(n-1, dpi)
	if err != nil {
		return nil, errors.Wrapf(err, "render page %d", n)
	}
	return img, nil
}

// Render draws page n as seen through vp: 72 × scale DPI, turned to the
// viewport rotation.
func (r *Rasterizer) Render(ctx context.Context, n int, vp viewport.Viewport) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := r.Image(n, 72*vp.Scale)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var own viewport.Rotation
	if r.rotation != nil {
		own = r.rotation(n)
	}

	return pdfutils.RotateImage(img, int(vp.Rotation)-int(own)), nil
}
