package pdfutils

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func CropImage(img image.Image, crop image.Rectangle) (image.Image, error) {
	simg, ok := img.(subImager)
	if !ok {
		return nil, errors.New("image does not support cropping")
	}

	crop = crop.Intersect(img.Bounds())
	if crop.Empty() {
		return nil, errors.Errorf("crop area %v outside image bounds %v", crop, img.Bounds())
	}

	return simg.SubImage(crop), nil
}

// PixelRect converts a top-left origin rectangle in document units into the
// pixel rectangle of an image rendered at the given scale.
func PixelRect(r Rect, scale float64) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X*scale)),
		int(math.Round(r.Y*scale)),
		int(math.Round(r.Right()*scale)),
		int(math.Round(r.Bottom()*scale)),
	)
}

// RotateImage turns img clockwise by a multiple of 90 degrees.
func RotateImage(img image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}

	return dst
}

func EncodeImage(w io.Writer, img image.Image, format string, quality int) error {
	if format == "jpg" {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}

	return png.Encode(w, img)
}

func WriteImage(img image.Image, name string, format string, quality int) error {
	if err := os.MkdirAll(filepath.Dir(name), os.ModePerm); err != nil {
		return err
	}

	fd, err := os.Create(name)
	if err != nil {
		return err
	}

	defer fd.Close()
	return EncodeImage(fd, img, format, quality)
}
