package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mgmeyers/pdfmarks/pdfdoc"
	"github.com/mgmeyers/pdfmarks/pdfutils"
)

type RenderCmd struct {
	ImageOutputPath string  `short:"o" type:"path" required:"" help:"Directory to write page images to"`
	ImageBaseName   string  `short:"n" default:"page" help:"Base name of saved images"`
	ImageFormat     string  `short:"f" enum:"jpg,png" default:"jpg" help:"Image format. Supports png and jpg"`
	ImageQuality    int     `short:"q" default:"90" help:"Image quality. Only applies to jpg images"`
	Scale           float64 `short:"s" default:"1" help:"Viewport scale, 1 is 72 DPI"`
	Rotation        int     `short:"r" default:"0" help:"Extra clockwise rotation in degrees"`
	Page            int     `short:"p" help:"Page to render, all pages when omitted"`
	Concurrency     int     `short:"c" default:"2" help:"Pages rendered at a time"`

	Input string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
}

func (c *RenderCmd) Run(log *logrus.Logger) error {
	doc, err := openPDF(c.Input, log)
	if err != nil {
		return err
	}

	raster, err := pdfdoc.NewRasterizer(doc.Bytes(), doc)
	if err != nil {
		return err
	}
	defer raster.Close()

	pages, err := pageRange(c.Page, doc.NumPages())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.ImageOutputPath, os.ModePerm); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(c.Concurrency, 1))

	for _, n := range pages {
		g.Go(func() error {
			vp, err := pageViewport(doc, n, c.Scale, c.Rotation)
			if err != nil {
				return err
			}

			img, err := raster.Render(ctx, n, vp)
			if err != nil {
				return err
			}

			name := filepath.Join(c.ImageOutputPath, fmt.Sprintf("%s-%d.%s", c.ImageBaseName, n, c.ImageFormat))
			if err := pdfutils.WriteImage(img, name, c.ImageFormat, c.ImageQuality); err != nil {
				return err
			}

			log.WithFields(logrus.Fields{"page": n, "path": name}).Info("page rendered")
			return nil
		})
	}

	return g.Wait()
}
