package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/export"
	"github.com/mgmeyers/pdfmarks/insight"
	"github.com/mgmeyers/pdfmarks/pdfdoc"
	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

type ListCmd struct {
	Input string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
}

type pageInfo struct {
	Page     int     `json:"page"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

func (c *ListCmd) Run(log *logrus.Logger) error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	info, err := pdfdoc.Probe(data)
	if err != nil {
		return err
	}

	doc, err := pdfdoc.Open(data, log)
	if err != nil {
		return err
	}
	if doc.NumPages() != info.Pages {
		log.WithFields(logrus.Fields{
			"probe":  info.Pages,
			"reader": doc.NumPages(),
		}).Warn("page counts disagree")
	}

	pages := make([]pageInfo, 0, doc.NumPages())
	for n := 1; n <= doc.NumPages(); n++ {
		g, err := doc.Geometry(n)
		if err != nil {
			return err
		}
		pages = append(pages, pageInfo{Page: n, Width: g.Width, Height: g.Height, Rotation: int(g.Rotation)})
	}
	return logOutput(pages)
}

type TextCmd struct {
	Page     int     `short:"p" help:"Page to print, all pages when omitted"`
	Scale    float64 `short:"s" default:"1" help:"Viewport scale"`
	Rotation int     `short:"r" default:"0" help:"Extra clockwise rotation in degrees"`

	Input string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
}

type textNode struct {
	Page     int           `json:"page"`
	Line     int           `json:"line"`
	Text     string        `json:"text"`
	Bounds   viewport.Rect `json:"bounds"`
	FontSize float64       `json:"fontSize"`
	Font     string        `json:"font"`
	Angle    float64       `json:"angle,omitempty"`
}

func (c *TextCmd) Run(log *logrus.Logger) error {
	doc, err := openPDF(c.Input, log)
	if err != nil {
		return err
	}

	pages, err := pageRange(c.Page, doc.NumPages())
	if err != nil {
		return err
	}

	ctx := context.Background()
	b := &textlayer.Builder{Log: log}
	out := []textNode{}

	for _, n := range pages {
		vp, err := pageViewport(doc, n, c.Scale, c.Rotation)
		if err != nil {
			return err
		}

		var layer *textlayer.Layer
		runs, err := doc.GlyphRuns(ctx, n)
		if err != nil {
			layer = b.Unavailable(n, vp, err)
		} else {
			layer = b.Build(n, runs, vp)
		}
		if !layer.Available() {
			log.WithFields(logrus.Fields{"page": n, "error": layer.Err}).Warn("text layer unavailable")
			continue
		}

		for node := range layer.Nodes().All() {
			out = append(out, textNode{
				Page:     n,
				Line:     node.Line,
				Text:     node.Text,
				Bounds:   node.Bounds,
				FontSize: node.FontSize,
				Font:     node.FontFamily,
				Angle:    node.Angle,
			})
		}
	}

	return logOutput(out)
}

func pageViewport(doc *pdfdoc.Document, n int, scale float64, extra int) (viewport.Viewport, error) {
	g, err := doc.Geometry(n)
	if err != nil {
		return viewport.Viewport{}, err
	}
	rot, err := viewport.NormalizeRotation(int(g.Rotation) + extra)
	if err != nil {
		return viewport.Viewport{}, err
	}
	m, err := doc.Mapper(n)
	if err != nil {
		return viewport.Viewport{}, err
	}
	return m.Viewport(scale, rot)
}

type ExportCmd struct {
	Output     string  `short:"o" type:"path" required:"" help:"Path of the exported PDF"`
	Opacity    float64 `default:"0.35" help:"Fill opacity of highlights and rectangles"`
	NoValidate bool    `help:"Skip validating the exported document"`

	Input       string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
	Annotations string `arg:"" name:"annotations" help:"Path to a JSON array of annotations" type:"path"`
}

func (c *ExportCmd) Run(log *logrus.Logger) error {
	doc, err := openPDF(c.Input, log)
	if err != nil {
		return err
	}

	store, err := loadAnnotations(c.Annotations, doc.NumPages(), log)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.Opacity = c.Opacity
	opts.Log = log
	if !c.NoValidate {
		opts.Validate = pdfdoc.Validate
	}

	out, err := export.New(opts).Export(context.Background(), doc.Bytes(), store)
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.Output, out, 0o644); err != nil {
		return errors.Wrap(err, "write output")
	}

	log.WithFields(logrus.Fields{
		"annotations": store.Len(),
		"output":      c.Output,
	}).Info("exported")
	return nil
}

type PromptCmd struct {
	Title string `short:"t" help:"Document title to put in the prompt"`

	Input       string `arg:"" name:"input" help:"Path to input PDF" type:"path"`
	Annotations string `arg:"" name:"annotations" help:"Path to a JSON array of annotations" type:"path"`
}

func (c *PromptCmd) Run(log *logrus.Logger) error {
	doc, err := openPDF(c.Input, log)
	if err != nil {
		return err
	}

	store, err := loadAnnotations(c.Annotations, doc.NumPages(), log)
	if err != nil {
		return err
	}

	prompt, err := insight.Prompt(c.Title, store.Snapshot())
	if err != nil {
		return err
	}

	_, err = os.Stdout.WriteString(prompt)
	return err
}
