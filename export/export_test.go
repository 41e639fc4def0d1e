package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/mgmeyers/unipdf/v3/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
	"github.com/mgmeyers/pdfmarks/viewport"
)

type staticSource []annotation.Annotation

func (s staticSource) Snapshot() []annotation.Annotation { return s }

// minimalPDF builds a document with the given number of empty letter pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i*2)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))

	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << >> >>", 4+i*2))
		content := "0 0 0 rg"
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func newExporter() *Exporter {
	log, _ := test.NewNullLogger()
	opts := DefaultOptions()
	opts.Log = log
	return New(opts)
}

func TestZeroAnnotationsIsIdentity(t *testing.T) {
	original := []byte("%PDF-1.4 not even parsed")

	out, err := newExporter().Export(context.Background(), original, staticSource(nil))
	require.NoError(t, err)
	assert.Equal(t, original, out)

	out[0] = 'X'
	assert.Equal(t, byte('%'), original[0], "the result does not alias the input")
}

func TestPlanFlipsY(t *testing.T) {
	m, err := viewport.New(612, 792)
	require.NoError(t, err)

	shapes := planPage(m, viewport.Point{}, []annotation.Annotation{{
		ID:    "r",
		Type:  annotation.Rectangle,
		Page:  1,
		Rect:  viewport.Rect{X: 10, Y: 10, Width: 50, Height: 20},
		Color: pdfutils.Blue,
	}}, DefaultOptions())

	require.Len(t, shapes, 1)
	assert.Equal(t, fill, shapes[0].kind)
	assert.Equal(t, viewport.Rect{X: 10, Y: 792 - 30, Width: 50, Height: 20}, shapes[0].rect)
}

func TestPlanKinds(t *testing.T) {
	m, err := viewport.New(200, 100)
	require.NoError(t, err)
	opts := DefaultOptions()

	shapes := planPage(m, viewport.Point{X: 5, Y: 7}, []annotation.Annotation{
		{ID: "u", Type: annotation.Underline, Rect: viewport.Rect{X: 10, Y: 20, Width: 40, Height: 12}},
		{ID: "n", Type: annotation.Note, Rect: viewport.Rect{X: 30, Y: 40, Width: 16, Height: 16}, Text: "one\r\n\ntwo"},
		{ID: "h", Type: annotation.Highlight, Rect: viewport.Rect{X: 0, Y: 0, Width: 10, Height: 10}},
	}, opts)

	require.Len(t, shapes, 3)

	// the bar sits on the bottom edge of the rect
	assert.Equal(t, bar, shapes[0].kind)
	assert.Equal(t, viewport.Rect{X: 15, Y: 100 - 32 + 7, Width: 40, Height: opts.UnderlineWidth}, shapes[0].rect)

	assert.Equal(t, note, shapes[1].kind)
	assert.Equal(t, []string{"one", "two"}, shapes[1].lines)
	assert.Equal(t, opts.NoteMarker, shapes[1].rect.Width)
	assert.Equal(t, 100-40+7.0, shapes[1].rect.Bottom())

	assert.Equal(t, fill, shapes[2].kind)
}

func TestDrawShape(t *testing.T) {
	e := newExporter()

	ops, err := e.drawShape(shape{kind: fill, rect: viewport.Rect{X: 10, Y: 762, Width: 50, Height: 20}, color: pdfutils.Yellow})
	require.NoError(t, err)
	assert.Contains(t, ops, "/GSpdfmarks gs")
	assert.Contains(t, ops, "re")

	ops, err = e.drawShape(shape{kind: note, rect: viewport.Rect{X: 1, Y: 1, Width: 8, Height: 8}, lines: []string{"café ✓"}})
	require.NoError(t, err)
	assert.Contains(t, ops, "/Fpdfmarks")
	assert.Contains(t, ops, "Tj")

	_, err = e.drawShape(shape{kind: fill, rect: viewport.Rect{Width: -1}})
	assert.Error(t, err)

	_, err = e.drawShape(shape{kind: shapeKind(99)})
	assert.Error(t, err)
}

func TestWinAnsi(t *testing.T) {
	s, err := winAnsi("café ✓")
	require.NoError(t, err)
	assert.Equal(t, "caf\xe9 ?", s)
}

func TestExportDrawsIntoPage(t *testing.T) {
	original := minimalPDF(3)
	keep := append([]byte(nil), original...)

	src := staticSource{
		{ID: "a", Type: annotation.Rectangle, Page: 2, Rect: viewport.Rect{X: 10, Y: 10, Width: 50, Height: 20}, Color: pdfutils.Blue},
		{ID: "b", Type: annotation.Note, Page: 2, Rect: viewport.Rect{X: 100, Y: 100, Width: 16, Height: 16}, Color: pdfutils.Orange, Text: "hi"},
		{ID: "c", Type: annotation.Highlight, Page: 9, Rect: viewport.Rect{Width: 5, Height: 5}},
	}

	validated := false
	opts := DefaultOptions()
	opts.Log, _ = test.NewNullLogger()
	opts.Validate = func(b []byte) error {
		validated = true
		return nil
	}

	out, err := New(opts).Export(context.Background(), original, src)
	require.NoError(t, err)
	assert.True(t, validated)
	assert.Equal(t, keep, original, "input untouched")
	assert.True(t, bytes.HasPrefix(out, original), "written as an incremental update")

	reader, err := model.NewPdfReader(bytes.NewReader(out))
	require.NoError(t, err)
	n, err := reader.GetNumPages()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := reader.GetPage(2)
	require.NoError(t, err)
	content, err := page.GetAllContentStreams()
	require.NoError(t, err)
	assert.Contains(t, content, "re")
	assert.Contains(t, content, "Tj")

	page, err = reader.GetPage(1)
	require.NoError(t, err)
	content, err = page.GetAllContentStreams()
	require.NoError(t, err)
	assert.NotContains(t, content, "Tj")
}

func TestExportSkipsInvalidAndDrawsTheRest(t *testing.T) {
	original := minimalPDF(1)

	src := staticSource{
		{ID: "bad", Type: annotation.Rectangle, Page: 1, Rect: viewport.Rect{X: 10, Y: 10, Width: -5, Height: 10}},
		{ID: "good", Type: annotation.Rectangle, Page: 1, Rect: viewport.Rect{X: 10, Y: 10, Width: 50, Height: 20}, Color: pdfutils.Blue},
	}

	log, hook := test.NewNullLogger()
	opts := DefaultOptions()
	opts.Log = log

	out, err := New(opts).Export(context.Background(), original, src)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, original))
	assert.Greater(t, len(out), len(original), "page was updated")

	reader, err := model.NewPdfReader(bytes.NewReader(out))
	require.NoError(t, err)
	page, err := reader.GetPage(1)
	require.NoError(t, err)
	content, err := page.GetAllContentStreams()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(content, " re"), content)

	var skipped []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "annotation skipped" {
			skipped = append(skipped, fmt.Sprint(entry.Data["id"]))
		}
	}
	assert.Equal(t, []string{"bad"}, skipped)
}

func TestExportErrors(t *testing.T) {
	src := staticSource{{ID: "a", Type: annotation.Rectangle, Page: 1, Rect: viewport.Rect{Width: 10, Height: 10}}}

	_, err := newExporter().Export(context.Background(), []byte("garbage"), src)
	var xerr *Error
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, "read", xerr.Op)

	opts := DefaultOptions()
	opts.Log, _ = test.NewNullLogger()
	boom := errors.New("boom")
	opts.Validate = func([]byte) error { return boom }
	_, err = New(opts).Export(context.Background(), minimalPDF(1), src)
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, "validate", xerr.Op)
	assert.True(t, errors.Is(err, boom))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newExporter().Export(ctx, minimalPDF(1), src)
	assert.True(t, errors.Is(err, context.Canceled))
}
