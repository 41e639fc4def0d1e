// Package insight prepares annotation context for an external insight
// service. The service is opaque; its answer is only ever displayed.
package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
)

// Provider answers a prompt with generated text.
type Provider interface {
	Insight(ctx context.Context, prompt string) (string, error)
}

var ErrNothingToSay = errors.New("no annotated text to build a prompt from")

// maxEntry bounds the text quoted per annotation.
const maxEntry = 500

// Prompt lists the annotated passages of a document, page by page, with
// their kind and colour category.
func Prompt(title string, annots []annotation.Annotation) (string, error) {
	list := make([]*annotation.Annotation, 0, len(annots))
	for i := range annots {
		if quote(&annots[i]) != "" {
			list = append(list, &annots[i])
		}
	}
	if len(list) == 0 {
		return "", ErrNothingToSay
	}
	sort.Stable(annotation.ByPosition(list))

	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Document: %s\n", title)
	}
	b.WriteString("Annotated passages:\n")

	page := 0
	for _, a := range list {
		if a.Page != page {
			page = a.Page
			fmt.Fprintf(&b, "\nPage %d\n", page)
		}
		fmt.Fprintf(&b, "- [%s, %s] %s\n", a.Type, a.Color.Category(), quote(a))
	}

	return b.String(), nil
}

func quote(a *annotation.Annotation) string {
	text := a.Text
	if pdfutils.IsBlank(text) {
		text = a.OCRText
	}
	text = pdfutils.CondenseSpaces(pdfutils.RemoveNul(text))

	if r := []rune(text); len(r) > maxEntry {
		text = string(r[:maxEntry]) + "…"
	}
	return text
}

// Ask builds the prompt and hands it to p.
func Ask(ctx context.Context, p Provider, title string, annots []annotation.Annotation, log logrus.FieldLogger) (string, error) {
	prompt, err := Prompt(title, annots)
	if err != nil {
		return "", err
	}

	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"annotations": len(annots),
		"promptSize":  len(prompt),
	}).Debug("requesting insight")

	out, err := p.Insight(ctx, prompt)
	if err != nil {
		return "", errors.Wrap(err, "insight")
	}
	return strings.TrimSpace(out), nil
}
