package pdfdoc

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

// Info is what a quick structural probe finds out about a document.
type Info struct {
	Pages int
	Sizes []PageSize
}

type PageSize struct {
	Width  float64
	Height float64
}

func pdfcpuConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Probe reads page count and page sizes with pdfcpu, without decoding any
// content.
func Probe(data []byte) (Info, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return Info{}, errors.Wrap(err, "probe page count")
	}

	dims, err := api.PageDims(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return Info{}, errors.Wrap(err, "probe page sizes")
	}

	info := Info{Pages: n, Sizes: make([]PageSize, 0, len(dims))}
	for _, d := range dims {
		info.Sizes = append(info.Sizes, PageSize{Width: d.Width, Height: d.Height})
	}
	return info, nil
}

// Validate checks data for structural errors. It is suitable as the export
// validation hook.
func Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), pdfcpuConfig()); err != nil {
		return errors.Wrap(err, "validate pdf")
	}
	return nil
}
