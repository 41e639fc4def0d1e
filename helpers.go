package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfdoc"
)

func endIfErr(log logrus.FieldLogger, e error) {
	if e != nil {
		log.WithError(e).Fatal("pdfmarks failed")
	}
}

func openPDF(path string, log logrus.FieldLogger) (*pdfdoc.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	return pdfdoc.Open(data, log)
}

// loadAnnotations reads a JSON array of annotations into a new store. IDs
// in the file are replaced by freshly generated ones.
func loadAnnotations(path string, pages int, log logrus.FieldLogger) (*annotation.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read annotations")
	}

	var list []annotation.Annotation
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	store := annotation.NewStore(annotation.Options{PageCount: pages, Log: log})
	for i := range list {
		if _, err := store.Add(&list[i]); err != nil {
			return nil, errors.Wrapf(err, "annotation %d", i)
		}
	}
	return store, nil
}

// pageRange returns the pages to work on: just page when it is set,
// otherwise all of them.
func pageRange(page, count int) ([]int, error) {
	if page != 0 {
		if page < 1 || page > count {
			return nil, errors.Wrapf(pdfdoc.ErrPageRange, "page %d of %d", page, count)
		}
		return []int{page}, nil
	}

	pages := make([]int, count)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages, nil
}

func logOutput(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}
