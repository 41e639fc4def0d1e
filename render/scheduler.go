// Package render schedules page renders and makes sure only the newest
// result for a page ever reaches the viewer.
package render

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// Rasterizer draws a page into an image at the given viewport.
type Rasterizer interface {
	Render(ctx context.Context, page int, vp viewport.Viewport) (image.Image, error)
}

// TextSource yields the glyph runs of a page.
type TextSource interface {
	GlyphRuns(ctx context.Context, page int) ([]textlayer.GlyphRun, error)
}

// PageError is a failure confined to one page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Result is a finished render. When the raster failed Image is nil,
// Placeholder is set and Err holds a *PageError; the text layer may still be
// usable.
type Result struct {
	Page     int
	Token    uint64
	Viewport viewport.Viewport

	Image       image.Image
	Placeholder bool
	Layer       *textlayer.Layer
	Err         error
}

type Options struct {
	Builder *textlayer.Builder

	// Deliver receives every result that is still current when it
	// completes. It is called from the render goroutine.
	Deliver func(Result)

	Log logrus.FieldLogger
}

type slot struct {
	token  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs at most one render per page. A new request for a page
// cancels and supersedes the one in flight; results of superseded requests
// are dropped.
type Scheduler struct {
	raster  Rasterizer
	text    TextSource
	builder *textlayer.Builder
	deliver func(Result)
	log     logrus.FieldLogger

	mu       sync.Mutex
	token    uint64
	slots    map[int]*slot
	reported map[int]bool
	// pages whose text layer failure has been logged
	textReported map[int]bool
	closed       bool

	wg sync.WaitGroup
}

func NewScheduler(raster Rasterizer, text TextSource, opts Options) *Scheduler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Builder == nil {
		opts.Builder = &textlayer.Builder{Log: opts.Log}
	}
	if opts.Deliver == nil {
		opts.Deliver = func(Result) {}
	}

	return &Scheduler{
		raster:   raster,
		text:     text,
		builder:  opts.Builder,
		deliver:  opts.Deliver,
		log:      opts.Log,
		slots:    make(map[int]*slot),
		reported: make(map[int]bool),

		textReported: make(map[int]bool),
	}
}

var ErrClosed = errors.New("scheduler closed")

// Request starts rendering page at vp and returns the token identifying this
// request.
func (s *Scheduler) Request(ctx context.Context, page int, vp viewport.Viewport) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	var prev chan struct{}
	if old, ok := s.slots[page]; ok {
		old.cancel()
		prev = old.done
	}

	s.token++
	rctx, cancel := context.WithCancel(ctx)
	sl := &slot{token: s.token, cancel: cancel, done: make(chan struct{})}
	s.slots[page] = sl

	s.wg.Add(1)
	go s.run(rctx, page, vp, sl, prev)

	return sl.token, nil
}

// Current reports whether token is the newest request for page.
func (s *Scheduler) Current(page int, token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[page]
	return ok && sl.token == token
}

// Cancel abandons the render of page, if any.
func (s *Scheduler) Cancel(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.slots[page]; ok {
		sl.cancel()
		delete(s.slots, page)
	}
}

// Close cancels every render and waits for the goroutines to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for page, sl := range s.slots {
		sl.cancel()
		delete(s.slots, page)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Wait blocks until no render is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, page int, vp viewport.Viewport, sl *slot, prev chan struct{}) {
	defer s.wg.Done()
	defer close(sl.done)
	defer sl.cancel()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	log := s.log.WithFields(logrus.Fields{"page": page, "token": sl.token})

	res := Result{Page: page, Token: sl.token, Viewport: vp}

	img, rerr := s.raster.Render(ctx, page, vp)
	if rerr != nil {
		res.Placeholder = true
		res.Err = &PageError{Page: page, Err: rerr}
	} else {
		res.Image = img
	}

	runs, terr := s.text.GlyphRuns(ctx, page)
	if terr != nil {
		res.Layer = s.builder.Unavailable(page, vp, terr)
	} else {
		res.Layer = s.builder.Build(page, runs, vp)
	}

	if ctx.Err() != nil {
		log.Debug("render cancelled")
		return
	}

	s.mu.Lock()
	cur, ok := s.slots[page]
	stale := !ok || cur != sl
	if !stale {
		delete(s.slots, page)
		if res.Err != nil {
			if s.reported[page] {
				// already reported, stay quiet
				res.Err = nil
			} else {
				s.reported[page] = true
			}
		} else {
			delete(s.reported, page)
		}
	}
	textFailed := false
	if !stale {
		if res.Layer.Available() {
			delete(s.textReported, page)
		} else if !s.textReported[page] {
			s.textReported[page] = true
			textFailed = true
		}
	}
	s.mu.Unlock()

	if stale {
		log.Debug("stale render discarded")
		return
	}

	if res.Err != nil {
		log.WithError(res.Err).Error("page render failed")
	}
	if textFailed {
		log.WithError(res.Layer.Err).Warn("text layer unavailable")
	}

	s.deliver(res)
}
