package render

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgmeyers/pdfmarks/textlayer"
	"github.com/mgmeyers/pdfmarks/viewport"
)

// gatedRaster blocks every render until its gate is released or the
// context ends.
type gatedRaster struct {
	mu      sync.Mutex
	started chan int
	gate    chan struct{}
	fail    map[int]error
}

func newGatedRaster() *gatedRaster {
	return &gatedRaster{
		started: make(chan int, 16),
		gate:    make(chan struct{}),
		fail:    map[int]error{},
	}
}

func (g *gatedRaster) Render(ctx context.Context, page int, vp viewport.Viewport) (image.Image, error) {
	g.started <- page
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.Lock()
	err := g.fail[page]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, int(vp.Width), int(vp.Height))), nil
}

type openRaster struct{ err error }

func (o openRaster) Render(ctx context.Context, page int, vp viewport.Viewport) (image.Image, error) {
	if o.err != nil {
		return nil, o.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

type fakeText struct{ err error }

func (f fakeText) GlyphRuns(ctx context.Context, page int) ([]textlayer.GlyphRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []textlayer.GlyphRun{{Text: "hello", Transform: [6]float64{12, 0, 0, 12, 72, 700}}}, nil
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) deliver(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) all() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

func letter(t *testing.T) viewport.Viewport {
	t.Helper()
	m, err := viewport.New(612, 792)
	require.NoError(t, err)
	vp, err := m.Viewport(1, viewport.Rotate0)
	require.NoError(t, err)
	return vp
}

func newScheduler(r Rasterizer, text TextSource) (*Scheduler, *collector, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	c := &collector{}
	s := NewScheduler(r, text, Options{Deliver: c.deliver, Log: log})
	return s, c, hook
}

func TestNewerRequestSupersedes(t *testing.T) {
	raster := newGatedRaster()
	s, c, _ := newScheduler(raster, fakeText{})
	vp := letter(t)

	first, err := s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	<-raster.started

	second, err := s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	assert.Greater(t, second, first)
	assert.False(t, s.Current(1, first))
	assert.True(t, s.Current(1, second))

	<-raster.started
	close(raster.gate)
	s.Wait()

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, second, got[0].Token)
	assert.NotNil(t, got[0].Image)
	assert.True(t, got[0].Layer.Available())
	assert.NoError(t, got[0].Err)
}

func TestPagesAreIndependent(t *testing.T) {
	raster := newGatedRaster()
	raster.fail[2] = errors.New("corrupt stream")
	s, c, _ := newScheduler(raster, fakeText{})
	vp := letter(t)

	_, err := s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	_, err = s.Request(context.Background(), 2, vp)
	require.NoError(t, err)
	close(raster.gate)
	s.Wait()

	got := c.all()
	require.Len(t, got, 2)

	byPage := map[int]Result{}
	for _, r := range got {
		byPage[r.Page] = r
	}

	assert.NotNil(t, byPage[1].Image)
	assert.NoError(t, byPage[1].Err)

	bad := byPage[2]
	assert.True(t, bad.Placeholder)
	assert.Nil(t, bad.Image)
	var perr *PageError
	require.True(t, errors.As(bad.Err, &perr))
	assert.Equal(t, 2, perr.Page)
	// text still came through
	assert.True(t, bad.Layer.Available())
}

func TestErrorReportedOnce(t *testing.T) {
	s, c, hook := newScheduler(openRaster{err: errors.New("bad xref")}, fakeText{})
	vp := letter(t)

	for i := 0; i < 3; i++ {
		_, err := s.Request(context.Background(), 4, vp)
		require.NoError(t, err)
		s.Wait()
	}

	got := c.all()
	require.Len(t, got, 3)
	assert.Error(t, got[0].Err)
	assert.NoError(t, got[1].Err)
	assert.True(t, got[1].Placeholder)

	errorsLogged := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)
}

func TestRecoversAfterFailure(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := &collector{}
	raster := &openRaster{err: errors.New("transient")}
	s := NewScheduler(raster, fakeText{}, Options{Deliver: c.deliver, Log: log})
	vp := letter(t)

	_, err := s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	s.Wait()

	raster.err = nil
	_, err = s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	s.Wait()

	got := c.all()
	require.Len(t, got, 2)
	assert.True(t, got[0].Placeholder)
	assert.False(t, got[1].Placeholder)
	assert.NotNil(t, got[1].Image)
}

func TestTextFailureLeavesRaster(t *testing.T) {
	s, c, _ := newScheduler(openRaster{}, fakeText{err: errors.New("no text")})

	_, err := s.Request(context.Background(), 1, letter(t))
	require.NoError(t, err)
	s.Wait()

	got := c.all()
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].Image)
	assert.False(t, got[0].Layer.Available())
	assert.NoError(t, got[0].Err)
}

func TestCancelAndClose(t *testing.T) {
	raster := newGatedRaster()
	s, c, _ := newScheduler(raster, fakeText{})
	vp := letter(t)

	_, err := s.Request(context.Background(), 1, vp)
	require.NoError(t, err)
	<-raster.started
	s.Cancel(1)
	s.Wait()

	_, err = s.Request(context.Background(), 2, vp)
	require.NoError(t, err)
	<-raster.started
	s.Close()

	assert.Empty(t, c.all())

	_, err = s.Request(context.Background(), 3, vp)
	assert.True(t, errors.Is(err, ErrClosed))
}

// switchText fails while err is set.
type switchText struct {
	mu  sync.Mutex
	err error
}

func (s *switchText) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchText) GlyphRuns(ctx context.Context, page int) ([]textlayer.GlyphRun, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	return fakeText{err: err}.GlyphRuns(ctx, page)
}

func warnings(hook *test.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "text layer unavailable" {
			n++
		}
	}
	return n
}

func TestTextFailureReportedOnce(t *testing.T) {
	text := &switchText{err: errors.New("broken font program")}
	s, c, hook := newScheduler(openRaster{}, text)
	vp := letter(t)

	for i := 0; i < 3; i++ {
		_, err := s.Request(context.Background(), 2, vp)
		require.NoError(t, err)
		s.Wait()
	}
	assert.Equal(t, 1, warnings(hook))

	text.set(nil)
	_, err := s.Request(context.Background(), 2, vp)
	require.NoError(t, err)
	s.Wait()

	text.set(errors.New("broken again"))
	_, err = s.Request(context.Background(), 2, vp)
	require.NoError(t, err)
	s.Wait()

	got := c.all()
	require.Len(t, got, 5)
	assert.True(t, got[3].Layer.Available())
	assert.False(t, got[4].Layer.Available())
	assert.Equal(t, 2, warnings(hook))
}

func TestConcurrentPagesWithDefaultBuilder(t *testing.T) {
	s, c, _ := newScheduler(openRaster{}, fakeText{})
	vp := letter(t)

	for page := 1; page <= 8; page++ {
		_, err := s.Request(context.Background(), page, vp)
		require.NoError(t, err)
	}
	s.Wait()

	got := c.all()
	require.Len(t, got, 8)
	for _, r := range got {
		assert.True(t, r.Layer.Available(), "page %d", r.Page)
		assert.Equal(t, 1, r.Layer.Len())
	}
}
