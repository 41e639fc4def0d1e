package collab

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgmeyers/pdfmarks/annotation"
	"github.com/mgmeyers/pdfmarks/pdfutils"
)

func newPeer(t *testing.T, tr Transport) (*annotation.Store, *Session) {
	t.Helper()
	log, _ := test.NewNullLogger()
	store := annotation.NewStore(annotation.Options{PageCount: 5, Log: log})
	return store, NewSession(store, tr, Options{Log: log})
}

func TestRecordJSON(t *testing.T) {
	b, err := Encode(Record{
		Type:  annotation.Underline,
		Page:  3,
		Rect:  annotation.Rect{X: 1, Y: 2, Width: 3, Height: 4},
		Color: pdfutils.Red,
		Text:  "hi",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"underline","page":3,"rect":{"x":1,"y":2,"width":3,"height":4},"color":"#f54236","text":"hi"}`, string(b))

	r, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, annotation.Underline, r.Type)
	assert.Equal(t, "hi", r.Text)

	_, err = Decode([]byte(`{"type":"lasso"}`))
	assert.Error(t, err)
}

func TestSharedAddIsNotEchoed(t *testing.T) {
	ta, tb := Pipe()
	storeA, sessA := newPeer(t, ta)
	storeB, sessB := newPeer(t, tb)
	defer sessA.Close()
	defer sessB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- sessA.Run(ctx) }()
	go func() { errB <- sessB.Run(ctx) }()

	var remote []annotation.Event
	cancelSub := storeB.Subscribe(func(ev annotation.Event) { remote = append(remote, ev) })
	defer cancelSub()

	_, err := storeA.Add(&annotation.Annotation{
		Type:     annotation.Highlight,
		Page:     2,
		Rect:     annotation.Rect{Width: 100, Height: 10},
		Color:    pdfutils.Yellow,
		Text:     "hello",
		AuthorID: "alice",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return storeB.Len() == 1 }, time.Second, 5*time.Millisecond)

	got := storeB.ListForPage(2)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "alice", got[0].AuthorID)

	// give an echo the chance to arrive
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, storeA.Len())

	sent, applied := sessB.Stats()
	assert.Zero(t, sent)
	assert.Equal(t, 1, applied)

	cancel()
	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.ErrorIs(t, <-errB, context.Canceled)
	require.NotEmpty(t, remote)
	assert.Equal(t, annotation.Remote, remote[0].Origin)
}

func TestRejectedRecordKeepsSessionAlive(t *testing.T) {
	_, tb := Pipe()
	store, sess := newPeer(t, tb)
	defer sess.Close()

	_, err := sess.Apply([]byte(`{"type":"note","page":1,"rect":{"x":0,"y":0,"width":1,"height":1},"color":"#000000"}`))
	assert.True(t, errors.Is(err, annotation.ErrEmptyNote))

	_, err = sess.Apply([]byte(`{"type":"rectangle","page":9,"rect":{"x":0,"y":0,"width":1,"height":1},"color":"#000000"}`))
	assert.True(t, errors.Is(err, annotation.ErrPageOutOfRange))

	assert.Zero(t, store.Len())
}

func TestClosedTransportEndsRun(t *testing.T) {
	ta, tb := Pipe()
	_, sess := newPeer(t, ta)
	defer sess.Close()

	require.NoError(t, tb.(io.Closer).Close())

	err := sess.Run(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}
