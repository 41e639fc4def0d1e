// Package collab shares annotations between viewers of the same document.
// Every local add is sent as a record; every received record is added
// locally and never sent back.
package collab

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mgmeyers/pdfmarks/annotation"
)

// Record is the wire form of a shared annotation.
type Record struct {
	Type     annotation.Type  `json:"type"`
	Page     int              `json:"page"`
	Rect     annotation.Rect  `json:"rect"`
	Color    annotation.Color `json:"color"`
	Text     string           `json:"text,omitempty"`
	AuthorID string           `json:"authorId,omitempty"`
}

func RecordOf(a *annotation.Annotation) Record {
	return Record{
		Type:     a.Type,
		Page:     a.Page,
		Rect:     a.Rect,
		Color:    a.Color,
		Text:     a.Text,
		AuthorID: a.AuthorID,
	}
}

func (r Record) Annotation() *annotation.Annotation {
	return &annotation.Annotation{
		Type:     r.Type,
		Page:     r.Page,
		Rect:     r.Rect,
		Color:    r.Color,
		Text:     r.Text,
		AuthorID: r.AuthorID,
	}
}

func Encode(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func Decode(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	return r, nil
}

// Transport carries encoded records between peers.
type Transport interface {
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until a message arrives, the context ends or the
	// transport is closed, in which case it returns io.EOF.
	Receive(ctx context.Context) ([]byte, error)
}

type Options struct {
	// Outbox is the number of local adds buffered while the transport is
	// busy. Adds beyond that are dropped with a warning.
	Outbox int
	Log    logrus.FieldLogger
}

type Session struct {
	store     *annotation.Store
	transport Transport
	log       logrus.FieldLogger

	outbox chan []byte
	cancel func()

	mu      sync.Mutex
	applied int
	sent    int
}

// NewSession starts watching store for local adds. Call Run to exchange
// records and Close to stop watching.
func NewSession(store *annotation.Store, t Transport, opts Options) *Session {
	if opts.Outbox <= 0 {
		opts.Outbox = 64
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	s := &Session{
		store:     store,
		transport: t,
		log:       opts.Log,
		outbox:    make(chan []byte, opts.Outbox),
	}
	s.cancel = store.Subscribe(s.onEvent)
	return s
}

func (s *Session) onEvent(ev annotation.Event) {
	if ev.Kind != annotation.Added || ev.Origin != annotation.Local {
		return
	}

	msg, err := Encode(RecordOf(ev.Annotation))
	if err != nil {
		s.log.WithError(err).Warn("record not shared")
		return
	}

	select {
	case s.outbox <- msg:
	default:
		s.log.WithField("id", ev.Annotation.ID).Warn("outbox full, record not shared")
	}
}

// Run sends local adds and applies received records until ctx ends or the
// transport fails.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case msg := <-s.outbox:
				if err := s.transport.Send(gctx, msg); err != nil {
					return errors.Wrap(err, "send")
				}
				s.mu.Lock()
				s.sent++
				s.mu.Unlock()
			}
		}
	})

	g.Go(func() error {
		for {
			msg, err := s.transport.Receive(gctx)
			if err != nil {
				return errors.Wrap(err, "receive")
			}
			if _, err := s.Apply(msg); err != nil {
				s.log.WithError(err).Warn("record rejected")
			}
		}
	})

	return g.Wait()
}

// Apply adds a received record to the store as a remote change.
func (s *Session) Apply(msg []byte) (string, error) {
	r, err := Decode(msg)
	if err != nil {
		return "", err
	}

	id, err := s.store.AddFrom(annotation.Remote, r.Annotation())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.applied++
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"id":     id,
		"author": r.AuthorID,
	}).Debug("remote annotation applied")

	return id, nil
}

// Stats reports how many records were sent and applied.
func (s *Session) Stats() (sent, applied int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.applied
}

func (s *Session) Close() {
	s.cancel()
}
