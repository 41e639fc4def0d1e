package annotation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("annotation not found")

// NotFoundError is returned by Update for an unknown ID. It matches
// ErrNotFound under errors.Is.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("annotation %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Origin tells subscribers where a change came from.
type Origin int

const (
	Local Origin = iota
	Remote
)

type EventKind int

const (
	Added EventKind = iota + 1
	Updated
	Removed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event describes one change to the store.
type Event struct {
	Kind       EventKind
	Origin     Origin
	Annotation *Annotation
}

// Patch lists the editable fields. Nil fields are left alone.
type Patch struct {
	Text    *string
	Color   *Color
	OCRText *string
}

type Options struct {
	IDs       IDGenerator
	PageCount int
	Now       func() time.Time
	Log       logrus.FieldLogger
}

type entry struct {
	seq   uint64
	annot *Annotation
}

// Store owns the annotations of one document. All operations are
// synchronous and visible to the next call. Nothing is persisted.
//
// Pointers handed out by the store stay valid and reflect later updates;
// callers must not modify them.
type Store struct {
	mu        sync.RWMutex
	ids       IDGenerator
	now       func() time.Time
	log       logrus.FieldLogger
	pageCount int

	seq   uint64
	byID  map[string]*entry
	pages map[int][]*Annotation

	subMu  sync.Mutex
	subID  int
	subs   map[int]func(Event)
	subSeq []int
}

func NewStore(opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = NewSequence()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Store{
		ids:       opts.IDs,
		now:       opts.Now,
		log:       opts.Log,
		pageCount: opts.PageCount,
		byID:      make(map[string]*entry),
		pages:     make(map[int][]*Annotation),
		subs:      make(map[int]func(Event)),
	}
}

// SetPageCount sets the upper bound used to validate new annotations.
func (s *Store) SetPageCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCount = n
}

func (s *Store) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageCount
}

// Add stores a copy of a under a freshly generated ID and returns that ID.
func (s *Store) Add(a *Annotation) (string, error) {
	return s.AddFrom(Local, a)
}

// AddFrom is Add with an explicit origin for subscribers.
func (s *Store) AddFrom(origin Origin, a *Annotation) (string, error) {
	if a == nil {
		return "", errors.New("nil annotation")
	}

	cp := *a

	s.mu.Lock()
	if err := cp.Validate(s.pageCount); err != nil {
		s.mu.Unlock()
		return "", errors.Wrap(err, "add annotation")
	}

	cp.ID = s.ids.NewID(cp.Type, cp.Page)
	if _, dup := s.byID[cp.ID]; dup {
		s.mu.Unlock()
		return "", errors.Errorf("id generator returned duplicate id %q", cp.ID)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}

	s.seq++
	s.byID[cp.ID] = &entry{seq: s.seq, annot: &cp}
	s.pages[cp.Page] = append(s.pages[cp.Page], &cp)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"id":   cp.ID,
		"type": cp.Type,
		"page": cp.Page,
	}).Debug("annotation added")

	s.publish(Event{Kind: Added, Origin: origin, Annotation: &cp})

	return cp.ID, nil
}

// Remove deletes the annotation with the given ID. It reports false when
// there is no such annotation.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	delete(s.byID, id)

	list := s.pages[e.annot.Page]
	for i, a := range list {
		if a == e.annot {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.pages, e.annot.Page)
	} else {
		s.pages[e.annot.Page] = list
	}
	s.mu.Unlock()

	s.log.WithField("id", id).Debug("annotation removed")
	s.publish(Event{Kind: Removed, Origin: Local, Annotation: e.annot})

	return true
}

// Update applies patch to the annotation in place, so that every holder of
// the pointer sees the change.
func (s *Store) Update(id string, patch Patch) (*Annotation, error) {
	s.mu.Lock()
	e, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, &NotFoundError{ID: id}
	}

	candidate := *e.annot
	if patch.Text != nil {
		candidate.Text = *patch.Text
	}
	if patch.Color != nil {
		candidate.Color = *patch.Color
	}
	if patch.OCRText != nil {
		candidate.OCRText = *patch.OCRText
	}

	// the page bound is not re-checked, the page of an annotation never changes
	if err := candidate.Validate(0); err != nil {
		s.mu.Unlock()
		return nil, errors.Wrapf(err, "update %s", id)
	}

	*e.annot = candidate
	s.mu.Unlock()

	s.publish(Event{Kind: Updated, Origin: Local, Annotation: e.annot})

	return e.annot, nil
}

func (s *Store) Get(id string) (*Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.annot, true
}

// Value returns a copy of the annotation with the given ID, taken under the
// store lock.
func (s *Store) Value(id string) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return Annotation{}, false
	}
	return *e.annot, true
}

// ListForPage returns the annotations of a page in insertion order.
func (s *Store) ListForPage(page int) []*Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.pages[page]
	out := make([]*Annotation, len(list))
	copy(out, list)
	return out
}

// All returns every annotation ordered by page, then insertion.
func (s *Store) All() []*Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.annot.Page != b.annot.Page {
			return a.annot.Page < b.annot.Page
		}
		return a.seq < b.seq
	})

	out := make([]*Annotation, len(entries))
	for i, e := range entries {
		out[i] = e.annot
	}
	return out
}

// Snapshot returns value copies of all annotations, taken under one lock.
// Use it from goroutines that run beside the event loop.
func (s *Store) Snapshot() []Annotation {
	all := s.All()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Annotation, 0, len(all))
	for _, a := range all {
		if _, ok := s.byID[a.ID]; ok {
			out = append(out, *a)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Subscribe registers fn for change events and returns a function that
// removes it again. Events are delivered synchronously, after the store
// lock has been released.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subID++
	id := s.subID
	s.subs[id] = fn
	s.subSeq = append(s.subSeq, id)

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
		for i, sid := range s.subSeq {
			if sid == id {
				s.subSeq = append(s.subSeq[:i:i], s.subSeq[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, id := range s.subSeq {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
