package annotation

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator hands out annotation IDs. Implementations must never return
// the same ID twice for one store.
type IDGenerator interface {
	NewID(t Type, page int) string
}

// Sequence is a monotonic counter. IDs look like "highlight-p2-17"; the
// trailing number alone is unique.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) NewID(t Type, page int) string {
	n := s.n.Add(1)
	if s.Prefix != "" {
		return fmt.Sprintf("%s-%s-p%d-%d", s.Prefix, t, page, n)
	}
	return fmt.Sprintf("%s-p%d-%d", t, page, n)
}
