package clinic

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock supplies timestamps so services stay testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// RealClock returns a UTC wall clock.
func RealClock() Clock { return realClock{} }

// FixedClock always returns the given instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// IDAllocator issues identifiers for new rows. Implementations must never
// issue the same ID twice.
type IDAllocator interface {
	NextID(ctx context.Context) (uint64, error)
}

// Sequence is an in-process monotonically increasing IDAllocator.
type Sequence struct {
	n atomic.Uint64
}

// NewSequence returns a sequence whose first issued ID is start+1.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.n.Store(start)
	return s
}

func (s *Sequence) NextID(context.Context) (uint64, error) {
	return s.n.Add(1), nil
}
