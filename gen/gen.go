// Package gen implements Generation and Chain (§3, §4.6, §4.7): the ordered
// buckets of segments a moving pool ages objects through, and the
// configuration (capacity, mortality) that drives when and how much gets
// condemned.
package gen

import "github.com/bearlytools/mps/addr"

// Desc configures one generation in a Chain: its nominal capacity (used to
// decide when the generation is due for collection) and its expected
// mortality (the fraction of bytes condemned in it that are expected to die,
// used to size forwarding buffers and to pace emergency escalation).
type Desc struct {
	Capacity  addr.Size
	Mortality float64
}

// Chain is an ordered list of generation descriptors. The final generation
// forwards to itself: there is no promotion beyond the oldest generation
// (§3 Chain).
type Chain struct {
	descs []Desc
}

// NewChain builds a chain from descs, oldest-last.
func NewChain(descs ...Desc) *Chain {
	c := &Chain{descs: make([]Desc, len(descs))}
	copy(c.descs, descs)
	return c
}

// Len returns the number of generations in the chain.
func (c *Chain) Len() int { return len(c.descs) }

// Desc returns the configuration of generation i.
func (c *Chain) Desc(i int) Desc { return c.descs[i] }

// TargetOf returns the index a generation at index i promotes into: i+1, or i
// itself if i is the last generation (self-forwarding, §3).
func (c *Chain) TargetOf(i int) int {
	if i+1 >= len(c.descs) {
		return i
	}
	return i + 1
}

// Accounting tracks the live-byte bookkeeping §3 assigns to a generation:
// totalSize, freeSize, newSize, oldSize, bufferedSize and deferred (bytes not
// yet contributing to newSize because they were allocated during a ramp or
// via a hash-array allocation, §4.6).
type Accounting struct {
	TotalSize    addr.Size
	FreeSize     addr.Size
	NewSize      addr.Size
	OldSize      addr.Size
	BufferedSize addr.Size
	Deferred     addr.Size
}

// AddNew records size bytes of fresh allocation, deferred if defer_ is true
// (ramp / hash-array allocation, §4.6 "Segment creation").
func (a *Accounting) AddNew(size addr.Size, defer_ bool) {
	a.TotalSize += size
	if defer_ {
		a.Deferred += size
		return
	}
	a.NewSize += size
}

// Age transfers size bytes from new to old accounting, called when whiten
// marks a segment's buffer-observed region as old (§4.6 "Whiten"). Only the
// debit is clamped: NewSize never goes below zero, while OldSize is always
// credited the full size.
func (a *Accounting) Age(size addr.Size) {
	debit := size
	if debit > a.NewSize {
		debit = a.NewSize
	}
	a.NewSize -= debit
	a.OldSize += size
}

// Undefer materializes previously deferred bytes into newSize, called when a
// ramp ends (§4.6 Ramp pattern "COLLECTING→OUTSIDE").
func (a *Accounting) Undefer() {
	a.NewSize += a.Deferred
	a.Deferred = 0
}

// Reclaim removes size bytes of old accounting and credits it back to free,
// called when a segment is fully reclaimed.
func (a *Accounting) Reclaim(size addr.Size) {
	if size > a.OldSize {
		a.OldSize = 0
	} else {
		a.OldSize -= size
	}
	a.FreeSize += size
}

// Condemned returns the bytes currently eligible for collection in this
// generation: new plus old, excluding anything still deferred.
func (a *Accounting) Condemned() addr.Size {
	return a.NewSize + a.OldSize
}
