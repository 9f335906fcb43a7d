// Package segment defines Segment and Buffer (§3): the contiguous aligned
// memory ranges a pool manages, and the bump-allocator view into one that the
// mutator and forwarding allocation use. Both types are deliberately
// pool-agnostic so the tracing engine (package trace) can interrogate grey/
// white/nailed state without importing a concrete pool class. A concrete pool
// class (package amc) uses *Segment directly, with no segment type of its own
// embedding it.
package segment

import (
	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/nailboard"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
)

// RankSet is a bitset over scan.Rank, naming which reference ranks a segment
// may contain. Empty means the segment holds only leaf objects (§3).
type RankSet uint8

// Has reports whether r is a member of the set.
func (s RankSet) Has(r scan.Rank) bool { return s&(1<<r) != 0 }

// With returns s with r added.
func (s RankSet) With(r scan.Rank) RankSet { return s | (1 << r) }

// IsEmpty reports whether the set names no ranks (a leaf segment).
func (s RankSet) IsEmpty() bool { return s == 0 }

// Buffer is a bump-allocator view into a segment (§3 "Buffer (allocation
// point)"). The invariant base ≤ scanLimit ≤ init ≤ alloc ≤ limit must hold at
// every observation point (§8 invariant 9).
type Buffer struct {
	Base      addr.Address
	ScanLimit addr.Address
	Init      addr.Address
	Alloc     addr.Address
	Limit     addr.Address

	// Segment is the segment this buffer currently allocates into, or nil if
	// detached.
	Segment *Segment

	// GenIndex names which chain generation this buffer's allocations target:
	// the nursery for a mutator buffer, or the next generation for a
	// forwarding buffer (§4.6).
	GenIndex int
	// IsForwarding marks a buffer used by fix to copy objects out of a
	// condemned segment, as opposed to one a mutator reserves/commits into.
	IsForwarding bool

	// flipEpoch is the arena epoch observed the last time this buffer was
	// attached or refilled. Commit compares against the arena's current epoch
	// to detect an intervening flip (§3 Buffer, §4.5 retry-on-commit-failure).
	flipEpoch uint64
}

// Avail returns the number of bytes left before Limit.
func (b *Buffer) Avail() addr.Size {
	return addr.Offset(b.Alloc, b.Limit)
}

// Reserve returns [Alloc, Alloc+size) for the client to initialize and
// advances Alloc past it, so the range is provisionally claimed before the
// client has touched it. The client must follow with Commit before the range
// is treated as holding a real, scannable object (§3 "init separates
// initialized from uninitialized memory").
func (b *Buffer) Reserve(size addr.Size) (addr.Address, bool) {
	if addr.Offset(b.Alloc, b.Limit) < size {
		return 0, false
	}
	p := b.Alloc
	b.Alloc += addr.Address(size)
	return p, true
}

// Commit advances Init to Alloc if no flip occurred since the matching
// Reserve (observed via currentEpoch), and reports success. On failure the
// client must re-run Reserve/initialize/Commit (§3, §7 "transient
// allocation-during-initialization races") — note Alloc is NOT rolled back on
// failure, matching the spec's "commit may fail...the client is required to
// retry initialization" rather than retry reservation of the same bytes.
func (b *Buffer) Commit(currentEpoch uint64) bool {
	if currentEpoch != b.flipEpoch {
		return false
	}
	b.Init = b.Alloc
	return true
}

// Attach points the buffer at [base, limit) of seg, recording epoch as the
// flip-race baseline for subsequent commits.
func (b *Buffer) Attach(seg *Segment, base, limit addr.Address, epoch uint64) {
	b.Segment = seg
	b.Base = base
	b.ScanLimit = base
	b.Init = base
	b.Alloc = base
	b.Limit = limit
	b.flipEpoch = epoch
	seg.Buffer = b
}

// Detach clears the buffer's association with its segment, returning the
// segment so the caller (buffer-empty path, §4.6) can pad its unused tail.
func (b *Buffer) Detach() *Segment {
	seg := b.Segment
	if seg != nil {
		seg.Buffer = nil
	}
	b.Segment = nil
	return seg
}

// Segment is a contiguous aligned memory range owned by exactly one pool
// (§3). amc uses it as is, keeping the generation in its own per-generation
// segment lists; nailboard ownership lives here since nailing is shared
// machinery, not AMC-specific.
type Segment struct {
	Base, Limit addr.Address

	// RankSet names the reference ranks this segment may contain; empty for
	// leaf segments.
	RankSet RankSet

	// Summary approximates the targets of every reference inside the segment.
	// Always a superset of the post-fix summary of its contents, unless WRITE
	// is raised, in which case it may be refset.Univ (§3 invariant).
	Summary refset.Set

	// Grey names the traces for which this segment is grey (reachable but not
	// yet scanned).
	Grey scan.TraceSet
	// White names the traces for which this segment is white (condemned).
	White scan.TraceSet
	// Nailed names the traces that have pinned this segment, via an ambiguous
	// reference or an emergency-mode exact fix.
	Nailed scan.TraceSet

	// ShieldMode is the currently raised protection.
	ShieldMode uint8

	// Board is this segment's nailboard, or nil if it has none: never nailed,
	// or its board dropped when the segment was reclaimed in place (§3
	// "Nailboards are owned by their segment").
	Board *nailboard.Board

	// Buffer is the allocation point currently attached to this segment, or
	// nil.
	Buffer *Buffer

	// forwarded accumulates, per trace id, the bytes this segment's objects
	// were found to occupy after being forwarded elsewhere (§4.5, §8
	// invariant 7). Indexed by trace id, sized by the arena's TRACE_MAX.
	forwarded [8]addr.Size
}

// Forwarded returns the bytes forwarded out of this segment on behalf of
// trace id t.
func (s *Segment) Forwarded(t uint8) addr.Size { return s.forwarded[t] }

// AddForwarded credits size bytes of forwarding to trace id t.
func (s *Segment) AddForwarded(t uint8, size addr.Size) { s.forwarded[t] += size }

// ResetForwarded zeroes the forwarded counter for trace id t, called by
// whiten when a segment is newly condemned for t (§4.6 "Whiten").
func (s *Segment) ResetForwarded(t uint8) { s.forwarded[t] = 0 }

// Size returns the segment's total byte extent.
func (s *Segment) Size() addr.Size { return addr.Offset(s.Base, s.Limit) }

// IsWhiteFor reports whether this segment is condemned for trace id t.
func (s *Segment) IsWhiteFor(t uint8) bool { return s.White.Has(t) }

// IsGreyForAny reports whether this segment is grey for any trace in set.
func (s *Segment) IsGreyForAny(set scan.TraceSet) bool { return s.Grey&set != 0 }

// IsNailedFor reports whether trace id t has pinned this segment.
func (s *Segment) IsNailedFor(t uint8) bool { return s.Nailed.Has(t) }
