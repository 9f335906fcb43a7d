// Package amc implements the AMC pool class (§4.6), the Automatic
// Mostly-Copying generational copying collector at the core of this system:
// segment lifecycle, allocation points, forwarding buffers, whiten/scan/fix/
// reclaim per segment, nailed-segment handling, the ramp pattern, and
// emergency fix. A Pool configured with an empty RankSet is the AMCZ
// (leaf-only) variant (§3 "AMC pool").
package amc

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/format"
	"github.com/bearlytools/mps/gen"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/segment"
)

// Pinned selects how the nailed-scan loop decides an object is pinned (§4.6
// Scan): base-only pins on the bit at the object's base address; interior
// pins if any bit within the object's extent is nailed.
type Pinned uint8

const (
	PinnedBase Pinned = iota
	PinnedInterior
)

// RampMode is the ramp pattern's state (§4.6 Ramp pattern).
type RampMode uint8

const (
	RampOutside RampMode = iota
	RampBegin
	RampRamping
	RampFinish
	RampCollecting
)

// Generation is one bucket of segments aged together (§3 "Generation
// (amcGen)").
type Generation struct {
	Index      int
	Accounting gen.Accounting
	Segments   []*segment.Segment
	Forwarding segment.Buffer
	Nursery    segment.Buffer
}

// Pool is one AMC pool instance (§3 "AMC pool").
type Pool struct {
	RankSet   segment.RankSet
	Format    format.Format
	ZoneShift refset.ZoneShift
	Chain     *gen.Chain
	Gens      []*Generation

	Pinned    Pinned
	ExtendBy  addr.Size
	LargeSize addr.Size

	RampGen      int
	AfterRampGen int
	RampMode     RampMode
	RampCount    int

	// allocator supplies backing memory for newly created segments (§1: the
	// real VM layer is out of scope; tests and embedders supply their own).
	allocator func(size addr.Size) (*segment.Segment, error)

	// SegmentOf resolves an address to the segment containing it (§4.5 fix
	// step 1). The arena's implementation is a linear search over every
	// registered pool's segments, not a constant-time table lookup.
	// The arena wires this in when it registers the pool, since segment-of-
	// address lookup is an arena-wide capability (§3 Arena), not something a
	// single pool can answer on its own.
	SegmentOf func(a addr.Address) (*segment.Segment, bool)

	// epochFunc reports the arena's current epoch, used by fix's buffer
	// commit retry loop to detect an intervening flip (§4.5 "Retry on commit
	// failure"). Wired by the arena via WithEpochFunc at pool-registration
	// time; a pool never driven through a real flip (e.g. an isolated fix
	// test) sees epoch 0 throughout.
	epochFunc func() uint64

	// deallocator returns a freed segment's memory to whatever backs allocator
	// (§4.6 Reclaim "free the entire segment"). Nil is a valid no-op for tests
	// that never expect memory back.
	deallocator func(*segment.Segment)
}

// WithDeallocator wires f as p's segment-free callback.
func (p *Pool) WithDeallocator(f func(*segment.Segment)) {
	p.deallocator = f
}

// SetSegmentOf wires f as p's segment-of-address lookup. The arena calls
// this when registering a pool, satisfying the optional wiring capability
// arena.Arena looks for via a type assertion (the same optional-capability
// pattern format.Classifier uses).
func (p *Pool) SetSegmentOf(f func(addr.Address) (*segment.Segment, bool)) {
	p.SegmentOf = f
}

// Segments returns every segment this pool currently owns, across all
// generations, for the arena's segment-of-address lookup (§3 Arena).
func (p *Pool) Segments() []*segment.Segment {
	var out []*segment.Segment
	for _, g := range p.Gens {
		out = append(out, g.Segments...)
	}
	return out
}

// WithEpochFunc wires f as p's epoch source. Called by the arena when it
// registers a pool, since only the arena knows the global flip epoch.
func (p *Pool) WithEpochFunc(f func() uint64) {
	p.epochFunc = f
}

// New builds a Pool over chain, backed by alloc for raw segment memory.
// rankSet is empty for the AMCZ leaf-only variant, {EXACT} for the reference
// AMC variant (§3).
func New(chain *gen.Chain, f format.Format, zoneShift refset.ZoneShift, rankSet segment.RankSet, alloc func(addr.Size) (*segment.Segment, error)) *Pool {
	p := &Pool{
		RankSet:      rankSet,
		Format:       f,
		ZoneShift:    zoneShift,
		Chain:        chain,
		ExtendBy:     addr.Size(64 * 1024),
		LargeSize:    addr.Size(16 * 1024),
		RampGen:      -1,
		AfterRampGen: -1,
		allocator:    alloc,
	}
	p.Gens = make([]*Generation, chain.Len())
	for i := range p.Gens {
		p.Gens[i] = &Generation{Index: i}
	}
	return p
}

// generationSize is the size used to create a new segment when a buffer
// fills: max(extendBy, grainsAlignedUp(size)) (§4.6 "Segment creation").
func (p *Pool) generationSize(requested addr.Size) addr.Size {
	g := addr.GrainsAlignedUp(requested, p.Format.Alignment())
	if g < p.ExtendBy {
		return p.ExtendBy
	}
	return g
}

// isLeaf reports whether this pool's segments hold no references at all
// (the AMCZ configuration).
func (p *Pool) isLeaf() bool {
	return p.RankSet.IsEmpty()
}

// targetGenIndex returns the generation a buffer attached at genIndex
// forwards surviving objects into: the chain's next generation, unless the
// ramp pattern is redirecting genIndex's forwarding buffer at itself (§4.6
// Ramp pattern: "forwarding buffer is redirected to itself").
func (p *Pool) targetGenIndex(genIndex int) int {
	if p.RampMode == RampRamping && genIndex == p.RampGen {
		return p.RampGen
	}
	if p.RampMode == RampFinish && genIndex == p.RampGen {
		return p.AfterRampGen
	}
	return p.Chain.TargetOf(genIndex)
}

func resourceErr(ctx context.Context, msg string) error {
	return mpserr.E(ctx, mpserr.CatResource, mpserr.TypeResource, errString(msg))
}

type errString string

func (e errString) Error() string { return string(e) }
