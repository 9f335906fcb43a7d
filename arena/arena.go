// Package arena implements the root container described in §3 Arena: the
// owner of every pool and root, the segment-of-address lookup every fix call
// needs, the trace-slot table, and the poll driver that turns allocation
// pressure into bounded units of collector work (§4.4 Step, §2 item 10).
//
// Lifecycle ownership (§3 "Lifecycle ownership"): the arena exclusively owns
// pools; pools exclusively own segments; a segment may be temporarily
// associated with one buffer. Traces are pre-allocated slots in the arena
// indexed by trace id; CreateTrace/DestroyTrace reuse slots rather than
// allocate new ones, matching the spec's "avoid cyclic ownership" redesign
// flag (§9 "Cyclic references between arena ↔ pool ↔ segment ↔ buffer").
package arena

import (
	"sync"
	"time"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/ld"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
	"github.com/bearlytools/mps/shield"
	"github.com/bearlytools/mps/trace"
)

// traceSlots bounds the number of pre-allocated trace slots an arena holds.
// §9's Open Question on TRACE_MAX is resolved here as: the slot table and
// every bitset it feeds (scan.TraceSet, segment.Grey/White/Nailed) stay
// 8-wide for structural generality, and CreateTrace enforces the spec's
// "at most one trace in INIT/UNFLIPPED at a time" ordering guarantee. A trace
// that has already flipped does not block CreateTrace, so several FLIPPED or
// RECLAIM traces can coexist.
const traceSlots = 8

// Pool is what the arena needs from a registered pool class beyond the
// trace-engine-facing trace.Pool: the set of segments it owns, for the
// arena's segment-of-address lookup (§3 Arena "segment-of-address lookup").
type Pool interface {
	trace.Pool
	Segments() []*segment.Segment
}

// segmentOfWirer is an optional capability a Pool implementation may offer,
// letting the arena hand it a segment-of-address lookup spanning every
// registered pool rather than just its own (§4.5 fix step 1). amc.Pool
// implements this via SetSegmentOf; checked with a type assertion, the same
// optional-capability pattern format.Classifier uses.
type segmentOfWirer interface {
	SetSegmentOf(func(addr.Address) (*segment.Segment, bool))
}

// epochWirer is an optional capability letting the arena hand a pool its
// current-epoch source (amc.Pool implements this via WithEpochFunc).
type epochWirer interface {
	WithEpochFunc(func() uint64)
}

// Config holds the per-arena tuning knobs (§3 Arena, §9 "Global mutable
// state: tuning knobs...must be per-arena configuration objects"). There is
// no package-level state anywhere in this module; every value an arena needs
// lives on the Arena or was passed in through Config.
type Config struct {
	// CommitLimit names a cap on the bytes committed across every pool (§3
	// Arena "commit...limits"). The arena stores it but no allocation path
	// reads it, so commitment is not bounded by it.
	CommitLimit addr.Size
	// SpareCommitLimit names a cap on decommitted-but-cached memory. The
	// arena stores it but keeps no such cache and never reads it.
	SpareCommitLimit addr.Size
	// PauseTime names a target maximum pause per Poll call (§4.4 "Rate").
	// The arena stores it but Poll never reads it; no per-Step rate budget is
	// derived from it.
	PauseTime time.Duration
	// PollInterval names the assumed wall-clock spacing between Poll calls,
	// the denominator of trace.Rate's pacing formula. The arena stores it but
	// never reads it, and nothing in this module calls trace.Rate.
	PollInterval time.Duration
	// ZoneShift is the arena-wide zone shift every pool's RefSet algebra
	// uses (§4.1).
	ZoneShift refset.ZoneShift
}

// Arena is the root container owning all memory (§3 Arena).
type Arena struct {
	mu sync.Mutex

	config Config
	os     shield.OS

	pools []Pool
	roots []trace.RootScanner

	traces  [traceSlots]*trace.Trace
	used    [traceSlots]bool
	busy    scan.TraceSet // slots occupied by a non-FINISHED trace
	flipped scan.TraceSet // slots whose trace has passed Flip

	epoch *ld.Epoch
	mover *ld.Mover

	commitUsed addr.Size
	clamped    bool
}

// New creates an arena with the given configuration, backed by os for the
// virtual-memory/thread-suspension surface (§1: a real os is out of scope
// here; shield.Simulated is the software stand-in tests and embedders use).
func New(cfg Config, os shield.OS) *Arena {
	return &Arena{
		config: cfg,
		os:     os,
		epoch:  &ld.Epoch{},
		mover:  ld.NewMover(),
	}
}

// Epoch returns the arena's location-dependency epoch counter (§4.7).
func (a *Arena) Epoch() *ld.Epoch { return a.epoch }

// Mover returns the arena's location-dependency mover (§4.7).
func (a *Arena) Mover() *ld.Mover { return a.mover }

// ZoneShift returns the arena-wide zone shift (§4.1).
func (a *Arena) ZoneShift() refset.ZoneShift { return a.config.ZoneShift }

// RegisterPool adds p to the arena's pool ring and wires its optional
// segment-of-address and epoch capabilities (§3 Arena "pool ring").
func (a *Arena) RegisterPool(p Pool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pools = append(a.pools, p)
	if w, ok := p.(segmentOfWirer); ok {
		w.SetSegmentOf(a.segmentOfLocked)
	}
	if w, ok := p.(epochWirer); ok {
		w.WithEpochFunc(a.epoch.Load)
	}
}

// RegisterRoot adds r to the arena's root ring (§3 Arena "root ring").
func (a *Arena) RegisterRoot(r trace.RootScanner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roots = append(a.roots, r)
}

// SegmentOf resolves a to the segment containing it, searching every
// registered pool (§3 Arena "segment-of-address lookup"). The real MPS uses
// a dedicated table structure for this; that structure is explicitly out of
// scope here (§1 "the segment-table / arena-layout data structures"), so
// this is a linear scan over each pool's segment list.
func (a *Arena) SegmentOf(at addr.Address) (*segment.Segment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.segmentOfLocked(at)
}

func (a *Arena) segmentOfLocked(at addr.Address) (*segment.Segment, bool) {
	for _, p := range a.pools {
		for _, seg := range p.Segments() {
			if at >= seg.Base && at < seg.Limit {
				return seg, true
			}
		}
	}
	return nil, false
}

// CreateTrace allocates a free trace slot in state INIT, enforcing the
// ordering guarantee that at most one trace is in INIT/UNFLIPPED at a time
// (§4.4 "Ordering guarantees"); see the traceSlots doc comment for how this
// module resolves §9's TRACE_MAX question.
func (a *Arena) CreateTrace(ctx context.Context) (*trace.Trace, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.clamped {
		return nil, mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("arena: clamped, no new traces may start"))
	}
	for _, id := range a.busyIDsLocked() {
		if a.traces[id].State == trace.StateInit || a.traces[id].State == trace.StateUnflipped {
			return nil, mpserr.E(ctx, mpserr.CatClient, mpserr.TypeLimit, errString("arena: a trace is already in INIT/UNFLIPPED"))
		}
	}

	for i := 0; i < traceSlots; i++ {
		if !a.used[i] {
			a.used[i] = true
			a.traces[i] = trace.New(uint8(i))
			a.busy = a.busy.With(uint8(i))
			return a.traces[i], nil
		}
	}
	return nil, mpserr.E(ctx, mpserr.CatResource, mpserr.TypeLimit, errString("arena: no free trace slot"))
}

// DestroyTrace frees t's slot for reuse. Only valid once t has reached
// FINISHED (§4.4 "FINISHED -(TraceDestroy)-> slot free").
func (a *Arena) DestroyTrace(ctx context.Context, t *trace.Trace) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t.State != trace.StateFinished {
		return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("arena: trace must be FINISHED to destroy"))
	}
	id := t.ID
	a.used[id] = false
	a.traces[id] = nil
	a.busy = a.busy.Without(id)
	a.flipped = a.flipped.Without(id)
	return nil
}

func (a *Arena) busyIDsLocked() []uint8 {
	var ids []uint8
	for i := 0; i < traceSlots; i++ {
		if a.used[i] {
			ids = append(ids, uint8(i))
		}
	}
	return ids
}

type errString string

func (e errString) Error() string { return string(e) }
