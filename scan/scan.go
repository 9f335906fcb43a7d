// Package scan implements the per-scan transient state of §4.3: the cursor a
// trace carries while walking a segment's objects, including which fix
// function to dispatch to, the accumulated reference-set summaries, and the
// rank at which scanning is occurring.
package scan

import (
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/refset"
)

// pool recycles *State values across scans to keep the hot scan/fix path
// allocation-free.
var pool = sync.NewPool[*State](
	context.Background(),
	"scan.State",
	func() *State { return &State{} },
)

// Rank orders the kinds of references a scan may encounter. Lower ranks are
// processed before higher ones when choosing which grey segment to scan next
// (§4.4 Step: "lowest rank wins").
type Rank uint8

const (
	// RankAmbig marks ambiguous roots: words that might not be references at
	// all. Objects reachable only ambiguously must be pinned, never moved.
	RankAmbig Rank = iota
	// RankExact marks precisely-typed references: the format guarantees every
	// word at this rank is either a valid reference or a recognized non-pointer
	// sentinel (handled by the format's own scan method).
	RankExact
	// RankWeak marks references that must not themselves keep their target
	// alive; see the fix protocol's WEAK case (§4.5).
	RankWeak
	// RankFinal marks finalization references, scanned last.
	RankFinal
)

// Fix is the per-reference operation a scan dispatches to. Implementations
// (amc's normal and emergency fix) forward, pin, splat, or merely record the
// reference depending on whether its target is condemned. ref is updated in
// place to the reference's (possibly new) value.
type Fix func(ss *State, ref *addr.Address) error

// Result is returned by a format's Scan method. It reports only whether the
// format advanced; a fix failure such as resource exhaustion is reported
// through Scan's error instead.
type Result struct {
	// Advanced is true if at least one object was scanned.
	Advanced bool
}

// TraceSet is a bitset over trace ids. The collector's TRACE_MAX (§9
// .single-collection open question) bounds its width; 8 ids comfortably covers
// every configuration this module supports even if multi-trace support is
// later enabled.
type TraceSet uint8

// Has reports whether id is present in the set.
func (s TraceSet) Has(id uint8) bool { return s&(1<<id) != 0 }

// With returns s with id added.
func (s TraceSet) With(id uint8) TraceSet { return s | (1 << id) }

// Without returns s with id removed.
func (s TraceSet) Without(id uint8) TraceSet { return s &^ (1 << id) }

// IsEmpty reports whether no trace id is present.
func (s TraceSet) IsEmpty() bool { return s == 0 }

// Sub reports whether s is a subset of other.
func (s TraceSet) Sub(other TraceSet) bool { return s&other == s }

// State is the per-scan cursor (§4.3).
type State struct {
	// Ctx is the context this scan's fix calls run under, supplied by whatever
	// driver (trace.Flip, a pool's per-segment scan) started the scan, so fix
	// implementations never fabricate one of their own.
	Ctx context.Context
	// Traces names which traces this scan is being performed on behalf of.
	Traces TraceSet
	// Rank is the reference rank currently being scanned.
	Rank Rank
	// White is the union of the white sets of every trace in Traces, precomputed
	// so fix's white test is a single bitset operation.
	White refset.Set
	// ZoneShift is cached from the arena so fix doesn't need to dereference it
	// per reference.
	ZoneShift refset.ZoneShift
	// Fix is the dispatch target for every reference this scan encounters.
	Fix Fix
	// WasMarked is set by a fix implementation to hint the caller (used by the
	// nailed-scan loop's pin bookkeeping) whether the last fixed reference's
	// target was already nailed.
	WasMarked bool

	unfixedSummary refset.Set
	fixedSummary   refset.Set

	// FixRefCount, object counts, etc: statistical counters (§3).
	FixRefCount     uint64
	ObjectsScanned  uint64
	SegmentsScanned uint64
}

// Init sets up ss for a scan on behalf of traces, at rank, with white as the
// union of their condemned sets. normalFix and emergencyFix are supplied by
// the pool class; Init selects emergencyFix if any trace in the set has
// escalated (§4.3: "if any trace in traces is in emergency mode, ss.fix is set
// to emergency fix instead").
func Init(ctx context.Context, traces TraceSet, rank Rank, white refset.Set, zoneShift refset.ZoneShift, anyEmergency bool, normalFix, emergencyFix Fix) *State {
	ss := pool.Get(ctx)
	*ss = State{
		Ctx:       ctx,
		Traces:    traces,
		Rank:      rank,
		White:     white,
		ZoneShift: zoneShift,
	}
	if anyEmergency {
		ss.Fix = emergencyFix
	} else {
		ss.Fix = normalFix
	}
	return ss
}

// Release returns ss to the pool once its caller has consumed Summary().
// Callers that keep no reference to ss afterward should call this; it is
// not required for correctness, only to make reuse effective.
func Release(ctx context.Context, ss *State) {
	pool.Put(ctx, ss)
}

// AddUnfixed adds a to the pre-fix ("unfixed") summary: the reference as it
// was found, before fix had a chance to translate it.
func (ss *State) AddUnfixed(a addr.Address) {
	ss.unfixedSummary = ss.unfixedSummary.Union(refset.OfAddr(a, ss.ZoneShift))
}

// AddFixed adds a to the post-fix ("fixed") summary: the reference as it reads
// after fix has run, which is what a rescan of this segment's summary must
// reflect.
func (ss *State) AddFixed(a addr.Address) {
	ss.fixedSummary = ss.fixedSummary.Union(refset.OfAddr(a, ss.ZoneShift))
}

// Summary computes fixed ∪ (unfixed − white): references in the white set are
// guaranteed to be translated by fix, so the post-summary reflects their
// post-images rather than their stale pre-images (§4.3 rationale).
func (ss *State) Summary() refset.Set {
	return ss.fixedSummary.Union(ss.unfixedSummary.Diff(ss.White))
}

// SetSummary overrides the computed summary outright: s becomes the fixed
// summary and the unfixed summary is cleared, so Summary returns s until more
// references are added. amc's nailed scan does not call it; it starts each
// pass with a fresh State instead.
func (ss *State) SetSummary(s refset.Set) {
	ss.fixedSummary = s
	ss.unfixedSummary = refset.Empty
}

// ResetForAnotherPass clears WasMarked while preserving the summaries and
// counters accumulated so far. amc's nailed scan does not call it.
func (ss *State) ResetForAnotherPass() {
	ss.WasMarked = false
}
