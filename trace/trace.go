// Package trace implements the trace object and its state machine (§4.4):
// one trace is one collection cycle, stepping through
// INIT → UNFLIPPED → FLIPPED → RECLAIM → FINISHED. It also hosts the
// condemnation and flip algorithms and the rate-pacing formula that bounds
// how much scan work a single poll performs.
//
// Trace deliberately knows nothing about any concrete pool class: it drives
// collection purely through the Pool interface, which package amc implements.
// This mirrors §9's ownership design (segments reference their pool by index,
// not by embedding) translated into Go's structural interfaces instead of
// tagged unions.
package trace

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
)

// State is a trace's position in its state machine (§4.4).
type State uint8

const (
	StateInit State = iota
	StateUnflipped
	StateFlipped
	StateReclaim
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateUnflipped:
		return "UNFLIPPED"
	case StateFlipped:
		return "FLIPPED"
	case StateReclaim:
		return "RECLAIM"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Pool is what the trace engine needs from a concrete pool class (amc
// implements this). Every method is scoped to "this pool's segments only";
// the arena fans a trace-wide operation out across its pool ring.
type Pool interface {
	// CondemnMatching whitens every one of the pool's segments whose zone
	// summary is a subset of set, adding itself to t.white (and t.mayMove, if
	// it moves objects) and accumulating t's condemned byte count (§4.4
	// Condemnation).
	CondemnMatching(ctx context.Context, t *Trace, set refset.Set) error

	// FindGrey returns the lowest-rank segment that is grey for t among this
	// pool's segments, breaking ties by ring order (§4.4 Step).
	FindGrey(t *Trace) (seg *segment.Segment, rank scan.Rank, ok bool)

	// ScanSegment scans seg on behalf of t, removing its greyness for t. A
	// mpserr CatResource error means the forwarding buffer could not be
	// refilled; the caller must escalate t to emergency and retry (§4.4
	// Emergency, §4.5 fix protocol).
	ScanSegment(ctx context.Context, t *Trace, seg *segment.Segment) error

	// ReclaimWhite reclaims every segment white for t in this pool (§4.4 Step
	// RECLAIM).
	ReclaimWhite(ctx context.Context, t *Trace) error
}

// RootScanner scans a single root (§6 "Roots": table, tagged table, area,
// thread, format) at the ranks the trace engine asks for during flip.
type RootScanner interface {
	ScanRoots(ss *scan.State) error
}

// Trace is one collection cycle (§3 Trace, §4.4).
type Trace struct {
	ID    uint8
	State State

	// White is the union of every pool's condemned zone summary for this
	// cycle.
	White refset.Set
	// MayMove is the subset of White whose pools actually relocate objects
	// (amc adds to it for its leaf AMCZ variant too, since both variants copy
	// survivors).
	MayMove refset.Set

	Condemned  uint64 // bytes condemned this cycle
	Foundation uint64 // references fixed by the root scans at flip (sum of FixRefCount)
	Rate       uint64 // per-poll scan budget in bytes; never assigned in this module, and Step ignores it

	// Forwarded and PreservedInPlace name trace-wide byte counts of copied
	// and pinned objects. amc does not update either; it counts forwarded
	// bytes per segment (segment.Segment.Forwarded) and adds those into
	// ReclaimedSize.
	Forwarded        uint64
	PreservedInPlace uint64
	ReclaimedSize    uint64

	// Emergency is set when a scan failed with resource exhaustion; every
	// subsequent fix in this trace pins instead of forwarding (§4.4
	// Emergency).
	Emergency bool
}

// New creates a trace in state INIT occupying slot id. Arena is responsible
// for slot reuse (§3 "Traces are pre-allocated slots").
func New(id uint8) *Trace {
	return &Trace{ID: id, State: StateInit}
}

// Reset returns t to a blank INIT state so its slot can be reused (§4.4
// "FINISHED -(TraceDestroy)-> slot free").
func (t *Trace) Reset() {
	*t = Trace{ID: t.ID, State: StateInit}
}

// CondemnRefSet computes the condemn set across pools and whitens every
// matching segment in each (§4.4 Condemnation).
func CondemnRefSet(ctx context.Context, t *Trace, pools []Pool, set refset.Set) error {
	if t.State != StateInit {
		return mpserr.E(ctx, mpserr.CatInternal, mpserr.TypeInvariant, errState("CondemnRefSet", t.State, StateInit))
	}
	for _, p := range pools {
		if err := p.CondemnMatching(ctx, t, set); err != nil {
			return err
		}
	}
	t.White = t.White.Union(set)
	return nil
}

// Flip scans roots at rank AMBIG then EXACT and transitions t to FLIPPED
// (§4.4 Flip). The caller (arena) is responsible for suspending and resuming
// mutator threads and raising READ protection on grey segments around this
// call; Flip itself only performs the root scan and the state transition,
// since suspend/protect are shield-layer concerns outside this package.
func Flip(ctx context.Context, t *Trace, roots []RootScanner, zoneShift refset.ZoneShift, fix scan.Fix, emergencyFix scan.Fix) error {
	if t.State != StateInit {
		return mpserr.E(ctx, mpserr.CatInternal, mpserr.TypeInvariant, errState("Flip", t.State, StateInit))
	}
	t.State = StateUnflipped
	logStateTransition(ctx, t.ID, StateInit, t.State)

	for _, rank := range []scan.Rank{scan.RankAmbig, scan.RankExact} {
		ss := scan.Init(ctx, scan.TraceSet(0).With(t.ID), rank, t.White, zoneShift, t.Emergency, fix, emergencyFix)
		for _, r := range roots {
			if err := r.ScanRoots(ss); err != nil {
				scan.Release(ctx, ss)
				return err
			}
		}
		t.Foundation += ss.FixRefCount
		scan.Release(ctx, ss)
	}

	prev := t.State
	t.State = StateFlipped
	logStateTransition(ctx, t.ID, prev, t.State)
	return nil
}

// Step advances t by performing one bounded unit of work appropriate to its
// current state (§4.4 Step): in FLIPPED, scan the best available grey
// segment, or transition to RECLAIM if none remain; in RECLAIM, reclaim every
// white segment and transition to FINISHED. Step is a no-op (returns nil,
// false) once t reaches FINISHED.
//
// didWork reports whether Step scanned, reclaimed or changed t's state. Each
// call does one unit of work whatever its size; no byte budget limits it.
func Step(ctx context.Context, t *Trace, pools []Pool) (didWork bool, err error) {
	switch t.State {
	case StateFlipped:
		pool, seg, _, ok := findBestGrey(t, pools)
		if !ok {
			t.State = StateReclaim
			logStateTransition(ctx, t.ID, StateFlipped, t.State)
			return true, nil
		}
		if err := pool.ScanSegment(ctx, t, seg); err != nil {
			if mpserr.IsResource(err) {
				t.Emergency = true
				logEmergencyEscalation(ctx, t.ID, err)
			}
			return false, err
		}
		return true, nil

	case StateReclaim:
		for _, p := range pools {
			if err := p.ReclaimWhite(ctx, t); err != nil {
				return false, err
			}
		}
		t.State = StateFinished
		logStateTransition(ctx, t.ID, StateReclaim, t.State)
		return true, nil

	case StateFinished:
		return false, nil

	default:
		return false, mpserr.E(ctx, mpserr.CatInternal, mpserr.TypeInvariant, errState("Step", t.State, StateFlipped))
	}
}

// findBestGrey asks every pool for its best (lowest-rank) grey segment and
// returns the overall winner and the pool that owns it, ties broken by pool
// ring order (§4.4 Step: "lowest rank wins; ties broken by ring order").
func findBestGrey(t *Trace, pools []Pool) (Pool, *segment.Segment, scan.Rank, bool) {
	var bestPool Pool
	var best *segment.Segment
	var bestRank scan.Rank
	found := false
	for _, p := range pools {
		seg, rank, ok := p.FindGrey(t)
		if !ok {
			continue
		}
		if !found || rank < bestRank {
			bestPool, best, bestRank, found = p, seg, rank, true
		}
	}
	return bestPool, best, bestRank, found
}

// ExpediteStep drives t through RECLAIM (or straight to FINISHED, if it is
// already there) without regard to rate limits, in emergency mode (§4.4
// "TraceExpedite drives a trace to FINISHED entirely in emergency mode").
func ExpediteStep(ctx context.Context, t *Trace, pools []Pool) error {
	if !t.Emergency {
		t.Emergency = true
		logEmergencyEscalation(ctx, t.ID, nil)
	}
	for t.State != StateFinished {
		if _, err := Step(ctx, t, pools); err != nil && !mpserr.IsResource(err) {
			return err
		}
	}
	return nil
}

// Rate computes §4.4's pacing formula:
// rate = (foundation + expectedSurvivors) / max(1, finishingTime/pollInterval) + 1
func Rate(foundation, expectedSurvivors, finishingTime, pollInterval uint64) uint64 {
	denom := finishingTime / pollInterval
	if denom < 1 {
		denom = 1
	}
	return (foundation+expectedSurvivors)/denom + 1
}

// logStateTransition emits one structured record per trace-state transition
// (SPEC_FULL.md AMBIENT STACK). It is not called from the per-fix hot path —
// only from Flip and Step, which each run at most once per grey segment or
// once per cycle boundary, never once per reference.
func logStateTransition(ctx context.Context, id uint8, from, to State) {
	context.Log(ctx).Info("trace: state transition", "trace", id, "from", from, "to", to)
}

// logEmergencyEscalation emits one structured record when a trace is forced
// into emergency mode (§4.4 Emergency), whether from a real resource-
// exhaustion error surfacing out of Step, or from an explicit ExpediteStep
// call (cause is nil in that case).
func logEmergencyEscalation(ctx context.Context, id uint8, cause error) {
	context.Log(ctx).Warn("trace: emergency escalation", "trace", id, "cause", cause)
}

func errState(op string, got, want State) error {
	return &stateError{op: op, got: got, want: want}
}

type stateError struct {
	op       string
	got, want State
}

func (e *stateError) Error() string {
	return "trace: " + e.op + ": state is " + e.got.String() + ", want " + e.want.String()
}
