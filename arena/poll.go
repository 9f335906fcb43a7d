package arena

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/shield"
	"github.com/bearlytools/mps/trace"
)

// fixer is the capability a registered Pool must offer to take part in root
// scanning (§4.5 fix protocol). amc.Pool implements this; it is checked with
// a type assertion rather than folded into the Pool interface so a pool
// class that only ever appears as a scan target (never a root-reference
// owner) isn't forced to implement it.
type fixer interface {
	Fix(ss *scan.State, ref *addr.Address) error
	FixEmergency(ss *scan.State, ref *addr.Address) error
}

// Fix is the arena-wide fix dispatch used for root scanning (§4.4 Flip): it
// resolves which registered pool owns ref's segment and delegates to that
// pool's own Fix, rather than the calling root's pool, since a root may hold
// references into any pool in the arena.
func (a *Arena) Fix(ss *scan.State, ref *addr.Address) error {
	return a.dispatchFix(ss, ref, false)
}

// FixEmergency is Fix's emergency-mode counterpart (§4.4 Emergency).
func (a *Arena) FixEmergency(ss *scan.State, ref *addr.Address) error {
	return a.dispatchFix(ss, ref, true)
}

func (a *Arena) dispatchFix(ss *scan.State, ref *addr.Address, emergency bool) error {
	p, ok := a.poolOf(*ref)
	if !ok {
		if ss.Rank >= scan.RankExact {
			return mpserr.E(ss.Ctx, mpserr.CatInternal, mpserr.TypeInvariant, errString("arena: exact reference resolved to no pool"))
		}
		return nil
	}
	f, ok := p.(fixer)
	if !ok {
		return mpserr.E(ss.Ctx, mpserr.CatInternal, mpserr.TypeUnimpl, errString("arena: pool does not implement fix"))
	}
	if emergency {
		return f.FixEmergency(ss, ref)
	}
	return f.Fix(ss, ref)
}

func (a *Arena) poolOf(at addr.Address) (Pool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pools {
		for _, seg := range p.Segments() {
			if at >= seg.Base && at < seg.Limit {
				return p, true
			}
		}
	}
	return nil, false
}

// Poll is the driver entry point every allocation poll, explicit Step call,
// and barrier fault handler ultimately goes through (§2 item 10, §3
// "Suspension points"): it performs one bounded unit of work for each
// currently flipped trace, escalating to emergency mode on resource
// exhaustion rather than failing the call. tracer may be
// oteltrace.NewNoopTracerProvider().Tracer("") if the embedder has not wired
// a real exporter; this is ambient instrumentation only, not the
// out-of-scope telemetry/Messages subsystem (§1, §6).
func (a *Arena) Poll(ctx context.Context, tracer oteltrace.Tracer) (didWork bool, err error) {
	ctx, span := tracer.Start(ctx, "arena.Poll")
	defer span.End()

	pools := a.poolsSnapshot()
	for _, id := range a.flippedIDs() {
		t := a.traceAt(id)
		if t == nil || t.State == trace.StateFinished {
			continue
		}
		did, stepErr := trace.Step(ctx, t, pools)
		if stepErr != nil {
			if !mpserr.IsResource(stepErr) {
				return didWork, stepErr
			}
			if expErr := trace.ExpediteStep(ctx, t, pools); expErr != nil {
				return didWork, expErr
			}
			didWork = true
			continue
		}
		didWork = didWork || did
	}
	return didWork, nil
}

// Step performs exactly one unit of work for the single trace named by id,
// bypassing the flipped-set fan-out Poll does (§2 item 10 "step" as a
// standalone arena operation distinct from the allocation-triggered Poll).
func (a *Arena) Step(ctx context.Context, id uint8) (bool, error) {
	t := a.traceAt(id)
	if t == nil {
		return false, mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("arena: no trace in that slot"))
	}
	return trace.Step(ctx, t, a.poolsSnapshot())
}

// StartCollect begins a new collection condemning every segment whose zone
// summary is a subset of set, then flips it (§4.4 Condemnation, Flip). The
// returned trace is left FLIPPED; the caller drives it to completion via
// Poll or ExpediteStep (§2 "start-collect" is distinct from "collect-full":
// it does not block until FINISHED).
func (a *Arena) StartCollect(ctx context.Context, tracer oteltrace.Tracer, set refset.Set) (*trace.Trace, error) {
	ctx, span := tracer.Start(ctx, "arena.StartCollect")
	defer span.End()

	t, err := a.CreateTrace(ctx)
	if err != nil {
		return nil, err
	}
	pools := a.poolsSnapshot()
	if err := trace.CondemnRefSet(ctx, t, pools, set); err != nil {
		return nil, err
	}
	roots := a.rootsSnapshot()

	// §5 Barriers / §3 Suspension points: stacks must be stable for the root
	// scan, so mutator threads are suspended around Flip and resumed
	// regardless of its outcome.
	if err := a.os.SuspendThreads(); err != nil {
		return nil, err
	}
	flipErr := trace.Flip(ctx, t, roots, a.config.ZoneShift, a.Fix, a.FixEmergency)
	if resumeErr := a.os.ResumeThreads(); resumeErr != nil && flipErr == nil {
		flipErr = resumeErr
	}
	if flipErr != nil {
		return nil, flipErr
	}

	a.markFlipped(t.ID)
	a.raiseReadBarriers(t)
	return t, nil
}

// raiseReadBarriers protects every segment grey for t so a mutator access
// traps into the barrier fault handler (§5 Barriers: "Read barriers are
// raised on any segment grey for a flipped trace").
func (a *Arena) raiseReadBarriers(t *trace.Trace) {
	set := scan.TraceSet(0).With(t.ID)
	a.mu.Lock()
	pools := append([]Pool(nil), a.pools...)
	a.mu.Unlock()
	for _, p := range pools {
		for _, seg := range p.Segments() {
			if seg.IsGreyForAny(set) {
				_ = a.os.Protect(seg.Base, addr.Offset(seg.Base, seg.Limit), shield.ModeRead)
			}
		}
	}
}

// CollectFull condemns the entire address space (refset.Univ) and drives the
// resulting trace to FINISHED before returning, in emergency mode if
// resources run out (§2 "collect-full").
func (a *Arena) CollectFull(ctx context.Context, tracer oteltrace.Tracer) error {
	t, err := a.StartCollect(ctx, tracer, refset.Univ)
	if err != nil {
		return err
	}
	return trace.ExpediteStep(ctx, t, a.poolsSnapshot())
}

func (a *Arena) poolsSnapshot() []trace.Pool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]trace.Pool, len(a.pools))
	for i, p := range a.pools {
		out[i] = p
	}
	return out
}

func (a *Arena) rootsSnapshot() []trace.RootScanner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]trace.RootScanner(nil), a.roots...)
}

func (a *Arena) flippedIDs() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []uint8
	for i := 0; i < traceSlots; i++ {
		if a.flipped.Has(uint8(i)) {
			ids = append(ids, uint8(i))
		}
	}
	return ids
}

func (a *Arena) traceAt(id uint8) *trace.Trace {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.traces[id]
}

func (a *Arena) markFlipped(id uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flipped = a.flipped.With(id)
}
