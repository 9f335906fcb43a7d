package arena

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/trace"
)

// Clamp prevents new traces from starting without halting any trace already
// in progress (§2 "Arena lifecycle": clamp). Release is its inverse.
func (a *Arena) Clamp() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clamped = true
}

// Release lifts a prior Clamp, allowing CreateTrace to succeed again.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clamped = false
}

// Park drives every trace currently occupying a slot to FINISHED via
// repeated Step calls before returning (§2 "Arena lifecycle": park,
// "mps_arena_park waits for all traces to finish"). It does not itself
// Clamp; callers that want no new traces to start during a park call Clamp
// first.
func (a *Arena) Park(ctx context.Context, tracer oteltrace.Tracer) error {
	ctx, span := tracer.Start(ctx, "arena.Park")
	defer span.End()

	pools := a.poolsSnapshot()
	for _, id := range a.busyIDs() {
		t := a.traceAt(id)
		if t == nil {
			continue
		}
		for t.State != trace.StateFinished {
			if _, err := trace.Step(ctx, t, pools); err != nil {
				if err2 := trace.ExpediteStep(ctx, t, pools); err2 != nil {
					return err2
				}
				break
			}
		}
	}
	return nil
}

func (a *Arena) busyIDs() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []uint8
	for i := 0; i < traceSlots; i++ {
		if a.busy.Has(uint8(i)) {
			ids = append(ids, uint8(i))
		}
	}
	return ids
}

// Stats is a read-only snapshot of arena state for diagnostic dumping (§2
// "postmortem").
type Stats struct {
	BusyTraces    int
	FlippedTraces int
	Pools         int
	Roots         int
	Epoch         uint64
	Clamped       bool
}

// Postmortem returns a snapshot of arena state without acquiring the arena
// lock (§3 "postmortem releases locks for diagnostic dumping regardless of
// their state"): a real embedder calls this from a crash handler where the
// lock may already be held by whatever thread faulted, so it reads the
// counters directly rather than risking a deadlock. The snapshot it returns
// is therefore best-effort, not a consistent point-in-time view.
func (a *Arena) Postmortem() Stats {
	busy, flipped := 0, 0
	for i := 0; i < traceSlots; i++ {
		if a.busy.Has(uint8(i)) {
			busy++
		}
		if a.flipped.Has(uint8(i)) {
			flipped++
		}
	}
	return Stats{
		BusyTraces:    busy,
		FlippedTraces: flipped,
		Pools:         len(a.pools),
		Roots:         len(a.roots),
		Epoch:         a.epoch.Load(),
		Clamped:       a.clamped,
	}
}
