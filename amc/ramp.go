package amc

import (
	"github.com/gostdlib/base/context"
)

// RampBegin enters (or re-enters, nested) the ramp pattern for genIndex (§4.6
// Ramp pattern): while ramping, genIndex's forwarding buffer is redirected to
// itself and its segment accounting is deferred, so a burst of short-lived
// allocation in that generation doesn't provoke a premature collection.
func (p *Pool) RampBegin(ctx context.Context, genIndex int) error {
	from := p.RampMode
	switch p.RampMode {
	case RampOutside:
		p.RampGen = genIndex
		p.AfterRampGen = p.Chain.TargetOf(genIndex)
		p.RampMode = RampRamping
		p.RampCount = 1
	case RampFinish:
		if p.RampGen != genIndex {
			return resourceErr(ctx, "amc: ramp already finishing for a different generation")
		}
		p.RampMode = RampRamping
		p.RampCount++
	default:
		if p.RampGen != genIndex {
			return resourceErr(ctx, "amc: ramp already active for a different generation")
		}
		p.RampCount++
	}
	logRampTransition(ctx, "RampBegin", genIndex, from, p.RampMode, p.RampCount)
	return nil
}

// RampEnd exits one level of ramp nesting for genIndex (§4.6 Ramp pattern,
// §8 "Ramp begin/end with equal counts returns rampMode to OUTSIDE"). The
// ramp generation's deferred accounting is only materialized once the
// generation has actually been collected after the last RampEnd (§4.6
// "on COLLECTING→OUTSIDE..."), driven by NoteCollected.
func (p *Pool) RampEnd(ctx context.Context, genIndex int) error {
	if p.RampMode == RampOutside || p.RampGen != genIndex {
		return resourceErr(ctx, "amc: ramp not active for this generation")
	}
	from := p.RampMode
	p.RampCount--
	if p.RampCount > 0 {
		logRampTransition(ctx, "RampEnd", genIndex, from, p.RampMode, p.RampCount)
		return nil
	}
	p.RampMode = RampFinish
	logRampTransition(ctx, "RampEnd", genIndex, from, p.RampMode, p.RampCount)
	return nil
}

// NoteCondemned is called when a trace condemns the ramp generation while it
// is FINISHing, advancing the ramp state machine to COLLECTING (§4.6 Ramp
// pattern).
func (p *Pool) NoteCondemned(ctx context.Context, genIndex int) {
	if p.RampMode == RampFinish && p.RampGen == genIndex {
		from := p.RampMode
		p.RampMode = RampCollecting
		logRampTransition(ctx, "NoteCondemned", genIndex, from, p.RampMode, p.RampCount)
	}
}

// NoteCollected is called once a trace that condemned the ramp generation
// reaches RECLAIM, completing the COLLECTING→OUTSIDE transition: deferred
// bytes accumulated during the ramp are materialized into newSize (§4.6
// "all deferred segments in the ramp generation are un-deferred and
// contribute to newSize").
func (p *Pool) NoteCollected(ctx context.Context, genIndex int) {
	if p.RampMode != RampCollecting || p.RampGen != genIndex {
		return
	}
	from := p.RampMode
	p.Gens[genIndex].Accounting.Undefer()
	p.RampMode = RampOutside
	p.RampGen = -1
	p.AfterRampGen = -1
	logRampTransition(ctx, "NoteCollected", genIndex, from, p.RampMode, p.RampCount)
}

// logRampTransition emits one structured record per ramp-state change
// (SPEC_FULL.md AMBIENT STACK: "emitting one structured record... per ramp
// transition"), the same context-attached logger every other hot-but-rare
// transition point in this package uses (trace.Flip/Step, emergency
// escalation) rather than a per-fix log call, which would be far too hot a
// path (§5 "Shared-resource policy").
func logRampTransition(ctx context.Context, op string, genIndex int, from, to RampMode, count int) {
	context.Log(ctx).Info("amc: ramp transition",
		"op", op,
		"genIndex", genIndex,
		"from", from,
		"to", to,
		"rampCount", count,
	)
}

// String renders a RampMode for log output.
func (m RampMode) String() string {
	switch m {
	case RampOutside:
		return "OUTSIDE"
	case RampBegin:
		return "BEGIN"
	case RampRamping:
		return "RAMPING"
	case RampFinish:
		return "FINISH"
	case RampCollecting:
		return "COLLECTING"
	default:
		return "UNKNOWN"
	}
}
