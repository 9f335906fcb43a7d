package amc

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/retry/exponential"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/nailboard"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
)

// Fix implements the AMC fix protocol's normal path (§4.5): forward
// (copying), pin (nail) for ambiguous refs, or splat weak refs whose target
// wouldn't survive. It is assigned as a scan.State's Fix function.
func (p *Pool) Fix(ss *scan.State, ref *addr.Address) error {
	return p.doFix(ss, ref, false)
}

// FixEmergency implements the emergency-mode fix path (§4.4 Emergency, §4.5):
// identical dispatch, except the forwarding branch pins in place instead of
// copying, so it never needs to allocate.
func (p *Pool) FixEmergency(ss *scan.State, ref *addr.Address) error {
	return p.doFix(ss, ref, true)
}

func (p *Pool) doFix(ss *scan.State, ref *addr.Address, emergency bool) error {
	ss.FixRefCount++

	seg, ok := p.SegmentOf(*ref)
	if !ok {
		// §4.5 step 1: a reference that doesn't land in any known segment is
		// only permitted for ambiguous roots, which may legitimately hold
		// non-pointer bit patterns.
		if ss.Rank >= scan.RankExact {
			return mpserr.E(ss.Ctx, mpserr.CatInternal, mpserr.TypeInvariant, errString("amc: exact reference resolved to no segment"))
		}
		return nil
	}

	if seg.White&ss.Traces == 0 {
		// Not white for any trace in this scan: already stable, record it and
		// move on (§4.5 step 2).
		ss.AddFixed(*ref)
		return nil
	}

	switch ss.Rank {
	case scan.RankAmbig:
		p.fixAmbig(ss, seg, ref)
	case scan.RankWeak:
		p.fixWeak(seg, ref)
	default:
		if err := p.fixExact(ss, seg, ref, emergency); err != nil {
			return err
		}
	}

	ss.AddFixed(*ref)
	return nil
}

// fixAmbig implements §4.5's AMBIG case: nail the referenced grain instead of
// moving it, since an ambiguous reference might not really be a pointer and
// the collector cannot safely relocate something it isn't sure is an object.
func (p *Pool) fixAmbig(ss *scan.State, seg *segment.Segment, ref *addr.Address) {
	if seg.Board == nil {
		seg.Board = nailboard.Create(seg.Base, seg.Limit, p.Format.Alignment())
	}
	wasSet := seg.Board.Set(*ref)
	ss.WasMarked = wasSet
	if wasSet && ss.Traces.Sub(seg.Nailed) {
		return
	}
	seg.Nailed = seg.Nailed | ss.Traces
	if !seg.RankSet.IsEmpty() {
		seg.Grey = seg.Grey | ss.Traces
	}
}

// fixWeak implements §4.5's WEAK case: splat the reference if the object
// isn't otherwise going to be preserved.
func (p *Pool) fixWeak(seg *segment.Segment, ref *addr.Address) {
	if seg.Board != nil && seg.Board.Get(*ref) {
		return
	}
	if newAddr := p.Format.IsMoved(*ref); newAddr != 0 {
		return
	}
	*ref = 0
}

// fixExact implements §4.5's non-ambiguous, non-weak case: snap out to an
// already-forwarded target, pin in place if nailed, or copy the object into
// the target generation's forwarding buffer and update the reference.
func (p *Pool) fixExact(ss *scan.State, seg *segment.Segment, ref *addr.Address, emergency bool) error {
	if newAddr := p.Format.IsMoved(*ref); newAddr != 0 {
		*ref = newAddr
		return nil
	}

	if seg.Nailed != 0 && (seg.Board == nil || boardPins(seg.Board, *ref, p.Format.Skip(*ref), p.Pinned)) {
		seg.Grey = seg.Grey | ss.Traces
		return nil
	}

	if emergency {
		// Emergency fix never copies: pin instead, even though this object
		// wasn't reached via an ambiguous reference (§4.4 Emergency).
		if seg.Board == nil {
			seg.Board = nailboard.Create(seg.Base, seg.Limit, p.Format.Alignment())
		}
		seg.Board.SetRange(*ref, p.Format.Skip(*ref))
		seg.Nailed = seg.Nailed | ss.Traces
		seg.Grey = seg.Grey | ss.Traces
		return nil
	}

	return p.forward(ss, seg, ref)
}

// forward copies the object at *ref into the target generation's forwarding
// buffer and leaves a broken heart behind (§4.5 "allocate...copy...forward").
// The reserve/commit retry loop exists because fix can itself trigger a
// flip (buffer refill polls the collector); a commit failure means the
// object must be re-copied into a freshly reserved range, not merely
// re-committed (§4.5 "Retry on commit failure"). Retries run under
// exponential.Backoff the same way claw's transport clients retry a dial
// (rpc/transport/tcp/client.go's Reconnect) rather than a bare counter: the
// policy bounds the attempt count on its own, and since a commit race here
// is a same-process compare-and-swap rather than a network round trip, the
// backoff never needs to out-wait anything external.
func (p *Pool) forward(ss *scan.State, seg *segment.Segment, ref *addr.Address) error {
	old := *ref
	length := addr.Offset(old, p.Format.Skip(old))

	genIndex := p.genIndexOf(seg)
	fb := &p.Gens[genIndex].Forwarding

	backoff, err := exponential.New(exponential.WithPolicy(exponential.FastRetryPolicy()))
	if err != nil {
		return mpserr.E(ss.Ctx, mpserr.CatInternal, mpserr.TypeInvariant, err)
	}

	var newAddr addr.Address
	var fillErr error
	retryErr := backoff.Retry(ss.Ctx, func(retryCtx context.Context, _ exponential.Record) error {
		a, ok := fb.Reserve(length)
		if !ok {
			if ferr := p.FillForwardingBuffer(retryCtx, genIndex, length, p.currentEpoch()); ferr != nil {
				fillErr = ferr
				return exponential.ErrRetryCanceled
			}
			return errString("amc: forwarding buffer reserve raced a refill")
		}
		newAddr = a
		copy(addr.Bytes(newAddr, length), addr.Bytes(old, length))
		if fb.Commit(p.currentEpoch()) {
			return nil
		}
		return errString("amc: forwarding buffer commit raced a flip")
	})
	if fillErr != nil {
		return fillErr
	}
	if retryErr != nil {
		return mpserr.E(ss.Ctx, mpserr.CatResource, mpserr.TypeResource, errString("amc: forwarding buffer commit did not stabilize"))
	}

	target, _ := p.SegmentOf(newAddr)
	if target != nil {
		target.Summary = target.Summary.Union(seg.Summary)
		// The destination is reachable-but-unscanned for every trace this fix
		// is running on behalf of, regardless of whether the source segment
		// happened to be grey too (it is white, not grey, at this call site):
		// forwarded content must still be scanned before it can go black
		// (§8 invariant 2). Advance the forwarding buffer's ScanLimit to what
		// was just committed so scanBound/scanLinear actually cover it, the
		// same "make newly-committed bytes observable" step Whiten performs
		// for a live mutator buffer.
		target.Grey = target.Grey | ss.Traces
		if fb.ScanLimit < fb.Init {
			fb.ScanLimit = fb.Init
		}
	}

	p.Format.Forward(old, newAddr)
	*ref = newAddr
	seg.AddForwarded(firstTraceID(ss.Traces), length)
	return nil
}

func boardPins(b *nailboard.Board, base, limit addr.Address, policy Pinned) bool {
	if policy == PinnedBase {
		return b.Get(base)
	}
	return !b.IsResRange(base, limit)
}

func firstTraceID(ts scan.TraceSet) uint8 {
	for i := uint8(0); i < 8; i++ {
		if ts.Has(i) {
			return i
		}
	}
	return 0
}

func (p *Pool) genIndexOf(seg *segment.Segment) int {
	for _, g := range p.Gens {
		for _, s := range g.Segments {
			if s == seg {
				return g.Index
			}
		}
	}
	return 0
}

// currentEpoch is overridden by the arena via WithEpochFunc when the pool is
// registered; absent that wiring it always reports epoch 0, which is only correct
// for a pool never driven through a real flip (e.g. in isolated fix tests).
func (p *Pool) currentEpoch() uint64 {
	if p.epochFunc != nil {
		return p.epochFunc()
	}
	return 0
}
