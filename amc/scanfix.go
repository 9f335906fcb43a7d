package amc

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
	"github.com/bearlytools/mps/trace"
)

// effectiveRank returns the rank used to order this segment among other grey
// segments (§4.4 Step "lowest rank wins"). AMC's reference variant tags its
// segments EXACT; the AMBIG rank is reserved for root scanning, which
// trace.Flip drives directly rather than through a pool's segment ring.
func effectiveRank(seg *segment.Segment) scan.Rank {
	if seg.RankSet.Has(scan.RankWeak) && !seg.RankSet.Has(scan.RankAmbig) {
		return scan.RankWeak
	}
	return scan.RankExact
}

// scanBound returns the address up to which a segment's content has been
// committed and is therefore safe to scan: its buffer's ScanLimit if one is
// attached and short of the segment's own Limit, else Limit itself (§4.6
// "straight linear scan from base+headerSize to min(bufferScanLimit,
// segLimit)+headerSize").
func scanBound(seg *segment.Segment) addr.Address {
	if seg.Buffer != nil && seg.Buffer.ScanLimit < seg.Limit {
		return seg.Buffer.ScanLimit
	}
	return seg.Limit
}

// FindGrey implements trace.Pool.FindGrey: the lowest-rank segment that is
// grey for t, ties broken by generation/ring order.
func (p *Pool) FindGrey(t *trace.Trace) (*segment.Segment, scan.Rank, bool) {
	var best *segment.Segment
	var bestRank scan.Rank
	found := false
	for _, g := range p.Gens {
		for _, seg := range g.Segments {
			if !seg.IsGreyForAny(scan.TraceSet(0).With(t.ID)) {
				continue
			}
			r := effectiveRank(seg)
			if !found || r < bestRank {
				best, bestRank, found = seg, r, true
			}
		}
	}
	return best, bestRank, found
}

// ScanSegment implements trace.Pool.ScanSegment (§4.6 "Scan (per segment)").
func (p *Pool) ScanSegment(ctx context.Context, t *trace.Trace, seg *segment.Segment) error {
	if p.isLeaf() {
		seg.Grey = seg.Grey.Without(t.ID)
		return nil
	}
	if seg.Board != nil {
		return p.scanNailed(ctx, t, seg)
	}
	return p.scanLinear(ctx, t, seg)
}

func (p *Pool) scanLinear(ctx context.Context, t *trace.Trace, seg *segment.Segment) error {
	ss := scan.Init(ctx, scan.TraceSet(0).With(t.ID), effectiveRank(seg), t.White, p.ZoneShift, t.Emergency, p.Fix, p.FixEmergency)
	defer scan.Release(ctx, ss)
	if _, err := p.Format.Scan(ss, seg.Base, scanBound(seg)); err != nil {
		return err
	}
	seg.Summary = ss.Summary()
	seg.Grey = seg.Grey.Without(t.ID)
	return nil
}

// isPinned decides, per §4.6's pinned policy, whether the object occupying
// [base, limit) must stay put: base policy pins if the grain at base is
// nailed, interior policy pins if any grain in the object's extent is nailed.
func isPinned(board boardView, base, limit addr.Address, policy Pinned) bool {
	if policy == PinnedBase {
		return board.Get(base)
	}
	return !board.IsResRange(base, limit)
}

// boardView is the subset of *nailboard.Board the nailed-scan loop needs,
// named here so the loop's intent (query, don't mutate, during the walk) is
// visible at the call site.
type boardView = interface {
	Get(addr.Address) bool
	IsResRange(addr.Address, addr.Address) bool
	NewNails() bool
	ClearNewNails()
}

// scanNailed implements the nailed-scan loop: walk the segment's objects,
// scanning in place only those the nailboard pins, repeating while an
// emergency fix pass produces fresh nails (§4.6, §9 emergency-mode
// correctness rule).
func (p *Pool) scanNailed(ctx context.Context, t *trace.Trace, seg *segment.Segment) error {
	limit := scanBound(seg)
	var summary refset.Set

	for {
		board := boardView(seg.Board)
		board.ClearNewNails()
		ss := scan.Init(ctx, scan.TraceSet(0).With(t.ID), effectiveRank(seg), t.White, p.ZoneShift, t.Emergency, p.Fix, p.FixEmergency)

		for cur := seg.Base; cur < limit; {
			next := p.Format.Skip(cur)
			if isPinned(board, cur, next, p.Pinned) {
				if _, err := p.Format.Scan(ss, cur, next); err != nil {
					return err
				}
			}
			cur = next
		}

		summary = ss.Summary()
		scan.Release(ctx, ss)
		if t.Emergency && board.NewNails() {
			continue
		}
		break
	}

	// Each pass above starts from a fresh scan.State, so summary is the last
	// pass's Summary() alone; no earlier pass's components carry over into
	// seg.Summary. scan.State.SetSummary is not used here.
	seg.Summary = summary
	seg.Grey = seg.Grey.Without(t.ID)
	return nil
}
