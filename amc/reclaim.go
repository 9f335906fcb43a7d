package amc

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/segment"
	"github.com/bearlytools/mps/trace"
)

// ReclaimWhite implements trace.Pool.ReclaimWhite (§4.6 "Reclaim (per
// segment, per trace)"): free or compact every segment white for t across
// every generation.
func (p *Pool) ReclaimWhite(ctx context.Context, t *trace.Trace) error {
	for _, g := range p.Gens {
		kept := g.Segments[:0]
		for _, seg := range g.Segments {
			if !seg.IsWhiteFor(t.ID) {
				kept = append(kept, seg)
				continue
			}
			freed := p.reclaimSegment(g, seg, t.ID)
			t.ReclaimedSize += uint64(seg.Forwarded(t.ID))
			if !freed {
				kept = append(kept, seg)
			}
		}
		g.Segments = kept
		p.NoteCollected(ctx, g.Index)
	}
	return nil
}

// reclaimSegment reclaims one white segment on behalf of trace id, reporting
// whether the segment was freed back to the allocator (§4.6 Reclaim).
func (p *Pool) reclaimSegment(g *Generation, seg *segment.Segment, traceID uint8) bool {
	if seg.Board == nil {
		// Not nailed: everything not forwarded out is garbage, the whole
		// segment is reclaimed.
		g.Accounting.Reclaim(seg.Size())
		p.free(seg)
		return true
	}

	preserved := p.coalesceNailed(seg, traceID)
	if preserved == 0 && seg.Buffer == nil {
		g.Accounting.Reclaim(seg.Size())
		p.free(seg)
		return true
	}

	seg.Board = nil
	seg.Nailed = seg.Nailed.Without(traceID)
	seg.White = seg.White.Without(traceID)
	return false
}

// coalesceNailed walks a nailed segment's objects, padding every run of
// non-preserved ones into a single pad object (§4.6 "Coalesce runs of
// non-preserved objects into padding objects by calling format.pad once per
// run"), and returns the number of preserved objects found.
func (p *Pool) coalesceNailed(seg *segment.Segment, traceID uint8) int {
	board := seg.Board
	limit := scanBound(seg)
	preserved := 0

	var runStart addr.Address
	inRun := false
	flush := func(end addr.Address) {
		if inRun && end > runStart {
			p.Format.Pad(runStart, addr.Offset(runStart, end))
		}
		inRun = false
	}

	for cur := seg.Base; cur < limit; {
		next := p.Format.Skip(cur)
		if p.isObjectPreserved(board, cur, next, traceID) {
			flush(cur)
			preserved++
		} else if !inRun {
			runStart, inRun = cur, true
		}
		cur = next
	}
	flush(limit)

	return preserved
}

// isObjectPreserved reports whether the object at [base, limit) survives
// this reclaim: it is pinned (per the pool's pinned policy) or was already
// forwarded out before the nail was taken.
func (p *Pool) isObjectPreserved(board boardView, base, limit addr.Address, traceID uint8) bool {
	if isPinned(board, base, limit, p.Pinned) {
		return true
	}
	return p.Format.IsMoved(base) != 0
}

func (p *Pool) free(seg *segment.Segment) {
	if p.deallocator != nil {
		p.deallocator(seg)
	}
}
