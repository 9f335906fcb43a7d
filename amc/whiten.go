package amc

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/nailboard"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/segment"
	"github.com/bearlytools/mps/trace"
)

// CondemnMatching implements trace.Pool.CondemnMatching (§4.4 Condemnation):
// whiten every segment whose zone summary is a subset of set, adding each
// whitened segment's size to t.Condemned and, since amc copies survivors,
// adding set to t.White and t.MayMove once any segment is condemned.
func (p *Pool) CondemnMatching(ctx context.Context, t *trace.Trace, set refset.Set) error {
	for _, g := range p.Gens {
		condemnedAny := false
		for _, seg := range g.Segments {
			if !seg.Summary.Sub(set) {
				continue
			}
			if err := p.Whiten(ctx, t, seg); err != nil {
				return err
			}
			t.Condemned += uint64(seg.Size())
			condemnedAny = true
		}
		if condemnedAny {
			t.White = t.White.Union(set)
			t.MayMove = t.MayMove.Union(set)
			p.NoteCondemned(ctx, g.Index)
		}
	}
	return nil
}

// Whiten condemns seg on behalf of t (§4.6 "Whiten (per segment, per
// trace)"). A segment whose only content is its own live mutator buffer (no
// committed bytes beyond ScanLimit) is refused: there is nothing yet for the
// trace to usefully condemn, and whitening it would strand the buffer mid-
// allocation (§8 "A segment whose mutator buffer covers the whole segment
// must not be condemned").
func (p *Pool) Whiten(ctx context.Context, t *trace.Trace, seg *segment.Segment) error {
	if buf := seg.Buffer; buf != nil {
		if buf.ScanLimit == seg.Base {
			return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("amc: refusing to whiten a segment with no committed content ahead of its buffer"))
		}
		if seg.Board == nil {
			seg.Board = nailboard.Create(seg.Base, seg.Limit, p.Format.Alignment())
		}
		if buf.Alloc > buf.Init {
			seg.Board.SetRange(buf.Init, buf.Alloc)
		}
		buf.ScanLimit = buf.Init
	}

	p.ageSegment(seg)
	seg.ResetForwarded(t.ID)
	seg.White = seg.White.With(t.ID)
	return nil
}

// ageSegment transfers a segment's bytes from its generation's new accounting
// to old, the bookkeeping half of whiten (§4.6 "Mark segment old (transferring
// size accounting from new to old)").
func (p *Pool) ageSegment(seg *segment.Segment) {
	for _, g := range p.Gens {
		for _, s := range g.Segments {
			if s == seg {
				g.Accounting.Age(seg.Size())
				return
			}
		}
	}
}
