package amc

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/segment"
)

// FillMutatorBuffer creates a new segment for generation genIndex's nursery
// allocation point and attaches buf to it (§4.6 "Segment creation"). deferred
// marks the segment's accounting as deferred: while the ramp pattern is
// RAMPING and genIndex is the ramp generation, or when the caller requests a
// hash-array allocation, newly created segments don't contribute to newSize
// until the deferral ends.
func (p *Pool) FillMutatorBuffer(ctx context.Context, genIndex int, buf *segment.Buffer, requested addr.Size, epoch uint64, hashArray bool) error {
	size := p.generationSize(requested)
	seg, err := p.allocator(size)
	if err != nil {
		return resourceErr(ctx, "amc: could not create segment for mutator buffer: "+err.Error())
	}
	p.initSegment(seg)

	g := p.Gens[genIndex]
	g.Segments = append(g.Segments, seg)

	deferred := hashArray || (p.RampMode == RampRamping && genIndex == p.RampGen)
	g.Accounting.AddNew(size, deferred)

	buf.Attach(seg, seg.Base, seg.Limit, epoch)
	buf.GenIndex = genIndex
	buf.IsForwarding = false
	return nil
}

// FillForwardingBuffer creates a new segment for generation genIndex's
// forwarding buffer, the allocation point fix copies surviving objects into
// during a collection of that generation (§4.6).
func (p *Pool) FillForwardingBuffer(ctx context.Context, genIndex int, requested addr.Size, epoch uint64) error {
	target := p.targetGenIndex(genIndex)
	size := p.generationSize(requested)
	seg, err := p.allocator(size)
	if err != nil {
		return resourceErr(ctx, "amc: could not create segment for forwarding buffer: "+err.Error())
	}
	p.initSegment(seg)

	tg := p.Gens[target]
	tg.Segments = append(tg.Segments, seg)
	deferred := p.RampMode == RampRamping && target == p.RampGen
	tg.Accounting.AddNew(size, deferred)

	fb := &p.Gens[genIndex].Forwarding
	fb.Attach(seg, seg.Base, seg.Limit, epoch)
	fb.GenIndex = target
	fb.IsForwarding = true
	return nil
}

// initSegment sets a freshly created segment's rank set and starting summary
// (§4.6 "Segment creation": "Rank set and summary initialize to (rankSet,
// UNIV) if non-leaf else (EMPTY, EMPTY)").
func (p *Pool) initSegment(seg *segment.Segment) {
	if p.isLeaf() {
		seg.RankSet = 0
		seg.Summary = refset.Empty
		return
	}
	seg.RankSet = p.RankSet
	seg.Summary = refset.Univ
}

// EmptyBuffer detaches buf from its segment, padding the unused tail so the
// segment stays walkable, and accounts any allocation made during an active
// trace as immediately white for that trace (§4.6 "Buffer empty").
func (p *Pool) EmptyBuffer(ctx context.Context, buf *segment.Buffer, traces []uint8, condemnedAccount func(t uint8, n addr.Size)) {
	seg := buf.Segment
	if seg == nil {
		return
	}
	if buf.Init < buf.Limit {
		tailSize := addr.Offset(buf.Init, buf.Limit)
		p.Format.Pad(buf.Init, tailSize)
	}
	for _, t := range traces {
		if seg.IsWhiteFor(t) {
			condemnedAccount(t, seg.Size())
		}
	}
	buf.Detach()
}
