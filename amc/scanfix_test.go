package amc

import (
	"testing"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/nailboard"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
	"github.com/bearlytools/mps/trace"
)

func TestEffectiveRank(t *testing.T) {
	var exactSeg segment.Segment
	exactSeg.RankSet = exactSeg.RankSet.With(scan.RankExact)
	if got := effectiveRank(&exactSeg); got != scan.RankExact {
		t.Errorf("effectiveRank(exact-only) = %v, want RankExact", got)
	}

	var weakSeg segment.Segment
	weakSeg.RankSet = weakSeg.RankSet.With(scan.RankWeak)
	if got := effectiveRank(&weakSeg); got != scan.RankWeak {
		t.Errorf("effectiveRank(weak, no ambig) = %v, want RankWeak", got)
	}

	var ambigWeakSeg segment.Segment
	ambigWeakSeg.RankSet = ambigWeakSeg.RankSet.With(scan.RankWeak).With(scan.RankAmbig)
	if got := effectiveRank(&ambigWeakSeg); got != scan.RankExact {
		t.Errorf("effectiveRank(weak+ambig) = %v, want RankExact (ambig present disables the weak shortcut)", got)
	}
}

func TestScanBound(t *testing.T) {
	seg := &segment.Segment{Base: 0, Limit: 100}
	if got := scanBound(seg); got != 100 {
		t.Errorf("scanBound(no buffer) = %v, want 100", got)
	}

	var buf segment.Buffer
	buf.Attach(seg, 0, 100, 0)
	buf.ScanLimit = 40
	if got := scanBound(seg); got != 40 {
		t.Errorf("scanBound(buffer.ScanLimit < Limit) = %v, want 40", got)
	}

	buf.ScanLimit = 100
	if got := scanBound(seg); got != 100 {
		t.Errorf("scanBound(buffer.ScanLimit == Limit) = %v, want 100", got)
	}
}

func TestIsPinnedBasePolicy(t *testing.T) {
	board := nailboard.Create(0, 1024, 16)
	board.Set(32)

	if !isPinned(board, 32, 48, PinnedBase) {
		t.Errorf("isPinned(base policy, base nailed) = false, want true")
	}
	if isPinned(board, 48, 64, PinnedBase) {
		t.Errorf("isPinned(base policy, base not nailed) = true, want false")
	}
}

func TestIsPinnedInteriorPolicy(t *testing.T) {
	board := nailboard.Create(0, 1024, 16)
	board.Set(48) // inside [32, 64) but not at the base

	if isPinned(board, 32, 48, PinnedInterior) {
		t.Errorf("isPinned(interior policy, nail outside range) = true, want false")
	}
	if !isPinned(board, 32, 64, PinnedInterior) {
		t.Errorf("isPinned(interior policy, nail inside range) = false, want true")
	}
}

func TestFindGreyLowestRankWins(t *testing.T) {
	p := testPool()

	weakSeg := &segment.Segment{Base: 0, Limit: 16}
	weakSeg.RankSet = weakSeg.RankSet.With(scan.RankWeak)
	weakSeg.Grey = weakSeg.Grey.With(1)

	exactSeg := &segment.Segment{Base: 16, Limit: 32}
	exactSeg.RankSet = exactSeg.RankSet.With(scan.RankExact)
	exactSeg.Grey = exactSeg.Grey.With(1)

	p.Gens[0].Segments = []*segment.Segment{weakSeg}
	p.Gens[1].Segments = []*segment.Segment{exactSeg}

	tr := trace.New(1)
	best, rank, found := p.FindGrey(tr)
	if !found {
		t.Fatalf("FindGrey() found = false, want true")
	}
	if best != exactSeg {
		t.Errorf("FindGrey() picked the weak segment, want the exact (lower-rank) one")
	}
	if rank != scan.RankExact {
		t.Errorf("FindGrey() rank = %v, want RankExact", rank)
	}
}

func TestFindGreyIgnoresSegmentsGreyForOtherTraces(t *testing.T) {
	p := testPool()
	seg := &segment.Segment{Base: 0, Limit: 16}
	seg.Grey = seg.Grey.With(2)
	p.Gens[0].Segments = []*segment.Segment{seg}

	tr := trace.New(1)
	_, _, found := p.FindGrey(tr)
	if found {
		t.Errorf("FindGrey(trace 1) found a segment grey only for trace 2")
	}
}

func TestScanSegmentLeafClearsGreyWithoutScanning(t *testing.T) {
	leaf := New(testChain(), fakeFormat{align: 8}, 4, 0, fakeAllocator)
	seg := &segment.Segment{Base: 0, Limit: 16}
	tr := trace.New(3)
	seg.Grey = seg.Grey.With(3)

	ctx := context.Background()
	if err := leaf.ScanSegment(ctx, tr, seg); err != nil {
		t.Fatalf("ScanSegment(leaf) = %v, want nil", err)
	}
	if seg.IsGreyForAny(scan.TraceSet(0).With(3)) {
		t.Errorf("segment still grey for trace 3 after a leaf ScanSegment")
	}
}
