package amc

import (
	"testing"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/gen"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/segment"
)

// fakeFormat is the minimal format.Format implementation these tests need;
// only Alignment is exercised directly, the rest exist to satisfy the
// interface.
type fakeFormat struct {
	align addr.Align
}

func (f fakeFormat) Alignment() addr.Align            { return f.align }
func (f fakeFormat) HeaderSize() addr.Size            { return 0 }
func (f fakeFormat) Skip(p addr.Address) addr.Address { return p }
func (f fakeFormat) Scan(ss *scan.State, base, limit addr.Address) (scan.Result, error) {
	return scan.Result{}, nil
}
func (f fakeFormat) Forward(old, new addr.Address)       {}
func (f fakeFormat) IsMoved(p addr.Address) addr.Address { return 0 }
func (f fakeFormat) Pad(p addr.Address, size addr.Size)  {}

func testChain() *gen.Chain {
	return gen.NewChain(
		gen.Desc{Capacity: 4096, Mortality: 0.9},
		gen.Desc{Capacity: 8192, Mortality: 0.5},
	)
}

func testPool() *Pool {
	return New(testChain(), fakeFormat{align: 8}, 4, segment.RankSet(0).With(scan.RankExact), nil)
}

func TestNewInitializesGenerations(t *testing.T) {
	p := testPool()
	if got := len(p.Gens); got != 2 {
		t.Errorf("len(Gens) = %d, want 2", got)
	}
	for i, g := range p.Gens {
		if g.Index != i {
			t.Errorf("Gens[%d].Index = %d, want %d", i, g.Index, i)
		}
	}
	if p.RampGen != -1 || p.AfterRampGen != -1 {
		t.Errorf("RampGen/AfterRampGen = %d/%d, want -1/-1", p.RampGen, p.AfterRampGen)
	}
}

func TestIsLeaf(t *testing.T) {
	leaf := New(testChain(), fakeFormat{align: 8}, 4, segment.RankSet(0), nil)
	if !leaf.isLeaf() {
		t.Errorf("isLeaf() on an empty RankSet pool = false, want true")
	}
	ref := testPool()
	if ref.isLeaf() {
		t.Errorf("isLeaf() on a pool with RankExact = true, want false")
	}
}

func TestGenerationSize(t *testing.T) {
	p := testPool()
	p.ExtendBy = 1024

	if got := p.generationSize(100); got != 1024 {
		t.Errorf("generationSize(100) = %d, want 1024 (below ExtendBy floor)", got)
	}
	if got := p.generationSize(4096); got != 4096 {
		t.Errorf("generationSize(4096) = %d, want 4096", got)
	}
}

func TestTargetGenIndexDefaultsToChain(t *testing.T) {
	p := testPool()
	if got := p.targetGenIndex(0); got != 1 {
		t.Errorf("targetGenIndex(0) = %d, want 1", got)
	}
	if got := p.targetGenIndex(1); got != 1 {
		t.Errorf("targetGenIndex(1) = %d, want 1 (last generation self-forwards)", got)
	}
}

func TestTargetGenIndexDuringRamp(t *testing.T) {
	p := testPool()
	p.RampGen = 0
	p.AfterRampGen = 1

	p.RampMode = RampRamping
	if got := p.targetGenIndex(0); got != 0 {
		t.Errorf("targetGenIndex(rampGen) during RampRamping = %d, want %d (redirected to itself)", got, 0)
	}

	p.RampMode = RampFinish
	if got := p.targetGenIndex(0); got != 1 {
		t.Errorf("targetGenIndex(rampGen) during RampFinish = %d, want AfterRampGen (1)", got)
	}

	p.RampMode = RampOutside
	if got := p.targetGenIndex(0); got != 1 {
		t.Errorf("targetGenIndex(0) outside ramp = %d, want chain target 1", got)
	}
}

func TestSegmentsAcrossGenerations(t *testing.T) {
	p := testPool()
	s1 := &segment.Segment{Base: 0, Limit: 16}
	s2 := &segment.Segment{Base: 16, Limit: 32}
	p.Gens[0].Segments = []*segment.Segment{s1}
	p.Gens[1].Segments = []*segment.Segment{s2}

	got := p.Segments()
	if len(got) != 2 {
		t.Fatalf("Segments() returned %d segments, want 2", len(got))
	}
}

func TestWithDeallocatorAndSegmentOfAndEpochFunc(t *testing.T) {
	p := testPool()

	var deallocated *segment.Segment
	p.WithDeallocator(func(s *segment.Segment) { deallocated = s })

	seg := &segment.Segment{}
	p.SetSegmentOf(func(a addr.Address) (*segment.Segment, bool) { return seg, true })
	got, ok := p.SegmentOf(0)
	if !ok || got != seg {
		t.Errorf("SegmentOf() = (%v, %v), want (seg, true)", got, ok)
	}

	p.WithEpochFunc(func() uint64 { return 7 })
	if got := p.epochFunc(); got != 7 {
		t.Errorf("epochFunc() = %d, want 7", got)
	}

	p.deallocator(seg)
	if deallocated != seg {
		t.Errorf("deallocator was not invoked with seg")
	}
}
