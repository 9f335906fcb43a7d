package segment

import (
	"testing"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/scan"
)

func TestRankSetHasWithIsEmpty(t *testing.T) {
	var r RankSet
	if !r.IsEmpty() {
		t.Errorf("zero RankSet.IsEmpty() = false, want true")
	}
	r = r.With(scan.RankExact)
	if r.IsEmpty() {
		t.Errorf("RankSet.IsEmpty() after With = true, want false")
	}
	if !r.Has(scan.RankExact) {
		t.Errorf("Has(RankExact) = false, want true")
	}
	if r.Has(scan.RankWeak) {
		t.Errorf("Has(RankWeak) = true, want false")
	}
}

func TestBufferReserveCommit(t *testing.T) {
	var seg Segment
	var b Buffer
	b.Attach(&seg, addr.Address(0), addr.Address(64), 5)

	p, ok := b.Reserve(16)
	if !ok {
		t.Fatalf("Reserve(16) = false, want true")
	}
	if p != 0 {
		t.Errorf("Reserve(16) returned base %v, want 0", p)
	}
	if b.Alloc != 16 {
		t.Errorf("Alloc after Reserve(16) = %v, want 16", b.Alloc)
	}

	if !b.Commit(5) {
		t.Errorf("Commit(matching epoch) = false, want true")
	}
	if b.Init != 16 {
		t.Errorf("Init after Commit = %v, want 16", b.Init)
	}
}

func TestBufferCommitFailsOnEpochMismatch(t *testing.T) {
	var seg Segment
	var b Buffer
	b.Attach(&seg, addr.Address(0), addr.Address(64), 5)
	b.Reserve(16)

	if b.Commit(6) {
		t.Errorf("Commit(mismatched epoch) = true, want false")
	}
	if b.Init != 0 {
		t.Errorf("Init after failed Commit = %v, want 0 (unchanged)", b.Init)
	}
	if b.Alloc != 16 {
		t.Errorf("Alloc after failed Commit = %v, want 16 (not rolled back)", b.Alloc)
	}
}

func TestBufferReserveFailsWhenExhausted(t *testing.T) {
	var seg Segment
	var b Buffer
	b.Attach(&seg, addr.Address(0), addr.Address(16), 1)

	if _, ok := b.Reserve(32); ok {
		t.Errorf("Reserve(32) on a 16-byte buffer = true, want false")
	}
}

func TestBufferAvail(t *testing.T) {
	var seg Segment
	var b Buffer
	b.Attach(&seg, addr.Address(0), addr.Address(64), 1)
	b.Reserve(24)

	if got, want := b.Avail(), addr.Size(40); got != want {
		t.Errorf("Avail() = %d, want %d", got, want)
	}
}

func TestBufferAttachDetach(t *testing.T) {
	var seg Segment
	var b Buffer
	b.Attach(&seg, addr.Address(10), addr.Address(20), 1)

	if seg.Buffer != &b {
		t.Errorf("Attach did not point segment.Buffer at the buffer")
	}

	detached := b.Detach()
	if detached != &seg {
		t.Errorf("Detach() = %v, want &seg", detached)
	}
	if seg.Buffer != nil {
		t.Errorf("segment.Buffer after Detach = %v, want nil", seg.Buffer)
	}
	if b.Segment != nil {
		t.Errorf("buffer.Segment after Detach = %v, want nil", b.Segment)
	}
}

func TestSegmentForwardedAccounting(t *testing.T) {
	var seg Segment
	seg.AddForwarded(2, 100)
	seg.AddForwarded(2, 50)
	if got, want := seg.Forwarded(2), addr.Size(150); got != want {
		t.Errorf("Forwarded(2) = %d, want %d", got, want)
	}
	seg.ResetForwarded(2)
	if got := seg.Forwarded(2); got != 0 {
		t.Errorf("Forwarded(2) after ResetForwarded = %d, want 0", got)
	}
}

func TestSegmentSize(t *testing.T) {
	seg := Segment{Base: 100, Limit: 356}
	if got, want := seg.Size(), addr.Size(256); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestSegmentWhiteGreyNailedQueries(t *testing.T) {
	var seg Segment
	seg.White = seg.White.With(3)
	seg.Grey = seg.Grey.With(1).With(3)
	seg.Nailed = seg.Nailed.With(3)

	if !seg.IsWhiteFor(3) {
		t.Errorf("IsWhiteFor(3) = false, want true")
	}
	if seg.IsWhiteFor(1) {
		t.Errorf("IsWhiteFor(1) = true, want false")
	}
	if !seg.IsGreyForAny(scan.TraceSet(0).With(3).With(5)) {
		t.Errorf("IsGreyForAny({3,5}) = false, want true")
	}
	if seg.IsGreyForAny(scan.TraceSet(0).With(5)) {
		t.Errorf("IsGreyForAny({5}) = true, want false")
	}
	if !seg.IsNailedFor(3) {
		t.Errorf("IsNailedFor(3) = false, want true")
	}
	if seg.IsNailedFor(1) {
		t.Errorf("IsNailedFor(1) = true, want false")
	}
}
