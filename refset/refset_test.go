package refset

import (
	"testing"

	"github.com/bearlytools/mps/addr"
)

const testShift ZoneShift = 4

func TestOfAddrIsMemberOfItself(t *testing.T) {
	addrs := []addr.Address{0, 16, 17, 1 << 20, 0xdeadbe00}
	for _, a := range addrs {
		s := OfAddr(a, testShift)
		if !Member(s, a, testShift) {
			t.Errorf("Member(OfAddr(%v), %v) = false, want true", a, a)
		}
	}
}

func TestUnionInterDiff(t *testing.T) {
	a := OfAddr(0, testShift)
	b := OfAddr(1<<testShift, testShift)

	u := a.Union(b)
	if !u.Sub(u) {
		t.Errorf("a set is not a subset of itself")
	}
	if !a.Sub(u) || !b.Sub(u) {
		t.Errorf("Union(a, b) does not contain both a and b")
	}

	if got := a.Inter(b); !got.IsEmpty() {
		t.Errorf("disjoint singleton zones intersect: %v", got)
	}

	if got := u.Diff(a); !b.Sub(got) {
		t.Errorf("Diff(Union(a,b), a) does not retain b")
	}
}

func TestEmptyAndUniv(t *testing.T) {
	if !Empty.IsEmpty() {
		t.Errorf("Empty.IsEmpty() = false")
	}
	if Univ.IsEmpty() {
		t.Errorf("Univ.IsEmpty() = true")
	}
	if !Empty.Sub(Univ) {
		t.Errorf("Empty is not a subset of Univ")
	}
}

func TestOfRangeSoundness(t *testing.T) {
	base, limit := addr.Address(0), addr.Address(1<<testShift)*3
	r := OfRange(base, limit, testShift)
	for a := base; a < limit; a += 1 << (testShift - 1) {
		if !Member(r, a, testShift) {
			t.Errorf("OfRange([%v,%v)) does not cover member %v", base, limit, a)
		}
	}
}

func TestOfRangeEmptyWhenDegenerate(t *testing.T) {
	if got := OfRange(10, 10, testShift); !got.IsEmpty() {
		t.Errorf("OfRange(10, 10) = %v, want Empty", got)
	}
	if got := OfRange(10, 5, testShift); !got.IsEmpty() {
		t.Errorf("OfRange(10, 5) = %v, want Empty", got)
	}
}

func TestOfRangeFullPeriodIsUniv(t *testing.T) {
	period := addr.Size(uintptr(WordBits) << testShift)
	got := OfRange(0, addr.Address(period), testShift)
	if got != Univ {
		t.Errorf("OfRange spanning a full period = %v, want Univ", got)
	}
}

func TestCount(t *testing.T) {
	a := OfAddr(0, testShift).Union(OfAddr(1<<testShift, testShift))
	if got := a.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}
