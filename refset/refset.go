// Package refset implements the RefSet/ZoneSet algebra (§4.1): a fixed-width
// bitset approximation of the set of addresses a reference might point into.
// Each bit stands for a zone, one of WordBits partitions of the address space
// obtained by hashing bits of an address around a configurable zoneShift. A
// RefSet is always a sound over-approximation: for every reference r actually
// stored in a range R, RefSetOfAddr(r) is a subset of RefSetOfRange(R) once R
// is widened to whole zones.
package refset

import (
	"math/bits"

	"github.com/bearlytools/mps/addr"
	ibits "github.com/bearlytools/mps/internal/bits"
)

// WordBits is the number of zones a RefSet can distinguish: one per bit of the
// underlying word.
const WordBits = 64

// Set is a bitset over zones. The zero value is Empty.
type Set uint64

// Empty contains no zones.
const Empty Set = 0

// Univ contains every zone: the safe-but-useless answer "could be anything",
// used when WRITE protection is raised on a segment and its exact summary can
// no longer be trusted (§3 Segment invariant).
const Univ Set = ^Set(0)

// ZoneShift controls how an address maps to a zone. Held per-arena (§9: tuning
// knobs are per-arena config, never global), not as a package-level default.
type ZoneShift uint8

// DefaultZoneShift is a reasonable starting point for a 64-bit address space:
// skip the low bits that vary only with small-object alignment so that nearby
// allocations tend to land in the same zone.
const DefaultZoneShift ZoneShift = 20

// zoneOf computes the zone index of a, matching §4.1: (addr >> zoneShift) mod
// WordBits.
func zoneOf(a addr.Address, shift ZoneShift) uint {
	return uint((uintptr(a) >> shift) % WordBits)
}

// OfAddr returns the singleton RefSet naming the zone a falls in.
func OfAddr(a addr.Address, shift ZoneShift) Set {
	return Set(ibits.SetBit(uint64(0), uint8(zoneOf(a, shift)), true))
}

// OfRange returns the RefSet covering every zone any address in [base, limit)
// could hash to. It is sound (never too small) even when base==limit, in
// which case it returns Empty.
func OfRange(base, limit addr.Address, shift ZoneShift) Set {
	if limit <= base {
		return Empty
	}
	// Zones repeat with period WordBits<<shift addresses. Once the range spans
	// a full period every zone is possibly present and we must return Univ
	// rather than iterate forever.
	period := uintptr(WordBits) << shift
	if uintptr(limit-base) >= period {
		return Univ
	}
	var s Set
	for a := base; a < limit; a += addr.Address(uintptr(1) << shift) {
		s = s.Union(OfAddr(a, shift))
	}
	// The loop above steps by whole zone-widths and may therefore miss the
	// zone containing limit-1 if base isn't zone-aligned; include it
	// explicitly to stay sound.
	s = s.Union(OfAddr(limit-1, shift))
	return s
}

// Union returns the RefSet containing every zone in a or b.
func (a Set) Union(b Set) Set { return a | b }

// Inter returns the RefSet containing every zone in both a and b.
func (a Set) Inter(b Set) Set { return a & b }

// Diff returns the RefSet containing every zone in a but not in b.
func (a Set) Diff(b Set) Set { return a &^ b }

// Sub reports whether every zone in a is also in b (a ⊆ b).
func (a Set) Sub(b Set) bool { return a&b == a }

// Add returns a with b's zones added (alias of Union kept for §4.1's naming:
// RefSetAdd is the mutator-flavored spelling of union with a singleton).
func (a Set) Add(b Set) Set { return a.Union(b) }

// IsEmpty reports whether the set contains no zones.
func (a Set) IsEmpty() bool { return a == Empty }

// Count returns the number of zones in the set, useful for deciding whether a
// condemnation is selective enough to be worth the scan cost it implies.
func (a Set) Count() int { return bits.OnesCount64(uint64(a)) }

// Member reports whether a falls in a zone named by s.
func Member(s Set, a addr.Address, shift ZoneShift) bool {
	return ibits.GetBit(uint64(s), uint8(zoneOf(a, shift)))
}
