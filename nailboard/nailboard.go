// Package nailboard implements the per-segment pin bitmap of §4.2: a bitmap at
// alignment granularity recording positions pinned ("nailed") by ambiguous
// references, because ambiguous roots forbid the collector from moving the
// object they might be pointing into.
package nailboard

import (
	"github.com/bearlytools/mps/addr"
	ibits "github.com/bearlytools/mps/internal/bits"
)

const wordBits = 64

// Board is a bitmap over [base, limit) at align-byte granularity, one bit per
// grain. It also tracks whether any bit was newly set since the last
// ClearNewNails call, which the nailed-scan loop (§4.6) uses to decide whether
// a fix pass in emergency mode produced fresh pins and therefore needs another
// pass.
type Board struct {
	base, limit addr.Address
	align       addr.Align
	grains      int
	words       []uint64
	newNails    bool
}

// Create builds a Board covering [base, limit) with one bit per align-sized
// grain. Per §3 "Nailboards are owned by their segment", callers destroy the
// board (drop the reference) when the segment un-nails; there is no separate
// Destroy method because Board holds no resources beyond its own slice.
func Create(base, limit addr.Address, align addr.Align) *Board {
	grains := int(addr.Offset(base, limit)) / int(align)
	if int(addr.Offset(base, limit))%int(align) != 0 {
		grains++
	}
	nWords := (grains + wordBits - 1) / wordBits
	return &Board{
		base:   base,
		limit:  limit,
		align:  align,
		grains: grains,
		words:  make([]uint64, nWords),
	}
}

func (b *Board) grainOf(a addr.Address) int {
	return int(addr.Offset(b.base, a)) / int(b.align)
}

// Set nails the grain containing addr and reports whether it was already
// nailed. The "was-already-set" return is load-bearing: fix (§4.5) uses it to
// short-circuit work on an address it has already pinned this trace.
func (b *Board) Set(a addr.Address) (wasSet bool) {
	g := b.grainOf(a)
	w, bit := g/wordBits, uint8(g%wordBits)
	wasSet = ibits.GetBit(b.words[w], bit)
	if !wasSet {
		b.words[w] = ibits.SetBit(b.words[w], bit, true)
		b.newNails = true
	}
	return wasSet
}

// Get reports whether the grain containing addr is nailed.
func (b *Board) Get(a addr.Address) bool {
	g := b.grainOf(a)
	w, bit := g/wordBits, uint8(g%wordBits)
	return ibits.GetBit(b.words[w], bit)
}

// SetRange nails every grain overlapping [lo, hi).
func (b *Board) SetRange(lo, hi addr.Address) {
	for a := lo; a < hi; a += addr.Address(b.align) {
		b.Set(a)
	}
}

// IsSetRange reports whether every grain overlapping [lo, hi) is nailed.
func (b *Board) IsSetRange(lo, hi addr.Address) bool {
	for a := lo; a < hi; a += addr.Address(b.align) {
		if !b.Get(a) {
			return false
		}
	}
	return true
}

// IsResRange ("is reserved range") reports whether no grain overlapping
// [lo, hi) is nailed — the inverse question IsSetRange asks, kept as its own
// method because callers read better asking "is this span free to reuse"
// directly (§4.2).
func (b *Board) IsResRange(lo, hi addr.Address) bool {
	for a := lo; a < hi; a += addr.Address(b.align) {
		if b.Get(a) {
			return false
		}
	}
	return true
}

// ClearNewNails resets the new-nails-this-pass flag. Called at the start of
// each nailed-scan pass (§4.6).
func (b *Board) ClearNewNails() {
	b.newNails = false
}

// NewNails reports whether Set has nailed a previously-clear grain since the
// last ClearNewNails. The nailed-scan loop repeats while this is true, because
// an emergency fix pass may have pinned objects the previous pass already
// walked past.
func (b *Board) NewNails() bool {
	return b.newNails
}

// Base and Limit expose the board's covered range, used by the reclaim walk to
// iterate the same grains the board was built over.
func (b *Board) Base() addr.Address  { return b.base }
func (b *Board) Limit() addr.Address { return b.limit }
func (b *Board) Align() addr.Align   { return b.align }
