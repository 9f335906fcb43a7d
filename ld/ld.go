// Package ld implements location dependencies (§4.7): a lock-free mechanism
// letting a client safely use the current address of a movable object (e.g.
// as a hash key) and later ask whether that address might have gone stale
// because some trace moved something in its neighborhood.
package ld

import (
	"sync"
	"sync/atomic"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/refset"
)

// Epoch is a monotonically increasing counter advanced by Bump. It is the
// only state shared between LD and the arena that must be read lock-free
// (§5 "Shared-resource policy": the LD epoch is one of the few things not
// serialized by the arena lock).
type Epoch struct {
	value atomic.Uint64
}

// Bump advances the epoch and returns the new value. The arena's flip does
// not call it, so an arena's epoch changes only when a caller bumps it.
func (e *Epoch) Bump() uint64 {
	return e.value.Add(1)
}

// Load reads the current epoch value.
func (e *Epoch) Load() uint64 {
	return e.value.Load()
}

// LD is a location dependency handle (§3, §4.7). The zero value is usable
// after a call to Reset.
type LD struct {
	bound   bool
	epoch   uint64
	zones   refset.Set
	shift   refset.ZoneShift
}

// Reset clears ld so it can be reused (mirrors §6 "Location dependency: reset,
// add, merge, is-stale, is-stale-any").
func (ld *LD) Reset() {
	ld.bound = false
	ld.epoch = 0
	ld.zones = refset.Empty
}

// Add records that ld now depends on the current address of the object at a:
// if any trace completing after this call moves something whose zone is in
// a's zone, ld becomes stale. e is the arena's current epoch at the time of
// the call.
func Add(ld *LD, e *Epoch, a addr.Address, shift refset.ZoneShift) {
	ld.shift = shift
	ld.epoch = e.Load()
	ld.bound = true
	ld.zones = ld.zones.Union(refset.OfAddr(a, shift))
}

// Merge folds other's dependency into ld, so a single LD can track several
// addresses (e.g. every key in a hash table) at the cost of the union of
// their zone sets. The merged epoch is the older (smaller) of the two so a
// later check is conservative with respect to both.
func Merge(ld, other *LD) {
	if !other.bound {
		ld.zones = ld.zones.Union(other.zones)
		return
	}
	if !ld.bound || other.epoch < ld.epoch {
		ld.epoch = other.epoch
	}
	ld.bound = true
	ld.zones = ld.zones.Union(other.zones)
}

// Mover records the set of zones each epoch transition moved something out
// of. The arena owns one Mover; IsStale consults it. Entries are added only
// by explicit Age calls: the arena's flip makes none.
type Mover struct {
	mu      sync.Mutex
	history map[uint64]refset.Set
	current uint64
}

// NewMover returns a ready-to-use Mover.
func NewMover() *Mover {
	return &Mover{history: make(map[uint64]refset.Set)}
}

// Age records that the transition to epoch e moved something in moved (the
// §4.4 Flip step "age location dependencies by trace.mayMove"). The arena's
// flip does not call it. Must be called under the arena lock; unlike Epoch.Load/LD.Add this is
// not on the lock-free path.
func (m *Mover) Age(e uint64, moved refset.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[e] = moved
	if e > m.current {
		m.current = e
	}
}

// IsStale reports whether any flip strictly after ld's recorded epoch moved
// something whose zone overlaps ld's recorded zone set (§8 invariant 6). A
// false result is a hard guarantee: no such move happened. A true result may
// be a false positive (the specific address wasn't touched, just its zone).
func (m *Mover) IsStale(ld *LD) bool {
	if !ld.bound {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for e, moved := range m.history {
		if e > ld.epoch && !moved.Inter(ld.zones).IsEmpty() {
			return true
		}
	}
	return false
}

// IsStaleAny reports whether any of lds is stale, short-circuiting on the
// first positive (§6 "is-stale-any").
func (m *Mover) IsStaleAny(lds ...*LD) bool {
	for _, ld := range lds {
		if m.IsStale(ld) {
			return true
		}
	}
	return false
}

// Forget drops history for epochs at or before upTo, called once the arena
// knows no live LD can still reference them (e.g. after a full park with no
// outstanding LDs). Never called automatically: callers must be sure nothing
// still depends on the trimmed epochs.
func (m *Mover) Forget(upTo uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for e := range m.history {
		if e <= upTo {
			delete(m.history, e)
		}
	}
}
