// Package shield declares the barrier/shielding interface and the OS virtual
// memory surface MPS depends on but does not implement (§1 scope: "the OS
// virtual-memory layer (reserve/commit/protect/suspend-threads)" is out of
// scope; §6 "Required OS surface"). This package is consumer-only at the real
// VM/mprotect/signal layer; it also provides Simulated, a software stand-in
// good enough to drive the tracing engine and AMC pool under test without a
// real page-protection backend.
package shield

import (
	"sync"

	"github.com/bearlytools/mps/addr"
)

// Mode is a bitset of the protections currently raised on a segment (§3
// Segment.shieldMode).
type Mode uint8

const (
	// ModeNone means the segment may be read and written freely.
	ModeNone Mode = 0
	// ModeRead means mutator reads fault and are routed to the barrier
	// handler, which must scan the segment to remove greyness before
	// resuming (§5 Barriers).
	ModeRead Mode = 1 << iota
	// ModeWrite means mutator writes fault; used to detect mutation so the
	// segment's summary can be widened to Univ (§5).
	ModeWrite
)

// Has reports whether bit is raised in m.
func (m Mode) Has(bit Mode) bool { return m&bit != 0 }

// FaultHandler is invoked by the OS signal/exception layer when a shielded
// access occurs. It must be async-signal-safe and must not allocate (§5, §9
// "Signal/fault handler reentrancy"). Package arena registers no handler of
// its own; an OS invokes only a handler passed to RegisterFaultHandler.
type FaultHandler func(faultAddr addr.Address, write bool) error

// OS is the required operating-system surface (§6). A real implementation
// wraps mmap/VirtualAlloc, mprotect/VirtualProtect, and signal/exception
// registration; MPS never implements one itself.
type OS interface {
	// Reserve reserves size bytes of address space without committing memory.
	Reserve(size addr.Size) (addr.Address, error)
	// Commit commits [base, base+size) of previously reserved space.
	Commit(base addr.Address, size addr.Size) error
	// Decommit releases the physical backing of [base, base+size) while
	// keeping the address range reserved.
	Decommit(base addr.Address, size addr.Size) error
	// Protect sets the page protection of [base, base+size).
	Protect(base addr.Address, size addr.Size, mode Mode) error
	// SuspendThreads suspends every registered mutator thread so their stacks
	// are stable for root scanning, and RegisterFaultHandler arranges for
	// faulting accesses to invoke h.
	SuspendThreads() error
	ResumeThreads() error
	RegisterFaultHandler(h FaultHandler) error
}

// Simulated is a software stand-in for OS good enough for tests and for
// embedding in processes that don't need real page protection (e.g. a single
// cooperative mutator that calls Poll often enough that read barriers would
// never usefully fire). It tracks protection state per segment but never
// actually denies access; a fault happens only when a caller invokes
// SimulateFault at a point where a real mprotect would fault.
type Simulated struct {
	mu        sync.Mutex
	modes     map[addr.Address]Mode
	suspended bool
	handler   FaultHandler
}

// NewSimulated returns a ready-to-use Simulated shield.
func NewSimulated() *Simulated {
	return &Simulated{modes: make(map[addr.Address]Mode)}
}

func (s *Simulated) Reserve(size addr.Size) (addr.Address, error) { return 0, nil }
func (s *Simulated) Commit(base addr.Address, size addr.Size) error   { return nil }
func (s *Simulated) Decommit(base addr.Address, size addr.Size) error { return nil }

func (s *Simulated) Protect(base addr.Address, size addr.Size, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes[base] = mode
	return nil
}

func (s *Simulated) ModeOf(base addr.Address) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[base]
}

func (s *Simulated) SuspendThreads() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
	return nil
}

func (s *Simulated) ResumeThreads() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	return nil
}

func (s *Simulated) RegisterFaultHandler(h FaultHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	return nil
}

// SimulateFault lets a test (standing in for a real mprotect signal) invoke
// the registered handler directly.
func (s *Simulated) SimulateFault(faultAddr addr.Address, write bool) error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(faultAddr, write)
}
