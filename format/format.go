// Package format declares the client object-format contract (§3 Object
// format, §4.6, §6 "Format lifecycle"). This package is consumer-only: MPS
// calls these methods, it never implements them. The real implementation
// lives in the client language runtime and describes how its objects are laid
// out, how to find their references, and how to move them.
//
// Every method here must be async-signal-safe, re-entrant, non-allocating,
// and bounded in stack depth (spec: ≤64 words), because the collector may
// call them from inside a barrier fault handler (§5). They have exclusive
// access to the object for the duration of their call.
package format

import (
	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/scan"
)

// Format is the capability set a client supplies when creating a pool (§6
// "Format lifecycle": the option set {ALIGN, HEADER_SIZE, SCAN, SKIP, FWD,
// ISFWD, PAD, CLASS}).
type Format interface {
	// Alignment is the minimum alignment of every object this format
	// describes.
	Alignment() addr.Align

	// HeaderSize is the number of bytes of client-private header preceding the
	// fields the collector is allowed to inspect, e.g. for a forwarding object
	// the collector writes the new address starting at the object's base, but
	// the client's type tag may live in a header the collector must skip.
	HeaderSize() addr.Size

	// Skip returns the address immediately following the object at p, whether
	// or not p is itself a valid (non-broken-heart) object. Used to step
	// linearly through a segment.
	Skip(p addr.Address) addr.Address

	// Scan walks every object in [base, limit), calling ss.Fix on each
	// reference field it finds, and returns whether progress was made. A
	// RESOURCE error from ss.Fix (forwarding buffer exhausted) must propagate
	// up unchanged so the trace layer can retry in emergency mode (§4.4, §7).
	Scan(ss *scan.State, base, limit addr.Address) (scan.Result, error)

	// Forward overwrites the object at old with a forwarding marker ("broken
	// heart") pointing at new, after the collector has already copied old's
	// bytes to new. Forward must make IsMoved(old) subsequently return new.
	Forward(old, new addr.Address)

	// IsMoved returns the forwarding address recorded by a prior Forward call
	// at p, or the zero Address if p has not been forwarded.
	IsMoved(p addr.Address) addr.Address

	// Pad overwrites [p, p+size) with a single padding object the format's own
	// Skip/Scan/Pad can subsequently walk over. size is always a multiple of
	// Alignment().
	Pad(p addr.Address, size addr.Size)
}

// Classifier is an optional extension (§6 "CLASS" option) a format may also
// implement to participate in client-level object classification, e.g.
// distinguishing object kinds for walk/finalization purposes. It is checked
// for with a type assertion against Format, matching the optional-capability
// pattern idiomatic to this codebase (a format either is, or is not, a
// Classifier).
type Classifier interface {
	Format
	// ClassOf returns a client-defined class tag for the object at p.
	ClassOf(p addr.Address) uint32
}
