// Package transform implements the client-driven batch relocation described
// in §6 "Transforms": create, add (old,new) pairs, apply (atomic broadcast
// relocation), destroy. As SPEC_FULL.md notes, apply's semantics are exactly
// a degenerate single-object trace: the client already knows the precise
// identity of every moved object, so a transform needs only a single
// exact-rank root scan whose fix function looks up each reference in a known
// old->new table, with no condemning, whitening, or reclaiming involved.
package transform

import (
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
	"github.com/bearlytools/mps/scan"
	"github.com/bearlytools/mps/trace"
)

// Transform is a single batch relocation in progress (§6 "transform create").
// It is not safe for concurrent use by multiple goroutines.
type Transform struct {
	pairs     map[addr.Address]addr.Address
	applied   bool
	destroyed bool
}

// Create begins a new transform with no pairs recorded yet.
func Create() *Transform {
	return &Transform{pairs: make(map[addr.Address]addr.Address)}
}

// AddOldNew records that old has already moved to new, to be broadcast on
// Apply (§6 "transform add (old,new) pairs"). Must be called before Apply or
// Destroy.
func (tr *Transform) AddOldNew(ctx context.Context, old, new addr.Address) error {
	if tr.applied || tr.destroyed {
		return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("transform: cannot add pairs after apply or destroy"))
	}
	tr.pairs[old] = new
	return nil
}

// Apply broadcasts every recorded (old,new) pair across roots in a single
// exact-rank scan, rewriting each reference that matches a known old address
// to its new one (§6 "apply (atomic broadcast relocation)"). Exact rank only:
// a transform relocates objects the client already holds precise references
// to, never an ambiguous interior reference into pool-managed memory.
func (tr *Transform) Apply(ctx context.Context, roots []trace.RootScanner, zoneShift refset.ZoneShift) error {
	if tr.applied || tr.destroyed {
		return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("transform: already applied or destroyed"))
	}

	fix := func(ss *scan.State, ref *addr.Address) error {
		newAddr, ok := tr.pairs[*ref]
		if !ok {
			ss.AddUnfixed(*ref)
			return nil
		}
		*ref = newAddr
		ss.AddFixed(*ref)
		return nil
	}

	ss := scan.Init(ctx, 0, scan.RankExact, refset.Empty, zoneShift, false, fix, fix)
	defer scan.Release(ctx, ss)
	for _, r := range roots {
		if err := r.ScanRoots(ss); err != nil {
			return err
		}
	}

	tr.applied = true
	return nil
}

// Destroy releases tr's pair table (§6 "transform destroy"). Safe to call
// whether or not Apply ran; a second call returns a CatClient/TypeParam error.
func (tr *Transform) Destroy(ctx context.Context) error {
	if tr.destroyed {
		return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("transform: already destroyed"))
	}
	tr.pairs = nil
	tr.destroyed = true
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }
