package messages

import (
	"sync"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/mpserr"
	"github.com/bearlytools/mps/refset"
)

// Finalizer tracks client-registered finalizable references and, on Sweep,
// posts a KindFinalization message for each whose target has become
// unreachable (§6 "finalize/definalize (message-based delivery when targets
// become unreachable)"). A real RankFinal scan integrated into the fix
// protocol would let a finalizable reference keep its target alive for one
// extra cycle before the message fires; §9 notes finalization ordering under
// multiple concurrent traces is unspecified, so this registry instead sweeps
// once per completed trace against that trace's final white set. The arena
// keeps at most one trace in INIT/UNFLIPPED at a time but lets several
// flipped traces coexist; Sweep considers one trace's white set per call
// (see DESIGN.md).
type Finalizer struct {
	mu     sync.Mutex
	nextID uint64
	refs   map[uint64]addr.Address
	queue  *Queue
}

// NewFinalizer creates a Finalizer that posts to q.
func NewFinalizer(q *Queue) *Finalizer {
	return &Finalizer{refs: make(map[uint64]addr.Address), queue: q}
}

// Finalize registers ref for finalization, returning an id Definalize can
// later use to cancel it (§6 "finalize").
func (f *Finalizer) Finalize(ref addr.Address) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.refs[id] = ref
	return id
}

// Definalize cancels a prior Finalize registration (§6 "definalize"),
// reporting whether id was still registered.
func (f *Finalizer) Definalize(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.refs[id]; !ok {
		return mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("messages: no such finalization id"))
	}
	delete(f.refs, id)
	return nil
}

// Sweep checks every registered reference against white, the white set of a
// trace that has just reached RECLAIM, and zoneShift, the arena's zone
// shift. Any reference whose zone is wholly contained in white and for which
// reachable reports false is deregistered and reported via a posted
// KindFinalization message.
func (f *Finalizer) Sweep(white refset.Set, zoneShift refset.ZoneShift, reachable func(addr.Address) bool) {
	f.mu.Lock()
	var dead []addr.Address
	for id, ref := range f.refs {
		if !refset.OfAddr(ref, zoneShift).Sub(white) {
			continue
		}
		if reachable(ref) {
			continue
		}
		dead = append(dead, ref)
		delete(f.refs, id)
	}
	f.mu.Unlock()

	for _, ref := range dead {
		f.queue.Post(NewFinalization(ref))
	}
}
