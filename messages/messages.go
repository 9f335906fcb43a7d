// Package messages implements the client-facing event queue described in §6
// "Messages": type enable/disable, poll, queue-type, get, discard, with typed
// getters for finalization references, GC live/condemned/not-condemned
// sizes, and a GC-start reason string. The delivery mechanism is a simple
// per-arena buffered channel, not a full message-bus: that external plumbing
// is explicitly out of scope (§1).
package messages

import (
	"sync"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/mps/addr"
	"github.com/bearlytools/mps/mpserr"
)

// Kind identifies what a Message reports (§6 "typed getters for finalization
// ref, GC live/condemned/not-condemned sizes, GC-start reason string").
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindFinalization reports that a finalized reference's target has
	// become unreachable.
	KindFinalization
	// KindGCStart reports that a collection has begun, carrying the reason
	// string and the condemned/not-condemned sizes at the moment of Flip.
	KindGCStart
	// KindGCEnd reports that a collection has finished, carrying the live
	// size measured at reclaim.
	KindGCEnd
)

func (k Kind) String() string {
	switch k {
	case KindFinalization:
		return "Finalization"
	case KindGCStart:
		return "GCStart"
	case KindGCEnd:
		return "GCEnd"
	default:
		return "Unknown"
	}
}

const kindCount = 3

// Message is one queued event. Its typed getters each report ok=false if
// called against a Message of the wrong Kind, rather than a zero value
// indistinguishable from a real zero-sized report.
type Message struct {
	kind Kind

	finalizedRef addr.Address

	liveSize         addr.Size
	condemnedSize    addr.Size
	notCondemnedSize addr.Size

	reason string
}

// Kind reports which typed getters apply to this message.
func (m *Message) Kind() Kind { return m.kind }

// FinalizationRef returns the reference whose target became unreachable, for
// a KindFinalization message.
func (m *Message) FinalizationRef() (addr.Address, bool) {
	if m.kind != KindFinalization {
		return 0, false
	}
	return m.finalizedRef, true
}

// GCSizes returns the condemned and not-condemned byte counts recorded at
// the start of a collection, for a KindGCStart message.
func (m *Message) GCSizes() (condemned, notCondemned addr.Size, ok bool) {
	if m.kind != KindGCStart {
		return 0, 0, false
	}
	return m.condemnedSize, m.notCondemnedSize, true
}

// GCStartReason returns the human-readable reason a collection began, for a
// KindGCStart message.
func (m *Message) GCStartReason() (string, bool) {
	if m.kind != KindGCStart {
		return "", false
	}
	return m.reason, true
}

// GCLiveSize returns the live byte count measured at reclaim, for a
// KindGCEnd message.
func (m *Message) GCLiveSize() (addr.Size, bool) {
	if m.kind != KindGCEnd {
		return 0, false
	}
	return m.liveSize, true
}

// NewFinalization builds a KindFinalization message.
func NewFinalization(ref addr.Address) *Message {
	return &Message{kind: KindFinalization, finalizedRef: ref}
}

// NewGCStart builds a KindGCStart message.
func NewGCStart(reason string, condemned, notCondemned addr.Size) *Message {
	return &Message{kind: KindGCStart, reason: reason, condemnedSize: condemned, notCondemnedSize: notCondemned}
}

// NewGCEnd builds a KindGCEnd message.
func NewGCEnd(live addr.Size) *Message {
	return &Message{kind: KindGCEnd, liveSize: live}
}

// Queue is a per-arena message queue (§6 Messages "type enable/disable, poll,
// queue-type, get, discard"). The zero value is not usable; use NewQueue.
type Queue struct {
	mu      sync.Mutex
	enabled [kindCount + 1]bool
	ch      chan *Message
}

// NewQueue creates a queue buffering up to capacity undelivered messages.
// Posting past capacity drops the message rather than blocking the poster,
// since the poster is typically mid-collection and must not stall on a
// client that never polls (§6 propagation policy: messages are surfaced to
// the client, not allowed to back-pressure the collector).
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan *Message, capacity)}
}

// Enable turns on delivery for messages of kind k (§6 "type enable/disable").
func (q *Queue) Enable(k Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled[k] = true
}

// Disable turns off delivery for messages of kind k; Post silently drops
// messages of a disabled kind.
func (q *Queue) Disable(k Kind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enabled[k] = false
}

// Enabled reports whether messages of kind k are currently delivered.
func (q *Queue) Enabled(k Kind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled[k]
}

// Post enqueues m if its kind is enabled, dropping it without blocking if
// the queue is full or the kind is disabled.
func (q *Queue) Post(m *Message) {
	q.mu.Lock()
	enabled := q.enabled[m.kind]
	q.mu.Unlock()
	if !enabled {
		return
	}
	select {
	case q.ch <- m:
	default:
	}
}

// Poll reports whether a message is waiting, without removing it (§6
// "poll"). The queue-type API here is a single FIFO queue-type, so Poll and
// Get observe the same head.
func (q *Queue) Poll() bool {
	return len(q.ch) > 0
}

// Get removes and returns the next queued message (§6 "get").
func (q *Queue) Get(ctx context.Context) (*Message, error) {
	select {
	case m := <-q.ch:
		return m, nil
	default:
		return nil, mpserr.E(ctx, mpserr.CatClient, mpserr.TypeParam, errString("messages: queue is empty"))
	}
}

// Discard drops the next queued message without returning it (§6
// "discard"). It is a no-op on an empty queue.
func (q *Queue) Discard() {
	select {
	case <-q.ch:
	default:
	}
}

type errString string

func (e errString) Error() string { return string(e) }
