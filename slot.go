package kurirgo

import (
	"context"
	"sync"
)

// Slot serializes logically related calls: binding a new call through the
// slot cancels the previous holder before the new one dispatches. The
// superseded call observes an ordinary cancellation. This is distinct
// from deduplication, which shares one outcome across identical calls;
// a slot replaces outcomes.
type Slot struct {
	mu     sync.Mutex
	ticket *slotTicket
}

// slotTicket identifies one bound call. Tickets make release idempotent:
// only the current holder can clear the slot.
type slotTicket struct {
	cancel context.CancelFunc
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// bind registers a call, preempting any previous holder. It returns the
// call's derived context, the ticket to release on settlement, and
// whether a previous holder was cancelled.
func (s *Slot) bind(ctx context.Context) (context.Context, *slotTicket, bool) {
	ctx, cancel := context.WithCancel(ctx)
	t := &slotTicket{cancel: cancel}

	s.mu.Lock()
	prev := s.ticket
	s.ticket = t
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		return ctx, t, true
	}
	return ctx, t, false
}

// release clears the slot if t still holds it and frees the derived
// context. A ticket already preempted releases only its own context.
func (s *Slot) release(t *slotTicket) {
	s.mu.Lock()
	if s.ticket == t {
		s.ticket = nil
	}
	s.mu.Unlock()

	t.cancel()
}

// Cancel preempts the current holder, if any, without binding a new call.
func (s *Slot) Cancel() {
	s.mu.Lock()
	t := s.ticket
	s.ticket = nil
	s.mu.Unlock()

	if t != nil {
		t.cancel()
	}
}
