package kurirgo

import (
	"context"
	"sync"
	"time"
)

// InFlightEntry is one shared in-flight call. The owner drives the
// underlying operation and publishes its outcome through the registry;
// every other caller attaches as a waiter and observes the same outcome.
type InFlightEntry struct {
	key     string
	done    chan struct{}
	created time.Time

	mu       sync.Mutex
	response *Response
	err      error
	settled  bool
	waiters  int

	opCtx    context.Context
	opCancel context.CancelFunc
}

// InFlightRegistry coalesces concurrent calls that share a fingerprint so
// at most one underlying operation runs per key at a time.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]*InFlightEntry
}

// NewInFlightRegistry returns an in-memory registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]*InFlightEntry),
	}
}

// Acquire returns the entry for key, creating it when absent. The second
// return value is true for the caller that must run the underlying
// operation. The entry's operation context inherits values from ctx but
// detaches from its cancellation, so the shared operation is not bound to
// any single caller; it is cancelled only when the waiter count drops to
// zero. An entry whose operation is already aborting is replaced rather
// than joined.
func (r *InFlightRegistry) Acquire(ctx context.Context, key string) (*InFlightEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[key]; ok && entry.opCtx.Err() == nil {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	opCtx, opCancel := context.WithCancel(context.WithoutCancel(ctx))
	entry := &InFlightEntry{
		key:      key,
		done:     make(chan struct{}),
		created:  time.Now(),
		waiters:  1,
		opCtx:    opCtx,
		opCancel: opCancel,
	}
	r.entries[key] = entry
	return entry, true
}

// Settle publishes the outcome for entry and releases its waiters. The
// entry is removed from the registry before the outcome becomes
// observable, so a caller arriving after settlement always starts a fresh
// operation and can never see a replayed result.
func (r *InFlightRegistry) Settle(entry *InFlightEntry, resp *Response, err error) {
	r.mu.Lock()
	if r.entries[entry.key] == entry {
		delete(r.entries, entry.key)
	}
	r.mu.Unlock()

	entry.mu.Lock()
	if entry.settled {
		entry.mu.Unlock()
		return
	}
	entry.settled = true
	entry.response = resp
	entry.err = err
	entry.mu.Unlock()

	close(entry.done)
	entry.opCancel()
}

// Len reports the number of keys currently in flight.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Context returns the detached context the owner must run the shared
// operation on.
func (e *InFlightEntry) Context() context.Context {
	return e.opCtx
}

// Wait blocks until the shared operation settles or ctx ends. A caller
// whose ctx ends leaves the entry and receives its own Cancelled failure;
// the remaining waiters are unaffected. The last waiter to leave aborts
// the underlying operation.
func (e *InFlightEntry) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		resp, err := e.response, e.err
		e.mu.Unlock()
		return resp, err
	case <-ctx.Done():
		e.leave()
		return nil, cancellationError(ctx.Err())
	}
}

// leave detaches one waiter. When nobody is left listening the shared
// operation's context is cancelled.
func (e *InFlightEntry) leave() {
	e.mu.Lock()
	e.waiters--
	abandoned := e.waiters <= 0 && !e.settled
	e.mu.Unlock()

	if abandoned {
		e.opCancel()
	}
}
