package kurirgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Batching defaults.
const (
	DefaultBatchDelay    = 25 * time.Millisecond
	DefaultBatchMaxItems = 16
)

// BatchItem is the wire form of one coalesced call inside a composite
// request body.
type BatchItem struct {
	Target string            `json:"target"`
	Params map[string]string `json:"params,omitempty"`
}

// BatchItemResult is the wire form of one item's outcome in a composite
// response body. Exactly one of Data and Error is set; results are
// positional, matching the request order.
type BatchItemResult struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// BatchConfig configures window coalescing.
type BatchConfig struct {
	// Target is the composite endpoint batched calls are POSTed to.
	Target string
	// MaxDelay is the window length measured from the first enqueue.
	MaxDelay time.Duration
	// MaxItems flushes the window early once reached.
	MaxItems int
}

// batchSendFunc delivers one composite call. The client wires this to its
// dispatch path so composite calls get credentials, throttling and retry;
// retry wraps the whole composite call, never individual items.
type batchSendFunc func(ctx context.Context, items []BatchItem) ([]BatchItemResult, error)

// BatchCoalescer buffers batchable calls and flushes each window as one
// composite request. Windows swap atomically on flush, so a call arriving
// during a flush opens a fresh window instead of joining the in-flight
// one.
type BatchCoalescer struct {
	config BatchConfig
	send   batchSendFunc

	// onFlush, when set, observes every flush with its size and trigger.
	onFlush func(size int, full bool)

	mu     sync.Mutex
	window *batchWindow
}

type batchWindow struct {
	opened time.Time
	timer  *time.Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	items   []*batchPending
	waiters int
	flushed bool
}

// batchPending is one enqueued call awaiting settlement. Each pending
// item settles exactly once.
type batchPending struct {
	item BatchItem
	done chan struct{}
	resp *Response
	err  error
}

func newBatchCoalescer(config BatchConfig, send batchSendFunc) *BatchCoalescer {
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultBatchDelay
	}
	if config.MaxItems <= 0 {
		config.MaxItems = DefaultBatchMaxItems
	}
	return &BatchCoalescer{
		config: config,
		send:   send,
	}
}

// Enqueue adds req to the open window, opening one when necessary, and
// blocks until the item settles or ctx ends. A caller whose ctx ends
// stops waiting without disturbing the flush; the composite call is
// aborted only when every item's caller has gone.
func (bc *BatchCoalescer) Enqueue(ctx context.Context, req *Request) (*Response, error) {
	pending := &batchPending{
		item: BatchItem{Target: req.Target, Params: req.Params},
		done: make(chan struct{}),
	}

	bc.mu.Lock()
	w := bc.window
	if w == nil {
		w = newBatchWindow(ctx)
		bc.window = w
		w.timer = time.AfterFunc(bc.config.MaxDelay, func() {
			bc.flush(w, false)
		})
	}
	w.mu.Lock()
	w.items = append(w.items, pending)
	w.waiters++
	full := len(w.items) >= bc.config.MaxItems
	w.mu.Unlock()
	bc.mu.Unlock()

	if full {
		bc.flush(w, true)
	}

	select {
	case <-pending.done:
		return pending.resp, pending.err
	case <-ctx.Done():
		w.leave()
		return nil, cancellationError(ctx.Err())
	}
}

// flush closes the window to new arrivals and sends the composite call.
// The timer-fired and size-triggered paths may race; the first one wins.
func (bc *BatchCoalescer) flush(w *batchWindow, full bool) {
	bc.mu.Lock()
	if bc.window == w {
		bc.window = nil
	}
	bc.mu.Unlock()

	w.mu.Lock()
	if w.flushed {
		w.mu.Unlock()
		return
	}
	w.flushed = true
	items := w.items
	waiters := w.waiters
	w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if bc.onFlush != nil {
		bc.onFlush(len(items), full)
	}

	// Every caller already left; settle for hygiene and skip the wire.
	if waiters <= 0 {
		w.cancel()
		for _, p := range items {
			p.settle(nil, cancellationError(context.Canceled))
		}
		return
	}

	wire := make([]BatchItem, len(items))
	for i, p := range items {
		wire[i] = p.item
	}

	go func() {
		defer w.cancel()

		results, err := bc.send(w.ctx, wire)
		if err != nil {
			// Composite failure applies uniformly to every item.
			batchErr := &Error{
				Type:      ErrorTypeBatch,
				Message:   "composite batch call failed",
				Cause:     err,
				Timestamp: time.Now(),
			}
			for _, p := range items {
				p.settle(nil, batchErr)
			}
			return
		}

		if len(results) != len(items) {
			batchErr := &Error{
				Type:      ErrorTypeBatch,
				Message:   fmt.Sprintf("composite response has %d results for %d items", len(results), len(items)),
				Timestamp: time.Now(),
			}
			for _, p := range items {
				p.settle(nil, batchErr)
			}
			return
		}

		for i, p := range items {
			result := results[i]
			if result.Error != "" {
				p.settle(nil, &Error{
					Type:      ErrorTypeServer,
					Message:   result.Error,
					Target:    p.item.Target,
					Timestamp: time.Now(),
				})
				continue
			}
			p.settle(&Response{StatusCode: http.StatusOK, Body: result.Data}, nil)
		}
	}()
}

func newBatchWindow(ctx context.Context) *batchWindow {
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &batchWindow{
		opened: time.Now(),
		ctx:    opCtx,
		cancel: cancel,
	}
}

// leave detaches one caller. When the last one goes the composite call is
// aborted.
func (w *batchWindow) leave() {
	w.mu.Lock()
	w.waiters--
	abandoned := w.waiters <= 0
	w.mu.Unlock()

	if abandoned {
		w.cancel()
	}
}

func (p *batchPending) settle(resp *Response, err error) {
	p.resp = resp
	p.err = err
	close(p.done)
}
