package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent calls that share a key into a single
// execution whose result every caller receives.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents one in-flight or settled execution.
type call struct {
	done chan struct{}
	val  any
	err  error
}

// New creates an empty singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes fn for key at most once across concurrent callers and hands
// every caller the same result. fn runs in its own goroutine on a context
// detached from ctx, so one caller abandoning the wait cannot abort the
// shared work; a caller whose ctx ends early receives ctx.Err() while fn
// keeps running. The key is released in the same critical section that
// publishes the result, so a call arriving after settlement always starts
// a fresh execution.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		return c.wait(ctx)
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	go func() {
		val, err := fn(context.WithoutCancel(ctx))

		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		c.val = val
		c.err = err
		close(c.done)
		g.mu.Unlock()
	}()

	return c.wait(ctx)
}

// InFlight reports whether an execution for key has started and not yet
// settled.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

func (c *call) wait(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
