// Package tasks tracks cancellable asynchronous work keyed by an id.
//
// At most one task runs per key. Starting a new task under a key cancels
// the task it replaces, and a replaced task's completion never unregisters
// its successor.
package tasks

import (
	"context"
	"sync"
)

type entry struct {
	gen    uint64
	cancel context.CancelFunc
}

// Group is a set of keyed tasks. The zero value is ready to use.
type Group[K comparable] struct {
	mu      sync.Mutex
	running map[K]entry
	gen     uint64
	wg      sync.WaitGroup
}

// Go runs fn in a new goroutine under key, cancelling any task already
// registered under key.
func (g *Group[K]) Go(parent context.Context, key K, fn func(ctx context.Context)) {
	ctx, done := g.Begin(parent, key)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer done()
		fn(ctx)
	}()
}

// Begin registers a task under key that runs on the caller's goroutine.
// The returned func must be called when the task ends; it cancels ctx and
// unregisters the task unless it was already replaced.
func (g *Group[K]) Begin(parent context.Context, key K) (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	if g.running == nil {
		g.running = make(map[K]entry)
	}
	if prev, ok := g.running[key]; ok {
		prev.cancel()
	}
	g.gen++
	gen := g.gen
	g.running[key] = entry{gen: gen, cancel: cancel}
	g.mu.Unlock()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			cancel()
			g.mu.Lock()
			if cur, ok := g.running[key]; ok && cur.gen == gen {
				delete(g.running, key)
			}
			g.mu.Unlock()
		})
	}
}

// Cancel cancels the task registered under key. It reports whether one was
// running.
func (g *Group[K]) Cancel(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.running[key]
	if ok {
		e.cancel()
		delete(g.running, key)
	}
	return ok
}

// CancelAll cancels every registered task.
func (g *Group[K]) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, e := range g.running {
		e.cancel()
		delete(g.running, k)
	}
}

// Running reports whether a task is registered under key.
func (g *Group[K]) Running(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[key]
	return ok
}

// Len returns the number of registered tasks.
func (g *Group[K]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// Wait blocks until every goroutine started with Go has returned.
func (g *Group[K]) Wait() {
	g.wg.Wait()
}
