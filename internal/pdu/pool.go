package pdu

import "sync"

// GlobalPool is the cross-worker backing pool: a short-critical-section
// free list of capacity-matched buffers, shared by every worker's
// LocalPool. Grounded on bus_manager.go's BusManager: a mutex guarding a
// plain slice, exposing only append/take, no iteration held under lock.
type GlobalPool struct {
	mu       sync.Mutex
	free     []*Buffer
	capacity int
}

func NewGlobalPool(capacity int) *GlobalPool {
	return &GlobalPool{capacity: capacity}
}

// take removes and returns up to n buffers from the global free list.
func (g *GlobalPool) take(n int) []*Buffer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n > len(g.free) {
		n = len(g.free)
	}
	if n == 0 {
		return nil
	}
	tail := g.free[len(g.free)-n:]
	out := make([]*Buffer, n)
	copy(out, tail)
	g.free = g.free[:len(g.free)-n]
	return out
}

// give returns buffers to the global free list.
func (g *GlobalPool) give(bufs []*Buffer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.free = append(g.free, bufs...)
}

// LocalPool is a single worker's thread-confined free list. It is never
// touched by any other goroutine, so Acquire/Release need no locking of
// their own; they fall back to the GlobalPool (short critical section)
// only when the local list is empty or has grown past four refill
// batches.
type LocalPool struct {
	global     *GlobalPool
	free       []*Buffer
	capacity   int
	refillSize int
}

// NewLocalPool creates a per-worker pool backed by global, allocating
// buffers of the given capacity.
func NewLocalPool(global *GlobalPool, capacity int) *LocalPool {
	return &LocalPool{global: global, capacity: capacity, refillSize: 8}
}

// Acquire returns a cleared buffer, refilling from the global pool
// under a short lock if the local free list is empty, and allocating a
// brand new buffer only if the global pool was also empty.
func (lp *LocalPool) Acquire() *Buffer {
	if len(lp.free) == 0 {
		refilled := lp.global.take(lp.refillSize)
		lp.free = append(lp.free, refilled...)
	}
	if len(lp.free) == 0 {
		return NewBuffer(lp.capacity)
	}
	n := len(lp.free) - 1
	b := lp.free[n]
	lp.free = lp.free[:n]
	b.reset()
	return b
}

// Release returns buf to the local free list, pushing a batch up to the
// global pool once the local list grows too large (bounds per-worker
// memory without a lock on every release).
func (lp *LocalPool) Release(buf *Buffer) {
	lp.free = append(lp.free, buf)
	if len(lp.free) > lp.refillSize*4 {
		excess := lp.free[:lp.refillSize]
		lp.global.give(excess)
		lp.free = lp.free[lp.refillSize:]
	}
}
