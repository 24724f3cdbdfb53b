// Package sbuffer implements the shared buffer: an ordered, singly-linked
// FIFO with three monotonic cursors (head, mid, tail) shared between one
// producer (the connection manager) and two independent consumers (the
// data manager, which reads non-destructively, and the storage manager,
// which removes destructively). A node may only be removed once the data
// manager has observed it — that gate is the one invariant this whole
// package exists to enforce.
//
// Locking discipline mirrors the source design: a "main lock" guards head,
// mid and the terminate flag (and backs both condition variables); a
// "write lock" guards tail linkage from the single producer. Insert and
// Remove both hold the two locks together while they touch tail, because
// either may cross the producer/consumer boundary — inserting into an
// empty buffer, or popping the buffer's last remaining node — and whether
// it does is only known once tail has been read. Main lock is always
// acquired before write lock.
package sbuffer

import (
	"sync"
	"sync/atomic"

	"github.com/sensorgw/gateway/internal/types"
)

// Cursor identifies which of the two consumer cursors a caller means to
// wait on.
type Cursor int

const (
	// CursorHead is the storage manager's cursor: wait for a node eligible
	// for removal to exist.
	CursorHead Cursor = iota
	// CursorMid is the data manager's cursor: wait for an unread node to
	// exist.
	CursorMid
)

type node struct {
	reading    types.SensorReading
	releasable atomic.Bool
	next       atomic.Pointer[node]
}

// SharedBuffer is the sbuffer described above. The zero value is not
// usable; construct one with New.
type SharedBuffer struct {
	mu      sync.Mutex // guards head, mid, terminated; backs both conds
	writeMu sync.Mutex // guards tail linkage from the producer

	notEmpty    *sync.Cond // signaled by Insert and Terminate
	allowRemove *sync.Cond // signaled by Read and Terminate

	head atomic.Pointer[node]
	mid  atomic.Pointer[node]
	tail atomic.Pointer[node]

	terminated atomic.Bool
}

// New returns an empty, ready-to-use shared buffer.
func New() *SharedBuffer {
	b := &SharedBuffer{}
	b.notEmpty = sync.NewCond(&b.mu)
	b.allowRemove = sync.NewCond(&b.mu)
	return b
}

// Insert appends a reading at the tail. Only the connection manager may
// call this — the buffer has exactly one producer.
func (b *SharedBuffer) Insert(reading types.SensorReading) {
	n := &node{reading: reading}

	b.mu.Lock()
	b.writeMu.Lock()
	prevTail := b.tail.Load()
	b.tail.Store(n)
	if prevTail != nil {
		prevTail.next.Store(n)
	}
	b.writeMu.Unlock()

	if prevTail == nil {
		// Buffer was empty: head and mid must both start at the new node.
		b.head.Store(n)
		b.mid.Store(n)
	} else if b.mid.Load() == nil {
		// Fast-reader edge case: the data manager had drained to mid=nil.
		// Without this, the new node would never become readable and the
		// storage manager would block on its releasable flag forever.
		b.mid.Store(n)
	}
	b.notEmpty.Broadcast()
	b.mu.Unlock()
}

// Read copies the oldest unread reading into the return value, advances
// mid, and marks the node releasable. It never blocks; call WaitNotEmpty
// first to wait for data. The data manager is the only intended caller.
func (b *SharedBuffer) Read() (types.SensorReading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mid := b.mid.Load()
	if mid == nil {
		return types.SensorReading{}, false
	}
	reading := mid.reading
	mid.releasable.Store(true)
	b.mid.Store(mid.next.Load())
	b.allowRemove.Broadcast()
	return reading, true
}

// Remove pops the oldest node, blocking until it is releasable (i.e. until
// the data manager has already read it). It never blocks on an empty
// buffer; call WaitNotEmpty first. The storage manager is the only
// intended caller.
//
// Remove does not bail out on terminated alone: once terminated, the data
// manager still drains every remaining node down to mid=nil before it
// exits, marking each one releasable along the way, so a terminated head
// node is always eventually woken by that drain rather than needing to be
// polled. Remove only gives up once the chain itself is empty (head=nil).
func (b *SharedBuffer) Remove() (types.SensorReading, bool) {
	b.mu.Lock()

	head := b.head.Load()
	if head == nil {
		b.mu.Unlock()
		return types.SensorReading{}, false
	}
	for !head.releasable.Load() {
		b.allowRemove.Wait()
		head = b.head.Load()
		if head == nil {
			b.mu.Unlock()
			return types.SensorReading{}, false
		}
	}

	reading := head.reading

	// The "am I popping the last node?" decision must be made under
	// writeMu, not just acted on under it: Insert also decides whether
	// the buffer was empty under writeMu (its prevTail == nil check),
	// so reading tail here without the lock could race a concurrent
	// Insert appending onto what Remove still thinks is the last node,
	// orphaning it when head/tail are nulled.
	b.writeMu.Lock()
	if head == b.tail.Load() {
		b.head.Store(nil)
		b.tail.Store(nil)
	} else {
		b.head.Store(head.next.Load())
	}
	b.writeMu.Unlock()

	b.mu.Unlock()
	return reading, true
}

// WaitNotEmpty blocks while the given cursor is empty. It returns true
// once data is available, or false if the buffer was terminated while
// waiting (or was already terminated and empty). This is the only
// supported way to wait for data; Read and Remove only observe
// instantaneous state.
func (b *SharedBuffer) WaitNotEmpty(which Cursor) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		var empty bool
		if which == CursorHead {
			empty = b.head.Load() == nil
		} else {
			empty = b.mid.Load() == nil
		}
		if !empty {
			return true
		}
		if b.terminated.Load() {
			return false
		}
		b.notEmpty.Wait()
	}
}

// Terminate marks the buffer terminated and wakes every waiter on both
// conditions, so no consumer can sleep past shutdown.
func (b *SharedBuffer) Terminate() {
	b.mu.Lock()
	b.terminated.Store(true)
	b.notEmpty.Broadcast()
	b.allowRemove.Broadcast()
	b.mu.Unlock()
}

// Terminated reports whether Terminate has been called.
func (b *SharedBuffer) Terminated() bool {
	return b.terminated.Load()
}

// Close releases the remaining chain. Only safe to call once no goroutine
// is inside another SharedBuffer method.
func (b *SharedBuffer) Close() {
	b.mu.Lock()
	b.head.Store(nil)
	b.mid.Store(nil)
	b.mu.Unlock()

	b.writeMu.Lock()
	b.tail.Store(nil)
	b.writeMu.Unlock()
}
