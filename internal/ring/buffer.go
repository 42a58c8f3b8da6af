// SPDX-License-Identifier: MIT
/*
Package ring implements the fixed-capacity, overwrite-oldest storage used
for all downsampled history.

A Buffer is a preallocated slice indexed with wraparound arithmetic. It is
created once with the capacity chosen by its owner and never grows, so
Push is safe to call from the real-time audio callback:

  - Push is O(1) and never allocates
  - iteration is always oldest-to-newest regardless of physical layout
  - the buffer always holds exactly Len() logical slots

A Buffer is not safe for concurrent use. Cross-thread reads go through
bus.Mailbox or scope.Tap, which hand the consumer a private copy.
*/
package ring

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidCapacity is returned by New for capacities below one.
var ErrInvalidCapacity = errors.New("ring: invalid capacity")

// Buffer is a fixed-capacity circular buffer. Writing overwrites the
// logically oldest slot.
type Buffer[T any] struct {
	data   []T
	head   int    // physical index of the logically oldest slot
	pushed uint64 // total number of Push calls since construction or Clear
}

// New allocates a Buffer with the given capacity. Every slot starts out as
// the zero value of T.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidCapacity, capacity)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Push writes v into the slot of the oldest element and advances the write
// cursor. It always succeeds.
func (b *Buffer[T]) Push(v T) {
	b.data[b.head] = v
	b.head++
	if b.head == len(b.data) {
		b.head = 0
	}
	b.pushed++
}

// Len returns the capacity of the buffer. A Buffer is always full.
func (b *Buffer[T]) Len() int {
	return len(b.data)
}

// Pushed returns how many values have been pushed since construction or
// the last Clear.
func (b *Buffer[T]) Pushed() uint64 {
	return b.pushed
}

// At returns the element at logical index i, where 0 is the oldest and
// Len()-1 the newest element. It panics if i is out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= len(b.data) {
		panic(fmt.Sprintf("ring: index %d out of range for buffer of size %d", i, len(b.data)))
	}
	return b.data[b.physical(i)]
}

// Newest returns the most recently pushed element.
func (b *Buffer[T]) Newest() T {
	return b.At(len(b.data) - 1)
}

// All returns a lazy oldest-to-newest sequence of the stored values. The
// sequence is finite and can be ranged over any number of times.
func (b *Buffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		n := len(b.data)
		for i := range n {
			if !yield(b.data[b.physical(i)]) {
				return
			}
		}
	}
}

// CopyTo copies the stored values oldest-to-newest into dst and returns the
// number of elements copied. When dst is shorter than the buffer only the
// newest len(dst) values are copied. CopyTo does not allocate.
func (b *Buffer[T]) CopyTo(dst []T) int {
	n := len(b.data)
	if len(dst) < n {
		// Keep the newest values, still in order.
		skip := n - len(dst)
		for i := range dst {
			dst[i] = b.data[b.physical(skip+i)]
		}
		return len(dst)
	}
	k := copy(dst, b.data[b.head:])
	copy(dst[k:], b.data[:b.head])
	return n
}

// Snapshot returns a newly allocated oldest-to-newest copy of the buffer.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, len(b.data))
	b.CopyTo(out)
	return out
}

// Clear resets every slot to the zero value of T.
func (b *Buffer[T]) Clear() {
	clear(b.data)
	b.head = 0
	b.pushed = 0
}

func (b *Buffer[T]) physical(i int) int {
	p := b.head + i
	if p >= len(b.data) {
		p -= len(b.data)
	}
	return p
}
