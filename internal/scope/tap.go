// SPDX-License-Identifier: MIT
package scope

import (
	"fmt"
	"math"
	"sync/atomic"

	"scope/internal/accum"
	"scope/internal/bus"
)

// Snapshotter is an accumulator whose committed state can be copied out.
// PeakHold, MinMax, RMS and Histogram all satisfy it.
type Snapshotter[T any] interface {
	accum.Accumulator
	Snapshot(dst []T) int
	Len() int
}

// Tap runs an accumulator on the producer goroutine and publishes its
// committed state through a mailbox after every block.
//
// Process is the only method the producer calls. SetSampleRate may be
// called from any goroutine; the change is applied at the start of the next
// Process so the accumulator never sees a rate change mid-block. Latest is
// for a single consumer goroutine.
type Tap[T any] struct {
	acc         Snapshotter[T]
	box         *bus.Mailbox[T]
	pendingRate atomic.Uint64 // float64 bits, 0 when nothing is pending
}

// NewTap wraps acc. The accumulator must not be used directly afterwards.
func NewTap[T any](acc Snapshotter[T]) *Tap[T] {
	return &Tap[T]{
		acc: acc,
		box: bus.NewMailbox[T](acc.Len()),
	}
}

// Process feeds one block to the accumulator and publishes its snapshot.
// It never blocks or allocates.
func (t *Tap[T]) Process(block []float32) {
	if bits := t.pendingRate.Swap(0); bits != 0 {
		// Validated by SetSampleRate.
		_ = t.acc.SetSampleRate(math.Float64frombits(bits))
	}
	t.acc.EnqueueBlock(block)
	t.acc.Snapshot(t.box.Back())
	t.box.Commit()
}

// SetSampleRate schedules a rate change for the next Process.
func (t *Tap[T]) SetSampleRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v (must be > 0)", accum.ErrInvalidSampleRate, rate)
	}
	t.pendingRate.Store(math.Float64bits(rate))
	return nil
}

// Latest copies the newest published snapshot into dst. ok is false when
// nothing was processed since the last call.
func (t *Tap[T]) Latest(dst []T) (seq uint64, ok bool) {
	return t.box.Poll(dst)
}

// Len returns the snapshot size.
func (t *Tap[T]) Len() int { return t.acc.Len() }

// Saturated returns how many snapshots were replaced before Latest read
// them.
func (t *Tap[T]) Saturated() uint64 { return t.box.Overwritten() }
