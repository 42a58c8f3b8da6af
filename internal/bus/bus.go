// SPDX-License-Identifier: MIT
/*
Package bus is the hand-off between the real-time audio producer and the
presentation consumers.

A Bus is a single-producer, multi-consumer ring of samples. The producer
publishes samples with plain atomic stores and never waits for, or even
knows about, its subscribers. Each Subscription keeps its own read cursor
and copies out the newest unread samples when polled. A subscriber that
falls behind by more than the ring capacity loses the oldest unread
samples, never the newest, and the loss is counted rather than reported
as an error.

Ring protocol:

	claimed    position the producer is about to write up to
	committed  position up to which samples are fully written

The producer stores claimed, then the samples, then committed. A reader
loads committed, copies slots, then reloads claimed: a copied position p
is intact iff p >= claimed - capacity. Slots hold float32 bits in
atomic.Uint32 so concurrent reads of a slot being overwritten are detected
instead of racing.

Mailbox carries fixed-size snapshots (for example a committed accumulator
ring) with triple buffering, for consumers that want state rather than a
sample stream.
*/
package bus

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"scope/internal/accum"
	"scope/pkg/bitint"
)

// ErrInvalidCapacity is returned by New for a capacity below one.
var ErrInvalidCapacity = errors.New("bus: invalid capacity")

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 4096

// Bus is a lock-free single-producer sample ring. Publish, PublishBlock and
// SetSampleRate must be called from one goroutine at a time; every other
// method is safe from any goroutine.
type Bus struct {
	slots []atomic.Uint32
	mask  uint64

	claimed   atomic.Uint64
	committed atomic.Uint64

	rate    atomic.Uint64 // float64 bits, 0 until set
	rateGen atomic.Uint64

	mu   sync.Mutex // guards subs, consumer side only
	subs map[*Subscription]struct{}
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Capacity    int    `json:"capacity"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// New creates a bus holding at least capacity samples. The capacity is
// rounded up to a power of two.
func New(capacity int) (*Bus, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidCapacity, capacity)
	}
	size := bitint.NextPowerOfTwo(capacity)
	return &Bus{
		slots: make([]atomic.Uint32, size),
		mask:  bitint.Mask(size),
		subs:  make(map[*Subscription]struct{}),
	}, nil
}

// Capacity returns the ring size in samples.
func (b *Bus) Capacity() int { return len(b.slots) }

// Publish appends one sample.
func (b *Bus) Publish(sample float32) {
	pos := b.claimed.Load()
	b.claimed.Store(pos + 1)
	b.slots[pos&b.mask].Store(math.Float32bits(sample))
	b.committed.Store(pos + 1)
}

// PublishBlock appends samples in order. Positions advance by the full
// block; of a block longer than the ring only the newest Capacity()
// samples are written, and subscribers count the rest as dropped.
func (b *Bus) PublishBlock(samples []float32) {
	if len(samples) == 0 {
		return
	}
	end := b.claimed.Load() + uint64(len(samples))
	b.claimed.Store(end)
	tail := samples[max(0, len(samples)-len(b.slots)):]
	base := end - uint64(len(tail))
	for i, s := range tail {
		b.slots[(base+uint64(i))&b.mask].Store(math.Float32bits(s))
	}
	b.committed.Store(end)
}

// Published returns the number of samples committed so far.
func (b *Bus) Published() uint64 { return b.committed.Load() }

// SetSampleRate records the rate of the published signal. Subscriptions
// apply it to their attached accumulators on the next Pump.
func (b *Bus) SetSampleRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v (must be > 0)", accum.ErrInvalidSampleRate, rate)
	}
	b.rate.Store(math.Float64bits(rate))
	b.rateGen.Add(1)
	return nil
}

// SampleRate returns the last rate set, or 0 if none was.
func (b *Bus) SampleRate() float64 {
	return math.Float64frombits(b.rate.Load())
}

// Subscribe registers a new reader whose cursor starts at the current
// head, so it only sees samples published from now on.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:     b,
		cursor:  b.committed.Load(),
		scratch: make([]float32, len(b.slots)),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Stats returns the current counters. Dropped sums over open subscriptions.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := Stats{
		Capacity:    len(b.slots),
		Published:   b.committed.Load(),
		Subscribers: len(b.subs),
	}
	for s := range b.subs {
		st.Dropped += s.dropped.Load()
	}
	return st
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// read copies positions [from, to) into dst and returns the first position
// that was still intact after the copy.
func (b *Bus) read(dst []float32, from, to uint64) uint64 {
	for p := from; p < to; p++ {
		dst[p-from] = math.Float32frombits(b.slots[p&b.mask].Load())
	}
	claimed := b.claimed.Load()
	capacity := uint64(len(b.slots))
	if claimed > capacity && claimed-capacity > from {
		return min(claimed-capacity, to)
	}
	return from
}
