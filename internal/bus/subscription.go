// SPDX-License-Identifier: MIT
package bus

import (
	"sync/atomic"

	"scope/internal/accum"
)

// Subscription is one consumer's view of a Bus. Poll, Pump and Attach must
// be called from the goroutine that owns the subscription; Dropped and
// Close are safe from anywhere.
type Subscription struct {
	bus     *Bus
	cursor  uint64
	dropped atomic.Uint64
	closed  atomic.Bool

	scratch  []float32
	accs     []accum.Accumulator
	skippers []accum.Skipper
	rateGen  uint64
}

// Poll copies the newest unread samples into dst, oldest first, and
// returns how many were copied. ok is false when nothing new was published
// since the last poll.
//
// If more samples are unread than dst (or the ring) can hold, the oldest
// are skipped and counted in Dropped. Poll never returns samples older than
// ones it already returned.
func (s *Subscription) Poll(dst []float32) (n int, ok bool) {
	if len(dst) == 0 || s.closed.Load() {
		return 0, false
	}
	head := s.bus.committed.Load()
	if head == s.cursor {
		return 0, false
	}

	from := s.cursor
	limit := min(uint64(len(dst)), uint64(len(s.bus.slots)))
	if head-from > limit {
		s.dropped.Add(head - limit - from)
		from = head - limit
	}

	valid := s.bus.read(dst, from, head)
	if valid > from {
		// The producer lapped part of the copy.
		s.dropped.Add(valid - from)
		copy(dst, dst[valid-from:head-from])
	}
	s.cursor = head

	n = int(head - valid)
	return n, n > 0
}

// Attach adds accumulators that Pump feeds. The bus sample rate, if set, is
// applied to all attached accumulators on the next Pump.
func (s *Subscription) Attach(accs ...accum.Accumulator) {
	s.accs = append(s.accs, accs...)
	for _, a := range accs {
		if sk, ok := a.(accum.Skipper); ok {
			s.skippers = append(s.skippers, sk)
		}
	}
	s.rateGen = 0
}

// Pump applies a pending sample-rate change to the attached accumulators,
// then polls once and feeds the samples to every one of them. Samples
// dropped by the poll are passed to accumulators implementing
// accum.Skipper first. It returns the number of samples fed.
func (s *Subscription) Pump() int {
	s.syncRate()
	before := s.dropped.Load()
	n, ok := s.Poll(s.scratch)
	if skipped := s.dropped.Load() - before; skipped > 0 {
		for _, sk := range s.skippers {
			sk.Skip(skipped)
		}
	}
	if !ok {
		return 0
	}
	block := s.scratch[:n]
	for _, a := range s.accs {
		a.EnqueueBlock(block)
	}
	return n
}

func (s *Subscription) syncRate() {
	gen := s.bus.rateGen.Load()
	if gen == s.rateGen {
		return
	}
	rate := s.bus.SampleRate()
	for _, a := range s.accs {
		// Bus.SetSampleRate already rejected invalid rates.
		_ = a.SetSampleRate(rate)
	}
	s.rateGen = gen
}

// Lag returns the number of published samples not yet polled.
func (s *Subscription) Lag() uint64 {
	return s.bus.committed.Load() - s.cursor
}

// Dropped returns how many samples this subscription skipped because it
// fell behind (ChannelSaturated).
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription from the bus. Further polls report no
// update.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.bus.unsubscribe(s)
}
