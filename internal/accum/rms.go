// SPDX-License-Identifier: MIT
package accum

import (
	"fmt"
	"iter"
	"math"
	"time"

	"scope/internal/ring"
)

// MaxSampleRate is the highest input rate the RMS window is preallocated
// for. Higher rates still work but the averaging window is truncated.
const MaxSampleRate = 192000.0

// RMS reduces the signal to a sliding root-mean-square level, committing
// the level over the last rmsWindow once per time bucket.
type RMS struct {
	clock     bucketClock
	buf       *ring.Buffer[float32]
	rmsWindow time.Duration

	// Sliding window of squared samples, preallocated for MaxSampleRate so
	// SetSampleRate never allocates. Only the first n slots are in use.
	squares []float32
	n       int
	head    int
	sum     float64
}

// NewRMS creates an RMS accumulator. window is the span covered by the ring
// of buckets, rmsWindow the averaging span of each committed level
// (typically a few hundred milliseconds).
func NewRMS(buckets int, sampleRate float64, window, rmsWindow time.Duration) (*RMS, error) {
	if rmsWindow <= 0 {
		return nil, fmt.Errorf("%w: rms window %s (must be > 0)", ErrInvalidDuration, rmsWindow)
	}
	clock, err := newBucketClock(buckets, sampleRate, window)
	if err != nil {
		return nil, err
	}
	buf, err := ring.New[float32](buckets)
	if err != nil {
		return nil, err
	}
	r := &RMS{
		clock:     clock,
		buf:       buf,
		rmsWindow: rmsWindow,
		squares:   make([]float32, windowLen(MaxSampleRate, rmsWindow)),
	}
	r.resize()
	return r, nil
}

func windowLen(rate float64, span time.Duration) int {
	n := int(rate * span.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

func (r *RMS) resize() {
	r.n = min(windowLen(r.clock.sampleRate, r.rmsWindow), len(r.squares))
	clear(r.squares[:r.n])
	r.head = 0
	r.sum = 0
}

// Enqueue ingests one raw sample.
func (r *RMS) Enqueue(sample float32) {
	sq := sample * sample
	r.sum += float64(sq) - float64(r.squares[r.head])
	r.squares[r.head] = sq
	r.head++
	if r.head == r.n {
		r.head = 0
	}
	if r.clock.tick() {
		r.buf.Push(r.level())
	}
}

// Skip advances over n lost samples. The first elapsed bucket commits the
// current level; the averaging window then restarts and later buckets
// commit as silence.
func (r *RMS) Skip(n uint64) {
	k := r.clock.gapCommits(r.clock.advance(n))
	if k == 0 {
		return
	}
	r.buf.Push(r.level())
	r.resize()
	for range k - 1 {
		r.buf.Push(0)
	}
}

func (r *RMS) level() float32 {
	mean := r.sum / float64(r.n)
	if mean < 0 || math.IsNaN(mean) {
		// Rounding drift of the running sum.
		mean = 0
	}
	return float32(math.Sqrt(mean))
}

// EnqueueBlock ingests samples in order.
func (r *RMS) EnqueueBlock(samples []float32) {
	for _, s := range samples {
		r.Enqueue(s)
	}
}

// SetSampleRate recomputes the bucket span and the averaging window. The
// averaging window restarts empty; committed levels are kept.
func (r *RMS) SetSampleRate(rate float64) error {
	if err := r.clock.setSampleRate(rate); err != nil {
		return err
	}
	r.resize()
	return nil
}

// SampleRate returns the current input rate in Hz.
func (r *RMS) SampleRate() float64 { return r.clock.sampleRate }

// Committed returns the number of buckets committed since construction or
// the last Reset.
func (r *RMS) Committed() uint64 { return r.clock.committed }

// Len returns the number of buckets.
func (r *RMS) Len() int { return r.buf.Len() }

// Newest returns the most recently committed level.
func (r *RMS) Newest() float32 { return r.buf.Newest() }

// Values returns the committed levels oldest-to-newest.
func (r *RMS) Values() iter.Seq[float32] { return r.buf.All() }

// Snapshot copies the committed levels oldest-to-newest into dst.
func (r *RMS) Snapshot(dst []float32) int { return r.buf.CopyTo(dst) }

// Reset clears history and the averaging window.
func (r *RMS) Reset() {
	r.buf.Clear()
	r.clock.reset()
	r.resize()
}
