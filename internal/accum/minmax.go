// SPDX-License-Identifier: MIT
package accum

import (
	"iter"
	"math"
	"time"

	"scope/internal/ring"
)

// MinMax reduces each time bucket to the minimum and maximum of the signed
// signal, so a waveform renderer can draw the full envelope instead of the
// magnitude only.
type MinMax struct {
	clock bucketClock
	buf   *ring.Buffer[Extrema]
	min   float32
	max   float32
}

// NewMinMax creates a waveform accumulator whose ring of buckets spans
// window at sampleRate.
func NewMinMax(buckets int, sampleRate float64, window time.Duration) (*MinMax, error) {
	clock, err := newBucketClock(buckets, sampleRate, window)
	if err != nil {
		return nil, err
	}
	buf, err := ring.New[Extrema](buckets)
	if err != nil {
		return nil, err
	}
	m := &MinMax{clock: clock, buf: buf}
	m.open()
	return m, nil
}

func (m *MinMax) open() {
	m.min = math.MaxFloat32
	m.max = -math.MaxFloat32
}

// Enqueue ingests one raw sample.
func (m *MinMax) Enqueue(sample float32) {
	if sample < m.min {
		m.min = sample
	}
	if sample > m.max {
		m.max = sample
	}
	if m.clock.tick() {
		m.buf.Push(Extrema{Min: m.min, Max: m.max})
		m.open()
	}
}

// Skip advances over n lost samples. The open bucket commits its extrema
// if it saw any sample; later elapsed buckets commit as zero.
func (m *MinMax) Skip(n uint64) {
	k := m.clock.gapCommits(m.clock.advance(n))
	for i := range k {
		e := Extrema{}
		if i == 0 && m.min <= m.max {
			e = Extrema{Min: m.min, Max: m.max}
		}
		m.buf.Push(e)
	}
	if k > 0 {
		m.open()
	}
}

// EnqueueBlock ingests samples in order.
func (m *MinMax) EnqueueBlock(samples []float32) {
	for _, s := range samples {
		m.Enqueue(s)
	}
}

// SetSampleRate recomputes the bucket span for a new input rate.
func (m *MinMax) SetSampleRate(rate float64) error {
	return m.clock.setSampleRate(rate)
}

// SampleRate returns the current input rate in Hz.
func (m *MinMax) SampleRate() float64 { return m.clock.sampleRate }

// SamplesPerBucket returns how many raw samples make up one bucket on
// average.
func (m *MinMax) SamplesPerBucket() float64 { return m.clock.samplesPerBucket }

// Committed returns the number of buckets committed since construction or
// the last Reset.
func (m *MinMax) Committed() uint64 { return m.clock.committed }

// Len returns the number of buckets.
func (m *MinMax) Len() int { return m.buf.Len() }

// Newest returns the most recently committed bucket.
func (m *MinMax) Newest() Extrema { return m.buf.Newest() }

// Values returns the committed buckets oldest-to-newest.
func (m *MinMax) Values() iter.Seq[Extrema] { return m.buf.All() }

// Snapshot copies the committed buckets oldest-to-newest into dst.
func (m *MinMax) Snapshot(dst []Extrema) int { return m.buf.CopyTo(dst) }

// Reset clears history and the open bucket.
func (m *MinMax) Reset() {
	m.buf.Clear()
	m.clock.reset()
	m.open()
}
