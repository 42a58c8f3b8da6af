// SPDX-License-Identifier: MIT
package accum

import (
	"iter"
	"time"

	"scope/internal/ring"
)

// PeakHold reduces each time bucket to its largest absolute sample value.
//
// With decay disabled every committed bucket is the exact peak magnitude of
// the raw samples that filled it. With decay enabled a bucket quieter than
// its predecessor commits a decayed version of the previous value instead,
// so the committed value is a decayed upper bound of the true peak rather
// than the exact peak.
type PeakHold struct {
	clock   bucketClock
	curve   holdCurve
	decay   Decay
	buf     *ring.Buffer[float32]
	running float32 // peak of the open bucket
	prev    float32 // last committed value
}

// NewPeakHold creates a peak-hold accumulator whose ring of buckets spans
// window at sampleRate.
func NewPeakHold(buckets int, sampleRate float64, window time.Duration, decay Decay) (*PeakHold, error) {
	if err := decay.Validate(); err != nil {
		return nil, err
	}
	clock, err := newBucketClock(buckets, sampleRate, window)
	if err != nil {
		return nil, err
	}
	buf, err := ring.New[float32](buckets)
	if err != nil {
		return nil, err
	}
	return &PeakHold{
		clock: clock,
		curve: decay.curve(clock.bucketSeconds()),
		decay: decay,
		buf:   buf,
	}, nil
}

// Enqueue ingests one raw sample.
func (p *PeakHold) Enqueue(sample float32) {
	if sample < 0 {
		sample = -sample
	}
	if sample > p.running {
		p.running = sample
	}
	if p.clock.tick() {
		p.commit()
	}
}

// EnqueueBlock ingests samples in order.
func (p *PeakHold) EnqueueBlock(samples []float32) {
	for _, s := range samples {
		p.Enqueue(s)
	}
}

// Skip advances over n lost samples. The open bucket commits what it
// held so far; later elapsed buckets commit as silence, decayed as usual.
func (p *PeakHold) Skip(n uint64) {
	for range p.clock.gapCommits(p.clock.advance(n)) {
		p.commit()
	}
}

func (p *PeakHold) commit() {
	v := p.curve.hold(p.prev, p.running)
	p.buf.Push(v)
	p.prev = v
	p.running = 0
}

// SetSampleRate recomputes the bucket span for a new input rate. Committed
// buckets are left untouched.
func (p *PeakHold) SetSampleRate(rate float64) error {
	return p.clock.setSampleRate(rate)
}

// SampleRate returns the current input rate in Hz.
func (p *PeakHold) SampleRate() float64 { return p.clock.sampleRate }

// SamplesPerBucket returns how many raw samples make up one bucket on
// average.
func (p *PeakHold) SamplesPerBucket() float64 { return p.clock.samplesPerBucket }

// Committed returns the number of buckets committed since construction or
// the last Reset.
func (p *PeakHold) Committed() uint64 { return p.clock.committed }

// Decay returns the configured decay.
func (p *PeakHold) Decay() Decay { return p.decay }

// Len returns the number of buckets.
func (p *PeakHold) Len() int { return p.buf.Len() }

// Newest returns the most recently committed bucket.
func (p *PeakHold) Newest() float32 { return p.buf.Newest() }

// Values returns the committed buckets oldest-to-newest.
func (p *PeakHold) Values() iter.Seq[float32] { return p.buf.All() }

// Snapshot copies the committed buckets oldest-to-newest into dst without
// allocating and returns the number of values copied.
func (p *PeakHold) Snapshot(dst []float32) int { return p.buf.CopyTo(dst) }

// Reset clears history and the open bucket.
func (p *PeakHold) Reset() {
	p.buf.Clear()
	p.clock.reset()
	p.running = 0
	p.prev = 0
}
