// SPDX-License-Identifier: MIT
/*
Package accum implements the downsampling accumulators that reduce an
audio-rate signal into a fixed number of buckets for visualization.

Every accumulator ingests raw samples one at a time or a block at a time
and, for the time-bucketed variants, commits one reduced value into its
ring.Buffer whenever the configured bucket span elapses:

  - PeakHold keeps the largest absolute value per bucket, optionally decayed
  - MinMax keeps the signed minimum and maximum per bucket (waveform envelope)
  - RMS keeps a sliding root-mean-square level per bucket
  - Histogram bins values into a fixed value range instead of time buckets

Thread Safety:
  - An accumulator is owned by exactly one goroutine, the one feeding it
  - Enqueue and EnqueueBlock never allocate, lock or block
  - Cross-goroutine sample-rate changes are routed through bus.Subscription
    or scope.Tap, which apply them in the owning goroutine
*/
package accum

import "errors"

// Construction and reconfiguration errors. They are always wrapped with
// the offending value, test with errors.Is.
var (
	ErrInvalidBucketCount = errors.New("accum: invalid bucket count")
	ErrInvalidSampleRate  = errors.New("accum: invalid sample rate")
	ErrInvalidDuration    = errors.New("accum: invalid window duration")
	ErrInvalidRange       = errors.New("accum: invalid value range")
	ErrInvalidBinCount    = errors.New("accum: invalid bin count")
	ErrUnsupportedDecay   = errors.New("accum: unsupported decay mode")
)

// Accumulator is the behaviour shared by every reducer. Reduction logic
// differs per implementation; bucketing and commit timing are shared
// through bucketClock.
type Accumulator interface {
	// Enqueue ingests a single raw sample.
	Enqueue(sample float32)

	// EnqueueBlock ingests samples in order. It is equivalent to calling
	// Enqueue once per sample.
	EnqueueBlock(samples []float32)

	// SetSampleRate reconfigures the accumulator for a new input rate. It
	// returns ErrInvalidSampleRate for non-positive rates and keeps the
	// previous configuration in that case. Committed history is never
	// rescaled.
	SetSampleRate(rate float64) error

	// SampleRate returns the current input rate in Hz.
	SampleRate() float64

	// Reset discards all committed history and the in-progress reduction.
	Reset()
}

// Skipper is implemented by time-bucketed accumulators. Skip advances the
// bucket clock over n samples that were lost upstream, committing the
// elapsed buckets as gaps, so the ring keeps spanning the configured
// window of real time.
type Skipper interface {
	Skip(n uint64)
}

// Extrema is one committed waveform bucket: the local minimum and maximum
// of the signed signal within the bucket's time span.
type Extrema struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Compile-time checks for interface implementations.
var (
	_ Accumulator = (*PeakHold)(nil)
	_ Accumulator = (*MinMax)(nil)
	_ Accumulator = (*RMS)(nil)
	_ Accumulator = (*Histogram)(nil)

	_ Skipper = (*PeakHold)(nil)
	_ Skipper = (*MinMax)(nil)
	_ Skipper = (*RMS)(nil)
)
