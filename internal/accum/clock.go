// SPDX-License-Identifier: MIT
package accum

import (
	"fmt"
	"math"
	"time"
)

// bucketClock decides when a time bucket has elapsed. It carries the
// fractional remainder of samplesPerBucket from one bucket into the next,
// so a ring of N buckets always spans the configured window on average
// (e.g. 44100 Hz * 10 s / 800 = 551.25 gives buckets of 551 or 552 raw
// samples).
type bucketClock struct {
	buckets          int
	window           time.Duration
	sampleRate       float64
	samplesPerBucket float64 // always >= 1
	phase            float64 // raw samples accumulated into the open bucket
	committed        uint64
}

func newBucketClock(buckets int, sampleRate float64, window time.Duration) (bucketClock, error) {
	if buckets < 1 {
		return bucketClock{}, fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidBucketCount, buckets)
	}
	if window <= 0 {
		return bucketClock{}, fmt.Errorf("%w: %s (must be > 0)", ErrInvalidDuration, window)
	}
	c := bucketClock{buckets: buckets, window: window}
	if err := c.setSampleRate(sampleRate); err != nil {
		return bucketClock{}, err
	}
	return c, nil
}

// setSampleRate recomputes samplesPerBucket. The open bucket and its phase
// are kept so history stays continuous across the change.
func (c *bucketClock) setSampleRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v (must be > 0)", ErrInvalidSampleRate, rate)
	}
	c.sampleRate = rate
	c.samplesPerBucket = samplesPerBucket(c.buckets, rate, c.window)
	return nil
}

// tick accounts for one raw sample and reports whether the open bucket is
// now complete and must be committed.
func (c *bucketClock) tick() bool {
	c.phase++
	if c.phase < c.samplesPerBucket {
		return false
	}
	c.phase -= c.samplesPerBucket
	c.committed++
	return true
}

// advance accounts for n raw samples at once and returns how many buckets
// elapsed.
func (c *bucketClock) advance(n uint64) uint64 {
	c.phase += float64(n)
	if c.phase < c.samplesPerBucket {
		return 0
	}
	k := uint64(c.phase / c.samplesPerBucket)
	c.phase -= float64(k) * c.samplesPerBucket
	c.committed += k
	return k
}

// gapCommits bounds the pushes needed for k elapsed buckets: beyond the
// ring size older pushes would be overwritten anyway.
func (c *bucketClock) gapCommits(k uint64) int {
	return int(min(k, uint64(c.buckets)))
}

func (c *bucketClock) reset() {
	c.phase = 0
	c.committed = 0
}

// bucketSeconds is the time span represented by one bucket. It depends on
// the window and bucket count only, not on the sample rate.
func (c *bucketClock) bucketSeconds() float64 {
	return c.window.Seconds() / float64(c.buckets)
}

// samplesPerBucket returns sampleRate * window / buckets, clamped to 1.
func samplesPerBucket(buckets int, sampleRate float64, window time.Duration) float64 {
	spb := sampleRate * window.Seconds() / float64(buckets)
	if spb < 1 {
		return 1
	}
	return spb
}
