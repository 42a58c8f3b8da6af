// SPDX-License-Identifier: MIT
package accum

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Scaling selects the domain values are binned in.
type Scaling int

const (
	ScaleLinear   Scaling = iota // bin the raw sample value
	ScaleDecibels                // bin 20*log10(|sample|)
)

// String returns the configuration name of the scaling.
func (s Scaling) String() string {
	switch s {
	case ScaleLinear:
		return "linear"
	case ScaleDecibels:
		return "decibels"
	default:
		return "unknown"
	}
}

// ParseScaling converts a configuration name (case-insensitive) to a
// Scaling. Returns ScaleLinear and an error if the name is unknown.
func ParseScaling(name string) (Scaling, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return ScaleLinear, nil
	case "decibels", "db":
		return ScaleDecibels, nil
	default:
		return ScaleLinear, fmt.Errorf("unknown histogram scaling: %q", name)
	}
}

// HistogramOptions configures a Histogram beyond its range and bin count.
type HistogramOptions struct {
	Scaling    Scaling
	Decay      Decay   // DecayOff or DecayExponential
	SampleRate float64 // required when Decay is enabled
}

// Histogram counts how often the signal falls into each of a fixed number
// of value bins over [low, high]. Values outside the range are clamped to
// the edge bins, never dropped.
//
// With exponential decay the counts are scaled down once per block by the
// per-sample weight raised to the block length, so the histogram tracks a
// rolling recent distribution rather than a lifetime count. The scaling is
// folded into a single gain so decaying never touches every bin.
type Histogram struct {
	low, high  float64
	scale      float64 // bins / (high - low)
	scaling    Scaling
	decay      Decay
	sampleRate float64
	weight     float64 // per-sample decay weight, 1 when decay is off
	gain       float64 // counts[i]*gain is the decayed count of bin i
	counts     []float64
}

// NewHistogram creates a histogram of bins equal-width bins over
// [low, high] in the domain selected by opts.Scaling.
func NewHistogram(low, high float64, bins int, opts HistogramOptions) (*Histogram, error) {
	if bins < 1 {
		return nil, fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidBinCount, bins)
	}
	if !(low < high) || math.IsInf(low, 0) || math.IsInf(high, 0) {
		return nil, fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, low, high)
	}
	switch opts.Decay.Mode {
	case DecayOff, DecayExponential:
	default:
		return nil, fmt.Errorf("%w: histogram supports off or exponential, got %s", ErrUnsupportedDecay, opts.Decay.Mode)
	}
	if err := opts.Decay.Validate(); err != nil {
		return nil, err
	}

	h := &Histogram{
		low:     low,
		high:    high,
		scale:   float64(bins) / (high - low),
		scaling: opts.Scaling,
		decay:   opts.Decay,
		weight:  1,
		gain:    1,
		counts:  make([]float64, bins),
	}
	if opts.SampleRate != 0 || opts.Decay.Mode != DecayOff {
		if err := h.SetSampleRate(opts.SampleRate); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Bin returns the index of the bin sample falls into after clamping.
func (h *Histogram) Bin(sample float32) int {
	v := float64(sample)
	if h.scaling == ScaleDecibels {
		v = 20 * math.Log10(math.Abs(v))
	}
	if math.IsNaN(v) {
		return 0
	}
	idx := math.Floor((v - h.low) * h.scale)
	if idx < 0 {
		return 0
	}
	if idx >= float64(len(h.counts)) {
		return len(h.counts) - 1
	}
	return int(idx)
}

// Enqueue decays the existing counts by one sample and counts sample.
func (h *Histogram) Enqueue(sample float32) {
	if h.weight != 1 {
		h.decayBy(h.weight)
	}
	h.counts[h.Bin(sample)] += 1 / h.gain
}

// EnqueueBlock decays the existing counts once for the whole block and then
// counts every sample in it.
func (h *Histogram) EnqueueBlock(samples []float32) {
	if h.weight != 1 && len(samples) > 0 {
		h.decayBy(math.Pow(h.weight, float64(len(samples))))
	}
	inc := 1 / h.gain
	for _, s := range samples {
		h.counts[h.Bin(s)] += inc
	}
}

func (h *Histogram) decayBy(factor float64) {
	h.gain *= factor
	if h.gain < minGain {
		floats.Scale(h.gain, h.counts)
		h.gain = 1
	}
}

// minGain bounds how far the stored counts drift from their decayed values
// before they are rescaled in place.
const minGain = 1e-100

// SetSampleRate recomputes the per-sample decay weight. Counts are kept.
func (h *Histogram) SetSampleRate(rate float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %v (must be > 0)", ErrInvalidSampleRate, rate)
	}
	h.sampleRate = rate
	h.weight = h.decay.sampleWeight(rate)
	return nil
}

// SampleRate returns the current input rate in Hz, 0 if never set.
func (h *Histogram) SampleRate() float64 { return h.sampleRate }

// Len returns the number of bins.
func (h *Histogram) Len() int { return len(h.counts) }

// Range returns the configured value range.
func (h *Histogram) Range() (low, high float64) { return h.low, h.high }

// Scaling returns the binning domain.
func (h *Histogram) Scaling() Scaling { return h.scaling }

// BinEdges returns the lower and upper edge of bin i in the binning domain.
func (h *Histogram) BinEdges(i int) (lo, hi float64) {
	width := (h.high - h.low) / float64(len(h.counts))
	return h.low + float64(i)*width, h.low + float64(i+1)*width
}

// Total returns the sum of all bin counts. With decay off it equals the
// number of samples enqueued since the last Reset.
func (h *Histogram) Total() float64 {
	return floats.Sum(h.counts) * h.gain
}

// Snapshot copies the bin counts into dst and returns the number copied.
func (h *Histogram) Snapshot(dst []float64) int {
	n := copy(dst, h.counts)
	if h.gain != 1 {
		floats.Scale(h.gain, dst[:n])
	}
	return n
}

// Normalized copies the bin counts into dst scaled so the largest bin is 1.
// An empty histogram yields all zeros.
func (h *Histogram) Normalized(dst []float64) int {
	n := h.Snapshot(dst)
	if n == 0 {
		return 0
	}
	if peak := floats.Max(dst[:n]); peak > 0 {
		floats.Scale(1/peak, dst[:n])
	}
	return n
}

// Reset zeroes every bin.
func (h *Histogram) Reset() {
	clear(h.counts)
	h.gain = 1
}
