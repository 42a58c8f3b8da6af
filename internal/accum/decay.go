// SPDX-License-Identifier: MIT
package accum

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DecayMode selects how held values fall off over time.
type DecayMode int

// Available decay curves.
const (
	DecayOff         DecayMode = iota // hold exact values, no fall-off
	DecayExponential                  // fall 12 dB (to a quarter) per decay time
	DecayLinear                       // fall full scale to zero over the decay time
)

// String returns the configuration name of the mode.
func (m DecayMode) String() string {
	switch m {
	case DecayOff:
		return "off"
	case DecayExponential:
		return "exponential"
	case DecayLinear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseDecayMode converts a configuration name (case-insensitive) to a
// DecayMode. Returns DecayOff and an error if the name is unknown.
func ParseDecayMode(name string) (DecayMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "off", "none":
		return DecayOff, nil
	case "exponential", "exp":
		return DecayExponential, nil
	case "linear", "lin":
		return DecayLinear, nil
	default:
		return DecayOff, fmt.Errorf("%w: %q", ErrUnsupportedDecay, name)
	}
}

// Decay configures the fall-off of held values. A zero Decay disables it.
type Decay struct {
	Mode DecayMode
	Time time.Duration // time constant of the curve, must be > 0 unless Mode is DecayOff
}

// NoDecay holds exact values.
var NoDecay = Decay{}

// Validate reports whether d can be used by an accumulator.
func (d Decay) Validate() error {
	switch d.Mode {
	case DecayOff:
		return nil
	case DecayExponential, DecayLinear:
		if d.Time <= 0 {
			return fmt.Errorf("%w: %s decay needs a positive time, got %s", ErrUnsupportedDecay, d.Mode, d.Time)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedDecay, int(d.Mode))
	}
}

// holdCurve is a Decay resolved against a fixed bucket span.
type holdCurve struct {
	mode   DecayMode
	weight float32 // exponential: share of the previous value kept per bucket
	step   float32 // linear: amount subtracted per bucket
}

// curve resolves d for buckets spanning bucketSeconds each.
func (d Decay) curve(bucketSeconds float64) holdCurve {
	c := holdCurve{mode: d.Mode}
	switch d.Mode {
	case DecayExponential:
		c.weight = float32(math.Pow(0.25, bucketSeconds/d.Time.Seconds()))
	case DecayLinear:
		c.step = float32(bucketSeconds / d.Time.Seconds())
	}
	return c
}

// hold combines the previously committed value with the peak of the bucket
// that just closed. The result is never below peak.
func (c holdCurve) hold(prev, peak float32) float32 {
	if peak >= prev {
		return peak
	}
	switch c.mode {
	case DecayExponential:
		return max(prev*c.weight+peak*(1-c.weight), peak)
	case DecayLinear:
		if v := prev - c.step; v > peak {
			return v
		}
		return peak
	default:
		return peak
	}
}

// sampleWeight is the per-sample exponential weight for a decay running at
// sampleRate. Returns 1 (no decay) for every other mode.
func (d Decay) sampleWeight(sampleRate float64) float64 {
	if d.Mode != DecayExponential || sampleRate <= 0 {
		return 1
	}
	return math.Pow(0.25, 1/(d.Time.Seconds()*sampleRate))
}
