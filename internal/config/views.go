// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"scope/internal/accum"
)

// PeakDecay returns the peak-hold decay of the scope.
func (s ScopeConfig) PeakDecay() (accum.Decay, error) {
	return decay(s.Decay, s.DecayTime)
}

// HistogramDecay returns exponential decay with the configured time, or
// no decay when the time is zero.
func (s ScopeConfig) HistogramDecay() accum.Decay {
	if s.HistogramDecayTime <= 0 {
		return accum.NoDecay
	}
	return accum.Decay{Mode: accum.DecayExponential, Time: s.HistogramDecayTime}
}

// Scaling returns the histogram binning domain.
func (s ScopeConfig) Scaling() (accum.Scaling, error) {
	return accum.ParseScaling(s.HistogramScaling)
}

// PeakDecay returns the decay of the level meter.
func (m MeterConfig) PeakDecay() (accum.Decay, error) {
	return decay(m.Decay, m.DecayTime)
}

func decay(mode string, d time.Duration) (accum.Decay, error) {
	m, err := accum.ParseDecayMode(mode)
	if err != nil {
		return accum.NoDecay, err
	}
	out := accum.Decay{Mode: m, Time: d}
	if m == accum.DecayOff {
		out.Time = 0
	}
	if err := out.Validate(); err != nil {
		return accum.NoDecay, err
	}
	return out, nil
}
