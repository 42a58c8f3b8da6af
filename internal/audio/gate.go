// SPDX-License-Identifier: MIT
package audio

import "math"

const signBit = 1 << 31

// EnableGate turns the noise gate on. Safe to call while the stream runs.
func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

// DisableGate turns the noise gate off.
func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// GateEnabled reports whether the noise gate is on.
func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 of full scale where 0=always open,
// 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	threshold = min(max(threshold, 0), 1)
	e.gateThreshold.Store(math.Float32bits(float32(threshold)))
}

// GetGateThreshold returns the current noise gate threshold.
func (e *Engine) GetGateThreshold() float64 {
	return float64(math.Float32frombits(e.gateThreshold.Load()))
}

// gate silences block in place when its peak does not exceed the threshold
// and reports whether it did.
func (e *Engine) gate(block []float32) bool {
	if !e.gateEnabled.Load() {
		return false
	}
	if blockPeak(block) > math.Float32frombits(e.gateThreshold.Load()) {
		return false
	}
	clear(block)
	return true
}

// blockPeak returns the largest absolute sample. The sign is masked off the
// IEEE bits instead of branching on it.
func blockPeak(block []float32) float32 {
	var peak float32
	for _, s := range block {
		peak = max(peak, math.Float32frombits(math.Float32bits(s)&^signBit))
	}
	return peak
}
