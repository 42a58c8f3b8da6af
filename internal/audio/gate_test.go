// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"slices"
	"testing"
)

func TestGateEnableHotPath(t *testing.T) {
	engine := &Engine{}

	if engine.GateEnabled() {
		t.Error("Gate should be disabled initially")
	}

	engine.EnableGate()
	if !engine.GateEnabled() {
		t.Error("Gate should be enabled after EnableGate()")
	}

	engine.DisableGate()
	if engine.GateEnabled() {
		t.Error("Gate should be disabled after DisableGate()")
	}

	engine.EnableGate()
	engine.EnableGate() // Multiple calls should be idempotent
	if !engine.GateEnabled() {
		t.Error("Gate should remain enabled after multiple EnableGate()")
	}

	engine.DisableGate()
	engine.DisableGate() // Multiple calls should be idempotent
	if engine.GateEnabled() {
		t.Error("Gate should remain disabled after multiple DisableGate()")
	}
}

func TestGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0}, // Below min
		{0.0, 0.0},  // Minimum
		{0.5, 0.5},  // Middle
		{1.0, 1.0},  // Maximum
		{1.5, 1.0},  // Above max
	}

	engine := &Engine{}

	for _, tt := range tests {
		t.Run(formatFloat(tt.input), func(t *testing.T) {
			engine.SetGateThreshold(tt.input)
			got := engine.GetGateThreshold()

			if absFloat(got-tt.expected) > 0.001 {
				t.Errorf("Gate threshold conversion: got %.3f, want %.3f", got, tt.expected)
			}
		})
	}
}

func TestGateThresholdPrecisionHotPath(t *testing.T) {
	engine := &Engine{}

	tests := []struct {
		ratio float64
		desc  string
	}{
		{0.0, "Zero"},           // Min boundary
		{0.001, "-60 dBFS"},     // Default threshold
		{0.1, "10%"},            // Low value
		{0.25, "Quarter"},       // 25%
		{0.5, "Half"},           // Midpoint
		{0.75, "Three quarter"}, // 75%
		{0.999, "Near max"},     // Almost max
		{1.0, "Unity"},          // Max boundary
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			engine.SetGateThreshold(tt.ratio)
			result := engine.GetGateThreshold()

			// Stored as float32.
			if absFloat(result-tt.ratio) > 1e-7 {
				t.Errorf("Threshold conversion error: got %.9f, want %.9f", result, tt.ratio)
			}
		})
	}
}

func TestGateDetectionHotPath(t *testing.T) {
	tests := []struct {
		desc        string
		buffer      []float32
		gateEnabled bool
		threshold   float64
		shouldPass  bool
	}{
		{"Gate disabled/Quiet signal", quietBuffer, false, 0.1, true},                // Disabled gate always passes
		{"Gate disabled/Loud signal", loudBuffer, false, 0.1, true},                  // Disabled gate always passes
		{"Gate enabled/Quiet signal/Low threshold", quietBuffer, true, 0.0001, true}, // Very low threshold that quiet signal can pass
		{"Gate enabled/Quiet signal/Mid threshold", quietBuffer, true, 0.1, false},   // Signal below threshold
		{"Gate enabled/Loud signal/Mid threshold", loudBuffer, true, 0.1, true},      // Signal above threshold
		{"Gate enabled/Loud signal/High threshold", loudBuffer, true, 0.999, false},  // Very high threshold that even loud signal can't pass
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			engine := &Engine{}
			if tt.gateEnabled {
				engine.EnableGate()
			}
			engine.SetGateThreshold(tt.threshold)

			block := slices.Clone(tt.buffer)
			gated := engine.gate(block)

			if gated == tt.shouldPass {
				t.Errorf("Gate detection error: got gated=%v, want pass=%v (peak=%v, threshold=%v)",
					gated, tt.shouldPass, blockPeak(tt.buffer), engine.GetGateThreshold())
			}
			if tt.shouldPass && !slices.Equal(block, tt.buffer) {
				t.Error("open gate modified the block")
			}
			if !tt.shouldPass && blockPeak(block) != 0 {
				t.Error("closed gate left signal in the block")
			}
		})
	}
}

func TestBlockPeak(t *testing.T) {
	negZero := float32(math.Copysign(0, -1))
	tests := []struct {
		desc  string
		block []float32
		want  float32
	}{
		{"Empty", nil, 0},
		{"Silence", []float32{0, negZero, 0}, 0},
		{"Positive peak", []float32{0.1, 0.5, -0.2}, 0.5},
		{"Negative peak", []float32{0.1, -0.75, 0.2}, 0.75},
		{"Full scale", []float32{-1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := blockPeak(tt.block); got != tt.want {
				t.Errorf("blockPeak(%v) = %v, want %v", tt.block, got, tt.want)
			}
		})
	}
}

func TestGateNoAllocsHotPath(t *testing.T) {
	engine := &Engine{}
	engine.EnableGate()
	engine.SetGateThreshold(highThreshold)
	block := slices.Clone(loudBuffer)

	allocs := testing.AllocsPerRun(100, func() {
		engine.gate(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in noise gate hot path, got %.1f", allocs)
	}
}

func BenchmarkGateThresholdConversionHotPath(b *testing.B) {
	engine := &Engine{}
	values := []float64{0.0, 0.25, 0.5, 0.75, 1.0}

	for _, v := range values {
		b.Run(formatFloat(v), func(b *testing.B) {
			b.ReportAllocs()

			for b.Loop() {
				engine.SetGateThreshold(v)
				_ = engine.GetGateThreshold() // Discard result to prevent optimization
			}
		})
	}
}

func BenchmarkGateProcessingHotPath(b *testing.B) {
	benchmarks := []struct {
		name      string
		buffer    []float32
		threshold float64
		enabled   bool
	}{
		{"Gate disabled/Normal", testBuffer, lowThreshold, false},
		{"Gate enabled/Quiet signal/Low threshold", quietBuffer, lowThreshold, true},
		{"Gate enabled/Normal signal/Low threshold", testBuffer, lowThreshold, true},
		{"Gate enabled/Loud signal/High threshold", loudBuffer, highThreshold, true},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			engine := &Engine{}
			if bm.enabled {
				engine.EnableGate()
			}
			engine.SetGateThreshold(bm.threshold)
			block := make([]float32, len(bm.buffer))

			b.ReportAllocs()

			for b.Loop() {
				copy(block, bm.buffer)
				engine.gate(block)
			}
		})
	}
}
