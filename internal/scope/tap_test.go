// SPDX-License-Identifier: MIT
package scope

import (
	"errors"
	"slices"
	"testing"
	"time"

	"scope/internal/accum"
)

func TestTapPublishesAfterEveryBlock(t *testing.T) {
	peak, _ := accum.NewPeakHold(2, 6, time.Second, accum.NoDecay)
	tap := NewTap[float32](peak)
	dst := make([]float32, tap.Len())

	if _, ok := tap.Latest(dst); ok {
		t.Fatal("Latest() before any Process reported an update")
	}

	tap.Process([]float32{0.1, -0.9, 0.2})
	tap.Process([]float32{0.05, 0.05, 0.05})

	seq, ok := tap.Latest(dst)
	if !ok || seq != 2 || !slices.Equal(dst, []float32{0.9, 0.05}) {
		t.Errorf("Latest() = %d, %v, %v; want 2, true, [0.9 0.05]", seq, ok, dst)
	}
	if tap.Saturated() != 1 {
		t.Errorf("Saturated() = %d, want 1", tap.Saturated())
	}
}

func TestTapSampleRateAppliedOnNextProcess(t *testing.T) {
	peak, _ := accum.NewPeakHold(4, 4, time.Second, accum.NoDecay)
	tap := NewTap[float32](peak)

	if err := tap.SetSampleRate(0); !errors.Is(err, accum.ErrInvalidSampleRate) {
		t.Errorf("SetSampleRate(0) error = %v, want ErrInvalidSampleRate", err)
	}
	if err := tap.SetSampleRate(8); err != nil {
		t.Fatalf("SetSampleRate error: %v", err)
	}
	if peak.SampleRate() != 4 {
		t.Fatalf("rate applied before Process: %v", peak.SampleRate())
	}

	tap.Process([]float32{1})
	if peak.SampleRate() != 8 || peak.SamplesPerBucket() != 2 {
		t.Errorf("after Process: rate %v, %v per bucket; want 8, 2", peak.SampleRate(), peak.SamplesPerBucket())
	}
}

func TestTapHistogram(t *testing.T) {
	hist, _ := accum.NewHistogram(0, 1, 2, accum.HistogramOptions{})
	tap := NewTap[float64](hist)
	tap.Process([]float32{0.1, 0.2, 0.9})

	dst := make([]float64, 2)
	if _, ok := tap.Latest(dst); !ok || !slices.Equal(dst, []float64{2, 1}) {
		t.Errorf("Latest() = %v, want [2 1]", dst)
	}
}

func TestTapProcessZeroAlloc(t *testing.T) {
	peak, _ := accum.NewPeakHold(64, 48000, time.Second, accum.Decay{Mode: accum.DecayExponential, Time: 300 * time.Millisecond})
	tap := NewTap[float32](peak)
	block := make([]float32, 256)
	_ = tap.SetSampleRate(44100)

	allocs := testing.AllocsPerRun(100, func() {
		tap.Process(block)
	})
	if allocs != 0 {
		t.Errorf("Process allocated %v times per run, want 0", allocs)
	}
}
