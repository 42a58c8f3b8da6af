// SPDX-License-Identifier: MIT
package accum

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"
)

func TestPeakHoldCommitsWindowPeaks(t *testing.T) {
	// 6 Hz over 1 s in 2 buckets gives 3 samples per bucket.
	p, err := NewPeakHold(2, 6, time.Second, NoDecay)
	if err != nil {
		t.Fatalf("NewPeakHold error: %v", err)
	}
	if p.SamplesPerBucket() != 3 {
		t.Fatalf("SamplesPerBucket() = %v, want 3", p.SamplesPerBucket())
	}

	p.EnqueueBlock([]float32{0.1, -0.9, 0.2, 0.05, 0.05, 0.05})

	want := []float32{0.9, 0.05}
	if got := slices.Collect(p.Values()); !slices.Equal(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if p.Committed() != 2 {
		t.Errorf("Committed() = %d, want 2", p.Committed())
	}
}

func TestPeakHoldExactPeaksAtFractionalBucketSize(t *testing.T) {
	const (
		rate    = 44100
		buckets = 800
	)
	p, err := NewPeakHold(buckets, rate, 10*time.Second, NoDecay)
	if err != nil {
		t.Fatalf("NewPeakHold error: %v", err)
	}
	if got := p.SamplesPerBucket(); got != 551.25 {
		t.Fatalf("SamplesPerBucket() = %v, want 551.25", got)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	var (
		peak    float32
		filled  int
		commits uint64
		lengths = map[int]int{}
	)
	for range 3 * rate {
		s := float32(rng.Float64()*2 - 1)
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
		filled++

		p.Enqueue(s)
		if p.Committed() == commits {
			continue
		}
		commits = p.Committed()
		if got := p.Newest(); got != peak {
			t.Fatalf("bucket %d = %v, want window peak %v", commits, got, peak)
		}
		lengths[filled]++
		peak, filled = 0, 0
	}

	for n := range lengths {
		if n != 551 && n != 552 {
			t.Errorf("bucket of %d raw samples, want 551 or 552", n)
		}
	}
	if lengths[551] == 0 || lengths[552] == 0 {
		t.Errorf("bucket lengths = %v, want both 551 and 552", lengths)
	}
}

func TestPeakHoldSetSampleRateKeepsHistory(t *testing.T) {
	p, _ := NewPeakHold(4, 8, time.Second, NoDecay) // 2 samples per bucket
	p.EnqueueBlock([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8})
	before := slices.Collect(p.Values())

	if err := p.SetSampleRate(16); err != nil {
		t.Fatalf("SetSampleRate error: %v", err)
	}
	if got := slices.Collect(p.Values()); !slices.Equal(got, before) {
		t.Errorf("history changed by SetSampleRate: got %v, want %v", got, before)
	}
	if p.SamplesPerBucket() != 4 {
		t.Errorf("SamplesPerBucket() = %v, want 4", p.SamplesPerBucket())
	}

	p.EnqueueBlock([]float32{0.9, 0, 0})
	if p.Committed() != 4 {
		t.Errorf("Committed() = %d after 3 samples at 4 per bucket, want 4", p.Committed())
	}
	p.Enqueue(0)
	if p.Committed() != 5 || p.Newest() != 0.9 {
		t.Errorf("after 4th sample: Committed() = %d, Newest() = %v, want 5, 0.9", p.Committed(), p.Newest())
	}
}

func TestSetSampleRateRejectsInvalid(t *testing.T) {
	peak, _ := NewPeakHold(4, 48000, time.Second, NoDecay)
	minmax, _ := NewMinMax(4, 48000, time.Second)
	rms, _ := NewRMS(4, 48000, time.Second, 100*time.Millisecond)
	hist, _ := NewHistogram(-1, 1, 8, HistogramOptions{SampleRate: 48000})

	accs := map[string]Accumulator{
		"peak":      peak,
		"minmax":    minmax,
		"rms":       rms,
		"histogram": hist,
	}
	for name, acc := range accs {
		for _, rate := range []float64{0, -44100, math.NaN(), math.Inf(1)} {
			err := acc.SetSampleRate(rate)
			if !errors.Is(err, ErrInvalidSampleRate) {
				t.Errorf("%s: SetSampleRate(%v) error = %v, want ErrInvalidSampleRate", name, rate, err)
			}
			if acc.SampleRate() != 48000 {
				t.Errorf("%s: SampleRate() = %v after rejected change, want 48000", name, acc.SampleRate())
			}
		}
	}
}

func TestNewPeakHoldInvalid(t *testing.T) {
	tests := []struct {
		name    string
		buckets int
		rate    float64
		window  time.Duration
		decay   Decay
		want    error
	}{
		{"zero buckets", 0, 48000, time.Second, NoDecay, ErrInvalidBucketCount},
		{"negative buckets", -3, 48000, time.Second, NoDecay, ErrInvalidBucketCount},
		{"zero rate", 8, 0, time.Second, NoDecay, ErrInvalidSampleRate},
		{"negative rate", 8, -1, time.Second, NoDecay, ErrInvalidSampleRate},
		{"zero window", 8, 48000, 0, NoDecay, ErrInvalidDuration},
		{"decay without time", 8, 48000, time.Second, Decay{Mode: DecayExponential}, ErrUnsupportedDecay},
		{"unknown decay", 8, 48000, time.Second, Decay{Mode: 42, Time: time.Second}, ErrUnsupportedDecay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPeakHold(tt.buckets, tt.rate, tt.window, tt.decay)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("non-nil accumulator returned with error")
			}
		})
	}
}

func TestSamplesPerBucketClampedToOne(t *testing.T) {
	// 10 Hz over 1 s cannot fill 100 buckets; every sample commits one.
	p, _ := NewPeakHold(100, 10, time.Second, NoDecay)
	if p.SamplesPerBucket() != 1 {
		t.Fatalf("SamplesPerBucket() = %v, want 1", p.SamplesPerBucket())
	}
	p.EnqueueBlock([]float32{0.5, -0.25})
	if p.Committed() != 2 {
		t.Errorf("Committed() = %d, want 2", p.Committed())
	}
}

func TestPeakHoldDecay(t *testing.T) {
	// 4 buckets over 1 s at 4 Hz: one sample per bucket, 250 ms per bucket.
	tests := []struct {
		name  string
		decay Decay
		input []float32
		want  []float32
	}{
		{
			name:  "off",
			decay: NoDecay,
			input: []float32{1, 0, 0, 0},
			want:  []float32{1, 0, 0, 0},
		},
		{
			name:  "exponential quarter per bucket",
			decay: Decay{Mode: DecayExponential, Time: 250 * time.Millisecond},
			input: []float32{1, 0, 0, 0},
			want:  []float32{1, 0.25, 0.0625, 0.015625},
		},
		{
			name:  "linear full scale per second",
			decay: Decay{Mode: DecayLinear, Time: time.Second},
			input: []float32{1, 0, 0, 0},
			want:  []float32{1, 0.75, 0.5, 0.25},
		},
		{
			name:  "louder peak replaces held value",
			decay: Decay{Mode: DecayLinear, Time: time.Second},
			input: []float32{0.5, 0, -0.9, 0},
			want:  []float32{0.5, 0.25, 0.9, 0.65},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPeakHold(4, 4, time.Second, tt.decay)
			if err != nil {
				t.Fatalf("NewPeakHold error: %v", err)
			}
			p.EnqueueBlock(tt.input)
			got := slices.Collect(p.Values())
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("Values() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestPeakHoldDecayIsUpperBound(t *testing.T) {
	for _, decay := range []Decay{
		{Mode: DecayExponential, Time: 300 * time.Millisecond},
		{Mode: DecayLinear, Time: 300 * time.Millisecond},
	} {
		t.Run(decay.Mode.String(), func(t *testing.T) {
			p, _ := NewPeakHold(64, 48000, time.Second, decay)
			rng := rand.New(rand.NewPCG(7, 7))

			var peak float32
			committed := p.Committed()
			for i := range 48000 {
				// Bursts separated by quiet stretches so decay is exercised.
				amp := float32(0.05)
				if (i/6000)%2 == 0 {
					amp = 1
				}
				s := amp * float32(rng.Float64()*2-1)
				peak = max(peak, float32(math.Abs(float64(s))))

				p.Enqueue(s)
				if p.Committed() != committed {
					committed = p.Committed()
					if p.Newest() < peak {
						t.Fatalf("bucket %d = %v below window peak %v", committed, p.Newest(), peak)
					}
					peak = 0
				}
			}
		})
	}
}

func TestPeakHoldReset(t *testing.T) {
	p, _ := NewPeakHold(3, 3, time.Second, NoDecay)
	p.EnqueueBlock([]float32{0.4, 0.5, 0.6, 0.7})
	p.Reset()

	if p.Committed() != 0 {
		t.Errorf("Committed() = %d after Reset, want 0", p.Committed())
	}
	if got := slices.Collect(p.Values()); !slices.Equal(got, []float32{0, 0, 0}) {
		t.Errorf("Values() = %v after Reset, want zeros", got)
	}
	// The open bucket is discarded too.
	p.Enqueue(0.1)
	if p.Newest() != 0.1 {
		t.Errorf("Newest() = %v, want 0.1", p.Newest())
	}
}

func TestPeakHoldSnapshot(t *testing.T) {
	p, _ := NewPeakHold(4, 4, time.Second, NoDecay)
	p.EnqueueBlock([]float32{0.1, 0.2, 0.3, 0.4, 0.5})

	dst := make([]float32, 4)
	if n := p.Snapshot(dst); n != 4 {
		t.Fatalf("Snapshot() = %d, want 4", n)
	}
	if want := []float32{0.2, 0.3, 0.4, 0.5}; !slices.Equal(dst, want) {
		t.Errorf("Snapshot = %v, want %v", dst, want)
	}
}

func TestEnqueueBlockZeroAlloc(t *testing.T) {
	block := make([]float32, 512)
	for i := range block {
		block[i] = float32(math.Sin(float64(i) * 0.05))
	}

	peak, _ := NewPeakHold(800, 44100, 10*time.Second, Decay{Mode: DecayExponential, Time: time.Second})
	minmax, _ := NewMinMax(800, 44100, 10*time.Second)
	rms, _ := NewRMS(800, 44100, 10*time.Second, 300*time.Millisecond)
	hist, _ := NewHistogram(-96, 24, 120, HistogramOptions{
		Scaling:    ScaleDecibels,
		Decay:      Decay{Mode: DecayExponential, Time: time.Second},
		SampleRate: 44100,
	})

	for name, acc := range map[string]Accumulator{
		"peak":      peak,
		"minmax":    minmax,
		"rms":       rms,
		"histogram": hist,
	} {
		allocs := testing.AllocsPerRun(100, func() {
			acc.EnqueueBlock(block)
		})
		if allocs != 0 {
			t.Errorf("%s: EnqueueBlock allocated %v times per run, want 0", name, allocs)
		}
	}

	dst := make([]float32, 800)
	if allocs := testing.AllocsPerRun(100, func() { peak.Snapshot(dst) }); allocs != 0 {
		t.Errorf("PeakHold.Snapshot allocated %v times per run, want 0", allocs)
	}
}

func BenchmarkPeakHoldEnqueueBlock(b *testing.B) {
	p, _ := NewPeakHold(800, 48000, 10*time.Second, Decay{Mode: DecayExponential, Time: time.Second})
	block := make([]float32, 256)
	for i := range block {
		block[i] = float32(i%32) / 32
	}

	b.ReportAllocs()
	for b.Loop() {
		p.EnqueueBlock(block)
	}
}
