// SPDX-License-Identifier: MIT
/*
Package scope is the consumer side of the visualization pipeline.

A Scope owns one bus.Subscription and the accumulators fed from it: a
peak-hold graph, a min/max waveform, an RMS level history and a value
histogram. Refresh drains the subscription and rebuilds a cached Frame that
readers copy out under a read lock. Run does this on a ticker and fans each
new frame out to sinks (WebSocket, logging, ...).

All accumulators live on the consumer goroutine, so the audio callback only
ever touches the bus. Tap is the exception for views that must be computed
on the producer itself (the engine's level meter): its accumulator runs in
the audio callback and its state is handed over through a bus.Mailbox.
*/
package scope

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"scope/internal/accum"
	"scope/internal/bus"
	applog "scope/internal/log"
)

var logger = applog.New("scope")

// Options configures the views of a Scope.
type Options struct {
	Buckets    int           // time buckets per view
	Window     time.Duration // time span of the peak, waveform and RMS views
	SampleRate float64       // initial rate until the bus reports one
	Decay      accum.Decay   // peak-hold decay
	RMSWindow  time.Duration

	HistogramBins    int
	HistogramLow     float64
	HistogramHigh    float64
	HistogramScaling accum.Scaling
	HistogramDecay   accum.Decay
}

// DefaultOptions returns the settings of a 10 second scope with a decibel
// histogram.
func DefaultOptions() Options {
	return Options{
		Buckets:          800,
		Window:           10 * time.Second,
		SampleRate:       44100,
		Decay:            accum.Decay{Mode: accum.DecayExponential, Time: 300 * time.Millisecond},
		RMSWindow:        300 * time.Millisecond,
		HistogramBins:    120,
		HistogramLow:     -96,
		HistogramHigh:    24,
		HistogramScaling: accum.ScaleDecibels,
		HistogramDecay:   accum.Decay{Mode: accum.DecayExponential, Time: 2 * time.Second},
	}
}

// Frame is a consistent copy of every view at one refresh.
type Frame struct {
	Seq        uint64          `json:"seq"`
	Time       time.Time       `json:"time"`
	SampleRate float64         `json:"sampleRate"`
	Window     float64         `json:"windowSeconds"`
	Peaks      []float32       `json:"peaks"`
	Waveform   []accum.Extrema `json:"waveform"`
	Levels     []float32       `json:"levels"`
	Histogram  []float64       `json:"histogram"` // normalized, largest bin = 1
	Dropped    uint64          `json:"dropped"`
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	f.Peaks = slices.Clone(f.Peaks)
	f.Waveform = slices.Clone(f.Waveform)
	f.Levels = slices.Clone(f.Levels)
	f.Histogram = slices.Clone(f.Histogram)
	return f
}

// Sink receives frames from Run.
type Sink interface {
	Send(data any) error
	Close() error
}

// Scope is the consumer-side view set of one bus.
type Scope struct {
	sub    *bus.Subscription
	window time.Duration

	peak *accum.PeakHold
	wave *accum.MinMax
	rms  *accum.RMS
	hist *accum.Histogram

	mu    sync.RWMutex // guards frame
	frame Frame

	refreshMu sync.Mutex // serializes Refresh

	sinksMu sync.Mutex
	sinks   []Sink
}

// New subscribes to b and builds the views described by opts.
func New(b *bus.Bus, opts Options) (*Scope, error) {
	if b == nil {
		return nil, errors.New("scope: bus cannot be nil")
	}
	rate := opts.SampleRate
	if r := b.SampleRate(); r > 0 {
		rate = r
	}

	peak, err := accum.NewPeakHold(opts.Buckets, rate, opts.Window, opts.Decay)
	if err != nil {
		return nil, fmt.Errorf("scope: peak view: %w", err)
	}
	wave, err := accum.NewMinMax(opts.Buckets, rate, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("scope: waveform view: %w", err)
	}
	rms, err := accum.NewRMS(opts.Buckets, rate, opts.Window, opts.RMSWindow)
	if err != nil {
		return nil, fmt.Errorf("scope: rms view: %w", err)
	}
	hist, err := accum.NewHistogram(opts.HistogramLow, opts.HistogramHigh, opts.HistogramBins, accum.HistogramOptions{
		Scaling:    opts.HistogramScaling,
		Decay:      opts.HistogramDecay,
		SampleRate: rate,
	})
	if err != nil {
		return nil, fmt.Errorf("scope: histogram view: %w", err)
	}

	s := &Scope{
		sub:    b.Subscribe(),
		window: opts.Window,
		peak:   peak,
		wave:   wave,
		rms:    rms,
		hist:   hist,
		frame: Frame{
			SampleRate: rate,
			Window:     opts.Window.Seconds(),
			Peaks:      make([]float32, opts.Buckets),
			Waveform:   make([]accum.Extrema, opts.Buckets),
			Levels:     make([]float32, opts.Buckets),
			Histogram:  make([]float64, opts.HistogramBins),
		},
	}
	s.sub.Attach(peak, wave, rms, hist)
	return s, nil
}

// Refresh feeds everything published since the last call into the views
// and rebuilds the cached frame. It reports whether new samples arrived.
func (s *Scope) Refresh() bool {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if s.sub.Pump() == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := &s.frame
	f.Seq++
	f.Time = time.Now()
	f.SampleRate = s.peak.SampleRate()
	s.peak.Snapshot(f.Peaks)
	s.wave.Snapshot(f.Waveform)
	s.rms.Snapshot(f.Levels)
	s.hist.Normalized(f.Histogram)
	f.Dropped = s.sub.Dropped()
	return true
}

// Frame returns a copy of the last refreshed frame.
func (s *Scope) Frame() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.Clone()
}

// CopyPeaks copies the peak view of the last refreshed frame into dst
// without allocating and returns the number of values copied.
func (s *Scope) CopyPeaks(dst []float32) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copy(dst, s.frame.Peaks)
}

// Buckets returns the number of time buckets per view.
func (s *Scope) Buckets() int { return s.peak.Len() }

// AddSink registers a sink that receives every new frame from Run.
func (s *Scope) AddSink(sink Sink) {
	s.sinksMu.Lock()
	s.sinks = append(s.sinks, sink)
	s.sinksMu.Unlock()
}

// Run refreshes the scope every interval and sends each new frame to the
// registered sinks until ctx is done. Sink errors are logged and do not
// stop the loop.
func (s *Scope) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 16 * time.Millisecond
		logger.Warnf("invalid refresh interval, defaulting to %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infof("refreshing every %s (%d buckets over %s)", interval, s.Buckets(), s.window)
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if s.Refresh() {
				s.broadcast(s.Frame())
			}
		}
	}
}

// Flush refreshes once more and sends the current frame to the sinks, even
// when nothing new arrived since the last refresh. It is used after a
// finite source ends so the sinks see its tail.
func (s *Scope) Flush() {
	s.Refresh()
	f := s.Frame()
	if f.Seq == 0 {
		return
	}
	s.broadcast(f)
}

func (s *Scope) broadcast(f Frame) {
	s.sinksMu.Lock()
	sinks := slices.Clone(s.sinks)
	s.sinksMu.Unlock()

	for _, sink := range sinks {
		if err := sink.Send(f); err != nil {
			logger.Warnf("sink %T failed to send frame %d: %v", sink, f.Seq, err)
		}
	}
}

// Close detaches from the bus and closes every sink.
func (s *Scope) Close() error {
	s.sub.Close()

	s.sinksMu.Lock()
	sinks := s.sinks
	s.sinks = nil
	s.sinksMu.Unlock()

	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
