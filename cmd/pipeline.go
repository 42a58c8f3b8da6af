// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"

	"scope/internal/accum"
	"scope/internal/audio"
	"scope/internal/bus"
	"scope/internal/config"
	applog "scope/internal/log"
	"scope/internal/scope"
	"scope/internal/transport"
	"scope/internal/transport/udp"

	"golang.org/x/sync/errgroup"
)

// Pipeline is everything downstream of the audio source: the bus, the
// consumer-side scope with its sinks, and the producer-side level meter.
type Pipeline struct {
	Bus   *bus.Bus
	Scope *scope.Scope
	Meter *scope.Tap[float32]

	cfg  config.ScopeConfig
	ws   *transport.WebSocketTransport
	udp  *udp.UDPPublisher
	logs *transport.LoggingTransport
}

// ScopeOptions converts the scope section of cfg.
func ScopeOptions(cfg *config.Config) (scope.Options, error) {
	sc := cfg.Scope
	peakDecay, err := sc.PeakDecay()
	if err != nil {
		return scope.Options{}, err
	}
	scaling, err := sc.Scaling()
	if err != nil {
		return scope.Options{}, err
	}
	return scope.Options{
		Buckets:          sc.Buckets,
		Window:           sc.Window,
		SampleRate:       cfg.Audio.SampleRate,
		Decay:            peakDecay,
		RMSWindow:        sc.RMSWindow,
		HistogramBins:    sc.HistogramBins,
		HistogramLow:     sc.HistogramLow,
		HistogramHigh:    sc.HistogramHigh,
		HistogramScaling: scaling,
		HistogramDecay:   sc.HistogramDecay(),
	}, nil
}

// NewPipeline builds the pipeline described by cfg and starts the enabled
// transports. Frames reach the sinks once Run is called.
func NewPipeline(cfg *config.Config) (p *Pipeline, err error) {
	b, err := bus.New(cfg.Bus.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create bus: %w", err)
	}
	if err := b.SetSampleRate(cfg.Audio.SampleRate); err != nil {
		return nil, err
	}

	opts, err := ScopeOptions(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := scope.New(b, opts)
	if err != nil {
		return nil, err
	}

	meterDecay, err := cfg.Meter.PeakDecay()
	if err != nil {
		sc.Close()
		return nil, err
	}
	hold, err := accum.NewPeakHold(cfg.Meter.Buckets, cfg.Audio.SampleRate, cfg.Meter.Window, meterDecay)
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("failed to create level meter: %w", err)
	}

	p = &Pipeline{
		Bus:   b,
		Scope: sc,
		Meter: scope.NewTap[float32](hold),
		cfg:   cfg.Scope,
	}
	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	tc := cfg.Transport
	if tc.LogFrames {
		p.logs = transport.NewLoggingTransport()
		sc.AddSink(p.logs)
	}

	if tc.WebSocketEnabled {
		p.ws = transport.NewWebSocketTransport(tc.WebSocketAddress, tc.WebSocketPath)
		sc.AddSink(p.ws)
		if err := p.ws.Start(); err != nil {
			return p, fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}

	if tc.UDPEnabled {
		sender, err := udp.NewUDPSender(tc.UDPTargetAddress)
		if err != nil {
			return p, err
		}
		if p.udp, err = udp.NewUDPPublisher(tc.UDPSendInterval, sender, sc); err != nil {
			sender.Close()
			return p, err
		}
	}

	return p, nil
}

// WebSocketAddr returns the address the WebSocket server listens on, or ""
// when it is disabled.
func (p *Pipeline) WebSocketAddr() string {
	if p.ws == nil {
		return ""
	}
	return p.ws.Addr()
}

// Run refreshes the scope and publishes UDP packets until ctx is done.
// It returns nil once parent is done.
func (p *Pipeline) Run(parent context.Context) error {
	g, ctx := errgroup.WithContext(parent)

	if p.udp != nil {
		p.udp.Start()
		g.Go(func() error {
			<-ctx.Done()
			return p.udp.Stop()
		})
	}
	g.Go(func() error {
		return p.Scope.Run(ctx, p.cfg.RefreshInterval)
	})

	if err := g.Wait(); err != nil && parent.Err() == nil {
		return err
	}
	return nil
}

// Replay feeds the WAV file at path through the pipeline while Run is
// active, then flushes the final frame to the sinks. Without pacing each
// block is pumped into the scope as soon as it is published, so the bus
// never laps the scope however long the file is.
func (p *Pipeline) Replay(ctx context.Context, path string, opts audio.ReplayOptions) (audio.ReplayStats, error) {
	opts.Meter = p.Meter
	if !opts.Realtime {
		opts.AfterBlock = func() { p.Scope.Refresh() }
	}
	st, err := audio.Replay(ctx, path, p.Bus, opts)
	if err != nil {
		return st, err
	}
	p.Scope.Flush()
	return st, nil
}

// Close stops the transports and detaches the scope from the bus.
func (p *Pipeline) Close() error {
	var errs []error
	if p.udp != nil {
		if err := p.udp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("udp: %w", err))
		}
	}
	// Closes the WebSocket and logging sinks too.
	if err := p.Scope.Close(); err != nil {
		errs = append(errs, fmt.Errorf("scope: %w", err))
	}
	if p.logs != nil {
		applog.Debugf("Pipeline: logged %d frames", p.logs.Sent())
	}
	return errors.Join(errs...)
}
