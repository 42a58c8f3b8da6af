// SPDX-License-Identifier: MIT
/*
Package audio captures input with PortAudio, or replays a WAV file, and
feeds the mono signal to the sample bus and the level-meter tap.

Thread Safety:
  - The PortAudio callback is the bus producer; it never blocks or
    allocates and only touches preallocated buffers.
  - Gate state is atomic so it can be changed while the stream runs.
  - Stream start/stop and Close belong to the owning goroutine.
*/
package audio

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"scope/internal/bus"
	"scope/internal/config"
	applog "scope/internal/log"
	"scope/internal/scope"

	"github.com/gordonklaus/portaudio"
)

// Engine owns one PortAudio input stream.
type Engine struct {
	config config.AudioConfig

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream
	channels     int

	// Downstream consumers of the mono signal.
	bus   *bus.Bus
	meter *scope.Tap[float32] // nil disables the meter
	mono  []float32           // one downmixed block

	// Noise gate for signal conditioning.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint32 // float32 bits, fraction of full scale

	blocks atomic.Uint64
	gated  atomic.Uint64
}

// Stats counts callback activity.
type Stats struct {
	Blocks uint64 `json:"blocks"`
	Gated  uint64 `json:"gated"`
}

// NewEngine resolves the configured input device and prepares buffers. The
// stream is opened by StartInputStream.
func NewEngine(cfg config.AudioConfig, b *bus.Bus, meter *scope.Tap[float32]) (*Engine, error) {
	if b == nil {
		return nil, fmt.Errorf("audio engine needs a bus")
	}
	device, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, device, b, meter), nil
}

func newEngine(cfg config.AudioConfig, device *portaudio.DeviceInfo, b *bus.Bus, meter *scope.Tap[float32]) *Engine {
	channels := cfg.InputChannels
	if device.MaxInputChannels > 0 && channels > device.MaxInputChannels {
		applog.Warnf("audio: %s has %d input channels, capturing %d instead of %d",
			device.Name, device.MaxInputChannels, device.MaxInputChannels, channels)
		channels = device.MaxInputChannels
	}

	e := &Engine{
		config:      cfg,
		inputDevice: device,
		channels:    channels,
		bus:         b,
		meter:       meter,
		mono:        make([]float32, cfg.FramesPerBuffer),
	}
	if cfg.LowLatency {
		e.inputLatency = device.DefaultLowInputLatency
	} else {
		e.inputLatency = device.DefaultHighInputLatency
	}
	e.gateEnabled.Store(cfg.GateEnabled)
	e.SetGateThreshold(cfg.GateThreshold)
	return e
}

// StartInputStream opens and starts the capture stream, then announces the
// rate the device actually runs at to the bus and the meter.
func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.channels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %s: %w", e.inputDevice.Name, err)
	}
	e.inputStream = stream

	rate := e.config.SampleRate
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		rate = info.SampleRate
	}
	if err := e.setSampleRate(rate); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return err
	}

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	applog.Infof("audio: capturing %d channel(s) from %s at %.0f Hz, %d frames per buffer",
		e.channels, e.inputDevice.Name, rate, e.config.FramesPerBuffer)
	return nil
}

func (e *Engine) setSampleRate(rate float64) error {
	if err := e.bus.SetSampleRate(rate); err != nil {
		return err
	}
	if e.meter != nil {
		return e.meter.SetSampleRate(rate)
	}
	return nil
}

// StopInputStream stops and closes the stream. Calling it without a running
// stream is a no-op.
func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
	}

	return nil
}

// Close releases the stream.
func (e *Engine) Close() error {
	return e.StopInputStream()
}

// Stats returns the callback counters.
func (e *Engine) Stats() Stats {
	return Stats{Blocks: e.blocks.Load(), Gated: e.gated.Load()}
}

// Channels returns the number of captured channels.
func (e *Engine) Channels() int { return e.channels }

// processInputStream is the PortAudio callback. in holds interleaved
// frames for all captured channels.
func (e *Engine) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.processBlock(in)
}

// processBlock downmixes, gates and publishes one callback buffer.
// Performance Critical (Hot Path):
// - No allocations
// - No locks or logging
func (e *Engine) processBlock(in []float32) {
	n := bus.Downmix(e.mono, in, e.channels)
	block := e.mono[:n]

	if e.gate(block) {
		e.gated.Add(1)
	}
	e.bus.PublishBlock(block)
	if e.meter != nil {
		e.meter.Process(block)
	}
	e.blocks.Add(1)
}
