// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the capture engine and the scope views.
const (
	DefaultDeviceID        = MinDeviceID // system default input
	DefaultChannels        = 2
	DefaultFramesPerBuffer = 512
	DefaultLowLatency      = false
	DefaultSampleRate      = 44100
	DefaultGateThreshold   = 0.001 // ~-60 dBFS
	DefaultBusCapacity     = 16384
	DefaultBuckets         = 800
	DefaultWindow          = 10 * time.Second
	DefaultRefreshInterval = 16 * time.Millisecond // ~60 Hz
	DefaultLogLevel        = "info"

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxChannels     = 32
	MaxBuckets      = 1 << 16
)

// Config represents the main application configuration structure, loaded
// from YAML and overridden by environment variables and command line flags.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Shorthand for log_level: debug.
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error.
	Audio     AudioConfig     `yaml:"audio"`
	Bus       BusConfig       `yaml:"bus"`
	Scope     ScopeConfig     `yaml:"scope"`
	Meter     MeterConfig     `yaml:"meter"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Requested capture rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback (latency).
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured, downmixed to mono.
	GateEnabled     bool    `yaml:"gate_enabled"`      // Replace blocks below the threshold with silence.
	GateThreshold   float64 `yaml:"gate_threshold"`    // 0.0-1.0 of full scale.
}

// BusConfig sizes the hand-off ring between the audio callback and the
// scope.
type BusConfig struct {
	Capacity int `yaml:"capacity"` // Samples, rounded up to a power of two.
}

// ScopeConfig describes the consumer-side views.
type ScopeConfig struct {
	Buckets         int           `yaml:"buckets"`
	Window          time.Duration `yaml:"window"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Decay           string        `yaml:"decay"` // off, exponential, linear
	DecayTime       time.Duration `yaml:"decay_time"`
	RMSWindow       time.Duration `yaml:"rms_window"`

	HistogramBins      int           `yaml:"histogram_bins"`
	HistogramLow       float64       `yaml:"histogram_low"`
	HistogramHigh      float64       `yaml:"histogram_high"`
	HistogramScaling   string        `yaml:"histogram_scaling"`    // linear, decibels
	HistogramDecayTime time.Duration `yaml:"histogram_decay_time"` // 0 keeps lifetime counts
}

// MeterConfig describes the level meter computed inside the audio callback.
type MeterConfig struct {
	Buckets   int           `yaml:"buckets"`
	Window    time.Duration `yaml:"window"`
	Decay     string        `yaml:"decay"`
	DecayTime time.Duration `yaml:"decay_time"`
}

// TransportConfig holds settings for streaming frames out of the process.
type TransportConfig struct {
	LogFrames bool `yaml:"log_frames"` // Log a summary of every frame.

	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"` // Listen address, e.g. ":8080".
	WebSocketPath    string `yaml:"websocket_path"`

	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send peak packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration used when no file is found
// and as the base every file is merged onto.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
			GateEnabled:     false,
			GateThreshold:   DefaultGateThreshold,
		},
		Bus: BusConfig{
			Capacity: DefaultBusCapacity,
		},
		Scope: ScopeConfig{
			Buckets:            DefaultBuckets,
			Window:             DefaultWindow,
			RefreshInterval:    DefaultRefreshInterval,
			Decay:              "exponential",
			DecayTime:          300 * time.Millisecond,
			RMSWindow:          300 * time.Millisecond,
			HistogramBins:      120,
			HistogramLow:       -96,
			HistogramHigh:      24,
			HistogramScaling:   "decibels",
			HistogramDecayTime: 2 * time.Second,
		},
		Meter: MeterConfig{
			Buckets:   32,
			Window:    time.Second,
			Decay:     "exponential",
			DecayTime: 300 * time.Millisecond,
		},
		Transport: TransportConfig{
			WebSocketAddress: ":8080",
			WebSocketPath:    "/ws",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30 Hz
		},
	}
}
