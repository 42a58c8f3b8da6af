// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	applog "scope/internal/log"

	"gopkg.in/yaml.v3"
)

// DefaultPath is searched when LoadConfig is given an empty path.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it looks for DefaultPath in the working directory and falls
// back to built-in defaults when that is missing. Keys absent from the file
// keep their defaults. Environment overrides are applied last, then the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	a := c.Audio
	check(a.InputDevice >= MinDeviceID, "audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	check(a.SampleRate >= MinSampleRate && a.SampleRate <= MaxSampleRate,
		"audio.sample_rate must be within [%d, %d] Hz, got %v", MinSampleRate, MaxSampleRate, a.SampleRate)
	check(a.FramesPerBuffer >= 1 && a.FramesPerBuffer <= MaxBufferFrames,
		"audio.frames_per_buffer must be within [1, %d], got %d", MaxBufferFrames, a.FramesPerBuffer)
	check(a.InputChannels >= 1 && a.InputChannels <= MaxChannels,
		"audio.input_channels must be within [1, %d], got %d", MaxChannels, a.InputChannels)
	check(a.GateThreshold >= 0 && a.GateThreshold <= 1, "audio.gate_threshold must be within [0, 1], got %v", a.GateThreshold)

	check(c.Bus.Capacity >= 1, "bus.capacity must be >= 1, got %d", c.Bus.Capacity)
	check(c.Bus.Capacity >= a.FramesPerBuffer,
		"bus.capacity (%d) must hold at least one buffer of %d frames", c.Bus.Capacity, a.FramesPerBuffer)

	s := c.Scope
	check(s.Buckets >= 1 && s.Buckets <= MaxBuckets, "scope.buckets must be within [1, %d], got %d", MaxBuckets, s.Buckets)
	check(s.Window > 0, "scope.window must be positive, got %s", s.Window)
	check(s.RefreshInterval > 0, "scope.refresh_interval must be positive, got %s", s.RefreshInterval)
	check(s.RMSWindow > 0, "scope.rms_window must be positive, got %s", s.RMSWindow)
	if _, err := s.PeakDecay(); err != nil {
		errs = append(errs, fmt.Errorf("scope.decay: %w", err))
	}
	check(s.HistogramBins >= 1, "scope.histogram_bins must be >= 1, got %d", s.HistogramBins)
	check(s.HistogramLow < s.HistogramHigh,
		"scope.histogram_low (%v) must be below scope.histogram_high (%v)", s.HistogramLow, s.HistogramHigh)
	check(s.HistogramDecayTime >= 0, "scope.histogram_decay_time must not be negative, got %s", s.HistogramDecayTime)
	if _, err := s.Scaling(); err != nil {
		errs = append(errs, fmt.Errorf("scope.histogram_scaling: %w", err))
	}

	m := c.Meter
	check(m.Buckets >= 1 && m.Buckets <= MaxBuckets, "meter.buckets must be within [1, %d], got %d", MaxBuckets, m.Buckets)
	check(m.Window > 0, "meter.window must be positive, got %s", m.Window)
	if _, err := m.PeakDecay(); err != nil {
		errs = append(errs, fmt.Errorf("meter.decay: %w", err))
	}

	t := c.Transport
	if t.UDPEnabled {
		check(strings.Contains(t.UDPTargetAddress, ":"),
			"transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		check(t.UDPSendInterval > 0, "transport.udp_send_interval must be positive when UDP is enabled")
	}
	if t.WebSocketEnabled {
		check(t.WebSocketAddress != "", "transport.websocket_address must be set when the WebSocket transport is enabled")
		check(strings.HasPrefix(t.WebSocketPath, "/"), "transport.websocket_path %q must start with /", t.WebSocketPath)
	}

	return errors.Join(errs...)
}

// EffectiveLogLevel resolves Debug and LogLevel into one level.
func (c *Config) EffectiveLogLevel() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Malformed values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_{...}
	// General overrides.
	envBool("ENV_DEBUG", &c.Debug)
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	// ENV_AUDIO_{...}
	envInt("ENV_AUDIO_INPUT_DEVICE", &c.Audio.InputDevice)
	envFloat("ENV_AUDIO_SAMPLE_RATE", &c.Audio.SampleRate)

	// ENV_WS_{...}
	envBool("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	envString("ENV_WS_ADDRESS", &c.Transport.WebSocketAddress)

	// ENV_UDP_{...}
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Debugf("configuration: %s overrides value with %q", key, val)
	}
}

func envBool(key string, dst *bool) {
	envParse(key, dst, strconv.ParseBool)
}

func envInt(key string, dst *int) {
	envParse(key, dst, strconv.Atoi)
}

func envFloat(key string, dst *float64) {
	envParse(key, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envDuration(key string, dst *time.Duration) {
	envParse(key, dst, time.ParseDuration)
}

func envParse[T any](key string, dst *T, parse func(string) (T, error)) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	v, err := parse(val)
	if err != nil {
		applog.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = v
	applog.Debugf("configuration: %s overrides value with %v", key, v)
}
