// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"scope/internal/scope"
)

// LoggingTransport implements the Transport interface by logging a one-line
// summary of every frame.
type LoggingTransport struct {
	sent   atomic.Uint64
	closed atomic.Bool
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Infof("Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data. Frames are summarised; anything else is logged by type at
// debug level.
func (lt *LoggingTransport) Send(data any) error {
	if lt.closed.Load() {
		return ErrClosed
	}
	lt.sent.Add(1)

	switch v := data.(type) {
	case scope.Frame:
		lt.logFrame(&v)
	case *scope.Frame:
		lt.logFrame(v)
	default:
		logger.Debugf("Received %T", data)
	}
	return nil
}

func (lt *LoggingTransport) logFrame(f *scope.Frame) {
	var peak, level float32
	if n := len(f.Peaks); n > 0 {
		peak = f.Peaks[n-1]
	}
	if n := len(f.Levels); n > 0 {
		level = f.Levels[n-1]
	}
	logger.Infof("frame %d @ %.0f Hz: peak %.3f, rms %.3f, %d buckets, dropped %d",
		f.Seq, f.SampleRate, peak, level, len(f.Peaks), f.Dropped)
}

// Sent returns the number of payloads accepted.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close stops the transport.
func (lt *LoggingTransport) Close() error {
	if !lt.closed.Swap(true) {
		logger.Debugf("Close called after %d payloads.", lt.sent.Load())
	}
	return nil
}

// Ensure LoggingTransport satisfies the interfaces at compile time.
var (
	_ Transport  = (*LoggingTransport)(nil)
	_ scope.Sink = (*LoggingTransport)(nil)
)
