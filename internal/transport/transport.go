// SPDX-License-Identifier: MIT

// Package transport moves scope frames out of the process. Every transport
// satisfies scope.Sink, so a Scope's Run loop can fan frames out to them.
package transport

import (
	"errors"

	applog "scope/internal/log"
)

var logger = applog.New("transport")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller on a
// slow peer.
type Transport interface {
	Send(data any) error
	Close() error
}
