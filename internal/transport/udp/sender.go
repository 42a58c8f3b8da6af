// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	applog "scope/internal/log"
)

var logger = applog.New("udp")

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("UDP sender is closed")

// UDPSender writes datagrams to one connected peer.
type UDPSender struct {
	target *net.UDPAddr

	mu   sync.Mutex // guards conn
	conn *net.UDPConn

	packets atomic.Uint64
	failed  atomic.Uint64
}

// NewUDPSender resolves targetAddress ("host:port") and connects to it.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}
	logger.Infof("sending to %s from %s", addr, conn.LocalAddr())
	return &UDPSender{target: addr, conn: conn}, nil
}

// Target returns the resolved destination.
func (s *UDPSender) Target() *net.UDPAddr { return s.target }

// Send writes data as one datagram. Failed writes are counted.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to send UDP packet to %s: %w", s.target, err)
	}
	s.packets.Add(1)
	return nil
}

// Counts returns the number of datagrams sent and failed.
func (s *UDPSender) Counts() (sent, failed uint64) {
	return s.packets.Load(), s.failed.Load()
}

// Close closes the connection. Later calls are no-ops.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	sent, failed := s.Counts()
	logger.Debugf("closing connection to %s after %d packets (%d failed)", s.target, sent, failed)
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
