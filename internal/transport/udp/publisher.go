// SPDX-License-Identifier: MIT

// Package udp streams the scope's peak-hold view as compact binary packets.
package udp

import (
	"fmt"
	"sync"
	"time"
)

// PeakSource provides the peak view. *scope.Scope satisfies it.
type PeakSource interface {
	CopyPeaks(dst []float32) int
	Buckets() int
}

// UDPPublisher periodically copies the peak view from a PeakSource, packs
// it into the packet format described in packet.go and sends it over UDP
// using a UDPSender. It runs in a separate goroutine managed by Start and
// Stop.
type UDPPublisher struct {
	sender   *UDPSender
	source   PeakSource
	interval time.Duration

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum uint32

	// Pre-allocated so a tick does not allocate.
	peaks  []float32
	packet []byte
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// If the provided interval is invalid (<= 0), it defaults to 33ms (~30Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender, source PeakSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: peak source cannot be nil")
	}

	if interval <= 0 {
		interval = 33 * time.Millisecond
		logger.Warnf("Invalid interval provided, defaulting to %s", interval)
	}

	n := source.Buckets()
	if n > MaxValues {
		logger.Warnf("%d buckets do not fit a datagram, sending the newest %d", n, MaxValues)
	}
	logger.Infof("Initializing (Interval: %s, Buckets: %d)", interval, n)

	return &UDPPublisher{
		sender:   sender,
		source:   source,
		interval: interval,
		peaks:    make([]float32, n),
		packet:   make([]byte, 0, HeaderSize+4*min(n, MaxValues)),
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		logger.Warnf("Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies so the goroutine does not race on the fields.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger.Infof("Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				logger.Debugf("Publisher goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop gracefully signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		logger.Debugf("Stop called but not running.")
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	logger.Infof("Publisher goroutine finished after %d packets.", p.sequenceNum)
	return nil
}

// buildAndSendPacket copies the newest peaks, packs them and sends the
// datagram. Runs on the publisher goroutine only.
func (p *UDPPublisher) buildAndSendPacket() {
	n := p.source.CopyPeaks(p.peaks)
	values := p.peaks[:n]
	if n > MaxValues {
		values = values[n-MaxValues:]
	}

	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, time.Now().UnixNano(), values)

	if err := p.sender.Send(p.packet); err != nil {
		logger.Debugf("packet %d: %v", p.sequenceNum, err)
	}
}

// Close implements the io.Closer interface. It stops the publisher and
// closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

// Ensure UDPPublisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*UDPPublisher)(nil)
