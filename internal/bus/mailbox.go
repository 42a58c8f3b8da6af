// SPDX-License-Identifier: MIT
package bus

import "sync/atomic"

const (
	mailboxIndex = 0b011
	mailboxFresh = 0b100
)

// Mailbox hands the latest fixed-size snapshot from one producer goroutine
// to one consumer goroutine with a triple buffer. The producer fills the
// back slot and swaps it into the middle; the consumer swaps the middle
// into its front slot when it is fresh. Neither side ever waits.
//
// A snapshot the consumer never saw is replaced by the next Commit and
// counted in Overwritten.
type Mailbox[T any] struct {
	slots [3][]T
	seqs  [3]uint64

	state atomic.Uint32 // middle slot index | mailboxFresh

	back        int    // producer only
	next        uint64 // producer only
	front       int    // consumer only
	overwritten atomic.Uint64
}

// NewMailbox creates a mailbox whose snapshots hold size elements.
func NewMailbox[T any](size int) *Mailbox[T] {
	m := &Mailbox[T]{back: 0, front: 2}
	for i := range m.slots {
		m.slots[i] = make([]T, size)
	}
	m.state.Store(1)
	return m
}

// Back returns the slot the producer may fill before calling Commit.
func (m *Mailbox[T]) Back() []T { return m.slots[m.back] }

// Commit publishes the back slot as the newest snapshot and hands the
// producer a new back slot.
func (m *Mailbox[T]) Commit() {
	m.next++
	m.seqs[m.back] = m.next
	prev := m.state.Swap(uint32(m.back) | mailboxFresh)
	if prev&mailboxFresh != 0 {
		m.overwritten.Add(1)
	}
	m.back = int(prev & mailboxIndex)
}

// Publish copies src into the back slot and commits it.
func (m *Mailbox[T]) Publish(src []T) {
	copy(m.Back(), src)
	m.Commit()
}

// Poll copies the newest snapshot into dst if one was committed since the
// last Poll. seq numbers commits from 1 and only ever increases.
func (m *Mailbox[T]) Poll(dst []T) (seq uint64, ok bool) {
	if m.state.Load()&mailboxFresh == 0 {
		return 0, false
	}
	prev := m.state.Swap(uint32(m.front))
	m.front = int(prev & mailboxIndex)
	copy(dst, m.slots[m.front])
	return m.seqs[m.front], true
}

// Front returns the snapshot returned by the last successful Poll. It is
// owned by the consumer until the next Poll.
func (m *Mailbox[T]) Front() []T { return m.slots[m.front] }

// Overwritten returns how many snapshots were replaced before the consumer
// polled them.
func (m *Mailbox[T]) Overwritten() uint64 { return m.overwritten.Load() }
