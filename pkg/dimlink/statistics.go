// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Counters is a point-in-time copy of link statistics
type Counters struct {
	StartTime time.Time

	TotalFrames     uint64
	ValidFrames     uint64
	ChecksumErrors  uint64
	MarkerErrors    uint64
	OverflowErrors  uint64
	CounterWarnings uint64
	UnknownCommands uint64
	Transactions    uint64
	BytesSent       uint64
	BytesReceived   uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// Errors returns the number of frames discarded by the decoder
func (c Counters) Errors() uint64 {
	return c.ChecksumErrors + c.MarkerErrors + c.OverflowErrors
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	var validPercent float64
	if c.TotalFrames > 0 {
		validPercent = float64(c.ValidFrames) * 100.0 / float64(c.TotalFrames)
	}

	var s strings.Builder
	fmt.Fprintf(&s, "=== Link Statistics (%.0f seconds) ===\n", time.Since(c.StartTime).Seconds())
	fmt.Fprintf(&s, "Transactions:    %8d\n", c.Transactions)
	fmt.Fprintf(&s, "Total Frames:    %8d\n", c.TotalFrames)
	fmt.Fprintf(&s, "Valid Frames:    %8d (%.1f%%)\n", c.ValidFrames, validPercent)
	if c.ChecksumErrors > 0 {
		fmt.Fprintf(&s, "Checksum Errors: %8d\n", c.ChecksumErrors)
	}
	if c.MarkerErrors > 0 {
		fmt.Fprintf(&s, "Marker Errors:   %8d\n", c.MarkerErrors)
	}
	if c.OverflowErrors > 0 {
		fmt.Fprintf(&s, "Overflows:       %8d\n", c.OverflowErrors)
	}
	if c.CounterWarnings > 0 {
		fmt.Fprintf(&s, "Counter Warn:    %8d\n", c.CounterWarnings)
	}
	if c.UnknownCommands > 0 {
		fmt.Fprintf(&s, "Unknown Cmds:    %8d\n", c.UnknownCommands)
	}
	fmt.Fprintf(&s, "Bytes TX/RX:     %8d / %d\n", c.BytesSent, c.BytesReceived)
	fmt.Fprintf(&s, "Frame Rate:      %8.1f frames/sec\n", c.FrameRate)
	fmt.Fprintf(&s, "Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	s.WriteString("=====================================\n")
	return s.String()
}

// Statistics tracks link activity. It is safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// Update records the outcome of one decoder event
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	if frame == nil && decodeErr == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalFrames++
	switch {
	case decodeErr == nil:
		s.c.ValidFrames++
	case errors.Is(decodeErr, ErrChecksumMismatch):
		s.c.ChecksumErrors++
	case errors.Is(decodeErr, ErrPayloadOverflow), errors.Is(decodeErr, ErrBufferOverflow):
		s.c.OverflowErrors++
	default:
		s.c.MarkerErrors++
	}
}

// RecordCounterWarning counts a reply whose counter did not echo the request
func (s *Statistics) RecordCounterWarning() {
	s.mu.Lock()
	s.c.CounterWarnings++
	s.mu.Unlock()
}

// RecordUnknownCommand counts a reply carrying an unknown command id
func (s *Statistics) RecordUnknownCommand() {
	s.mu.Lock()
	s.c.UnknownCommands++
	s.mu.Unlock()
}

// RecordTransaction counts a completed request/response cycle
func (s *Statistics) RecordTransaction(sent int) {
	s.mu.Lock()
	s.c.Transactions++
	s.c.BytesSent += uint64(sent)
	s.mu.Unlock()
}

// RecordReceived counts raw bytes read from the link
func (s *Statistics) RecordReceived(n int) {
	s.mu.Lock()
	s.c.BytesReceived += uint64(n)
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.FrameRate = float64(c.TotalFrames) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}
