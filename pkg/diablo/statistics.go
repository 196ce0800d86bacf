// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks packet statistics and error rates. It is safe for
// concurrent use.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// Counters holds the tallies of a Statistics tracker
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets   uint64
	ValidPackets   uint64
	ByType         map[PacketType]uint64
	BufferTooSmall uint64
	TypeMismatches uint64
	CountErrors    uint64
	Truncated      uint64
	UnknownTags    uint64
	LinkErrors     uint64
	OtherErrors    uint64
	Anomalies      map[AnomalyType]uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.reset()
	return s
}

// Update updates statistics based on a packet and its errors. packet may be
// nil when decodeErr is set.
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalPackets++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrBufferTooSmall):
			s.BufferTooSmall++
		case errors.Is(decodeErr, ErrTypeMismatch):
			s.TypeMismatches++
		case errors.Is(decodeErr, ErrCountOutOfRange):
			s.CountErrors++
		case errors.Is(decodeErr, ErrTruncated):
			s.Truncated++
		case errors.Is(decodeErr, ErrUnknownTag):
			s.UnknownTags++
		default:
			s.OtherErrors++
		}
		return
	}

	if packet != nil {
		s.ByType[packet.Header.Type]++
	}

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}
	for _, v := range validationErrors {
		s.Anomalies[v.Type]++
	}
}

// LinkError counts a frame lost below the packet layer, such as a CRC
// failure on a serial link
func (s *Statistics) LinkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalPackets++
	s.LinkErrors++
	s.LastUpdateTime = time.Now()
}

func (s *Counters) decodeErrors() uint64 {
	return s.BufferTooSmall + s.TypeMismatches + s.CountErrors + s.Truncated + s.UnknownTags + s.OtherErrors
}

func (s *Counters) anomalous() uint64 {
	return s.TotalPackets - s.ValidPackets - s.decodeErrors() - s.LinkErrors
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
}

func (s *Counters) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.TotalPackets-s.ValidPackets) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()
	return c.String()
}

// String returns a formatted summary of the counters
func (s *Counters) String() string {
	pct := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, pct(s.ValidPackets))

	for t := PacketBoardHeartbeat; t <= PacketClearAbort; t++ {
		if n := s.ByType[t]; n > 0 {
			result += fmt.Sprintf("  %-18s %6d\n", FormatPacketType(t)+":", n)
		}
	}

	if s.LinkErrors > 0 {
		result += fmt.Sprintf("Link Errors:     %8d (%.1f%%)\n", s.LinkErrors, pct(s.LinkErrors))
	}
	if n := s.decodeErrors(); n > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", n, pct(n))
		if s.BufferTooSmall > 0 {
			result += fmt.Sprintf("  Too Small:        %5d\n", s.BufferTooSmall)
		}
		if s.TypeMismatches > 0 {
			result += fmt.Sprintf("  Type Mismatch:    %5d\n", s.TypeMismatches)
		}
		if s.CountErrors > 0 {
			result += fmt.Sprintf("  Bad Count:        %5d\n", s.CountErrors)
		}
		if s.Truncated > 0 {
			result += fmt.Sprintf("  Truncated:        %5d\n", s.Truncated)
		}
		if s.UnknownTags > 0 {
			result += fmt.Sprintf("  Unknown Tag:      %5d\n", s.UnknownTags)
		}
		if s.OtherErrors > 0 {
			result += fmt.Sprintf("  Other:            %5d\n", s.OtherErrors)
		}
	}
	if n := s.anomalous(); n > 0 {
		result += fmt.Sprintf("Anomalous Pkts:  %8d (%.1f%%)\n", n, pct(n))
		for a := AnomalyVersionMismatch; a <= AnomalyMissingController; a++ {
			if c := s.Anomalies[a]; c > 0 {
				result += fmt.Sprintf("  %-18s %5d\n", a.String()+":", c)
			}
		}
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Counters) reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalPackets = 0
	s.ValidPackets = 0
	s.ByType = make(map[PacketType]uint64)
	s.BufferTooSmall = 0
	s.TypeMismatches = 0
	s.CountErrors = 0
	s.Truncated = 0
	s.UnknownTags = 0
	s.LinkErrors = 0
	s.OtherErrors = 0
	s.Anomalies = make(map[AnomalyType]uint64)
	s.PacketRate = 0
	s.ErrorRate = 0
}

// Snapshot returns a copy of the counters that is safe to read while
// updates continue
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()

	c := s.Counters
	c.ByType = make(map[PacketType]uint64, len(s.ByType))
	for k, v := range s.ByType {
		c.ByType[k] = v
	}
	c.Anomalies = make(map[AnomalyType]uint64, len(s.Anomalies))
	for k, v := range s.Anomalies {
		c.Anomalies[k] = v
	}
	return c
}
