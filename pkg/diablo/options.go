// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"encoding/binary"
	"time"
)

// Clock returns the header timestamp for a packet being encoded
type Clock func() uint32

// Policy decides whether degenerate packets are valid. The zero value is
// the default policy.
type Policy struct {
	// RejectEmptySensorData makes a SENSOR_DATA packet with no chunks an error.
	RejectEmptySensorData bool
	// AllowEmptyCommands lets the decoder accept num_commands == 0.
	// Encoding an empty command list always fails.
	AllowEmptyCommands bool
	// AllowEmptySensorConfig accepts a SENSOR_CONFIG with no sensors.
	AllowEmptySensorConfig bool
	// AllowEmptyAbortTables accepts an ACTUATOR_CONFIG whose abort tables
	// contain only unused slots.
	AllowEmptyAbortTables bool
}

type settings struct {
	version uint8
	order   binary.ByteOrder
	clock   Clock
	policy  Policy
}

// Option configures an Encoder or Decoder
type Option func(*settings)

// WithVersion sets the protocol version written into headers
func WithVersion(v uint8) Option {
	return func(s *settings) {
		s.version = v
	}
}

// WithByteOrder sets the byte order of multi-byte fields. Every participant
// on a network must use the same order.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(s *settings) {
		if order != nil {
			s.order = order
		}
	}
}

// WithClock sets the header timestamp source
func WithClock(c Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPolicy sets the degenerate-packet policy
func WithPolicy(p Policy) Option {
	return func(s *settings) {
		s.policy = p
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		version: DefaultVersion,
		order:   binary.LittleEndian,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.clock == nil {
		s.clock = MillisClock(time.Now())
	}
	return s
}

// MillisClock returns a clock counting milliseconds since start, wrapping at
// 2^32 like a board millisecond counter
func MillisClock(start time.Time) Clock {
	return func() uint32 {
		return uint32(time.Since(start).Milliseconds())
	}
}

// FixedClock returns a clock that always reports ts
func FixedClock(ts uint32) Clock {
	return func() uint32 {
		return ts
	}
}
