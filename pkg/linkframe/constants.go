// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linkframe frames whole packets for byte-stream links such as a
// serial port.
//
// A frame is START, then the byte-stuffed length (u16 little-endian),
// payload and CRC-16-CCITT (u16 big-endian), then END. The CRC covers the
// length and payload. Any START seen mid-frame resynchronizes the decoder.
package linkframe

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Size limits
const (
	LengthSize = 2
	CRCSize    = 2

	// DefaultMaxPayload bounds payloads accepted by NewDecoder. It matches
	// the largest packet the stand firmware will send.
	DefaultMaxPayload = 512

	// MaxPayload is the largest payload the length field can describe
	MaxPayload = 0xFFFF
)

// CRC parameters
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Decoder states
const (
	stateIdle = iota
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
