// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkframe

import (
	"errors"
	"fmt"
)

// Frame errors returned by DecodeByte
var (
	ErrCRC      = errors.New("CRC mismatch")
	ErrOverflow = errors.New("frame exceeds max payload")
	ErrFraming  = errors.New("framing error")
)

// FrameError reports a dropped frame. Raw holds the wire bytes received
// for it, framing bytes included.
type FrameError struct {
	Raw []byte
	Err error
}

func (e *FrameError) Error() string { return e.Err.Error() }

func (e *FrameError) Unwrap() error { return e.Err }

// Decoder implements the frame decoder state machine. A Decoder is not safe
// for concurrent use; give each link its own.
type Decoder struct {
	state      int
	maxPayload int
	length     int
	payload    []byte
	crc        uint16
	escapeNext bool
	rawBuffer  []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a frame decoder accepting payloads up to maxPayload
// bytes. A non-positive maxPayload selects DefaultMaxPayload.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if maxPayload > MaxPayload {
		maxPayload = MaxPayload
	}
	return &Decoder{
		state:      stateIdle,
		maxPayload: maxPayload,
		payload:    make([]byte, 0, maxPayload),
		rawBuffer:  make([]byte, 0, 2*(maxPayload+LengthSize+CRCSize)+2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.length = 0
	d.payload = d.payload[:0]
	d.crc = 0
	d.escapeNext = false
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes of the current frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// fail drops the current frame, returning err with a copy of its raw bytes
func (d *Decoder) fail(err error) error {
	raw := make([]byte, len(d.rawBuffer))
	copy(raw, d.GetRawBytes())
	d.Reset()
	return &FrameError{Raw: raw, Err: err}
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns the payload of a completed frame, or nil if the frame is
// incomplete. The returned slice is only valid until the next call.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	if len(d.rawBuffer) < cap(d.rawBuffer) {
		d.rawBuffer = append(d.rawBuffer, b)
	}

	// Framing bytes are never stuffed, so they act immediately
	switch b {
	case StartByte:
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength1
		return nil, nil

	case EndByte:
		if d.state == stateIdle {
			return nil, nil
		}
		if d.state != stateEnd || d.escapeNext {
			return nil, d.fail(fmt.Errorf("%w: unexpected END in state %d", ErrFraming, d.state))
		}
		expected := d.frameCRC()
		if d.crc != expected {
			return nil, d.fail(fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, expected, d.crc))
		}
		payload := d.payload
		d.state = stateIdle
		d.rawBuffer = d.rawBuffer[:0]
		return payload, nil

	case EscByte:
		if d.state == stateIdle {
			return nil, nil
		}
		if d.escapeNext {
			return nil, d.fail(fmt.Errorf("%w: double escape", ErrFraming))
		}
		d.escapeNext = true
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength1:
		d.length = int(b)
		d.state = stateLength2
		return nil, nil

	case stateLength2:
		d.length |= int(b) << 8
		if d.length > d.maxPayload {
			return nil, d.fail(fmt.Errorf("%w: length %d (max %d)", ErrOverflow, d.length, d.maxPayload))
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.payload = append(d.payload, b)
		if len(d.payload) >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	default:
		return nil, d.fail(fmt.Errorf("%w: byte 0x%02X after CRC", ErrFraming, b))
	}
}

func (d *Decoder) frameCRC() uint16 {
	var length [LengthSize]byte
	length[0] = byte(d.length)
	length[1] = byte(d.length >> 8)
	return updateCRC(CalculateCRC(length[:]), d.payload)
}
