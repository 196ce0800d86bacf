// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"errors"
	"fmt"
)

// Failure kinds reported by encode and decode operations. Operations return
// a *CodecError wrapping one of these; test with errors.Is.
var (
	ErrBufferTooSmall  = errors.New("buffer too small")
	ErrTypeMismatch    = errors.New("packet type mismatch")
	ErrCountOutOfRange = errors.New("count out of range")
	ErrTruncated       = errors.New("truncated packet")
	ErrUnknownTag      = errors.New("unknown enumeration tag")
	ErrFieldConflict   = errors.New("field conflicts with flag")
)

// CodecError describes a failed encode or decode operation
type CodecError struct {
	Op    string     // "encode" or "decode"
	Type  PacketType // packet type being processed
	Field string     // offending field, if any
	Need  int        // required size or expected value
	Have  int        // actual size or value
	Err   error      // one of the Err* kinds
}

// Error implements the error interface
func (e *CodecError) Error() string {
	msg := fmt.Sprintf("diablo: %s %s: %v", e.Op, FormatPacketType(e.Type), e.Err)
	switch {
	case errors.Is(e.Err, ErrBufferTooSmall), errors.Is(e.Err, ErrTruncated):
		msg += fmt.Sprintf(" (need %d bytes, have %d)", e.Need, e.Have)
	case errors.Is(e.Err, ErrTypeMismatch):
		msg += fmt.Sprintf(" (want %s, got %s)", FormatPacketType(PacketType(e.Need)), FormatPacketType(PacketType(e.Have)))
	case e.Field != "":
		msg += fmt.Sprintf(" (%s=%d)", e.Field, e.Have)
	}
	return msg
}

// Unwrap returns the failure kind
func (e *CodecError) Unwrap() error {
	return e.Err
}

func sizeError(op string, t PacketType, kind error, need, have int) error {
	return &CodecError{Op: op, Type: t, Err: kind, Need: need, Have: have}
}

func fieldError(op string, t PacketType, kind error, field string, value int) error {
	return &CodecError{Op: op, Type: t, Err: kind, Field: field, Have: value}
}

func mismatchError(want, got PacketType) error {
	return &CodecError{Op: "decode", Type: want, Err: ErrTypeMismatch, Need: int(want), Have: int(got)}
}
