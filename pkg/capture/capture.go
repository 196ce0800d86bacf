// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture reads and writes packet capture files.
//
// A capture file is a CBOR sequence: one Header item followed by one Record
// item per received packet. Records hold the raw packet bytes so a capture
// can be decoded again later with different codec settings.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a capture file
const Magic = "diablo-capture"

// FormatVersion is the capture file layout version
const FormatVersion = 1

// Header is the first item of a capture file
type Header struct {
	Magic     string    `cbor:"1,keyasint"`
	Format    uint      `cbor:"2,keyasint"`
	Created   time.Time `cbor:"3,keyasint"`
	ByteOrder string    `cbor:"4,keyasint,omitempty"`
	Source    string    `cbor:"5,keyasint,omitempty"`
}

// Record is one captured packet
type Record struct {
	Time   time.Time `cbor:"1,keyasint"`
	Source string    `cbor:"2,keyasint,omitempty"`
	Raw    []byte    `cbor:"3,keyasint"`
	// LinkError is set when the transport dropped a damaged frame. Raw then
	// holds the frame's wire bytes as received, framing included, when the
	// transport reports them.
	LinkError string `cbor:"4,keyasint,omitempty"`
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor options: %v", err))
	}
	return em
}

// Writer appends records to a capture stream
type Writer struct {
	enc *cbor.Encoder
}

// NewWriter writes h to w and returns a Writer for the records that follow.
// Magic, Format and Created are filled in when empty.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if h.Magic == "" {
		h.Magic = Magic
	}
	if h.Format == 0 {
		h.Format = FormatVersion
	}
	if h.Created.IsZero() {
		h.Created = time.Now()
	}

	enc := encMode.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Write appends one record
func (w *Writer) Write(r Record) error {
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	return nil
}

// Reader reads records from a capture stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// ErrNotCapture is returned by NewReader for a stream without a capture header
var ErrNotCapture = errors.New("not a capture file")

// NewReader reads and checks the capture header from r
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h Header
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty stream", ErrNotCapture)
		}
		return nil, fmt.Errorf("%w: %v", ErrNotCapture, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrNotCapture, h.Magic)
	}
	if h.Format > FormatVersion {
		return nil, fmt.Errorf("unsupported capture format %d (max %d)", h.Format, FormatVersion)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to read capture record: %w", err)
	}
	return rec, nil
}
