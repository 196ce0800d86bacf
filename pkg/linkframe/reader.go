// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linkframe

import (
	"bufio"
	"io"
)

// Reader reads frames from a byte stream
type Reader struct {
	r   *bufio.Reader
	dec *Decoder
}

// NewReader creates a frame reader over r
func NewReader(r io.Reader, maxPayload int) *Reader {
	return &Reader{r: bufio.NewReader(r), dec: NewDecoder(maxPayload)}
}

// Next returns the payload of the next complete frame. A frame error
// (ErrCRC, ErrOverflow, ErrFraming) is a *FrameError carrying the damaged
// frame's bytes; it drops only that frame, so the caller may keep calling
// Next. Errors from the underlying reader are
// returned unchanged.
func (fr *Reader) Next() ([]byte, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return nil, err
		}
		payload, err := fr.dec.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			out := make([]byte, len(payload))
			copy(out, payload)
			return out, nil
		}
	}
}
