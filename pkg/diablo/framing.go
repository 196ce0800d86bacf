// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import "encoding/binary"

// cursor walks a buffer forward. Callers confirm the full byte range before
// creating a cursor, so the put/get methods never see a short buffer.
type cursor struct {
	buf   []byte
	off   int
	order binary.ByteOrder
}

func (c *cursor) putU8(v uint8) {
	c.buf[c.off] = v
	c.off++
}

func (c *cursor) putU32(v uint32) {
	c.order.PutUint32(c.buf[c.off:c.off+4], v)
	c.off += 4
}

func (c *cursor) u8() uint8 {
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *cursor) u32() uint32 {
	v := c.order.Uint32(c.buf[c.off : c.off+4])
	c.off += 4
	return v
}

func (c *cursor) putHeader(h Header) {
	c.putU8(uint8(h.Type))
	c.putU8(h.Version)
	c.putU32(h.Timestamp)
}

func (c *cursor) header() Header {
	return Header{
		Type:      PacketType(c.u8()),
		Version:   c.u8(),
		Timestamp: c.u32(),
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
