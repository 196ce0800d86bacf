// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import "fmt"

// Encoder writes Diablo packets into caller-supplied buffers.
// An Encoder is immutable and safe for concurrent use on distinct buffers.
type Encoder struct {
	s settings
}

// NewEncoder creates a new Diablo packet encoder.
func NewEncoder(opts ...Option) *Encoder {
	return &Encoder{s: newSettings(opts)}
}

// Version returns the protocol version this encoder writes
func (e *Encoder) Version() uint8 {
	return e.s.version
}

// begin checks capacity and writes the header. Nothing is written when the
// buffer is too small.
func (e *Encoder) begin(buf []byte, t PacketType, size int) (*cursor, error) {
	if len(buf) < size {
		return nil, sizeError("encode", t, ErrBufferTooSmall, size, len(buf))
	}
	c := &cursor{buf: buf[:size], order: e.s.order}
	c.putHeader(Header{Type: t, Version: e.s.version, Timestamp: e.s.clock()})
	return c, nil
}

// EncodeBoardHeartbeat writes a BOARD_HEARTBEAT packet and returns its size
func (e *Encoder) EncodeBoardHeartbeat(buf []byte, v BoardHeartbeat) (int, error) {
	t := PacketBoardHeartbeat
	if !v.BoardType.Valid() {
		return 0, fieldError("encode", t, ErrUnknownTag, "board_type", int(v.BoardType))
	}
	if !v.EngineState.Valid() {
		return 0, fieldError("encode", t, ErrUnknownTag, "engine_state", int(v.EngineState))
	}
	if !v.BoardState.Valid() {
		return 0, fieldError("encode", t, ErrUnknownTag, "board_state", int(v.BoardState))
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(uint8(v.BoardType))
	c.putU8(v.BoardID)
	c.putU8(uint8(v.EngineState))
	c.putU8(uint8(v.BoardState))
	return c.off, nil
}

// EncodeServerHeartbeat writes a SERVER_HEARTBEAT packet and returns its size
func (e *Encoder) EncodeServerHeartbeat(buf []byte, v ServerHeartbeat) (int, error) {
	t := PacketServerHeartbeat
	if !v.EngineState.Valid() {
		return 0, fieldError("encode", t, ErrUnknownTag, "engine_state", int(v.EngineState))
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(uint8(v.EngineState))
	return c.off, nil
}

// EncodeSensorData writes a SENSOR_DATA packet and returns its size.
// Every chunk must hold exactly NumSensors datapoints.
func (e *Encoder) EncodeSensorData(buf []byte, v SensorData) (int, error) {
	t := PacketSensorData
	numChunks := len(v.Chunks)
	if numChunks > MaxCount {
		return 0, fieldError("encode", t, ErrCountOutOfRange, "num_chunks", numChunks)
	}
	if numChunks == 0 && e.s.policy.RejectEmptySensorData {
		return 0, fieldError("encode", t, ErrCountOutOfRange, "num_chunks", 0)
	}
	for _, chunk := range v.Chunks {
		if len(chunk.Datapoints) != int(v.NumSensors) {
			return 0, fieldError("encode", t, ErrCountOutOfRange, "num_datapoints", len(chunk.Datapoints))
		}
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(uint8(numChunks))
	c.putU8(v.NumSensors)
	for _, chunk := range v.Chunks {
		c.putU32(chunk.Timestamp)
		for _, dp := range chunk.Datapoints {
			c.putU8(dp.SensorID)
			c.putU32(dp.Value)
		}
	}
	return c.off, nil
}

// EncodeActuatorCommands writes an ACTUATOR_COMMAND packet and returns its
// size. The command list must hold between 1 and 255 commands.
func (e *Encoder) EncodeActuatorCommands(buf []byte, v ActuatorCommands) (int, error) {
	t := PacketActuatorCommand
	if len(v) == 0 || len(v) > MaxCount {
		return 0, fieldError("encode", t, ErrCountOutOfRange, "num_commands", len(v))
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(uint8(len(v)))
	for _, cmd := range v {
		c.putU8(cmd.ActuatorID)
		c.putU8(cmd.State)
	}
	return c.off, nil
}

// EncodeSensorConfig writes a SENSOR_CONFIG packet and returns its size.
// The controller address is only written for abort participants; a nonzero
// address on a non-participant is rejected since it would not survive.
func (e *Encoder) EncodeSensorConfig(buf []byte, v SensorConfig) (int, error) {
	t := PacketSensorConfig
	n := len(v.SensorIDs)
	if n > MaxCount || (n == 0 && !e.s.policy.AllowEmptySensorConfig) {
		return 0, fieldError("encode", t, ErrCountOutOfRange, "num_sensors", n)
	}
	if !v.NecessaryForAbort && v.ControllerIP != 0 {
		return 0, fieldError("encode", t, ErrFieldConflict, "controller_ip", int(v.ControllerIP))
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(uint8(n))
	for _, id := range v.SensorIDs {
		c.putU8(id)
	}
	c.putU8(boolByte(v.NecessaryForAbort))
	if v.NecessaryForAbort {
		c.putU32(v.ControllerIP)
	}
	return c.off, nil
}

// EncodeActuatorConfig writes an ACTUATOR_CONFIG packet and returns its size
func (e *Encoder) EncodeActuatorConfig(buf []byte, v ActuatorConfig) (int, error) {
	t := PacketActuatorConfig
	for _, a := range v.Actuators {
		if !a.Purpose.Valid() {
			return 0, fieldError("encode", t, ErrUnknownTag, "actuator_purpose", int(a.Purpose))
		}
	}
	for _, p := range v.PTs {
		if !p.Purpose.Valid() {
			return 0, fieldError("encode", t, ErrUnknownTag, "pt_purpose", int(p.Purpose))
		}
	}
	if actuators, pts := v.UsedSlots(); actuators+pts == 0 && !e.s.policy.AllowEmptyAbortTables {
		return 0, fieldError("encode", t, ErrCountOutOfRange, "abort_slots", 0)
	}

	c, err := e.begin(buf, t, v.WireSize())
	if err != nil {
		return 0, err
	}
	c.putU8(boolByte(v.IsAbortController))
	for _, a := range v.Actuators {
		c.putU32(a.IP)
		c.putU8(a.ActuatorID)
		c.putU8(uint8(a.Purpose))
	}
	for _, p := range v.PTs {
		c.putU32(p.IP)
		c.putU8(p.SensorID)
		c.putU8(uint8(p.Purpose))
	}
	return c.off, nil
}

// EncodeAbort writes an ABORT packet and returns its size
func (e *Encoder) EncodeAbort(buf []byte) (int, error) {
	return e.encodeHeaderOnly(buf, PacketAbort)
}

// EncodeAbortDone writes an ABORT_DONE packet and returns its size
func (e *Encoder) EncodeAbortDone(buf []byte) (int, error) {
	return e.encodeHeaderOnly(buf, PacketAbortDone)
}

// EncodeClearAbort writes a CLEAR_ABORT packet and returns its size
func (e *Encoder) EncodeClearAbort(buf []byte) (int, error) {
	return e.encodeHeaderOnly(buf, PacketClearAbort)
}

func (e *Encoder) encodeHeaderOnly(buf []byte, t PacketType) (int, error) {
	c, err := e.begin(buf, t, HeaderSize)
	if err != nil {
		return 0, err
	}
	return c.off, nil
}

// Encode writes any body using the operation for its packet type
func (e *Encoder) Encode(buf []byte, body Body) (int, error) {
	switch v := body.(type) {
	case BoardHeartbeat:
		return e.EncodeBoardHeartbeat(buf, v)
	case ServerHeartbeat:
		return e.EncodeServerHeartbeat(buf, v)
	case SensorData:
		return e.EncodeSensorData(buf, v)
	case *SensorData:
		if v == nil {
			return 0, fmt.Errorf("diablo: encode: nil *SensorData")
		}
		return e.EncodeSensorData(buf, *v)
	case ActuatorCommands:
		return e.EncodeActuatorCommands(buf, v)
	case SensorConfig:
		return e.EncodeSensorConfig(buf, v)
	case ActuatorConfig:
		return e.EncodeActuatorConfig(buf, v)
	case Abort:
		return e.EncodeAbort(buf)
	case AbortDone:
		return e.EncodeAbortDone(buf)
	case ClearAbort:
		return e.EncodeClearAbort(buf)
	default:
		return 0, fmt.Errorf("diablo: encode: unsupported body %T", body)
	}
}

// Marshal encodes a body into a newly allocated buffer of exactly its size
func (e *Encoder) Marshal(body Body) ([]byte, error) {
	if body == nil {
		return nil, fmt.Errorf("diablo: encode: nil body")
	}
	if v, ok := body.(*SensorData); ok && v == nil {
		return nil, fmt.Errorf("diablo: encode: nil *SensorData")
	}
	buf := make([]byte, body.WireSize())
	n, err := e.Encode(buf, body)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
