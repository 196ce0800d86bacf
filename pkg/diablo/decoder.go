// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

// Decoder validates and decodes Diablo packets. Each operation decodes one
// expected packet type; the buffer must hold one whole packet.
// A Decoder is immutable and safe for concurrent use.
type Decoder struct {
	s settings
}

// NewDecoder creates a new protocol decoder
func NewDecoder(opts ...Option) *Decoder {
	return &Decoder{s: newSettings(opts)}
}

// DecodeHeader reads the header of buf. Any 6 bytes form a structurally
// valid header; callers check the type before trusting the body.
func (d *Decoder) DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, sizeError("decode", 0, ErrBufferTooSmall, HeaderSize, len(buf))
	}
	c := cursor{buf: buf, order: d.s.order}
	return c.header(), nil
}

// PeekType returns the packet type of buf without decoding the rest
func PeekType(buf []byte) (PacketType, error) {
	if len(buf) < HeaderSize {
		return 0, sizeError("decode", 0, ErrBufferTooSmall, HeaderSize, len(buf))
	}
	t := PacketType(buf[offType])
	if !t.Valid() {
		return t, fieldError("decode", t, ErrUnknownTag, "packet_type", int(t))
	}
	return t, nil
}

// open checks the fixed size and type of buf and returns a cursor positioned
// after the header
func (d *Decoder) open(buf []byte, want PacketType, fixedBody int) (*cursor, Header, error) {
	need := HeaderSize + fixedBody
	if len(buf) < need {
		return nil, Header{}, sizeError("decode", want, ErrBufferTooSmall, need, len(buf))
	}
	c := &cursor{buf: buf, order: d.s.order}
	h := c.header()
	if h.Type != want {
		return nil, Header{}, mismatchError(want, h.Type)
	}
	return c, h, nil
}

// DecodeBoardHeartbeat decodes a BOARD_HEARTBEAT packet
func (d *Decoder) DecodeBoardHeartbeat(buf []byte) (Header, BoardHeartbeat, error) {
	t := PacketBoardHeartbeat
	c, h, err := d.open(buf, t, BoardHeartbeatBodySize)
	if err != nil {
		return Header{}, BoardHeartbeat{}, err
	}

	v := BoardHeartbeat{
		BoardType:   BoardType(c.u8()),
		BoardID:     c.u8(),
		EngineState: EngineState(c.u8()),
		BoardState:  BoardState(c.u8()),
	}
	if !v.BoardType.Valid() {
		return Header{}, BoardHeartbeat{}, fieldError("decode", t, ErrUnknownTag, "board_type", int(v.BoardType))
	}
	if !v.EngineState.Valid() {
		return Header{}, BoardHeartbeat{}, fieldError("decode", t, ErrUnknownTag, "engine_state", int(v.EngineState))
	}
	if !v.BoardState.Valid() {
		return Header{}, BoardHeartbeat{}, fieldError("decode", t, ErrUnknownTag, "board_state", int(v.BoardState))
	}
	return h, v, nil
}

// DecodeServerHeartbeat decodes a SERVER_HEARTBEAT packet
func (d *Decoder) DecodeServerHeartbeat(buf []byte) (Header, ServerHeartbeat, error) {
	t := PacketServerHeartbeat
	c, h, err := d.open(buf, t, ServerHeartbeatBodySize)
	if err != nil {
		return Header{}, ServerHeartbeat{}, err
	}

	v := ServerHeartbeat{EngineState: EngineState(c.u8())}
	if !v.EngineState.Valid() {
		return Header{}, ServerHeartbeat{}, fieldError("decode", t, ErrUnknownTag, "engine_state", int(v.EngineState))
	}
	return h, v, nil
}

// DecodeSensorData decodes a SENSOR_DATA packet. The declared chunk and
// sensor counts are trusted only after the buffer is confirmed to hold them.
func (d *Decoder) DecodeSensorData(buf []byte) (Header, SensorData, error) {
	t := PacketSensorData
	c, h, err := d.open(buf, t, SensorDataBodySize)
	if err != nil {
		return Header{}, SensorData{}, err
	}

	numChunks := int(c.u8())
	numSensors := c.u8()
	if numChunks == 0 && d.s.policy.RejectEmptySensorData {
		return Header{}, SensorData{}, fieldError("decode", t, ErrCountOutOfRange, "num_chunks", 0)
	}
	need := sensorDataSize(numChunks, int(numSensors))
	if len(buf) < need {
		return Header{}, SensorData{}, sizeError("decode", t, ErrTruncated, need, len(buf))
	}

	v := SensorData{NumSensors: numSensors}
	if numChunks > 0 {
		v.Chunks = make([]Chunk, numChunks)
	}
	for i := range v.Chunks {
		chunk := Chunk{Timestamp: c.u32()}
		if numSensors > 0 {
			chunk.Datapoints = make([]Datapoint, numSensors)
		}
		for j := range chunk.Datapoints {
			chunk.Datapoints[j] = Datapoint{SensorID: c.u8(), Value: c.u32()}
		}
		v.Chunks[i] = chunk
	}
	return h, v, nil
}

// DecodeActuatorCommands decodes an ACTUATOR_COMMAND packet. A zero command
// count is rejected unless the policy allows it.
func (d *Decoder) DecodeActuatorCommands(buf []byte) (Header, ActuatorCommands, error) {
	t := PacketActuatorCommand
	c, h, err := d.open(buf, t, ActuatorCommandBodySize)
	if err != nil {
		return Header{}, nil, err
	}

	n := int(c.u8())
	if n == 0 && !d.s.policy.AllowEmptyCommands {
		return Header{}, nil, fieldError("decode", t, ErrCountOutOfRange, "num_commands", 0)
	}
	need := HeaderSize + ActuatorCommandBodySize + n*ActuatorCommandSize
	if len(buf) < need {
		return Header{}, nil, sizeError("decode", t, ErrTruncated, need, len(buf))
	}

	v := make(ActuatorCommands, n)
	for i := range v {
		v[i] = ActuatorCommand{ActuatorID: c.u8(), State: c.u8()}
	}
	return h, v, nil
}

// DecodeSensorConfig decodes a SENSOR_CONFIG packet
func (d *Decoder) DecodeSensorConfig(buf []byte) (Header, SensorConfig, error) {
	t := PacketSensorConfig
	c, h, err := d.open(buf, t, SensorConfigBodySize)
	if err != nil {
		return Header{}, SensorConfig{}, err
	}

	n := int(c.u8())
	if n == 0 && !d.s.policy.AllowEmptySensorConfig {
		return Header{}, SensorConfig{}, fieldError("decode", t, ErrCountOutOfRange, "num_sensors", 0)
	}
	need := HeaderSize + SensorConfigBodySize + n + SensorConfigAbortFlag
	if len(buf) < need {
		return Header{}, SensorConfig{}, sizeError("decode", t, ErrTruncated, need, len(buf))
	}

	v := SensorConfig{SensorIDs: make([]uint8, n)}
	for i := range v.SensorIDs {
		v.SensorIDs[i] = c.u8()
	}
	v.NecessaryForAbort = c.u8() != 0
	if v.NecessaryForAbort {
		need += SensorConfigControllerIP
		if len(buf) < need {
			return Header{}, SensorConfig{}, sizeError("decode", t, ErrTruncated, need, len(buf))
		}
		v.ControllerIP = c.u32()
	}
	return h, v, nil
}

// DecodeActuatorConfig decodes an ACTUATOR_CONFIG packet
func (d *Decoder) DecodeActuatorConfig(buf []byte) (Header, ActuatorConfig, error) {
	t := PacketActuatorConfig
	c, h, err := d.open(buf, t, ActuatorConfigBodySize)
	if err != nil {
		return Header{}, ActuatorConfig{}, err
	}

	var v ActuatorConfig
	v.IsAbortController = c.u8() != 0
	for i := range v.Actuators {
		a := AbortActuatorLocation{IP: c.u32(), ActuatorID: c.u8(), Purpose: ActuatorPurpose(c.u8())}
		if !a.Purpose.Valid() {
			return Header{}, ActuatorConfig{}, fieldError("decode", t, ErrUnknownTag, "actuator_purpose", int(a.Purpose))
		}
		v.Actuators[i] = a
	}
	for i := range v.PTs {
		p := AbortPTLocation{IP: c.u32(), SensorID: c.u8(), Purpose: PTPurpose(c.u8())}
		if !p.Purpose.Valid() {
			return Header{}, ActuatorConfig{}, fieldError("decode", t, ErrUnknownTag, "pt_purpose", int(p.Purpose))
		}
		v.PTs[i] = p
	}
	if actuators, pts := v.UsedSlots(); actuators+pts == 0 && !d.s.policy.AllowEmptyAbortTables {
		return Header{}, ActuatorConfig{}, fieldError("decode", t, ErrCountOutOfRange, "abort_slots", 0)
	}
	return h, v, nil
}

// DecodeAbort decodes an ABORT packet
func (d *Decoder) DecodeAbort(buf []byte) (Header, error) {
	_, h, err := d.open(buf, PacketAbort, 0)
	return h, err
}

// DecodeAbortDone decodes an ABORT_DONE packet
func (d *Decoder) DecodeAbortDone(buf []byte) (Header, error) {
	_, h, err := d.open(buf, PacketAbortDone, 0)
	return h, err
}

// DecodeClearAbort decodes a CLEAR_ABORT packet
func (d *Decoder) DecodeClearAbort(buf []byte) (Header, error) {
	_, h, err := d.open(buf, PacketClearAbort, 0)
	return h, err
}

// DecodePacket reads the header once and decodes the body with the
// operation for the type found
func (d *Decoder) DecodePacket(buf []byte) (*Packet, error) {
	t, err := PeekType(buf)
	if err != nil {
		return nil, err
	}

	p := &Packet{}
	switch t {
	case PacketBoardHeartbeat:
		var v BoardHeartbeat
		p.Header, v, err = d.DecodeBoardHeartbeat(buf)
		p.Body = v
	case PacketServerHeartbeat:
		var v ServerHeartbeat
		p.Header, v, err = d.DecodeServerHeartbeat(buf)
		p.Body = v
	case PacketSensorData:
		var v SensorData
		p.Header, v, err = d.DecodeSensorData(buf)
		p.Body = v
	case PacketActuatorCommand:
		var v ActuatorCommands
		p.Header, v, err = d.DecodeActuatorCommands(buf)
		p.Body = v
	case PacketSensorConfig:
		var v SensorConfig
		p.Header, v, err = d.DecodeSensorConfig(buf)
		p.Body = v
	case PacketActuatorConfig:
		var v ActuatorConfig
		p.Header, v, err = d.DecodeActuatorConfig(buf)
		p.Body = v
	case PacketAbort:
		p.Header, err = d.DecodeAbort(buf)
		p.Body = Abort{}
	case PacketAbortDone:
		p.Header, err = d.DecodeAbortDone(buf)
		p.Body = AbortDone{}
	case PacketClearAbort:
		p.Header, err = d.DecodeClearAbort(buf)
		p.Body = ClearAbort{}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
