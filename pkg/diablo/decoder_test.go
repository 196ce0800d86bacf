// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func mustMarshal(t *testing.T, enc *Encoder, body Body) []byte {
	t.Helper()
	data, err := enc.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal(%T) failed: %v", body, err)
	}
	return data
}

func TestDecodeBoardHeartbeat_ScenarioA(t *testing.T) {
	want := BoardHeartbeat{
		BoardType:   BoardActuator,
		BoardID:     3,
		EngineState: EnginePressurizing,
		BoardState:  BoardStateActive,
	}
	data := mustMarshal(t, newTestEncoder(), want)

	h, got, err := NewDecoder().DecodeBoardHeartbeat(data)
	if err != nil {
		t.Fatalf("DecodeBoardHeartbeat failed: %v", err)
	}
	if got != want {
		t.Errorf("decoded = %+v, want %+v", got, want)
	}
	if h.Type != PacketBoardHeartbeat || h.Version != DefaultVersion || h.Timestamp != testTimestamp {
		t.Errorf("header = %+v", h)
	}
}

func TestDecodeSensorData_ScenarioB(t *testing.T) {
	want := buildSensorData(t, 2, 3)
	data := mustMarshal(t, newTestEncoder(), want)

	_, got, err := NewDecoder().DecodeSensorData(data)
	if err != nil {
		t.Fatalf("DecodeSensorData failed: %v", err)
	}
	if len(got.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got.Chunks))
	}
	for i, chunk := range got.Chunks {
		if len(chunk.Datapoints) != 3 {
			t.Fatalf("chunk %d datapoints = %d, want 3", i, len(chunk.Datapoints))
		}
		for j, dp := range chunk.Datapoints {
			if dp != want.Chunks[i].Datapoints[j] {
				t.Errorf("chunk %d datapoint %d = %+v, want %+v", i, j, dp, want.Chunks[i].Datapoints[j])
			}
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded = %+v, want %+v", got, want)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	enc := newTestEncoder()
	dec := NewDecoder()

	bodies := []Body{
		BoardHeartbeat{BoardType: BoardThermocouple, BoardID: 200, EngineState: EnginePostFire, BoardState: BoardStateAbortDone},
		ServerHeartbeat{EngineState: EngineFiring},
		buildSensorData(t, 10, 10),
		ActuatorCommands{{ActuatorID: 1, State: 1}, {ActuatorID: 9, State: 0}},
		SensorConfig{SensorIDs: []uint8{1, 2, 3}},
		SensorConfig{SensorIDs: []uint8{5}, NecessaryForAbort: true, ControllerIP: 0xC0A80001},
		testActuatorConfig(),
		Abort{},
		AbortDone{},
		ClearAbort{},
	}

	for _, body := range bodies {
		t.Run(FormatPacketType(body.PacketType()), func(t *testing.T) {
			data := mustMarshal(t, enc, body)
			p, err := dec.DecodePacket(data)
			if err != nil {
				t.Fatalf("DecodePacket failed: %v", err)
			}
			if p.Header.Type != body.PacketType() {
				t.Errorf("type = %v, want %v", p.Header.Type, body.PacketType())
			}
			if !reflect.DeepEqual(p.Body, body) {
				t.Errorf("body = %+v, want %+v", p.Body, body)
			}
		})
	}
}

func TestDecode_BigEndianRoundTrip(t *testing.T) {
	enc := newTestEncoder(WithByteOrder(binary.BigEndian))
	want := buildSensorData(t, 1, 2)
	data := mustMarshal(t, enc, want)

	if _, got, err := NewDecoder(WithByteOrder(binary.BigEndian)).DecodeSensorData(data); err != nil || !reflect.DeepEqual(got, want) {
		t.Errorf("big endian: got %+v err=%v, want %+v", got, err, want)
	}

	// Mismatched order reads the same bytes into different values
	_, got, err := NewDecoder().DecodeSensorData(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Chunks[0].Timestamp == want.Chunks[0].Timestamp {
		t.Error("little endian decoder read the big endian timestamp unchanged")
	}
}

func TestDecode_TypeMismatch(t *testing.T) {
	dec := NewDecoder()
	data := mustMarshal(t, newTestEncoder(), BoardHeartbeat{BoardType: BoardRTD, BoardID: 1, EngineState: EngineSafe, BoardState: BoardStateSetup})

	// Every other decode operation must refuse a BOARD_HEARTBEAT. The
	// heartbeat is 10 bytes, large enough for each fixed body except
	// ACTUATOR_CONFIG, so pad it.
	padded := append(append([]byte{}, data...), make([]byte, 128)...)

	checks := map[string]func([]byte) error{
		"server heartbeat": func(b []byte) error { _, _, err := dec.DecodeServerHeartbeat(b); return err },
		"sensor data":      func(b []byte) error { _, _, err := dec.DecodeSensorData(b); return err },
		"actuator command": func(b []byte) error { _, _, err := dec.DecodeActuatorCommands(b); return err },
		"sensor config":    func(b []byte) error { _, _, err := dec.DecodeSensorConfig(b); return err },
		"actuator config":  func(b []byte) error { _, _, err := dec.DecodeActuatorConfig(b); return err },
		"abort":            func(b []byte) error { _, err := dec.DecodeAbort(b); return err },
		"abort done":       func(b []byte) error { _, err := dec.DecodeAbortDone(b); return err },
		"clear abort":      func(b []byte) error { _, err := dec.DecodeClearAbort(b); return err },
	}

	for name, decode := range checks {
		t.Run(name, func(t *testing.T) {
			err := decode(padded)
			if !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("error = %v, want ErrTypeMismatch", err)
			}
		})
	}
}

func TestDecodeSensorData_Truncated(t *testing.T) {
	dec := NewDecoder()
	data := mustMarshal(t, newTestEncoder(), buildSensorData(t, 3, 4))

	if _, _, err := dec.DecodeSensorData(data); err != nil {
		t.Fatalf("full buffer: unexpected error: %v", err)
	}

	_, _, err := dec.DecodeSensorData(data[:len(data)-1])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("N-1 bytes: error = %v, want ErrTruncated", err)
	}
	var ce *CodecError
	if errors.As(err, &ce) && (ce.Need != len(data) || ce.Have != len(data)-1) {
		t.Errorf("need/have = %d/%d, want %d/%d", ce.Need, ce.Have, len(data), len(data)-1)
	}

	// Header plus counts only is a truncation, header alone is too small
	if _, _, err := dec.DecodeSensorData(data[:8]); !errors.Is(err, ErrTruncated) {
		t.Errorf("counts only: error = %v, want ErrTruncated", err)
	}
	if _, _, err := dec.DecodeSensorData(data[:7]); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("7 bytes: error = %v, want ErrBufferTooSmall", err)
	}
}

func TestDecodeSensorData_MaxCounts(t *testing.T) {
	// 255 chunks of 255 sensors: the largest packet the counts can declare
	buf := make([]byte, sensorDataSize(255, 255))
	buf[0] = uint8(PacketSensorData)
	buf[1] = DefaultVersion
	buf[6] = 255
	buf[7] = 255

	_, v, err := NewDecoder().DecodeSensorData(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Chunks) != 255 || len(v.Chunks[254].Datapoints) != 255 {
		t.Errorf("decoded %d chunks", len(v.Chunks))
	}

	if _, _, err := NewDecoder().DecodeSensorData(buf[:len(buf)-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", err)
	}
}

func TestDecodeActuatorCommands(t *testing.T) {
	enc := newTestEncoder()
	dec := NewDecoder()

	cmds := make(ActuatorCommands, 255)
	for i := range cmds {
		cmds[i] = ActuatorCommand{ActuatorID: uint8(i), State: uint8(i % 2)}
	}
	data := mustMarshal(t, enc, cmds)

	_, got, err := dec.DecodeActuatorCommands(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, cmds) {
		t.Error("255 commands did not round trip")
	}

	if _, _, err := dec.DecodeActuatorCommands(data[:len(data)-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short: error = %v, want ErrTruncated", err)
	}

	empty := []byte{uint8(PacketActuatorCommand), 1, 0, 0, 0, 0, 0}
	if _, _, err := dec.DecodeActuatorCommands(empty); !errors.Is(err, ErrCountOutOfRange) {
		t.Errorf("zero commands: error = %v, want ErrCountOutOfRange", err)
	}
	lenient := NewDecoder(WithPolicy(Policy{AllowEmptyCommands: true}))
	if _, got, err := lenient.DecodeActuatorCommands(empty); err != nil || len(got) != 0 {
		t.Errorf("zero commands allowed: got %v err=%v", got, err)
	}
}

func TestDecodeSensorConfig_Truncated(t *testing.T) {
	dec := NewDecoder()
	data := mustMarshal(t, newTestEncoder(), SensorConfig{SensorIDs: []uint8{1, 2}, NecessaryForAbort: true, ControllerIP: 0x0A000001})

	if _, _, err := dec.DecodeSensorConfig(data[:len(data)-1]); !errors.Is(err, ErrTruncated) {
		t.Errorf("missing IP byte: error = %v, want ErrTruncated", err)
	}
	// Stop before the abort flag
	if _, _, err := dec.DecodeSensorConfig(data[:9]); !errors.Is(err, ErrTruncated) {
		t.Errorf("missing flag: error = %v, want ErrTruncated", err)
	}
}

func TestDecodeSensorConfig_Empty(t *testing.T) {
	empty := []byte{uint8(PacketSensorConfig), 1, 0, 0, 0, 0, 0, 0}

	if _, _, err := NewDecoder().DecodeSensorConfig(empty); !errors.Is(err, ErrCountOutOfRange) {
		t.Errorf("default policy: error = %v, want ErrCountOutOfRange", err)
	}

	dec := NewDecoder(WithPolicy(Policy{AllowEmptySensorConfig: true}))
	_, v, err := dec.DecodeSensorConfig(empty)
	if err != nil {
		t.Fatalf("allowed: unexpected error: %v", err)
	}
	if len(v.SensorIDs) != 0 || v.NecessaryForAbort {
		t.Errorf("decoded = %+v", v)
	}
}

func TestDecodeSensorData_EmptyPolicy(t *testing.T) {
	empty := []byte{uint8(PacketSensorData), 1, 0, 0, 0, 0, 0, 3}

	_, v, err := NewDecoder().DecodeSensorData(empty)
	if err != nil {
		t.Fatalf("default policy: unexpected error: %v", err)
	}
	if len(v.Chunks) != 0 || v.NumSensors != 3 {
		t.Errorf("decoded = %+v", v)
	}

	strict := NewDecoder(WithPolicy(Policy{RejectEmptySensorData: true}))
	if _, _, err := strict.DecodeSensorData(empty); !errors.Is(err, ErrCountOutOfRange) {
		t.Errorf("strict: error = %v, want ErrCountOutOfRange", err)
	}
}

func TestDecode_UnknownTags(t *testing.T) {
	dec := NewDecoder()

	tests := []struct {
		name string
		data []byte
		fn   func([]byte) error
	}{
		{
			name: "board type",
			data: []byte{1, 1, 0, 0, 0, 0, 6, 1, 0, 1},
			fn:   func(b []byte) error { _, _, err := dec.DecodeBoardHeartbeat(b); return err },
		},
		{
			name: "engine state",
			data: []byte{1, 1, 0, 0, 0, 0, 1, 1, 5, 1},
			fn:   func(b []byte) error { _, _, err := dec.DecodeBoardHeartbeat(b); return err },
		},
		{
			name: "board state",
			data: []byte{1, 1, 0, 0, 0, 0, 1, 1, 0, 5},
			fn:   func(b []byte) error { _, _, err := dec.DecodeBoardHeartbeat(b); return err },
		},
		{
			name: "server engine state",
			data: []byte{2, 1, 0, 0, 0, 0, 0xFF},
			fn:   func(b []byte) error { _, _, err := dec.DecodeServerHeartbeat(b); return err },
		},
		{
			name: "packet type",
			data: []byte{0x42, 1, 0, 0, 0, 0},
			fn:   func(b []byte) error { _, err := dec.DecodePacket(b); return err },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(tt.data); !errors.Is(err, ErrUnknownTag) {
				t.Errorf("error = %v, want ErrUnknownTag", err)
			}
		})
	}
}

func TestDecodeActuatorConfig_BadPurpose(t *testing.T) {
	data := mustMarshal(t, newTestEncoder(), testActuatorConfig())
	// purpose byte of the first PT slot
	data[HeaderSize+1+AbortActuatorSlots*AbortLocationSize+5] = 0x7F

	if _, _, err := NewDecoder().DecodeActuatorConfig(data); !errors.Is(err, ErrUnknownTag) {
		t.Errorf("error = %v, want ErrUnknownTag", err)
	}
}

func TestDecodeActuatorConfig_EmptyTables(t *testing.T) {
	data := make([]byte, HeaderSize+ActuatorConfigBodySize)
	data[0] = uint8(PacketActuatorConfig)

	if _, _, err := NewDecoder().DecodeActuatorConfig(data); !errors.Is(err, ErrCountOutOfRange) {
		t.Errorf("default policy: error = %v, want ErrCountOutOfRange", err)
	}
	dec := NewDecoder(WithPolicy(Policy{AllowEmptyAbortTables: true}))
	if _, _, err := dec.DecodeActuatorConfig(data); err != nil {
		t.Errorf("allowed: unexpected error: %v", err)
	}
}

func TestDecodeHeader(t *testing.T) {
	dec := NewDecoder()

	if _, err := dec.DecodeHeader([]byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("5 bytes: error = %v, want ErrBufferTooSmall", err)
	}

	// Any 6 bytes form a header, even with an unknown type
	h, err := dec.DecodeHeader([]byte{0xEE, 3, 0x78, 0x56, 0x34, 0x12})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Header{Type: 0xEE, Version: 3, Timestamp: 0x12345678}
	if h != want {
		t.Errorf("header = %+v, want %+v", h, want)
	}
}

func TestDecode_FixedBodyTooSmall(t *testing.T) {
	dec := NewDecoder()
	data := mustMarshal(t, newTestEncoder(), BoardHeartbeat{BoardType: BoardRTD, BoardID: 1, EngineState: EngineSafe, BoardState: BoardStateSetup})

	for n := 0; n < len(data); n++ {
		if _, _, err := dec.DecodeBoardHeartbeat(data[:n]); !errors.Is(err, ErrBufferTooSmall) {
			t.Errorf("%d bytes: error = %v, want ErrBufferTooSmall", n, err)
		}
	}
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	data := mustMarshal(t, newTestEncoder(), ServerHeartbeat{EngineState: EngineSafe})
	data = append(data, 0xDE, 0xAD)

	if _, v, err := NewDecoder().DecodeServerHeartbeat(data); err != nil || v.EngineState != EngineSafe {
		t.Errorf("got %+v err=%v", v, err)
	}
}

func TestPeekType(t *testing.T) {
	if _, err := PeekType(nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("nil: error = %v, want ErrBufferTooSmall", err)
	}
	if pt, err := PeekType([]byte{7, 1, 0, 0, 0, 0}); err != nil || pt != PacketAbort {
		t.Errorf("got %v err=%v, want ABORT", pt, err)
	}
}
