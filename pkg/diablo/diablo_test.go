// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacketType(t *testing.T) {
	tests := []struct {
		t    PacketType
		want string
	}{
		{PacketBoardHeartbeat, "BOARD_HEARTBEAT"},
		{PacketServerHeartbeat, "SERVER_HEARTBEAT"},
		{PacketSensorData, "SENSOR_DATA"},
		{PacketActuatorCommand, "ACTUATOR_COMMAND"},
		{PacketSensorConfig, "SENSOR_CONFIG"},
		{PacketActuatorConfig, "ACTUATOR_CONFIG"},
		{PacketAbort, "ABORT"},
		{PacketAbortDone, "ABORT_DONE"},
		{PacketClearAbort, "CLEAR_ABORT"},
		{0, "UNKNOWN(0x00)"},
		{0xFE, "UNKNOWN(0xFE)"},
	}

	for _, tt := range tests {
		if got := FormatPacketType(tt.t); got != tt.want {
			t.Errorf("FormatPacketType(%d) = %q, want %q", uint8(tt.t), got, tt.want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{BoardPressureTransducer.String(), "PRESSURE_TRANSDUCER"},
		{BoardType(9).String(), "INVALID(9)"},
		{BoardStateAbortDone.String(), "ABORT_DONE"},
		{BoardState(0).String(), "INVALID(0)"},
		{EngineLoxFill.String(), "LOX_FILL"},
		{ActuatorPurposeFuelPress.String(), "FUEL_PRESS"},
		{PTPurposeFuelInjector.String(), "FUEL_INJECTOR"},
		{PTPurpose(7).String(), "INVALID(7)"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseNames(t *testing.T) {
	if v, err := ParsePacketType("sensor-data"); err != nil || v != PacketSensorData {
		t.Errorf("ParsePacketType = %v, %v", v, err)
	}
	if v, err := ParseBoardType(" load_cell "); err != nil || v != BoardLoadCell {
		t.Errorf("ParseBoardType = %v, %v", v, err)
	}
	if v, err := ParseBoardState("Active"); err != nil || v != BoardStateActive {
		t.Errorf("ParseBoardState = %v, %v", v, err)
	}
	if v, err := ParseEngineState("post_fire"); err != nil || v != EnginePostFire {
		t.Errorf("ParseEngineState = %v, %v", v, err)
	}
	if v, err := ParseActuatorPurpose("IGNITER"); err != nil || v != ActuatorPurposeIgniter {
		t.Errorf("ParseActuatorPurpose = %v, %v", v, err)
	}
	if v, err := ParsePTPurpose("chamber"); err != nil || v != PTPurposeChamber {
		t.Errorf("ParsePTPurpose = %v, %v", v, err)
	}

	if _, err := ParseBoardState(""); err == nil {
		t.Error("ParseBoardState(\"\") succeeded")
	}
	if _, err := ParsePacketType("nope"); err == nil {
		t.Error("ParsePacketType(\"nope\") succeeded")
	}
}

func TestFormatPacket(t *testing.T) {
	p := &Packet{
		Header: Header{Type: PacketBoardHeartbeat, Version: 1, Timestamp: 42},
		Body:   BoardHeartbeat{BoardType: BoardActuator, BoardID: 3, EngineState: EnginePressurizing, BoardState: BoardStateActive},
	}

	out := FormatPacket(p)
	for _, want := range []string{"BOARD_HEARTBEAT (0x01) v1 ts=42", "ACTUATOR #3", "PRESSURIZING", "ACTIVE"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatPacket output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatBody_ActuatorConfig(t *testing.T) {
	out := FormatBody(testActuatorConfig())

	for _, want := range []string{"Abort Controller: true", "FUEL_MAIN: 10.0.0.5 #1", "IGNITER: 10.0.0.6 #4", "PT CHAMBER: 10.0.0.2 #3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "NONE") {
		t.Errorf("unused slots should be skipped:\n%s", out)
	}
}

func TestFormatBody_SensorConfig(t *testing.T) {
	out := FormatBody(SensorConfig{SensorIDs: []uint8{1, 2}, NecessaryForAbort: true, ControllerIP: 0xC0A80101})
	if !strings.Contains(out, "controller 192.168.1.1") {
		t.Errorf("output missing controller address:\n%s", out)
	}
}

func TestFormatHex(t *testing.T) {
	data := make([]byte, 18)
	for i := range data {
		data[i] = byte(i)
	}
	out := FormatHex(data)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), out)
	}
	if lines[1] != "0010: 10 11" {
		t.Errorf("second line = %q, want %q", lines[1], "0010: 10 11")
	}
	if FormatHex(nil) != "" {
		t.Error("FormatHex(nil) should be empty")
	}
}

// ============================================================
// Validator Tests
// ============================================================

func hasAnomaly(errs []ValidationError, a AnomalyType) bool {
	for _, e := range errs {
		if e.Type == a {
			return true
		}
	}
	return false
}

func TestValidatePacket_Clean(t *testing.T) {
	bodies := []Body{
		BoardHeartbeat{BoardType: BoardRTD, BoardID: 1, EngineState: EngineSafe, BoardState: BoardStateSetup},
		buildSensorData(t, 3, 4),
		ActuatorCommands{{ActuatorID: 1, State: 1}, {ActuatorID: 2, State: 0}},
		SensorConfig{SensorIDs: []uint8{1, 2}, NecessaryForAbort: true, ControllerIP: 0x0A000001},
		testActuatorConfig(),
		Abort{},
	}

	for _, body := range bodies {
		p := &Packet{Header: Header{Type: body.PacketType(), Version: DefaultVersion}, Body: body}
		if errs := ValidatePacket(p, DefaultLimits()); len(errs) != 0 {
			t.Errorf("%s: unexpected anomalies: %v", FormatPacketType(body.PacketType()), errs)
		}
	}
}

func TestValidatePacket_Anomalies(t *testing.T) {
	tests := []struct {
		name    string
		version uint8
		body    Body
		want    AnomalyType
	}{
		{"version", 2, Abort{}, AnomalyVersionMismatch},
		{"too many chunks", 1, buildSensorData(t, 11, 1), AnomalyInvalidCount},
		{"too many sensors", 1, buildSensorData(t, 1, 11), AnomalyInvalidCount},
		{"oversize", 1, buildSensorData(t, 10, 10), AnomalyOversize},
		{"too many commands", 1, make(ActuatorCommands, 11), AnomalyInvalidCount},
		{"duplicate actuator", 1, ActuatorCommands{{ActuatorID: 4}, {ActuatorID: 4}}, AnomalyDuplicateID},
		{"duplicate sensor", 1, SensorConfig{SensorIDs: []uint8{3, 3}}, AnomalyDuplicateID},
		{"missing controller", 1, SensorConfig{SensorIDs: []uint8{3}, NecessaryForAbort: true}, AnomalyMissingController},
		{"duplicate in chunk", 1, SensorData{NumSensors: 2, Chunks: []Chunk{{Timestamp: 1, Datapoints: []Datapoint{{SensorID: 5}, {SensorID: 5}}}}}, AnomalyDuplicateID},
		{"timestamp order", 1, SensorData{NumSensors: 0, Chunks: []Chunk{{Timestamp: 5}, {Timestamp: 5}}}, AnomalyTimestampOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Packet{Header: Header{Type: tt.body.PacketType(), Version: tt.version}, Body: tt.body}
			errs := ValidatePacket(p, DefaultLimits())
			if !hasAnomaly(errs, tt.want) {
				t.Errorf("anomalies %v do not include %v", errs, tt.want)
			}
		})
	}
}

func TestValidatePacket_ZeroLimits(t *testing.T) {
	p := &Packet{Header: Header{Type: PacketSensorData, Version: 9}, Body: buildSensorData(t, 20, 20)}
	if errs := ValidatePacket(p, Limits{}); len(errs) != 0 {
		t.Errorf("zero limits should disable checks, got %v", errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	v := &ValidationError{Type: AnomalyOversize, Message: "too big"}
	var err error = v
	if err.Error() != "too big" {
		t.Errorf("Error() = %q", err.Error())
	}
	if AnomalyOversize.String() != "oversize" {
		t.Errorf("String() = %q", AnomalyOversize.String())
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	p := &Packet{Header: Header{Type: PacketAbort}, Body: Abort{}}

	s.Update(p, nil, nil)
	s.Update(p, nil, []ValidationError{{Type: AnomalyVersionMismatch}, {Type: AnomalyOversize}})
	s.Update(nil, &CodecError{Err: ErrTruncated}, nil)
	s.Update(nil, &CodecError{Err: ErrUnknownTag}, nil)
	s.Update(nil, errors.New("other"), nil)
	s.LinkError()

	c := s.Snapshot()
	if c.TotalPackets != 6 {
		t.Errorf("TotalPackets = %d, want 6", c.TotalPackets)
	}
	if c.ValidPackets != 1 {
		t.Errorf("ValidPackets = %d, want 1", c.ValidPackets)
	}
	if c.ByType[PacketAbort] != 2 {
		t.Errorf("ByType[ABORT] = %d, want 2", c.ByType[PacketAbort])
	}
	if c.Truncated != 1 || c.UnknownTags != 1 || c.OtherErrors != 1 || c.LinkErrors != 1 {
		t.Errorf("error counters = %+v", c)
	}
	if c.Anomalies[AnomalyVersionMismatch] != 1 || c.Anomalies[AnomalyOversize] != 1 {
		t.Errorf("anomalies = %v", c.Anomalies)
	}
	if c.anomalous() != 1 {
		t.Errorf("anomalous packets = %d, want 1", c.anomalous())
	}

	out := s.String()
	for _, want := range []string{"Total Packets:          6", "Truncated:", "version_mismatch:", "Link Errors:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestStatistics_SnapshotIsolated(t *testing.T) {
	s := NewStatistics()
	s.Update(&Packet{Header: Header{Type: PacketAbort}, Body: Abort{}}, nil, nil)

	c := s.Snapshot()
	s.Update(&Packet{Header: Header{Type: PacketAbort}, Body: Abort{}}, nil, nil)
	if c.ByType[PacketAbort] != 1 {
		t.Errorf("snapshot changed after update: %d", c.ByType[PacketAbort])
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.Update(nil, &CodecError{Err: ErrBufferTooSmall}, nil)
	s.Reset()

	c := s.Snapshot()
	if c.TotalPackets != 0 || c.BufferTooSmall != 0 || len(c.ByType) != 0 {
		t.Errorf("counters not reset: %+v", c)
	}
}
