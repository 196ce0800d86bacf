// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"fmt"
	"strings"
)

// FormatPacketType returns the human-readable name for a packet type
func FormatPacketType(t PacketType) string {
	switch t {
	case PacketBoardHeartbeat:
		return "BOARD_HEARTBEAT"
	case PacketServerHeartbeat:
		return "SERVER_HEARTBEAT"
	case PacketSensorData:
		return "SENSOR_DATA"
	case PacketActuatorCommand:
		return "ACTUATOR_COMMAND"
	case PacketSensorConfig:
		return "SENSOR_CONFIG"
	case PacketActuatorConfig:
		return "ACTUATOR_CONFIG"
	case PacketAbort:
		return "ABORT"
	case PacketAbortDone:
		return "ABORT_DONE"
	case PacketClearAbort:
		return "CLEAR_ABORT"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(t))
	}
}

func (t PacketType) String() string { return FormatPacketType(t) }

var boardTypeNames = []string{
	BoardUnknown:            "UNKNOWN",
	BoardPressureTransducer: "PRESSURE_TRANSDUCER",
	BoardLoadCell:           "LOAD_CELL",
	BoardRTD:                "RTD",
	BoardThermocouple:       "THERMOCOUPLE",
	BoardActuator:           "ACTUATOR",
}

func (b BoardType) String() string {
	if !b.Valid() {
		return fmt.Sprintf("INVALID(%d)", uint8(b))
	}
	return boardTypeNames[b]
}

var boardStateNames = []string{
	BoardStateSetup:     "SETUP",
	BoardStateActive:    "ACTIVE",
	BoardStateAbort:     "ABORT",
	BoardStateAbortDone: "ABORT_DONE",
}

func (s BoardState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("INVALID(%d)", uint8(s))
	}
	return boardStateNames[s]
}

var engineStateNames = []string{
	EngineSafe:         "SAFE",
	EnginePressurizing: "PRESSURIZING",
	EngineLoxFill:      "LOX_FILL",
	EngineFiring:       "FIRING",
	EnginePostFire:     "POST_FIRE",
}

func (s EngineState) String() string {
	if !s.Valid() {
		return fmt.Sprintf("INVALID(%d)", uint8(s))
	}
	return engineStateNames[s]
}

var actuatorPurposeNames = []string{
	ActuatorPurposeNone:      "NONE",
	ActuatorPurposeFuelMain:  "FUEL_MAIN",
	ActuatorPurposeLoxMain:   "LOX_MAIN",
	ActuatorPurposeFuelVent:  "FUEL_VENT",
	ActuatorPurposeLoxVent:   "LOX_VENT",
	ActuatorPurposeFuelPress: "FUEL_PRESS",
	ActuatorPurposeLoxPress:  "LOX_PRESS",
	ActuatorPurposePurge:     "PURGE",
	ActuatorPurposeIgniter:   "IGNITER",
}

func (p ActuatorPurpose) String() string {
	if !p.Valid() {
		return fmt.Sprintf("INVALID(%d)", uint8(p))
	}
	return actuatorPurposeNames[p]
}

var ptPurposeNames = []string{
	PTPurposeNone:         "NONE",
	PTPurposeFuelTank:     "FUEL_TANK",
	PTPurposeLoxTank:      "LOX_TANK",
	PTPurposePressurant:   "PRESSURANT",
	PTPurposeChamber:      "CHAMBER",
	PTPurposeFuelInjector: "FUEL_INJECTOR",
	PTPurposeLoxInjector:  "LOX_INJECTOR",
}

func (p PTPurpose) String() string {
	if !p.Valid() {
		return fmt.Sprintf("INVALID(%d)", uint8(p))
	}
	return ptPurposeNames[p]
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
}

// lookup finds name in names, ignoring case and treating '-' as '_'.
// Empty table entries never match.
func lookup(names []string, name string) (int, bool) {
	name = normalizeName(name)
	for i, n := range names {
		if n != "" && strings.EqualFold(n, name) {
			return i, true
		}
	}
	return 0, false
}

// ParsePacketType parses a packet type name such as "sensor_data"
func ParsePacketType(name string) (PacketType, error) {
	for t := PacketBoardHeartbeat; t <= PacketClearAbort; t++ {
		if strings.EqualFold(FormatPacketType(t), normalizeName(name)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown packet type %q", name)
}

// ParseBoardType parses a board type name
func ParseBoardType(name string) (BoardType, error) {
	i, ok := lookup(boardTypeNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown board type %q", name)
	}
	return BoardType(i), nil
}

// ParseBoardState parses a board state name
func ParseBoardState(name string) (BoardState, error) {
	i, ok := lookup(boardStateNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown board state %q", name)
	}
	return BoardState(i), nil
}

// ParseEngineState parses an engine state name
func ParseEngineState(name string) (EngineState, error) {
	i, ok := lookup(engineStateNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown engine state %q", name)
	}
	return EngineState(i), nil
}

// ParseActuatorPurpose parses an actuator purpose name
func ParseActuatorPurpose(name string) (ActuatorPurpose, error) {
	i, ok := lookup(actuatorPurposeNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown actuator purpose %q", name)
	}
	return ActuatorPurpose(i), nil
}

// ParsePTPurpose parses a pressure transducer purpose name
func ParsePTPurpose(name string) (PTPurpose, error) {
	i, ok := lookup(ptPurposeNames, name)
	if !ok {
		return 0, fmt.Errorf("unknown PT purpose %q", name)
	}
	return PTPurpose(i), nil
}

// FormatIPv4 renders a u32 wire address in dotted-quad form
func FormatIPv4(ip uint32) string {
	return AddrFromIPv4(ip).String()
}

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (0x%02X) v%d ts=%d\n", FormatPacketType(p.Header.Type), uint8(p.Header.Type), p.Header.Version, p.Header.Timestamp)
	if p.Body != nil {
		b.WriteString(FormatBody(p.Body))
	}
	return b.String()
}

// FormatBody formats the fields of a packet body, one indented line per field
func FormatBody(body Body) string {
	var b strings.Builder

	switch v := body.(type) {
	case BoardHeartbeat:
		fmt.Fprintf(&b, "  Board: %s #%d\n", v.BoardType, v.BoardID)
		fmt.Fprintf(&b, "  Engine State: %s\n", v.EngineState)
		fmt.Fprintf(&b, "  Board State: %s\n", v.BoardState)

	case ServerHeartbeat:
		fmt.Fprintf(&b, "  Engine State: %s\n", v.EngineState)

	case SensorData:
		fmt.Fprintf(&b, "  Chunks: %d, Sensors: %d\n", len(v.Chunks), v.NumSensors)
		for i, chunk := range v.Chunks {
			fmt.Fprintf(&b, "  [%d] ts=%d", i, chunk.Timestamp)
			for _, dp := range chunk.Datapoints {
				fmt.Fprintf(&b, " s%d=0x%08X", dp.SensorID, dp.Value)
			}
			b.WriteString("\n")
		}

	case ActuatorCommands:
		fmt.Fprintf(&b, "  Commands: %d\n", len(v))
		for _, cmd := range v {
			fmt.Fprintf(&b, "  Actuator %d -> %d\n", cmd.ActuatorID, cmd.State)
		}

	case SensorConfig:
		fmt.Fprintf(&b, "  Sensors: %v\n", v.SensorIDs)
		if v.NecessaryForAbort {
			fmt.Fprintf(&b, "  Abort Participant: controller %s\n", FormatIPv4(v.ControllerIP))
		} else {
			b.WriteString("  Abort Participant: no\n")
		}

	case ActuatorConfig:
		fmt.Fprintf(&b, "  Abort Controller: %t\n", v.IsAbortController)
		for _, a := range v.Actuators {
			if a.Purpose == ActuatorPurposeNone {
				continue
			}
			fmt.Fprintf(&b, "  Actuator %s: %s #%d\n", a.Purpose, FormatIPv4(a.IP), a.ActuatorID)
		}
		for _, pt := range v.PTs {
			if pt.Purpose == PTPurposeNone {
				continue
			}
			fmt.Fprintf(&b, "  PT %s: %s #%d\n", pt.Purpose, FormatIPv4(pt.IP), pt.SensorID)
		}
	}

	return b.String()
}

// FormatHex formats raw bytes as a hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "%04X:", i)
		for _, c := range data[i:end] {
			fmt.Fprintf(&b, " %02X", c)
		}
		b.WriteString("\n")
	}
	return b.String()
}
