// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package diablo implements the Diablo test-stand wire protocol.
//
// Diablo is the packet format exchanged between the field boards of a test
// stand (pressure transducers, load cells, thermocouples, actuator
// controllers) and the central coordinator. Every packet is a 6-byte header
// followed by a tightly packed, type-specific body. This package provides
// type-directed encoding into caller-supplied buffers, bounds-checked
// decoding, anomaly validation, formatting and statistics.
package diablo

// DefaultVersion is the protocol version written into headers unless an
// encoder is configured otherwise.
const DefaultVersion uint8 = 1

// Wire sizes in bytes
const (
	HeaderSize = 6

	BoardHeartbeatBodySize  = 4
	ServerHeartbeatBodySize = 1

	SensorDataBodySize = 2 // num_chunks + num_sensors
	ChunkHeaderSize    = 4 // chunk timestamp
	DatapointSize      = 5 // sensor_id + data

	ActuatorCommandBodySize = 1 // num_commands
	ActuatorCommandSize     = 2 // actuator_id + actuator_state

	SensorConfigBodySize     = 1 // num_sensors
	SensorConfigAbortFlag    = 1 // necessary_for_abort
	SensorConfigControllerIP = 4

	AbortLocationSize = 6 // ip + id + purpose
)

// offType is the header offset of packet_type
const offType = 0

// Count limits
const (
	// MaxCount is the largest value a one-byte count field can carry.
	MaxCount = 255

	// Fixed slot counts of the ACTUATOR_CONFIG abort tables, one slot per
	// purpose tag.
	AbortActuatorSlots = 8
	AbortPTSlots       = 6

	ActuatorConfigBodySize = 1 + AbortActuatorSlots*AbortLocationSize + AbortPTSlots*AbortLocationSize
)

// Board ceilings used by the firmware. These are advisory: the codec accepts
// anything the count fields can express and ValidatePacket reports packets
// that exceed them.
const (
	MaxSensorsPerBoard   = 10
	MaxActuatorsPerBoard = 10
	MaxChunksPerPacket   = 10
	MaxPacketSize        = 512
)

// PacketType identifies the body layout following the header.
type PacketType uint8

// Packet types
const (
	PacketBoardHeartbeat  PacketType = 1
	PacketServerHeartbeat PacketType = 2
	PacketSensorData      PacketType = 3
	PacketActuatorCommand PacketType = 4
	PacketSensorConfig    PacketType = 5
	PacketActuatorConfig  PacketType = 6
	PacketAbort           PacketType = 7
	PacketAbortDone       PacketType = 8
	PacketClearAbort      PacketType = 9
)

// Valid reports whether t is a known packet type.
func (t PacketType) Valid() bool {
	return t >= PacketBoardHeartbeat && t <= PacketClearAbort
}

// BoardType is the physical kind of a field board.
type BoardType uint8

// Board types
const (
	BoardUnknown            BoardType = 0
	BoardPressureTransducer BoardType = 1
	BoardLoadCell           BoardType = 2
	BoardRTD                BoardType = 3
	BoardThermocouple       BoardType = 4
	BoardActuator           BoardType = 5
)

// Valid reports whether b is a known board type.
func (b BoardType) Valid() bool {
	return b <= BoardActuator
}

// BoardState is the operational state a board reports in its heartbeat.
type BoardState uint8

// Board states
const (
	BoardStateSetup     BoardState = 1
	BoardStateActive    BoardState = 2
	BoardStateAbort     BoardState = 3
	BoardStateAbortDone BoardState = 4
)

// Valid reports whether s is a known board state.
func (s BoardState) Valid() bool {
	return s >= BoardStateSetup && s <= BoardStateAbortDone
}

// EngineState is the overall engine state the coordinator broadcasts.
type EngineState uint8

// Engine states
const (
	EngineSafe         EngineState = 0
	EnginePressurizing EngineState = 1
	EngineLoxFill      EngineState = 2
	EngineFiring       EngineState = 3
	EnginePostFire     EngineState = 4
)

// Valid reports whether s is a known engine state.
func (s EngineState) Valid() bool {
	return s <= EnginePostFire
}

// ActuatorPurpose tags the role of an actuator in the abort sequence.
// ActuatorPurposeNone marks an unused abort-table slot.
type ActuatorPurpose uint8

// Actuator purposes
const (
	ActuatorPurposeNone      ActuatorPurpose = 0
	ActuatorPurposeFuelMain  ActuatorPurpose = 1
	ActuatorPurposeLoxMain   ActuatorPurpose = 2
	ActuatorPurposeFuelVent  ActuatorPurpose = 3
	ActuatorPurposeLoxVent   ActuatorPurpose = 4
	ActuatorPurposeFuelPress ActuatorPurpose = 5
	ActuatorPurposeLoxPress  ActuatorPurpose = 6
	ActuatorPurposePurge     ActuatorPurpose = 7
	ActuatorPurposeIgniter   ActuatorPurpose = 8
)

// Valid reports whether p is a known actuator purpose.
func (p ActuatorPurpose) Valid() bool {
	return p <= ActuatorPurposeIgniter
}

// PTPurpose tags the role of a pressure transducer in the abort sequence.
// PTPurposeNone marks an unused abort-table slot.
type PTPurpose uint8

// Pressure transducer purposes
const (
	PTPurposeNone         PTPurpose = 0
	PTPurposeFuelTank     PTPurpose = 1
	PTPurposeLoxTank      PTPurpose = 2
	PTPurposePressurant   PTPurpose = 3
	PTPurposeChamber      PTPurpose = 4
	PTPurposeFuelInjector PTPurpose = 5
	PTPurposeLoxInjector  PTPurpose = 6
)

// Valid reports whether p is a known pressure transducer purpose.
func (p PTPurpose) Valid() bool {
	return p <= PTPurposeLoxInjector
}
