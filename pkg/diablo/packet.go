// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import (
	"math"
	"net/netip"
)

// Header is the fixed 6-byte prefix of every packet
type Header struct {
	Type      PacketType
	Version   uint8
	Timestamp uint32 // sender-local millisecond counter, opaque
}

// Body is the type-specific part of a packet
type Body interface {
	// PacketType returns the header tag identifying this body
	PacketType() PacketType
	// WireSize returns the encoded packet size including the header
	WireSize() int
}

// Packet is a decoded header with its body
type Packet struct {
	Header Header
	Body   Body
}

// BoardHeartbeat is sent periodically by every board to the coordinator
type BoardHeartbeat struct {
	BoardType   BoardType
	BoardID     uint8
	EngineState EngineState
	BoardState  BoardState
}

func (BoardHeartbeat) PacketType() PacketType { return PacketBoardHeartbeat }
func (BoardHeartbeat) WireSize() int          { return HeaderSize + BoardHeartbeatBodySize }

// ServerHeartbeat is broadcast by the coordinator to all boards
type ServerHeartbeat struct {
	EngineState EngineState
}

func (ServerHeartbeat) PacketType() PacketType { return PacketServerHeartbeat }
func (ServerHeartbeat) WireSize() int          { return HeaderSize + ServerHeartbeatBodySize }

// Datapoint is a single sensor reading. Value is the raw 32-bit sample;
// boards that sample floating point send IEEE-754 float32 bits.
type Datapoint struct {
	SensorID uint8
	Value    uint32
}

// FloatDatapoint builds a datapoint carrying the bits of a float32 reading
func FloatDatapoint(sensorID uint8, v float32) Datapoint {
	return Datapoint{SensorID: sensorID, Value: math.Float32bits(v)}
}

// Float reinterprets the raw value as a float32
func (d Datapoint) Float() float32 {
	return math.Float32frombits(d.Value)
}

// Chunk is one timestamped group of readings, one per sensor
type Chunk struct {
	Timestamp  uint32
	Datapoints []Datapoint
}

// SensorData carries NumSensors readings for each of its chunks
type SensorData struct {
	NumSensors uint8
	Chunks     []Chunk
}

// NewSensorData returns an empty sensor data packet whose chunks each
// hold numSensors datapoints
func NewSensorData(numSensors uint8) *SensorData {
	return &SensorData{NumSensors: numSensors}
}

// AddChunk starts a new chunk with the given timestamp.
// Fails once the packet holds MaxCount chunks.
func (s *SensorData) AddChunk(timestamp uint32) error {
	if len(s.Chunks) >= MaxCount {
		return fieldError("encode", PacketSensorData, ErrCountOutOfRange, "num_chunks", len(s.Chunks)+1)
	}
	s.Chunks = append(s.Chunks, Chunk{
		Timestamp:  timestamp,
		Datapoints: make([]Datapoint, 0, s.NumSensors),
	})
	return nil
}

// AddDatapoint appends a reading to the most recent chunk. Fails if no chunk
// has been started or the chunk already holds NumSensors datapoints.
func (s *SensorData) AddDatapoint(sensorID uint8, value uint32) error {
	if len(s.Chunks) == 0 {
		return fieldError("encode", PacketSensorData, ErrCountOutOfRange, "num_chunks", 0)
	}
	c := &s.Chunks[len(s.Chunks)-1]
	if len(c.Datapoints) >= int(s.NumSensors) {
		return fieldError("encode", PacketSensorData, ErrCountOutOfRange, "num_datapoints", len(c.Datapoints)+1)
	}
	c.Datapoints = append(c.Datapoints, Datapoint{SensorID: sensorID, Value: value})
	return nil
}

// ChunkFull reports whether the most recent chunk holds NumSensors datapoints
func (s *SensorData) ChunkFull() bool {
	if len(s.Chunks) == 0 {
		return false
	}
	return len(s.Chunks[len(s.Chunks)-1].Datapoints) >= int(s.NumSensors)
}

func (SensorData) PacketType() PacketType { return PacketSensorData }

func (s SensorData) WireSize() int {
	return sensorDataSize(len(s.Chunks), int(s.NumSensors))
}

func sensorDataSize(numChunks, numSensors int) int {
	return HeaderSize + SensorDataBodySize + numChunks*(ChunkHeaderSize+numSensors*DatapointSize)
}

// ActuatorCommand sets one actuator to a board-defined state
type ActuatorCommand struct {
	ActuatorID uint8
	State      uint8
}

// ActuatorCommands is the body of an ACTUATOR_COMMAND packet
type ActuatorCommands []ActuatorCommand

func (ActuatorCommands) PacketType() PacketType { return PacketActuatorCommand }

func (c ActuatorCommands) WireSize() int {
	return HeaderSize + ActuatorCommandBodySize + len(c)*ActuatorCommandSize
}

// SensorConfig tells a sensor board which sensors to report and whether it
// takes part in the abort sequence
type SensorConfig struct {
	SensorIDs         []uint8
	NecessaryForAbort bool
	ControllerIP      uint32 // only on the wire when NecessaryForAbort, zero otherwise
}

func (SensorConfig) PacketType() PacketType { return PacketSensorConfig }

func (s SensorConfig) WireSize() int {
	n := HeaderSize + SensorConfigBodySize + len(s.SensorIDs) + SensorConfigAbortFlag
	if s.NecessaryForAbort {
		n += SensorConfigControllerIP
	}
	return n
}

// AbortActuatorLocation locates an actuator needed by the abort sequence
type AbortActuatorLocation struct {
	IP         uint32
	ActuatorID uint8
	Purpose    ActuatorPurpose
}

// AbortPTLocation locates a pressure transducer needed by the abort sequence
type AbortPTLocation struct {
	IP       uint32
	SensorID uint8
	Purpose  PTPurpose
}

// ActuatorConfig is the static abort configuration of an actuator board
type ActuatorConfig struct {
	IsAbortController bool
	Actuators         [AbortActuatorSlots]AbortActuatorLocation
	PTs               [AbortPTSlots]AbortPTLocation
}

func (ActuatorConfig) PacketType() PacketType { return PacketActuatorConfig }
func (ActuatorConfig) WireSize() int          { return HeaderSize + ActuatorConfigBodySize }

// UsedSlots returns the number of actuator and PT slots with a purpose
func (c ActuatorConfig) UsedSlots() (actuators, pts int) {
	for _, a := range c.Actuators {
		if a.Purpose != ActuatorPurposeNone {
			actuators++
		}
	}
	for _, p := range c.PTs {
		if p.Purpose != PTPurposeNone {
			pts++
		}
	}
	return actuators, pts
}

// Abort orders every board into its abort sequence
type Abort struct{}

func (Abort) PacketType() PacketType { return PacketAbort }
func (Abort) WireSize() int          { return HeaderSize }

// AbortDone acknowledges a completed abort sequence
type AbortDone struct{}

func (AbortDone) PacketType() PacketType { return PacketAbortDone }
func (AbortDone) WireSize() int          { return HeaderSize }

// ClearAbort returns boards from abort to normal operation
type ClearAbort struct{}

func (ClearAbort) PacketType() PacketType { return PacketClearAbort }
func (ClearAbort) WireSize() int          { return HeaderSize }

// IPv4 converts an IPv4 address to its u32 wire value
func IPv4(addr netip.Addr) uint32 {
	if !addr.Is4() {
		return 0
	}
	b := addr.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// AddrFromIPv4 converts a u32 wire value back to an address
func AddrFromIPv4(ip uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
}
