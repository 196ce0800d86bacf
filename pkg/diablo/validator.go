// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package diablo

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyVersionMismatch AnomalyType = iota
	AnomalyInvalidCount
	AnomalyOversize
	AnomalyDuplicateID
	AnomalyTimestampOrder
	AnomalyMissingController
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyVersionMismatch:
		return "version_mismatch"
	case AnomalyInvalidCount:
		return "invalid_count"
	case AnomalyOversize:
		return "oversize"
	case AnomalyDuplicateID:
		return "duplicate_id"
	case AnomalyTimestampOrder:
		return "timestamp_order"
	case AnomalyMissingController:
		return "missing_controller"
	default:
		return fmt.Sprintf("anomaly(%d)", int(a))
	}
}

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Limits are the board ceilings a packet is checked against. A zero field
// disables that check.
type Limits struct {
	Version    uint8
	MaxSensors int
	MaxChunks  int
	MaxCommand int
	MaxSize    int
}

// DefaultLimits returns the firmware ceilings for the default protocol version
func DefaultLimits() Limits {
	return Limits{
		Version:    DefaultVersion,
		MaxSensors: MaxSensorsPerBoard,
		MaxChunks:  MaxChunksPerPacket,
		MaxCommand: MaxActuatorsPerBoard,
		MaxSize:    MaxPacketSize,
	}
}

// ValidatePacket checks a decoded packet for anomalies the codec accepts but
// the firmware would never produce. Returns an empty slice for a clean packet.
func ValidatePacket(p *Packet, lim Limits) []ValidationError {
	errors := []ValidationError{}

	if lim.Version != 0 && p.Header.Version != lim.Version {
		errors = append(errors, ValidationError{
			Type:    AnomalyVersionMismatch,
			Message: fmt.Sprintf("Protocol version %d (expected %d)", p.Header.Version, lim.Version),
			Details: map[string]interface{}{"version": p.Header.Version, "expected": lim.Version},
		})
	}

	if p.Body == nil {
		return errors
	}

	if size := p.Body.WireSize(); lim.MaxSize > 0 && size > lim.MaxSize {
		errors = append(errors, ValidationError{
			Type:    AnomalyOversize,
			Message: fmt.Sprintf("%s packet is %d bytes (max %d)", FormatPacketType(p.Header.Type), size, lim.MaxSize),
			Details: map[string]interface{}{"size": size, "max": lim.MaxSize},
		})
	}

	switch v := p.Body.(type) {
	case SensorData:
		errors = append(errors, validateSensorData(v, lim)...)
	case ActuatorCommands:
		errors = append(errors, validateActuatorCommands(v, lim)...)
	case SensorConfig:
		errors = append(errors, validateSensorConfig(v, lim)...)
	case ActuatorConfig:
		errors = append(errors, validateActuatorConfig(v)...)
	}

	return errors
}

// validateSensorData validates SENSOR_DATA packet
func validateSensorData(v SensorData, lim Limits) []ValidationError {
	errors := []ValidationError{}

	if lim.MaxChunks > 0 && len(v.Chunks) > lim.MaxChunks {
		errors = append(errors, countAnomaly("num_chunks", len(v.Chunks), lim.MaxChunks))
	}
	if lim.MaxSensors > 0 && int(v.NumSensors) > lim.MaxSensors {
		errors = append(errors, countAnomaly("num_sensors", int(v.NumSensors), lim.MaxSensors))
	}

	for i, chunk := range v.Chunks {
		if i > 0 && chunk.Timestamp <= v.Chunks[i-1].Timestamp {
			errors = append(errors, ValidationError{
				Type:    AnomalyTimestampOrder,
				Message: fmt.Sprintf("Chunk %d timestamp %d not after %d", i, chunk.Timestamp, v.Chunks[i-1].Timestamp),
				Details: map[string]interface{}{"chunk": i, "timestamp": chunk.Timestamp, "previous": v.Chunks[i-1].Timestamp},
			})
		}

		ids := make([]uint8, len(chunk.Datapoints))
		for j, dp := range chunk.Datapoints {
			ids[j] = dp.SensorID
		}
		if dup, ok := firstDuplicate(ids); ok {
			errors = append(errors, duplicateAnomaly(fmt.Sprintf("chunk %d sensor", i), dup))
		}
	}

	return errors
}

// validateActuatorCommands validates ACTUATOR_COMMAND packet
func validateActuatorCommands(v ActuatorCommands, lim Limits) []ValidationError {
	errors := []ValidationError{}

	if lim.MaxCommand > 0 && len(v) > lim.MaxCommand {
		errors = append(errors, countAnomaly("num_commands", len(v), lim.MaxCommand))
	}

	ids := make([]uint8, len(v))
	for i, cmd := range v {
		ids[i] = cmd.ActuatorID
	}
	if dup, ok := firstDuplicate(ids); ok {
		errors = append(errors, duplicateAnomaly("actuator", dup))
	}

	return errors
}

// validateSensorConfig validates SENSOR_CONFIG packet
func validateSensorConfig(v SensorConfig, lim Limits) []ValidationError {
	errors := []ValidationError{}

	if lim.MaxSensors > 0 && len(v.SensorIDs) > lim.MaxSensors {
		errors = append(errors, countAnomaly("num_sensors", len(v.SensorIDs), lim.MaxSensors))
	}
	if dup, ok := firstDuplicate(v.SensorIDs); ok {
		errors = append(errors, duplicateAnomaly("sensor", dup))
	}
	if v.NecessaryForAbort && v.ControllerIP == 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyMissingController,
			Message: "Abort participant without controller address",
			Details: map[string]interface{}{"controller_ip": v.ControllerIP},
		})
	}

	return errors
}

// validateActuatorConfig validates ACTUATOR_CONFIG packet
func validateActuatorConfig(v ActuatorConfig) []ValidationError {
	errors := []ValidationError{}

	for i, a := range v.Actuators {
		if a.Purpose != ActuatorPurposeNone && a.IP == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingController,
				Message: fmt.Sprintf("Abort actuator %s has no board address", a.Purpose),
				Details: map[string]interface{}{"slot": i, "purpose": a.Purpose.String()},
			})
		}
	}
	for i, pt := range v.PTs {
		if pt.Purpose != PTPurposeNone && pt.IP == 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingController,
				Message: fmt.Sprintf("Abort PT %s has no board address", pt.Purpose),
				Details: map[string]interface{}{"slot": i, "purpose": pt.Purpose.String()},
			})
		}
	}

	return errors
}

func countAnomaly(field string, n, max int) ValidationError {
	return ValidationError{
		Type:    AnomalyInvalidCount,
		Message: fmt.Sprintf("Invalid %s=%d (max %d)", field, n, max),
		Details: map[string]interface{}{field: n, "max": max},
	}
}

func duplicateAnomaly(what string, id uint8) ValidationError {
	return ValidationError{
		Type:    AnomalyDuplicateID,
		Message: fmt.Sprintf("Duplicate %s id %d", what, id),
		Details: map[string]interface{}{"id": id},
	}
}

func firstDuplicate(ids []uint8) (uint8, bool) {
	var seen [256]bool
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return 0, false
}
