// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the diablo TOML configuration: codec settings,
// transport defaults, logging and the per-board provisioning tables.
package config

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/diablo/internal/logging"
	"github.com/Thermoquad/diablo/pkg/diablo"
)

// Config is the resolved configuration
type Config struct {
	Codec          Codec
	Log            Log
	Transport      Transport
	SensorBoards   []SensorBoard
	ActuatorBoards []ActuatorBoard
}

// Codec holds the protocol settings every participant must agree on
type Codec struct {
	Version   uint8
	ByteOrder binary.ByteOrder
	Policy    diablo.Policy
}

// Options returns the codec settings as encoder/decoder options
func (c Codec) Options() []diablo.Option {
	return []diablo.Option{
		diablo.WithVersion(c.Version),
		diablo.WithByteOrder(c.ByteOrder),
		diablo.WithPolicy(c.Policy),
	}
}

// Log holds logger settings
type Log struct {
	Level   zerolog.Level
	NoColor bool
}

// Transport holds connection defaults, overridden by command-line flags
type Transport struct {
	SerialPort        string
	Baud              int
	URL               string
	Username          string
	UDPListen         string
	Remote            string
	HeartbeatInterval time.Duration
}

// SensorBoard is the provisioning entry for one sensor board
type SensorBoard struct {
	Name    string
	Address string
	Config  diablo.SensorConfig
}

// ActuatorBoard is the provisioning entry for one actuator board
type ActuatorBoard struct {
	Name    string
	Address string
	Config  diablo.ActuatorConfig
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Codec: Codec{
			Version:   diablo.DefaultVersion,
			ByteOrder: binary.LittleEndian,
		},
		Log: Log{Level: zerolog.InfoLevel},
		Transport: Transport{
			Baud:              115200,
			HeartbeatInterval: 500 * time.Millisecond,
		},
	}
}

type fileConfig struct {
	Codec struct {
		Version   int        `toml:"version"`
		ByteOrder string     `toml:"byte_order"`
		Policy    filePolicy `toml:"policy"`
	} `toml:"codec"`
	Log struct {
		Level   string `toml:"level"`
		NoColor bool   `toml:"no_color"`
	} `toml:"log"`
	Transport struct {
		SerialPort        string `toml:"serial_port"`
		Baud              int    `toml:"baud"`
		URL               string `toml:"url"`
		Username          string `toml:"username"`
		UDPListen         string `toml:"udp_listen"`
		Remote            string `toml:"remote"`
		HeartbeatInterval string `toml:"heartbeat_interval"`
	} `toml:"transport"`
	SensorBoards   []fileSensorBoard   `toml:"sensor_board"`
	ActuatorBoards []fileActuatorBoard `toml:"actuator_board"`
}

type filePolicy struct {
	RejectEmptySensorData  bool `toml:"reject_empty_sensor_data"`
	AllowEmptyCommands     bool `toml:"allow_empty_commands"`
	AllowEmptySensorConfig bool `toml:"allow_empty_sensor_config"`
	AllowEmptyAbortTables  bool `toml:"allow_empty_abort_tables"`
}

type fileSensorBoard struct {
	Name              string `toml:"name"`
	Address           string `toml:"address"`
	Sensors           []int  `toml:"sensors"`
	NecessaryForAbort bool   `toml:"necessary_for_abort"`
	Controller        string `toml:"controller"`
}

type fileActuatorBoard struct {
	Name            string          `toml:"name"`
	Address         string          `toml:"address"`
	AbortController bool            `toml:"abort_controller"`
	AbortActuators  []fileAbortSlot `toml:"abort_actuator"`
	AbortPTs        []fileAbortSlot `toml:"abort_pt"`
}

type fileAbortSlot struct {
	Purpose string `toml:"purpose"`
	IP      string `toml:"ip"`
	ID      int    `toml:"id"`
}

// Load reads the configuration file at path on top of Default
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return resolve(meta, raw)
}

// Parse reads configuration from TOML text on top of Default
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return resolve(meta, raw)
}

func resolve(meta toml.MetaData, raw fileConfig) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	cfg := Default()

	if meta.IsDefined("codec", "version") {
		if raw.Codec.Version < 0 || raw.Codec.Version > 255 {
			return Config{}, fmt.Errorf("codec.version %d out of range 0-255", raw.Codec.Version)
		}
		cfg.Codec.Version = uint8(raw.Codec.Version)
	}
	if meta.IsDefined("codec", "byte_order") {
		order, err := ParseByteOrder(raw.Codec.ByteOrder)
		if err != nil {
			return Config{}, err
		}
		cfg.Codec.ByteOrder = order
	}
	cfg.Codec.Policy = diablo.Policy{
		RejectEmptySensorData:  raw.Codec.Policy.RejectEmptySensorData,
		AllowEmptyCommands:     raw.Codec.Policy.AllowEmptyCommands,
		AllowEmptySensorConfig: raw.Codec.Policy.AllowEmptySensorConfig,
		AllowEmptyAbortTables:  raw.Codec.Policy.AllowEmptyAbortTables,
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("log.level: unknown level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	cfg.Log.NoColor = raw.Log.NoColor

	if err := resolveTransport(meta, raw, &cfg.Transport); err != nil {
		return Config{}, err
	}

	for i, b := range raw.SensorBoards {
		board, err := resolveSensorBoard(b, cfg.Codec.Policy)
		if err != nil {
			return Config{}, fmt.Errorf("sensor_board[%d]: %w", i, err)
		}
		cfg.SensorBoards = append(cfg.SensorBoards, board)
	}
	for i, b := range raw.ActuatorBoards {
		board, err := resolveActuatorBoard(b, cfg.Codec.Policy)
		if err != nil {
			return Config{}, fmt.Errorf("actuator_board[%d]: %w", i, err)
		}
		cfg.ActuatorBoards = append(cfg.ActuatorBoards, board)
	}

	return cfg, nil
}

func resolveTransport(meta toml.MetaData, raw fileConfig, t *Transport) error {
	if meta.IsDefined("transport", "serial_port") {
		t.SerialPort = strings.TrimSpace(raw.Transport.SerialPort)
	}
	if meta.IsDefined("transport", "baud") {
		if raw.Transport.Baud <= 0 {
			return fmt.Errorf("transport.baud must be positive, got %d", raw.Transport.Baud)
		}
		t.Baud = raw.Transport.Baud
	}
	if meta.IsDefined("transport", "url") {
		t.URL = strings.TrimSpace(raw.Transport.URL)
	}
	if meta.IsDefined("transport", "username") {
		t.Username = strings.TrimSpace(raw.Transport.Username)
	}
	if meta.IsDefined("transport", "udp_listen") {
		t.UDPListen = strings.TrimSpace(raw.Transport.UDPListen)
	}
	if meta.IsDefined("transport", "remote") {
		t.Remote = strings.TrimSpace(raw.Transport.Remote)
	}
	if meta.IsDefined("transport", "heartbeat_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Transport.HeartbeatInterval))
		if err != nil {
			return fmt.Errorf("parse transport.heartbeat_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("transport.heartbeat_interval must be positive, got %s", d)
		}
		t.HeartbeatInterval = d
	}
	return nil
}

func resolveSensorBoard(b fileSensorBoard, policy diablo.Policy) (SensorBoard, error) {
	board := SensorBoard{Name: b.Name, Address: strings.TrimSpace(b.Address)}
	if board.Address == "" {
		return SensorBoard{}, fmt.Errorf("address is required")
	}

	if len(b.Sensors) > diablo.MaxCount {
		return SensorBoard{}, fmt.Errorf("%d sensors (max %d)", len(b.Sensors), diablo.MaxCount)
	}
	if len(b.Sensors) == 0 && !policy.AllowEmptySensorConfig {
		return SensorBoard{}, fmt.Errorf("sensors must not be empty")
	}
	ids := make([]uint8, len(b.Sensors))
	for i, id := range b.Sensors {
		v, err := byteID("sensor", id)
		if err != nil {
			return SensorBoard{}, err
		}
		ids[i] = v
	}
	board.Config.SensorIDs = ids

	if b.NecessaryForAbort {
		ip, err := ParseIPv4(b.Controller)
		if err != nil {
			return SensorBoard{}, fmt.Errorf("controller: %w", err)
		}
		board.Config.NecessaryForAbort = true
		board.Config.ControllerIP = ip
	}
	return board, nil
}

func resolveActuatorBoard(b fileActuatorBoard, policy diablo.Policy) (ActuatorBoard, error) {
	board := ActuatorBoard{Name: b.Name, Address: strings.TrimSpace(b.Address)}
	if board.Address == "" {
		return ActuatorBoard{}, fmt.Errorf("address is required")
	}
	c := &board.Config
	c.IsAbortController = b.AbortController

	// Each purpose owns the slot at index purpose-1
	for i, s := range b.AbortActuators {
		purpose, err := diablo.ParseActuatorPurpose(s.Purpose)
		if err != nil || purpose == diablo.ActuatorPurposeNone {
			return ActuatorBoard{}, fmt.Errorf("abort_actuator[%d]: invalid purpose %q", i, s.Purpose)
		}
		slot := int(purpose) - 1
		if c.Actuators[slot].Purpose != diablo.ActuatorPurposeNone {
			return ActuatorBoard{}, fmt.Errorf("abort_actuator[%d]: purpose %s listed twice", i, purpose)
		}
		ip, err := ParseIPv4(s.IP)
		if err != nil {
			return ActuatorBoard{}, fmt.Errorf("abort_actuator[%d]: %w", i, err)
		}
		id, err := byteID("actuator", s.ID)
		if err != nil {
			return ActuatorBoard{}, fmt.Errorf("abort_actuator[%d]: %w", i, err)
		}
		c.Actuators[slot] = diablo.AbortActuatorLocation{IP: ip, ActuatorID: id, Purpose: purpose}
	}

	for i, s := range b.AbortPTs {
		purpose, err := diablo.ParsePTPurpose(s.Purpose)
		if err != nil || purpose == diablo.PTPurposeNone {
			return ActuatorBoard{}, fmt.Errorf("abort_pt[%d]: invalid purpose %q", i, s.Purpose)
		}
		slot := int(purpose) - 1
		if c.PTs[slot].Purpose != diablo.PTPurposeNone {
			return ActuatorBoard{}, fmt.Errorf("abort_pt[%d]: purpose %s listed twice", i, purpose)
		}
		ip, err := ParseIPv4(s.IP)
		if err != nil {
			return ActuatorBoard{}, fmt.Errorf("abort_pt[%d]: %w", i, err)
		}
		id, err := byteID("sensor", s.ID)
		if err != nil {
			return ActuatorBoard{}, fmt.Errorf("abort_pt[%d]: %w", i, err)
		}
		c.PTs[slot] = diablo.AbortPTLocation{IP: ip, SensorID: id, Purpose: purpose}
	}

	if actuators, pts := c.UsedSlots(); actuators+pts == 0 && !policy.AllowEmptyAbortTables {
		return ActuatorBoard{}, fmt.Errorf("abort tables are empty")
	}
	return board, nil
}

func byteID(kind string, id int) (uint8, error) {
	if id < 0 || id > 255 {
		return 0, fmt.Errorf("%s id %d out of range 0-255", kind, id)
	}
	return uint8(id), nil
}

// ParseIPv4 parses a dotted-quad address into its wire value
func ParseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("address %q is not IPv4", s)
	}
	return diablo.IPv4(addr), nil
}

// ParseByteOrder parses "little" or "big"
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "little", "le", "little-endian", "little_endian":
		return binary.LittleEndian, nil
	case "big", "be", "big-endian", "big_endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q (want little or big)", name)
	}
}

// ByteOrderName returns "little" or "big"
func ByteOrderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big"
	}
	return "little"
}
