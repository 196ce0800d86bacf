// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/internal/config"
	"github.com/Thermoquad/diablo/internal/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// UDP connection flags
	udpListen string
	udpRemote string

	configPath string
	logLevel   string

	// appConfig is the resolved configuration, loaded before any command runs
	appConfig = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "diablo",
	Short: "Diablo test stand protocol tool",
	Long: `Diablo - A CLI tool for the Diablo engine test stand wire protocol.

Monitors, decodes and validates packets exchanged between the coordinator and
the field boards, and can act as a coordinator: sending heartbeats, commands,
aborts and the sensor/abort configuration tables.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  UDP:       --udp 0.0.0.0:5000 [--remote 10.0.0.255:5000]

Connection defaults and the board provisioning tables can be kept in a TOML
file passed with --config.

For WebSocket authentication, the password is read from the DIABLO_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// UDP connection flags
	rootCmd.PersistentFlags().StringVar(&udpListen, "udp", "", "Local UDP address to listen on (host:port)")
	rootCmd.PersistentFlags().StringVar(&udpRemote, "remote", "", "Remote UDP address for outgoing packets (host:port)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// loadConfig resolves the configuration file and logger, then fills in any
// connection flag the user did not set from the file's transport section
func loadConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = appConfig.Log.Level
	logCfg.NoColor = appConfig.Log.NoColor
	logging.ApplyEnv(&logCfg)
	if logLevel != "" {
		lvl, ok := logging.ParseLevel(logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logCfg.Level = lvl
	}
	logging.Configure(logCfg)

	flags := cmd.Flags()
	t := appConfig.Transport
	if !flags.Changed("port") {
		portName = t.SerialPort
	}
	if !flags.Changed("baud") && t.Baud > 0 {
		baudRate = t.Baud
	}
	if !flags.Changed("url") {
		wsURL = t.URL
	}
	if !flags.Changed("username") {
		wsUsername = t.Username
	}
	if !flags.Changed("udp") {
		udpListen = t.UDPListen
	}
	if !flags.Changed("remote") {
		udpRemote = t.Remote
	}

	if configPath != "" {
		log.Debug().Str("path", configPath).
			Int("sensor_boards", len(appConfig.SensorBoards)).
			Int("actuator_boards", len(appConfig.ActuatorBoards)).
			Msg("configuration loaded")
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
