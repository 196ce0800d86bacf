// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/internal/config"
	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	provisionDryRun bool
	provisionBoard  string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Send sensor and abort configuration tables to the boards",
	Long: `Send the board configuration tables from the --config file.

Every [[sensor_board]] entry becomes a SENSOR_CONFIG packet and every
[[actuator_board]] entry becomes an ACTUATOR_CONFIG packet carrying the abort
actuator and abort pressure transducer tables.

Over UDP each packet is sent to the board's own address. Serial and WebSocket
links carry every packet on the single connection.

With --dry-run the packets are printed and nothing is sent.`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
	provisionCmd.Flags().BoolVar(&provisionDryRun, "dry-run", false, "Print packets instead of sending")
	provisionCmd.Flags().StringVar(&provisionBoard, "board", "", "Only provision the board with this name")
}

// provisionPacket is one configuration packet bound for a board
type provisionPacket struct {
	board   string
	address string
	body    diablo.Body
	data    []byte
}

// buildProvisioning encodes the configuration packets for every board in
// cfg, or only the board named only when it is not empty
func buildProvisioning(cfg config.Config, enc *diablo.Encoder, only string) ([]provisionPacket, error) {
	var packets []provisionPacket

	add := func(name, address string, body diablo.Body) error {
		if only != "" && name != only {
			return nil
		}
		data, err := enc.Marshal(body)
		if err != nil {
			return fmt.Errorf("board %s: %w", name, err)
		}
		packets = append(packets, provisionPacket{board: name, address: address, body: body, data: data})
		return nil
	}

	for _, b := range cfg.SensorBoards {
		if err := add(b.Name, b.Address, b.Config); err != nil {
			return nil, err
		}
	}
	for _, b := range cfg.ActuatorBoards {
		if err := add(b.Name, b.Address, b.Config); err != nil {
			return nil, err
		}
	}

	if len(packets) == 0 {
		if only != "" {
			return nil, fmt.Errorf("no board named %q in configuration", only)
		}
		return nil, errors.New("configuration has no sensor_board or actuator_board entries")
	}
	return packets, nil
}

func printProvisioning(w io.Writer, packets []provisionPacket) {
	for _, p := range packets {
		fmt.Fprintf(w, "%s -> %s: %s (%d bytes)\n", p.board, p.address, p.body.PacketType(), len(p.data))
		fmt.Fprint(w, diablo.FormatBody(p.body))
		fmt.Fprint(w, indent(diablo.FormatHex(p.data)))
		fmt.Fprintln(w)
	}
}

func runProvision(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return errors.New("provision needs a --config file with board entries")
	}

	packets, err := buildProvisioning(appConfig, newEncoder(time.Now()), provisionBoard)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if provisionDryRun {
		printProvisioning(out, packets)
		return nil
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintf(out, "Diablo - Provisioning\n")
	fmt.Fprintf(out, "Connection: %s\n\n", connInfo)

	addressed, perBoard := conn.(addressedConn)
	for _, p := range packets {
		if perBoard && p.address != "" {
			err = addressed.WritePacketTo(p.data, p.address)
		} else {
			err = conn.WritePacket(p.data)
		}
		if err != nil {
			return fmt.Errorf("board %s: send failed: %w", p.board, err)
		}
		log.Debug().Str("board", p.board).Str("address", p.address).Int("bytes", len(p.data)).Msg("config sent")
		fmt.Fprintf(out, "%-16s %s sent\n", p.board, p.body.PacketType())
	}

	fmt.Fprintf(out, "\n%d configuration packet(s) sent\n", len(packets))
	return nil
}
