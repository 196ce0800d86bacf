// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	sendHexOnly     bool
	sendBoardType   string
	sendBoardID     uint8
	sendBoardState  string
	sendEngineState string
)

var sendCmd = &cobra.Command{
	Use:   "send <kind> [actuator=state ...]",
	Short: "Build and transmit a single packet",
	Long: `Build one packet and send it over the connection.

Kinds:
  heartbeat          BOARD_HEARTBEAT (--board-type, --board-id, --board-state, --engine-state)
  server-heartbeat   SERVER_HEARTBEAT (--engine-state)
  command            ACTUATOR_COMMAND, one actuator=state pair per argument
  abort              ABORT
  abort-done         ABORT_DONE
  clear-abort        CLEAR_ABORT

With --hex the packet is printed as hex and nothing is sent, so no connection
flags are needed.

Examples:
  # Open actuator 3 and close actuator 4
  diablo send command 3=1 4=0 --udp 0.0.0.0:5000 --remote 10.0.0.5:5000

  # Inspect the bytes of a server heartbeat
  diablo send server-heartbeat --engine-state firing --hex`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendHexOnly, "hex", false, "Print the packet bytes instead of sending")
	sendCmd.Flags().StringVar(&sendBoardType, "board-type", "actuator", "Board type for heartbeat")
	sendCmd.Flags().Uint8Var(&sendBoardID, "board-id", 1, "Board id for heartbeat")
	sendCmd.Flags().StringVar(&sendBoardState, "board-state", "active", "Board state for heartbeat")
	sendCmd.Flags().StringVar(&sendEngineState, "engine-state", "safe", "Engine state for heartbeats")
}

// buildBody builds the packet body for a send kind
func buildBody(kind string, args []string) (diablo.Body, error) {
	kind = strings.ToLower(kind)
	if kind != "command" && len(args) > 0 {
		return nil, fmt.Errorf("%s takes no arguments", kind)
	}

	switch kind {
	case "heartbeat":
		boardType, err := diablo.ParseBoardType(sendBoardType)
		if err != nil {
			return nil, err
		}
		boardState, err := diablo.ParseBoardState(sendBoardState)
		if err != nil {
			return nil, err
		}
		engineState, err := diablo.ParseEngineState(sendEngineState)
		if err != nil {
			return nil, err
		}
		return diablo.BoardHeartbeat{
			BoardType:   boardType,
			BoardID:     sendBoardID,
			EngineState: engineState,
			BoardState:  boardState,
		}, nil

	case "server-heartbeat":
		engineState, err := diablo.ParseEngineState(sendEngineState)
		if err != nil {
			return nil, err
		}
		return diablo.ServerHeartbeat{EngineState: engineState}, nil

	case "command":
		return parseCommands(args)

	case "abort":
		return diablo.Abort{}, nil
	case "abort-done":
		return diablo.AbortDone{}, nil
	case "clear-abort":
		return diablo.ClearAbort{}, nil
	}

	return nil, fmt.Errorf("unknown packet kind %q", kind)
}

// parseCommands parses actuator=state pairs
func parseCommands(args []string) (diablo.ActuatorCommands, error) {
	cmds := make(diablo.ActuatorCommands, 0, len(args))
	for _, arg := range args {
		id, state, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid command %q (want actuator=state)", arg)
		}
		actuator, err := strconv.ParseUint(strings.TrimSpace(id), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid actuator id in %q: %w", arg, err)
		}
		value, err := strconv.ParseUint(strings.TrimSpace(state), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid actuator state in %q: %w", arg, err)
		}
		cmds = append(cmds, diablo.ActuatorCommand{ActuatorID: uint8(actuator), State: uint8(value)})
	}
	return cmds, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	body, err := buildBody(args[0], args[1:])
	if err != nil {
		return err
	}

	data, err := newEncoder(time.Now()).Marshal(body)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sendHexOnly {
		fmt.Fprint(out, diablo.FormatBody(body))
		fmt.Fprint(out, diablo.FormatHex(data))
		return nil
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WritePacket(data); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	log.Debug().Str("connection", connInfo).Int("bytes", len(data)).Msg("packet sent")
	fmt.Fprintf(out, "Sent %s (%d bytes) via %s\n", body.PacketType(), len(data), connInfo)
	return nil
}
