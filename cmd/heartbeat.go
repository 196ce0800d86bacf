// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	heartbeatInterval time.Duration
	heartbeatCount    int
	heartbeatEngine   string
	heartbeatQuiet    bool
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Act as coordinator and exchange heartbeats with the boards",
	Long: `Send SERVER_HEARTBEAT packets at a fixed interval and report the
BOARD_HEARTBEAT packets the boards send back.

A board that has not been heard from for three intervals is reported as
silent, and reported again when it comes back. ABORT and ABORT_DONE packets
are always printed.

The interval defaults to transport.heartbeat_interval from the --config file.

Exit codes:
  0 - Every board seen answered until the end
  1 - No board answered, or a board was silent at the end
  2 - Connection error`,
	RunE: runHeartbeat,
}

func init() {
	rootCmd.AddCommand(heartbeatCmd)
	heartbeatCmd.Flags().DurationVar(&heartbeatInterval, "interval", 0, "Heartbeat interval (default from config, 500ms)")
	heartbeatCmd.Flags().IntVar(&heartbeatCount, "count", 0, "Number of heartbeats to send (0 = until Ctrl+C)")
	heartbeatCmd.Flags().StringVar(&heartbeatEngine, "engine-state", "safe", "Engine state to broadcast")
	heartbeatCmd.Flags().BoolVar(&heartbeatQuiet, "quiet", false, "Only print board changes")
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	engineState, err := diablo.ParseEngineState(heartbeatEngine)
	if err != nil {
		return err
	}
	interval := heartbeatInterval
	if interval <= 0 {
		interval = appConfig.Transport.HeartbeatInterval
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Diablo - Coordinator Heartbeat\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Interval: %s, engine state: %s\n", interval, engineState)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	start := time.Now()
	encoder := newEncoder(start)
	decoder := newDecoder()
	table := newBoardTable()
	silent := make(map[boardKey]bool)

	stop := make(chan struct{})
	defer close(stop)
	packets, readErr := readPackets(conn, decoder, stop)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	send := func() error {
		data, err := encoder.Marshal(diablo.ServerHeartbeat{EngineState: engineState})
		if err != nil {
			return err
		}
		if err := conn.WritePacket(data); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		sent++
		return nil
	}
	if err := send(); err != nil {
		return err
	}

loop:
	for {
		select {
		case r, ok := <-packets:
			if !ok {
				// Reader stopped; its error is on readErr
				packets = nil
				continue
			}
			if r.packet == nil {
				log.Debug().AnErr("link", r.linkErr).AnErr("decode", r.decodeErr).Msg("dropped packet")
				continue
			}
			switch body := r.packet.Body.(type) {
			case diablo.BoardHeartbeat:
				key := boardKey{boardType: body.BoardType, boardID: body.BoardID}
				if table.observe(r.packet, r.at) {
					fmt.Fprintf(out, "[%s] Board found: %s #%d (%s)\n", stamp(r.at), body.BoardType, body.BoardID, body.BoardState)
				} else if silent[key] {
					fmt.Fprintf(out, "[%s] Board back: %s #%d (%s)\n", stamp(r.at), body.BoardType, body.BoardID, body.BoardState)
				} else if !heartbeatQuiet {
					fmt.Fprintf(out, "[%s] %s #%d %s engine=%s\n", stamp(r.at), body.BoardType, body.BoardID, body.BoardState, body.EngineState)
				}
				delete(silent, key)
				if body.EngineState != engineState {
					log.Warn().Str("board", fmt.Sprintf("%s #%d", body.BoardType, body.BoardID)).
						Str("reported", body.EngineState.String()).
						Str("broadcast", engineState.String()).
						Msg("board engine state differs")
				}
			case diablo.Abort, diablo.AbortDone:
				printPacket(out, r.at, r.packet)
			}

		case now := <-ticker.C:
			for _, b := range table.list() {
				if now.Sub(b.lastSeen) > 3*interval && !silent[b.boardKey] {
					silent[b.boardKey] = true
					fmt.Fprintf(out, "[%s] Board silent: %s #%d (last seen %s ago)\n",
						stamp(now), b.boardType, b.boardID, now.Sub(b.lastSeen).Round(time.Millisecond))
				}
			}
			if heartbeatCount > 0 && sent >= heartbeatCount {
				break loop
			}
			if err := send(); err != nil {
				return err
			}

		case err := <-readErr:
			if !errors.Is(err, ErrConnectionClosed) {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
				os.Exit(2)
			}
			break loop

		case <-interrupt:
			break loop
		}
	}

	boards := table.list()
	fmt.Fprintf(out, "\n--- Heartbeat statistics ---\n")
	fmt.Fprintf(out, "%d heartbeats sent in %s, %d board(s) answered, %d silent\n",
		sent, formatUptime(uint64(time.Since(start).Milliseconds())), len(boards), len(silent))
	if len(boards) > 0 {
		printBoards(out, boards, time.Now())
	}

	if len(boards) == 0 || len(silent) > 0 {
		os.Exit(1)
	}
	return nil
}
