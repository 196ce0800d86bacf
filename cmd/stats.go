// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Track packet statistics, errors and anomalies",
	Long: `Track packet errors, malformed data and anomalous values with statistics.

This command decodes and validates each packet and detects:
  - Frames dropped by the link layer (CRC, framing, overflow)
  - Decode failures (truncation, bad counts, unknown enumeration tags)
  - Anomalies the codec accepts but firmware would never send
    (counts above board limits, oversize packets, duplicate ids,
    protocol version mismatch, abort entries without a controller)
  - Statistics and trends (packet rate, error rate, per-type counts)

By default, only errors are displayed. Use --show-all to display valid packets too.

The terminal UI also tracks every board seen by heartbeat and the last engine
state broadcast by the coordinator. Use --tui=false for plain text output with
periodic statistics summaries.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	statsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	statsCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runStats(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(cmd.OutOrStdout(), conn, connInfo)
}

// runTUIMode runs statistics in TUI mode
func runTUIMode(conn PacketConn, connInfo string) error {
	decoder := newDecoder()
	limits := validationLimits()

	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		synchronized := false
		droppedBeforeSync := 0

		for {
			r, err := receive(conn, decoder)
			if err != nil {
				p.Send(connectionLostMsg{err: err})
				return
			}

			if r.linkErr != nil && !synchronized {
				droppedBeforeSync++
				continue
			}
			if r.packet != nil && !synchronized {
				synchronized = true
				p.Send(syncMsg{droppedFrames: droppedBeforeSync})
			}

			var validationErrors []diablo.ValidationError
			if r.packet != nil {
				validationErrors = diablo.ValidatePacket(r.packet, limits)
			}
			p.Send(packetMsg{received: r, validationErrors: validationErrors})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs statistics in text mode
func runTextMode(out io.Writer, conn PacketConn, connInfo string) error {
	fmt.Fprintf(out, "Diablo - Packet Statistics\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Fprintf(out, "Mode: All packets\n")
	} else {
		fmt.Fprintf(out, "Mode: Errors only\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	decoder := newDecoder()
	limits := validationLimits()
	stats := diablo.NewStatistics()

	// Sync tracking - ignore link errors until the first good frame
	synchronized := false
	droppedBeforeSync := 0

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	stop := make(chan struct{})
	defer close(stop)
	packets, readErr := readPackets(conn, decoder, stop)

	for {
		select {
		case r, ok := <-packets:
			if !ok {
				// Reader stopped; its error is on readErr
				packets = nil
				continue
			}
			if r.linkErr != nil {
				if !synchronized {
					droppedBeforeSync++
					continue
				}
				stats.LinkError()
				printLinkError(out, r.at, r.linkErr)
				continue
			}

			if !synchronized && r.packet != nil {
				synchronized = true
				if droppedBeforeSync > 0 {
					fmt.Fprintf(out, "[SYNC] Synchronized after dropping %d frames\n\n", droppedBeforeSync)
				} else {
					fmt.Fprintf(out, "[SYNC] Synchronized\n\n")
				}
			}

			if r.decodeErr != nil {
				stats.Update(nil, r.decodeErr, nil)
				printDecodeError(out, r.at, r.raw, r.decodeErr)
				continue
			}

			validationErrors := diablo.ValidatePacket(r.packet, limits)
			stats.Update(r.packet, nil, validationErrors)

			if len(validationErrors) > 0 {
				printValidationErrors(out, r.at, r.packet, validationErrors)
			} else if r.packet.Header.Type == diablo.PacketAbort {
				// Always print aborts
				printPacket(out, r.at, r.packet)
			} else if showAll {
				printPacket(out, r.at, r.packet)
			}

		case <-statsTicker.C:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			fmt.Fprintln(out)

		case err := <-readErr:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			if errors.Is(err, ErrConnectionClosed) {
				log.Info().Msg("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case <-interrupt:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			return nil
		}
	}
}
