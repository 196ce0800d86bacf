// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/internal/config"
	"github.com/Thermoquad/diablo/pkg/capture"
	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	monitorCapture  string
	monitorValidate bool
	monitorHex      bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display received packets in human-readable format",
	Long: `Continuously decode and display Diablo packets as they arrive.

Each packet is printed with its receive time, type, header and decoded body.
Frames dropped by the serial link layer and packets that fail to decode are
reported inline.

With --validate, decoded packets are also checked against the firmware limits
(counts, sizes, duplicate ids, protocol version) and anomalies are printed.

With --capture FILE, every received packet is appended to a capture file that
can be decoded again later with the replay command.

Supports serial, WebSocket and UDP connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Write received packets to a capture file")
	monitorCmd.Flags().BoolVar(&monitorValidate, "validate", false, "Check packets against firmware limits")
	monitorCmd.Flags().BoolVar(&monitorHex, "hex", false, "Print raw packet bytes")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	closeOnCancel(ctx, conn)

	var cw *capture.Writer
	if monitorCapture != "" {
		f, err := os.Create(monitorCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()

		cw, err = capture.NewWriter(f, capture.Header{
			ByteOrder: config.ByteOrderName(appConfig.Codec.ByteOrder),
			Source:    connInfo,
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Diablo - Packet Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	if cw != nil {
		fmt.Fprintf(out, "Capture: %s\n", monitorCapture)
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	decoder := newDecoder()
	limits := validationLimits()
	count := 0

	for {
		r, err := receive(conn, decoder)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) || ctx.Err() != nil {
				log.Info().Int("packets", count).Msg("monitor stopped")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		count++

		if cw != nil {
			if err := cw.Write(captureRecord(r, connInfo)); err != nil {
				return err
			}
		}

		switch {
		case r.linkErr != nil:
			printLinkError(out, r.at, r.linkErr)
		case r.decodeErr != nil:
			printDecodeError(out, r.at, r.raw, r.decodeErr)
		default:
			printPacket(out, r.at, r.packet)
			if monitorHex {
				fmt.Fprint(out, indent(diablo.FormatHex(r.raw)))
			}
			if monitorValidate {
				if errs := diablo.ValidatePacket(r.packet, limits); len(errs) > 0 {
					printValidationErrors(out, r.at, r.packet, errs)
				}
			}
		}
	}
}

// captureRecord converts a received item into a capture record
func captureRecord(r received, source string) capture.Record {
	rec := capture.Record{Time: r.at, Source: source, Raw: r.raw}
	if r.linkErr != nil {
		rec.LinkError = r.linkErr.Error()
	}
	return rec
}
