// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/internal/config"
	"github.com/Thermoquad/diablo/pkg/capture"
	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	replayValidate bool
	replayStats    bool
	replayType     string
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode and print a capture file",
	Long: `Decode and print the packets recorded by monitor --capture.

The capture keeps the raw packet bytes, so it is decoded again with the
current codec settings. The byte order recorded in the capture header is used
unless the --config file sets one.

Use --type to print only one packet type, --validate to check packets against
the firmware limits and --stats to print a statistics summary at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayValidate, "validate", false, "Check packets against firmware limits")
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print a statistics summary")
	replayCmd.Flags().StringVar(&replayType, "type", "", "Only print packets of this type")
}

// replayCapture decodes every record of a capture stream to w and returns
// the accumulated statistics
func replayCapture(w io.Writer, r io.Reader, filter diablo.PacketType, validate bool) (*diablo.Statistics, error) {
	cr, err := capture.NewReader(r)
	if err != nil {
		return nil, err
	}
	h := cr.Header()

	opts := appConfig.Codec.Options()
	if configPath == "" && h.ByteOrder != "" {
		order, err := config.ParseByteOrder(h.ByteOrder)
		if err != nil {
			return nil, fmt.Errorf("capture header: %w", err)
		}
		opts = append(opts, diablo.WithByteOrder(order))
	}
	decoder := diablo.NewDecoder(opts...)
	limits := validationLimits()
	stats := diablo.NewStatistics()

	fmt.Fprintf(w, "Capture: created %s", h.Created.Format("2006-01-02 15:04:05"))
	if h.Source != "" {
		fmt.Fprintf(w, " from %s", h.Source)
	}
	fmt.Fprintf(w, "\n\n")

	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		if rec.LinkError != "" {
			stats.LinkError()
			if filter == 0 {
				printLinkError(w, rec.Time, errors.New(rec.LinkError))
			}
			continue
		}

		packet, decodeErr := decoder.DecodePacket(rec.Raw)
		if decodeErr != nil {
			stats.Update(nil, decodeErr, nil)
			if filter == 0 {
				printDecodeError(w, rec.Time, rec.Raw, decodeErr)
			}
			continue
		}

		var validationErrors []diablo.ValidationError
		if validate {
			validationErrors = diablo.ValidatePacket(packet, limits)
		}
		stats.Update(packet, nil, validationErrors)

		if filter != 0 && packet.Header.Type != filter {
			continue
		}
		printPacket(w, rec.Time, packet)
		if len(validationErrors) > 0 {
			printValidationErrors(w, rec.Time, packet, validationErrors)
		}
	}
}

func runReplay(cmd *cobra.Command, args []string) error {
	var filter diablo.PacketType
	if replayType != "" {
		t, err := diablo.ParsePacketType(replayType)
		if err != nil {
			return err
		}
		filter = t
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	stats, err := replayCapture(out, f, filter, replayValidate)
	if err != nil {
		return err
	}
	if replayStats {
		fmt.Fprintln(out)
		fmt.Fprint(out, stats.String())
	}
	return nil
}
