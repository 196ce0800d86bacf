// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Diablo packet",
	Long: `Wait for a valid Diablo packet on the connection until timeout.

This command connects to a serial port, WebSocket or UDP socket and waits for
any packet that decodes cleanly. Damaged frames and packets that fail to
decode are skipped.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error

Useful for checking that a board or bridge is talking before a test.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Diablo - Packet Test\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %d seconds\n", packetTestTimeout)
	fmt.Fprintf(out, "Waiting for valid Diablo packet...\n\n")

	decoder := newDecoder()
	packetChan := make(chan received, 1)
	errChan := make(chan error, 1)

	go func() {
		skipped := 0
		for {
			r, err := receive(conn, decoder)
			if err != nil {
				errChan <- err
				return
			}
			if r.packet == nil {
				skipped++
				continue
			}
			if skipped > 0 {
				fmt.Fprintf(out, "(skipped %d damaged packets before sync)\n", skipped)
			}
			packetChan <- r
			return
		}
	}()

	select {
	case r := <-packetChan:
		fmt.Fprintf(out, "SUCCESS: Received valid packet\n")
		fmt.Fprintf(out, "  Type: %s (0x%02X)\n", diablo.FormatPacketType(r.packet.Header.Type), uint8(r.packet.Header.Type))
		fmt.Fprintf(out, "  Version: %d\n", r.packet.Header.Version)
		fmt.Fprintf(out, "  Timestamp: %d ms\n", r.packet.Header.Timestamp)
		fmt.Fprintf(out, "  Length: %d bytes\n", len(r.raw))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
