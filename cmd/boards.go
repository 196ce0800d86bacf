// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

var (
	boardsTimeout int
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List boards seen by heartbeat",
	Long: `Listen for BOARD_HEARTBEAT packets and list every board that reported.

Boards are identified by board type and board id. The table shows the last
reported board state and engine state, how many heartbeats were received and
when the board was last heard from.

Exit codes:
  0 - At least one board found
  1 - No boards found before the timeout
  2 - Connection error`,
	RunE: runBoards,
}

func init() {
	rootCmd.AddCommand(boardsCmd)
	boardsCmd.Flags().IntVar(&boardsTimeout, "timeout", 5, "Time in seconds to listen for heartbeats")
}

// boardKey identifies a board on the stand
type boardKey struct {
	boardType diablo.BoardType
	boardID   uint8
}

// boardInfo is the latest heartbeat state of one board
type boardInfo struct {
	boardKey
	boardState  diablo.BoardState
	engineState diablo.EngineState
	heartbeats  uint64
	firstSeen   time.Time
	lastSeen    time.Time
}

// boardTable tracks boards by their heartbeats. It is safe for concurrent use.
type boardTable struct {
	mu     sync.Mutex
	boards map[boardKey]*boardInfo
}

func newBoardTable() *boardTable {
	return &boardTable{boards: make(map[boardKey]*boardInfo)}
}

// observe records p if it is a board heartbeat. Returns true the first
// time a board is seen.
func (t *boardTable) observe(p *diablo.Packet, at time.Time) bool {
	hb, ok := p.Body.(diablo.BoardHeartbeat)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := boardKey{boardType: hb.BoardType, boardID: hb.BoardID}
	info, found := t.boards[key]
	if !found {
		info = &boardInfo{boardKey: key, firstSeen: at}
		t.boards[key] = info
	}
	info.boardState = hb.BoardState
	info.engineState = hb.EngineState
	info.heartbeats++
	info.lastSeen = at
	return !found
}

// list returns the boards ordered by type then id
func (t *boardTable) list() []boardInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]boardInfo, 0, len(t.boards))
	for _, info := range t.boards {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].boardType != out[j].boardType {
			return out[i].boardType < out[j].boardType
		}
		return out[i].boardID < out[j].boardID
	})
	return out
}

func (t *boardTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.boards)
}

// printBoards writes the board table
func printBoards(w io.Writer, boards []boardInfo, now time.Time) {
	fmt.Fprintf(w, "%-20s %4s  %-10s  %-12s  %6s  %s\n", "TYPE", "ID", "STATE", "ENGINE", "BEATS", "LAST SEEN")
	for _, b := range boards {
		fmt.Fprintf(w, "%-20s %4d  %-10s  %-12s  %6d  %s ago\n",
			b.boardType, b.boardID, b.boardState, b.engineState, b.heartbeats,
			now.Sub(b.lastSeen).Round(time.Millisecond))
	}
}

// discoverBoards reports each new board on out until timeout or until the
// connection closes. The reader is stopped before the table is returned, so
// nothing more is written to out afterwards.
func discoverBoards(out io.Writer, conn PacketConn, timeout time.Duration) ([]boardInfo, error) {
	decoder := newDecoder()
	table := newBoardTable()
	done := make(chan error, 1)

	go func() {
		for {
			r, err := receive(conn, decoder)
			if err != nil {
				done <- err
				return
			}
			if r.packet == nil {
				continue
			}
			if table.observe(r.packet, r.at) {
				hb := r.packet.Body.(diablo.BoardHeartbeat)
				fmt.Fprintf(out, "Board found: %s #%d (%s)\n", hb.BoardType, hb.BoardID, hb.BoardState)
			}
		}
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			return nil, err
		}
	case <-time.After(timeout):
		// Closing unblocks the reader; its error is expected
		conn.Close()
		<-done
	}
	return table.list(), nil
}

func runBoards(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Diablo - Board Discovery\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Listening: %d seconds\n\n", boardsTimeout)

	boards, err := discoverBoards(out, conn, time.Duration(boardsTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	fmt.Fprintf(out, "\n--- %d board(s) ---\n", len(boards))
	if len(boards) == 0 {
		os.Exit(1)
	}
	printBoards(out, boards, time.Now())
	return nil
}
