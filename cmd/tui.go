// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/diablo/pkg/diablo"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *diablo.Statistics
	boards        *boardTable
	engineState   *diablo.EngineState
	aborts        int
	lastAbort     time.Time
	eventLog      []eventLogEntry
	maxLogEntries int
	logView       viewport.Model
	follow        bool
	synchronized  bool
	droppedFrames int
	connErr       error
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type packetMsg struct {
	received
	validationErrors []diablo.ValidationError
}
type syncMsg struct {
	droppedFrames int
}
type connectionLostMsg struct {
	err error
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// formatUptime formats a duration in milliseconds to a human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         diablo.NewStatistics(),
		boards:        newBoardTable(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 500,
		logView:       viewport.New(76, 5),
		follow:        true,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		case "end":
			m.follow = true
			m.logView.GotoBottom()
			return m, nil
		}
		// Remaining keys scroll the event log
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		m.follow = m.logView.AtBottom()
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		m.follow = m.logView.AtBottom()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLog()

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.droppedFrames = msg.droppedFrames
		if msg.droppedFrames > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after dropping %d frames", msg.droppedFrames), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.connErr = msg.err
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case packetMsg:
		m.handlePacket(msg)
	}

	return m, nil
}

func (m *model) handlePacket(msg packetMsg) {
	switch {
	case msg.linkErr != nil:
		m.stats.LinkError()
		m.addLogEntry(fmt.Sprintf("LINK ERROR: %v", msg.linkErr), true)

	case msg.decodeErr != nil:
		m.stats.Update(nil, msg.decodeErr, nil)
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)

	case msg.packet != nil:
		m.stats.Update(msg.packet, nil, msg.validationErrors)
		packetType := diablo.FormatPacketType(msg.packet.Header.Type)

		if m.boards.observe(msg.packet, msg.at) {
			hb := msg.packet.Body.(diablo.BoardHeartbeat)
			m.addLogEntry(fmt.Sprintf("Board found: %s #%d", hb.BoardType, hb.BoardID), false)
		}

		switch body := msg.packet.Body.(type) {
		case diablo.ServerHeartbeat:
			state := body.EngineState
			if m.engineState == nil || *m.engineState != state {
				m.addLogEntry(fmt.Sprintf("Engine state: %s", state), false)
			}
			m.engineState = &state
		case diablo.Abort:
			m.aborts++
			m.lastAbort = msg.at
			m.addLogEntry("ABORT received", true)
		}

		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", packetType, err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s (valid)", packetType), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}

	m.logView.SetContent(m.renderLog())
	if m.follow {
		m.logView.GotoBottom()
	}
}

// resizeLog fits the event log viewport to the space left under the
// statistics and board boxes
func (m *model) resizeLog() {
	logHeight := m.height - 18 - m.boards.len()
	if logHeight < 5 {
		logHeight = 5
	}
	m.logView.Width = m.width - 8
	m.logView.Height = logHeight
	if m.follow {
		m.logView.GotoBottom()
	}
}

func (m model) renderLog() string {
	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var b strings.Builder
	for i, entry := range m.eventLog {
		if i > 0 {
			b.WriteString("\n")
		}
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return b.String()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("DIABLO - PACKET STATISTICS"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'r' reset, 'q' quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	// Connection / sync status
	switch {
	case m.connErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Connection lost: %v", m.connErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.droppedFrames > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (dropped %d frames)", m.droppedFrames)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStats()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Stand:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.renderStand()))
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.logView.View()))

	return s.String()
}

func (m model) renderStats() string {
	c := m.stats.Snapshot()

	var validPercent, errorPercent float64
	errorsTotal := c.TotalPackets - c.ValidPackets
	if c.TotalPackets > 0 {
		validPercent = float64(c.ValidPackets) * 100.0 / float64(c.TotalPackets)
		errorPercent = float64(errorsTotal) * 100.0 / float64(c.TotalPackets)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", c.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", c.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorsTotal, errorPercent)),
	))

	if c.LinkErrors > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Link Errors:"), errorStyle.Render(fmt.Sprintf("%d", c.LinkErrors))))
	}

	decodeErrors := c.BufferTooSmall + c.TypeMismatches + c.CountErrors + c.Truncated + c.UnknownTags + c.OtherErrors
	if decodeErrors > 0 {
		b.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", decodeErrors)),
			headerStyle.Render("short"), c.BufferTooSmall+c.Truncated,
			headerStyle.Render("bad count"), c.CountErrors,
			headerStyle.Render("unknown tag"), c.UnknownTags,
			headerStyle.Render("other"), c.TypeMismatches+c.OtherErrors,
		))
	}

	var anomalies []string
	for a := diablo.AnomalyVersionMismatch; a <= diablo.AnomalyMissingController; a++ {
		if n := c.Anomalies[a]; n > 0 {
			anomalies = append(anomalies, fmt.Sprintf("%s: %d", headerStyle.Render(a.String()), n))
		}
	}
	if len(anomalies) > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(strings.Join(anomalies, ", "))))
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	if c.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", c.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", c.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(uint64(time.Since(c.StartTime).Milliseconds()))),
	))

	return b.String()
}

func (m model) renderStand() string {
	var b strings.Builder

	engine := headerStyle.Render("unknown")
	if m.engineState != nil {
		engine = statsValueStyle.Render(m.engineState.String())
	}
	b.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Engine:"), engine))
	if m.aborts > 0 {
		b.WriteString(fmt.Sprintf("   %s %s",
			statsLabelStyle.Render("Aborts:"),
			errorStyle.Render(fmt.Sprintf("%d (last %s)", m.aborts, m.lastAbort.Format("15:04:05")))))
	}

	boards := m.boards.list()
	if len(boards) == 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("(no boards seen)"))
		return b.String()
	}

	now := time.Now()
	for _, board := range boards {
		state := statsValueStyle.Render(board.boardState.String())
		if board.boardState == diablo.BoardStateAbort || board.boardState == diablo.BoardStateAbortDone {
			state = errorStyle.Render(board.boardState.String())
		}
		age := now.Sub(board.lastSeen)
		seen := headerStyle.Render(fmt.Sprintf("%s ago", age.Round(100*time.Millisecond)))
		if age > 2*time.Second {
			seen = warningStyle.Render(fmt.Sprintf("silent %s", age.Round(time.Second)))
		}
		b.WriteString(fmt.Sprintf("\n%s %s  %s",
			statsLabelStyle.Render(fmt.Sprintf("%-20s #%-3d", board.boardType, board.boardID)),
			state, seen))
	}
	return b.String()
}
