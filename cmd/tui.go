// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Tracelab

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tracelab/cardscope/pkg/sdbus"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for informational entries
}

// TUI model
type model struct {
	info          string
	period        time.Duration
	statsInterval int
	showAll       bool
	stats         *sdbus.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	clockHz       float64
	lastFrame     *sdbus.Frame
	ended         bool
	truncation    error
	vp            viewport.Model
	vpReady       bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	frame            *sdbus.Frame
	decodeErr        error
	validationErrors []sdbus.ValidationError
}
type clockRateMsg float64
type streamEndMsg struct {
	truncation error
}

func initialModel(info string, period time.Duration, statsInterval int, showAll bool) model {
	return model{
		info:          info,
		period:        period,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         sdbus.NewStatistics(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 200,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
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
		}
		// Remaining keys scroll the event log
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logHeight := m.height - 14
		if logHeight < 5 {
			logHeight = 5
		}
		if !m.vpReady {
			m.vp = viewport.New(m.width-4, logHeight)
			m.vpReady = true
		} else {
			m.vp.Width = m.width - 4
			m.vp.Height = logHeight
		}
		m.refreshLog()

	case tickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, tickCmd()

	case clockRateMsg:
		m.clockHz = float64(msg)

	case streamEndMsg:
		m.ended = true
		m.truncation = msg.truncation
		if msg.truncation != nil {
			m.stats.RecordTruncation()
			m.addLogEntry(msg.truncation.Error(), true)
		} else {
			m.addLogEntry("End of stream", false)
		}

	case frameMsg:
		if msg.decodeErr != nil {
			m.stats.Update(nil, msg.decodeErr, nil)
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		} else if msg.frame != nil {
			m.stats.Update(msg.frame, nil, msg.validationErrors)
			m.lastFrame = msg.frame

			name := sdbus.CommandName(msg.frame.CommandIndex(), msg.frame.IsAppCommand())
			if len(msg.validationErrors) > 0 {
				for _, err := range msg.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s (%s): %s", name, msg.frame.Kind(), err.Message), true)
				}
			} else if m.showAll {
				m.addLogEntry(fmt.Sprintf("%s (%s) at line %d", name, msg.frame.Kind(), msg.frame.Line()), false)
			}
		}
	}

	return m, nil
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
	m.refreshLog()
}

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	tuiHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	tuiLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	tuiValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	tuiErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	tuiWarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	tuiBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// refreshLog rebuilds the viewport content from the event log.
func (m *model) refreshLog() {
	if !m.vpReady {
		return
	}

	content := strings.Builder{}
	if len(m.eventLog) == 0 {
		content.WriteString(tuiHeaderStyle.Render("  (no events yet)"))
	} else {
		for _, entry := range m.eventLog {
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				content.WriteString(fmt.Sprintf("%s %s\n",
					tuiHeaderStyle.Render(timestamp),
					tuiErrorStyle.Render("✗ "+entry.message),
				))
			} else {
				content.WriteString(fmt.Sprintf("%s %s\n",
					tuiHeaderStyle.Render(timestamp),
					tuiValueStyle.Render("• "+entry.message),
				))
			}
		}
	}

	atBottom := m.vp.AtBottom()
	m.vp.SetContent(content.String())
	if atBottom {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(tuiTitleStyle.Render("CARDSCOPE - BUS ANALYSIS"))
	s.WriteString("\n")
	s.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("Input: %s | Sample period: %v | Mode: %s | Press 'q' to quit",
		m.info, m.period, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Anomalies only"
		}())))
	s.WriteString("\n\n")

	// Stream status
	if m.ended {
		if m.truncation != nil {
			s.WriteString(tuiWarningStyle.Render("⚠ Stream ended with a truncated frame"))
		} else {
			s.WriteString(tuiValueStyle.Render("✓ Stream complete"))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	var anomalyPercent float64
	if m.stats.TotalFrames > 0 {
		anomalyPercent = float64(m.stats.AnomalousFrames) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		tuiLabelStyle.Render("Frames:"), tuiValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		tuiLabelStyle.Render("Commands:"), tuiValueStyle.Render(fmt.Sprintf("%d", m.stats.Commands)),
		tuiLabelStyle.Render("Responses:"), tuiValueStyle.Render(fmt.Sprintf("%d",
			m.stats.R1Responses+m.stats.R2Responses+m.stats.R3Responses+m.stats.R6Responses)),
		tuiLabelStyle.Render("Anomalous:"), func() string {
			if m.stats.AnomalousFrames > 0 {
				return tuiWarningStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.AnomalousFrames, anomalyPercent))
			}
			return tuiValueStyle.Render("0")
		}(),
	))

	if m.stats.DecodeErrors > 0 || m.stats.TruncatedFrames > 0 || m.stats.InvalidSamples > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			tuiLabelStyle.Render("Decode Errors:"), tuiErrorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
			tuiLabelStyle.Render("Truncated:"), tuiErrorStyle.Render(fmt.Sprintf("%d", m.stats.TruncatedFrames)),
			tuiLabelStyle.Render("Bad Samples:"), tuiErrorStyle.Render(fmt.Sprintf("%d", m.stats.InvalidSamples)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		tuiLabelStyle.Render("Frame Rate:"), tuiValueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		tuiLabelStyle.Render("Clock:"), func() string {
			if m.clockHz > 0 {
				return tuiValueStyle.Render(fmt.Sprintf("%g Hz", m.clockHz))
			}
			return tuiHeaderStyle.Render("(unknown)")
		}(),
	))

	s.WriteString(tuiBoxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest frame section (only shown once a frame decoded)
	if m.lastFrame != nil {
		s.WriteString(tuiLabelStyle.Render("Latest Frame:"))
		s.WriteString("\n")
		s.WriteString(tuiBoxStyle.Render(strings.TrimRight(sdbus.FormatFrame(m.lastFrame), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(tuiLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	if m.vpReady {
		s.WriteString(tuiBoxStyle.Width(m.width - 4).Render(m.vp.View()))
	} else {
		s.WriteString(tuiHeaderStyle.Render("  (initializing)"))
	}

	return s.String()
}
