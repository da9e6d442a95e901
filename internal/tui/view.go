package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-suite-runner/internal/stats"
)

// maxLastLine bounds the output excerpt shown for failed groups.
const maxLastLine = 60

func (m Model) renderDashboard() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderProgress(),
		m.renderGroups(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" %s test suite │ Workers: %d │ Passed: %d │ Failed: %d │ Elapsed: %s ",
		m.program,
		m.workers,
		m.Count(StatePassed),
		m.Count(StateFailed),
		stats.FormatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

func (m Model) renderProgress() string {
	barWidth := max(m.width-30, 20)

	var status string
	switch {
	case m.interrupting:
		status = statusWarning.Render("Interrupting... waiting for running groups to clean up")
	case m.Count(StateRunning) > 0:
		status = statusInfo.Render(fmt.Sprintf("Running %d, %d pending",
			m.Count(StateRunning), m.Count(StatePending)))
	default:
		status = mutedStyle.Render("Waiting")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Progress"),
		RenderProgressBar(m.Progress(), barWidth),
		status,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderGroups() string {
	nameWidth := 12
	for _, r := range m.rows {
		nameWidth = max(nameWidth, len(r.name))
	}

	lines := []string{sectionHeaderStyle.Render("Test groups")}
	for _, r := range m.rows {
		lines = append(lines, m.renderRow(r, nameWidth))
	}
	return boxStyle.Width(m.width - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) renderRow(r groupRow, nameWidth int) string {
	var elapsed string
	switch r.state {
	case StateRunning:
		elapsed = stats.FormatSeconds(m.now.Sub(r.started).Truncate(time.Millisecond))
	case StatePassed, StateFailed, StateInterrupted:
		elapsed = stats.FormatSeconds(r.duration)
	}

	row := fmt.Sprintf("%-*s  %-16s %10s", nameWidth, r.name, GetStateLabel(r.state), elapsed)
	if r.state == StateFailed {
		detail := fmt.Sprintf("status %d", r.status)
		if r.lastLine != "" {
			detail += ": " + truncate(r.lastLine, maxLastLine)
		}
		row += "  " + dimStyle.Render(detail)
	}
	return row
}

func (m Model) renderFooter() string {
	if m.interrupting {
		return footerStyle.Render("Press Ctrl+C again to leave without waiting")
	}
	return footerStyle.Render("Press Ctrl+C or q to interrupt the run")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
