package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nerrad567/gray-logic-dashsync/internal/device"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	roomStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("238"))

	onStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true).
			PaddingLeft(1)
)

const helpLine = "↑/↓ move  space toggle  a/o room on/off  r refresh  q quit"

// View renders the dashboard.
func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(" " + m.title + " "))
	sb.WriteString("\n\n")

	body := m.renderDevices()
	if m.height > 0 {
		// title(2) + divider(1) + status(2)
		body = clipLines(body, max(m.height-5, 1))
	}
	sb.WriteString(body)
	sb.WriteString("\n")

	width := m.width
	if width <= 0 {
		width = 40
	}
	sb.WriteString(strings.Repeat("─", width))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())

	return sb.String()
}

func (m Model) renderDevices() string {
	if len(m.devices) == 0 {
		if m.loading {
			return dimStyle.Render("  Loading devices…")
		}
		return dimStyle.Render("  No devices.")
	}

	var lines []string
	room := "\x00"
	for i, d := range m.devices {
		if !strings.EqualFold(d.Room, room) {
			room = d.Room
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, roomStyle.Render(roomLabel(room)))
		}

		line := fmt.Sprintf("  %-28s %-8s %s", truncate(d.Name, 28), d.Type, m.renderValue(d))
		if i == m.cursor {
			line = cursorStyle.Render("▸" + line[1:])
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderValue shows on/off for toggleable devices and the reading for the
// rest. Pending and offline are marked after the value.
func (m Model) renderValue(d device.Device) string {
	var value string
	switch {
	case d.Type.Toggleable():
		if d.IsOn {
			value = onStyle.Render("ON ")
		} else {
			value = offStyle.Render("OFF")
		}
	case d.Value != nil:
		value = strings.TrimSpace(fmt.Sprintf("%v %s", d.Value, d.Unit))
	default:
		value = "-"
	}

	if m.src.IsPending(d.ID) {
		value += " " + pendingStyle.Render("…")
	}
	if !d.IsOnline {
		value += " " + dimStyle.Render("offline")
	}
	return value
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	parts := []string{fmt.Sprintf("%d devices", len(m.devices))}
	if m.loading {
		parts = append(parts, "loading…")
	}
	if !m.lastState.IsZero() {
		parts = append(parts, "updated "+m.lastState.Format("15:04:05"))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	parts = append(parts, helpLine)
	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}

func clipLines(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
