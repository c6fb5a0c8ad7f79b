package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	s := m.styles

	header := s.Header.Render(fmt.Sprintf(" hotreloadctl  %s ", m.addr))

	status := "connecting"
	if m.connected {
		status = "connected"
	} else if m.connErr != nil {
		status = "disconnected: " + m.connErr.Error()
	}

	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		statRow(s, "browsers", strconv.Itoa(m.stats.ConnectedClients)),
		"  ",
		statRow(s, "sequence", strconv.FormatUint(m.stats.Sequence, 10)),
		"  ",
		statRow(s, "last frame", m.lastKind),
		"  ",
		statRow(s, "ws", status),
	)

	var cacheLine string
	if session := m.stats.Session; session != nil {
		cacheLine = lipgloss.JoinHorizontal(lipgloss.Top,
			statRow(s, "cache hits", fmt.Sprint(session["cache_hits"])),
			"  ",
			statRow(s, "cache misses", fmt.Sprint(session["cache_misses"])),
			"  ",
			statRow(s, "evictions", fmt.Sprint(session["cache_evictions"])),
			"  ",
			statRow(s, "full reloads", fmt.Sprint(session["full_reloads_sent"])),
		)
	}

	footer := s.Footer.Render("q to quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		stats,
		cacheLine,
		"",
		s.LogPane.Render(m.log.View()),
		footer,
	)
}

func statRow(s Styles, label, value string) string {
	return s.Label.Render(label+": ") + s.Value.Render(value)
}
