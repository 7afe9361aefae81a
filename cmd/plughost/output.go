// output.go: terminal styles and table rendering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agilira/plughost"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	cellStyle    = lipgloss.NewStyle().PaddingRight(2)
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// renderDiscovery renders discovery results as a table relative to dir.
func renderDiscovery(dir string, results []plughost.DiscoveryResult) string {
	if len(results) == 0 {
		return mutedStyle.Render("No plugin manifests found in " + dir)
	}

	rows := [][]string{{"STATUS", "ID", "VERSION", "MANIFEST", "DETAIL"}}
	ok := 0
	for _, r := range results {
		rel, err := filepath.Rel(dir, r.Source)
		if err != nil {
			rel = r.Source
		}
		if r.OK() {
			ok++
			rows = append(rows, []string{"ok", r.Identity.ID, r.Identity.Version, rel, r.Identity.Name})
		} else {
			rows = append(rows, []string{"error", "-", "-", rel, r.Error})
		}
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, titleStyle.Render("Plugins in "+dir))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			style := cellStyle.Width(widths[j] + 2)
			switch {
			case i == 0:
				style = style.Inherit(headerStyle)
			case j == 0 && cell == "ok":
				style = style.Inherit(okStyle)
			case j == 0:
				style = style.Inherit(errorStyle)
			}
			cells[j] = style.Render(cell)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	lines = append(lines, summaryStyle.Render(fmt.Sprintf("%d found, %d valid, %d invalid", len(results), ok, len(results)-ok)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderDiagnostic describes a validation outcome.
func renderDiagnostic(identity plughost.PluginIdentity, err error) string {
	if err == nil {
		return okStyle.Render("valid") + " " + fmt.Sprintf("%s %s (%s)", identity.ID, identity.Version, identity.Name)
	}

	var reason string
	switch {
	case plughost.IsMissingReference(err):
		reason = "module did not provide a plugin"
	case plughost.IsInvalidIdentity(err):
		reason = "invalid identity: " + plughost.InvalidField(err) + " is blank"
	case plughost.IsIncompatible(err):
		reason = "incompatible with this host version"
	default:
		reason = err.Error()
	}
	return strings.Join([]string{errorStyle.Render("invalid"), reason}, " ")
}
