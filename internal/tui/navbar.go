package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
)

// TreeWidthPct is the percentage of terminal width used for the left (tree) pane.
const TreeWidthPct = 60

var sectionNames = map[string]string{
	panel.SectionPinned:    "Pinned",
	panel.SectionBookmarks: "Bookmarks",
	panel.SectionActive:    "Open",
	panel.SectionInactive:  "Inactive",
	panel.SectionHistory:   "History",
}

// renderNavbar shows the per-section counts on the left and the source and
// modes on the right.
func renderNavbar(counts map[string]int, source, modes string, width int) string {
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sourceStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	modesStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var tabs string
	for i, id := range panel.Sections {
		if i > 0 {
			tabs += emptyStyle.Render(" │ ")
		}
		name := sectionNames[id]
		if counts[id] == 0 {
			tabs += emptyStyle.Render(name)
			continue
		}
		tabs += nameStyle.Render(name) + countStyle.Render(fmt.Sprintf(" (%d)", counts[id]))
	}

	left := " " + tabs
	if modes != "" {
		left += "   " + modesStyle.Render(modes)
	}

	right := sourceStyle.Render(source)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
