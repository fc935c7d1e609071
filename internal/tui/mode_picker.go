package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

type ModeOption struct {
	Label string
	Value string
}

// ModePicker is an overlay choosing one of a fixed set of modes.
type ModePicker struct {
	Title   string
	Options []ModeOption
	Cursor  int
	Width   int
	Height  int
}

func newModePicker(title string, options []ModeOption, current string) ModePicker {
	cursor := 0
	for i, opt := range options {
		if opt.Value == current {
			cursor = i
			break
		}
	}
	return ModePicker{Title: title, Options: options, Cursor: cursor}
}

func NewSortPicker(current types.TabSortMode) ModePicker {
	return newModePicker("Sort tabs by:", []ModeOption{
		{"Tab position", string(types.SortByPosition)},
		{"Last visit", string(types.SortByLastVisit)},
		{"Domain", string(types.SortByDomain)},
	}, string(current))
}

func NewViewPicker(current types.BookmarkViewMode) ModePicker {
	return newModePicker("Show bookmarks as:", []ModeOption{
		{"Folders", string(types.ViewFolder)},
		{"Open in a tab", string(types.ViewActive)},
		{"Grouped by domain", string(types.ViewDomain)},
	}, string(current))
}

func (m *ModePicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ModePicker) MoveDown() {
	if m.Cursor < len(m.Options)-1 {
		m.Cursor++
	}
}

func (m ModePicker) Selected() ModeOption {
	return m.Options[m.Cursor]
}

func (m ModePicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title) + "\n\n")

	for i, opt := range m.Options {
		label := opt.Label
		if i == m.Cursor {
			label = selectedStyle.Render(label)
		} else {
			label = normalStyle.Render("  " + label)
		}
		b.WriteString(label + "\n")
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter select · esc cancel"))

	return boxStyle.Render(b.String())
}
