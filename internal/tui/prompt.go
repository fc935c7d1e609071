package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type promptKind int

const (
	promptNone promptKind = iota
	promptQuery
	promptRename
	promptTitle
	promptDate
)

// Prompt is a one-line text input shown in the bottom bar.
type Prompt struct {
	Kind  promptKind
	Label string
	Value string

	// Target is the entity the prompt edits: a bookmark id or a url.
	Target string
	// Title accompanies Target for prompts that store a title with it.
	Title string
}

func (p Prompt) Active() bool {
	return p.Kind != promptNone
}

// HandleKey edits the value. It reports whether the prompt was submitted
// or cancelled.
func (p *Prompt) HandleKey(msg tea.KeyMsg) (submitted, cancelled bool) {
	switch msg.Type {
	case tea.KeyEnter:
		return true, false
	case tea.KeyEsc, tea.KeyCtrlC:
		return false, true
	case tea.KeyBackspace:
		if r := []rune(p.Value); len(r) > 0 {
			p.Value = string(r[:len(r)-1])
		}
	case tea.KeyCtrlU:
		p.Value = ""
	case tea.KeySpace:
		p.Value += " "
	case tea.KeyRunes:
		p.Value += string(msg.Runes)
	}
	return false, false
}

func (p Prompt) View(width int) string {
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	line := " " + labelStyle.Render(p.Label) + " " + p.Value + "█"
	hint := hintStyle.Render("enter confirm · esc cancel · ctrl+u clear")
	if gap := width - lipgloss.Width(line) - lipgloss.Width(hint) - 1; gap > 0 {
		return line + strings.Repeat(" ", gap) + hint
	}
	return line
}
