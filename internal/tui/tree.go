package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
)

// TreeModel is the scrollable list of visible panel rows.
type TreeModel struct {
	Lines  []panel.Line
	Cursor int
	Offset int // scroll offset
	Width  int
	Height int

	// DragID is the panel id of the bookmark being dragged, if any.
	DragID string
}

// SetLines replaces the rows and keeps the cursor on the same node when it
// is still visible.
func (m *TreeModel) SetLines(lines []panel.Line) {
	var current string
	if n := m.SelectedNode(); n != nil {
		current = n.ID
	}
	m.Lines = lines
	if current != "" {
		for i, l := range lines {
			if l.Node.ID == current {
				m.Cursor = i
				m.scrollToCursor()
				return
			}
		}
	}
	if m.Cursor >= len(lines) {
		m.Cursor = len(lines) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	m.scrollToCursor()
}

// SelectedNode returns the node under the cursor, or nil.
func (m TreeModel) SelectedNode() *panel.Node {
	if m.Cursor >= 0 && m.Cursor < len(m.Lines) {
		return m.Lines[m.Cursor].Node
	}
	return nil
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	m.scrollToCursor()
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	if m.Cursor < len(m.Lines)-1 {
		m.Cursor++
	}
	m.scrollToCursor()
}

// ParentSection moves the cursor to the header of the section it is in.
func (m *TreeModel) ParentSection() {
	for i := m.Cursor; i >= 0 && i < len(m.Lines); i-- {
		if m.Lines[i].Depth == 0 {
			m.Cursor = i
			m.scrollToCursor()
			return
		}
	}
}

func (m *TreeModel) rows() int {
	if m.Height < 1 {
		return 20
	}
	return m.Height
}

func (m *TreeModel) scrollToCursor() {
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
	if m.Cursor >= m.Offset+m.rows() {
		m.Offset = m.Cursor - m.rows() + 1
	}
	if m.Offset < 0 {
		m.Offset = 0
	}
}

var badgeColors = map[string]lipgloss.Color{
	"open":    lipgloss.Color("42"),  // green
	"focused": lipgloss.Color("62"),  // purple
	"pinned":  lipgloss.Color("214"), // orange
}

func renderBadges(badges []string) string {
	if len(badges) == 0 {
		return ""
	}
	dateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("33")) // blue
	parts := make([]string, 0, len(badges))
	for _, b := range badges {
		if c, ok := badgeColors[b]; ok {
			parts = append(parts, lipgloss.NewStyle().Foreground(c).Render(b))
			continue
		}
		parts = append(parts, dateStyle.Render(b))
	}
	return " " + strings.Join(parts, " ")
}

func icon(n *panel.Node) string {
	switch n.Kind {
	case panel.KindSection:
		if len(n.Children) == 0 {
			return "▷"
		}
		return "▼"
	case panel.KindFolder:
		if n.Expanded {
			return "▼"
		}
		return "▶"
	case panel.KindTab:
		return "○"
	case panel.KindPinned:
		return "◆"
	case panel.KindHistory:
		return "↺"
	}
	return "•"
}

func label(n *panel.Node) string {
	if n.Title != "" {
		return n.Title
	}
	return n.URL
}

// View renders the tree.
func (m TreeModel) View() string {
	if len(m.Lines) == 0 {
		return "Nothing to show."
	}

	end := m.Offset + m.rows()
	if end > len(m.Lines) {
		end = len(m.Lines)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	sectionStyle := lipgloss.NewStyle().Bold(true)
	folderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	dragStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)

	var b strings.Builder
	for i := m.Offset; i < end; i++ {
		l := m.Lines[i]
		n := l.Node
		indent := strings.Repeat("  ", l.Depth)

		var line string
		switch n.Kind {
		case panel.KindSection:
			line = sectionStyle.Render(fmt.Sprintf("%s %s (%d)", icon(n), n.Title, len(n.Children)))
		case panel.KindFolder:
			line = indent + folderStyle.Render(icon(n)+" "+label(n))
		default:
			text := label(n)
			maxLen := m.Width - len(indent) - 4
			if maxLen < 10 {
				maxLen = 10
			}
			if r := []rune(text); len(r) > maxLen {
				text = string(r[:maxLen-1]) + "…"
			}
			line = indent + icon(n) + " " + text
		}
		if n.Kind != panel.KindSection {
			line += renderBadges(n.Badges)
		}
		if n.ID == m.DragID && m.DragID != "" {
			line = dragStyle.Render(line + "  (moving)")
		}

		if i == m.Cursor {
			if pad := m.Width - lipgloss.Width(line); pad > 0 {
				line += strings.Repeat(" ", pad)
			}
			line = cursorStyle.Render(line)
		}

		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
