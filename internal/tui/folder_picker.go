package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// FolderOption is one folder of the bookmark tree, with its nesting depth.
type FolderOption struct {
	ID    string
	Title string
	Depth int
}

// FolderPicker chooses the folder the focused tab is bookmarked into.
type FolderPicker struct {
	Folders []FolderOption
	Cursor  int
	Width   int
	Height  int
}

// NewFolderPicker lists every folder under roots. The forest roots
// themselves are not offered.
func NewFolderPicker(roots []*types.BookmarkNode) FolderPicker {
	var folders []FolderOption
	var walk func(n *types.BookmarkNode, depth int)
	walk = func(n *types.BookmarkNode, depth int) {
		if !n.IsFolder() {
			return
		}
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		folders = append(folders, FolderOption{ID: n.ID, Title: title, Depth: depth})
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		for _, c := range r.Children {
			walk(c, 0)
		}
	}
	return FolderPicker{Folders: folders}
}

func (m *FolderPicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *FolderPicker) MoveDown() {
	if m.Cursor < len(m.Folders)-1 {
		m.Cursor++
	}
}

func (m FolderPicker) Selected() *FolderOption {
	if m.Cursor >= 0 && m.Cursor < len(m.Folders) {
		return &m.Folders[m.Cursor]
	}
	return nil
}

func (m FolderPicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Bookmark the focused tab into:") + "\n\n")

	if len(m.Folders) == 0 {
		b.WriteString(normalStyle.Render("No folders available.") + "\n")
	}
	for i, f := range m.Folders {
		label := strings.Repeat("  ", f.Depth) + f.Title
		if i == m.Cursor {
			b.WriteString(selectedStyle.Render("> "+label) + "\n")
		} else {
			b.WriteString(normalStyle.Render("  "+label) + "\n")
		}
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter select · esc cancel"))

	return boxStyle.Render(b.String())
}
