package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/analyzer"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
)

// DetailModel shows information about the selected item.
type DetailModel struct {
	Width      int
	Height     int
	Scroll     int // scroll offset
	ContentLen int // total lines in content
}

// ScrollUp adjusts the scroll offset upward.
func (m *DetailModel) ScrollUp() {
	if m.Scroll > 0 {
		m.Scroll--
	}
}

// ScrollDown adjusts the scroll offset downward.
func (m *DetailModel) ScrollDown() {
	if m.Scroll < m.ContentLen-m.Height {
		m.Scroll++
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}
}

// ResetScroll resets the scroll offset to 0.
func (m *DetailModel) ResetScroll() {
	m.Scroll = 0
}

// NodeInfo is what the detail pane knows about a row beyond the node.
type NodeInfo struct {
	LastVisit time.Time
	LinkedTab int
	Hints     []string
}

func age(t time.Time) string {
	d := time.Since(t)
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%d days ago", days)
	}
	if hours := int(d.Hours()); hours > 0 {
		return fmt.Sprintf("%d hours ago", hours)
	}
	return "just now"
}

func (m DetailModel) ViewNode(n *panel.Node, info NodeInfo) string {
	if n == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	width := m.Width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder

	b.WriteString(labelStyle.Render(kindLabel(n.Kind)) + "\n")
	title := label(n)
	if r := []rune(title); len(r) > width {
		title = string(r[:width-1]) + "…"
	}
	b.WriteString(valueStyle.Render(title) + "\n\n")

	if n.Kind == panel.KindSection || n.Kind == panel.KindFolder {
		b.WriteString(labelStyle.Render("Items") + "\n")
		b.WriteString(valueStyle.Render(fmt.Sprintf("%d", len(n.Children))) + "\n\n")
	}

	if n.URL != "" {
		b.WriteString(labelStyle.Render("URL") + "\n")
		url := n.URL
		// Wrap long URLs
		for len(url) > width {
			b.WriteString(valueStyle.Render(url[:width]) + "\n")
			url = url[width:]
		}
		b.WriteString(valueStyle.Render(url) + "\n\n")

		b.WriteString(labelStyle.Render("Domain") + "\n")
		b.WriteString(valueStyle.Render(analyzer.Hostname(n.URL)) + "\n\n")
	}

	if !info.LastVisit.IsZero() {
		b.WriteString(labelStyle.Render("Last Visited") + "\n")
		b.WriteString(valueStyle.Render(age(info.LastVisit)) + "\n\n")
	}

	if info.LinkedTab != 0 {
		b.WriteString(labelStyle.Render("Open in tab") + "\n")
		b.WriteString(valueStyle.Render(fmt.Sprintf("#%d", info.LinkedTab)) + "\n\n")
	}

	if len(n.Badges) > 0 {
		b.WriteString(labelStyle.Render("Status") + "\n")
		b.WriteString(strings.TrimSpace(renderBadges(n.Badges)) + "\n\n")
	}

	for _, h := range info.Hints {
		b.WriteString(hintStyle.Render("  "+h) + "\n")
	}

	return b.String()
}

func kindLabel(k panel.Kind) string {
	switch k {
	case panel.KindSection:
		return "Section"
	case panel.KindFolder:
		return "Folder"
	case panel.KindBookmark:
		return "Bookmark"
	case panel.KindTab:
		return "Tab"
	case panel.KindPinned:
		return "Pinned"
	case panel.KindHistory:
		return "History"
	}
	return string(k)
}

// ViewScrolled applies scroll offset and height truncation to the content string.
func (m *DetailModel) ViewScrolled(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	m.ContentLen = len(lines)

	maxScroll := m.ContentLen - m.Height
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.Scroll > maxScroll {
		m.Scroll = maxScroll
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}

	end := m.Scroll + m.Height
	if end > len(lines) {
		end = len(lines)
	}
	if m.Scroll >= len(lines) {
		return ""
	}
	return strings.Join(lines[m.Scroll:end], "\n")
}
