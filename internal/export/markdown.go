// Package export writes the current projection of a surface as markdown or
// JSON.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
)

// Markdown formats every non-empty section of p as a markdown document.
func Markdown(name string, p *panel.Panel) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Command bar: %s\n", name)
	fmt.Fprintf(&b, "> Exported %s\n", now().Format("2006-01-02 15:04"))

	for _, id := range panel.Sections {
		s, ok := p.Find(id)
		if !ok || len(s.Children) == 0 {
			continue
		}
		n := countLeaves(s)
		noun := "items"
		if n == 1 {
			noun = "item"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", s.Title, n, noun)
		for _, c := range s.Children {
			writeNode(&b, c, 0)
		}
	}

	return b.String()
}

func writeNode(b *strings.Builder, n *panel.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.Kind == panel.KindFolder {
		fmt.Fprintf(b, "%s- **%s**\n", indent, n.Title)
		for _, c := range n.Children {
			writeNode(b, c, depth+1)
		}
		return
	}
	title := n.Title
	if title == "" {
		title = n.URL
	}
	fmt.Fprintf(b, "%s- [%s](%s)", indent, title, n.URL)
	if len(n.Badges) > 0 {
		fmt.Fprintf(b, " `%s`", strings.Join(n.Badges, "` `"))
	}
	b.WriteByte('\n')
}

func countLeaves(n *panel.Node) int {
	count := 0
	for _, c := range n.Children {
		if c.Kind == panel.KindFolder {
			count += countLeaves(c)
			continue
		}
		count++
	}
	return count
}

var now = time.Now
