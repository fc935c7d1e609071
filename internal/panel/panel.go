// Package panel holds the rendered projection of a surface: an ordered tree
// of id-addressed nodes that the reconciliation engine patches in place and
// the TUI draws. It plays the role a DOM plays in a browser panel.
package panel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Section ids. Sections are the fixed top-level containers.
const (
	SectionPinned    = "section:pinned"
	SectionBookmarks = "section:bookmarks"
	SectionActive    = "section:tabs-active"
	SectionInactive  = "section:tabs-inactive"
	SectionHistory   = "section:history"
)

// Sections lists every section in display order.
var Sections = []string{SectionPinned, SectionBookmarks, SectionActive, SectionInactive, SectionHistory}

var (
	ErrNoNode    = errors.New("panel node not found")
	ErrDuplicate = errors.New("panel node already present")
)

type Kind string

const (
	KindSection  Kind = "section"
	KindFolder   Kind = "folder"
	KindBookmark Kind = "bookmark"
	KindTab      Kind = "tab"
	KindPinned   Kind = "pinned"
	KindHistory  Kind = "history"
)

// Node is one rendered item.
type Node struct {
	ID       string
	Kind     Kind
	Title    string
	URL      string
	Badges   []string
	Expanded bool
	Children []*Node

	parent *Node
}

// BookmarkID returns the panel id of a bookmark or folder.
func BookmarkID(id string) string { return "bm:" + id }

// TabID returns the panel id of a tab.
func TabID(id int) string { return "tab:" + strconv.Itoa(id) }

// PinnedID returns the panel id of a pinned entry.
func PinnedID(url string) string { return "pin:" + url }

// HistoryID returns the panel id of a history row.
func HistoryID(url string) string { return "hist:" + url }

// EntityID strips the panel prefix from id.
func EntityID(id string) string {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Panel is safe for concurrent use.
type Panel struct {
	mu         sync.Mutex
	root       *Node
	byID       map[string]*Node
	renders    map[string]int
	patches    int
	generation int
}

// New returns a panel with every section mounted and empty.
func New() *Panel {
	p := &Panel{
		root:    &Node{ID: "root", Kind: KindSection},
		byID:    make(map[string]*Node),
		renders: make(map[string]int),
	}
	for _, s := range Sections {
		n := &Node{ID: s, Kind: KindSection, Title: sectionTitle(s), Expanded: true, parent: p.root}
		p.root.Children = append(p.root.Children, n)
		p.byID[s] = n
	}
	return p
}

func sectionTitle(id string) string {
	switch id {
	case SectionPinned:
		return "Pinned"
	case SectionBookmarks:
		return "Bookmarks"
	case SectionActive:
		return "Open tabs"
	case SectionInactive:
		return "Inactive tabs"
	case SectionHistory:
		return "History"
	}
	return id
}

// Mount replaces the content of a section with nodes. This is the full
// re-render path. On error the panel is unchanged.
func (p *Panel) Mount(section string, nodes []*Node) error {
	return p.MountSections(map[string][]*Node{section: nodes})
}

// MountSections replaces several sections in one step, so a node may move
// from one of them to another. Every target is validated before any is
// cleared; on error the panel is unchanged.
func (p *Panel) MountSections(content map[string][]*Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	leaving := make(map[string]bool)
	for section := range content {
		s, ok := p.byID[section]
		if !ok || s.Kind != KindSection {
			return fmt.Errorf("mount %s: %w", section, ErrNoNode)
		}
		for _, c := range s.Children {
			walkNode(c, func(n *Node) { leaving[n.ID] = true })
		}
	}
	incoming := make(map[string]bool)
	for section, nodes := range content {
		for _, n := range nodes {
			var dup string
			walkNode(n, func(c *Node) {
				_, mounted := p.byID[c.ID]
				if dup == "" && (incoming[c.ID] || mounted && !leaving[c.ID]) {
					dup = c.ID
				}
				incoming[c.ID] = true
			})
			if dup != "" {
				return fmt.Errorf("mount %s: attach %s: %w", section, dup, ErrDuplicate)
			}
		}
	}

	for section := range content {
		s := p.byID[section]
		for _, c := range s.Children {
			p.unindex(c)
		}
		s.Children = nil
	}
	for section, nodes := range content {
		s := p.byID[section]
		for _, n := range nodes {
			if err := p.attach(s, n, len(s.Children)); err != nil {
				return err
			}
		}
		p.renders[section]++
	}
	p.generation++
	return nil
}

// Has reports whether id is mounted.
func (p *Panel) Has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byID[id]
	return ok
}

// Find returns a detached copy of the node and its subtree.
func (p *Panel) Find(id string) (*Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return cloneNode(n, nil), true
}

// Position returns the parent id and sibling index of id.
func (p *Panel) Position(id string) (parentID string, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[id]
	if !ok || n.parent == nil {
		return "", 0, false
	}
	return n.parent.ID, indexOf(n.parent.Children, n), true
}

// ChildIDs returns the ids of parentID's children in order.
func (p *Panel) ChildIDs(parentID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[parentID]
	if !ok {
		return nil
	}
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.ID
	}
	return out
}

// InsertBefore mounts n under parentID before the sibling beforeID. An empty
// or unknown beforeID appends.
func (p *Panel) InsertBefore(parentID string, n *Node, beforeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	parent, ok := p.byID[parentID]
	if !ok {
		return fmt.Errorf("insert under %s: %w", parentID, ErrNoNode)
	}
	index := len(parent.Children)
	if before, ok := p.byID[beforeID]; ok && before.parent == parent {
		index = indexOf(parent.Children, before)
	}
	if err := p.attach(parent, n, index); err != nil {
		return err
	}
	p.patches++
	return nil
}

// Replace swaps the node id (and its subtree) for n at the same position.
func (p *Panel) Replace(id string, n *Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old, ok := p.byID[id]
	if !ok || old.parent == nil {
		return fmt.Errorf("replace %s: %w", id, ErrNoNode)
	}
	parent := old.parent
	index := indexOf(parent.Children, old)
	p.detach(old)
	if err := p.attach(parent, n, index); err != nil {
		_ = p.attach(parent, old, index)
		return err
	}
	p.patches++
	return nil
}

// Remove unmounts id and its subtree. It reports whether anything was
// removed.
func (p *Panel) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[id]
	if !ok || n.parent == nil || n.Kind == KindSection {
		return false
	}
	p.detach(n)
	p.patches++
	return true
}

// Move relocates id under parentID at index (position after removal,
// clamped).
func (p *Panel) Move(id, parentID string, index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[id]
	if !ok || n.parent == nil {
		return fmt.Errorf("move %s: %w", id, ErrNoNode)
	}
	parent, ok := p.byID[parentID]
	if !ok {
		return fmt.Errorf("move into %s: %w", parentID, ErrNoNode)
	}
	for a := parent; a != nil; a = a.parent {
		if a == n {
			return fmt.Errorf("move %s into its own subtree", id)
		}
	}
	old := n.parent
	old.Children = removeNode(old.Children, n)
	if index < 0 || index > len(parent.Children) {
		index = len(parent.Children)
	}
	parent.Children = insertNode(parent.Children, n, index)
	n.parent = parent
	p.patches++
	return nil
}

// SetExpanded toggles a folder's expanded flag without re-rendering.
func (p *Panel) SetExpanded(id string, expanded bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.byID[id]
	if !ok {
		return false
	}
	n.Expanded = expanded
	return true
}

// RenderCount returns how many full renders a section has had.
func (p *Panel) RenderCount(section string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renders[section]
}

// PatchCount returns how many incremental patches were applied.
func (p *Panel) PatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.patches
}

// Generation increases on every full render. Holders of node references
// (drag handlers, cursors) re-resolve them when it changes.
func (p *Panel) Generation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Line is one row of the flattened, visible panel.
type Line struct {
	Depth int
	Node  *Node
}

// Lines flattens the visible tree: collapsed folders hide their children.
func (p *Panel) Lines() []Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Line
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		out = append(out, Line{Depth: depth, Node: cloneNode(n, nil)})
		if n.Kind == KindFolder && !n.Expanded {
			return
		}
		if n.Kind == KindSection && len(n.Children) == 0 {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, s := range p.root.Children {
		walk(s, 0)
	}
	return out
}

// Dump returns a canonical text form of the whole tree, including collapsed
// content. Equal dumps mean equal panels.
func (p *Panel) Dump() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s %s %q", n.ID, n.Kind, n.Title)
		if n.URL != "" {
			fmt.Fprintf(&b, " <%s>", n.URL)
		}
		if len(n.Badges) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(n.Badges, ","))
		}
		if n.Kind == KindFolder && n.Expanded {
			b.WriteString(" +")
		}
		b.WriteByte('\n')
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, s := range p.root.Children {
		walk(s, 0)
	}
	return b.String()
}

func (p *Panel) attach(parent, n *Node, index int) error {
	var dup string
	walkNode(n, func(c *Node) {
		if _, ok := p.byID[c.ID]; ok && dup == "" {
			dup = c.ID
		}
	})
	if dup != "" {
		return fmt.Errorf("attach %s: %w", dup, ErrDuplicate)
	}
	n.parent = parent
	parent.Children = insertNode(parent.Children, n, index)
	var add func(c *Node)
	add = func(c *Node) {
		p.byID[c.ID] = c
		for _, gc := range c.Children {
			gc.parent = c
			add(gc)
		}
	}
	add(n)
	return nil
}

func (p *Panel) detach(n *Node) {
	n.parent.Children = removeNode(n.parent.Children, n)
	p.unindex(n)
	n.parent = nil
}

func (p *Panel) unindex(n *Node) {
	walkNode(n, func(c *Node) { delete(p.byID, c.ID) })
}

func walkNode(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		walkNode(c, fn)
	}
}

func cloneNode(n, parent *Node) *Node {
	c := *n
	c.parent = parent
	c.Badges = append([]string(nil), n.Badges...)
	c.Children = nil
	for _, child := range n.Children {
		c.Children = append(c.Children, cloneNode(child, &c))
	}
	return &c
}

func indexOf(nodes []*Node, n *Node) int {
	for i, c := range nodes {
		if c == n {
			return i
		}
	}
	return -1
}

func removeNode(nodes []*Node, n *Node) []*Node {
	i := indexOf(nodes, n)
	if i < 0 {
		return nodes
	}
	return append(nodes[:i:i], nodes[i+1:]...)
}

func insertNode(nodes []*Node, n *Node, index int) []*Node {
	if index < 0 || index > len(nodes) {
		index = len(nodes)
	}
	nodes = append(nodes, nil)
	copy(nodes[index+1:], nodes[index:])
	nodes[index] = n
	return nodes
}
