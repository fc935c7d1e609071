package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/drag"
	"github.com/tektrg/command-bar-extension-sub000/internal/panel"
	"github.com/tektrg/command-bar-extension-sub000/internal/surface"
	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// --- Messages ---

type changedMsg struct{}
type noticeMsg string
type doneMsg struct{ err error }
type dropMsg struct {
	outcome drag.Outcome
	err     error
}
type suggestMsg struct {
	url   string
	title string
	err   error
}

// --- Command helpers ---

func waitChanged(ctx context.Context, s *surface.Surface) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case <-s.Changed():
			return changedMsg{}
		}
	}
}

func waitNotice(ctx context.Context, notices <-chan string) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-notices:
			return noticeMsg(msg)
		}
	}
}

// Options describes where the surface's browser data comes from.
type Options struct {
	// Source is shown in the top bar, e.g. "live :19192" or "offline: default".
	Source string
	// Connected reports the bridge state. Nil means always available.
	Connected func() bool
}

type pickerFor int

const (
	pickSort pickerFor = iota
	pickView
)

// --- Model ---

type Model struct {
	ctx     context.Context
	surface *surface.Surface
	opts    Options
	notices chan string

	tree   TreeModel
	detail DetailModel
	prompt Prompt

	modePicker       ModePicker
	showModePicker   bool
	pickerFor        pickerFor
	folderPicker     FolderPicker
	showFolderPicker bool

	status string
	width  int
	height int
}

// NewModel drives s. Actions run with ctx.
func NewModel(ctx context.Context, s *surface.Surface, opts Options) Model {
	notices := make(chan string, 16)
	s.SetNotifier(func(msg string) {
		select {
		case notices <- msg:
		default:
		}
	})
	m := Model{
		ctx:     ctx,
		surface: s,
		opts:    opts,
		notices: notices,
	}
	m.tree.SetLines(s.Panel.Lines())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitChanged(m.ctx, m.surface),
		waitNotice(m.ctx, m.notices),
	)
}

func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	m.tree.SetLines(m.surface.Panel.Lines())
}

func tabIDOf(n *panel.Node) (int, bool) {
	if n == nil || n.Kind != panel.KindTab {
		return 0, false
	}
	id, err := strconv.Atoi(panel.EntityID(n.ID))
	return id, err == nil
}

func isBookmarkRow(n *panel.Node) bool {
	return n != nil && (n.Kind == panel.KindBookmark || n.Kind == panel.KindFolder) &&
		strings.HasPrefix(n.ID, "bm:")
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		treeWidth := m.width * TreeWidthPct / 100
		paneHeight := m.height - 4 // top bar + bottom bar + borders
		m.tree.Width = treeWidth
		m.tree.Height = paneHeight
		m.detail.Width = m.width - treeWidth - 4
		m.detail.Height = paneHeight
		m.tree.SetLines(m.tree.Lines)
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitChanged(m.ctx, m.surface)

	case noticeMsg:
		m.status = string(msg)
		return m, waitNotice(m.ctx, m.notices)

	case doneMsg:
		if msg.err != nil {
			applog.Error("tui.action", msg.err)
		}
		m.refresh()
		return m, nil

	case dropMsg:
		m.tree.DragID = ""
		if msg.err != nil {
			applog.Error("tui.drop", msg.err)
		} else if msg.outcome == drag.Moved {
			m.status = "Moved"
		}
		m.refresh()
		return m, nil

	case suggestMsg:
		if msg.err != nil {
			m.status = "No title found: " + msg.err.Error()
			return m, nil
		}
		if !m.prompt.Active() {
			m.prompt = Prompt{Kind: promptTitle, Label: "Custom title:", Value: msg.title, Target: msg.url}
		}
		return m, nil

	case tea.KeyMsg:
		if m.prompt.Active() {
			return m.updatePrompt(msg)
		}
		if m.showModePicker {
			return m.updateModePicker(msg)
		}
		if m.showFolderPicker {
			return m.updateFolderPicker(msg)
		}
		return m.updateTree(msg)
	}

	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	submitted, cancelled := m.prompt.HandleKey(msg)
	if cancelled {
		m.prompt = Prompt{}
		return m, nil
	}
	if !submitted {
		return m, nil
	}
	p := m.prompt
	m.prompt = Prompt{}
	s := m.surface

	switch p.Kind {
	case promptQuery:
		return m, m.run(func(ctx context.Context) error {
			s.SetQuery(ctx, strings.TrimSpace(p.Value))
			return nil
		})
	case promptRename:
		return m, m.run(func(ctx context.Context) error {
			return s.RenameBookmark(ctx, p.Target, p.Value)
		})
	case promptTitle:
		return m, m.run(func(ctx context.Context) error {
			return s.SetCustomTitle(ctx, p.Target, strings.TrimSpace(p.Value))
		})
	case promptDate:
		var date time.Time
		if v := strings.TrimSpace(p.Value); v != "" {
			d, err := time.ParseInLocation("2006-01-02", v, time.Local)
			if err != nil {
				m.status = "Invalid date, use YYYY-MM-DD"
				return m, nil
			}
			date = d
		}
		return m, m.run(func(ctx context.Context) error {
			return s.SetDate(ctx, p.Target, p.Title, date)
		})
	}
	return m, nil
}

func (m Model) updateModePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.modePicker.MoveUp()
	case "down", "j":
		m.modePicker.MoveDown()
	case "enter":
		m.showModePicker = false
		value := m.modePicker.Selected().Value
		s := m.surface
		if m.pickerFor == pickSort {
			return m, m.run(func(ctx context.Context) error {
				return s.SetSortMode(ctx, types.TabSortMode(value))
			})
		}
		return m, m.run(func(ctx context.Context) error {
			return s.SetViewMode(ctx, types.BookmarkViewMode(value))
		})
	case "esc":
		m.showModePicker = false
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateFolderPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.folderPicker.MoveUp()
	case "down", "j":
		m.folderPicker.MoveDown()
	case "enter":
		m.showFolderPicker = false
		f := m.folderPicker.Selected()
		if f == nil {
			return m, nil
		}
		s := m.surface
		id := f.ID
		return m, m.run(func(ctx context.Context) error {
			return s.BookmarkActiveTab(ctx, id)
		})
	case "esc":
		m.showFolderPicker = false
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.surface
	node := m.tree.SelectedNode()

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.tree.MoveUp()
		m.detail.ResetScroll()
	case "down", "j":
		m.tree.MoveDown()
		m.detail.ResetScroll()
	case "ctrl+u":
		m.detail.ScrollUp()
	case "ctrl+d":
		m.detail.ScrollDown()

	case "enter":
		return m, m.open(node)
	case " ":
		if node != nil && node.Kind == panel.KindFolder {
			return m, m.toggle(node)
		}
	case "h", "left":
		if node != nil && node.Kind == panel.KindFolder && node.Expanded {
			return m, m.toggle(node)
		}
		m.tree.ParentSection()
	case "l", "right":
		if node != nil && node.Kind == panel.KindFolder && !node.Expanded {
			return m, m.toggle(node)
		}

	case "/":
		m.prompt = Prompt{Kind: promptQuery, Label: "Filter:", Value: s.Store.Query()}
	case "esc":
		if m.tree.DragID != "" {
			s.CancelDrag()
			m.tree.DragID = ""
			m.status = "Move cancelled"
			return m, nil
		}
		if s.Store.Query() != "" {
			return m, m.run(func(ctx context.Context) error {
				s.SetQuery(ctx, "")
				return nil
			})
		}
		m.status = ""

	case "s":
		m.modePicker = NewSortPicker(s.Store.SortMode())
		m.pickerFor = pickSort
		m.showModePicker = true
	case "v":
		m.modePicker = NewViewPicker(s.Store.ViewMode())
		m.pickerFor = pickView
		m.showModePicker = true
	case "b":
		m.folderPicker = NewFolderPicker(s.Store.BookmarkTree())
		m.showFolderPicker = true

	case "p":
		if id, ok := tabIDOf(node); ok {
			return m, m.run(func(ctx context.Context) error {
				_, err := s.PinTab(ctx, id)
				return err
			})
		}
		if node != nil && node.Kind == panel.KindPinned {
			url := node.URL
			return m, m.run(func(ctx context.Context) error { return s.Unpin(ctx, url) })
		}
	case "x":
		if id, ok := tabIDOf(node); ok {
			return m, m.run(func(ctx context.Context) error { return s.CloseTab(ctx, id) })
		}
	case "d":
		if isBookmarkRow(node) {
			id := panel.EntityID(node.ID)
			return m, m.run(func(ctx context.Context) error { return s.DeleteBookmark(ctx, id) })
		}
		if node != nil && node.Kind == panel.KindHistory {
			url := node.URL
			return m, m.run(func(ctx context.Context) error { return s.DeleteHistory(ctx, url) })
		}
	case "r":
		if isBookmarkRow(node) {
			m.prompt = Prompt{Kind: promptRename, Label: "Rename:", Value: node.Title, Target: panel.EntityID(node.ID)}
		}
	case "t":
		if node != nil && node.URL != "" {
			m.prompt = Prompt{Kind: promptTitle, Label: "Custom title:", Value: node.Title, Target: node.URL}
		}
	case "T":
		if node != nil && node.URL != "" {
			url := node.URL
			m.status = "Fetching title…"
			return m, func() tea.Msg {
				title, err := s.SuggestTitle(m.ctx, url)
				return suggestMsg{url: url, title: title, err: err}
			}
		}
	case "D":
		if node != nil && node.URL != "" {
			m.prompt = Prompt{Kind: promptDate, Label: "Date (YYYY-MM-DD, empty clears):", Target: node.URL, Title: node.Title}
		}
	case "m":
		cmd := m.move(node)
		return m, cmd
	}
	return m, nil
}

func (m Model) open(n *panel.Node) tea.Cmd {
	if n == nil {
		return nil
	}
	s := m.surface
	switch n.Kind {
	case panel.KindFolder:
		return m.toggle(n)
	case panel.KindBookmark:
		if !strings.HasPrefix(n.ID, "bm:") {
			return nil
		}
		id := panel.EntityID(n.ID)
		return m.run(func(ctx context.Context) error { return s.OpenBookmark(ctx, id) })
	case panel.KindTab:
		id, _ := tabIDOf(n)
		return m.run(func(ctx context.Context) error { return s.ActivateTab(ctx, id) })
	case panel.KindPinned:
		url := n.URL
		return m.run(func(ctx context.Context) error { return s.OpenPinned(ctx, url) })
	}
	return nil
}

func (m Model) toggle(n *panel.Node) tea.Cmd {
	s := m.surface
	id := panel.EntityID(n.ID)
	return m.run(func(ctx context.Context) error {
		_, err := s.ToggleFolder(ctx, id)
		return err
	})
}

// move starts a drag on the selected bookmark, or drops the dragged one at
// the selected row: into a folder, or before a bookmark.
func (m *Model) move(n *panel.Node) tea.Cmd {
	s := m.surface
	if m.tree.DragID == "" {
		if !isBookmarkRow(n) {
			return nil
		}
		if err := s.StartDrag(panel.EntityID(n.ID)); err != nil {
			if !errors.Is(err, drag.ErrUnavailable) {
				m.status = err.Error()
			}
			return nil
		}
		m.tree.DragID = n.ID
		m.status = "Moving: select a folder or a bookmark and press m, esc cancels"
		return nil
	}

	if !isBookmarkRow(n) {
		m.status = "Drop onto a folder or a bookmark"
		return nil
	}
	var target drag.Target
	if n.Kind == panel.KindFolder && n.ID != m.tree.DragID {
		target = drag.Target{ParentID: panel.EntityID(n.ID)}
	} else {
		parent, _, ok := s.Panel.Position(n.ID)
		if !ok || !strings.HasPrefix(parent, "bm:") {
			m.status = "Drop onto a folder or a bookmark"
			return nil
		}
		target = drag.Target{ParentID: panel.EntityID(parent), BeforeID: panel.EntityID(n.ID)}
	}
	ctx := m.ctx
	return func() tea.Msg {
		outcome, err := s.Drop(ctx, target)
		return dropMsg{outcome: outcome, err: err}
	}
}

func (m Model) info(n *panel.Node) NodeInfo {
	var info NodeInfo
	if n == nil {
		return info
	}
	s := m.surface
	switch n.Kind {
	case panel.KindTab:
		if id, ok := tabIDOf(n); ok {
			if t, ok := s.Store.Tab(id); ok {
				info.LastVisit = t.LastAccessed
			}
		}
		info.Hints = []string{"enter focus · p pin · x close · t title · D date"}
	case panel.KindBookmark:
		if tabID, ok := s.Store.Relationship(panel.EntityID(n.ID)); ok {
			if _, live := s.Store.Tab(tabID); live {
				info.LinkedTab = tabID
			}
		}
		info.Hints = []string{"enter open · r rename · t title · T suggest title", "D date · d delete · m move"}
	case panel.KindFolder:
		info.Hints = []string{"space toggle · r rename · d delete · m move"}
	case panel.KindPinned:
		info.Hints = []string{"enter open · p unpin"}
	case panel.KindHistory:
		info.Hints = []string{"d delete from history · t title · D date"}
	}
	return info
}

func (m Model) counts() map[string]int {
	counts := make(map[string]int, len(panel.Sections))
	for _, l := range m.tree.Lines {
		if l.Depth == 0 {
			counts[l.Node.ID] = len(l.Node.Children)
		}
	}
	return counts
}

func (m Model) View() string {
	if m.width == 0 {
		return "\n  Loading…\n"
	}

	if m.showModePicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.modePicker.View())
	}
	if m.showFolderPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.folderPicker.View())
	}

	source := m.opts.Source
	if m.opts.Connected != nil {
		if m.opts.Connected() {
			source += " ● connected"
		} else {
			source += " ○ waiting…"
		}
	}
	s := m.surface
	modes := fmt.Sprintf("%s · sort: %s · view: %s", s.Kind, s.Store.SortMode(), s.Store.ViewMode())
	if q := s.Store.Query(); q != "" {
		modes += fmt.Sprintf(" · filter: %q", q)
	}
	topBar := renderNavbar(m.counts(), source, modes, m.width)

	treeBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(m.tree.Width).
		Height(m.tree.Height)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	node := m.tree.SelectedNode()
	detailContent := m.detail.ViewScrolled(m.detail.ViewNode(node, m.info(node)))

	left := treeBorder.Render(m.tree.View())
	right := detailBorder.Render(detailContent)
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	var bottomBar string
	if m.prompt.Active() {
		bottomBar = m.prompt.View(m.width)
	} else {
		bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Padding(0, 1)
		bottomText := "↑↓/jk navigate · enter open · / filter · s sort · v view · b bookmark tab · q quit"
		if m.status != "" {
			bottomBar = statusStyle.Render(m.status) + bottomBarStyle.Render(bottomText)
		} else {
			bottomBar = bottomBarStyle.Render(bottomText)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBar)
}

// Run shows the panel until the user quits.
func Run(ctx context.Context, s *surface.Surface, opts Options) error {
	_, err := tea.NewProgram(NewModel(ctx, s, opts), tea.WithAltScreen()).Run()
	return err
}
