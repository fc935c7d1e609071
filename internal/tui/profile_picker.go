package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// ErrNoSelection is returned by PickProfile when the user cancels.
var ErrNoSelection = errors.New("no profile selected")

// ProfilePicker is an overlay for selecting a Firefox profile.
type ProfilePicker struct {
	Profiles []types.Profile
	Cursor   int
	Width    int
	Height   int

	chosen bool
}

func NewProfilePicker(profiles []types.Profile) ProfilePicker {
	// Pre-select the default profile
	cursor := 0
	for i, p := range profiles {
		if p.IsDefault {
			cursor = i
			break
		}
	}
	return ProfilePicker{
		Profiles: profiles,
		Cursor:   cursor,
	}
}

func (m *ProfilePicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ProfilePicker) MoveDown() {
	if m.Cursor < len(m.Profiles)-1 {
		m.Cursor++
	}
}

func (m ProfilePicker) Selected() types.Profile {
	return m.Profiles[m.Cursor]
}

func (m ProfilePicker) Init() tea.Cmd { return nil }

func (m ProfilePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			m.MoveUp()
		case "down", "j":
			m.MoveDown()
		case "enter":
			m.chosen = true
			return m, tea.Quit
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			n := int(msg.String()[0]-'0') - 1
			if n < len(m.Profiles) {
				m.Cursor = n
				m.chosen = true
				return m, tea.Quit
			}
		case "esc", "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ProfilePicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Select a Firefox profile:") + "\n\n")

	for i, p := range m.Profiles {
		label := fmt.Sprintf("%d. %s", i+1, p.Name)
		if p.IsDefault {
			label += " (default)"
		}
		if i == m.Cursor {
			b.WriteString(selectedStyle.Render("> "+label) + "\n")
		} else {
			b.WriteString(normalStyle.Render("  "+label) + "\n")
		}
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter select · esc cancel"))

	box := boxStyle.Render(b.String())
	if m.Width > 0 && m.Height > 0 {
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}

// PickProfile asks the user to choose one of profiles. A single profile is
// returned without prompting.
func PickProfile(profiles []types.Profile) (types.Profile, error) {
	switch len(profiles) {
	case 0:
		return types.Profile{}, fmt.Errorf("no usable Firefox profiles")
	case 1:
		return profiles[0], nil
	}
	final, err := tea.NewProgram(NewProfilePicker(profiles), tea.WithAltScreen()).Run()
	if err != nil {
		return types.Profile{}, err
	}
	picker := final.(ProfilePicker)
	if !picker.chosen {
		return types.Profile{}, ErrNoSelection
	}
	return picker.Selected(), nil
}
