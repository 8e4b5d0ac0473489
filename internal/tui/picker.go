// Package tui renders the interactive procedure picker and the live run
// dashboard.
package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/butler/internal/procedure"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("tui: selection cancelled")

// procedureItem implements list.Item for one registry definition.
type procedureItem struct {
	name        string
	description string
	kind        procedure.Kind
	source      string
}

func (i procedureItem) Title() string { return i.name }

func (i procedureItem) Description() string {
	desc := i.description
	if desc == "" {
		desc = "no description"
	}
	return fmt.Sprintf("%s · %s · %s", i.kind, i.source, desc)
}

func (i procedureItem) FilterValue() string { return i.name }

// Picker lists procedure definitions and records the one the user selects.
type Picker struct {
	list      list.Model
	selected  string
	cancelled bool
	width     int
	height    int
}

// NewPicker builds a picker over defs in the order given.
func NewPicker(defs []procedure.Definition) *Picker {
	items := make([]list.Item, 0, len(defs))
	for _, def := range defs {
		items = append(items, procedureItem{
			name:        def.Name,
			description: def.Description,
			kind:        def.Kind,
			source:      def.Source,
		})
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select a procedure"
	l.SetShowStatusBar(false)
	return &Picker{list: l}
}

// Selected returns the chosen procedure name, empty until one is chosen.
func (p *Picker) Selected() string { return p.selected }

// Cancelled reports whether the user quit without choosing.
func (p *Picker) Cancelled() bool { return p.cancelled }

func (p *Picker) Init() tea.Cmd { return nil }

func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.list.SetSize(max(20, msg.Width-4), max(5, msg.Height-4))
		return p, nil
	case tea.KeyMsg:
		if p.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			p.cancelled = true
			return p, tea.Quit
		case "enter":
			item, ok := p.list.SelectedItem().(procedureItem)
			if !ok {
				return p, nil
			}
			p.selected = item.name
			return p, tea.Quit
		}
	}
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)
	return p, cmd
}

func (p *Picker) View() string {
	if p.selected != "" || p.cancelled {
		return ""
	}
	if len(p.list.Items()) == 0 {
		return panelStyle.Render(mutedStyle.Render("No procedures registered. Create one with `butler new NAME`."))
	}
	hint := mutedStyle.Render("enter: run · /: filter · q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, p.list.View(), hint)
}

// Pick runs the picker full screen and returns the chosen name.
func Pick(defs []procedure.Definition, opts ...tea.ProgramOption) (string, error) {
	if len(defs) == 0 {
		return "", errors.New("tui: no procedures to choose from")
	}
	picker := NewPicker(defs)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	if _, err := tea.NewProgram(picker, opts...).Run(); err != nil {
		return "", fmt.Errorf("tui: picker: %w", err)
	}
	if picker.Selected() == "" {
		return "", ErrCancelled
	}
	return picker.Selected(), nil
}
