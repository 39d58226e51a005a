// Package viewer is a terminal browser for a folio catalog.
package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/folio"
	"github.com/tstromberg/folio/pkg/lightbox"
)

type keyMap struct {
	Up    key.Binding
	Down  key.Binding
	Open  key.Binding
	Prev  key.Binding
	Next  key.Binding
	Close key.Binding
	Quit  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "view")),
		Prev:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous")),
		Next:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next")),
		Close: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// listKeys is the keymap shown while browsing.
type listKeys struct{ keyMap }

func (k listKeys) ShortHelp() []key.Binding  { return []key.Binding{k.Up, k.Down, k.Open, k.Quit} }
func (k listKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

// boxKeys is the keymap shown while the lightbox is open.
type boxKeys struct{ keyMap }

func (k boxKeys) ShortHelp() []key.Binding  { return []key.Binding{k.Prev, k.Next, k.Close, k.Quit} }
func (k boxKeys) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

type styles struct {
	Title    lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Box      lipgloss.Style
	Heading  lipgloss.Style
	Muted    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1),
		Item:     lipgloss.NewStyle().PaddingLeft(2),
		Selected: lipgloss.NewStyle().PaddingLeft(1).Foreground(lipgloss.Color("212")).Bold(true),
		Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2),
		Heading:  lipgloss.NewStyle().Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Model browses illustrations and opens them in a lightbox.
type Model struct {
	title    string
	items    []*folio.Illustration
	selected int

	keys *lightbox.Keys
	box  *lightbox.Lightbox[*folio.Illustration]

	bindings keyMap
	help     help.Model
	styles   styles
	width    int
}

// New returns a viewer for items.
func New(title string, items []*folio.Illustration) Model {
	keys := lightbox.NewKeys()
	return Model{
		title:    title,
		items:    items,
		keys:     keys,
		box:      lightbox.New(items, keys),
		bindings: defaultKeys(),
		help:     help.New(),
		styles:   defaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, m.bindings.Quit) {
			m.box.Close()
			return m, tea.Quit
		}
		if m.box.IsOpen() {
			return m.updateBox(msg), nil
		}
		return m.updateList(msg), nil
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) Model {
	if len(m.items) == 0 {
		return m
	}
	switch {
	case key.Matches(msg, m.bindings.Up):
		m.selected = max(m.selected-1, 0)
	case key.Matches(msg, m.bindings.Down):
		m.selected = min(m.selected+1, len(m.items)-1)
	case key.Matches(msg, m.bindings.Open):
		if err := m.box.Open(m.selected); err != nil {
			klog.Warningf("open %d: %v", m.selected, err)
		}
	}
	return m
}

// updateBox routes navigation keys through the lightbox's key binding.
func (m Model) updateBox(msg tea.KeyMsg) Model {
	k := lightbox.NoKey
	switch {
	case key.Matches(msg, m.bindings.Prev):
		k = lightbox.Left
	case key.Matches(msg, m.bindings.Next):
		k = lightbox.Right
	case key.Matches(msg, m.bindings.Close):
		k = lightbox.Escape
	}
	if k == lightbox.NoKey || !m.keys.Dispatch(k) {
		return m
	}
	// Leave the list where the lightbox was.
	m.selected = m.box.Cursor()
	return m
}

// Selected returns the index of the highlighted illustration.
func (m Model) Selected() int {
	return m.selected
}

// Lightbox returns the viewer's lightbox.
func (m Model) Lightbox() *lightbox.Lightbox[*folio.Illustration] {
	return m.box
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")

	if il, ok := m.box.Current(); ok && m.box.IsOpen() {
		b.WriteString(m.viewBox(il))
		b.WriteString("\n")
		b.WriteString(m.help.View(boxKeys{m.bindings}))
		return b.String()
	}

	if len(m.items) == 0 {
		b.WriteString(m.styles.Muted.Render("No illustrations."))
		b.WriteString("\n")
	}
	for i, il := range m.items {
		line := label(il)
		if i == m.selected {
			b.WriteString(m.styles.Selected.Render("> " + line))
		} else {
			b.WriteString(m.styles.Item.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(listKeys{m.bindings}))
	return b.String()
}

func (m Model) viewBox(il *folio.Illustration) string {
	arrow := ""
	switch m.box.Direction() {
	case lightbox.Backward:
		arrow = "← "
	case lightbox.Forward:
		arrow = "→ "
	}

	lines := []string{
		m.styles.Heading.Render(arrow + label(il)),
	}
	if il.Description != "" {
		lines = append(lines, il.Description)
	}
	if len(il.Keywords) > 0 {
		lines = append(lines, m.styles.Muted.Render(strings.Join(il.Keywords, ", ")))
	}
	lines = append(lines,
		m.styles.Muted.Render(il.ImageURL),
		m.styles.Muted.Render(fmt.Sprintf("%d / %d", m.box.Cursor()+1, m.box.Len())),
	)

	st := m.styles.Box
	if m.width > 4 {
		st = st.Width(m.width - 4)
	}
	return st.Render(strings.Join(lines, "\n"))
}

func label(il *folio.Illustration) string {
	if il.Title != "" {
		return il.Title
	}
	return il.ImageURL
}
