package viewer

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/folio/pkg/folio"
)

func testItems() []*folio.Illustration {
	return []*folio.Illustration{
		{ID: "1", ImageURL: "/portfolio/pf-1.png", Title: "Forest Spirit"},
		{ID: "2", ImageURL: "/portfolio/pf-2.png", Description: "A cat in an attic."},
		{ID: "3", ImageURL: "/portfolio/pf-3.png", Title: "Harbor", Keywords: []string{"sea", "ink"}},
	}
}

func press(t *testing.T, m Model, msgs ...tea.KeyMsg) Model {
	t.Helper()
	for _, msg := range msgs {
		nm, _ := m.Update(msg)
		var ok bool
		m, ok = nm.(Model)
		require.True(t, ok)
	}
	return m
}

var (
	up    = tea.KeyMsg{Type: tea.KeyUp}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	left  = tea.KeyMsg{Type: tea.KeyLeft}
	right = tea.KeyMsg{Type: tea.KeyRight}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	quit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func TestSelection(t *testing.T) {
	m := New("folio", testItems())

	m = press(t, m, up)
	assert.Equal(t, 0, m.Selected(), "stays at the top")

	m = press(t, m, down, down, down, down)
	assert.Equal(t, 2, m.Selected(), "stops at the bottom")

	m = press(t, m, up)
	assert.Equal(t, 1, m.Selected())
	assert.False(t, m.Lightbox().IsOpen())
}

func TestOpenNavigateClose(t *testing.T) {
	m := New("folio", testItems())

	m = press(t, m, down, enter)
	lb := m.Lightbox()
	require.True(t, lb.IsOpen())
	assert.Equal(t, 1, lb.Cursor())
	assert.Equal(t, 1, m.keys.Listeners())

	m = press(t, m, right, right)
	assert.Equal(t, 0, lb.Cursor(), "wraps past the end")

	m = press(t, m, left)
	assert.Equal(t, 2, lb.Cursor(), "wraps past the start")
	assert.Contains(t, m.View(), "Harbor")
	assert.Contains(t, m.View(), "3 / 3")
	assert.Contains(t, m.View(), "sea, ink")

	// Up and down are ignored while the lightbox is open.
	m = press(t, m, up)
	assert.Equal(t, 2, lb.Cursor())

	m = press(t, m, esc)
	assert.False(t, lb.IsOpen())
	assert.Zero(t, m.keys.Listeners())
	assert.Equal(t, 2, m.Selected(), "selection follows the lightbox")

	// Left and right do nothing once closed.
	m = press(t, m, left)
	assert.Equal(t, 2, m.Selected())
	assert.False(t, lb.IsOpen())
}

func TestQuitClosesLightbox(t *testing.T) {
	m := New("folio", testItems())
	m = press(t, m, enter)
	require.True(t, m.Lightbox().IsOpen())

	nm, cmd := m.Update(quit)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, nm.(Model).Lightbox().IsOpen())
	assert.Zero(t, m.keys.Listeners())
}

func TestView(t *testing.T) {
	m := New("Kristina Springer", testItems())
	m = press(t, m, down)
	nm, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	m = nm.(Model)

	v := m.View()
	assert.Contains(t, v, "Kristina Springer")
	assert.Contains(t, v, "Forest Spirit")
	assert.Contains(t, v, "> /portfolio/pf-2.png", "untitled items show their url")

	m = press(t, m, enter)
	assert.Contains(t, m.View(), "A cat in an attic.")
}

func TestEmpty(t *testing.T) {
	m := New("folio", nil)
	m = press(t, m, down, enter)
	assert.False(t, m.Lightbox().IsOpen())
	assert.Contains(t, m.View(), "No illustrations.")
}
