package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/theme"
)

// Layout sizes the single-panel notification view: a one-line header, the
// scrolling panel, and a one-line key-hint bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight is the panel height left after the header and hint bar.
func (l Layout) ContentHeight() int {
	h := l.Height - 2
	if h < 0 {
		h = 0
	}
	return h
}

// RenderHeader draws the title on the left and the sync status badge on the
// right, filling the gap with the header background.
func (l Layout) RenderHeader(title, status string) string {
	left := theme.HeaderStyle.Render(title)
	right := theme.BadgeStyle.Render(status)

	gap := l.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	fill := theme.HeaderStyle.Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, fill, right)
}

// RenderStatusBar draws the key hints, padded to the full width.
func (l Layout) RenderStatusBar(hints string) string {
	bar := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(bar)
	if gap < 0 {
		gap = 0
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, bar, theme.StatusBarStyle.Width(gap).Render(""))
}

// Frame stacks the header, panel content, and hint bar into the final view.
func (l Layout) Frame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
