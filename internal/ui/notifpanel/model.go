// Package notifpanel renders the session's notification list. It only reads
// the notification store; all mutations go through the sync controller and
// the seen-state service.
package notifpanel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/seen"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/internal/theme"
)

// RefreshRequestedMsg asks the app to force a resync.
type RefreshRequestedMsg struct{}

// ClearRequestedMsg asks the app to clear the notification list.
type ClearRequestedMsg struct{}

// SeenMarkedMsg reports the outcome of a mark-seen batch.
type SeenMarkedMsg struct {
	Count int
	Err   error
}

// markSeenTimeout bounds the batched PATCH.
const markSeenTimeout = 10 * time.Second

// Model is the notification panel view.
type Model struct {
	list       list.Model
	notes      *store.NotificationStore
	seenSvc    *seen.Service
	keys       *keys.KeyMap
	fields     []string
	showDetail bool
	width      int
	height     int
}

// New creates a notification panel backed by the given store. fields lists
// the notification fields the detail view renders for the session's role.
func New(notes *store.NotificationStore, seenSvc *seen.Service, k *keys.KeyMap, fields []string, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.KeyMap.CursorDown = k.Down
	l.KeyMap.CursorUp = k.Up

	return Model{
		list:    l,
		notes:   notes,
		seenSvc: seenSvc,
		keys:    k,
		fields:  fields,
		width:   width,
		height:  height,
	}
}

// Reload rebuilds the list items from the store. Called whenever the app
// receives a sync result.
func (m *Model) Reload() {
	notifs := m.notes.List()
	items := make([]list.Item, 0, len(notifs))
	for _, n := range notifs {
		items = append(items, NotificationItem{Notification: n})
	}
	m.list.SetItems(items)
}

// UnseenCount returns the number of notifications not yet marked seen.
func (m Model) UnseenCount() int {
	return len(m.notes.Unseen())
}

// SetSize adjusts the panel to new terminal dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}

// Update handles key events for the panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Refresh):
			return m, func() tea.Msg { return RefreshRequestedMsg{} }

		case key.Matches(msg, m.keys.MarkSeen):
			return m, m.markSeenCmd()

		case key.Matches(msg, m.keys.Clear):
			return m, func() tea.Msg { return ClearRequestedMsg{} }

		case key.Matches(msg, m.keys.Select):
			// Opening the detail view counts as reading the list, so the
			// unseen batch is marked in the same turn.
			m.showDetail = true
			return m, m.markSeenCmd()

		case key.Matches(msg, m.keys.Back):
			m.showDetail = false
			return m, nil

		case key.Matches(msg, m.keys.Help):
			m.list.SetShowHelp(!m.list.ShowHelp())
			return m, nil
		}

	case SeenMarkedMsg:
		m.Reload()
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// markSeenCmd batches every unseen notification into one mark-seen call.
// An empty batch resolves immediately without any network traffic.
func (m Model) markSeenCmd() tea.Cmd {
	unseen := m.notes.Unseen()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), markSeenTimeout)
		defer cancel()

		err := m.seenSvc.MarkSeen(ctx, unseen)
		return SeenMarkedMsg{Count: len(unseen), Err: err}
	}
}

// View renders the panel, optionally with the selected notification's
// detail block underneath.
func (m Model) View() string {
	if !m.showDetail {
		return m.list.View()
	}

	detail := m.renderDetail()
	listHeight := m.height - 2 - lipgloss.Height(detail)
	if listHeight < 3 {
		listHeight = 3
	}
	l := m.list
	l.SetSize(m.width, listHeight)

	return lipgloss.JoinVertical(lipgloss.Left, l.View(), detail)
}

// renderDetail shows the role-relevant fields of the selected notification.
func (m Model) renderDetail() string {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return theme.BorderStyle.Width(m.width - 2).Render("No notification selected")
	}

	n := item.Notification
	var b strings.Builder
	b.WriteString(n.Summary())
	for _, f := range m.fields {
		v := fieldValue(n, f)
		if v == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s: %s", f, v))
	}
	if ts := n.EventTime(); !ts.IsZero() {
		b.WriteString("\ntime: " + ts.Format(time.RFC1123))
	}

	return theme.BorderStyle.Width(m.width - 2).Render(b.String())
}
