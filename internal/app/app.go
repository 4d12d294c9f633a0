// Package app wires the sync core to the terminal UI: it owns the root
// Bubble Tea model, routes sync results into the notification panel, and
// translates panel requests back into controller calls.
package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/portal-notify/internal/keys"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/route"
	"github.com/nhle/portal-notify/internal/seen"
	"github.com/nhle/portal-notify/internal/store"
	appsync "github.com/nhle/portal-notify/internal/sync"
	"github.com/nhle/portal-notify/internal/ui"
	"github.com/nhle/portal-notify/internal/ui/notifpanel"
)

// Model is the root Bubble Tea model.
type Model struct {
	layout     ui.Layout
	panel      notifpanel.Model
	controller *appsync.Controller
	notes      *store.NotificationStore
	keys       *keys.KeyMap
	scope      model.Scope
	ready      bool
	fromCache  bool
	everSeen   bool
	lastErr    string
}

// New creates the root model. The controller is expected to have had
// SetScope called already (or to be Idle for a disabled scope). everSeen
// reports whether this scope has ever had notifications marked seen; a
// first-time scope gets a key hint in the header.
func New(notes *store.NotificationStore, seenSvc *seen.Service, controller *appsync.Controller, scope model.Scope, everSeen bool) Model {
	k := keys.DefaultKeyMap()
	r := route.Resolve(scope)

	return Model{
		layout:     ui.NewLayout(80, 24),
		panel:      notifpanel.New(notes, seenSvc, k, r.Fields, 80, 22),
		controller: controller,
		notes:      notes,
		keys:       k,
		scope:      scope,
		everSeen:   everSeen,
	}
}

// Init starts listening for sync results.
func (m Model) Init() tea.Cmd {
	return m.controller.WaitForNextResult()
}

// Update routes messages between the controller and the panel.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.panel.SetSize(msg.Width, m.layout.ContentHeight())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			m.controller.Teardown()
			return m, tea.Quit
		}

	case appsync.Result:
		if msg.Err != nil {
			// Degraded freshness only; the panel keeps showing the
			// last-known-good list.
			m.lastErr = msg.Err.Error()
		} else {
			m.lastErr = ""
			m.fromCache = msg.FromCache
			m.panel.Reload()
		}
		return m, m.controller.WaitForNextResult()

	case notifpanel.RefreshRequestedMsg:
		m.controller.Resync()
		return m, nil

	case notifpanel.ClearRequestedMsg:
		m.notes.Clear()
		m.panel.Reload()
		return m, nil

	case notifpanel.SeenMarkedMsg:
		if msg.Err == nil && msg.Count > 0 {
			m.everSeen = true
		}
		// Falls through to the panel so it can reload its items.
	}

	var cmd tea.Cmd
	m.panel, cmd = m.panel.Update(msg)
	return m, cmd
}

// View renders the full frame: header, notification panel, status bar.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := m.syncStatus()
	header := m.layout.RenderHeader(fmt.Sprintf("Portal Notifications · %s", m.scopeLabel()), status)
	statusBar := m.layout.RenderStatusBar("r resync · m mark seen · x clear · enter open · q quit")

	return m.layout.Frame(header, m.panel.View(), statusBar)
}

// scopeLabel is the header form of the session scope.
func (m Model) scopeLabel() string {
	if m.scope.Identity == "" {
		return string(m.scope.Role)
	}
	return fmt.Sprintf("%s %s", m.scope.Role, m.scope.Identity)
}

// syncStatus summarizes the sync state and unseen count for the header.
func (m Model) syncStatus() string {
	if m.lastErr != "" {
		return "sync degraded"
	}
	if m.fromCache {
		return fmt.Sprintf("cached · %d unseen", m.panel.UnseenCount())
	}
	if unseen := m.panel.UnseenCount(); unseen > 0 {
		if !m.everSeen {
			return fmt.Sprintf("%d unseen · press m", unseen)
		}
		return fmt.Sprintf("%d unseen", unseen)
	}
	return "up to date"
}
