package notifpanel

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string {
	return i.Notification.Summary()
}

// Title returns the one-line summary for the list.
func (i NotificationItem) Title() string {
	return i.Notification.Summary()
}

// Description returns a short metadata line for the list.
func (i NotificationItem) Description() string {
	return fmt.Sprintf("%s | %s",
		i.Notification.Type.Normalize(),
		relativeTime(i.Notification.EventTime()),
	)
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}

	n := ni.Notification
	typeLabel := string(n.Type.Normalize())
	typeBadge := theme.TypeStyle(typeLabel).Render(typeLabel)

	marker := "●"
	if n.Seen {
		marker = " "
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.EventTime()))

	line := fmt.Sprintf("%s %s %s  %s", marker, typeBadge, n.Summary(), timeStr)

	switch {
	case index == m.Index():
		line = theme.SelectedItemStyle.Render(line)
	case n.Seen:
		line = theme.SeenItemStyle.Render(line)
	default:
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// fieldValue extracts a renderable field by its wire name, used by the
// detail view to show only the fields relevant to the session's role.
func fieldValue(n model.Notification, name string) string {
	switch name {
	case "email":
		return n.Email
	case "name":
		return n.Name
	case "reason":
		return n.Reason
	case "courseName":
		return n.CourseName
	case "point":
		if n.OutOf == 0 && n.Point == 0 {
			return ""
		}
		return fmt.Sprintf("%g", n.Point)
	case "outOf":
		if n.OutOf == 0 {
			return ""
		}
		return fmt.Sprintf("%g", n.OutOf)
	case "amount":
		return n.DisplayAmount()
	case "transactionId":
		return n.TransactionID
	case "message":
		return n.Message
	default:
		return ""
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}
