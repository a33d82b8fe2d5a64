package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/poller"
	"github.com/dokzlo13/homepanel/internal/tables"
)

// View renders tabs, the active resource and the key help
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("homepanel"))
	b.WriteString("\n\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(m.sources))
	for i, v := range m.views {
		label := api.Resource(v.Name).Title()
		if v.Name == "" {
			label = api.Resource(m.sources[i].Name()).Title()
		}
		switch {
		case i == m.active:
			tabs[i] = tabActive.Render(label)
		case v.State == poller.StateFailed:
			tabs[i] = tabFailed.Render(label)
		default:
			tabs[i] = tabInactive.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderContent() string {
	if len(m.views) == 0 {
		return mutedStyle.Render("nothing to watch")
	}
	v := m.views[m.active]

	var b strings.Builder

	// errors are shown above whatever data is still held
	if v.Error != nil {
		b.WriteString(errorStyle.Render("✗ " + describeError(v.Error)))
		b.WriteString("\n")
	}

	if v.Data == nil {
		if v.Error == nil {
			b.WriteString(m.spinner.View() + " loading " + v.Name)
		}
		return b.String()
	}

	tbl, ok := tables.For(v.Data, m.lookup())
	switch {
	case !ok:
		b.WriteString(mutedStyle.Render("no renderer for " + v.Name))
	case tbl.Empty():
		b.WriteString(mutedStyle.Render("no " + strings.ToLower(api.Resource(v.Name).Title()) + " yet"))
	default:
		b.WriteString(tables.Render(tbl, false))
	}
	return b.String()
}

func (m Model) renderFooter() string {
	v := m.views[m.active]

	parts := []string{}
	if v.Loading {
		parts = append(parts, m.spinner.View()+" updating")
	}
	if v.UpdatedAt != nil {
		parts = append(parts, fmt.Sprintf("updated %s ago", m.now().Sub(*v.UpdatedAt).Truncate(time.Second)))
	}
	switch v.State {
	case poller.StateReady:
		parts = append(parts, okStyle.Render(v.State.String()))
	case poller.StateFailed:
		parts = append(parts, errorStyle.Render(v.State.String()))
	default:
		parts = append(parts, warnStyle.Render(v.State.String()))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}

	help := mutedStyle.Render("tab/shift+tab switch • r refetch • q quit")
	return strings.Join(parts, "  ") + "\n" + help
}

func (m Model) lookup() tables.Lookup {
	var l tables.Lookup
	for _, v := range m.views {
		switch data := v.Data.(type) {
		case []api.Room:
			l.Rooms = data
		case []api.Scene:
			l.Scenes = data
		}
	}
	return l
}

func describeError(e *poller.ErrorView) string {
	switch {
	case e.Status > 0 && e.Message != "":
		return fmt.Sprintf("%d %s: %s", e.Status, e.StatusText, strings.TrimSpace(e.Message))
	case e.Status > 0:
		return fmt.Sprintf("%d %s", e.Status, e.StatusText)
	default:
		return e.Message
	}
}
