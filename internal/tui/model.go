// Package tui is the live terminal view behind `homepanel watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dokzlo13/homepanel/internal/poller"
)

// viewMsg carries a new view for source index
type viewMsg struct {
	index int
	view  poller.View
}

// watchClosedMsg means a source stopped streaming
type watchClosedMsg struct {
	index int
}

// Model shows one tab per source.
type Model struct {
	sources []poller.Source
	streams []<-chan poller.View
	views   []poller.View

	active  int
	width   int
	spinner spinner.Model
	status  string
	now     func() time.Time
}

// New creates a model over already-subscribed streams, one per source
func New(sources []poller.Source, streams []<-chan poller.View) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerTint

	views := make([]poller.View, len(sources))
	for i, src := range sources {
		views[i] = src.View()
	}

	return Model{
		sources: sources,
		streams: streams,
		views:   views,
		spinner: s,
		now:     time.Now,
	}
}

// Run subscribes to every source and runs the program until q or ctx is done.
func Run(ctx context.Context, sources []poller.Source) error {
	if len(sources) == 0 {
		return errors.New("nothing to watch")
	}

	streams := make([]<-chan poller.View, len(sources))
	for i, src := range sources {
		ch, cancel := src.Watch()
		defer cancel()
		streams[i] = ch
	}

	program := tea.NewProgram(New(sources, streams), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil) {
		return nil
	}
	return err
}

func waitForView(index int, ch <-chan poller.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return watchClosedMsg{index: index}
		}
		return viewMsg{index: index, view: v}
	}
}

// Init starts the spinner and one reader per stream
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	for i, ch := range m.streams {
		cmds = append(cmds, waitForView(i, ch))
	}
	return tea.Batch(cmds...)
}

// Update handles keys, new views and spinner ticks
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case viewMsg:
		if msg.index >= 0 && msg.index < len(m.views) {
			m.views[msg.index] = msg.view
		}
		return m, waitForView(msg.index, m.streams[msg.index])

	case watchClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "right", "l":
		m.active = (m.active + 1) % len(m.sources)
	case "shift+tab", "left", "h":
		m.active = (m.active - 1 + len(m.sources)) % len(m.sources)
	case "r":
		src := m.sources[m.active]
		src.Refetch()
		m.status = fmt.Sprintf("refetching %s", src.Name())
	}
	return m, nil
}

// Active returns the index of the selected tab
func (m Model) Active() int {
	return m.active
}
