package poller

import (
	"context"
	"time"

	"github.com/dokzlo13/homepanel/internal/backend"
)

// View is a type-erased, JSON-friendly snapshot
type View struct {
	Name      string     `json:"name"`
	State     State      `json:"state"`
	Data      any        `json:"data"`
	Error     *ErrorView `json:"error,omitempty"`
	Loading   bool       `json:"loading"`
	Seq       uint64     `json:"seq"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ErrorView describes the last failure of a poller
type ErrorView struct {
	Kind       backend.Kind `json:"kind,omitempty"`
	Status     int          `json:"status,omitempty"`
	StatusText string       `json:"statusText,omitempty"`
	Message    string       `json:"message"`
}

// Resolved reports whether at least one fetch has completed
func (v View) Resolved() bool {
	return v.Seq > 0
}

// Source is the type-erased side of a Poller, used by dashboards and publishers
type Source interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	View() View
	Refetch()
	Watch() (<-chan View, func())
}

// View returns the current snapshot as a View
func (p *Poller[T]) View() View {
	return p.Snapshot().View(p.name)
}

// Watch is Subscribe for Views
func (p *Poller[T]) Watch() (<-chan View, func()) {
	snaps, cancel := p.Subscribe()
	out := make(chan View, 1)

	go func() {
		defer close(out)
		for snap := range snaps {
			v := snap.View(p.name)
			select {
			case out <- v:
			default:
				select {
				case <-out:
				default:
				}
				out <- v
			}
		}
	}()

	return out, cancel
}

// View converts the snapshot; Data is nil until the first success
func (s Snapshot[T]) View(name string) View {
	v := View{
		Name:    name,
		State:   s.State,
		Loading: s.Loading,
		Seq:     s.Seq,
	}
	if s.HasData {
		v.Data = s.Data
	}
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		v.UpdatedAt = &t
	}
	if s.Err != nil {
		v.Error = NewErrorView(s.Err)
	}
	return v
}

// NewErrorView maps any error onto the structured shape
func NewErrorView(err error) *ErrorView {
	if e, ok := backend.AsError(err); ok {
		return &ErrorView{
			Kind:       e.Kind,
			Status:     e.Status,
			StatusText: e.StatusText,
			Message:    e.Message,
		}
	}
	return &ErrorView{Message: err.Error()}
}
