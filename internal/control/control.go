// Package control applies mutations to the backend the way every panel surface
// should: validate, call, record, announce, then refresh whatever the change touched.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/backend"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/ledger"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// Recorder persists applied mutations
type Recorder interface {
	Append(entry *ledger.Entry) error
}

// Publisher announces applied mutations
type Publisher interface {
	Publish(event eventbus.Event)
}

// Refetcher is anything that can be asked to reload now. poller.Source satisfies it.
type Refetcher interface {
	Refetch()
}

// Mutation describes one change to send to the backend.
type Mutation struct {
	Action   string       // create, update, delete, on, off, execute
	Resource api.Resource // collection being changed
	Target   string       // id or name, for logs and the ledger
	Affects  []api.Resource
	Validate func() error
	Run      func(ctx context.Context) (any, error)
}

// Outcome is the result of Apply, also published on the bus
type Outcome struct {
	ID       string            `json:"id"`
	Action   string            `json:"action"`
	Resource api.Resource      `json:"resource"`
	Target   string            `json:"target,omitempty"`
	OK       bool              `json:"ok"`
	Result   any               `json:"result,omitempty"`
	Error    *poller.ErrorView `json:"error,omitempty"`
	Source   string            `json:"source,omitempty"`
	Took     time.Duration     `json:"took"`
	Time     time.Time         `json:"time"`
}

// Controller applies mutations. Recorder and Publisher are optional.
type Controller struct {
	source   string
	recorder Recorder
	bus      Publisher

	mu         sync.RWMutex
	refetchers map[api.Resource][]Refetcher
}

// New creates a controller. source tags ledger rows and events (cli, dashboard, tui).
func New(source string, recorder Recorder, bus Publisher) *Controller {
	return &Controller{
		source:     source,
		recorder:   recorder,
		bus:        bus,
		refetchers: make(map[api.Resource][]Refetcher),
	}
}

// Register makes r reload after any mutation affecting resource
func (c *Controller) Register(resource api.Resource, r Refetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refetchers[resource] = append(c.refetchers[resource], r)
}

// Apply runs the mutation. Validation failures stop before any request and are
// neither recorded nor published. Backend failures are recorded and published,
// then returned.
func (c *Controller) Apply(ctx context.Context, m Mutation) (Outcome, error) {
	out := Outcome{
		ID:       uuid.NewString(),
		Action:   m.Action,
		Resource: m.Resource,
		Target:   m.Target,
		Source:   c.source,
	}

	if m.Validate != nil {
		if err := m.Validate(); err != nil {
			out.Error = poller.NewErrorView(err)
			out.Time = time.Now()
			return out, err
		}
	}
	if m.Run == nil {
		err := errors.New("mutation has nothing to run")
		out.Error = poller.NewErrorView(err)
		out.Time = time.Now()
		return out, err
	}

	start := time.Now()
	result, err := m.Run(backend.WithRequestID(ctx, out.ID))
	out.Took = time.Since(start)
	out.Time = time.Now()
	out.OK = err == nil
	if err != nil {
		out.Error = poller.NewErrorView(err)
		log.Warn().Err(err).
			Str("action", m.Action).
			Str("resource", string(m.Resource)).
			Str("target", m.Target).
			Str("request_id", out.ID).
			Msg("Action failed")
	} else {
		out.Result = result
		log.Info().
			Str("action", m.Action).
			Str("resource", string(m.Resource)).
			Str("target", m.Target).
			Dur("took", out.Took).
			Msg("Action applied")
	}

	c.record(out, err)

	if c.bus != nil {
		c.bus.Publish(eventbus.Event{
			Type:     eventbus.EventTypeAction,
			Resource: string(m.Resource),
			Data:     out,
			Time:     out.Time,
		})
	}

	c.refetch(m)
	return out, err
}

func (c *Controller) record(out Outcome, err error) {
	if c.recorder == nil {
		return
	}
	entry := &ledger.Entry{
		Action:    out.Action,
		Resource:  string(out.Resource),
		Target:    out.Target,
		Result:    ledger.ResultOK,
		Source:    out.Source,
		RequestID: out.ID,
		Timestamp: out.Time.UTC(),
	}
	if err != nil {
		entry.Result = ledger.ResultFailed
		entry.Status = backend.StatusCode(err)
		entry.Error = errorText(err)
	}
	if err := c.recorder.Append(entry); err != nil {
		log.Error().Err(err).Str("request_id", out.ID).Msg("Failed to record action")
	}
}

// refetch reloads the changed resource and everything it affects, on success
// and failure alike: a 404 usually means the local view is stale.
func (c *Controller) refetch(m Mutation) {
	resources := lo.Uniq(append([]api.Resource{m.Resource}, m.Affects...))

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, res := range resources {
		for _, r := range c.refetchers[res] {
			r.Refetch()
		}
	}
}

func errorText(err error) string {
	if apiErr, ok := backend.AsError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
