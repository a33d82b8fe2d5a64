package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// EventService publishes every poller state change on the bus as a snapshot event.
type EventService struct {
	bus     *eventbus.Bus
	sources []poller.Source
}

// NewEventService creates a new EventService.
func NewEventService(bus *eventbus.Bus, sources []poller.Source) *EventService {
	return &EventService{
		bus:     bus,
		sources: sources,
	}
}

// Run forwards views until ctx is done
func (s *EventService) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		group.Go(func() error {
			s.forward(ctx, src)
			return nil
		})
	}
	return group.Wait()
}

func (s *EventService) forward(ctx context.Context, src poller.Source) {
	views, cancel := src.Watch()
	defer cancel()

	log.Debug().Str("resource", src.Name()).Msg("Forwarding snapshots to event bus")

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			s.bus.Publish(eventbus.Event{
				Type:     eventbus.EventTypeSnapshot,
				Resource: v.Name,
				Data:     v,
				Time:     time.Now(),
			})
		}
	}
}
