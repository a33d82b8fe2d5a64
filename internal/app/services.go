package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/backend"
	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/db"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/ledger"
	"github.com/dokzlo13/homepanel/internal/sources"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg       *config.Config
	resources []api.Resource

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Client *backend.Client
	API    *api.API
	Bus    *eventbus.Bus

	// Pollers, one per resource
	Sources *sources.Registry

	// High-level services
	Events    *EventService
	Cleanup   *CleanupService
	Dashboard *DashboardService
	MQTT      *MQTTService

	group     *errgroup.Group
	closeOnce sync.Once
}

// NewServices creates every service the daemon runs, the ledger included.
// Nothing touches the network until Start.
func NewServices(cfg *config.Config) (*Services, error) {
	s, err := NewClientServices(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.OpenLedger(); err != nil {
		s.Close()
		return nil, err
	}

	s.Events = NewEventService(s.Bus, s.Sources.Select(s.resources...))

	s.Cleanup, err = NewCleanupService(cfg, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Dashboard = NewDashboardService(cfg, s.API, s.NewController("dashboard"), s.Sources.Select(s.resources...))
	s.MQTT = NewMQTTService(cfg)

	return s, nil
}

// NewClientServices creates the backend client, API, pollers and bus only.
// The local database stays closed until OpenLedger, so read-only commands never
// write to disk.
func NewClientServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	resources, err := parseResources(cfg.Polling.Resources)
	if err != nil {
		return nil, err
	}
	s.resources = resources

	// Initialize backend client
	s.Client, err = backend.NewClient(cfg.Backend.URL, backend.Options{
		Timeout:      cfg.Backend.Timeout.Duration(),
		RateLimitRPS: cfg.Backend.RateLimitRPS,
	})
	if err != nil {
		return nil, err
	}
	s.API = api.New(s.Client)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Sources = sources.NewRegistry(s.API, cfg.Polling.Interval.Duration(), cfg.Polling.HistoryInterval.Duration())

	return s, nil
}

// OpenLedger opens the local database and ledger on first use
func (s *Services) OpenLedger() error {
	if s.Ledger != nil {
		return nil
	}

	database, err := db.Open(s.cfg.Database.Path)
	if err != nil {
		return err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	return nil
}

// Resources returns the resources this instance polls
func (s *Services) Resources() []api.Resource {
	return s.resources
}

// NewController creates a controller whose mutations refetch the matching pollers.
// source tags ledger rows and events.
func (s *Services) NewController(source string) *control.Controller {
	// A nil *ledger.Ledger must not become a non-nil Recorder
	var recorder control.Recorder
	if s.Ledger != nil {
		recorder = s.Ledger
	}
	ctrl := control.New(source, recorder, s.Bus)
	s.Sources.Bind(ctrl)
	return ctrl
}

// StartPolling starts the configured pollers, or the given ones when any are passed
func (s *Services) StartPolling(ctx context.Context, resources ...api.Resource) error {
	if len(resources) == 0 {
		resources = s.resources
	}
	return s.Sources.Start(ctx, resources...)
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a background service fails.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.Dashboard == nil {
		return errors.New("services were created without the daemon components, use NewServices")
	}

	// Consumers subscribe before anything is published
	s.Dashboard.Subscribe(s.Bus)
	if err := s.MQTT.Connect(s.Bus); err != nil {
		return err
	}

	if err := s.StartPolling(ctx); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	s.group = group

	group.Go(func() error { return s.Events.Run(gctx) })
	group.Go(func() error { return s.Cleanup.Run(gctx) })
	group.Go(func() error { return s.Dashboard.Run(gctx) })

	go func() {
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			onFatalError(err)
		}
	}()

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	var err error
	if s.group != nil {
		if werr := s.group.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			err = werr
		}
	}
	s.Close()
	return err
}

// Close releases all resources. Pollers stop before the bus closes so no
// snapshot is published into a closed bus.
func (s *Services) Close() {
	s.closeOnce.Do(func() {
		if s.Sources != nil {
			s.Sources.Stop()
		}
		if s.Bus != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
			s.Bus.Close(ctx)
			cancel()
			stats := s.Bus.Stats()
			log.Debug().Uint64("published", stats.Published).Uint64("dropped", stats.Dropped).Msg("Event bus closed")
		}
		if s.MQTT != nil {
			s.MQTT.Close()
		}
		if s.Client != nil {
			s.Client.Close()
		}
		if s.DB != nil {
			if err := s.DB.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
	})
}

func parseResources(names []string) ([]api.Resource, error) {
	resources := make([]api.Resource, 0, len(names))
	for _, name := range names {
		res, err := api.ParseResource(name)
		if err != nil {
			return nil, fmt.Errorf("polling.resources: %w", err)
		}
		resources = append(resources, res)
	}
	return resources, nil
}
