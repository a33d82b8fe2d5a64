package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/dashboard"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// DashboardService wraps the dashboard HTTP server.
type DashboardService struct {
	cfg    *config.Config
	server *dashboard.Server
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(cfg *config.Config, a *api.API, ctrl *control.Controller, srcs []poller.Source) *DashboardService {
	server := dashboard.NewServer(cfg.Dashboard.Addr(), a, ctrl, srcs)
	return &DashboardService{
		cfg:    cfg,
		server: server,
	}
}

// Subscribe streams bus events to websocket clients
func (s *DashboardService) Subscribe(bus *eventbus.Bus) {
	if !s.cfg.Dashboard.Enabled {
		return
	}
	bus.Subscribe(eventbus.EventTypeSnapshot, s.server.HandleEvent)
	bus.Subscribe(eventbus.EventTypeAction, s.server.HandleEvent)
}

// Run serves the dashboard if enabled. It blocks until ctx is done.
func (s *DashboardService) Run(ctx context.Context) error {
	if !s.cfg.Dashboard.Enabled {
		log.Debug().Msg("Dashboard server disabled")
		return nil
	}
	return s.server.Run(ctx, s.cfg.GetShutdownTimeout())
}
