// Package sources provides centralized access to the typed resource pollers.
package sources

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// Registry owns one poller per backend resource.
type Registry struct {
	rooms        *poller.Poller[[]api.Room]
	devices      *poller.Poller[[]api.Device]
	groups       *poller.Poller[[]api.Group]
	scenes       *poller.Poller[[]api.Scene]
	sceneActions *poller.Poller[[]api.SceneAction]
	history      *poller.Poller[[]api.HistoryEntry]
}

// NewRegistry creates stopped pollers for every resource. History polls on its own interval.
func NewRegistry(a *api.API, interval, historyInterval time.Duration) *Registry {
	return &Registry{
		rooms:        poller.New(string(api.ResourceRooms), a.ListRooms, interval),
		devices:      poller.New(string(api.ResourceDevices), a.ListDevices, interval),
		groups:       poller.New(string(api.ResourceGroups), a.ListGroups, interval),
		scenes:       poller.New(string(api.ResourceScenes), a.ListScenes, interval),
		sceneActions: poller.New(string(api.ResourceSceneActions), a.ListSceneActions, interval),
		history:      poller.New(string(api.ResourceHistory), a.ListHistory, historyInterval),
	}
}

func (r *Registry) Rooms() *poller.Poller[[]api.Room] {
	return r.rooms
}

func (r *Registry) Devices() *poller.Poller[[]api.Device] {
	return r.devices
}

func (r *Registry) Groups() *poller.Poller[[]api.Group] {
	return r.groups
}

func (r *Registry) Scenes() *poller.Poller[[]api.Scene] {
	return r.scenes
}

func (r *Registry) SceneActions() *poller.Poller[[]api.SceneAction] {
	return r.sceneActions
}

func (r *Registry) History() *poller.Poller[[]api.HistoryEntry] {
	return r.history
}

// All returns every poller in display order
func (r *Registry) All() []poller.Source {
	return []poller.Source{r.rooms, r.devices, r.groups, r.scenes, r.sceneActions, r.history}
}

// Get returns the poller for one resource
func (r *Registry) Get(res api.Resource) (poller.Source, bool) {
	return lo.Find(r.All(), func(src poller.Source) bool {
		return src.Name() == string(res)
	})
}

// Select returns the pollers for the given resources, or all of them when none are given
func (r *Registry) Select(resources ...api.Resource) []poller.Source {
	if len(resources) == 0 {
		return r.All()
	}
	return lo.FilterMap(lo.Uniq(resources), func(res api.Resource, _ int) (poller.Source, bool) {
		return r.Get(res)
	})
}

// Start starts the selected pollers (all when none are given)
func (r *Registry) Start(ctx context.Context, resources ...api.Resource) error {
	for _, src := range r.Select(resources...) {
		if err := src.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops every poller; stopping an idle poller is a no-op
func (r *Registry) Stop() {
	for _, src := range r.All() {
		src.Stop()
	}
}

// Resolved reports whether every selected poller has completed a fetch
func (r *Registry) Resolved(resources ...api.Resource) bool {
	return lo.EveryBy(r.Select(resources...), func(src poller.Source) bool {
		return src.View().Resolved()
	})
}

// Bind makes ctrl refetch the matching poller after each mutation
func (r *Registry) Bind(ctrl *control.Controller) {
	for _, src := range r.All() {
		ctrl.Register(api.Resource(src.Name()), src)
	}
}
