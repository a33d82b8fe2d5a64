package dashboard

import (
	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// Summary is the home screen: counts plus the latest backend history
type Summary struct {
	Rooms        int                `json:"rooms"`
	Devices      int                `json:"devices"`
	DevicesOn    int                `json:"devicesOn"`
	DevicesOff   int                `json:"devicesOff"`
	Groups       int                `json:"groups"`
	Scenes       int                `json:"scenes"`
	ScenesActive int                `json:"scenesActive"`
	SceneActions int                `json:"sceneActions"`
	Latest       []api.HistoryEntry `json:"latest"`
	Ready        bool               `json:"ready"`
}

func buildSummary(views map[string]poller.View, latest int) Summary {
	var s Summary
	s.Ready = len(views) > 0 && lo.EveryBy(lo.Values(views), poller.View.Resolved)

	if rooms, ok := data[[]api.Room](views, api.ResourceRooms); ok {
		s.Rooms = len(rooms)
	}
	if devices, ok := data[[]api.Device](views, api.ResourceDevices); ok {
		s.Devices = len(devices)
		s.DevicesOn = lo.CountBy(devices, func(d api.Device) bool { return d.On })
		s.DevicesOff = s.Devices - s.DevicesOn
	}
	if groups, ok := data[[]api.Group](views, api.ResourceGroups); ok {
		s.Groups = len(groups)
	}
	if scenes, ok := data[[]api.Scene](views, api.ResourceScenes); ok {
		s.Scenes = len(scenes)
		s.ScenesActive = lo.CountBy(scenes, func(c api.Scene) bool { return c.Active })
	}
	if actions, ok := data[[]api.SceneAction](views, api.ResourceSceneActions); ok {
		s.SceneActions = len(actions)
	}

	s.Latest = []api.HistoryEntry{}
	if history, ok := data[[]api.HistoryEntry](views, api.ResourceHistory); ok {
		// backend appends, so walk from the end
		for i := len(history) - 1; i >= 0 && len(s.Latest) < latest; i-- {
			s.Latest = append(s.Latest, history[i])
		}
	}
	return s
}

func data[T any](views map[string]poller.View, res api.Resource) (T, bool) {
	v, ok := views[string(res)]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.Data.(T)
	return t, ok
}
