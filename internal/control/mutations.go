package control

import (
	"context"
	"strconv"

	"github.com/dokzlo13/homepanel/internal/api"
)

// Every backend mutation also appends to the backend history.
var historyOnly = []api.Resource{api.ResourceHistory}

func target(id int64) string {
	return strconv.FormatInt(id, 10)
}

func powerAction(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func noResult(fn func(ctx context.Context) error) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	}
}

// Rooms

func CreateRoom(a *api.API, in api.RoomInput) Mutation {
	return Mutation{
		Action:   "create",
		Resource: api.ResourceRooms,
		Target:   in.Name,
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.CreateRoom(ctx, in)
		},
	}
}

func UpdateRoom(a *api.API, id int64, in api.RoomInput) Mutation {
	return Mutation{
		Action:   "update",
		Resource: api.ResourceRooms,
		Target:   target(id),
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.UpdateRoom(ctx, id, in)
		},
	}
}

func DeleteRoom(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "delete",
		Resource: api.ResourceRooms,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceDevices, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			return a.DeleteRoom(ctx, id)
		}),
	}
}

// Devices

func CreateDevice(a *api.API, in api.DeviceInput) Mutation {
	return Mutation{
		Action:   "create",
		Resource: api.ResourceDevices,
		Target:   in.Name,
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.CreateDevice(ctx, in)
		},
	}
}

func UpdateDevice(a *api.API, id int64, in api.DeviceInput) Mutation {
	return Mutation{
		Action:   "update",
		Resource: api.ResourceDevices,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceGroups, api.ResourceHistory},
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.UpdateDevice(ctx, id, in)
		},
	}
}

func DeleteDevice(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "delete",
		Resource: api.ResourceDevices,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceGroups, api.ResourceSceneActions, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			return a.DeleteDevice(ctx, id)
		}),
	}
}

func SetDevicePower(a *api.API, id int64, on bool) Mutation {
	return Mutation{
		Action:   powerAction(on),
		Resource: api.ResourceDevices,
		Target:   target(id),
		Affects:  historyOnly,
		Run: noResult(func(ctx context.Context) error {
			if on {
				return a.TurnOnDevice(ctx, id)
			}
			return a.TurnOffDevice(ctx, id)
		}),
	}
}

// Groups

func CreateGroup(a *api.API, in api.GroupInput) Mutation {
	return Mutation{
		Action:   "create",
		Resource: api.ResourceGroups,
		Target:   in.Name,
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.CreateGroup(ctx, in)
		},
	}
}

func UpdateGroup(a *api.API, id int64, in api.GroupInput) Mutation {
	return Mutation{
		Action:   "update",
		Resource: api.ResourceGroups,
		Target:   target(id),
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.UpdateGroup(ctx, id, in)
		},
	}
}

func DeleteGroup(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "delete",
		Resource: api.ResourceGroups,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceSceneActions, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			return a.DeleteGroup(ctx, id)
		}),
	}
}

// SetGroupPower switches every member device
func SetGroupPower(a *api.API, id int64, on bool) Mutation {
	return Mutation{
		Action:   powerAction(on),
		Resource: api.ResourceGroups,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceDevices, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			if on {
				return a.TurnOnGroup(ctx, id)
			}
			return a.TurnOffGroup(ctx, id)
		}),
	}
}

// Scenes

func CreateScene(a *api.API, in api.SceneInput) Mutation {
	return Mutation{
		Action:   "create",
		Resource: api.ResourceScenes,
		Target:   in.Name,
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.CreateScene(ctx, in)
		},
	}
}

func UpdateScene(a *api.API, id int64, in api.SceneInput) Mutation {
	return Mutation{
		Action:   "update",
		Resource: api.ResourceScenes,
		Target:   target(id),
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.UpdateScene(ctx, id, in)
		},
	}
}

func DeleteScene(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "delete",
		Resource: api.ResourceScenes,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceSceneActions, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			return a.DeleteScene(ctx, id)
		}),
	}
}

// SetScenePower activates or deactivates a scene. Activation may run its actions.
func SetScenePower(a *api.API, id int64, on bool) Mutation {
	return Mutation{
		Action:   powerAction(on),
		Resource: api.ResourceScenes,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceDevices, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			if on {
				return a.TurnOnScene(ctx, id)
			}
			return a.TurnOffScene(ctx, id)
		}),
	}
}

// Scene actions

func CreateSceneAction(a *api.API, in api.SceneActionInput) Mutation {
	return Mutation{
		Action:   "create",
		Resource: api.ResourceSceneActions,
		Target:   in.Name,
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.CreateSceneAction(ctx, in)
		},
	}
}

func UpdateSceneAction(a *api.API, id int64, in api.SceneActionInput) Mutation {
	return Mutation{
		Action:   "update",
		Resource: api.ResourceSceneActions,
		Target:   target(id),
		Affects:  historyOnly,
		Validate: in.Validate,
		Run: func(ctx context.Context) (any, error) {
			return a.UpdateSceneAction(ctx, id, in)
		},
	}
}

func DeleteSceneAction(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "delete",
		Resource: api.ResourceSceneActions,
		Target:   target(id),
		Affects:  historyOnly,
		Run: noResult(func(ctx context.Context) error {
			return a.DeleteSceneAction(ctx, id)
		}),
	}
}

// ExecuteSceneAction runs one action immediately
func ExecuteSceneAction(a *api.API, id int64) Mutation {
	return Mutation{
		Action:   "execute",
		Resource: api.ResourceSceneActions,
		Target:   target(id),
		Affects:  []api.Resource{api.ResourceDevices, api.ResourceHistory},
		Run: noResult(func(ctx context.Context) error {
			return a.ExecuteSceneAction(ctx, id)
		}),
	}
}
