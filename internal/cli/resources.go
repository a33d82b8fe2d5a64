package cli

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/app"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/tables"
)

func newRoomsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "rooms", Aliases: []string{"room"}, Short: "Manage rooms"}

	list := listCommand(e, "rooms", func(ctx context.Context, svc *app.Services) ([]api.Room, tables.Table, error) {
		rooms, err := svc.API.ListRooms(ctx)
		return rooms, tables.Rooms(rooms), err
	})

	var in api.RoomInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room",
		Args:  exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			return e.apply(ctx, svc, control.CreateRoom(svc.API, in))
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "room name")

	var upd api.RoomInput
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Rename a room",
		Args:  exactArgs(1),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return e.apply(ctx, svc, control.UpdateRoom(svc.API, id, upd))
		}),
	}
	update.Flags().StringVar(&upd.Name, "name", "", "new room name")

	cmd.AddCommand(list, create, update,
		e.idCommand("delete", "Delete a room", func(svc *app.Services, id int64) control.Mutation {
			return control.DeleteRoom(svc.API, id)
		}),
	)
	return cmd
}

func newDevicesCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "devices", Aliases: []string{"device", "dev"}, Short: "Manage devices"}

	list := listCommand(e, "devices", func(ctx context.Context, svc *app.Services) ([]api.Device, tables.Table, error) {
		devices, err := svc.API.ListDevices(ctx)
		if err != nil {
			return nil, tables.Table{}, err
		}
		return devices, tables.Devices(devices, lookup(ctx, svc)), nil
	})

	var in api.DeviceInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a device",
		Args:  exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			return e.apply(ctx, svc, control.CreateDevice(svc.API, in))
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "device name")
	create.Flags().Int64Var(&in.RoomID, "room", 0, "room id")
	create.Flags().BoolVar(&in.On, "on", false, "initial power state")

	var upd api.DeviceInput
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a device; unset flags keep their current value",
		Args:  exactArgs(1),
	}
	update.Flags().StringVar(&upd.Name, "name", "", "device name")
	update.Flags().Int64Var(&upd.RoomID, "room", 0, "room id")
	update.Flags().BoolVar(&upd.On, "on", false, "power state")
	update.RunE = e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		devices, err := svc.API.ListDevices(ctx)
		if err != nil {
			return err
		}
		cur, ok := lo.Find(devices, func(d api.Device) bool { return d.ID == id })
		if !ok {
			return fmt.Errorf("device %d not found", id)
		}

		in := api.DeviceInput{Name: cur.Name, On: cur.On, RoomID: cur.RoomID}
		flags := update.Flags()
		if flags.Changed("name") {
			in.Name = upd.Name
		}
		if flags.Changed("room") {
			in.RoomID = upd.RoomID
		}
		if flags.Changed("on") {
			in.On = upd.On
		}
		return e.apply(ctx, svc, control.UpdateDevice(svc.API, id, in))
	})

	cmd.AddCommand(list, create, update,
		e.idCommand("delete", "Delete a device", func(svc *app.Services, id int64) control.Mutation {
			return control.DeleteDevice(svc.API, id)
		}),
		e.idCommand("on", "Turn a device on", func(svc *app.Services, id int64) control.Mutation {
			return control.SetDevicePower(svc.API, id, true)
		}),
		e.idCommand("off", "Turn a device off", func(svc *app.Services, id int64) control.Mutation {
			return control.SetDevicePower(svc.API, id, false)
		}),
	)
	return cmd
}

func newGroupsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "groups", Aliases: []string{"group"}, Short: "Manage device groups"}

	list := listCommand(e, "groups", func(ctx context.Context, svc *app.Services) ([]api.Group, tables.Table, error) {
		groups, err := svc.API.ListGroups(ctx)
		return groups, tables.Groups(groups), err
	})

	var in api.GroupInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		Args:  exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			return e.apply(ctx, svc, control.CreateGroup(svc.API, in))
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "group name")
	create.Flags().Int64SliceVar(&in.DeviceIDs, "device", nil, "member device ids")

	var upd api.GroupInput
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a group; unset flags keep their current value",
		Args:  exactArgs(1),
	}
	update.Flags().StringVar(&upd.Name, "name", "", "group name")
	update.Flags().Int64SliceVar(&upd.DeviceIDs, "device", nil, "member device ids, replaces the current members")
	update.RunE = e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		groups, err := svc.API.ListGroups(ctx)
		if err != nil {
			return err
		}
		cur, ok := lo.Find(groups, func(g api.Group) bool { return g.ID == id })
		if !ok {
			return fmt.Errorf("group %d not found", id)
		}

		in := api.GroupInput{Name: cur.Name, DeviceIDs: cur.DeviceIDs()}
		if update.Flags().Changed("name") {
			in.Name = upd.Name
		}
		if update.Flags().Changed("device") {
			in.DeviceIDs = upd.DeviceIDs
		}
		return e.apply(ctx, svc, control.UpdateGroup(svc.API, id, in))
	})

	cmd.AddCommand(list, create, update,
		e.idCommand("delete", "Delete a group", func(svc *app.Services, id int64) control.Mutation {
			return control.DeleteGroup(svc.API, id)
		}),
		e.idCommand("on", "Turn every device in a group on", func(svc *app.Services, id int64) control.Mutation {
			return control.SetGroupPower(svc.API, id, true)
		}),
		e.idCommand("off", "Turn every device in a group off", func(svc *app.Services, id int64) control.Mutation {
			return control.SetGroupPower(svc.API, id, false)
		}),
	)
	return cmd
}

func newScenesCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{Use: "scenes", Aliases: []string{"scene"}, Short: "Manage scenes"}

	list := listCommand(e, "scenes", func(ctx context.Context, svc *app.Services) ([]api.Scene, tables.Table, error) {
		scenes, err := svc.API.ListScenes(ctx)
		return scenes, tables.Scenes(scenes), err
	})

	var in api.SceneInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a scene",
		Args:  exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			return e.apply(ctx, svc, control.CreateScene(svc.API, in))
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "scene name")
	create.Flags().StringVar(&in.Description, "description", "", "scene description")

	var upd api.SceneInput
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a scene; unset flags keep their current value",
		Args:  exactArgs(1),
	}
	update.Flags().StringVar(&upd.Name, "name", "", "scene name")
	update.Flags().StringVar(&upd.Description, "description", "", "scene description")
	update.RunE = e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		scenes, err := svc.API.ListScenes(ctx)
		if err != nil {
			return err
		}
		cur, ok := lo.Find(scenes, func(s api.Scene) bool { return s.ID == id })
		if !ok {
			return fmt.Errorf("scene %d not found", id)
		}

		in := api.SceneInput{Name: cur.Name, Description: cur.Description}
		if update.Flags().Changed("name") {
			in.Name = upd.Name
		}
		if update.Flags().Changed("description") {
			in.Description = upd.Description
		}
		return e.apply(ctx, svc, control.UpdateScene(svc.API, id, in))
	})

	cmd.AddCommand(list, create, update,
		e.idCommand("delete", "Delete a scene", func(svc *app.Services, id int64) control.Mutation {
			return control.DeleteScene(svc.API, id)
		}),
		e.idCommand("on", "Activate a scene", func(svc *app.Services, id int64) control.Mutation {
			return control.SetScenePower(svc.API, id, true)
		}),
		e.idCommand("off", "Deactivate a scene", func(svc *app.Services, id int64) control.Mutation {
			return control.SetScenePower(svc.API, id, false)
		}),
	)
	return cmd
}

// actionFlags are shared by create and update
type actionFlags struct {
	in api.SceneActionInput
}

func (f *actionFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.in.Name, "name", "", "action name")
	flags.Int64Var(&f.in.SceneID, "scene", 0, "scene id")
	flags.IntVar(&f.in.Order, "order", 0, "position within the scene")
	flags.IntVar(&f.in.IntervalSeconds, "interval", 0, "seconds to wait before running")
	flags.BoolVar(&f.in.DesiredState, "on", false, "switch targets on (default off)")
	flags.Int64SliceVar(&f.in.DeviceIDs, "device", nil, "target device ids")
	flags.Int64SliceVar(&f.in.GroupIDs, "group", nil, "target group ids")
}

func newActionsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "actions",
		Aliases: []string{"action", "scene-actions"},
		Short:   "Manage scene actions",
	}

	list := listCommand(e, "scene actions", func(ctx context.Context, svc *app.Services) ([]api.SceneAction, tables.Table, error) {
		actions, err := svc.API.ListSceneActions(ctx)
		if err != nil {
			return nil, tables.Table{}, err
		}
		return actions, tables.SceneActions(actions, lookup(ctx, svc)), nil
	})

	var createFlags actionFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a scene action",
		Args:  exactArgs(0),
		RunE: e.withServices(func(ctx context.Context, svc *app.Services, _ []string) error {
			return e.apply(ctx, svc, control.CreateSceneAction(svc.API, createFlags.in))
		}),
	}
	createFlags.bind(create)

	var updateFlags actionFlags
	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a scene action; unset flags keep their current value",
		Args:  exactArgs(1),
	}
	updateFlags.bind(update)
	update.RunE = e.withServices(func(ctx context.Context, svc *app.Services, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		actions, err := svc.API.ListSceneActions(ctx)
		if err != nil {
			return err
		}
		cur, ok := lo.Find(actions, func(a api.SceneAction) bool { return a.ID == id })
		if !ok {
			return fmt.Errorf("scene action %d not found", id)
		}

		in := api.SceneActionInput{
			Name:            cur.Name,
			Order:           cur.Order,
			IntervalSeconds: cur.IntervalSeconds,
			DesiredState:    cur.DesiredState,
			SceneID:         cur.Scene.ID,
			DeviceIDs:       lo.Map(cur.Devices, func(d api.DeviceRef, _ int) int64 { return d.ID }),
			GroupIDs:        lo.Map(cur.Groups, func(g api.GroupRef, _ int) int64 { return g.ID }),
		}
		flags, next := update.Flags(), updateFlags.in
		if flags.Changed("name") {
			in.Name = next.Name
		}
		if flags.Changed("scene") {
			in.SceneID = next.SceneID
		}
		if flags.Changed("order") {
			in.Order = next.Order
		}
		if flags.Changed("interval") {
			in.IntervalSeconds = next.IntervalSeconds
		}
		if flags.Changed("on") {
			in.DesiredState = next.DesiredState
		}
		if flags.Changed("device") {
			in.DeviceIDs = next.DeviceIDs
		}
		if flags.Changed("group") {
			in.GroupIDs = next.GroupIDs
		}
		return e.apply(ctx, svc, control.UpdateSceneAction(svc.API, id, in))
	})

	cmd.AddCommand(list, create, update,
		e.idCommand("delete", "Delete a scene action", func(svc *app.Services, id int64) control.Mutation {
			return control.DeleteSceneAction(svc.API, id)
		}),
		e.idCommand("run", "Execute a scene action now", func(svc *app.Services, id int64) control.Mutation {
			return control.ExecuteSceneAction(svc.API, id)
		}),
	)
	return cmd
}
