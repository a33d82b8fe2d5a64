// Package api maps home-automation operations onto backend endpoints.
// Every function is a pass-through: no retry, no caching, no validation.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dokzlo13/homepanel/internal/backend"
)

// Doer is the subset of *backend.Client the API needs
type Doer interface {
	Do(ctx context.Context, path string, opts *backend.RequestOptions, out any) error
}

// API groups the resource operations over one backend
type API struct {
	c Doer
}

// New creates an API over the given backend client
func New(c Doer) *API {
	return &API{c: c}
}

func (a *API) list(ctx context.Context, path string, out any) error {
	return a.c.Do(ctx, path, nil, out)
}

func (a *API) send(ctx context.Context, method, path string, body, out any) error {
	return a.c.Do(ctx, path, &backend.RequestOptions{Method: method, Body: body}, out)
}

// create decodes the response into a fresh value; empty responses yield nil
func create[T any](ctx context.Context, a *API, method, path string, body any) (*T, error) {
	var out *T
	if err := a.send(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func itemPath(base string, id int64) string {
	return fmt.Sprintf("%s/%d", base, id)
}

func actionPath(base string, id int64, action string) string {
	return fmt.Sprintf("%s/%d/%s", base, id, action)
}

const (
	roomsPath        = "/comodos"
	devicesPath      = "/dispositivos"
	groupsPath       = "/grupos"
	scenesPath       = "/cenas"
	sceneActionsPath = "/acaocenas"
	historyPath      = "/history"

	powerOn  = "ligar"
	powerOff = "desligar"
	execute  = "executar"
)

// Rooms

func (a *API) ListRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := a.list(ctx, roomsPath, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (a *API) CreateRoom(ctx context.Context, in RoomInput) (*Room, error) {
	return create[Room](ctx, a, http.MethodPost, roomsPath, in.body())
}

func (a *API) UpdateRoom(ctx context.Context, id int64, in RoomInput) (*Room, error) {
	return create[Room](ctx, a, http.MethodPut, itemPath(roomsPath, id), in.body())
}

func (a *API) DeleteRoom(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodDelete, itemPath(roomsPath, id), nil, nil)
}

// Devices

func (a *API) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := a.list(ctx, devicesPath, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

func (a *API) CreateDevice(ctx context.Context, in DeviceInput) (*Device, error) {
	return create[Device](ctx, a, http.MethodPost, devicesPath, in.body())
}

func (a *API) UpdateDevice(ctx context.Context, id int64, in DeviceInput) (*Device, error) {
	return create[Device](ctx, a, http.MethodPut, itemPath(devicesPath, id), in.body())
}

func (a *API) DeleteDevice(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodDelete, itemPath(devicesPath, id), nil, nil)
}

func (a *API) TurnOnDevice(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPut, actionPath(devicesPath, id, powerOn), nil, nil)
}

func (a *API) TurnOffDevice(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPut, actionPath(devicesPath, id, powerOff), nil, nil)
}

// Groups. Power actions on groups are POST, unlike devices and scenes.

func (a *API) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := a.list(ctx, groupsPath, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (a *API) CreateGroup(ctx context.Context, in GroupInput) (*Group, error) {
	return create[Group](ctx, a, http.MethodPost, groupsPath, in.body())
}

func (a *API) UpdateGroup(ctx context.Context, id int64, in GroupInput) (*Group, error) {
	return create[Group](ctx, a, http.MethodPut, itemPath(groupsPath, id), in.body())
}

func (a *API) DeleteGroup(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodDelete, itemPath(groupsPath, id), nil, nil)
}

func (a *API) TurnOnGroup(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPost, actionPath(groupsPath, id, powerOn), nil, nil)
}

func (a *API) TurnOffGroup(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPost, actionPath(groupsPath, id, powerOff), nil, nil)
}

// Scenes

func (a *API) ListScenes(ctx context.Context) ([]Scene, error) {
	var scenes []Scene
	if err := a.list(ctx, scenesPath, &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

func (a *API) CreateScene(ctx context.Context, in SceneInput) (*Scene, error) {
	return create[Scene](ctx, a, http.MethodPost, scenesPath, in.body())
}

func (a *API) UpdateScene(ctx context.Context, id int64, in SceneInput) (*Scene, error) {
	return create[Scene](ctx, a, http.MethodPut, itemPath(scenesPath, id), in.body())
}

func (a *API) DeleteScene(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodDelete, itemPath(scenesPath, id), nil, nil)
}

func (a *API) TurnOnScene(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPut, actionPath(scenesPath, id, powerOn), nil, nil)
}

func (a *API) TurnOffScene(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPut, actionPath(scenesPath, id, powerOff), nil, nil)
}

// Scene actions

func (a *API) ListSceneActions(ctx context.Context) ([]SceneAction, error) {
	var actions []SceneAction
	if err := a.list(ctx, sceneActionsPath, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

func (a *API) CreateSceneAction(ctx context.Context, in SceneActionInput) (*SceneAction, error) {
	return create[SceneAction](ctx, a, http.MethodPost, sceneActionsPath, in.body())
}

func (a *API) UpdateSceneAction(ctx context.Context, id int64, in SceneActionInput) (*SceneAction, error) {
	return create[SceneAction](ctx, a, http.MethodPut, itemPath(sceneActionsPath, id), in.body())
}

func (a *API) DeleteSceneAction(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodDelete, itemPath(sceneActionsPath, id), nil, nil)
}

func (a *API) ExecuteSceneAction(ctx context.Context, id int64) error {
	return a.send(ctx, http.MethodPut, actionPath(sceneActionsPath, id, execute), nil, nil)
}

// History

func (a *API) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := a.list(ctx, historyPath, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
