package control_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/api/apitest"
	"github.com/dokzlo13/homepanel/internal/backend"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/db"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/ledger"
)

type counter struct{ n atomic.Int32 }

func (c *counter) Refetch() { c.n.Add(1) }

type events struct {
	mu  sync.Mutex
	got []eventbus.Event
}

func (e *events) Publish(ev eventbus.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
}

func (e *events) all() []eventbus.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]eventbus.Event(nil), e.got...)
}

type fixture struct {
	api    *api.API
	srv    *apitest.Server
	ledger *ledger.Ledger
	bus    *events
	ctrl   *control.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	client, err := backend.NewClient(srv.URL, backend.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	database, err := db.Open(filepath.Join(t.TempDir(), "control.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	l := ledger.New(database.DB)
	bus := &events{}
	return &fixture{
		api:    api.New(client),
		srv:    srv,
		ledger: l,
		bus:    bus,
		ctrl:   control.New("test", l, bus),
	}
}

func TestApplySuccessRecordsPublishesAndRefetches(t *testing.T) {
	f := newFixture(t)
	room := f.srv.SeedRoom("Living")
	lamp := f.srv.SeedDevice("Lamp", room.ID, false)

	devices, history, rooms := &counter{}, &counter{}, &counter{}
	f.ctrl.Register(api.ResourceDevices, devices)
	f.ctrl.Register(api.ResourceHistory, history)
	f.ctrl.Register(api.ResourceRooms, rooms)

	out, err := f.ctrl.Apply(context.Background(), control.SetDevicePower(f.api, lamp.ID, true))
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "on", out.Action)
	assert.Equal(t, api.ResourceDevices, out.Resource)
	assert.Nil(t, out.Error)

	d, _ := f.srv.Device(lamp.ID)
	assert.True(t, d.On)

	// ledger row carries the id the backend saw
	assert.Equal(t, out.ID, f.srv.LastRequest().RequestID)
	entries, err := f.ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.ResultOK, entries[0].Result)
	assert.Equal(t, "devices", entries[0].Resource)
	assert.Equal(t, "test", entries[0].Source)
	assert.Equal(t, out.ID, entries[0].RequestID)

	got := f.bus.all()
	require.Len(t, got, 1)
	assert.Equal(t, eventbus.EventTypeAction, got[0].Type)
	assert.Equal(t, "devices", got[0].Resource)

	assert.Equal(t, int32(1), devices.n.Load())
	assert.Equal(t, int32(1), history.n.Load())
	assert.Equal(t, int32(0), rooms.n.Load())
}

func TestApplyValidationStopsBeforeRequest(t *testing.T) {
	f := newFixture(t)
	rooms := &counter{}
	f.ctrl.Register(api.ResourceRooms, rooms)

	out, err := f.ctrl.Apply(context.Background(), control.CreateRoom(f.api, api.RoomInput{Name: "  "}))
	require.Error(t, err)
	assert.True(t, backend.IsKind(err, backend.KindValidation))
	assert.False(t, out.OK)
	require.NotNil(t, out.Error)
	assert.Equal(t, "room name is required", out.Error.Message)

	assert.Empty(t, f.srv.Requests())
	assert.Empty(t, f.bus.all())
	entries, err := f.ledger.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int32(0), rooms.n.Load())
}

func TestApplyBackendFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	rooms := &counter{}
	f.ctrl.Register(api.ResourceRooms, rooms)

	out, err := f.ctrl.Apply(context.Background(), control.DeleteRoom(f.api, 99))
	require.Error(t, err)
	assert.True(t, backend.IsNotFound(err))
	assert.False(t, out.OK)
	require.NotNil(t, out.Error)
	assert.Equal(t, http.StatusNotFound, out.Error.Status)

	entries, err := f.ledger.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.ResultFailed, entries[0].Result)
	assert.Equal(t, http.StatusNotFound, entries[0].Status)
	assert.Equal(t, "99", entries[0].Target)
	assert.NotEmpty(t, entries[0].Error)

	require.Len(t, f.bus.all(), 1)
	// a failed mutation still refreshes the view it targeted
	assert.Equal(t, int32(1), rooms.n.Load())
}

func TestApplyCreateReturnsEntity(t *testing.T) {
	f := newFixture(t)

	out, err := f.ctrl.Apply(context.Background(), control.CreateRoom(f.api, api.RoomInput{Name: "Kitchen"}))
	require.NoError(t, err)
	room, ok := out.Result.(*api.Room)
	require.True(t, ok)
	assert.Equal(t, "Kitchen", room.Name)

	rooms, err := f.api.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "Kitchen", rooms[0].Name)
}

func TestApplyWithoutRecorderOrBus(t *testing.T) {
	f := newFixture(t)
	scene := f.srv.SeedScene("Movie", "dim lights")
	ctrl := control.New("cli", nil, nil)

	out, err := ctrl.Apply(context.Background(), control.SetScenePower(f.api, scene.ID, true))
	require.NoError(t, err)
	assert.True(t, out.OK)

	s, _ := f.srv.Scene(scene.ID)
	assert.True(t, s.Active)
}

func TestApplyMissingRun(t *testing.T) {
	ctrl := control.New("cli", nil, nil)
	out, err := ctrl.Apply(context.Background(), control.Mutation{Action: "noop", Resource: api.ResourceRooms})
	require.Error(t, err)
	assert.False(t, out.OK)
}

func TestMutationTargets(t *testing.T) {
	a := api.New(nil)

	tests := []struct {
		name     string
		m        control.Mutation
		action   string
		resource api.Resource
		affects  api.Resource
	}{
		{"group on", control.SetGroupPower(a, 4, true), "on", api.ResourceGroups, api.ResourceDevices},
		{"group off", control.SetGroupPower(a, 4, false), "off", api.ResourceGroups, api.ResourceDevices},
		{"scene off", control.SetScenePower(a, 5, false), "off", api.ResourceScenes, api.ResourceDevices},
		{"execute", control.ExecuteSceneAction(a, 6), "execute", api.ResourceSceneActions, api.ResourceDevices},
		{"delete device", control.DeleteDevice(a, 2), "delete", api.ResourceDevices, api.ResourceGroups},
		{"delete scene", control.DeleteScene(a, 5), "delete", api.ResourceScenes, api.ResourceSceneActions},
		{"update action", control.UpdateSceneAction(a, 6, api.SceneActionInput{}), "update", api.ResourceSceneActions, api.ResourceHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.action, tt.m.Action)
			assert.Equal(t, tt.resource, tt.m.Resource)
			assert.Contains(t, tt.m.Affects, tt.affects)
			assert.Contains(t, tt.m.Affects, api.ResourceHistory)
		})
	}
}
