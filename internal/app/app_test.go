package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/api/apitest"
	"github.com/dokzlo13/homepanel/internal/config"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/ledger"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.URL = backendURL
	cfg.Database.Path = filepath.Join(t.TempDir(), "homepanel.sqlite")
	cfg.Polling.Interval = config.Duration(time.Hour)
	cfg.Polling.HistoryInterval = config.Duration(time.Hour)
	cfg.Dashboard.Enabled = false
	cfg.MQTT.Enabled = false
	return cfg
}

func TestAppStartPublishesSnapshots(t *testing.T) {
	fake := apitest.NewServer()
	t.Cleanup(fake.Close)
	room := fake.SeedRoom("Living")
	fake.SeedDevice("Lamp", room.ID, true)

	application, err := New(testConfig(t, fake.URL))
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]bool{}
	application.Services().Bus.Subscribe(eventbus.EventTypeSnapshot, func(e eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen[e.Resource] = true
	})

	require.NoError(t, application.Start(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(api.AllResources)
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, application.Services().Sources.Resolved())

	require.NoError(t, application.Stop())
	assert.False(t, application.Services().Sources.Devices().Running())
}

func TestControllerRecordsToLedger(t *testing.T) {
	fake := apitest.NewServer()
	t.Cleanup(fake.Close)
	scene := fake.SeedScene("Movie", "")

	services, err := NewServices(testConfig(t, fake.URL))
	require.NoError(t, err)
	t.Cleanup(services.Close)

	ctrl := services.NewController("cli")
	_, err = ctrl.Apply(context.Background(), control.SetScenePower(services.API, scene.ID, true))
	require.NoError(t, err)

	entries, err := services.Ledger.Recent(5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cli", entries[0].Source)
	assert.Equal(t, ledger.ResultOK, entries[0].Result)
}

func TestPollingSubsetFromConfig(t *testing.T) {
	fake := apitest.NewServer()
	t.Cleanup(fake.Close)

	cfg := testConfig(t, fake.URL)
	cfg.Polling.Resources = []string{"device", "scenes"}
	services, err := NewServices(cfg)
	require.NoError(t, err)
	t.Cleanup(services.Close)

	assert.Equal(t, []api.Resource{api.ResourceDevices, api.ResourceScenes}, services.Resources())

	require.NoError(t, services.StartPolling(context.Background()))
	assert.True(t, services.Sources.Devices().Running())
	assert.False(t, services.Sources.Rooms().Running())
}

func TestNewServicesRejectsUnknownResource(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8080")
	cfg.Polling.Resources = []string{"garage"}
	_, err := NewServices(cfg)
	assert.ErrorContains(t, err, "polling.resources")
}

func TestCleanupService(t *testing.T) {
	services, err := NewServices(testConfig(t, "http://localhost:8080"))
	require.NoError(t, err)
	t.Cleanup(services.Close)

	old := &ledger.Entry{Action: "on", Resource: "devices", Timestamp: time.Now().Add(-90 * 24 * time.Hour)}
	require.NoError(t, services.Ledger.Append(old))
	require.NoError(t, services.Ledger.Append(&ledger.Entry{Action: "off", Resource: "devices"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- services.Cleanup.Run(ctx) }()

	require.Eventually(t, func() bool {
		entries, err := services.Ledger.Recent(10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup service did not stop")
	}
}

func TestCleanupScheduleValidation(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8080")
	cfg.Ledger.CleanupSchedule = "every tuesday"
	_, err := NewCleanupService(cfg, nil)
	assert.ErrorContains(t, err, "cleanup_schedule")

	cfg.Ledger.RetentionDays = 0
	s, err := NewCleanupService(cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Run(context.Background()))
}
