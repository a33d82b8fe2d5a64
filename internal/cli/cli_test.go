package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/api/apitest"
	"github.com/dokzlo13/homepanel/internal/db"
	"github.com/dokzlo13/homepanel/internal/ledger"
)

type harness struct {
	backend *apitest.Server
	config  string
	db      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDB(t, filepath.Join(t.TempDir(), "panel.sqlite"))
}

func newHarnessWithDB(t *testing.T, dbPath string) *harness {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
backend:
  url: %s
database:
  path: %s
log:
  level: disabled
`, srv.URL, dbPath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return &harness{backend: srv, config: path, db: dbPath}
}

// exec runs the command tree and returns stdout, stderr and the exit code
func (h *harness) exec(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer
	root := NewRootCommand(&stdout, &stderr)
	root.SetArgs(append([]string{"--config", h.config}, args...))
	code := run(root, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRoomsListJSON(t *testing.T) {
	h := newHarness(t)
	h.backend.SeedRoom("Sala")
	h.backend.SeedRoom("Quarto")

	stdout, _, code := h.exec("rooms", "list", "--json")
	require.Equal(t, exitSuccess, code)

	var rooms []api.Room
	require.NoError(t, json.Unmarshal([]byte(stdout), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "Sala", rooms[0].Name)
}

func TestEmptyListJSONIsArray(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.exec("scenes", "list", "--json")
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "[]", strings.TrimSpace(stdout))
}

func TestDevicesListTable(t *testing.T) {
	h := newHarness(t)
	room := h.backend.SeedRoom("Cozinha")
	h.backend.SeedDevice("Lamp", room.ID, true)

	stdout, _, code := h.exec("devices", "list")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "Lamp")
	assert.Contains(t, stdout, "Cozinha")
	assert.Contains(t, stdout, "on")
}

func TestEmptyListTable(t *testing.T) {
	h := newHarness(t)

	stdout, _, code := h.exec("groups", "list")
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "no groups", strings.TrimSpace(stdout))
}

func TestDevicePowerRecordsLedger(t *testing.T) {
	h := newHarness(t)
	room := h.backend.SeedRoom("Sala")
	device := h.backend.SeedDevice("Lamp", room.ID, false)

	stdout, _, code := h.exec("devices", "on", fmt.Sprint(device.ID))
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, fmt.Sprintf("on devices %d", device.ID))

	got, ok := h.backend.Device(device.ID)
	require.True(t, ok)
	assert.True(t, got.On)

	stdout, _, code = h.exec("history", "--local", "--json")
	require.Equal(t, exitSuccess, code)

	var out struct {
		Backend []api.HistoryEntry `json:"backend"`
		Local   []ledger.Entry     `json:"local"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Local, 1)
	assert.Equal(t, "on", out.Local[0].Action)
	assert.Equal(t, "cli", out.Local[0].Source)
	power, ok := lo.Find(h.backend.Requests(), func(r apitest.Request) bool { return r.Method == http.MethodPut })
	require.True(t, ok)
	assert.Equal(t, power.RequestID, out.Local[0].RequestID)
	assert.NotEmpty(t, out.Backend)
}

func TestDeviceUpdateKeepsUnsetFields(t *testing.T) {
	h := newHarness(t)
	room := h.backend.SeedRoom("Sala")
	device := h.backend.SeedDevice("Lamp", room.ID, true)

	_, _, code := h.exec("devices", "update", fmt.Sprint(device.ID), "--name", "Desk lamp")
	require.Equal(t, exitSuccess, code)

	got, ok := h.backend.Device(device.ID)
	require.True(t, ok)
	assert.Equal(t, "Desk lamp", got.Name)
	assert.True(t, got.On)
	assert.Equal(t, room.ID, got.RoomID)
}

func TestUpdateMissingDevice(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.exec("devices", "update", "42", "--name", "x")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "device 42 not found")
}

func TestValidationFailureSendsNothing(t *testing.T) {
	h := newHarness(t)

	_, stderr, code := h.exec("devices", "create", "--room", "1")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "device name is required")
	assert.Empty(t, h.backend.Requests())
}

func TestBackendErrorIsDescribed(t *testing.T) {
	h := newHarness(t)
	h.backend.FailNext(http.StatusInternalServerError, "falha interna")

	_, stderr, code := h.exec("rooms", "delete", "3")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "backend answered 500")
	assert.Contains(t, stderr, "falha interna")
}

func TestHistoryLocalSurvivesBackendFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.FailNext(http.StatusBadGateway, "")

	stdout, stderr, code := h.exec("history", "--local")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stderr, "backend history unavailable")
	assert.Contains(t, stdout, "Local ledger")
	assert.Contains(t, stdout, "no local actions")
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	cases := [][]string{
		{"devices", "on"},
		{"devices", "on", "abc"},
		{"rooms", "list", "--bogus"},
		{"history", "--limit", "0"},
		{"watch", "gadgets"},
	}
	for _, args := range cases {
		_, stderr, code := h.exec(args...)
		assert.Equal(t, exitUsage, code, args)
		assert.NotEmpty(t, stderr, args)
	}
}

func TestReadOnlyCommandsLeaveDatabaseAlone(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "panel.sqlite")
	h := newHarnessWithDB(t, dbPath)
	h.backend.SeedRoom("Sala")

	stdout, stderr, code := h.exec("rooms", "list", "--json")
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "Sala")

	_, _, code = h.exec("history")
	require.Equal(t, exitSuccess, code)

	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestMutationWithoutLedgerStillRuns(t *testing.T) {
	h := newHarnessWithDB(t, filepath.Join(t.TempDir(), "missing", "panel.sqlite"))
	room := h.backend.SeedRoom("Sala")
	device := h.backend.SeedDevice("Lamp", room.ID, false)

	_, stderr, code := h.exec("devices", "on", fmt.Sprint(device.ID))
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stderr, "local ledger unavailable")

	got, ok := h.backend.Device(device.ID)
	require.True(t, ok)
	assert.True(t, got.On)
}

func TestGroupPower(t *testing.T) {
	h := newHarness(t)
	room := h.backend.SeedRoom("Sala")
	lamp := h.backend.SeedDevice("Lamp", room.ID, false)
	fan := h.backend.SeedDevice("Fan", room.ID, false)
	group := h.backend.SeedGroup("Everything", lamp.ID, fan.ID)
	id := fmt.Sprint(group.ID)

	_, _, code := h.exec("groups", "on", id)
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, http.MethodPost, h.backend.LastRequest().Method)
	assert.Equal(t, "/grupos/"+id+"/ligar", h.backend.LastRequest().Path)
	for _, d := range []api.Device{lamp, fan} {
		got, _ := h.backend.Device(d.ID)
		assert.True(t, got.On, d.Name)
	}

	_, _, code = h.exec("groups", "off", id)
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "/grupos/"+id+"/desligar", h.backend.LastRequest().Path)
	got, _ := h.backend.Device(lamp.ID)
	assert.False(t, got.On)
}

func TestScenePower(t *testing.T) {
	h := newHarness(t)
	scene := h.backend.SeedScene("Movie", "dim everything")
	id := fmt.Sprint(scene.ID)

	_, _, code := h.exec("scenes", "on", id)
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, http.MethodPut, h.backend.LastRequest().Method)
	got, _ := h.backend.Scene(scene.ID)
	assert.True(t, got.Active)

	_, _, code = h.exec("scenes", "off", id)
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "/cenas/"+id+"/desligar", h.backend.LastRequest().Path)
	got, _ = h.backend.Scene(scene.ID)
	assert.False(t, got.Active)
}

func TestSceneActionCreateAndRun(t *testing.T) {
	h := newHarness(t)
	room := h.backend.SeedRoom("Sala")
	lamp := h.backend.SeedDevice("Lamp", room.ID, false)
	scene := h.backend.SeedScene("Evening", "")

	stdout, stderr, code := h.exec("actions", "create", "--json",
		"--name", "Lights up",
		"--scene", fmt.Sprint(scene.ID),
		"--device", fmt.Sprint(lamp.ID),
		"--on",
	)
	require.Equal(t, exitSuccess, code, stderr)

	var created struct {
		OK     bool            `json:"ok"`
		Result api.SceneAction `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &created))
	require.True(t, created.OK)
	assert.Equal(t, scene.ID, created.Result.Scene.ID)

	id := fmt.Sprint(created.Result.ID)
	_, _, code = h.exec("actions", "run", id)
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, http.MethodPut, h.backend.LastRequest().Method)
	assert.Equal(t, "/acaocenas/"+id+"/executar", h.backend.LastRequest().Path)

	got, _ := h.backend.Device(lamp.ID)
	assert.True(t, got.On)
}

func TestHistorySinceFiltersLedger(t *testing.T) {
	h := newHarness(t)

	database, err := db.Open(h.db)
	require.NoError(t, err)
	l := ledger.New(database.DB)
	require.NoError(t, l.Append(&ledger.Entry{Action: "on", Resource: "devices", Target: "1", Timestamp: time.Now().Add(-3 * time.Hour)}))
	require.NoError(t, l.Append(&ledger.Entry{Action: "off", Resource: "devices", Target: "1"}))
	require.NoError(t, database.Close())

	stdout, _, code := h.exec("history", "--since", "1h", "--json")
	require.Equal(t, exitSuccess, code)

	var out struct {
		Local []ledger.Entry `json:"local"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Local, 1)
	assert.Equal(t, "off", out.Local[0].Action)
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "plain", describeError(fmt.Errorf("plain")))
}
