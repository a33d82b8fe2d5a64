// Package tables turns resource lists into rows for the CLI and the watch TUI.
package tables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/ledger"
)

// TimeLayout is how timestamps are shown
const TimeLayout = "2006-01-02 15:04:05"

// Table is a header plus string rows
type Table struct {
	Headers []string
	Rows    [][]string
}

// Empty reports whether there are no rows
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Lookup resolves ids shown in other resources' rows
type Lookup struct {
	Rooms  []api.Room
	Scenes []api.Scene
}

func (l Lookup) roomName(id int64) string {
	if room, ok := lo.Find(l.Rooms, func(r api.Room) bool { return r.ID == id }); ok {
		return room.Name
	}
	return id64(id)
}

func (l Lookup) sceneName(ref api.SceneRef) string {
	if scene, ok := lo.Find(l.Scenes, func(s api.Scene) bool { return s.ID == ref.ID }); ok {
		return scene.Name
	}
	return id64(ref.ID)
}

// For builds the table for a resource list. ok is false for unknown data.
func For(data any, lookup Lookup) (Table, bool) {
	switch items := data.(type) {
	case []api.Room:
		return Rooms(items), true
	case []api.Device:
		return Devices(items, lookup), true
	case []api.Group:
		return Groups(items), true
	case []api.Scene:
		return Scenes(items), true
	case []api.SceneAction:
		return SceneActions(items, lookup), true
	case []api.HistoryEntry:
		return History(items), true
	default:
		return Table{}, false
	}
}

func Rooms(rooms []api.Room) Table {
	return Table{
		Headers: []string{"ID", "NAME"},
		Rows: lo.Map(rooms, func(r api.Room, _ int) []string {
			return []string{id64(r.ID), r.Name}
		}),
	}
}

func Devices(devices []api.Device, lookup Lookup) Table {
	return Table{
		Headers: []string{"ID", "NAME", "STATE", "ROOM"},
		Rows: lo.Map(devices, func(d api.Device, _ int) []string {
			return []string{id64(d.ID), d.Name, OnOff(d.On), lookup.roomName(d.RoomID)}
		}),
	}
}

func Groups(groups []api.Group) Table {
	return Table{
		Headers: []string{"ID", "NAME", "DEVICES"},
		Rows: lo.Map(groups, func(g api.Group, _ int) []string {
			return []string{id64(g.ID), g.Name, deviceNames(g.Devices)}
		}),
	}
}

func Scenes(scenes []api.Scene) Table {
	return Table{
		Headers: []string{"ID", "NAME", "ACTIVE", "DESCRIPTION"},
		Rows: lo.Map(scenes, func(s api.Scene, _ int) []string {
			return []string{id64(s.ID), s.Name, yesNo(s.Active), s.Description}
		}),
	}
}

func SceneActions(actions []api.SceneAction, lookup Lookup) Table {
	return Table{
		Headers: []string{"ID", "NAME", "SCENE", "ORDER", "INTERVAL", "SETS", "DEVICES", "GROUPS"},
		Rows: lo.Map(actions, func(a api.SceneAction, _ int) []string {
			return []string{
				id64(a.ID),
				a.Name,
				lookup.sceneName(a.Scene),
				strconv.Itoa(a.Order),
				fmt.Sprintf("%ds", a.IntervalSeconds),
				OnOff(a.DesiredState),
				deviceNames(a.Devices),
				strings.Join(lo.Map(a.Groups, func(g api.GroupRef, _ int) string { return id64(g.ID) }), ", "),
			}
		}),
	}
}

func History(entries []api.HistoryEntry) Table {
	return Table{
		Headers: []string{"ID", "ACTION", "TARGET", "RESULT", "TIME"},
		Rows: lo.Map(entries, func(h api.HistoryEntry, _ int) []string {
			ts := ""
			if !h.Timestamp.IsZero() {
				ts = h.Timestamp.Local().Format(TimeLayout)
			}
			return []string{id64(h.ID), h.Action, h.Target, h.Result, ts}
		}),
	}
}

// Ledger lists locally recorded actions
func Ledger(entries []*ledger.Entry) Table {
	return Table{
		Headers: []string{"ID", "ACTION", "RESOURCE", "TARGET", "RESULT", "STATUS", "SOURCE", "TIME"},
		Rows: lo.Map(entries, func(e *ledger.Entry, _ int) []string {
			status := ""
			if e.Status > 0 {
				status = strconv.Itoa(e.Status)
			}
			return []string{
				id64(e.ID),
				e.Action,
				e.Resource,
				e.Target,
				string(e.Result),
				status,
				e.Source,
				e.Timestamp.Local().Format(TimeLayout),
			}
		}),
	}
}

// Render draws the table with a rounded border. Header styling is skipped when plain.
func Render(t Table, plain bool) string {
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(t.Headers...).
		Rows(t.Rows...)
	if !plain {
		header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
		cell := lipgloss.NewStyle().Padding(0, 1)
		tbl = tbl.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	}
	return tbl.String()
}

// OnOff renders a power state
func OnOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func deviceNames(refs []api.DeviceRef) string {
	return strings.Join(lo.Map(refs, func(d api.DeviceRef, _ int) string {
		if d.Name != "" {
			return d.Name
		}
		return id64(d.ID)
	}), ", ")
}

func id64(id int64) string {
	return strconv.FormatInt(id, 10)
}
