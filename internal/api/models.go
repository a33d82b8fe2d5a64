package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Room is a physical room devices belong to
type Room struct {
	ID   int64  `json:"idComodo"`
	Name string `json:"nome"`
}

// Device is a switchable device located in one room
type Device struct {
	ID     int64  `json:"idDispositivo"`
	Name   string `json:"nome"`
	On     bool   `json:"estado"`
	RoomID int64  `json:"idComodo"`
}

// DeviceRef references a device inside another resource
type DeviceRef struct {
	ID   int64  `json:"idDispositivo"`
	Name string `json:"nome,omitempty"`
}

// GroupRef references a group inside another resource
type GroupRef struct {
	ID   int64  `json:"idGrupo"`
	Name string `json:"nome,omitempty"`
}

// SceneRef references a scene inside another resource
type SceneRef struct {
	ID   int64  `json:"idCena"`
	Name string `json:"nome,omitempty"`
}

// Group is a named collection of devices controlled as one unit
type Group struct {
	ID      int64       `json:"idGrupo"`
	Name    string      `json:"nome"`
	Devices []DeviceRef `json:"dispositivos"`
}

// DeviceIDs returns the ids of the group members
func (g Group) DeviceIDs() []int64 {
	return lo.Map(g.Devices, func(d DeviceRef, _ int) int64 { return d.ID })
}

// Scene is a user-defined automation unit
type Scene struct {
	ID          int64  `json:"idCena"`
	Name        string `json:"nome"`
	Description string `json:"descricao"`
	Active      bool   `json:"ativa"`
}

// SceneAction is one step of a scene: a desired power state applied to devices and groups
type SceneAction struct {
	ID              int64       `json:"idAcao"`
	Name            string      `json:"nome"`
	Order           int         `json:"ordem"`
	IntervalSeconds int         `json:"intervaloSegundos"`
	DesiredState    bool        `json:"estadoDesejado"`
	Scene           SceneRef    `json:"cena"`
	Devices         []DeviceRef `json:"dispositivos"`
	Groups          []GroupRef  `json:"grupos"`
}

// HistoryEntry is one backend-recorded execution
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"acao"`
	Target    string    `json:"alvo"`
	Result    string    `json:"resultado"`
	Timestamp Timestamp `json:"dataHora"`
}

// Timestamp accepts RFC 3339 as well as zone-less local date-times
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}
