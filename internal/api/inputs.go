package api

import (
	"strings"

	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/backend"
)

// RoomInput is the editable part of a Room
type RoomInput struct {
	Name string
}

// Validate checks required fields
func (in RoomInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return backend.NewValidationError("room name is required")
	}
	return nil
}

func (in RoomInput) body() any {
	return struct {
		Name string `json:"nome"`
	}{in.Name}
}

// DeviceInput is the editable part of a Device
type DeviceInput struct {
	Name   string
	On     bool
	RoomID int64
}

// Validate checks required fields
func (in DeviceInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return backend.NewValidationError("device name is required")
	}
	if in.RoomID <= 0 {
		return backend.NewValidationError("select a room for the device")
	}
	return nil
}

func (in DeviceInput) body() any {
	return struct {
		Name   string `json:"nome"`
		On     bool   `json:"estado"`
		RoomID int64  `json:"idComodo"`
	}{in.Name, in.On, in.RoomID}
}

// GroupInput is the editable part of a Group
type GroupInput struct {
	Name      string
	DeviceIDs []int64
}

// Validate checks required fields
func (in GroupInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return backend.NewValidationError("group name is required")
	}
	if len(in.DeviceIDs) == 0 {
		return backend.NewValidationError("select at least one device")
	}
	return nil
}

func (in GroupInput) body() any {
	return struct {
		Name    string      `json:"nome"`
		Devices []DeviceRef `json:"dispositivos"`
	}{in.Name, deviceRefs(in.DeviceIDs)}
}

// SceneInput is the editable part of a Scene
type SceneInput struct {
	Name        string
	Description string
}

// Validate checks required fields
func (in SceneInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return backend.NewValidationError("scene name is required")
	}
	return nil
}

func (in SceneInput) body() any {
	return struct {
		Name        string `json:"nome"`
		Description string `json:"descricao"`
	}{in.Name, in.Description}
}

// SceneActionInput is the editable part of a SceneAction
type SceneActionInput struct {
	Name            string
	Order           int
	IntervalSeconds int
	DesiredState    bool
	SceneID         int64
	DeviceIDs       []int64
	GroupIDs        []int64
}

// Validate checks required fields
func (in SceneActionInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return backend.NewValidationError("action name is required")
	}
	if in.SceneID <= 0 {
		return backend.NewValidationError("select a scene for the action")
	}
	if in.Order < 0 {
		return backend.NewValidationError("action order must not be negative")
	}
	if in.IntervalSeconds < 0 {
		return backend.NewValidationError("action interval must not be negative")
	}
	return nil
}

func (in SceneActionInput) body() any {
	return struct {
		Name            string      `json:"nome"`
		Order           int         `json:"ordem"`
		IntervalSeconds int         `json:"intervaloSegundos"`
		DesiredState    bool        `json:"estadoDesejado"`
		Scene           SceneRef    `json:"cena"`
		Devices         []DeviceRef `json:"dispositivos"`
		Groups          []GroupRef  `json:"grupos"`
	}{
		Name:            in.Name,
		Order:           in.Order,
		IntervalSeconds: in.IntervalSeconds,
		DesiredState:    in.DesiredState,
		Scene:           SceneRef{ID: in.SceneID},
		Devices:         deviceRefs(in.DeviceIDs),
		Groups:          lo.Map(in.GroupIDs, func(id int64, _ int) GroupRef { return GroupRef{ID: id} }),
	}
}

func deviceRefs(ids []int64) []DeviceRef {
	return lo.Map(ids, func(id int64, _ int) DeviceRef { return DeviceRef{ID: id} })
}
