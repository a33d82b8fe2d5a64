// Package apitest provides an in-memory home-automation backend for tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/backend"
)

// Request is one call the fake backend received
type Request struct {
	Method    string
	Path      string
	Body      string
	RequestID string
}

type failure struct {
	status int
	body   string
}

// Server is a fake backend speaking the same wire format as the real one.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	rooms    []api.Room
	devices  []api.Device
	groups   []api.Group
	scenes   []api.Scene
	actions  []api.SceneAction
	history  []api.HistoryEntry
	requests []Request
	failures []failure
	delay    time.Duration
}

// NewServer starts a fake backend; it is closed with t.Cleanup by callers or Close.
func NewServer() *Server {
	s := &Server{nextID: 1}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /comodos", s.handleList(func() any { return s.rooms }))
	mux.HandleFunc("POST /comodos", s.handleCreateRoom)
	mux.HandleFunc("PUT /comodos/{id}", s.handleUpdateRoom)
	mux.HandleFunc("DELETE /comodos/{id}", s.handleDelete(func(id int64) bool { return remove(&s.rooms, func(r api.Room) bool { return r.ID == id }) }))

	mux.HandleFunc("GET /dispositivos", s.handleList(func() any { return s.devices }))
	mux.HandleFunc("POST /dispositivos", s.handleCreateDevice)
	mux.HandleFunc("PUT /dispositivos/{id}", s.handleUpdateDevice)
	mux.HandleFunc("DELETE /dispositivos/{id}", s.handleDelete(func(id int64) bool { return remove(&s.devices, func(d api.Device) bool { return d.ID == id }) }))
	mux.HandleFunc("PUT /dispositivos/{id}/ligar", s.handleDevicePower(true))
	mux.HandleFunc("PUT /dispositivos/{id}/desligar", s.handleDevicePower(false))

	mux.HandleFunc("GET /grupos", s.handleList(func() any { return s.groups }))
	mux.HandleFunc("POST /grupos", s.handleCreateGroup)
	mux.HandleFunc("PUT /grupos/{id}", s.handleUpdateGroup)
	mux.HandleFunc("DELETE /grupos/{id}", s.handleDelete(func(id int64) bool { return remove(&s.groups, func(g api.Group) bool { return g.ID == id }) }))
	mux.HandleFunc("POST /grupos/{id}/ligar", s.handleGroupPower(true))
	mux.HandleFunc("POST /grupos/{id}/desligar", s.handleGroupPower(false))

	mux.HandleFunc("GET /cenas", s.handleList(func() any { return s.scenes }))
	mux.HandleFunc("POST /cenas", s.handleCreateScene)
	mux.HandleFunc("PUT /cenas/{id}", s.handleUpdateScene)
	mux.HandleFunc("DELETE /cenas/{id}", s.handleDelete(func(id int64) bool { return remove(&s.scenes, func(c api.Scene) bool { return c.ID == id }) }))
	mux.HandleFunc("PUT /cenas/{id}/ligar", s.handleScenePower(true))
	mux.HandleFunc("PUT /cenas/{id}/desligar", s.handleScenePower(false))

	mux.HandleFunc("GET /acaocenas", s.handleList(func() any { return s.actions }))
	mux.HandleFunc("POST /acaocenas", s.handleCreateAction)
	mux.HandleFunc("PUT /acaocenas/{id}", s.handleUpdateAction)
	mux.HandleFunc("DELETE /acaocenas/{id}", s.handleDelete(func(id int64) bool { return remove(&s.actions, func(a api.SceneAction) bool { return a.ID == id }) }))
	mux.HandleFunc("PUT /acaocenas/{id}/executar", s.handleExecuteAction)

	mux.HandleFunc("GET /history", s.handleList(func() any { return s.history }))

	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// SeedRoom adds a room directly and returns it
func (s *Server) SeedRoom(name string) api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := api.Room{ID: s.id(), Name: name}
	s.rooms = append(s.rooms, r)
	return r
}

// SeedDevice adds a device directly and returns it
func (s *Server) SeedDevice(name string, roomID int64, on bool) api.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := api.Device{ID: s.id(), Name: name, RoomID: roomID, On: on}
	s.devices = append(s.devices, d)
	return d
}

// SeedGroup adds a group directly and returns it
func (s *Server) SeedGroup(name string, deviceIDs ...int64) api.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := api.Group{ID: s.id(), Name: name, Devices: s.refs(deviceIDs)}
	s.groups = append(s.groups, g)
	return g
}

// SeedScene adds a scene directly and returns it
func (s *Server) SeedScene(name, description string) api.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := api.Scene{ID: s.id(), Name: name, Description: description}
	s.scenes = append(s.scenes, c)
	return c
}

// Device returns the current state of a device
func (s *Server) Device(id int64) (api.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, true
		}
	}
	return api.Device{}, false
}

// Scene returns the current state of a scene
func (s *Server) Scene(id int64) (api.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.scenes {
		if c.ID == id {
			return c, true
		}
	}
	return api.Scene{}, false
}

// FailNext makes the next request answer with status and body
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, body: body})
}

// SetDelay slows every response down
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns every request received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      string(body),
			RequestID: r.Header.Get(backend.RequestIDHeader),
		})
		delay := s.delay
		var fail *failure
		if len(s.failures) > 0 {
			fail = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if fail != nil {
			http.Error(w, fail.body, fail.status)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) refs(ids []int64) []api.DeviceRef {
	refs := make([]api.DeviceRef, 0, len(ids))
	for _, id := range ids {
		ref := api.DeviceRef{ID: id}
		for _, d := range s.devices {
			if d.ID == id {
				ref.Name = d.Name
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

// record appends a history entry; callers hold s.mu
func (s *Server) record(action, target string) {
	s.history = append(s.history, api.HistoryEntry{
		ID:        s.id(),
		Action:    action,
		Target:    target,
		Result:    "sucesso",
		Timestamp: api.Timestamp{Time: time.Now().Truncate(time.Second)},
	})
}

func (s *Server) handleList(get func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, get())
	}
}

func (s *Server) handleDelete(del func(id int64) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !del(id) {
			http.Error(w, "recurso nao encontrado", http.StatusNotFound)
			return
		}
		s.record("excluir", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

type roomBody struct {
	Name string `json:"nome"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in roomBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room := api.Room{ID: s.id(), Name: in.Name}
	s.rooms = append(s.rooms, room)
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in roomBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID == id {
			s.rooms[i].Name = in.Name
			writeJSON(w, http.StatusOK, s.rooms[i])
			return
		}
	}
	http.Error(w, "comodo nao encontrado", http.StatusNotFound)
}

type deviceBody struct {
	Name   string `json:"nome"`
	On     bool   `json:"estado"`
	RoomID int64  `json:"idComodo"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var in deviceBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := api.Device{ID: s.id(), Name: in.Name, On: in.On, RoomID: in.RoomID}
	s.devices = append(s.devices, d)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in deviceBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices[i].Name, s.devices[i].On, s.devices[i].RoomID = in.Name, in.On, in.RoomID
			writeJSON(w, http.StatusOK, s.devices[i])
			return
		}
	}
	http.Error(w, "dispositivo nao encontrado", http.StatusNotFound)
}

func (s *Server) handleDevicePower(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.setDevice(id, on) {
			http.Error(w, "dispositivo nao encontrado", http.StatusNotFound)
			return
		}
		s.record(powerVerb(on), r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

// setDevice changes one device; callers hold s.mu
func (s *Server) setDevice(id int64, on bool) bool {
	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices[i].On = on
			return true
		}
	}
	return false
}

type groupBody struct {
	Name    string          `json:"nome"`
	Devices []api.DeviceRef `json:"dispositivos"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in groupBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := api.Group{ID: s.id(), Name: in.Name, Devices: s.refs(refIDs(in.Devices))}
	s.groups = append(s.groups, g)
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in groupBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups[i].Name = in.Name
			s.groups[i].Devices = s.refs(refIDs(in.Devices))
			writeJSON(w, http.StatusOK, s.groups[i])
			return
		}
	}
	http.Error(w, "grupo nao encontrado", http.StatusNotFound)
}

func (s *Server) handleGroupPower(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.setGroup(id, on) {
			http.Error(w, "grupo nao encontrado", http.StatusNotFound)
			return
		}
		s.record(powerVerb(on), r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

// setGroup changes every member device; callers hold s.mu
func (s *Server) setGroup(id int64, on bool) bool {
	for _, g := range s.groups {
		if g.ID == id {
			for _, ref := range g.Devices {
				s.setDevice(ref.ID, on)
			}
			return true
		}
	}
	return false
}

type sceneBody struct {
	Name        string `json:"nome"`
	Description string `json:"descricao"`
}

func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var in sceneBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := api.Scene{ID: s.id(), Name: in.Name, Description: in.Description}
	s.scenes = append(s.scenes, c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in sceneBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scenes {
		if s.scenes[i].ID == id {
			s.scenes[i].Name, s.scenes[i].Description = in.Name, in.Description
			writeJSON(w, http.StatusOK, s.scenes[i])
			return
		}
	}
	http.Error(w, "cena nao encontrada", http.StatusNotFound)
}

func (s *Server) handleScenePower(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.scenes {
			if s.scenes[i].ID == id {
				s.scenes[i].Active = on
				s.record(powerVerb(on), r.URL.Path)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, "cena nao encontrada", http.StatusNotFound)
	}
}

type actionBody struct {
	Name            string          `json:"nome"`
	Order           int             `json:"ordem"`
	IntervalSeconds int             `json:"intervaloSegundos"`
	DesiredState    bool            `json:"estadoDesejado"`
	Scene           api.SceneRef    `json:"cena"`
	Devices         []api.DeviceRef `json:"dispositivos"`
	Groups          []api.GroupRef  `json:"grupos"`
}

func (b actionBody) action(id int64) api.SceneAction {
	return api.SceneAction{
		ID:              id,
		Name:            b.Name,
		Order:           b.Order,
		IntervalSeconds: b.IntervalSeconds,
		DesiredState:    b.DesiredState,
		Scene:           b.Scene,
		Devices:         b.Devices,
		Groups:          b.Groups,
	}
}

func (s *Server) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var in actionBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := in.action(s.id())
	s.actions = append(s.actions, a)
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in actionBody
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.actions {
		if s.actions[i].ID == id {
			s.actions[i] = in.action(id)
			writeJSON(w, http.StatusOK, s.actions[i])
			return
		}
	}
	http.Error(w, "acao nao encontrada", http.StatusNotFound)
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.ID == id {
			for _, d := range a.Devices {
				s.setDevice(d.ID, a.DesiredState)
			}
			for _, g := range a.Groups {
				s.setGroup(g.ID, a.DesiredState)
			}
			s.record("executar", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, "acao nao encontrada", http.StatusNotFound)
}

func powerVerb(on bool) string {
	if on {
		return "ligar"
	}
	return "desligar"
}

func refIDs(refs []api.DeviceRef) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

func remove[T any](items *[]T, match func(T) bool) bool {
	for i, item := range *items {
		if match(item) {
			*items = append((*items)[:i], (*items)[i+1:]...)
			return true
		}
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "id invalido", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "json invalido", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
