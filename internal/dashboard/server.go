// Package dashboard serves the panel state over HTTP and a websocket stream.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/homepanel/internal/api"
	"github.com/dokzlo13/homepanel/internal/backend"
	"github.com/dokzlo13/homepanel/internal/control"
	"github.com/dokzlo13/homepanel/internal/eventbus"
	"github.com/dokzlo13/homepanel/internal/poller"
)

// Server exposes poller state and panel actions.
type Server struct {
	addr    string
	api     *api.API
	ctrl    *control.Controller
	sources []poller.Source
	hub     *hub
	latest  poller.Latest

	httpServer *http.Server
}

// NewServer creates a dashboard server listening on addr. Sources are served in the given order.
func NewServer(addr string, a *api.API, ctrl *control.Controller, sources []poller.Source) *Server {
	return &Server{
		addr:    addr,
		api:     a,
		ctrl:    ctrl,
		sources: sources,
		hub:     newHub(),
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/state/{resource}", s.handleResourceState)
	mux.HandleFunc("POST /api/state/{resource}/refetch", s.handleRefetch)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	mux.HandleFunc("POST /api/devices/{id}/{power}", s.handlePower(control.SetDevicePower))
	mux.HandleFunc("POST /api/groups/{id}/{power}", s.handlePower(control.SetGroupPower))
	mux.HandleFunc("POST /api/scenes/{id}/{power}", s.handlePower(control.SetScenePower))
	mux.HandleFunc("POST /api/scene-actions/{id}/execute", s.handleExecute)

	mux.HandleFunc("GET /ws", s.handleWebsocket)

	return mux
}

// HandleEvent forwards bus events to websocket clients. Snapshots older than one
// already sent for the same resource are dropped.
func (s *Server) HandleEvent(event eventbus.Event) {
	msg := streamMessage{
		Type:     string(event.Type),
		Resource: event.Resource,
		Data:     event.Data,
		Time:     event.Time,
	}
	view, ok := event.Data.(poller.View)
	if !ok {
		s.hub.broadcast(msg)
		return
	}
	s.latest.Apply(view, func(poller.View) { s.hub.broadcast(msg) })
}

// Run starts the dashboard server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting dashboard server")

	go func() {
		<-ctx.Done()
		s.hub.closeAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Dashboard server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	pending := lo.FilterMap(s.sources, func(src poller.Source, _ int) (string, bool) {
		return src.Name(), !src.View().Resolved()
	})
	if len(pending) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "waiting", "pending": pending})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) views() map[string]poller.View {
	views := make(map[string]poller.View, len(s.sources))
	for _, src := range s.sources {
		views[src.Name()] = src.View()
	}
	return views
}

func (s *Server) source(name string) (poller.Source, bool) {
	res, err := api.ParseResource(name)
	if err != nil {
		return nil, false
	}
	return lo.Find(s.sources, func(src poller.Source) bool {
		return src.Name() == string(res)
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views())
}

func (s *Server) handleResourceState(w http.ResponseWriter, r *http.Request) {
	src, ok := s.source(r.PathValue("resource"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, src.View())
}

func (s *Server) handleRefetch(w http.ResponseWriter, r *http.Request) {
	src, ok := s.source(r.PathValue("resource"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "unknown resource")
		return
	}
	src.Refetch()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refetching", "resource": src.Name()})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildSummary(s.views(), 5))
}

func (s *Server) handlePower(build func(*api.API, int64, bool) control.Mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var on bool
		switch r.PathValue("power") {
		case "on":
			on = true
		case "off":
		default:
			writeMessage(w, http.StatusNotFound, "power must be on or off")
			return
		}
		s.apply(w, r, build(s.api, id, on))
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.apply(w, r, control.ExecuteSceneAction(s.api, id))
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request, m control.Mutation) {
	out, err := s.ctrl.Apply(r.Context(), m)
	if err != nil {
		writeJSON(w, errorStatus(err), out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// errorStatus maps a mutation failure onto the dashboard response status
func errorStatus(err error) int {
	apiErr, ok := backend.AsError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch apiErr.Kind {
	case backend.KindValidation:
		return http.StatusBadRequest
	case backend.KindStatus:
		return apiErr.Status
	default:
		return http.StatusBadGateway
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write dashboard response")
	}
}
