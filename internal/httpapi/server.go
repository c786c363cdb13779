// v0
// server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/observability"
	"github.com/MaulikItaliya/phreg/internal/supervisor"
)

// Controller is the slice of the supervisor the dashboard needs.
type Controller interface {
	Snapshots() []supervisor.Snapshot
	Snapshot(reactor string) (supervisor.Snapshot, bool)
	Enqueue(reactor, field string, value float64, enable bool) (supervisor.Command, error)
	Ticks() uint64
}

// Server exposes the operator dashboard and command API.
type Server struct {
	cfg  *config.AppConfig
	lg   *slog.Logger
	ctrl Controller
	met  *observability.Metrics
	http *http.Server
}

// NewServer wires the router. Commands submitted here are only queued;
// they take effect at the supervisor's next tick boundary.
func NewServer(cfg *config.AppConfig, lg *slog.Logger, ctrl Controller, met *observability.Metrics) *Server {
	s := &Server{cfg: cfg, lg: lg.With("component", "httpapi"), ctrl: ctrl, met: met}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.getHealth).Methods("GET")
	r.HandleFunc("/status", s.getStatus).Methods("GET")
	r.HandleFunc("/reactors", s.getReactors).Methods("GET")
	r.HandleFunc("/reactors/{id}", s.getReactor).Methods("GET")
	r.HandleFunc("/reactors/{id}/setpoint", s.putSetpoint).Methods("PUT")
	r.HandleFunc("/reactors/{id}/baseline", s.putBaseline).Methods("PUT")
	r.HandleFunc("/reactors/{id}/enabled", s.putEnabled).Methods("PUT")
	r.Handle("/metrics", met.Handler()).Methods("GET")

	var h http.Handler = r
	h = s.logging(h)
	h = handlers.RecoveryHandler()(h)
	h = handlers.CORS(handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "PUT"}))(h)

	s.http = &http.Server{
		Addr:    cfg.HTTPBind,
		Handler: h,
	}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.lg.Info("http server starting", "bind", s.cfg.HTTPBind)
	return s.http.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.lg.Info("http server stopping")
	return s.http.Shutdown(ctx)
}

// Handler exposes the wired handler chain for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticks":    s.ctrl.Ticks(),
		"reactors": s.ctrl.Snapshots(),
	})
}

func (s *Server) getReactors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshots())
}

func (s *Server) getReactor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.ctrl.Snapshot(id)
	if !ok {
		http.Error(w, "unknown reactorId", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) putSetpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Setpoint float64 `json:"setpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, supervisor.FieldSetpoint, body.Setpoint, false)
}

func (s *Server) putBaseline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Baseline float64 `json:"baseline"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, supervisor.FieldBaseline, body.Baseline, false)
}

func (s *Server) putEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, supervisor.FieldEnabled, 0, body.Enabled)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, field string, value float64, enable bool) {
	id := mux.Vars(r)["id"]
	cmd, err := s.ctrl.Enqueue(id, field, value, enable)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"commandId": cmd.ID, "appliesAt": "next tick"})
	case errors.Is(err, supervisor.ErrUnknownReactor):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.met.HTTPRequest(r.URL.Path, rec.status)
		s.lg.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start).String())
	})
}
