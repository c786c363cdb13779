// v0
// server_test.go
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/observability"
	"github.com/MaulikItaliya/phreg/internal/supervisor"
)

type fakeCtrl struct {
	snaps      map[string]supervisor.Snapshot
	enqueueErr error

	gotReactor string
	gotField   string
	gotValue   float64
	gotEnable  bool
}

func (f *fakeCtrl) Snapshots() []supervisor.Snapshot {
	out := make([]supervisor.Snapshot, 0, len(f.snaps))
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out
}

func (f *fakeCtrl) Snapshot(reactor string) (supervisor.Snapshot, bool) {
	s, ok := f.snaps[reactor]
	return s, ok
}

func (f *fakeCtrl) Enqueue(reactor, field string, value float64, enable bool) (supervisor.Command, error) {
	f.gotReactor, f.gotField, f.gotValue, f.gotEnable = reactor, field, value, enable
	if f.enqueueErr != nil {
		return supervisor.Command{}, f.enqueueErr
	}
	return supervisor.Command{ID: "cmd-1", Reactor: reactor, Field: field}, nil
}

func (f *fakeCtrl) Ticks() uint64 { return 42 }

func newTestServer(ctrl *fakeCtrl) *Server {
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.AppConfig{HTTPBind: ":0"}
	return NewServer(cfg, lg, ctrl, observability.NewMetrics())
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeCtrl{})
	rec := do(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestStatusIncludesTicks(t *testing.T) {
	srv := newTestServer(&fakeCtrl{snaps: map[string]supervisor.Snapshot{
		"R1": {Reactor: "R1", State: "RUN"},
	}})
	rec := do(t, srv, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var body struct {
		Ticks    uint64                `json:"ticks"`
		Reactors []supervisor.Snapshot `json:"reactors"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Ticks != 42 || len(body.Reactors) != 1 {
		t.Fatalf("got %+v", body)
	}
}

func TestGetReactor(t *testing.T) {
	srv := newTestServer(&fakeCtrl{snaps: map[string]supervisor.Snapshot{
		"R1": {Reactor: "R1", State: "DEGRADED"},
	}})

	t.Run("known", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/reactors/R1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d", rec.Code)
		}
		var snap supervisor.Snapshot
		if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if snap.State != "DEGRADED" {
			t.Fatalf("got %+v", snap)
		}
	})
	t.Run("unknown", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/reactors/R9", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("got %d", rec.Code)
		}
	})
}

func TestPutSetpointAccepted(t *testing.T) {
	ctrl := &fakeCtrl{}
	srv := newTestServer(ctrl)
	rec := do(t, srv, http.MethodPut, "/reactors/R1/setpoint", `{"setpoint":7.1}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["commandId"] != "cmd-1" {
		t.Fatalf("got %+v", body)
	}
	if ctrl.gotReactor != "R1" || ctrl.gotField != supervisor.FieldSetpoint || ctrl.gotValue != 7.1 {
		t.Fatalf("enqueue call: %+v", ctrl)
	}
}

func TestPutEnabledPassesFlag(t *testing.T) {
	ctrl := &fakeCtrl{}
	srv := newTestServer(ctrl)
	rec := do(t, srv, http.MethodPut, "/reactors/R2/enabled", `{"enabled":false}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("got %d", rec.Code)
	}
	if ctrl.gotField != supervisor.FieldEnabled || ctrl.gotEnable {
		t.Fatalf("enqueue call: %+v", ctrl)
	}
}

func TestPutErrorMapping(t *testing.T) {
	t.Run("unknown reactor is 404", func(t *testing.T) {
		srv := newTestServer(&fakeCtrl{enqueueErr: supervisor.ErrUnknownReactor})
		rec := do(t, srv, http.MethodPut, "/reactors/R9/setpoint", `{"setpoint":7.1}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("out of range is 400", func(t *testing.T) {
		srv := newTestServer(&fakeCtrl{enqueueErr: supervisor.ErrOutOfRange})
		rec := do(t, srv, http.MethodPut, "/reactors/R1/setpoint", `{"setpoint":3.0}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got %d", rec.Code)
		}
	})
	t.Run("malformed json is 400", func(t *testing.T) {
		srv := newTestServer(&fakeCtrl{})
		rec := do(t, srv, http.MethodPut, "/reactors/R1/setpoint", `{`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("got %d", rec.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeCtrl{})
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "phreg_ticks_total") {
		t.Fatalf("metrics output missing counters")
	}
}
