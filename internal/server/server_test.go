package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/apron/internal/clock"
	"github.com/me/apron/internal/config"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/internal/store"
	"github.com/me/apron/pkg/model"
)

type testEnv struct {
	srv   *Server
	sched *scheduler.Scheduler
	clock *clock.Manual
	store store.Store
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := config.Default()
	cfg.Runways = []string{"A1", "B2"}
	cfg.Gates = []string{"G1"}
	runways, gates, err := cfg.Pools()
	if err != nil {
		t.Fatalf("Pools: %v", err)
	}
	sc, err := cfg.Scheduler()
	if err != nil {
		t.Fatalf("Scheduler config: %v", err)
	}

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.NewManual(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	sched := scheduler.New(runways, gates, sc, logger, scheduler.WithClock(clk), scheduler.WithJournal(st))
	t.Cleanup(func() { sched.Close() })

	return &testEnv{
		srv:   New(cfg, sched, logger, WithStore(st)),
		sched: sched,
		clock: clk,
		store: st,
	}
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v, body=%s", method, path, err, w.Body.String())
	}
	return w.Code, env
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	code, env := do(t, srv, "GET", path, "")
	if code != http.StatusOK {
		t.Fatalf("GET %s: status=%d, want 200, error=%v", path, code, env.Error)
	}
	return env
}

func admit(t *testing.T, srv *Server, body string) {
	t.Helper()
	code, env := do(t, srv, "POST", "/api/v1/queue", body)
	if code != http.StatusCreated {
		t.Fatalf("admit %s: status=%d, error=%v", body, code, env.Error)
	}
}

func TestDiscovery(t *testing.T) {
	te := testServer(t)
	env := doGet(t, te.srv, "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "apron API" {
		t.Errorf("name = %q, want apron API", data.Name)
	}
	if len(data.Endpoints) < 8 {
		t.Errorf("endpoints count = %d, want >= 8", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"AI101","direction":"arrival","priority":2}`)
	env := doGet(t, te.srv, "/api/v1/health")

	var data struct {
		Status  string        `json:"status"`
		Version string        `json:"version"`
		Journal string        `json:"journal"`
		Summary model.Summary `json:"summary"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" {
		t.Errorf("health status = %q, want healthy", data.Status)
	}
	if data.Version != Version {
		t.Errorf("version = %q, want %s", data.Version, Version)
	}
	if data.Journal != "sqlite" {
		t.Errorf("journal = %q, want sqlite", data.Journal)
	}
	if data.Summary.Queued != 1 || data.Summary.RunwaysTotal != 2 || data.Summary.GatesFree != 1 {
		t.Errorf("summary = %+v", data.Summary)
	}
}

func TestRequestIDHeader(t *testing.T) {
	te := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	te.srv.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("X-Request-ID = %q, want req_ prefix", id)
	}
}

func TestRequestIDHeader_Propagated(t *testing.T) {
	te := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/queue", nil)
	req.Header.Set("X-Request-ID", "cli-7f3a")
	w := httptest.NewRecorder()
	te.srv.ServeHTTP(w, req)

	if id := w.Header().Get("X-Request-ID"); id != "cli-7f3a" {
		t.Errorf("X-Request-ID = %q, want cli-7f3a", id)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.RequestID != "cli-7f3a" {
		t.Errorf("request_id = %q, want cli-7f3a", env.RequestID)
	}

	req = httptest.NewRequest("GET", "/api/v1/queue", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 100))
	w = httptest.NewRecorder()
	te.srv.ServeHTTP(w, req)
	if id := w.Header().Get("X-Request-ID"); !strings.HasPrefix(id, "req_") {
		t.Errorf("oversized id not replaced: %q", id)
	}
}

func TestRequestLog_FlightID(t *testing.T) {
	te := testServer(t)
	var buf bytes.Buffer
	srv := New(config.Default(), te.sched, slog.New(slog.NewJSONHandler(&buf, nil)))
	admit(t, te.srv, `{"id":"AR1","direction":"arrival","priority":1}`)

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/queue", nil))
	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/flights/AR1", nil))

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if rec["msg"] == "request" {
			lines = append(lines, rec)
		}
	}
	if len(lines) != 2 {
		t.Fatalf("request lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	if _, ok := lines[0]["flight_id"]; ok {
		t.Errorf("queue request logged a flight_id: %v", lines[0])
	}
	if lines[1]["flight_id"] != "AR1" {
		t.Errorf("flight_id = %v, want AR1", lines[1]["flight_id"])
	}
	if route, _ := lines[1]["route"].(string); !strings.Contains(route, "{id}") {
		t.Errorf("route = %q, want the flight pattern", route)
	}
	if lines[1]["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", lines[1]["status"])
	}
}

func TestAdmitAndListQueue(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"A","direction":"arrival","priority":3}`)
	admit(t, te.srv, `{"id":"B","direction":"Departure","priority":1}`)
	admit(t, te.srv, `{"id":"C","direction":"arrival","priority":5,"emergency":true}`)

	env := doGet(t, te.srv, "/api/v1/queue?order=priority")
	var flights []model.Flight
	if err := json.Unmarshal(env.Data, &flights); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var ids []string
	for _, f := range flights {
		ids = append(ids, f.ID)
	}
	if got := strings.Join(ids, ","); got != "C,B,A" {
		t.Errorf("queue = %s, want C,B,A", got)
	}
	if flights[0].Priority != model.MinPriority {
		t.Errorf("emergency priority = %d, want %d", flights[0].Priority, model.MinPriority)
	}
}

func TestAdmit_Errors(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"A","direction":"arrival","priority":3}`)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   model.ErrorCode
	}{
		{"invalid json", "not json", http.StatusBadRequest, model.ErrValidation},
		{"missing id", `{"direction":"arrival","priority":1}`, http.StatusBadRequest, model.ErrValidation},
		{"bad direction", `{"id":"X","direction":"taxi","priority":1}`, http.StatusBadRequest, model.ErrValidation},
		{"zero priority", `{"id":"X","direction":"arrival"}`, http.StatusBadRequest, model.ErrValidation},
		{"duplicate", `{"id":"A","direction":"departure","priority":1}`, http.StatusConflict, model.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, te.srv, "POST", "/api/v1/queue", tt.body)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d", code, tt.wantStatus)
			}
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("error = %v, want %s", env.Error, tt.wantCode)
			}
		})
	}
}

func TestSchedule_EmptyQueue(t *testing.T) {
	te := testServer(t)
	code, env := do(t, te.srv, "POST", "/api/v1/schedule", "")
	if code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
	if env.Error == nil || env.Error.Code != model.ErrQueueEmpty {
		t.Errorf("error = %v, want QUEUE_EMPTY", env.Error)
	}
}

func TestSchedule_AutoAndManual(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"D1","direction":"departure","priority":1}`)
	admit(t, te.srv, `{"id":"D2","direction":"departure","priority":2}`)

	code, env := do(t, te.srv, "POST", "/api/v1/schedule", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, error=%v", code, env.Error)
	}
	var a scheduler.Assignment
	json.Unmarshal(env.Data, &a)
	if a.Flight.ID != "D1" || a.Unit.ID != "A1" {
		t.Errorf("assignment = %s on %s, want D1 on A1", a.Flight.ID, a.Unit.ID)
	}
	if a.Flight.Status != model.FlightStatusRunwayAssigned {
		t.Errorf("status = %s", a.Flight.Status)
	}

	// Runway 1 (A1) is held by D1.
	code, env = do(t, te.srv, "POST", "/api/v1/schedule", `{"runway":1}`)
	if code != http.StatusConflict || env.Error == nil || env.Error.Code != model.ErrUnitUnavailable {
		t.Fatalf("occupied pick: status=%d error=%v", code, env.Error)
	}

	code, env = do(t, te.srv, "POST", "/api/v1/schedule", `{"runway":9}`)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != model.ErrInvalidIndex {
		t.Fatalf("out of range pick: status=%d error=%v", code, env.Error)
	}

	// Both failures requeued D2.
	code, env = do(t, te.srv, "POST", "/api/v1/schedule", `{"runway":2}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, error=%v", code, env.Error)
	}
	json.Unmarshal(env.Data, &a)
	if a.Flight.ID != "D2" || a.Unit.ID != "B2" {
		t.Errorf("assignment = %s on %s, want D2 on B2", a.Flight.ID, a.Unit.ID)
	}

	var runways []model.UnitStatus
	json.Unmarshal(doGet(t, te.srv, "/api/v1/runways").Data, &runways)
	for _, u := range runways {
		if u.Available {
			t.Errorf("runway %s should be occupied", u.ID)
		}
	}

	te.clock.Advance(2 * time.Second)
	json.Unmarshal(doGet(t, te.srv, "/api/v1/runways").Data, &runways)
	for _, u := range runways {
		if !u.Available {
			t.Errorf("runway %s should be free after occupancy", u.ID)
		}
	}
}

func TestFlightsAndGate(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"AR1","direction":"arrival","priority":1}`)
	admit(t, te.srv, `{"id":"AR2","direction":"arrival","priority":2}`)

	do(t, te.srv, "POST", "/api/v1/schedule", "")
	do(t, te.srv, "POST", "/api/v1/schedule", "")

	var flights []model.Flight
	json.Unmarshal(doGet(t, te.srv, "/api/v1/flights").Data, &flights)
	if len(flights) != 2 {
		t.Fatalf("in flight = %d, want 2", len(flights))
	}

	// Both land; the single gate goes to AR1, AR2 waits.
	te.clock.Advance(2 * time.Second)

	var f model.Flight
	json.Unmarshal(doGet(t, te.srv, "/api/v1/flights/AR1").Data, &f)
	if f.Status != model.FlightStatusGateAssigned || f.Gate != "G1" {
		t.Errorf("AR1 = %s at %q, want gate_assigned at G1", f.Status, f.Gate)
	}
	json.Unmarshal(doGet(t, te.srv, "/api/v1/flights/AR2").Data, &f)
	if f.Status != model.FlightStatusLanded {
		t.Errorf("AR2 = %s, want landed", f.Status)
	}

	code, env := do(t, te.srv, "POST", "/api/v1/flights/AR2/gate", `{"gate":1}`)
	if code != http.StatusConflict || env.Error.Code != model.ErrUnitUnavailable {
		t.Fatalf("occupied gate: status=%d error=%v", code, env.Error)
	}

	te.clock.Advance(5 * time.Second)
	code, env = do(t, te.srv, "POST", "/api/v1/flights/AR2/gate", "")
	if code != http.StatusOK {
		t.Fatalf("assign gate: status=%d error=%v", code, env.Error)
	}
	var a scheduler.Assignment
	json.Unmarshal(env.Data, &a)
	if a.Unit.ID != "G1" || a.Flight.Status != model.FlightStatusGateAssigned {
		t.Errorf("assignment = %+v", a)
	}

	code, env = do(t, te.srv, "POST", "/api/v1/flights/AR2/gate", "")
	if code != http.StatusConflict || env.Error.Code != model.ErrConflict {
		t.Errorf("second gate: status=%d error=%v", code, env.Error)
	}
	code, env = do(t, te.srv, "POST", "/api/v1/flights/NOPE/gate", "")
	if code != http.StatusNotFound || env.Error.Code != model.ErrNotFound {
		t.Errorf("unknown flight: status=%d error=%v", code, env.Error)
	}
	code, _ = do(t, te.srv, "GET", "/api/v1/flights/NOPE", "")
	if code != http.StatusNotFound {
		t.Errorf("GET unknown flight: status=%d, want 404", code)
	}
}

func TestListMovements(t *testing.T) {
	te := testServer(t)
	admit(t, te.srv, `{"id":"D1","direction":"departure","priority":1}`)
	admit(t, te.srv, `{"id":"D2","direction":"departure","priority":2}`)
	do(t, te.srv, "POST", "/api/v1/schedule", "")
	te.clock.Advance(2 * time.Second)

	env := doGet(t, te.srv, "/api/v1/movements?flight_id=D1")
	if env.Pagination == nil {
		t.Fatal("expected pagination")
	}
	if env.Pagination.Total != 3 {
		t.Errorf("total = %d, want 3 (waiting, runway_assigned, departed)", env.Pagination.Total)
	}
	var moves []model.Movement
	json.Unmarshal(env.Data, &moves)
	if len(moves) != 3 || moves[0].Event != "departed" {
		t.Errorf("movements = %+v", moves)
	}

	env = doGet(t, te.srv, "/api/v1/movements?limit=1")
	if env.Pagination.Total != 4 || env.Pagination.Limit != 1 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}

	code, env := do(t, te.srv, "GET", "/api/v1/movements?limit=lots", "")
	if code != http.StatusBadRequest || env.Error.Code != model.ErrValidation {
		t.Errorf("bad limit: status=%d error=%v", code, env.Error)
	}
}

func TestListMovements_NoStore(t *testing.T) {
	te := testServer(t)
	srv := New(config.Default(), te.sched, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	env := doGet(t, srv, "/api/v1/movements")
	if env.Pagination == nil || env.Pagination.Total != 0 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}
