package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/apron/internal/clock"
	"github.com/me/apron/internal/config"
	"github.com/me/apron/internal/policy"
	"github.com/me/apron/internal/scheduler"
	"github.com/me/apron/internal/server"
	"github.com/me/apron/internal/store"
	"github.com/me/apron/pkg/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testScheduler builds a scheduler on a manual clock with an in-memory journal.
func testScheduler(t *testing.T, out *bytes.Buffer, runways, gates []string) (*scheduler.Scheduler, *clock.Manual, store.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Runways, cfg.Gates = runways, gates
	rp, gp, err := cfg.Pools()
	if err != nil {
		t.Fatalf("Pools: %v", err)
	}
	sc, err := cfg.Scheduler()
	if err != nil {
		t.Fatalf("Scheduler config: %v", err)
	}

	st, err := store.NewSQLiteStore(":memory:", quietLogger())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	var journal scheduler.Journal = st
	if out != nil {
		journal = &notifier{Journal: st, out: out}
	}
	clk := clock.NewManual(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	sched := scheduler.New(rp, gp, sc, quietLogger(), scheduler.WithClock(clk), scheduler.WithJournal(journal))
	t.Cleanup(func() { sched.Close() })
	return sched, clk, st
}

func admitAll(t *testing.T, sched *scheduler.Scheduler, flights ...*model.Flight) {
	t.Helper()
	for _, f := range flights {
		if err := sched.Admit(context.Background(), f); err != nil {
			t.Fatalf("Admit %s: %v", f.ID, err)
		}
	}
}

func runConsole(t *testing.T, sched *scheduler.Scheduler, out *bytes.Buffer, input string) {
	t.Helper()
	if err := NewConsole(sched, strings.NewReader(input), out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func assertContains(t *testing.T, output string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(output, w) {
			t.Errorf("expected %q in output, got:\n%s", w, output)
		}
	}
}

func TestConsole_MenuFlow(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1", "B2", "C3"}, []string{"G1"})
	admitAll(t, sched,
		model.NewFlight("A", model.DirectionArrival, 3, false),
		model.NewFlight("B", model.DirectionDeparture, 1, false),
		model.NewFlight("C", model.DirectionArrival, 5, true),
	)

	runConsole(t, sched, &out, "2\n1\n\n3\n5\n")
	output := out.String()

	assertContains(t, output,
		"Flight C - ARRIVAL, Priority: 0, Emergency: true",
		"Flight C (Emergency arrival) is ready to be scheduled.",
		"1. Runway A1 is available",
		"Flight C assigned to Runway A1",
		"Runway A1 is occupied",
		"Exiting...",
	)
	if strings.Index(output, "Flight C - ") > strings.Index(output, "Flight B - ") ||
		strings.Index(output, "Flight B - ") > strings.Index(output, "Flight A - ") {
		t.Errorf("queue not listed in scheduling order:\n%s", output)
	}
}

func TestConsole_InvalidInputAborts(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1"}, []string{"G1"})
	admitAll(t, sched, model.NewFlight("AI101", model.DirectionArrival, 2, false))

	runConsole(t, sched, &out, "1\nabc\nexit\n")
	assertContains(t, out.String(), "Invalid input. Scheduling aborted.")

	if q := sched.Reporter().Summary().Queued; q != 1 {
		t.Errorf("queued = %d, want 1", q)
	}
}

func TestConsole_FailedPicksRequeue(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1", "B2"}, []string{"G1"})
	admitAll(t, sched,
		model.NewFlight("D1", model.DirectionDeparture, 1, false),
		model.NewFlight("D2", model.DirectionDeparture, 2, false),
	)

	runConsole(t, sched, &out, "schedule-next 1\nschedule-next 1\nschedule-next 9\nschedule-next x\nexit\n")
	assertContains(t, out.String(),
		"Flight D1 assigned to Runway A1",
		"Could not assign a runway to flight D2: runway A1 is occupied by D1. Flight returned to the queue.",
		"Could not assign a runway to flight D2: invalid runway selection 9 (pool has 2). Flight returned to the queue.",
		`Invalid runway number "x".`,
	)
	if q := sched.Reporter().Summary().Queued; q != 1 {
		t.Errorf("queued = %d, want 1", q)
	}
}

func TestConsole_AllRunwaysBusy(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1"}, []string{"G1"})
	admitAll(t, sched,
		model.NewFlight("D1", model.DirectionDeparture, 1, false),
		model.NewFlight("D2", model.DirectionDeparture, 2, false),
	)

	runConsole(t, sched, &out, "schedule-next\nschedule-next\nexit\n")
	assertContains(t, out.String(),
		"Flight D1 assigned to Runway A1",
		"All runways are occupied. Flights stay in the queue.",
	)
	if q := sched.Reporter().Summary().Queued; q != 1 {
		t.Errorf("queued = %d, want 1", q)
	}
}

// lineReader hands out one line per Read and runs before[i] just before line i.
type lineReader struct {
	lines  []string
	before map[int]func()
	i      int
}

func (r *lineReader) Read(p []byte) (int, error) {
	if r.i >= len(r.lines) {
		return 0, io.EOF
	}
	if f := r.before[r.i]; f != nil {
		f()
	}
	n := copy(p, r.lines[r.i])
	r.i++
	return n, nil
}

func TestConsole_InteractiveReportsScheduledFlight(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1", "B2", "C3"}, []string{"G1"})
	admitAll(t, sched,
		model.NewFlight("A", model.DirectionArrival, 3, false),
		model.NewFlight("B", model.DirectionDeparture, 1, false),
		model.NewFlight("C", model.DirectionArrival, 5, true),
	)

	// Another dispatcher takes C while the operator is at the runway prompt.
	in := &lineReader{
		lines: []string{"1\n", "\n", "exit\n"},
		before: map[int]func(){1: func() {
			if _, err := sched.ScheduleNext(context.Background(), policy.Auto()); err != nil {
				t.Errorf("concurrent dispatch: %v", err)
			}
		}},
	}
	if err := NewConsole(sched, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	assertContains(t, out.String(),
		"Flight C (Emergency arrival) is ready to be scheduled.",
		"Flight B assigned to Runway B2",
		"Note: flight C was dispatched meanwhile; B took its place.",
	)
}

func TestConsole_EmptyQueue(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, &out, []string{"A1"}, []string{"G1"})

	runConsole(t, sched, &out, "schedule-next\n1\nexit\n")
	if n := strings.Count(out.String(), "No flights in the queue."); n != 2 {
		t.Errorf("empty queue reported %d times, want 2:\n%s", n, out.String())
	}
}

func TestConsole_ReleasesAndGates(t *testing.T) {
	var out bytes.Buffer
	sched, clk, st := testScheduler(t, &out, []string{"A1", "B2"}, []string{"G1"})
	admitAll(t, sched,
		model.NewFlight("AR1", model.DirectionArrival, 1, false),
		model.NewFlight("AR2", model.DirectionArrival, 2, false),
	)

	ctx := context.Background()
	c := NewConsole(sched, strings.NewReader(""), &out)
	c.Exec(ctx, "schedule-next")
	c.Exec(ctx, "schedule-next")

	clk.Advance(2 * time.Second)
	assertContains(t, out.String(),
		"Flight AR1 has landed. Runway A1 is now free.",
		"Flight AR2 has landed. Runway B2 is now free.",
	)

	out.Reset()
	c.Exec(ctx, "list-flights")
	assertContains(t, out.String(), "AR1", "gate_assigned", "AR2", "landed")

	out.Reset()
	c.Exec(ctx, "assign-gate AR2 1")
	assertContains(t, out.String(), "Could not assign a gate to flight AR2", "Flight is still waiting for a gate.")

	clk.Advance(5 * time.Second)
	assertContains(t, out.String(), "Flight AR1 left Gate G1.")

	out.Reset()
	c.Exec(ctx, "assign-gate AR2")
	assertContains(t, out.String(), "Flight AR2 assigned to Gate G1")

	out.Reset()
	c.Exec(ctx, "assign-gate")
	c.Exec(ctx, "assign-gate NOPE")
	c.Exec(ctx, "taxi")
	assertContains(t, out.String(), "Usage: assign-gate", "flight not found", `Unknown command "taxi"`)

	moves, err := st.ListMovementsByFlight(ctx, "AR2")
	if err != nil {
		t.Fatalf("ListMovementsByFlight: %v", err)
	}
	var events []string
	for _, m := range moves {
		events = append(events, m.Event)
	}
	want := "waiting,runway_assigned,landed,gate_pending,gate_pending,gate_assigned"
	if got := strings.Join(events, ","); got != want {
		t.Errorf("AR2 movements = %s, want %s", got, want)
	}
}

func TestConsole_EndOfInput(t *testing.T) {
	var out bytes.Buffer
	sched, _, _ := testScheduler(t, nil, []string{"A1"}, []string{"G1"})
	runConsole(t, sched, &out, "help\n")
	assertContains(t, out.String(), "Commands:", "assign-gate <flight> [n]")
}

func testdataPath(rel string) string {
	return filepath.Join("..", "..", "testdata", rel)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func TestConsoleCommand_LoadsFlights(t *testing.T) {
	output, err := runCLI(t, "2\nexit\n", "console", "--flights", testdataPath("flights.csv"))
	if err != nil {
		t.Fatalf("console error: %v\noutput: %s", err, output)
	}
	assertContains(t, output,
		"Loaded 5 flights from",
		"Flight EK303 - ARRIVAL, Priority: 0, Emergency: true",
		"Flight BA202 - DEPARTURE, Priority: 1, Emergency: false",
	)
}

func TestConsoleCommand_BadConfig(t *testing.T) {
	_, err := runCLI(t, "", "console", "--config", testdataPath("missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}

// startTestServer starts a server over a manual-clock scheduler and returns the URL.
func startTestServer(t *testing.T) (string, *clock.Manual) {
	t.Helper()
	sched, clk, st := testScheduler(t, nil, []string{"A1", "B2"}, []string{"G1"})
	srv := server.New(config.Default(), sched, quietLogger(), server.WithStore(st))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL, clk
}

func TestClientCommands(t *testing.T) {
	url, clk := startTestServer(t)

	steps := []struct {
		args []string
		want []string
	}{
		{[]string{"queue"}, []string{"No flights in the queue."}},
		{[]string{"admit", "AI101", "arrival", "3"}, []string{"Flight AI101 admitted (arrival, priority 3)."}},
		{[]string{"admit", "EK303", "Arrival", "5", "--emergency"}, []string{"Flight EK303 admitted (arrival, priority 0)."}},
		{[]string{"queue"}, []string{"Flight EK303 - ARRIVAL, Priority: 0", "Flight AI101 - ARRIVAL, Priority: 3"}},
		{[]string{"schedule", "--runway", "2"}, []string{"Flight EK303 assigned to Runway B2"}},
		{[]string{"runways"}, []string{"1. Runway A1 is available", "2. Runway B2 is occupied"}},
		{[]string{"flights"}, []string{"EK303", "runway_assigned", "B2"}},
		{[]string{"gates"}, []string{"1. Gate G1 is available"}},
	}
	for _, s := range steps {
		output, err := runCLI(t, "", append([]string{"--server", url}, s.args...)...)
		if err != nil {
			t.Fatalf("%v: %v\noutput: %s", s.args, err, output)
		}
		assertContains(t, output, s.want...)
	}

	clk.Advance(2 * time.Second)
	output, err := runCLI(t, "", "--server", url, "movements", "--flight", "EK303")
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	assertContains(t, output, "EVENT", "gate_assigned", "landed", "runway_assigned", "waiting")
}

func TestClientCommands_Errors(t *testing.T) {
	url, _ := startTestServer(t)

	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"schedule"}, "QUEUE_EMPTY"},
		{[]string{"admit", "X", "taxi", "1"}, "VALIDATION_ERROR"},
		{[]string{"admit", "X", "arrival", "high"}, "not an integer"},
		{[]string{"assign-gate", "NOPE"}, "NOT_FOUND"},
	}
	for _, tt := range tests {
		_, err := runCLI(t, "", append([]string{"--server", url}, tt.args...)...)
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%v: err = %v, want containing %q", tt.args, err, tt.wantErr)
		}
	}
}

func TestClient_TypedCalls(t *testing.T) {
	url, clk := startTestServer(t)
	c := NewClient(url, quietLogger())
	ctx := context.Background()

	f, err := c.Admit(ctx, model.AdmitRequest{ID: "AR1", Direction: "arrival", Priority: 2})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if f.ID != "AR1" || f.Status != model.FlightStatusWaiting {
		t.Errorf("admitted %+v", f)
	}
	queued, err := c.Queue(ctx)
	if err != nil || len(queued) != 1 {
		t.Fatalf("Queue = %v, %v", queued, err)
	}

	a, err := c.Schedule(ctx, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if a.Flight.ID != "AR1" || a.Unit.ID != "A1" {
		t.Errorf("assignment = %s on %s, want AR1 on A1", a.Flight.ID, a.Unit.ID)
	}

	_, err = c.Schedule(ctx, 0)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrQueueEmpty {
		t.Errorf("Schedule on empty queue err = %v, want QUEUE_EMPTY", err)
	}

	// Landing gives AR1 the only gate automatically.
	clk.Advance(2 * time.Second)
	gates, err := c.Units(ctx, model.ResourceGate)
	if err != nil || len(gates) != 1 || gates[0].Holder != "AR1" {
		t.Fatalf("Units(gate) = %+v, %v", gates, err)
	}
	_, err = c.AssignGate(ctx, "AR1", 0)
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrConflict {
		t.Errorf("AssignGate on gated flight err = %v, want CONFLICT", err)
	}
	flights, err := c.Flights(ctx)
	if err != nil || len(flights) != 1 || flights[0].Gate != "G1" {
		t.Errorf("Flights = %+v, %v", flights, err)
	}

	moves, pg, err := c.Movements(ctx, model.ListOptions{Limit: 2, FlightID: "AR1"})
	if err != nil {
		t.Fatalf("Movements: %v", err)
	}
	if len(moves) != 2 || pg == nil || !pg.HasMore || pg.Total != 4 {
		t.Errorf("movements = %d, pagination = %+v; want 2 of 4", len(moves), pg)
	}
	if moves[0].Event != "gate_assigned" {
		t.Errorf("newest movement = %s, want gate_assigned", moves[0].Event)
	}
}

func TestClient_SendsRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","request_id":"`+got+`","data":[]}`)
	}))
	t.Cleanup(ts.Close)

	flights, err := NewClient(ts.URL, quietLogger()).Flights(context.Background())
	if err != nil {
		t.Fatalf("Flights: %v", err)
	}
	if len(flights) != 0 {
		t.Errorf("flights = %v, want none", flights)
	}
	if !strings.HasPrefix(got, "cli_") {
		t.Errorf("X-Request-ID = %q, want cli_ prefix", got)
	}
}

func TestRootCmd_BadLogFormat(t *testing.T) {
	_, err := runCLI(t, "", "--log-format", "xml", "queue")
	if err == nil || !strings.Contains(err.Error(), "unknown log format") {
		t.Errorf("err = %v, want unknown log format", err)
	}
}
