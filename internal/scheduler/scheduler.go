package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/apron/internal/clock"
	"github.com/me/apron/internal/policy"
	"github.com/me/apron/internal/pool"
	"github.com/me/apron/internal/queue"
	"github.com/me/apron/internal/status"
	"github.com/me/apron/internal/tracing"
	"github.com/me/apron/pkg/model"
)

// ErrClosed is returned by decisions made after Close.
var ErrClosed = errors.New("scheduler closed")

// FailurePolicy decides what happens to a flight whose runway pick failed.
type FailurePolicy string

const (
	// FailureRequeue puts the flight back in the queue with its original key.
	FailureRequeue FailurePolicy = "requeue"
	// FailureDrop removes the flight from scheduling. It stays known, so it
	// cannot be admitted again.
	FailureDrop FailurePolicy = "drop"
)

// ParseFailurePolicy accepts "requeue" or "drop"; empty means requeue.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailureRequeue:
		return FailureRequeue, nil
	case FailureDrop:
		return FailureDrop, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want requeue or drop)", s)
}

// Config holds scheduler configuration.
type Config struct {
	RunwayOccupancy    time.Duration
	GateOccupancy      time.Duration
	OnSelectionFailure FailurePolicy
	RunwaySelector     policy.Selector
	GateSelector       policy.Selector
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RunwayOccupancy:    2 * time.Second,
		GateOccupancy:      5 * time.Second,
		OnSelectionFailure: FailureRequeue,
		RunwaySelector:     policy.FirstAvailable{},
		GateSelector:       policy.FirstAvailable{},
	}
}

// Journal records movements. Failures are logged and otherwise ignored.
type Journal interface {
	RecordMovement(ctx context.Context, m *model.Movement) error
}

// Assignment describes a unit handed to a flight.
type Assignment struct {
	Flight    model.Flight     `json:"flight"`
	Unit      model.UnitStatus `json:"unit"`
	ReleaseAt time.Time        `json:"release_at"`
}

// SelectionError reports a failed runway or gate pick and what was done
// with the flight as a result.
type SelectionError struct {
	FlightID string
	Kind     model.ResourceKind
	Outcome  string
	Err      error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s selection for flight %s failed (%s): %v", e.Kind, e.FlightID, e.Outcome, e.Err)
}

func (e *SelectionError) Unwrap() error {
	return e.Err
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithClock replaces the real clock, typically with a *clock.Manual in tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithJournal records every movement to j.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) {
		s.journal = j
	}
}

// tracked is a flight that left the queue and is not terminal yet.
type tracked struct {
	flight *model.Flight
	runway *pool.Unit
	gate   *pool.Unit
	timer  clock.Timer
}

// Scheduler owns the flight queue and both pools. Decisions are serialized
// by mu; unit availability is guarded by the pools themselves, so timed
// releases never wait for a decision to finish before freeing a unit.
type Scheduler struct {
	queue   *queue.FlightQueue
	runways *pool.Pool
	gates   *pool.Pool
	clock   clock.Clock
	journal Journal
	config  Config
	logger  *slog.Logger

	mu       sync.Mutex
	known    map[string]*model.Flight
	inFlight map[string]*tracked
	closed   bool
}

// New creates a Scheduler over the given pools.
func New(runways, gates *pool.Pool, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.RunwaySelector == nil {
		cfg.RunwaySelector = policy.FirstAvailable{}
	}
	if cfg.GateSelector == nil {
		cfg.GateSelector = policy.FirstAvailable{}
	}
	if cfg.OnSelectionFailure == "" {
		cfg.OnSelectionFailure = FailureRequeue
	}
	s := &Scheduler{
		queue:    queue.New(),
		runways:  runways,
		gates:    gates,
		clock:    clock.Real(),
		config:   cfg,
		logger:   logger.With("component", "scheduler"),
		known:    make(map[string]*model.Flight),
		inFlight: make(map[string]*tracked),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit validates f and puts it in the queue. A flight ID is admitted at most once.
func (s *Scheduler) Admit(ctx context.Context, f *model.Flight) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Status == "" {
		f.Status = model.FlightStatusWaiting
	}
	if f.Status != model.FlightStatusWaiting {
		return &model.InvalidTransitionError{Entity: "flight", ID: f.ID, From: f.Status.String(), To: model.FlightStatusWaiting.String()}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.known[f.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("admit %s: %w", f.ID, model.ErrDuplicateFlight)
	}
	now := s.clock.Now()
	f.AdmittedAt = now
	f.UpdatedAt = now
	if err := s.queue.Admit(f); err != nil {
		s.mu.Unlock()
		return err
	}
	s.known[f.ID] = f
	s.mu.Unlock()

	s.logger.Debug("flight admitted", "flight_id", f.ID, "direction", f.Direction, "priority", f.Priority, "emergency", f.Emergency)
	s.record(ctx, f.ID, model.FlightStatusWaiting.String(), "", "", fmt.Sprintf("priority=%d emergency=%t", f.Priority, f.Emergency))
	return nil
}

// ScheduleNext takes the highest-priority waiting flight and gives it a runway.
//
// The unit is chosen by pick, or by the runway selector for policy.Auto().
// An empty queue returns model.ErrEmptyQueue without touching either pool.
// An automatic pick while every runway is held returns
// *model.UnitUnavailableError (Index -1) and leaves the queue as it was.
// A failed pick returns *SelectionError after applying the configured
// failure policy to the flight; queue and pools stay consistent.
func (s *Scheduler) ScheduleNext(ctx context.Context, pick policy.Pick) (a *Assignment, err error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.schedule_next")
	defer func() { tracing.EndSpan(span, err) }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.queue.Len() == 0 {
		s.mu.Unlock()
		s.logger.Debug("nothing to schedule")
		return nil, model.ErrEmptyQueue
	}
	if !pick.IsManual() && s.runways.Free() == 0 {
		s.mu.Unlock()
		s.logger.Debug("all runways busy", "queued", s.queue.Len())
		return nil, &model.UnitUnavailableError{Kind: model.ResourceRunway, Index: -1}
	}

	f, err := s.queue.ExtractMin()
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("nothing to schedule")
		return nil, err
	}
	span.WithAttributes(map[string]string{"flight.id": f.ID, "flight.direction": f.Direction.String()})

	unit, err := s.acquire(s.runways, s.config.RunwaySelector, pick, f.ID)
	if err != nil {
		outcome := s.onRunwayFailure(f)
		s.mu.Unlock()

		s.logger.Warn("runway selection failed", "flight_id", f.ID, "outcome", outcome, "error", err)
		s.record(ctx, f.ID, outcome, model.ResourceRunway, "", err.Error())
		return nil, &SelectionError{FlightID: f.ID, Kind: model.ResourceRunway, Outcome: outcome, Err: err}
	}

	now := s.clock.Now()
	if err := f.Transition(model.FlightStatusRunwayAssigned, now); err != nil {
		// Only waiting flights are queued, so this means the queue was corrupted.
		s.runways.Release(unit, f.ID)
		s.mu.Unlock()
		return nil, err
	}
	f.Runway = unit.ID()
	tr := &tracked{flight: f, runway: unit}
	s.inFlight[f.ID] = tr
	id := f.ID
	tr.timer = s.clock.AfterFunc(s.config.RunwayOccupancy, func() { s.completeRunway(id) })
	a = &Assignment{Flight: *f, Unit: unitStatus(unit), ReleaseAt: now.Add(s.config.RunwayOccupancy)}
	s.mu.Unlock()

	s.logger.Info("runway assigned", "flight_id", f.ID, "runway", unit.ID(), "emergency", f.Emergency)
	s.record(ctx, f.ID, model.FlightStatusRunwayAssigned.String(), model.ResourceRunway, unit.ID(), "")
	return a, nil
}

// AssignGate gives a landed arrival a gate. Arrivals get one automatically
// when their runway is released; this is how an operator retries one that
// found every gate occupied, or overrides the automatic pick.
func (s *Scheduler) AssignGate(ctx context.Context, flightID string, pick policy.Pick) (a *Assignment, err error) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.assign_gate")
	span.WithAttributes(map[string]string{"flight.id": flightID})
	defer func() { tracing.EndSpan(span, err) }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	tr, ok := s.inFlight[flightID]
	if !ok {
		_, known := s.known[flightID]
		s.mu.Unlock()
		if known {
			return nil, fmt.Errorf("assign gate %s: %w", flightID, model.ErrGateNotPending)
		}
		return nil, fmt.Errorf("assign gate %s: %w", flightID, model.ErrFlightNotFound)
	}
	f := tr.flight
	if f.Status != model.FlightStatusLanded {
		s.mu.Unlock()
		return nil, fmt.Errorf("assign gate %s (%s): %w", flightID, f.Status, model.ErrGateNotPending)
	}

	unit, err := s.acquire(s.gates, s.config.GateSelector, pick, f.ID)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("gate selection failed", "flight_id", f.ID, "error", err)
		s.record(ctx, f.ID, model.EventGatePending, model.ResourceGate, "", err.Error())
		return nil, &SelectionError{FlightID: f.ID, Kind: model.ResourceGate, Outcome: model.EventGatePending, Err: err}
	}

	now := s.clock.Now()
	if err := f.Transition(model.FlightStatusGateAssigned, now); err != nil {
		s.gates.Release(unit, f.ID)
		s.mu.Unlock()
		return nil, err
	}
	f.Gate = unit.ID()
	tr.gate = unit
	tr.timer = s.clock.AfterFunc(s.config.GateOccupancy, func() { s.completeGate(flightID) })
	a = &Assignment{Flight: *f, Unit: unitStatus(unit), ReleaseAt: now.Add(s.config.GateOccupancy)}
	s.mu.Unlock()

	s.logger.Info("gate assigned", "flight_id", f.ID, "gate", unit.ID())
	s.record(ctx, f.ID, model.FlightStatusGateAssigned.String(), model.ResourceGate, unit.ID(), "")
	return a, nil
}

// acquire resolves pick against p and takes the unit. Must hold s.mu.
func (s *Scheduler) acquire(p *pool.Pool, sel policy.Selector, pick policy.Pick, holder string) (*pool.Unit, error) {
	idx, err := policy.Resolve(pick, sel, p.ListWithStatus())
	if err != nil {
		if errors.Is(err, policy.ErrNoneAvailable) {
			return nil, &model.UnitUnavailableError{Kind: p.Kind(), Index: -1}
		}
		return nil, err
	}
	return p.TryAcquire(idx, holder)
}

// onRunwayFailure applies the failure policy and returns the movement event. Must hold s.mu.
func (s *Scheduler) onRunwayFailure(f *model.Flight) string {
	if s.config.OnSelectionFailure == FailureDrop {
		return model.EventDropped
	}
	if err := s.queue.Admit(f); err != nil {
		// The id was removed by ExtractMin under the same lock, so this cannot collide.
		s.logger.Error("requeue failed", "flight_id", f.ID, "error", err)
		return model.EventDropped
	}
	return model.EventRequeued
}

// completeRunway runs when the runway occupancy elapses.
func (s *Scheduler) completeRunway(flightID string) {
	ctx, span := tracing.StartSpan(context.Background(), "scheduler.release_runway")
	span.WithAttributes(map[string]string{"flight.id": flightID})
	defer tracing.EndSpan(span, nil)

	s.mu.Lock()
	tr, ok := s.inFlight[flightID]
	if !ok || tr.runway == nil {
		s.mu.Unlock()
		return
	}
	runway := tr.runway
	s.runways.Release(runway, flightID)
	tr.runway = nil
	tr.timer = nil

	f := tr.flight
	next := model.FlightStatusDeparted
	if f.IsArrival() {
		next = model.FlightStatusLanded
	}
	if err := f.Transition(next, s.clock.Now()); err != nil {
		s.mu.Unlock()
		s.logger.Error("runway completion", "flight_id", flightID, "error", err)
		return
	}
	if next.IsTerminal() {
		delete(s.inFlight, flightID)
	}
	s.mu.Unlock()

	s.logger.Info("runway released", "flight_id", flightID, "runway", runway.ID(), "status", next)
	s.record(ctx, flightID, next.String(), model.ResourceRunway, runway.ID(), "runway released")

	if next == model.FlightStatusLanded {
		if _, err := s.AssignGate(ctx, flightID, policy.Auto()); err != nil {
			s.logger.Warn("arrival waiting for gate", "flight_id", flightID, "error", err)
		}
	}
}

// completeGate runs when the gate occupancy elapses.
func (s *Scheduler) completeGate(flightID string) {
	ctx, span := tracing.StartSpan(context.Background(), "scheduler.release_gate")
	span.WithAttributes(map[string]string{"flight.id": flightID})
	defer tracing.EndSpan(span, nil)

	s.mu.Lock()
	tr, ok := s.inFlight[flightID]
	if !ok || tr.gate == nil {
		s.mu.Unlock()
		return
	}
	gate := tr.gate
	s.gates.Release(gate, flightID)
	tr.gate = nil
	tr.timer = nil
	if err := tr.flight.Transition(model.FlightStatusGateReleased, s.clock.Now()); err != nil {
		s.mu.Unlock()
		s.logger.Error("gate completion", "flight_id", flightID, "error", err)
		return
	}
	delete(s.inFlight, flightID)
	s.mu.Unlock()

	s.logger.Info("gate released", "flight_id", flightID, "gate", gate.ID())
	s.record(ctx, flightID, model.FlightStatusGateReleased.String(), model.ResourceGate, gate.ID(), "gate released")
}

// Flight returns a copy of any flight ever admitted.
func (s *Scheduler) Flight(id string) (model.Flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.known[id]
	if !ok {
		return model.Flight{}, false
	}
	return *f, true
}

// InFlight returns copies of flights that left the queue and are not terminal, by id.
func (s *Scheduler) InFlight() []model.Flight {
	s.mu.Lock()
	out := make([]model.Flight, 0, len(s.inFlight))
	for _, tr := range s.inFlight {
		out = append(out, *tr.flight)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AwaitingGate returns the ids of landed arrivals that hold no gate yet.
func (s *Scheduler) AwaitingGate() []string {
	var ids []string
	for _, f := range s.InFlight() {
		if f.Status == model.FlightStatusLanded {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// Reporter returns read-only status views over the scheduler's state.
func (s *Scheduler) Reporter() *status.Reporter {
	return status.New(s.queue, s.runways, s.gates, s)
}

// Close stops pending release timers and rejects further decisions.
// Units held at that point stay held; Close is for shutdown only.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, tr := range s.inFlight {
		if tr.timer != nil {
			tr.timer.Stop()
		}
	}
	return nil
}

func (s *Scheduler) record(ctx context.Context, flightID, event string, kind model.ResourceKind, unitID, detail string) {
	if s.journal == nil {
		return
	}
	m := &model.Movement{
		ID:        "mv_" + uuid.New().String(),
		FlightID:  flightID,
		Event:     event,
		Kind:      kind,
		UnitID:    unitID,
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}
	if err := s.journal.RecordMovement(ctx, m); err != nil {
		s.logger.Error("journal movement", "flight_id", flightID, "event", event, "error", err)
	}
}

func unitStatus(u *pool.Unit) model.UnitStatus {
	return model.UnitStatus{
		Index:     u.Index(),
		ID:        u.ID(),
		Kind:      u.Kind(),
		Available: u.Available(),
		Holder:    u.Holder(),
	}
}
