package model

import (
	"fmt"
	"time"
)

// MinPriority is the smallest priority value the queue orders by.
// Emergencies are forced to it on admission; regular flights start at 1.
const MinPriority = 0

// Flight is a request for a runway (and, for arrivals, a gate).
type Flight struct {
	ID         string       `json:"id" yaml:"id"`
	Direction  Direction    `json:"direction" yaml:"direction"`
	Priority   int          `json:"priority" yaml:"priority"`
	Emergency  bool         `json:"emergency" yaml:"emergency"`
	Status     FlightStatus `json:"status" yaml:"-"`
	Runway     string       `json:"runway,omitempty" yaml:"-"`
	Gate       string       `json:"gate,omitempty" yaml:"-"`
	AdmittedAt time.Time    `json:"admitted_at,omitempty" yaml:"-"`
	UpdatedAt  time.Time    `json:"updated_at,omitempty" yaml:"-"`
}

// NewFlight creates a waiting flight.
func NewFlight(id string, dir Direction, priority int, emergency bool) *Flight {
	return &Flight{
		ID:        id,
		Direction: dir,
		Priority:  priority,
		Emergency: emergency,
		Status:    FlightStatusWaiting,
	}
}

// EffectivePriority is the value actually used for queue ordering.
func (f *Flight) EffectivePriority() int {
	if f.Emergency {
		return MinPriority
	}
	return f.Priority
}

// IsArrival reports whether the flight needs a gate after landing.
func (f *Flight) IsArrival() bool {
	return f.Direction == DirectionArrival
}

// Validate checks the fields a source or API caller is responsible for.
func (f *Flight) Validate() error {
	var details []FieldError
	if f.ID == "" {
		details = append(details, FieldError{Field: "id", Message: "required"})
	}
	if !f.Direction.IsValid() {
		details = append(details, FieldError{Field: "direction", Message: fmt.Sprintf("must be arrival or departure, got %q", f.Direction)})
	}
	if !f.Emergency && f.Priority < 1 {
		details = append(details, FieldError{Field: "priority", Message: fmt.Sprintf("must be >= 1, got %d", f.Priority)})
	}
	if len(details) > 0 {
		return NewValidationError("invalid flight", details...)
	}
	return nil
}

// Transition moves the flight to next, refusing moves outside ValidFlightTransitions.
func (f *Flight) Transition(next FlightStatus, at time.Time) error {
	if !f.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{
			Entity: "flight",
			ID:     f.ID,
			From:   f.Status.String(),
			To:     next.String(),
		}
	}
	f.Status = next
	f.UpdatedAt = at
	return nil
}

// Less orders flights by (effective priority, id).
func Less(a, b *Flight) bool {
	pa, pb := a.EffectivePriority(), b.EffectivePriority()
	if pa != pb {
		return pa < pb
	}
	return a.ID < b.ID
}

// UnitStatus is a value snapshot of one runway or gate.
type UnitStatus struct {
	Index     int          `json:"index"`
	ID        string       `json:"id"`
	Kind      ResourceKind `json:"kind"`
	Available bool         `json:"available"`
	Holder    string       `json:"holder,omitempty"`
}

// String renders the unit the way the console prints it.
func (u UnitStatus) String() string {
	state := "available"
	if !u.Available {
		state = "occupied"
	}
	name := "Runway"
	if u.Kind == ResourceGate {
		name = "Gate"
	}
	if u.Holder != "" {
		return fmt.Sprintf("%s %s is %s (%s)", name, u.ID, state, u.Holder)
	}
	return fmt.Sprintf("%s %s is %s", name, u.ID, state)
}
