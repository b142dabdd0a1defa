package model

import "strings"

// FlightStatus represents the lifecycle state of a Flight.
type FlightStatus string

const (
	FlightStatusWaiting        FlightStatus = "waiting"
	FlightStatusRunwayAssigned FlightStatus = "runway_assigned"
	FlightStatusLanded         FlightStatus = "landed"
	FlightStatusDeparted       FlightStatus = "departed"
	FlightStatusGateAssigned   FlightStatus = "gate_assigned"
	FlightStatusGateReleased   FlightStatus = "gate_released"
)

// String returns the string representation of the flight status.
func (s FlightStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions can occur.
func (s FlightStatus) IsTerminal() bool {
	switch s {
	case FlightStatusDeparted, FlightStatusGateReleased:
		return true
	}
	return false
}

// ValidFlightTransitions defines the allowed status transitions for Flights.
// Departures end at departed; arrivals continue through the gate cycle.
var ValidFlightTransitions = map[FlightStatus][]FlightStatus{
	FlightStatusWaiting:        {FlightStatusRunwayAssigned},
	FlightStatusRunwayAssigned: {FlightStatusLanded, FlightStatusDeparted},
	FlightStatusLanded:         {FlightStatusGateAssigned},
	FlightStatusGateAssigned:   {FlightStatusGateReleased},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s FlightStatus) CanTransitionTo(next FlightStatus) bool {
	for _, allowed := range ValidFlightTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Direction tells whether a flight lands or takes off.
type Direction string

const (
	DirectionArrival   Direction = "arrival"
	DirectionDeparture Direction = "departure"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether d is one of the known directions.
func (d Direction) IsValid() bool {
	return d == DirectionArrival || d == DirectionDeparture
}

// ParseDirection converts a case-insensitive direction name.
// Returns false for anything other than arrival or departure.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	return d, d.IsValid()
}

// ParseEmergency converts a yes/no style flag.
// Accepts yes/no, y/n, true/false and 1/0 in any case.
func ParseEmergency(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true, true
	case "no", "n", "false", "0", "":
		return false, true
	}
	return false, false
}

// ResourceKind identifies a resource pool.
type ResourceKind string

const (
	ResourceRunway ResourceKind = "runway"
	ResourceGate   ResourceKind = "gate"
)

// String returns the string representation of the resource kind.
func (k ResourceKind) String() string {
	return string(k)
}
