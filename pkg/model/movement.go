package model

import "time"

// Movement events that are not flight statuses.
const (
	EventRequeued    = "requeued"
	EventDropped     = "dropped"
	EventGatePending = "gate_pending"
)

// Movement is one journal entry: a flight reaching a status or a
// scheduling outcome worth auditing.
type Movement struct {
	ID        string       `json:"id"`
	FlightID  string       `json:"flight_id"`
	Event     string       `json:"event"`
	Kind      ResourceKind `json:"kind,omitempty"`
	UnitID    string       `json:"unit_id,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
