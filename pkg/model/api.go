package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination holds pagination metadata for list endpoints.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ListOptions configures movement queries with pagination and filtering.
type ListOptions struct {
	Limit    int
	Offset   int
	FlightID string // Optional flight filter
}

// DefaultListOptions returns sensible defaults.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 50, Offset: 0}
}

// Clamp enforces limits (max 500, min 1).
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// AdmitRequest is the body of POST /api/v1/queue.
type AdmitRequest struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Priority  int    `json:"priority"`
	Emergency bool   `json:"emergency"`
}

// ScheduleRequest is the body of POST /api/v1/schedule. Runway is 1-based; 0 means automatic.
type ScheduleRequest struct {
	Runway int `json:"runway,omitempty"`
}

// GateRequest is the body of POST /api/v1/flights/{id}/gate. Gate is 1-based; 0 means automatic.
type GateRequest struct {
	Gate int `json:"gate,omitempty"`
}

// Summary counts flights and free units.
type Summary struct {
	Queued       int `json:"queued"`
	InFlight     int `json:"in_flight"`
	AwaitingGate int `json:"awaiting_gate"`
	RunwaysFree  int `json:"runways_free"`
	RunwaysTotal int `json:"runways_total"`
	GatesFree    int `json:"gates_free"`
	GatesTotal   int `json:"gates_total"`
}
