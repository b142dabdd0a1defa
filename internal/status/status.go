// Package status exposes read-only snapshots of queue, pool and flight
// state for display. Snapshots are returned by value and are not
// linearizable with concurrent scheduling decisions.
package status

import (
	"iter"

	"github.com/me/apron/pkg/model"
)

// QueueReader is the read side of the flight queue.
type QueueReader interface {
	PeekAll() iter.Seq[model.Flight]
	Len() int
}

// PoolReader is the read side of a resource pool.
type PoolReader interface {
	ListWithStatus() []model.UnitStatus
}

// FlightReader lists flights that left the queue and are not yet terminal.
type FlightReader interface {
	InFlight() []model.Flight
}

// Reporter answers status queries.
type Reporter struct {
	queue   QueueReader
	runways PoolReader
	gates   PoolReader
	flights FlightReader
}

// New creates a Reporter over the given read-only views.
func New(q QueueReader, runways, gates PoolReader, flights FlightReader) *Reporter {
	return &Reporter{queue: q, runways: runways, gates: gates, flights: flights}
}

// Queue returns the waiting flights in internal order, not scheduling order.
func (r *Reporter) Queue() []model.Flight {
	out := make([]model.Flight, 0, r.queue.Len())
	for f := range r.queue.PeekAll() {
		out = append(out, f)
	}
	return out
}

// Runways returns every runway with its availability.
func (r *Reporter) Runways() []model.UnitStatus {
	return r.runways.ListWithStatus()
}

// Gates returns every gate with its availability.
func (r *Reporter) Gates() []model.UnitStatus {
	return r.gates.ListWithStatus()
}

// InFlight returns flights holding or waiting for a runway or gate.
func (r *Reporter) InFlight() []model.Flight {
	if r.flights == nil {
		return nil
	}
	return r.flights.InFlight()
}

// Summary counts queued and active flights and free units.
func (r *Reporter) Summary() model.Summary {
	s := model.Summary{Queued: r.queue.Len()}
	for _, f := range r.InFlight() {
		s.InFlight++
		if f.Status == model.FlightStatusLanded {
			s.AwaitingGate++
		}
	}
	for _, u := range r.Runways() {
		s.RunwaysTotal++
		if u.Available {
			s.RunwaysFree++
		}
	}
	for _, u := range r.Gates() {
		s.GatesTotal++
		if u.Available {
			s.GatesFree++
		}
	}
	return s
}
