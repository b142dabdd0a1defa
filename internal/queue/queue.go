// Package queue holds flights waiting for a runway, ordered by
// effective priority with emergencies first.
package queue

import (
	"container/heap"
	"fmt"
	"iter"
	"sync"

	"github.com/me/apron/pkg/model"
)

// FlightQueue is a min-heap of waiting flights keyed by (priority, id).
type FlightQueue struct {
	mu    sync.RWMutex
	items flightHeap
	ids   map[string]struct{}
	seq   uint64
}

type entry struct {
	flight *model.Flight
	seq    uint64
}

// flightHeap implements heap.Interface.
type flightHeap []entry

func (h flightHeap) Len() int { return len(h) }

func (h flightHeap) Less(i, j int) bool {
	a, b := h[i].flight, h[j].flight
	if model.Less(a, b) {
		return true
	}
	if model.Less(b, a) {
		return false
	}
	return h[i].seq < h[j].seq
}

func (h flightHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *flightHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

func (h *flightHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return item
}

// New creates an empty queue.
func New() *FlightQueue {
	return &FlightQueue{ids: make(map[string]struct{})}
}

// Admit inserts a flight. Emergencies are forced to model.MinPriority first.
func (q *FlightQueue) Admit(f *model.Flight) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ids[f.ID]; ok {
		return fmt.Errorf("queue %s: %w", f.ID, model.ErrDuplicateFlight)
	}
	if f.Emergency {
		f.Priority = model.MinPriority
	}
	q.seq++
	heap.Push(&q.items, entry{flight: f, seq: q.seq})
	q.ids[f.ID] = struct{}{}
	return nil
}

// ExtractMin removes and returns the flight with the smallest key.
// Returns model.ErrEmptyQueue when nothing is waiting.
func (q *FlightQueue) ExtractMin() (*model.Flight, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil, model.ErrEmptyQueue
	}
	e := heap.Pop(&q.items).(entry)
	delete(q.ids, e.flight.ID)
	return e.flight, nil
}

// PeekAll yields copies of the queued flights in heap order, which is not
// scheduling order. Each range takes a fresh snapshot.
func (q *FlightQueue) PeekAll() iter.Seq[model.Flight] {
	return func(yield func(model.Flight) bool) {
		q.mu.RLock()
		snapshot := make([]model.Flight, len(q.items))
		for i, e := range q.items {
			snapshot[i] = *e.flight
		}
		q.mu.RUnlock()

		for _, f := range snapshot {
			if !yield(f) {
				return
			}
		}
	}
}

// Contains reports whether a flight with id is queued.
func (q *FlightQueue) Contains(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.ids[id]
	return ok
}

// Len returns the number of queued flights.
func (q *FlightQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.items.Len()
}
