// Package pool tracks a fixed set of interchangeable runways or gates.
//
// Each unit carries its own availability flag. Acquisition flips the flag
// with compare-and-swap, so no pool-wide lock exists and two callers can
// never hold the same unit at once.
package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/me/apron/pkg/model"
)

// Unit is a single runway or gate.
type Unit struct {
	index  int
	id     string
	kind   model.ResourceKind
	held   atomic.Bool
	holder atomic.Pointer[string]
}

// ID returns the unit identifier, unique within its pool.
func (u *Unit) ID() string { return u.id }

// Index returns the unit's fixed position in its pool.
func (u *Unit) Index() int { return u.index }

// Kind returns the pool kind the unit belongs to.
func (u *Unit) Kind() model.ResourceKind { return u.kind }

// Available reports whether the unit can be acquired right now.
func (u *Unit) Available() bool { return !u.held.Load() }

// Holder returns the flight holding the unit, or "".
func (u *Unit) Holder() string {
	if h := u.holder.Load(); h != nil {
		return *h
	}
	return ""
}

func (u *Unit) status() model.UnitStatus {
	return model.UnitStatus{
		Index:     u.index,
		ID:        u.id,
		Kind:      u.kind,
		Available: u.Available(),
		Holder:    u.Holder(),
	}
}

// Pool is an ordered, fixed-size collection of units.
type Pool struct {
	kind  model.ResourceKind
	units []*Unit
}

// New creates a pool with one available unit per id. The id set is fixed for
// the pool's lifetime.
func New(kind model.ResourceKind, ids []string) (*Pool, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s pool: no units", kind)
	}
	seen := make(map[string]bool, len(ids))
	units := make([]*Unit, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%s pool: unit %d has empty id", kind, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%s pool: duplicate unit id %q", kind, id)
		}
		seen[id] = true
		units[i] = &Unit{index: i, id: id, kind: kind}
	}
	return &Pool{kind: kind, units: units}, nil
}

// Kind returns the resource kind of the pool.
func (p *Pool) Kind() model.ResourceKind { return p.kind }

// Len returns the pool size.
func (p *Pool) Len() int { return len(p.units) }

// Unit returns the unit at index, or nil when out of range.
func (p *Pool) Unit(index int) *Unit {
	if index < 0 || index >= len(p.units) {
		return nil
	}
	return p.units[index]
}

// ListWithStatus returns a snapshot of every unit in pool order.
func (p *Pool) ListWithStatus() []model.UnitStatus {
	out := make([]model.UnitStatus, len(p.units))
	for i, u := range p.units {
		out[i] = u.status()
	}
	return out
}

// Free returns the number of available units.
func (p *Pool) Free() int {
	n := 0
	for _, u := range p.units {
		if u.Available() {
			n++
		}
	}
	return n
}

// TryAcquire marks the unit at index as held by holder.
// It never waits: a held unit fails with *model.UnitUnavailableError and an
// out-of-range index with *model.InvalidIndexError, leaving state untouched.
func (p *Pool) TryAcquire(index int, holder string) (*Unit, error) {
	u := p.Unit(index)
	if u == nil {
		return nil, &model.InvalidIndexError{Kind: p.kind, Index: index, Size: len(p.units)}
	}
	if !u.held.CompareAndSwap(false, true) {
		return nil, &model.UnitUnavailableError{Kind: p.kind, Index: index, UnitID: u.id, Holder: u.Holder()}
	}
	u.holder.Store(&holder)
	return u, nil
}

// Release frees u on behalf of holder. Releasing a free unit, or one that
// has since been acquired by another holder, is a no-op; the return value
// reports whether the flag actually changed.
func (p *Pool) Release(u *Unit, holder string) bool {
	if u == nil || p.Unit(u.index) != u {
		return false
	}
	h := u.holder.Load()
	if h == nil || *h != holder {
		return false
	}
	// Claiming the holder pointer first lets exactly one of two racing
	// releases for the same acquisition flip the flag.
	if !u.holder.CompareAndSwap(h, nil) {
		return false
	}
	return u.held.CompareAndSwap(true, false)
}
