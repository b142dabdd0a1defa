// Package policy decides which runway or gate a flight gets.
//
// The scheduler asks a Selector for an index whenever the caller did not
// pick one explicitly. Selectors are pure functions of the pool snapshot they
// are given.
package policy

import (
	"errors"
	"sort"

	"github.com/me/apron/pkg/model"
)

// ErrNoneAvailable is returned by selectors when every unit is held.
var ErrNoneAvailable = errors.New("no unit available")

// Selector chooses a 0-based unit index from a pool snapshot.
type Selector interface {
	Select(units []model.UnitStatus) (int, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(units []model.UnitStatus) (int, error)

// Select calls f(units).
func (f SelectorFunc) Select(units []model.UnitStatus) (int, error) {
	return f(units)
}

// FirstAvailable picks the available unit with the lowest id.
type FirstAvailable struct{}

// Select implements Selector.
func (FirstAvailable) Select(units []model.UnitStatus) (int, error) {
	free := make([]model.UnitStatus, 0, len(units))
	for _, u := range units {
		if u.Available {
			free = append(free, u)
		}
	}
	if len(free) == 0 {
		return -1, ErrNoneAvailable
	}
	sort.Slice(free, func(i, j int) bool { return free[i].ID < free[j].ID })
	return free[0].Index, nil
}

// Pick is either an automatic choice or an explicit index supplied by an operator.
type Pick struct {
	index  int
	manual bool
}

// Auto defers the choice to the configured Selector.
func Auto() Pick { return Pick{} }

// At picks the unit at a 0-based index. The pool validates it.
func At(index int) Pick { return Pick{index: index, manual: true} }

// FromOneBased converts an operator's 1-based choice; 0 means Auto.
func FromOneBased(n int) Pick {
	if n == 0 {
		return Auto()
	}
	return At(n - 1)
}

// IsManual reports whether the pick was supplied explicitly.
func (p Pick) IsManual() bool { return p.manual }

// Resolve returns the index to try: the manual one, or the selector's choice.
func Resolve(p Pick, sel Selector, units []model.UnitStatus) (int, error) {
	if p.manual {
		return p.index, nil
	}
	if sel == nil {
		sel = FirstAvailable{}
	}
	return sel.Select(units)
}
