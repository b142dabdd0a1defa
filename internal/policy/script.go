package policy

import (
	"fmt"
	"math"

	"github.com/dop251/goja"

	"github.com/me/apron/pkg/model"
)

// Script is a Selector written in JavaScript.
//
// The source is a function body. It sees `units`, an array of
// {index, id, available, holder} objects, and returns the index to acquire.
// Returning -1, null or undefined means nothing suitable is free.
//
//	for (var i = 0; i < units.length; i++) {
//	  if (units[i].available && units[i].id !== "A1") return units[i].index;
//	}
//	return -1;
type Script struct {
	name    string
	program *goja.Program
}

// NewScript compiles body once; each Select runs it in a fresh runtime.
func NewScript(name, body string) (*Script, error) {
	prog, err := goja.Compile(name, "(function(units) {\n"+body+"\n})(units)", true)
	if err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", name, err)
	}
	return &Script{name: name, program: prog}, nil
}

// Select implements Selector.
func (s *Script) Select(units []model.UnitStatus) (int, error) {
	vm := goja.New()

	arr := make([]any, len(units))
	for i, u := range units {
		arr[i] = map[string]any{
			"index":     u.Index,
			"id":        u.ID,
			"kind":      string(u.Kind),
			"available": u.Available,
			"holder":    u.Holder,
		}
	}
	if err := vm.Set("units", arr); err != nil {
		return -1, fmt.Errorf("policy %s: set units: %w", s.name, err)
	}

	v, err := vm.RunProgram(s.program)
	if err != nil {
		return -1, fmt.Errorf("policy %s: %w", s.name, err)
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return -1, ErrNoneAvailable
	}

	var idx int64
	switch n := v.Export().(type) {
	case int64:
		idx = n
	case float64:
		if n != math.Trunc(n) {
			return -1, fmt.Errorf("policy %s: returned non-integer %v", s.name, n)
		}
		idx = int64(n)
	default:
		return -1, fmt.Errorf("policy %s: returned %T, want a number", s.name, n)
	}
	if idx < 0 {
		return -1, ErrNoneAvailable
	}
	return int(idx), nil
}
