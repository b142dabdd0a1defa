// Package source loads flight records from files and databases.
//
// Every loader reports bad records individually and keeps going: Load
// returns the valid flights together with an errors.Join of one
// *model.LoadError per rejected record.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/me/apron/pkg/model"
)

// Loader produces the flights to admit at startup.
type Loader interface {
	Load(ctx context.Context) ([]*model.Flight, error)
}

// Open picks a loader for path by its extension.
// .csv, .yaml/.yml and .db/.sqlite/.sqlite3 are recognized.
func Open(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSV(path), nil
	case ".yaml", ".yml":
		return NewYAML(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLite(path, DefaultTable), nil
	default:
		return nil, &model.LoadError{Source: path, Err: fmt.Errorf("unsupported flight source extension %q", filepath.Ext(path))}
	}
}

// record is one raw flight as read from any source.
type record struct {
	id        string
	direction string
	priority  *string
	emergency string
}

// collector turns raw records into flights, tracking duplicates and per-record errors.
type collector struct {
	source  string
	flights []*model.Flight
	seen    map[string]int
	errs    []error
}

func newCollector(source string) *collector {
	return &collector{source: source, seen: make(map[string]int)}
}

func (c *collector) fail(line int, err error) {
	c.errs = append(c.errs, &model.LoadError{Source: c.source, Line: line, Err: err})
}

func (c *collector) add(line int, r record) {
	f, err := r.flight()
	if err != nil {
		c.fail(line, err)
		return
	}
	if first, dup := c.seen[f.ID]; dup {
		c.fail(line, fmt.Errorf("flight %s already defined at record %d: %w", f.ID, first, model.ErrDuplicateFlight))
		return
	}
	c.seen[f.ID] = line
	c.flights = append(c.flights, f)
}

func (c *collector) result() ([]*model.Flight, error) {
	return c.flights, errors.Join(c.errs...)
}

func (r record) flight() (*model.Flight, error) {
	id := strings.TrimSpace(r.id)
	if id == "" {
		return nil, errors.New("missing flight id")
	}
	dir, ok := model.ParseDirection(r.direction)
	if !ok {
		return nil, fmt.Errorf("flight %s: direction must be arrival or departure, got %q", id, r.direction)
	}
	if r.priority == nil || strings.TrimSpace(*r.priority) == "" {
		return nil, fmt.Errorf("flight %s: missing priority", id)
	}
	priority, err := strconv.Atoi(strings.TrimSpace(*r.priority))
	if err != nil {
		return nil, fmt.Errorf("flight %s: priority %q is not an integer", id, *r.priority)
	}
	emergency, ok := model.ParseEmergency(r.emergency)
	if !ok {
		return nil, fmt.Errorf("flight %s: emergency must be yes or no, got %q", id, r.emergency)
	}

	f := model.NewFlight(id, dir, priority, emergency)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Admitter accepts flights into a queue.
type Admitter interface {
	Admit(ctx context.Context, f *model.Flight) error
}

// Feed loads the source at path and admits every valid flight to a.
// It returns how many were admitted; load and admission failures are
// joined into the error and never stop the remaining flights.
func Feed(ctx context.Context, path string, a Admitter) (int, error) {
	loader, err := Open(path)
	if err != nil {
		return 0, err
	}
	flights, loadErr := loader.Load(ctx)
	errs := []error{loadErr}
	admitted := 0
	for _, f := range flights {
		if err := a.Admit(ctx, f); err != nil {
			errs = append(errs, &model.LoadError{Source: path, Err: err})
			continue
		}
		admitted++
	}
	return admitted, errors.Join(errs...)
}
