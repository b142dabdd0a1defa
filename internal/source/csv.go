package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/me/apron/pkg/model"
)

// Header aliases accepted for each CSV column.
var csvColumns = map[string][]string{
	"id":        {"flight_id", "id"},
	"direction": {"flight_type", "direction"},
	"priority":  {"priority"},
	"emergency": {"emergency"},
}

// CSV loads flights from a comma-separated file with a header row.
type CSV struct {
	path string
}

// NewCSV creates a CSV loader for path.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Load reads the file. An unreadable file yields no flights and a LoadError.
func (c *CSV) Load(ctx context.Context) ([]*model.Flight, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, &model.LoadError{Source: c.path, Err: err}
	}
	defer f.Close()
	return ReadCSV(ctx, c.path, f)
}

// ReadCSV parses CSV flight records from r. name labels errors.
func ReadCSV(ctx context.Context, name string, r io.Reader) ([]*model.Flight, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file")
		}
		return nil, &model.LoadError{Source: name, Err: err}
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, &model.LoadError{Source: name, Err: err}
	}

	c := newCollector(name)
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return c.flights, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.fail(line, err)
			continue
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec := record{
			id:        field(row, cols["id"]),
			direction: field(row, cols["direction"]),
			emergency: field(row, cols["emergency"]),
		}
		if p := cols["priority"]; p >= 0 && p < len(row) {
			v := row[p]
			rec.priority = &v
		}
		c.add(line, rec)
	}
	return c.result()
}

func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := make(map[string]int, len(csvColumns))
	for name, aliases := range csvColumns {
		found := false
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[name] = i
				found = true
				break
			}
		}
		if !found && name != "priority" && name != "emergency" {
			return nil, fmt.Errorf("header missing column %s", strings.Join(aliases, " or "))
		}
		if !found {
			cols[name] = -1
		}
	}
	return cols, nil
}

func field(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return row[i]
	}
	return ""
}
