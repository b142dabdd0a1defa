package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/me/apron/pkg/model"
)

// yamlFlight is decoded field by field so that a missing priority is
// distinguishable from zero. Scalars of any YAML type decode into strings.
type yamlFlight struct {
	ID        string  `yaml:"id"`
	Direction string  `yaml:"direction"`
	Priority  *string `yaml:"priority"`
	Emergency string  `yaml:"emergency"`
}

type yamlDoc struct {
	Flights []yaml.Node `yaml:"flights"`
}

// YAML loads flights from a document of the form
//
//	flights:
//	  - {id: AI101, direction: arrival, priority: 2, emergency: no}
type YAML struct {
	path string
}

// NewYAML creates a YAML loader for path.
func NewYAML(path string) *YAML {
	return &YAML{path: path}
}

// Load reads the file. An unreadable or unparsable file yields no flights and a LoadError.
func (y *YAML) Load(ctx context.Context) ([]*model.Flight, error) {
	f, err := os.Open(y.path)
	if err != nil {
		return nil, &model.LoadError{Source: y.path, Err: err}
	}
	defer f.Close()
	return ReadYAML(ctx, y.path, f)
}

// ReadYAML parses a flights document from r. Errors carry the record's line in the document.
func ReadYAML(ctx context.Context, name string, r io.Reader) ([]*model.Flight, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &model.LoadError{Source: name, Err: err}
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &model.LoadError{Source: name, Err: fmt.Errorf("parse yaml: %w", err)}
	}

	c := newCollector(name)
	for i := range doc.Flights {
		if err := ctx.Err(); err != nil {
			return c.flights, err
		}
		node := &doc.Flights[i]
		var yf yamlFlight
		if err := node.Decode(&yf); err != nil {
			c.fail(node.Line, err)
			continue
		}
		c.add(node.Line, record{
			id:        yf.ID,
			direction: yf.Direction,
			priority:  yf.Priority,
			emergency: yf.Emergency,
		})
	}
	return c.result()
}
