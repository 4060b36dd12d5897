// Package schema describes mechanism types: their parameters, state
// variables, globals and ions. Schemas are immutable once built and shared
// read-only by every instance of the type.
package schema

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	Density Kind = "density"
	Point   Kind = "point"
)

// Field is a parameter, state variable or global.
type Field struct {
	Name    string  `yaml:"name" json:"name"`
	Default float64 `yaml:"default" json:"default"`
	Units   string  `yaml:"units,omitempty" json:"units,omitempty"`
}

// Ion is an ion species a mechanism reads or writes.
type Ion struct {
	Name   string `yaml:"name" json:"name"`
	Charge int    `yaml:"charge" json:"charge"`
}

// Mechanism is the schema of one mechanism type.
type Mechanism struct {
	Name       string  `yaml:"name" json:"name"`
	Kind       Kind    `yaml:"kind" json:"kind"`
	Parameters []Field `yaml:"parameters" json:"parameters"`
	StateVars  []Field `yaml:"state" json:"state"`
	Globals    []Field `yaml:"globals" json:"globals"`
	Ions       []Ion   `yaml:"ions" json:"ions"`
}

var ErrInvalid = errors.New("schema: invalid mechanism")

// Validate checks names are present and unique within each category.
func (m *Mechanism) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalid)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalid)
	}
	switch m.Kind {
	case "", Density, Point:
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalid, m.Name, m.Kind)
	}
	check := func(category string, names []string) error {
		seen := make(map[string]struct{}, len(names))
		for _, n := range names {
			if n == "" {
				return fmt.Errorf("%w: %s: empty %s name", ErrInvalid, m.Name, category)
			}
			if _, dup := seen[n]; dup {
				return fmt.Errorf("%w: %s: duplicate %s %q", ErrInvalid, m.Name, category, n)
			}
			seen[n] = struct{}{}
		}
		return nil
	}
	if err := check("parameter", fieldNames(m.Parameters)); err != nil {
		return err
	}
	if err := check("state variable", fieldNames(m.StateVars)); err != nil {
		return err
	}
	if err := check("global", fieldNames(m.Globals)); err != nil {
		return err
	}
	ions := make([]string, len(m.Ions))
	for i, ion := range m.Ions {
		ions[i] = ion.Name
	}
	return check("ion", ions)
}

// GlobalIndex returns the position of the named global, or -1.
func (m *Mechanism) GlobalIndex(name string) int {
	for i, g := range m.Globals {
		if g.Name == name {
			return i
		}
	}
	return -1
}

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// Catalogue is the on-disk form of a set of schemas.
type Catalogue struct {
	Mechanisms []*Mechanism `yaml:"mechanisms"`
}

// Parse decodes and validates a YAML catalogue document.
func Parse(data []byte) ([]*Mechanism, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("schema: decode catalogue: %w", err)
	}
	for _, m := range c.Mechanisms {
		if m.Kind == "" {
			m.Kind = Density
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return c.Mechanisms, nil
}

// Load reads a YAML catalogue file.
func Load(path string) ([]*Mechanism, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
