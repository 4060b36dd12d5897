// Package catalogue maps mechanism names to mechanism types: the built-in
// channels and synapses, plus schemas loaded from YAML catalogue files.
package catalogue

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/schema"
)

var (
	ErrUnknown   = errors.New("catalogue: unknown mechanism")
	ErrDuplicate = errors.New("catalogue: mechanism already defined")
)

// Catalogue is safe for concurrent use.
type Catalogue struct {
	mu    sync.RWMutex
	types map[string]*mechanism.Type
}

func New() *Catalogue {
	return &Catalogue{types: make(map[string]*mechanism.Type)}
}

// Builtin returns a catalogue holding pas, hh, expsyn and cad.
func Builtin() *Catalogue {
	c := New()
	for _, t := range builtins() {
		if err := c.Add(t); err != nil {
			panic(err)
		}
	}
	return c
}

func builtins() []*mechanism.Type {
	pas := &schema.Mechanism{
		Name: "pas",
		Kind: schema.Density,
		Parameters: []schema.Field{
			{Name: "g", Default: 0.001, Units: "S/cm2"},
			{Name: "e", Default: -70, Units: "mV"},
		},
	}
	hh := &schema.Mechanism{
		Name: "hh",
		Kind: schema.Density,
		Parameters: []schema.Field{
			{Name: "gnabar", Default: 0.12, Units: "S/cm2"},
			{Name: "gkbar", Default: 0.036, Units: "S/cm2"},
			{Name: "gl", Default: 0.0003, Units: "S/cm2"},
			{Name: "el", Default: -54.3, Units: "mV"},
		},
		StateVars: []schema.Field{{Name: "m"}, {Name: "h"}, {Name: "n"}},
		Ions:      []schema.Ion{{Name: "na", Charge: 1}, {Name: "k", Charge: 1}},
	}
	expsyn := &schema.Mechanism{
		Name: "expsyn",
		Kind: schema.Point,
		Parameters: []schema.Field{
			{Name: "tau", Default: 2, Units: "ms"},
			{Name: "e", Default: 0, Units: "mV"},
		},
		StateVars: []schema.Field{{Name: "g", Units: "uS"}},
	}
	cad := &schema.Mechanism{
		Name:      "cad",
		Kind:      schema.Density,
		StateVars: []schema.Field{{Name: "conc", Units: "mM"}},
		Globals: []schema.Field{
			{Name: "depth", Default: 0.1, Units: "um"},
			{Name: "taur", Default: 200, Units: "ms"},
			{Name: "cainf", Default: 1e-4, Units: "mM"},
		},
		Ions: []schema.Ion{{Name: "x", Charge: 2}},
	}
	return []*mechanism.Type{
		{Schema: pas},
		{Schema: hh, Init: mechanism.KernelFunc(hhInit)},
		{Schema: expsyn, Init: DefaultsKernel(expsyn)},
		{Schema: cad, Init: mechanism.KernelFunc(cadInit)},
	}
}

// Add registers a type under its schema name.
func (c *Catalogue) Add(t *mechanism.Type) error {
	if t == nil || t.Schema == nil {
		return fmt.Errorf("catalogue: nil mechanism type")
	}
	if err := t.Schema.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.types[t.Schema.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Schema.Name)
	}
	c.types[t.Schema.Name] = t
	return nil
}

// Get looks a type up by name.
func (c *Catalogue) Get(name string) (*mechanism.Type, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return t, nil
}

func (c *Catalogue) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.types))
}

// Schemas returns every schema in name order.
func (c *Catalogue) Schemas() []*schema.Mechanism {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*schema.Mechanism, 0, len(names))
	for _, n := range names {
		if t, ok := c.types[n]; ok {
			out = append(out, t.Schema)
		}
	}
	return out
}

// LoadFile adds every schema of a YAML catalogue file. Loaded types reset
// their state to defaults on initialisation.
func (c *Catalogue) LoadFile(path string) error {
	mechs, err := schema.Load(path)
	if err != nil {
		return fmt.Errorf("catalogue: load %s: %w", path, err)
	}
	return c.addSchemas(mechs)
}

// LoadBytes is LoadFile for an in-memory document.
func (c *Catalogue) LoadBytes(data []byte) error {
	mechs, err := schema.Parse(data)
	if err != nil {
		return err
	}
	return c.addSchemas(mechs)
}

func (c *Catalogue) addSchemas(mechs []*schema.Mechanism) error {
	for _, m := range mechs {
		if err := c.Add(&mechanism.Type{Schema: m, Init: DefaultsKernel(m)}); err != nil {
			return err
		}
	}
	return nil
}
