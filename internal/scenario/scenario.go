// Package scenario reads YAML descriptions of a cell group: its sites,
// ions and the mechanisms placed on them.
package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/shared"
)

// Site defaults used when a per-site list is omitted.
const (
	DefaultVoltage      = -65.0
	DefaultTemperatureK = 279.45
	DefaultDiameter     = 1.0
)

// Scenario is the YAML document. Per-site lists are either empty or hold
// one value per site.
type Scenario struct {
	Sites       int         `yaml:"sites"`
	Intdoms     int         `yaml:"intdoms"`
	Cells       int         `yaml:"cells"`
	Detectors   int         `yaml:"detectors"`
	CVToIntdom  []int32     `yaml:"cv_to_intdom"`
	CVToCell    []int32     `yaml:"cv_to_cell"`
	Voltage     []float64   `yaml:"voltage"`
	Temperature []float64   `yaml:"temperature_k"`
	Diameter    []float64   `yaml:"diameter"`
	Catalogues  []string    `yaml:"catalogues"`
	Ions        []Ion       `yaml:"ions"`
	Mechanisms  []Placement `yaml:"mechanisms"`

	dir string
}

// Ion places an ion species on a list of sites with uniform initial values.
type Ion struct {
	Name   string  `yaml:"name"`
	Charge int     `yaml:"charge"`
	CV     []int32 `yaml:"cv"`
	IConc  float64 `yaml:"iconc"`
	EConc  float64 `yaml:"econc"`
	RevPot float64 `yaml:"revpot"`
}

type Placement struct {
	Name         string             `yaml:"name"`
	CV           []int32            `yaml:"cv"`
	Weight       []float64          `yaml:"weight"`
	Multiplicity []int32            `yaml:"multiplicity"`
	IonRebind    map[string]string  `yaml:"ion_rebind"`
	Globals      map[string]float64 `yaml:"globals"`
	Fields       map[string]float64 `yaml:"fields"`
}

// Parse decodes a scenario. Catalogue paths are resolved against dir.
func Parse(data []byte, dir string) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario: decode: %w", err)
	}
	s.dir = dir
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(path))
}

func (s *Scenario) normalize() error {
	if s.Sites < 0 {
		return fmt.Errorf("scenario: negative site count %d", s.Sites)
	}
	if s.Intdoms == 0 {
		s.Intdoms = 1
	}
	if s.Cells == 0 {
		s.Cells = 1
	}
	var err error
	fillI := func(name string, v *[]int32, def int32) {
		if err != nil {
			return
		}
		*v, err = broadcast(name, *v, s.Sites, def)
	}
	fillF := func(name string, v *[]float64, def float64) {
		if err != nil {
			return
		}
		*v, err = broadcast(name, *v, s.Sites, def)
	}
	fillI("cv_to_intdom", &s.CVToIntdom, 0)
	fillI("cv_to_cell", &s.CVToCell, 0)
	fillF("voltage", &s.Voltage, DefaultVoltage)
	fillF("temperature_k", &s.Temperature, DefaultTemperatureK)
	fillF("diameter", &s.Diameter, DefaultDiameter)
	return err
}

func broadcast[T any](name string, v []T, n int, def T) ([]T, error) {
	switch len(v) {
	case n:
		return v, nil
	case 0:
		out := make([]T, n)
		for i := range out {
			out[i] = def
		}
		return out, nil
	default:
		return nil, fmt.Errorf("scenario: %s has %d values for %d sites", name, len(v), n)
	}
}

// Config is the shared state configuration of the scenario.
func (s *Scenario) Config() shared.Config {
	return shared.Config{
		NIntdom:      s.Intdoms,
		NCell:        s.Cells,
		NDetector:    s.Detectors,
		CVToIntdom:   s.CVToIntdom,
		CVToCell:     s.CVToCell,
		InitVoltage:  s.Voltage,
		TemperatureK: s.Temperature,
		Diameter:     s.Diameter,
	}
}

func (i Ion) config() shared.IonConfig {
	fill := func(v float64) []float64 {
		out := make([]float64, len(i.CV))
		for k := range out {
			out[k] = v
		}
		return out
	}
	return shared.IonConfig{
		CV:         i.CV,
		InitIConc:  fill(i.IConc),
		InitEConc:  fill(i.EConc),
		InitRevPot: fill(i.RevPot),
	}
}

// Build loads the scenario's catalogue files into cat and instantiates
// every mechanism on a new cell group. Field values listed in a placement
// are applied after instantiation. On failure nothing stays allocated.
func (s *Scenario) Build(ctx context.Context, dev device.Device, cat *catalogue.Catalogue, opts ...cellgroup.Option) (*cellgroup.Group, error) {
	for _, p := range s.Catalogues {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.dir, p)
		}
		if err := cat.LoadFile(p); err != nil {
			return nil, err
		}
	}
	g, err := cellgroup.New(dev, s.Config(), cat, opts...)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) (*cellgroup.Group, error) {
		_ = g.Close()
		return nil, err
	}
	for _, ion := range s.Ions {
		if err := g.AddIon(ion.Name, ion.Charge, ion.config()); err != nil {
			return cleanup(err)
		}
	}
	for _, p := range s.Mechanisms {
		m, err := g.Add(ctx, cellgroup.Placement{
			Mechanism: p.Name,
			Layout:    mechanism.Layout{CV: p.CV, Weight: p.Weight, Multiplicity: p.Multiplicity},
			Overrides: mechanism.Overrides{IonRebind: p.IonRebind, Globals: p.Globals},
		})
		if err != nil {
			return cleanup(fmt.Errorf("scenario: mechanism %s: %w", p.Name, err))
		}
		for name, v := range p.Fields {
			vals := make([]float64, m.Width())
			for i := range vals {
				vals[i] = v
			}
			if err := m.SetField(name, vals); err != nil {
				return cleanup(fmt.Errorf("scenario: mechanism %s: %w", p.Name, err))
			}
		}
	}
	return g, nil
}
