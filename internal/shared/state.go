// Package shared holds the per-cell-group simulation state that mechanism
// instances point into: per-site voltage, currents and conductivity, the
// integration clock, and one IonState per ion species.
package shared

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/samcharles93/mechpack/internal/device"
)

var (
	ErrIonExists = errors.New("shared: ion already present")
	ErrIDInUse   = errors.New("shared: mechanism id already in use")
)

var nan = math.NaN()

const zeroCelsius = 273.15

// Config sizes and seeds a State. Per-site slices have one entry per site.
type Config struct {
	NIntdom      int
	NCell        int
	NDetector    int
	CVToIntdom   []int32
	CVToCell     []int32
	InitVoltage  []float64
	TemperatureK []float64
	Diameter     []float64
}

func (c Config) validate() error {
	n := len(c.CVToIntdom)
	if c.NIntdom < 0 || c.NCell < 0 || c.NDetector < 0 {
		return fmt.Errorf("shared: negative count in config")
	}
	for _, f := range []struct {
		name string
		n    int
	}{
		{"cv_to_cell", len(c.CVToCell)},
		{"init_voltage", len(c.InitVoltage)},
		{"temperature", len(c.TemperatureK)},
		{"diameter", len(c.Diameter)},
	} {
		if f.n != n {
			return fmt.Errorf("shared: %s has %d values for %d sites", f.name, f.n, n)
		}
	}
	for i, d := range c.CVToIntdom {
		if int(d) < 0 || int(d) >= c.NIntdom {
			return fmt.Errorf("shared: site %d maps to integration domain %d of %d", i, d, c.NIntdom)
		}
	}
	for i, cell := range c.CVToCell {
		if int(cell) < 0 || int(cell) >= c.NCell {
			return fmt.Errorf("shared: site %d maps to cell %d of %d", i, cell, c.NCell)
		}
	}
	return nil
}

// State is the shared simulation state of one cell group.
type State struct {
	dev device.Device

	NCV       int
	NIntdom   int
	NDetector int

	CVToIntdom *device.Array[int32]
	CVToCell   *device.Array[int32]

	Time     *device.Array[float64]
	TimeTo   *device.Array[float64]
	DtIntdom *device.Array[float64]
	DtCV     *device.Array[float64]

	Voltage         *device.Array[float64]
	CurrentDensity  *device.Array[float64]
	Conductivity    *device.Array[float64]
	InitVoltage     *device.Array[float64]
	TemperatureDegC *device.Array[float64]
	DiamUM          *device.Array[float64]
	TimeSinceSpike  *device.Array[float64]

	Events *EventStream

	ions map[string]*IonState

	mu  sync.Mutex
	ids map[uint32]struct{}
}

// New allocates the shared state on dev.
func New(dev device.Device, cfg Config) (s *State, err error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n := len(cfg.CVToIntdom)
	s = &State{
		dev:       dev,
		NCV:       n,
		NIntdom:   cfg.NIntdom,
		NDetector: cfg.NDetector,
		Events:    NewEventStream(cfg.NIntdom),
		ions:      make(map[string]*IonState),
		ids:       make(map[uint32]struct{}),
	}
	defer func() {
		if err != nil {
			_ = s.Close()
			s = nil
		}
	}()

	if s.CVToIntdom, err = device.FromHost(dev, cfg.CVToIntdom); err != nil {
		return nil, err
	}
	if s.CVToCell, err = device.FromHost(dev, cfg.CVToCell); err != nil {
		return nil, err
	}
	for _, a := range []struct {
		dst **device.Array[float64]
		n   int
		v   float64
	}{
		{&s.Time, cfg.NIntdom, 0},
		{&s.TimeTo, cfg.NIntdom, 0},
		{&s.DtIntdom, cfg.NIntdom, 0},
		{&s.DtCV, n, 0},
		{&s.Voltage, n, nan},
		{&s.CurrentDensity, n, 0},
		{&s.Conductivity, n, 0},
		{&s.TimeSinceSpike, cfg.NCell * cfg.NDetector, -1},
	} {
		if *a.dst, err = device.Filled(dev, a.n, a.v); err != nil {
			return nil, err
		}
	}
	if s.InitVoltage, err = device.FromHost(dev, cfg.InitVoltage); err != nil {
		return nil, err
	}
	if s.DiamUM, err = device.FromHost(dev, cfg.Diameter); err != nil {
		return nil, err
	}
	celsius := make([]float64, n)
	for i, k := range cfg.TemperatureK {
		celsius[i] = k - zeroCelsius
	}
	if s.TemperatureDegC, err = device.FromHost(dev, celsius); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) Device() device.Device { return s.dev }

// AddIon registers an ion species.
func (s *State) AddIon(name string, charge int, cfg IonConfig) error {
	if _, ok := s.ions[name]; ok {
		return fmt.Errorf("%w: %q", ErrIonExists, name)
	}
	for i, cv := range cfg.CV {
		if int(cv) < 0 || int(cv) >= s.NCV {
			return fmt.Errorf("shared: ion %q site %d refers to site %d of %d", name, i, cv, s.NCV)
		}
	}
	ion, err := newIonState(s.dev, charge, cfg)
	if err != nil {
		return fmt.Errorf("shared: ion %q: %w", name, err)
	}
	s.ions[name] = ion
	return nil
}

// Ion looks up an ion species by name.
func (s *State) Ion(name string) (*IonState, bool) {
	ion, ok := s.ions[name]
	return ion, ok
}

// IonNames lists the registered ions in name order.
func (s *State) IonNames() []string {
	names := make([]string, 0, len(s.ions))
	for n := range s.ions {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Reserve claims a mechanism id on this state.
func (s *State) Reserve(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return fmt.Errorf("%w: %d", ErrIDInUse, id)
	}
	s.ids[id] = struct{}{}
	return nil
}

// Release returns a mechanism id claimed by Reserve.
func (s *State) Release(id uint32) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Reset restores voltage, clears currents, clock and spike times, and
// resets every ion.
func (s *State) Reset() error {
	if err := s.Voltage.CopyFromArray(s.InitVoltage); err != nil {
		return err
	}
	for _, a := range []*device.Array[float64]{s.CurrentDensity, s.Conductivity, s.Time, s.TimeTo} {
		if err := a.Fill(0); err != nil {
			return err
		}
	}
	if err := s.TimeSinceSpike.Fill(-1); err != nil {
		return err
	}
	for _, name := range s.IonNames() {
		if err := s.ions[name].Reset(); err != nil {
			return fmt.Errorf("shared: reset ion %q: %w", name, err)
		}
	}
	s.Events.Clear()
	return nil
}

// ZeroCurrents clears membrane and ion currents and the conductivity.
func (s *State) ZeroCurrents() error {
	if err := s.CurrentDensity.Fill(0); err != nil {
		return err
	}
	if err := s.Conductivity.Fill(0); err != nil {
		return err
	}
	for _, ion := range s.ions {
		if err := ion.ZeroCurrent(); err != nil {
			return err
		}
	}
	return nil
}

// IonsInitConcentration sets every ion's concentrations to their initial values.
func (s *State) IonsInitConcentration() error {
	for _, ion := range s.ions {
		if err := ion.InitConcentration(); err != nil {
			return err
		}
	}
	return nil
}

// TimeBounds returns the minimum and maximum integration domain time.
func (s *State) TimeBounds() (lo, hi float64, err error) {
	return bounds(s.Time)
}

// VoltageBounds returns the minimum and maximum site voltage.
func (s *State) VoltageBounds() (lo, hi float64, err error) {
	return bounds(s.Voltage)
}

func bounds(a *device.Array[float64]) (lo, hi float64, err error) {
	vals, err := a.Host()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) == 0 {
		return 0, 0, nil
	}
	return slices.Min(vals), slices.Max(vals), nil
}

// Close releases every device allocation of the state.
func (s *State) Close() error {
	var errs []error
	for _, a := range []*device.Array[int32]{s.CVToIntdom, s.CVToCell} {
		errs = append(errs, a.Free())
	}
	for _, a := range []*device.Array[float64]{
		s.Time, s.TimeTo, s.DtIntdom, s.DtCV, s.Voltage, s.CurrentDensity,
		s.Conductivity, s.InitVoltage, s.TemperatureDegC, s.DiamUM, s.TimeSinceSpike,
	} {
		errs = append(errs, a.Free())
	}
	for name, ion := range s.ions {
		errs = append(errs, ion.free())
		delete(s.ions, name)
	}
	return errors.Join(errs...)
}
