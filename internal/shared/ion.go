package shared

import (
	"errors"
	"fmt"

	"github.com/samcharles93/mechpack/internal/device"
)

// IonConfig describes one ion species on a cell group. All slices are per
// ion site and must have the length of CV; the reset values default to the
// initial values when empty.
type IonConfig struct {
	CV         []int32
	InitIConc  []float64
	InitEConc  []float64
	ResetIConc []float64
	ResetEConc []float64
	InitRevPot []float64
}

func (c *IonConfig) normalize() error {
	n := len(c.CV)
	if len(c.ResetIConc) == 0 {
		c.ResetIConc = c.InitIConc
	}
	if len(c.ResetEConc) == 0 {
		c.ResetEConc = c.InitEConc
	}
	for _, f := range []struct {
		name string
		v    []float64
	}{
		{"init_iconc", c.InitIConc},
		{"init_econc", c.InitEConc},
		{"reset_iconc", c.ResetIConc},
		{"reset_econc", c.ResetEConc},
		{"init_revpot", c.InitRevPot},
	} {
		if len(f.v) != n {
			return fmt.Errorf("%s has %d values for %d ion sites", f.name, len(f.v), n)
		}
	}
	return nil
}

// IonState is the per-site state of one ion species, indexed by the ion's
// own site list.
type IonState struct {
	Charge int

	NodeIndex  *device.Array[int32]
	IX         *device.Array[float64] // current density
	EX         *device.Array[float64] // reversal potential
	Xi         *device.Array[float64] // internal concentration
	Xo         *device.Array[float64] // external concentration
	ChargeData *device.Array[float64]

	InitXi  *device.Array[float64]
	InitXo  *device.Array[float64]
	ResetXi *device.Array[float64]
	ResetXo *device.Array[float64]
	InitEX  *device.Array[float64]
}

func newIonState(dev device.Device, charge int, cfg IonConfig) (s *IonState, err error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	s = &IonState{Charge: charge}
	defer func() {
		if err != nil {
			_ = s.free()
			s = nil
		}
	}()

	n := len(cfg.CV)
	if s.NodeIndex, err = device.FromHost(dev, cfg.CV); err != nil {
		return nil, err
	}
	for _, a := range []**device.Array[float64]{&s.IX, &s.EX, &s.Xi, &s.Xo} {
		if *a, err = device.Filled(dev, n, nan); err != nil {
			return nil, err
		}
	}
	if s.ChargeData, err = device.Filled(dev, 1, float64(charge)); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		dst **device.Array[float64]
		src []float64
	}{
		{&s.InitXi, cfg.InitIConc},
		{&s.InitXo, cfg.InitEConc},
		{&s.ResetXi, cfg.ResetIConc},
		{&s.ResetXo, cfg.ResetEConc},
		{&s.InitEX, cfg.InitRevPot},
	} {
		if *c.dst, err = device.FromHost(dev, c.src); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Width is the number of sites the ion occupies.
func (s *IonState) Width() int { return s.NodeIndex.Len() }

// HostNodeIndex copies the ion's site list back to the host.
func (s *IonState) HostNodeIndex() ([]int32, error) {
	return s.NodeIndex.Host()
}

func (s *IonState) InitConcentration() error {
	if err := s.Xi.CopyFromArray(s.InitXi); err != nil {
		return err
	}
	return s.Xo.CopyFromArray(s.InitXo)
}

func (s *IonState) ZeroCurrent() error {
	return s.IX.Fill(0)
}

func (s *IonState) Reset() error {
	if err := s.ZeroCurrent(); err != nil {
		return err
	}
	if err := s.Xi.CopyFromArray(s.ResetXi); err != nil {
		return err
	}
	if err := s.Xo.CopyFromArray(s.ResetXo); err != nil {
		return err
	}
	return s.EX.CopyFromArray(s.InitEX)
}

func (s *IonState) free() error {
	var errs []error
	errs = append(errs, s.NodeIndex.Free(), s.ChargeData.Free())
	for _, a := range []*device.Array[float64]{s.IX, s.EX, s.Xi, s.Xo, s.InitXi, s.InitXo, s.ResetXi, s.ResetXo, s.InitEX} {
		errs = append(errs, a.Free())
	}
	return errors.Join(errs...)
}
