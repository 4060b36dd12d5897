package catalogue

import (
	"context"
	"math"
	"slices"

	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/schema"
)

// frame resolves what a host kernel needs out of a parameter pack.
type frame struct {
	dev device.Device
	pp  *mechanism.ParamPack
}

func (f frame) state(i int) ([]float64, error) {
	addrs, err := device.Slice[uint64](f.dev, f.pp.StateVars.Addr(), f.pp.NStateVars)
	if err != nil {
		return nil, err
	}
	return device.Slice[float64](f.dev, addrs[i], f.pp.Width)
}

func (f frame) nodeIndex() ([]int32, error) {
	return device.Slice[int32](f.dev, f.pp.NodeIndex.Addr(), f.pp.Width)
}

func (f frame) voltage() ([]float64, error) {
	return device.Slice[float64](f.dev, f.pp.VecV.Addr(), f.pp.NCV)
}

// ionRecord returns the address record of the i-th declared ion.
func (f frame) ionRecord(i int) ([]uint64, error) {
	recs, err := device.Slice[uint64](f.dev, f.pp.IonStates.Addr(), mechanism.IonRecordWords*f.pp.NIons)
	if err != nil {
		return nil, err
	}
	return recs[i*mechanism.IonRecordWords : (i+1)*mechanism.IonRecordWords], nil
}

// siteVoltage gathers the membrane voltage at every mechanism site.
func (f frame) siteVoltage() ([]float64, error) {
	ni, err := f.nodeIndex()
	if err != nil {
		return nil, err
	}
	vec, err := f.voltage()
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(ni))
	for i, cv := range ni {
		v[i] = vec[cv]
	}
	return v, nil
}

// DefaultsKernel returns an init kernel that resets every state variable of
// s to its default.
func DefaultsKernel(s *schema.Mechanism) mechanism.Kernel {
	defaults := make([]float64, len(s.StateVars))
	for i, sv := range s.StateVars {
		defaults[i] = sv.Default
	}
	return mechanism.KernelFunc(func(ctx context.Context, dev device.Device, pp *mechanism.ParamPack) error {
		f := frame{dev, pp}
		for i, d := range defaults {
			if err := ctx.Err(); err != nil {
				return err
			}
			vals, err := f.state(i)
			if err != nil {
				return err
			}
			for k := range vals {
				vals[k] = d
			}
		}
		return nil
	})
}

func exprelr(x float64) float64 {
	if math.Abs(x) < 1e-12 {
		return 1
	}
	return x / math.Expm1(x)
}

// hhInit sets m, h and n to their steady state at the site voltage.
func hhInit(_ context.Context, dev device.Device, pp *mechanism.ParamPack) error {
	f := frame{dev, pp}
	v, err := f.siteVoltage()
	if err != nil {
		return err
	}
	m, err := f.state(0)
	if err != nil {
		return err
	}
	h, err := f.state(1)
	if err != nil {
		return err
	}
	n, err := f.state(2)
	if err != nil {
		return err
	}
	for i, u := range v {
		am := exprelr(-(u + 40) / 10)
		bm := 4 * math.Exp(-(u+65)/18)
		ah := 0.07 * math.Exp(-(u+65)/20)
		bh := 1 / (math.Exp(-(u+35)/10) + 1)
		an := 0.1 * exprelr(-(u+55)/10)
		bn := 0.125 * math.Exp(-(u+65)/80)
		m[i] = am / (am + bm)
		h[i] = ah / (ah + bh)
		n[i] = an / (an + bn)
	}
	return nil
}

// cadInit seeds the tracked concentration from the bound ion's internal
// concentration.
func cadInit(_ context.Context, dev device.Device, pp *mechanism.ParamPack) error {
	f := frame{dev, pp}
	rec, err := f.ionRecord(0)
	if err != nil {
		return err
	}
	idx, err := device.Slice[int32](dev, rec[mechanism.IonIndex], pp.Width)
	if err != nil {
		return err
	}
	conc, err := f.state(0)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return nil
	}
	xi, err := device.Slice[float64](dev, rec[mechanism.IonInternalConc], int(slices.Max(idx))+1)
	if err != nil {
		return err
	}
	for i, k := range idx {
		conc[i] = xi[k]
	}
	return nil
}
