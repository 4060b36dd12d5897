package shared

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/mechpack/internal/device"
)

func testConfig() Config {
	return Config{
		NIntdom:      1,
		NCell:        1,
		NDetector:    2,
		CVToIntdom:   []int32{0, 0, 0, 0},
		CVToCell:     []int32{0, 0, 0, 0},
		InitVoltage:  []float64{-65, -65, -64, -63},
		TemperatureK: []float64{279.45, 279.45, 279.45, 279.45},
		Diameter:     []float64{1, 1, 2, 2},
	}
}

func testIon() IonConfig {
	return IonConfig{
		CV:         []int32{1, 2, 3},
		InitIConc:  []float64{5e-5, 5e-5, 5e-5},
		InitEConc:  []float64{2, 2, 2},
		InitRevPot: []float64{130, 130, 130},
	}
}

func newTestState(t *testing.T) (*State, *device.Host) {
	t.Helper()
	dev := device.NewHost(0)
	s, err := New(dev, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dev
}

func TestNewConvertsTemperature(t *testing.T) {
	t.Parallel()
	s, _ := newTestState(t)
	temps, err := s.TemperatureDegC.Host()
	if err != nil {
		t.Fatalf("Host: %v", err)
	}
	if math.Abs(temps[0]-6.3) > 1e-9 {
		t.Fatalf("expected 6.3 degC, got %v", temps[0])
	}
	spikes, _ := s.TimeSinceSpike.Host()
	if len(spikes) != 2 || spikes[0] != -1 {
		t.Fatalf("unexpected time since spike %v", spikes)
	}
}

func TestNewRejectsInconsistentConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Diameter = cfg.Diameter[:2]
	if _, err := New(device.NewHost(0), cfg); err == nil {
		t.Fatal("expected length mismatch error")
	}
	cfg = testConfig()
	cfg.CVToIntdom[2] = 3
	if _, err := New(device.NewHost(0), cfg); err == nil {
		t.Fatal("expected intdom range error")
	}
}

func TestAddIonAndReset(t *testing.T) {
	t.Parallel()
	s, _ := newTestState(t)
	if err := s.AddIon("ca", 2, testIon()); err != nil {
		t.Fatalf("AddIon: %v", err)
	}
	if err := s.AddIon("ca", 2, testIon()); !errors.Is(err, ErrIonExists) {
		t.Fatalf("expected ErrIonExists, got %v", err)
	}
	ion, ok := s.Ion("ca")
	if !ok || ion.Width() != 3 {
		t.Fatalf("ion lookup failed")
	}
	charge, _ := ion.ChargeData.Host()
	if charge[0] != 2 {
		t.Fatalf("charge: %v", charge)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	xi, _ := ion.Xi.Host()
	ex, _ := ion.EX.Host()
	ix, _ := ion.IX.Host()
	if xi[1] != 5e-5 || ex[2] != 130 || ix[0] != 0 {
		t.Fatalf("ion not reset: xi=%v ex=%v ix=%v", xi, ex, ix)
	}
	lo, hi, err := s.VoltageBounds()
	if err != nil || lo != -65 || hi != -63 {
		t.Fatalf("VoltageBounds: %v %v %v", lo, hi, err)
	}
	lo, hi, err = s.TimeBounds()
	if err != nil || lo != 0 || hi != 0 {
		t.Fatalf("TimeBounds: %v %v %v", lo, hi, err)
	}
}

func TestAddIonValidatesSites(t *testing.T) {
	t.Parallel()
	s, _ := newTestState(t)
	cfg := testIon()
	cfg.CV = []int32{1, 2, 9}
	if err := s.AddIon("k", 1, cfg); err == nil {
		t.Fatal("expected out of range site error")
	}
	cfg = testIon()
	cfg.InitEConc = cfg.InitEConc[:1]
	if err := s.AddIon("k", 1, cfg); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestReserveRejectsDuplicates(t *testing.T) {
	t.Parallel()
	s, _ := newTestState(t)
	if err := s.Reserve(4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := s.Reserve(4); !errors.Is(err, ErrIDInUse) {
		t.Fatalf("expected ErrIDInUse, got %v", err)
	}
	s.Release(4)
	if err := s.Reserve(4); err != nil {
		t.Fatalf("Reserve after Release: %v", err)
	}
}

func TestCloseReleasesDeviceMemory(t *testing.T) {
	t.Parallel()
	dev := device.NewHost(0)
	s, err := New(dev, testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.AddIon("na", 1, testIon()); err != nil {
		t.Fatalf("AddIon: %v", err)
	}
	if dev.Live() == 0 {
		t.Fatal("expected live allocations")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dev.Live() != 0 {
		t.Fatalf("leaked %d allocations", dev.Live())
	}
}

func TestEventStreamMarking(t *testing.T) {
	t.Parallel()
	es := NewEventStream(1)
	es.Init(0, []Event{
		{MechanismID: 1, Index: 0, Time: 2, Weight: 0.5},
		{MechanismID: 2, Index: 1, Time: 0.5, Weight: 1},
		{MechanismID: 1, Index: 1, Time: 1, Weight: 2},
	})
	es.MarkUntil(0, 1.5)
	got := es.Marked(0, 1)
	if len(got) != 1 || got[0].Weight != 2 {
		t.Fatalf("unexpected marked events %+v", got)
	}
	if es.Len() != 3 {
		t.Fatalf("Len: %d", es.Len())
	}
	es.Clear()
	if es.Len() != 0 {
		t.Fatalf("Len after Clear: %d", es.Len())
	}
}
