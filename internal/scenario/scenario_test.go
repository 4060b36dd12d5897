package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/mechanism"
)

const soma = `
sites: 4
detectors: 1
voltage: [-65, -64, -63, -62]
catalogues: [extra.yaml]
ions:
  - {name: na, charge: 1, cv: [0, 1, 2, 3], iconc: 10, econc: 140, revpot: 50}
  - {name: k, charge: 1, cv: [0, 1, 2, 3], iconc: 54.4, econc: 2.5, revpot: -77}
  - {name: ca, charge: 2, cv: [1, 2, 3], iconc: 5.0e-5, econc: 2, revpot: 132}
mechanisms:
  - name: hh
    cv: [0, 1]
  - name: pas
    cv: [0, 1, 2, 3]
    fields: {e: -65}
  - name: cad
    cv: [2, 3]
    ion_rebind: {x: ca}
    globals: {depth: 0.2}
  - name: leak2
    cv: [3]
`

const extra = `
mechanisms:
  - name: leak2
    parameters:
      - {name: g, default: 0.002}
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(extra), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "soma.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	t.Parallel()
	s, err := Load(writeScenario(t, soma))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := s.Config()
	if cfg.NIntdom != 1 || cfg.NCell != 1 || len(cfg.Diameter) != 4 || cfg.Diameter[3] != DefaultDiameter {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TemperatureK[0] != DefaultTemperatureK || cfg.InitVoltage[2] != -63 {
		t.Fatalf("unexpected per-site values %+v", cfg)
	}
}

func TestParseRejectsShortLists(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("sites: 3\ndiameter: [1, 2]\n"), "")
	if err == nil {
		t.Fatal("expected error for short diameter list")
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	s, err := Load(writeScenario(t, soma))
	if err != nil {
		t.Fatal(err)
	}
	dev := device.NewHost(0)
	g, err := s.Build(context.Background(), dev, catalogue.Builtin())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() {
		if err := g.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if dev.Live() != 0 {
			t.Errorf("leaked %d allocations", dev.Live())
		}
	}()

	insts := g.Instances()
	if len(insts) != 4 {
		t.Fatalf("expected 4 instances, got %d", len(insts))
	}
	pas := insts[1]
	e, err := pas.FieldValues("e")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range e {
		if v != -65 {
			t.Fatalf("pas e not applied: %v", e)
		}
	}
	if err := g.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	conc, _ := insts[2].FieldValues("conc")
	if conc[0] != 5e-5 || conc[1] != 5e-5 {
		t.Fatalf("cad conc: %v", conc)
	}
}

func TestBuildFailureReleasesMemory(t *testing.T) {
	t.Parallel()
	body := `
sites: 2
ions:
  - {name: na, charge: 1, cv: [0, 1]}
mechanisms:
  - name: pas
    cv: [0, 1]
  - name: hh
    cv: [0]
`
	s, err := Parse([]byte(body), "")
	if err != nil {
		t.Fatal(err)
	}
	dev := device.NewHost(0)
	_, err = s.Build(context.Background(), dev, catalogue.Builtin())
	if !errors.Is(err, mechanism.ErrMissingIon) {
		t.Fatalf("expected ErrMissingIon, got %v", err)
	}
	if dev.Live() != 0 {
		t.Fatalf("leaked %d allocations", dev.Live())
	}
}
