package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const catalogueYAML = `
mechanisms:
  - name: leak
    parameters:
      - {name: g, default: 0.001, units: S/cm2}
      - {name: e, default: -70}
  - name: buffer
    kind: point
    state:
      - {name: b, default: 0.5}
    globals:
      - {name: a, default: 1}
      - {name: k, default: 2}
    ions:
      - {name: ca, charge: 2}
`

func TestParseCatalogue(t *testing.T) {
	t.Parallel()
	mechs, err := Parse([]byte(catalogueYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(mechs) != 2 {
		t.Fatalf("expected 2 mechanisms, got %d", len(mechs))
	}
	leak := mechs[0]
	if leak.Kind != Density {
		t.Fatalf("default kind: got %q", leak.Kind)
	}
	if len(leak.Parameters) != 2 || leak.Parameters[1].Default != -70 || leak.Parameters[0].Units != "S/cm2" {
		t.Fatalf("unexpected parameters: %+v", leak.Parameters)
	}
	buf := mechs[1]
	if buf.Kind != Point || buf.Ions[0].Charge != 2 {
		t.Fatalf("unexpected buffer schema: %+v", buf)
	}
	if buf.GlobalIndex("k") != 1 || buf.GlobalIndex("missing") != -1 {
		t.Fatalf("GlobalIndex mismatch")
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mech Mechanism
	}{
		{"no name", Mechanism{}},
		{"dup parameter", Mechanism{Name: "m", Parameters: []Field{{Name: "g"}, {Name: "g"}}}},
		{"dup state", Mechanism{Name: "m", StateVars: []Field{{Name: "s"}, {Name: "s"}}}},
		{"empty global", Mechanism{Name: "m", Globals: []Field{{Name: ""}}}},
		{"dup ion", Mechanism{Name: "m", Ions: []Ion{{Name: "ca"}, {Name: "ca"}}}},
		{"bad kind", Mechanism{Name: "m", Kind: "junction"}},
	}
	for _, tt := range tests {
		if err := tt.mech.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tt.name, err)
		}
	}
	ok := Mechanism{Name: "m", Parameters: []Field{{Name: "x"}}, StateVars: []Field{{Name: "x"}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("same name across categories should be valid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cat.yaml")
	if err := os.WriteFile(path, []byte(catalogueYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	mechs, err := Load(path)
	if err != nil || len(mechs) != 2 {
		t.Fatalf("Load: %v (%d)", err, len(mechs))
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
