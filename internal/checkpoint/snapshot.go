// Package checkpoint captures the field and global tables of a cell
// group's instances and writes them back through SetField.
package checkpoint

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/mechanism"
)

var ErrMismatch = errors.New("checkpoint: snapshot does not match cell group")

type Snapshot struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	CreatedAt  time.Time   `json:"created_at"`
	Mechanisms []Mechanism `json:"mechanisms"`
}

// Mechanism is the captured state of one instance.
type Mechanism struct {
	ID      uint32   `json:"id"`
	Name    string   `json:"name"`
	Width   int      `json:"width"`
	Fields  []Field  `json:"fields"`
	Globals []Global `json:"globals"`
}

type Field struct {
	Name   string `json:"name"`
	Values Values `json:"values"`
}

// Values encodes non-finite numbers as the strings "NaN", "+Inf" and
// "-Inf"; uninitialised state is NaN.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(v)*8)
	buf = append(buf, '[')
	for i, x := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		switch {
		case math.IsNaN(x):
			buf = append(buf, `"NaN"`...)
		case math.IsInf(x, 1):
			buf = append(buf, `"+Inf"`...)
		case math.IsInf(x, -1):
			buf = append(buf, `"-Inf"`...)
		default:
			buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
		}
	}
	return append(buf, ']'), nil
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, r := range raw {
		switch x := r.(type) {
		case float64:
			out[i] = x
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return fmt.Errorf("checkpoint: value %d: %w", i, err)
			}
			out[i] = f
		default:
			return fmt.Errorf("checkpoint: value %d has type %T", i, r)
		}
	}
	*v = out
	return nil
}

type Global struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Capture reads every field of every instance of g back from the device.
func Capture(g *cellgroup.Group, label string) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	err := g.View(func(insts []*mechanism.Instance) error {
		for _, m := range insts {
			ms := Mechanism{ID: m.ID(), Name: m.Name(), Width: m.Width()}
			for _, f := range m.FieldTable() {
				vals, err := m.FieldValues(f.Name)
				if err != nil {
					return fmt.Errorf("checkpoint: %s.%s: %w", m.Name(), f.Name, err)
				}
				ms.Fields = append(ms.Fields, Field{Name: f.Name, Values: vals})
			}
			for _, gl := range m.GlobalTable() {
				ms.Globals = append(ms.Globals, Global{Name: gl.Name, Value: gl.Value})
			}
			snap.Mechanisms = append(snap.Mechanisms, ms)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Restore writes the captured fields back. Instances are matched by id and
// must have the same mechanism, width, fields and resolved globals. Every
// entry is checked before anything is written, so a mismatch leaves the
// group untouched.
func (s *Snapshot) Restore(g *cellgroup.Group) error {
	return g.Update(func(insts []*mechanism.Instance) error {
		byID := make(map[uint32]*mechanism.Instance, len(insts))
		for _, m := range insts {
			byID[m.ID()] = m
		}
		targets := make([]*mechanism.Instance, len(s.Mechanisms))
		for i, ms := range s.Mechanisms {
			m, ok := byID[ms.ID]
			if !ok {
				return fmt.Errorf("%w: no instance %d", ErrMismatch, ms.ID)
			}
			if err := ms.check(m); err != nil {
				return err
			}
			targets[i] = m
		}
		for i, ms := range s.Mechanisms {
			for _, f := range ms.Fields {
				if err := targets[i].SetField(f.Name, f.Values); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (ms *Mechanism) check(m *mechanism.Instance) error {
	if m.Name() != ms.Name || m.Width() != ms.Width {
		return fmt.Errorf("%w: instance %d is %s/%d, snapshot has %s/%d",
			ErrMismatch, ms.ID, m.Name(), m.Width(), ms.Name, ms.Width)
	}
	globals := m.GlobalTable()
	if len(globals) != len(ms.Globals) {
		return fmt.Errorf("%w: %s has %d globals, snapshot has %d", ErrMismatch, ms.Name, len(globals), len(ms.Globals))
	}
	for i, gl := range globals {
		if gl.Name != ms.Globals[i].Name || gl.Value != ms.Globals[i].Value {
			return fmt.Errorf("%w: %s global %s differs", ErrMismatch, ms.Name, gl.Name)
		}
	}
	for _, f := range ms.Fields {
		if _, ok := m.FieldData(f.Name); !ok {
			return fmt.Errorf("%w: %s has no field %s", ErrMismatch, ms.Name, f.Name)
		}
		if len(f.Values) != ms.Width {
			return fmt.Errorf("%w: %s.%s has %d values, want %d", ErrMismatch, ms.Name, f.Name, len(f.Values), ms.Width)
		}
	}
	return nil
}
