// Package mechanism instantiates mechanism types onto the sites of a cell
// group. An Instance packs every per-site field into two padded device
// buffers, one of values and one of indices, and publishes device-resident
// address tables through a ParamPack for kernels to dereference.
package mechanism

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/samcharles93/mechpack/internal/arena"
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/index"
	"github.com/samcharles93/mechpack/internal/layout"
	"github.com/samcharles93/mechpack/internal/logger"
	"github.com/samcharles93/mechpack/internal/schema"
	"github.com/samcharles93/mechpack/internal/shared"
)

var ErrClosed = errors.New("mechanism: instance closed")

// Layout places one mechanism on a cell group. Weight and Multiplicity
// are optional; when present they have one entry per site.
type Layout struct {
	CV           []int32
	Weight       []float64
	Multiplicity []int32
}

// Overrides rebinds declared ion names to shared-state ions and replaces
// global defaults by name.
type Overrides struct {
	IonRebind map[string]string
	Globals   map[string]float64
}

// FieldEntry is a parameter or state variable with its device region.
type FieldEntry struct {
	Name    string
	Data    device.Ptr[float64]
	Default float64
}

type GlobalEntry struct {
	Name  string
	Value float64
}

// IonView exposes the shared-state arrays of the ion a declared ion name
// resolved to. They are indexed by the ion's own sites; the entry's Index
// maps mechanism sites onto them.
type IonView struct {
	Ion               string
	CurrentDensity    device.Ptr[float64]
	ReversalPotential device.Ptr[float64]
	InternalConc      device.Ptr[float64]
	ExternalConc      device.Ptr[float64]
	Charge            device.Ptr[float64]
}

type IonEntry struct {
	Name  string
	View  IonView
	Index device.Ptr[int32]
}

// Report describes how an instance's buffers are laid out.
type Report struct {
	Mechanism    string         `json:"mechanism"`
	ID           uint32         `json:"id"`
	Width        int            `json:"width"`
	WidthPadded  int            `json:"width_padded"`
	Multiplicity bool           `json:"multiplicity"`
	ValueBytes   int            `json:"value_bytes"`
	IndexBytes   int            `json:"index_bytes"`
	Values       []arena.Region `json:"values"`
	Indices      []arena.Region `json:"indices"`
}

// Instance is one mechanism type instantiated on a fixed set of sites.
type Instance struct {
	typ    *Type
	state  *shared.State
	dev    device.Device
	id     uint32
	width  int
	padded int

	values  *arena.Arena[float64]
	indices *arena.Arena[int32]

	params  []device.Ptr[float64]
	svars   []device.Ptr[float64]
	globals []float64
	ions    []IonEntry

	paramTable *device.Array[uint64]
	stateTable *device.Array[uint64]
	ionTable   *device.Array[uint64]

	pp       ParamPack
	reserved bool
	closed   bool
}

// Instantiate builds an instance of typ with the given id on the sites of
// pos. Every check against the schema and shared state runs before any
// device allocation; a failure after that frees what was allocated and
// releases the id.
func Instantiate(ctx context.Context, st *shared.State, id uint32, typ *Type, ov Overrides, pos Layout) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if typ == nil || typ.Schema == nil {
		return nil, fmt.Errorf("mechanism: nil type")
	}
	s := typ.Schema
	if err := s.Validate(); err != nil {
		return nil, err
	}
	dev := st.Device()
	width := len(pos.CV)
	if err := checkLayout(s, st, pos); err != nil {
		return nil, err
	}

	// Ion bindings and joined indices, host side.
	ions := make([]*shared.IonState, len(s.Ions))
	joined := make([][]int32, len(s.Ions))
	resolved := make([]string, len(s.Ions))
	for i, decl := range s.Ions {
		name := decl.Name
		if target, ok := ov.IonRebind[name]; ok {
			name = target
		}
		ion, ok := st.Ion(name)
		if !ok {
			if name != decl.Name {
				return nil, invariant(ErrMissingIon, "no ion with name '%s' (rebound from '%s')", name, decl.Name)
			}
			return nil, invariant(ErrMissingIon, "no ion with name '%s'", name)
		}
		ions[i], resolved[i] = ion, name
		if width == 0 {
			continue
		}
		haystack, err := ion.HostNodeIndex()
		if err != nil {
			return nil, fmt.Errorf("mechanism %s: read ion %q sites: %w", s.Name, name, err)
		}
		at, err := index.Into(pos.CV, haystack)
		if err != nil {
			return nil, invariant(ErrMissingIon, "ion '%s' does not cover every site of '%s': %v", name, s.Name, err)
		}
		joined[i] = make([]int32, len(at))
		for k, p := range at {
			joined[i][k] = int32(p)
		}
	}

	globals, err := resolveGlobals(s, ov.Globals)
	if err != nil {
		return nil, err
	}

	if err := st.Reserve(id); err != nil {
		return nil, invariant(ErrDuplicateID, "mechanism id %d already in use", id)
	}

	m := &Instance{
		typ:      typ,
		state:    st,
		dev:      dev,
		id:       id,
		width:    width,
		padded:   layout.PaddedWidth(width, dev.Alignment(), device.SizeOf[float64](), device.SizeOf[int32]()),
		params:   make([]device.Ptr[float64], len(s.Parameters)),
		svars:    make([]device.Ptr[float64], len(s.StateVars)),
		globals:  globals,
		ions:     make([]IonEntry, len(s.Ions)),
		reserved: true,
	}
	cleanup := func(err error) (*Instance, error) {
		_ = m.release()
		return nil, err
	}

	m.pp = ParamPack{
		Width:           width,
		MechanismID:     id,
		NCV:             st.NCV,
		NDetectors:      st.NDetector,
		VecCI:           st.CVToCell.Ptr(),
		VecDI:           st.CVToIntdom.Ptr(),
		VecT:            st.Time.Ptr(),
		VecDT:           st.DtCV.Ptr(),
		VecV:            st.Voltage.Ptr(),
		VecI:            st.CurrentDensity.Ptr(),
		VecG:            st.Conductivity.Ptr(),
		TemperatureDegC: st.TemperatureDegC.Ptr(),
		DiamUM:          st.DiamUM.Ptr(),
		TimeSinceSpike:  st.TimeSinceSpike.Ptr(),
		Events:          st.Events,
		NGlobals:        len(globals),
		NParameters:     len(s.Parameters),
		NStateVars:      len(s.StateVars),
		NIons:           len(s.Ions),
	}
	for i, ion := range ions {
		m.ions[i] = IonEntry{
			Name: s.Ions[i].Name,
			View: IonView{
				Ion:               resolved[i],
				CurrentDensity:    ion.IX.Ptr(),
				ReversalPotential: ion.EX.Ptr(),
				InternalConc:      ion.Xi.Ptr(),
				ExternalConc:      ion.Xo.Ptr(),
				Charge:            ion.ChargeData.Ptr(),
			},
		}
	}
	if width == 0 {
		return m, nil
	}

	// Value buffer: weight, parameters, state, then the unpadded globals.
	m.values, err = arena.New[float64](dev, width, m.padded, 1+len(s.Parameters)+len(s.StateVars), len(globals))
	if err != nil {
		return cleanup(fmt.Errorf("mechanism %s: value buffer: %w", s.Name, err))
	}
	if err := m.values.Fill(math.NaN()); err != nil {
		return cleanup(err)
	}
	if len(pos.Weight) > 0 {
		m.pp.Weight, err = m.values.AppendChunk("weight", pos.Weight)
	} else {
		m.pp.Weight, err = m.values.AppendConst("weight", 1)
	}
	if err != nil {
		return cleanup(err)
	}
	for i, f := range s.Parameters {
		if m.params[i], err = m.values.AppendConst(f.Name, f.Default); err != nil {
			return cleanup(err)
		}
	}
	for i, f := range s.StateVars {
		if m.svars[i], err = m.values.AppendConst(f.Name, f.Default); err != nil {
			return cleanup(err)
		}
	}
	if m.pp.Globals, err = m.values.AppendScalars("globals", globals); err != nil {
		return cleanup(err)
	}

	// Index buffer: node index, one joined index per ion, multiplicity.
	mult := usesMultiplicity(pos.Multiplicity)
	chunks := 1 + len(s.Ions)
	if mult {
		chunks++
	}
	m.indices, err = arena.New[int32](dev, width, m.padded, chunks, 0)
	if err != nil {
		return cleanup(fmt.Errorf("mechanism %s: index buffer: %w", s.Name, err))
	}
	if err := m.indices.Fill(0); err != nil {
		return cleanup(err)
	}
	if m.pp.NodeIndex, err = m.indices.AppendChunk("node_index", pos.CV); err != nil {
		return cleanup(err)
	}
	for i := range s.Ions {
		if m.ions[i].Index, err = m.indices.AppendChunk("ion_"+s.Ions[i].Name, joined[i]); err != nil {
			return cleanup(err)
		}
	}
	if mult {
		if m.pp.Multiplicity, err = m.indices.AppendChunk("multiplicity", pos.Multiplicity); err != nil {
			return cleanup(err)
		}
	}

	// Everything the tables address must have landed before they are read.
	if err := dev.Synchronize(); err != nil {
		return cleanup(err)
	}
	if err := m.uploadTables(); err != nil {
		return cleanup(fmt.Errorf("mechanism %s: upload tables: %w", s.Name, err))
	}

	logger.FromContext(ctx).Debug("mechanism tables",
		"trace", uuid.NewString(),
		"mechanism", s.Name,
		"id", id,
		"device", dev.Name(),
		"width", width,
		"width_padded", m.padded,
		"values", m.pp.Weight,
		"value_bytes", m.values.Bytes(),
		"indices", m.pp.NodeIndex,
		"index_bytes", m.indices.Bytes(),
		"parameters", m.pp.Parameters,
		"state", m.pp.StateVars,
		"ion_states", m.pp.IonStates,
		"globals", m.pp.Globals,
	)
	return m, nil
}

func checkLayout(s *schema.Mechanism, st *shared.State, pos Layout) error {
	width := len(pos.CV)
	if n := len(pos.Weight); n != 0 && n != width {
		return invariant(ErrLayout, "'%s' has %d weights for %d sites", s.Name, n, width)
	}
	if n := len(pos.Multiplicity); n != 0 && n != width {
		return invariant(ErrLayout, "'%s' has %d multiplicities for %d sites", s.Name, n, width)
	}
	for i, cv := range pos.CV {
		if int(cv) < 0 || int(cv) >= st.NCV {
			return invariant(ErrLayout, "'%s' site %d refers to control volume %d of %d", s.Name, i, cv, st.NCV)
		}
	}
	for i, k := range pos.Multiplicity {
		if k < 1 {
			return invariant(ErrLayout, "'%s' site %d has multiplicity %d", s.Name, i, k)
		}
	}
	return nil
}

// resolveGlobals applies overrides to the schema defaults. An override only
// fails once the whole global list has been searched.
func resolveGlobals(s *schema.Mechanism, overrides map[string]float64) ([]float64, error) {
	globals := make([]float64, len(s.Globals))
	for i, g := range s.Globals {
		globals[i] = g.Default
	}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		i := s.GlobalIndex(name)
		if i < 0 {
			return nil, invariant(ErrUnknownGlobal, "no such mechanism global '%s'", name)
		}
		globals[i] = overrides[name]
	}
	return globals, nil
}

func usesMultiplicity(m []int32) bool {
	return slices.ContainsFunc(m, func(k int32) bool { return k > 1 })
}

// uploadTables builds the host address tables and mirrors them to the device.
func (m *Instance) uploadTables() (err error) {
	addrs := func(ps []device.Ptr[float64]) []uint64 {
		out := make([]uint64, len(ps))
		for i, p := range ps {
			out[i] = p.Addr()
		}
		return out
	}
	if m.paramTable, err = device.FromHost(m.dev, addrs(m.params)); err != nil {
		return err
	}
	if m.stateTable, err = device.FromHost(m.dev, addrs(m.svars)); err != nil {
		return err
	}
	records := make([]uint64, 0, IonRecordWords*len(m.ions))
	for _, ion := range m.ions {
		records = append(records,
			ion.View.CurrentDensity.Addr(),
			ion.View.ReversalPotential.Addr(),
			ion.View.InternalConc.Addr(),
			ion.View.ExternalConc.Addr(),
			ion.View.Charge.Addr(),
			ion.Index.Addr(),
		)
	}
	if m.ionTable, err = device.FromHost(m.dev, records); err != nil {
		return err
	}
	m.pp.Parameters = m.paramTable.Ptr()
	m.pp.StateVars = m.stateTable.Ptr()
	m.pp.IonStates = m.ionTable.Ptr()
	return nil
}

func (m *Instance) ID() uint32 { return m.id }

func (m *Instance) Name() string { return m.typ.Schema.Name }

func (m *Instance) Kind() schema.Kind { return m.typ.Schema.Kind }

// Width is the number of sites the instance occupies.
func (m *Instance) Width() int { return m.width }

// WidthPadded is the per-site chunk stride of both buffers.
func (m *Instance) WidthPadded() int { return m.padded }

// ParamPack returns the pack handed to kernels. Callers must not modify it.
func (m *Instance) ParamPack() *ParamPack { return &m.pp }

// SetField copies values into the named parameter or state variable.
func (m *Instance) SetField(name string, values []float64) error {
	if m.closed {
		return ErrClosed
	}
	if len(values) != m.width {
		return invariant(ErrFieldSize, "mechanism field size mismatch for '%s': expected %d values, got %d", name, m.width, len(values))
	}
	p, ok := m.FieldData(name)
	if !ok {
		return invariant(ErrUnknownField, "no such mechanism field '%s'", name)
	}
	if m.width == 0 {
		return nil
	}
	return device.Write(p, values)
}

// FieldData returns the device region of the named field. Parameters are
// searched before state variables.
func (m *Instance) FieldData(name string) (device.Ptr[float64], bool) {
	s := m.typ.Schema
	for i, f := range s.Parameters {
		if f.Name == name {
			return m.params[i], true
		}
	}
	for i, f := range s.StateVars {
		if f.Name == name {
			return m.svars[i], true
		}
	}
	return device.Ptr[float64]{}, false
}

// FieldValues reads the named field back from the device.
func (m *Instance) FieldValues(name string) ([]float64, error) {
	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.FieldData(name)
	if !ok {
		return nil, invariant(ErrUnknownField, "no such mechanism field '%s'", name)
	}
	if m.width == 0 {
		return []float64{}, nil
	}
	return device.Read(p, m.width)
}

// FieldTable lists every parameter then every state variable.
func (m *Instance) FieldTable() []FieldEntry {
	s := m.typ.Schema
	out := make([]FieldEntry, 0, len(s.Parameters)+len(s.StateVars))
	for i, f := range s.Parameters {
		out = append(out, FieldEntry{Name: f.Name, Data: m.params[i], Default: f.Default})
	}
	return append(out, m.StateTable()...)
}

// StateTable lists the state variables.
func (m *Instance) StateTable() []FieldEntry {
	s := m.typ.Schema
	out := make([]FieldEntry, len(s.StateVars))
	for i, f := range s.StateVars {
		out[i] = FieldEntry{Name: f.Name, Data: m.svars[i], Default: f.Default}
	}
	return out
}

// GlobalTable lists the resolved globals in schema order.
func (m *Instance) GlobalTable() []GlobalEntry {
	s := m.typ.Schema
	out := make([]GlobalEntry, len(s.Globals))
	for i, g := range s.Globals {
		out[i] = GlobalEntry{Name: g.Name, Value: m.globals[i]}
	}
	return out
}

// IonTable lists one entry per declared ion, keyed by the declared name.
func (m *Instance) IonTable() []IonEntry {
	return slices.Clone(m.ions)
}

// Initialize runs the type's init kernel and scales state by multiplicity.
// It may run any number of times; only buffer contents change.
func (m *Instance) Initialize(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	m.pp.VecT = m.state.Time.Ptr()
	if m.width == 0 {
		return nil
	}
	if m.typ.Init != nil {
		if err := m.typ.Init.Run(ctx, m.dev, &m.pp); err != nil {
			return fmt.Errorf("mechanism %s: init kernel: %w", m.Name(), err)
		}
	} else if err := m.resetState(); err != nil {
		return err
	}
	if err := m.dev.Synchronize(); err != nil {
		return err
	}
	if !m.pp.UsesMultiplicity() {
		return nil
	}
	for _, p := range m.svars {
		if err := device.MultiplyInPlace(m.dev, p, m.pp.Multiplicity, m.width); err != nil {
			return fmt.Errorf("mechanism %s: scale by multiplicity: %w", m.Name(), err)
		}
	}
	return nil
}

// resetState refills every state variable with its schema default.
func (m *Instance) resetState() error {
	for i, f := range m.typ.Schema.StateVars {
		if err := device.Fill(m.svars[i], m.width, f.Default); err != nil {
			return fmt.Errorf("mechanism %s: reset %s: %w", m.Name(), f.Name, err)
		}
	}
	return nil
}

// Layout reports the regions of both buffers.
func (m *Instance) Layout() Report {
	r := Report{
		Mechanism:    m.Name(),
		ID:           m.id,
		Width:        m.width,
		WidthPadded:  m.padded,
		Multiplicity: m.pp.UsesMultiplicity(),
		Values:       []arena.Region{},
		Indices:      []arena.Region{},
	}
	if m.values != nil {
		r.ValueBytes = m.values.Bytes()
		r.Values = m.values.Regions()
	}
	if m.indices != nil {
		r.IndexBytes = m.indices.Bytes()
		r.Indices = m.indices.Regions()
	}
	return r
}

// Close frees both buffers and the device tables and releases the id.
func (m *Instance) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.release()
}

func (m *Instance) release() error {
	err := errors.Join(
		m.values.Free(),
		m.indices.Free(),
		m.paramTable.Free(),
		m.stateTable.Free(),
		m.ionTable.Free(),
	)
	if m.reserved {
		m.state.Release(m.id)
		m.reserved = false
	}
	m.pp = ParamPack{Width: m.width, MechanismID: m.id}
	return err
}
