package mechanism

import (
	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/shared"
)

// IonRecordWords is the number of device addresses per ion in the ion
// state table: current density, reversal potential, internal and external
// concentration, charge, and the mechanism-to-ion index.
const IonRecordWords = 6

// Ion record word offsets.
const (
	IonCurrentDensity = iota
	IonReversalPotential
	IonInternalConc
	IonExternalConc
	IonCharge
	IonIndex
)

// ParamPack is the flat block of device addresses and scalars a kernel runs
// against. Its layout is fixed for the lifetime of an instance.
type ParamPack struct {
	Width       int
	MechanismID uint32
	NCV         int
	NDetectors  int

	// Shared state, indexed by site.
	VecCI           device.Ptr[int32]
	VecDI           device.Ptr[int32]
	VecT            device.Ptr[float64]
	VecDT           device.Ptr[float64]
	VecV            device.Ptr[float64]
	VecI            device.Ptr[float64]
	VecG            device.Ptr[float64]
	TemperatureDegC device.Ptr[float64]
	DiamUM          device.Ptr[float64]
	TimeSinceSpike  device.Ptr[float64]
	Events          *shared.EventStream

	// Instance data, indexed by mechanism site.
	NodeIndex    device.Ptr[int32]
	Multiplicity device.Ptr[int32]
	Weight       device.Ptr[float64]
	Globals      device.Ptr[float64]
	NGlobals     int

	// Device-resident address tables.
	Parameters  device.Ptr[uint64]
	NParameters int
	StateVars   device.Ptr[uint64]
	NStateVars  int
	IonStates   device.Ptr[uint64]
	NIons       int
}

// UsesMultiplicity reports whether state must be scaled per site after
// initialisation.
func (p *ParamPack) UsesMultiplicity() bool {
	return !p.Multiplicity.IsNil()
}
