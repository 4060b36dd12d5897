package mechanism

import (
	"context"

	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/schema"
)

// Kernel runs a mechanism's generated code over every site of a parameter
// pack. Implementations dereference only what the pack addresses.
type Kernel interface {
	Run(ctx context.Context, dev device.Device, pp *ParamPack) error
}

// KernelFunc adapts a function to Kernel.
type KernelFunc func(ctx context.Context, dev device.Device, pp *ParamPack) error

func (f KernelFunc) Run(ctx context.Context, dev device.Device, pp *ParamPack) error {
	return f(ctx, dev, pp)
}

// Type is a mechanism type: the schema shared by every instance and its
// initialisation kernel.
type Type struct {
	Schema *schema.Mechanism
	Init   Kernel
}
