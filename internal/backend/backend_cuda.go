//go:build cuda

package backend

import (
	"github.com/samcharles93/mechpack/internal/backend/cuda"
	"github.com/samcharles93/mechpack/internal/device"
)

const cudaEnabled = true

func newCUDA() (device.Device, error) {
	return cuda.New()
}
