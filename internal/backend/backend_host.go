//go:build !cuda

package backend

import (
	"errors"

	"github.com/samcharles93/mechpack/internal/device"
)

const cudaEnabled = false

var errCUDAUnavailable = errors.New("cuda backend is not available in this build")

func newCUDA() (device.Device, error) {
	return nil, errCUDAUnavailable
}
