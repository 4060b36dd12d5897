// Package backend selects the device mechanism memory is packed on.
package backend

import (
	"fmt"
	"strings"

	"github.com/samcharles93/mechpack/internal/device"
)

const (
	Host = "host"
	CUDA = "cuda"
	Auto = "auto"
)

func Normalize(name string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(name))
	switch backend {
	case "":
		return Auto, nil
	case "cpu":
		return Host, nil
	case Host, CUDA, Auto:
		return backend, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, host, or cuda)", backend)
	}
}

// New opens the named backend. alignment applies to the host device only.
// Auto prefers CUDA when this build has it and a device is present.
func New(name string, alignment int) (device.Device, error) {
	backend, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch backend {
	case Host:
		return device.NewHost(alignment), nil
	case CUDA:
		return newCUDA()
	default:
		if cudaEnabled {
			if dev, err := newCUDA(); err == nil {
				return dev, nil
			}
		}
		return device.NewHost(alignment), nil
	}
}
