//go:build cuda

package cuda

import "fmt"

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cuda %s failed: %w", op, err)
}
