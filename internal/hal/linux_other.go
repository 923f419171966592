//go:build !linux

package hal

import (
	"fmt"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

func openLinux(config.HALConfig) (Backend, error) {
	return nil, fmt.Errorf("%w: linux backend is unavailable on this platform", ErrUnknownBackend)
}
