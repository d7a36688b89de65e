//go:build !((darwin || linux) && (amd64 || arm64))

package native

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// Host is unavailable on this platform.
type Host struct {
	host.Host
}

// Open always fails on platforms without purego callback support.
func Open(path string, _ *zap.Logger) (*Host, error) {
	return nil, fmt.Errorf("open engine %s on %s/%s: %w", path, runtime.GOOS, runtime.GOARCH, host.ErrUnresolved)
}
