package system

import (
	"time"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// System is one unit of per-tick work owned by a scheduler.
type System interface {
	Name() string
	Phase() host.Phase
	Update(dt time.Duration) error
}
