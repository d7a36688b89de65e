package system

import (
	"fmt"
	"sort"
	"time"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// Runner executes systems in phase order each tick. Within a phase, systems
// run in registration order.
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Len() int { return len(r.systems) }

// Tick runs every system once. The first failing system aborts the tick.
func (r *Runner) Tick(dt time.Duration) error {
	r.ensureSorted()
	for _, s := range r.systems {
		if err := s.Update(dt); err != nil {
			return fmt.Errorf("system %s: %w", s.Name(), err)
		}
	}
	return nil
}

// TickPhase runs only the systems registered for phase.
func (r *Runner) TickPhase(phase host.Phase, dt time.Duration) error {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() != phase {
			continue
		}
		if err := s.Update(dt); err != nil {
			return fmt.Errorf("system %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Order returns system names in execution order.
func (r *Runner) Order() []string {
	r.ensureSorted()
	names := make([]string, len(r.systems))
	for i, s := range r.systems {
		names[i] = s.Name()
	}
	return names
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
