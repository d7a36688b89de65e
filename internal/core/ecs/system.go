package ecs

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// SystemBuilder binds a query to a per-batch callback run by the host
// scheduler.
type SystemBuilder struct {
	w     *World
	name  string
	terms []Term
	phase host.Phase
}

// System starts a system builder. Systems default to the update phase.
func (w *World) System(name string) *SystemBuilder {
	return &SystemBuilder{w: w, name: name, phase: host.PhaseUpdate}
}

func (b *SystemBuilder) With(terms ...Term) *SystemBuilder {
	b.terms = append(b.terms, terms...)
	return b
}

// Phase selects the scheduler phase. Hosts without phases ignore it.
func (b *SystemBuilder) Phase(p host.Phase) *SystemBuilder {
	b.phase = p
	return b
}

// Build registers the system. fn runs once per matching batch per tick with
// the batch already positioned. Returning an error aborts the tick.
func (b *SystemBuilder) Build(fn func(*Batch) error) (*Query, error) {
	w := b.w
	if fn == nil {
		return nil, fmt.Errorf("system %s: nil callback", b.name)
	}
	q, err := w.buildQuery("system "+b.name, b.terms)
	if err != nil {
		return nil, err
	}
	cb := func(it host.IterHandle, dt time.Duration) error {
		// Hosts may apply deferred changes between system runs, so views
		// from an earlier callback must not outlive it.
		w.epoch++
		batch := &Batch{w: w, q: q, it: it, dt: dt}
		if err := batch.position(); err != nil {
			return err
		}
		return fn(batch)
	}
	if _, err := w.host.RegisterSystem(b.name, q.handle, b.phase, cb); err != nil {
		return nil, w.fail("system", b.name, err)
	}
	w.systems = append(w.systems, b.name)
	w.log.Debug("system registered",
		zap.String("name", b.name),
		zap.Stringer("phase", b.phase),
		zap.Stringer("query", q),
	)
	return q, nil
}
