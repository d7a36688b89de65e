// Package ecs is the Go-facing side of the host boundary: a component
// registry that caches host ids, typed entity and singleton accessors,
// relationship edges, and query and system builders over host iteration.
//
// A World is an explicit context object. It is not safe for concurrent use;
// the host owns the tick loop and calls back into the world on one goroutine.
package ecs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/event"
	"github.com/toxoid/toxoid-go/internal/core/host"
)

type (
	EntityID    = host.EntityID
	ComponentID = host.ComponentID
)

// World binds the registry, relation table and event bus to one host.
type World struct {
	id   uuid.UUID
	log  *zap.Logger
	host host.Host

	reg        *registry
	rel        *relations
	singletons map[ComponentID]struct{}
	bus        *event.Bus
	childOf    ComponentID

	queries int
	systems []string
	ticks   uint64

	// epoch advances on every structural change made outside iteration and
	// whenever the outermost iteration or tick ends. Views remember the
	// epoch they were taken at and go stale when it moves.
	epoch uint64
	depth int

	// Hosts defer structural changes made during iteration. pending holds
	// the presence each (entity, component) will have once they apply, and
	// doomed the entities whose destroy is queued.
	pending map[pendingKey]bool
	doomed  map[EntityID]struct{}

	poisoned error
	closed   bool
}

// NewWorld creates a world over h and registers the built-in ChildOf relation.
func NewWorld(h host.Host, log *zap.Logger) (*World, error) {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.New()
	w := &World{
		id:         id,
		log:        log.With(zap.String("world", id.String())),
		host:       h,
		reg:        newRegistry(),
		rel:        newRelations(),
		singletons: make(map[ComponentID]struct{}),
		bus:        event.NewBus(),
		epoch:      1,
		pending:    make(map[pendingKey]bool),
		doomed:     make(map[EntityID]struct{}),
	}
	childOf, err := RegisterRelation[ChildOf](w)
	if err != nil {
		return nil, err
	}
	w.childOf = childOf
	w.log.Info("world created")
	return w, nil
}

func (w *World) ID() uuid.UUID      { return w.id }
func (w *World) Log() *zap.Logger   { return w.log }
func (w *World) Events() *event.Bus { return w.bus }
func (w *World) Host() host.Host    { return w.host }

// Iterating reports whether a query iteration or tick is in progress.
func (w *World) Iterating() bool { return w.depth > 0 }

// Poisoned returns the boundary mismatch that halted the world, if any.
func (w *World) Poisoned() error { return w.poisoned }

func (w *World) check(op string) error {
	if w.closed {
		return newError(BoundaryMismatch, op, "", ErrClosed)
	}
	if w.poisoned != nil {
		return fmt.Errorf("%s: world halted: %w", op, w.poisoned)
	}
	return nil
}

// between fails when op is attempted inside an iteration or tick.
func (w *World) between(op, name string) error {
	if err := w.check(op); err != nil {
		return err
	}
	if w.depth > 0 {
		return newError(BoundaryMismatch, op, name, ErrMidIteration)
	}
	return nil
}

// poison halts the world after a boundary mismatch. The first cause wins.
func (w *World) poison(err *Error) *Error {
	if w.poisoned == nil && err.Kind == BoundaryMismatch && !errors.Is(err, ErrMidIteration) {
		w.poisoned = err
		w.log.Error("boundary mismatch, world halted",
			zap.String("op", err.Op),
			zap.String("name", err.Name),
			zap.Error(err.Err),
		)
	}
	return err
}

// fail classifies a host error and poisons the world when it is fatal to it.
func (w *World) fail(op, name string, err error) error {
	return w.poison(classify(op, name, err))
}

func (w *World) structural() {
	if w.depth == 0 {
		w.epoch++
	}
}

func (w *World) enter() { w.depth++ }

func (w *World) leave() {
	w.depth--
	if w.depth == 0 {
		w.epoch++
		for e := range w.doomed {
			w.rel.dropSource(e)
			w.rel.dropTarget(e)
		}
		clear(w.doomed)
		clear(w.pending)
	}
}

// Progress runs one host tick, then delivers the events emitted during it.
func (w *World) Progress(dt time.Duration) error {
	if err := w.between("progress", ""); err != nil {
		return err
	}
	w.ticks++
	w.enter()
	err := w.host.Progress(dt)
	w.leave()
	w.bus.SwapBuffers()
	w.bus.DispatchAll()
	if err == nil {
		return nil
	}
	var ee *Error
	if !errors.As(err, &ee) && (errors.Is(err, host.ErrRejected) || errors.Is(err, host.ErrClosed)) {
		return w.fail("progress", "", err)
	}
	// System errors abort the tick but leave the world usable.
	return fmt.Errorf("progress: %w", err)
}

// Ticks is the number of Progress calls so far, including the running one.
func (w *World) Ticks() uint64 { return w.ticks }

// Systems lists registered system names in registration order.
func (w *World) Systems() []string { return append([]string(nil), w.systems...) }

// Close releases the host. Later calls fail.
func (w *World) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.log.Info("world closed", zap.Int("components", w.reg.len()))
	return w.host.Close()
}
