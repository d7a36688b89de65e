package ecs

import (
	"fmt"

	"github.com/toxoid/toxoid-go/internal/core/event"
)

func entityName(e EntityID) string { return fmt.Sprintf("entity %d", e) }

type pendingKey struct {
	entity    EntityID
	component ComponentID
}

// attached reports whether c is on e once queued changes apply.
func (w *World) attached(e EntityID, c ComponentID) bool {
	if w.depth > 0 {
		if has, ok := w.pending[pendingKey{e, c}]; ok {
			return has
		}
	}
	return w.host.EntityHas(e, c)
}

func (w *World) intend(e EntityID, c ComponentID, has bool) {
	if w.depth > 0 {
		w.pending[pendingKey{e, c}] = has
	}
}

// destroying reports whether e has a destroy queued in this iteration.
func (w *World) destroying(e EntityID) bool {
	_, ok := w.doomed[e]
	return ok
}

// NewEntity asks the host for a fresh entity.
func (w *World) NewEntity() (EntityID, error) {
	if err := w.between("new entity", ""); err != nil {
		return 0, err
	}
	e, err := w.host.EntityNew()
	if err != nil {
		return 0, w.fail("new entity", "", err)
	}
	if e == 0 {
		return 0, w.poison(newError(BoundaryMismatch, "new entity", "", fmt.Errorf("host returned entity id 0")))
	}
	w.structural()
	event.Emit(w.bus, event.EntityCreated{Entity: e})
	return e, nil
}

// Alive reports whether e exists on the host.
func (w *World) Alive(e EntityID) bool {
	return w.check("alive") == nil && w.host.EntityAlive(e)
}

// AddID attaches component id to e with zeroed fields. Adding a component
// that is already attached leaves its values untouched.
func (w *World) AddID(e EntityID, id ComponentID) error {
	if err := w.check("add"); err != nil {
		return err
	}
	ent, err := w.entryByID("add", id)
	if err != nil {
		return err
	}
	return w.add(e, ent)
}

func (w *World) add(e EntityID, ent *entry) error {
	if ent.relation {
		return fmt.Errorf("add %s: use Relate: %w", ent.desc.Name, ErrNotRelation)
	}
	if !w.host.EntityAlive(e) || w.destroying(e) {
		return newError(NotAttached, "add", ent.desc.Name, fmt.Errorf("%s is not alive", entityName(e)))
	}
	if w.attached(e, ent.id) {
		return nil
	}
	if err := w.host.EntityAdd(e, ent.id); err != nil {
		return w.fail("add", ent.desc.Name, err)
	}
	w.intend(e, ent.id, true)
	w.structural()
	event.Emit(w.bus, event.ComponentAdded{Entity: e, Component: ent.id, Name: ent.desc.Name})
	return nil
}

// Add attaches T to e, registering T first if needed.
func Add[T any](w *World, e EntityID) error {
	ent, err := entryOf[T](w)
	if err != nil {
		return err
	}
	return w.add(e, ent)
}

// Set attaches T to e if needed and stores v.
func Set[T any](w *World, e EntityID, v T) error {
	if err := Add[T](w, e); err != nil {
		return err
	}
	r, err := Get[T](w, e)
	if err != nil {
		return err
	}
	return r.Store(v)
}

// RemoveID detaches id from e. Removing an absent component is a no-op.
func (w *World) RemoveID(e EntityID, id ComponentID) error {
	if err := w.check("remove"); err != nil {
		return err
	}
	ent, err := w.entryByID("remove", id)
	if err != nil {
		return err
	}
	return w.remove(e, ent)
}

func (w *World) remove(e EntityID, ent *entry) error {
	if w.destroying(e) || !w.attached(e, ent.id) {
		return nil
	}
	if err := w.host.EntityRemove(e, ent.id); err != nil {
		return w.fail("remove", ent.desc.Name, err)
	}
	w.intend(e, ent.id, false)
	w.structural()
	event.Emit(w.bus, event.ComponentRemoved{Entity: e, Component: ent.id, Name: ent.desc.Name})
	return nil
}

// Remove detaches T from e.
func Remove[T any](w *World, e EntityID) error {
	ent, err := entryOf[T](w)
	if err != nil {
		return err
	}
	return w.remove(e, ent)
}

// HasID reports whether id is attached to e.
func (w *World) HasID(e EntityID, id ComponentID) bool {
	return w.check("has") == nil && w.host.EntityHas(e, id)
}

// Has reports whether T is attached to e. It never registers T.
func Has[T any](w *World, e EntityID) bool {
	id, ok := ID[T](w)
	return ok && w.HasID(e, id)
}

// GetID returns an accessor over the id row of e. When the component is not
// attached the accessor is empty and the error matches ErrNotAttached.
func (w *World) GetID(e EntityID, id ComponentID) (Accessor, error) {
	if err := w.check("get"); err != nil {
		return Accessor{}, err
	}
	ent, err := w.entryByID("get", id)
	if err != nil {
		return Accessor{}, err
	}
	return w.get(e, ent)
}

func (w *World) get(e EntityID, ent *entry) (Accessor, error) {
	if !w.host.EntityHas(e, ent.id) {
		return Accessor{}, newError(NotAttached, "get", ent.desc.Name, fmt.Errorf("%s", entityName(e)))
	}
	v, err := w.host.EntityGet(e, ent.id)
	if err != nil {
		return Accessor{}, w.fail("get", ent.desc.Name, err)
	}
	if uint32(len(v.Data)) != ent.desc.Size() || v.Data == nil {
		return Accessor{}, w.poison(newError(BoundaryMismatch, "get", ent.desc.Name,
			fmt.Errorf("host view of %d bytes, declared layout %d", len(v.Data), ent.desc.Size())))
	}
	return w.accessor(ent, e, v), nil
}

// Get returns a typed ref to the T row of e. When T is not attached the ref
// is empty and the error matches ErrNotAttached; callers decide the fallback.
func Get[T any](w *World, e EntityID) (Ref[T], error) {
	ent, err := entryOf[T](w)
	if err != nil {
		return Ref[T]{}, err
	}
	acc, err := w.get(e, ent)
	if err != nil {
		return Ref[T]{}, err
	}
	return Ref[T]{acc: acc}, nil
}

// Destroy deletes e. Edges where e is the source are dropped, and children
// that pointed at e lose that edge and become roots; they are not destroyed.
func (w *World) Destroy(e EntityID) error {
	if err := w.check("destroy"); err != nil {
		return err
	}
	if !w.host.EntityAlive(e) || w.destroying(e) {
		return newError(NotAttached, "destroy", entityName(e), nil)
	}
	if err := w.host.EntityDestroy(e); err != nil {
		return w.fail("destroy", entityName(e), err)
	}
	if w.depth > 0 {
		w.doomed[e] = struct{}{}
	}
	w.rel.dropSource(e)
	for _, edge := range w.rel.dropTarget(e) {
		if err := w.host.EntityUnrelate(edge.source, edge.relation); err != nil {
			return w.fail("destroy", entityName(e), err)
		}
		event.Emit(w.bus, event.RelationChanged{Entity: edge.source, Relation: edge.relation})
	}
	w.structural()
	event.Emit(w.bus, event.EntityDestroyed{Entity: e})
	return nil
}
