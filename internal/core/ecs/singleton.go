package ecs

import "fmt"

// AddSingleton registers T if needed and creates its single world instance.
// Calling it again is a no-op and keeps the stored value.
func AddSingleton[T any](w *World) (ComponentID, error) {
	if err := w.check("add singleton"); err != nil {
		return 0, err
	}
	ent, err := entryOf[T](w)
	if err != nil {
		return 0, err
	}
	return ent.id, w.addSingleton(ent)
}

// AddSingletonID is AddSingleton for a component known only by id.
func (w *World) AddSingletonID(id ComponentID) error {
	if err := w.check("add singleton"); err != nil {
		return err
	}
	ent, err := w.entryByID("add singleton", id)
	if err != nil {
		return err
	}
	return w.addSingleton(ent)
}

func (w *World) addSingleton(ent *entry) error {
	if ent.relation {
		return fmt.Errorf("add singleton %s: %w", ent.desc.Name, ErrNotRelation)
	}
	if _, ok := w.singletons[ent.id]; ok {
		return nil
	}
	if err := w.host.SingletonAdd(ent.id); err != nil {
		return w.fail("add singleton", ent.desc.Name, err)
	}
	w.singletons[ent.id] = struct{}{}
	return nil
}

// GetSingleton returns a ref to the world instance of T. Before AddSingleton
// the ref is empty and the error matches ErrNotAttached.
func GetSingleton[T any](w *World) (Ref[T], error) {
	if err := w.check("get singleton"); err != nil {
		return Ref[T]{}, err
	}
	ent, err := entryOf[T](w)
	if err != nil {
		return Ref[T]{}, err
	}
	acc, err := w.singleton(ent)
	return Ref[T]{acc: acc}, err
}

// SingletonID returns an accessor over the world instance of id.
func (w *World) SingletonID(id ComponentID) (Accessor, error) {
	if err := w.check("get singleton"); err != nil {
		return Accessor{}, err
	}
	ent, err := w.entryByID("get singleton", id)
	if err != nil {
		return Accessor{}, err
	}
	return w.singleton(ent)
}

func (w *World) singleton(ent *entry) (Accessor, error) {
	if _, ok := w.singletons[ent.id]; !ok {
		return Accessor{}, newError(NotAttached, "get singleton", ent.desc.Name, nil)
	}
	v, err := w.host.SingletonGet(ent.id)
	if err != nil {
		return Accessor{}, w.fail("get singleton", ent.desc.Name, err)
	}
	if uint32(len(v.Data)) != ent.desc.Size() || v.Data == nil {
		return Accessor{}, w.poison(newError(BoundaryMismatch, "get singleton", ent.desc.Name,
			fmt.Errorf("host view of %d bytes, declared layout %d", len(v.Data), ent.desc.Size())))
	}
	return w.accessor(ent, 0, v), nil
}
