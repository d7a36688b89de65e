package ecs

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

// entry is everything the world knows about one registered component.
type entry struct {
	id       ComponentID
	desc     schema.Descriptor
	typ      reflect.Type // nil for components defined only by name
	codec    *codec
	relation bool
}

// registry caches host ids by Go type and by name, so repeated registration
// of the same logical component never crosses the boundary twice.
type registry struct {
	byType map[reflect.Type]*entry
	byName map[string]*entry
	byID   map[ComponentID]*entry
	order  []*entry
}

func newRegistry() *registry {
	return &registry{
		byType: make(map[reflect.Type]*entry, 64),
		byName: make(map[string]*entry, 64),
		byID:   make(map[ComponentID]*entry, 64),
	}
}

func (r *registry) len() int { return len(r.order) }

// Register registers the Go struct T and returns its component id. Field
// names and kinds are derived from the struct; a struct{} type is a tag.
func Register[T any](w *World) (ComponentID, error) {
	e, err := w.registerType(reflect.TypeFor[T]())
	if err != nil {
		return 0, err
	}
	return e.id, nil
}

func (w *World) registerType(t reflect.Type) (*entry, error) {
	if err := w.check("register"); err != nil {
		return nil, err
	}
	if e, ok := w.reg.byType[t]; ok {
		return e, nil
	}
	def, err := schema.FromType(t)
	if err != nil {
		return nil, newError(RegistrationFailure, "register", t.String(), err)
	}
	d, err := schema.Describe(def)
	if err != nil {
		return nil, newError(RegistrationFailure, "register", def.Name, err)
	}
	if prev, ok := w.reg.byName[d.Name]; ok && prev.typ != nil && prev.typ != t {
		return nil, newError(SchemaCollision, "register", d.Name,
			fmt.Errorf("already bound to %v, cannot bind %v", prev.typ, t))
	}
	return w.bind(t, d)
}

// bind registers d and ties it to t. The codec is checked first so a
// mismatch never reaches the host or the name cache.
func (w *World) bind(t reflect.Type, d schema.Descriptor) (*entry, error) {
	c, err := newCodec(t, &d)
	if err != nil {
		return nil, newError(RegistrationFailure, "register", d.Name, err)
	}
	e, err := w.registerDescriptor(d)
	if err != nil {
		return nil, err
	}
	e.typ = t
	e.codec = c
	w.reg.byType[t] = e
	return e, nil
}

// RegisterDescriptor registers a descriptor that has no Go type, such as one
// loaded from a schema file or a script. Registering an identical descriptor
// again returns the cached id; a different shape under the same name is a
// collision.
func (w *World) RegisterDescriptor(d schema.Descriptor) (ComponentID, error) {
	if err := w.check("register"); err != nil {
		return 0, err
	}
	e, err := w.registerDescriptor(d)
	if err != nil {
		return 0, err
	}
	return e.id, nil
}

// RegisterDefinitions builds and registers a batch of definitions.
func (w *World) RegisterDefinitions(defs []schema.Definition) ([]ComponentID, error) {
	descs, err := schema.Build(defs)
	if err != nil {
		return nil, newError(SchemaCollision, "build", "", err)
	}
	ids := make([]ComponentID, len(descs))
	for i, d := range descs {
		if ids[i], err = w.RegisterDescriptor(d); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (w *World) registerDescriptor(d schema.Descriptor) (*entry, error) {
	if prev, ok := w.reg.byName[d.Name]; ok {
		if prev.desc.Fingerprint != d.Fingerprint {
			return nil, newError(SchemaCollision, "register", d.Name,
				fmt.Errorf("fingerprint %016x differs from registered %016x", d.Fingerprint, prev.desc.Fingerprint))
		}
		return prev, nil
	}
	if err := w.between("register", d.Name); err != nil {
		return nil, err
	}

	id, err := w.host.RegisterComponent(d.Name, d.FieldNames, d.TypeTags())
	if err != nil {
		if errors.Is(err, host.ErrRejected) {
			return nil, newError(RegistrationFailure, "register", d.Name, err)
		}
		return nil, w.fail("register", d.Name, err)
	}
	if id == 0 {
		return nil, w.poison(newError(BoundaryMismatch, "register", d.Name, fmt.Errorf("host returned component id 0")))
	}
	if other, ok := w.reg.byID[id]; ok {
		return nil, w.poison(newError(BoundaryMismatch, "register", d.Name,
			fmt.Errorf("host reused id %d of %s", id, other.desc.Name)))
	}
	size, err := w.host.ComponentSize(id)
	if err != nil {
		return nil, w.fail("register", d.Name, err)
	}
	if size != d.Size() {
		return nil, w.poison(newError(BoundaryMismatch, "register", d.Name,
			fmt.Errorf("host row size %d, declared layout %d", size, d.Size())))
	}

	e := &entry{id: id, desc: d}
	w.reg.byName[d.Name] = e
	w.reg.byID[id] = e
	w.reg.order = append(w.reg.order, e)
	w.log.Debug("component registered",
		zap.String("name", d.Name),
		zap.Uint32("id", uint32(id)),
		zap.Uint32("size", size),
		zap.Bool("tag", d.Tag()),
	)
	return e, nil
}

func entryOf[T any](w *World) (*entry, error) {
	return w.registerType(reflect.TypeFor[T]())
}

func (w *World) entryByID(op string, id ComponentID) (*entry, error) {
	e, ok := w.reg.byID[id]
	if !ok {
		return nil, newError(NotAttached, op, fmt.Sprintf("component %d", id), fmt.Errorf("unregistered"))
	}
	return e, nil
}

// ID returns the cached id of T without registering it.
func ID[T any](w *World) (ComponentID, bool) {
	e, ok := w.reg.byType[reflect.TypeFor[T]()]
	if !ok {
		return 0, false
	}
	return e.id, true
}

// Lookup returns the id registered under name.
func (w *World) Lookup(name string) (ComponentID, bool) {
	e, ok := w.reg.byName[name]
	if !ok {
		return 0, false
	}
	return e.id, true
}

// Descriptor returns the descriptor registered under id.
func (w *World) Descriptor(id ComponentID) (schema.Descriptor, bool) {
	e, ok := w.reg.byID[id]
	if !ok {
		return schema.Descriptor{}, false
	}
	return e.desc, true
}

// Descriptors lists every registered descriptor sorted by name.
func (w *World) Descriptors() []schema.Descriptor {
	out := make([]schema.Descriptor, len(w.reg.order))
	for i, e := range w.reg.order {
		out[i] = e.desc
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
