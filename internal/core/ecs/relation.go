package ecs

import (
	"fmt"
	"slices"

	"github.com/toxoid/toxoid-go/internal/core/event"
)

// ChildOf is the built-in parent relation.
type ChildOf struct{}

type edge struct {
	source   EntityID
	relation ComponentID
	target   EntityID
}

// relations is the only place edges are recorded on the Go side. It keeps
// at most one target per (source, relation) and a reverse index per target.
type relations struct {
	out map[EntityID]map[ComponentID]EntityID
	in  map[EntityID]map[edgeKey]struct{}
}

type edgeKey struct {
	source   EntityID
	relation ComponentID
}

func newRelations() *relations {
	return &relations{
		out: make(map[EntityID]map[ComponentID]EntityID),
		in:  make(map[EntityID]map[edgeKey]struct{}),
	}
}

// set records source -rel-> target, replacing the previous target.
func (r *relations) set(source EntityID, rel ComponentID, target EntityID) {
	r.clear(source, rel)
	m, ok := r.out[source]
	if !ok {
		m = make(map[ComponentID]EntityID, 1)
		r.out[source] = m
	}
	m[rel] = target
	back, ok := r.in[target]
	if !ok {
		back = make(map[edgeKey]struct{})
		r.in[target] = back
	}
	back[edgeKey{source, rel}] = struct{}{}
}

func (r *relations) clear(source EntityID, rel ComponentID) (EntityID, bool) {
	m := r.out[source]
	target, ok := m[rel]
	if !ok {
		return 0, false
	}
	delete(m, rel)
	if len(m) == 0 {
		delete(r.out, source)
	}
	if back := r.in[target]; back != nil {
		delete(back, edgeKey{source, rel})
		if len(back) == 0 {
			delete(r.in, target)
		}
	}
	return target, true
}

func (r *relations) target(source EntityID, rel ComponentID) (EntityID, bool) {
	t, ok := r.out[source][rel]
	return t, ok
}

func (r *relations) sources(target EntityID, rel ComponentID) []EntityID {
	var out []EntityID
	for k := range r.in[target] {
		if k.relation == rel {
			out = append(out, k.source)
		}
	}
	slices.Sort(out)
	return out
}

func (r *relations) dropSource(source EntityID) {
	for rel := range r.out[source] {
		r.clear(source, rel)
	}
}

// dropTarget removes every edge pointing at target and returns them.
func (r *relations) dropTarget(target EntityID) []edge {
	var dropped []edge
	for k := range r.in[target] {
		dropped = append(dropped, edge{source: k.source, relation: k.relation, target: target})
	}
	for _, e := range dropped {
		r.clear(e.source, e.relation)
	}
	slices.SortFunc(dropped, func(a, b edge) int {
		if a.source != b.source {
			if a.source < b.source {
				return -1
			}
			return 1
		}
		return int(a.relation) - int(b.relation)
	})
	return dropped
}

// RegisterRelation registers T as a relation. Relations must be tags.
func RegisterRelation[T any](w *World) (ComponentID, error) {
	ent, err := entryOf[T](w)
	if err != nil {
		return 0, err
	}
	if !ent.desc.Tag() {
		return 0, newError(RegistrationFailure, "register relation", ent.desc.Name, fmt.Errorf("relations carry no fields"))
	}
	ent.relation = true
	return ent.id, nil
}

// Relate sets the single rel edge of source to target, replacing any
// previous target.
func (w *World) Relate(rel ComponentID, source, target EntityID) error {
	if err := w.check("relate"); err != nil {
		return err
	}
	ent, err := w.entryByID("relate", rel)
	if err != nil {
		return err
	}
	if !ent.relation {
		return fmt.Errorf("relate %s: %w", ent.desc.Name, ErrNotRelation)
	}
	if source == target {
		return fmt.Errorf("relate %s: %s cannot target itself", ent.desc.Name, entityName(source))
	}
	for _, e := range []EntityID{source, target} {
		if !w.host.EntityAlive(e) || w.destroying(e) {
			return newError(NotAttached, "relate", ent.desc.Name, fmt.Errorf("%s is not alive", entityName(e)))
		}
	}
	if err := w.host.EntityRelate(source, rel, target); err != nil {
		return w.fail("relate", ent.desc.Name, err)
	}
	got, ok := w.host.EntityTarget(source, rel)
	if !ok || got != target {
		return w.poison(newError(BoundaryMismatch, "relate", ent.desc.Name,
			fmt.Errorf("host reports target %d, want %d", got, target)))
	}
	w.rel.set(source, rel, target)
	event.Emit(w.bus, event.RelationChanged{Entity: source, Relation: rel, Target: target})
	return nil
}

// Unrelate clears the rel edge of source. Clearing a missing edge is a no-op.
func (w *World) Unrelate(rel ComponentID, source EntityID) error {
	if err := w.check("unrelate"); err != nil {
		return err
	}
	if _, had := w.rel.target(source, rel); !had {
		return nil
	}
	if err := w.host.EntityUnrelate(source, rel); err != nil {
		return w.fail("unrelate", entityName(source), err)
	}
	w.rel.clear(source, rel)
	event.Emit(w.bus, event.RelationChanged{Entity: source, Relation: rel})
	return nil
}

// Target returns the rel target of source.
func (w *World) Target(rel ComponentID, source EntityID) (EntityID, bool) {
	if w.check("target") != nil {
		return 0, false
	}
	return w.rel.target(source, rel)
}

// ChildOf makes child a child of parent, replacing any previous parent.
func (w *World) ChildOf(child, parent EntityID) error {
	return w.Relate(w.childOf, child, parent)
}

// Parent returns the parent of child.
func (w *World) Parent(child EntityID) (EntityID, bool) {
	return w.Target(w.childOf, child)
}

// Children lists the children of parent in id order.
func (w *World) Children(parent EntityID) []EntityID {
	if w.check("children") != nil {
		return nil
	}
	return w.rel.sources(parent, w.childOf)
}
