package ecs

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/toxoid/toxoid-go/internal/core/host"
)

// Term is one component of a query filter, resolved against a world when
// the query is built.
type Term struct {
	typ  reflect.Type
	name string
	id   ComponentID
}

// TermOf names the Go component T. T is registered on Build if needed.
func TermOf[T any]() Term { return Term{typ: reflect.TypeFor[T]()} }

// Named refers to a component registered by name, such as a schema file entry.
func Named(name string) Term { return Term{name: name} }

// WithID refers to a component by its id.
func WithID(id ComponentID) Term { return Term{id: id} }

func (t Term) String() string {
	switch {
	case t.typ != nil:
		return t.typ.Name()
	case t.name != "":
		return t.name
	default:
		return fmt.Sprintf("#%d", t.id)
	}
}

func (w *World) resolve(t Term) (*entry, error) {
	switch {
	case t.typ != nil:
		return w.registerType(t.typ)
	case t.name != "":
		e, ok := w.reg.byName[t.name]
		if !ok {
			return nil, newError(NotAttached, "query", t.name, fmt.Errorf("unregistered"))
		}
		return e, nil
	default:
		return w.entryByID("query", t.id)
	}
}

// QueryBuilder collects a presence-only filter.
type QueryBuilder struct {
	w     *World
	terms []Term
}

// Query starts a query builder.
func (w *World) Query() *QueryBuilder { return &QueryBuilder{w: w} }

// With adds required components.
func (b *QueryBuilder) With(terms ...Term) *QueryBuilder {
	b.terms = append(b.terms, terms...)
	return b
}

// Build resolves the terms and asks the host for a persistent query.
func (b *QueryBuilder) Build() (*Query, error) {
	return b.w.buildQuery("query", b.terms)
}

func (w *World) buildQuery(op string, terms []Term) (*Query, error) {
	if err := w.between(op, ""); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%s: at least one term is required", op)
	}
	q := &Query{w: w, entries: make([]*entry, 0, len(terms))}
	ids := make([]ComponentID, 0, len(terms))
	for _, t := range terms {
		e, err := w.resolve(t)
		if err != nil {
			return nil, err
		}
		if e.relation {
			return nil, fmt.Errorf("%s: %s: %w", op, e.desc.Name, ErrNotRelation)
		}
		q.entries = append(q.entries, e)
		ids = append(ids, e.id)
	}
	h, err := w.host.QueryBuild(ids)
	if err != nil {
		return nil, w.fail(op, q.String(), err)
	}
	if h == 0 {
		return nil, w.poison(newError(BoundaryMismatch, op, q.String(), fmt.Errorf("host returned query handle 0")))
	}
	q.handle = h
	w.queries++
	return q, nil
}

// Query is a persistent filter. It owns no entity data.
type Query struct {
	w       *World
	handle  host.QueryHandle
	entries []*entry
}

func (q *Query) String() string {
	names := make([]string, len(q.entries))
	for i, e := range q.entries {
		names[i] = e.desc.Name
	}
	return "(" + strings.Join(names, ", ") + ")"
}

// Components lists the query's component ids in term order.
func (q *Query) Components() []ComponentID {
	ids := make([]ComponentID, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.id
	}
	return ids
}

// Iter starts a manual iteration. The world counts as iterating until Next
// returns false or Close is called.
func (q *Query) Iter() (*Iter, error) {
	if err := q.w.check("iter"); err != nil {
		return nil, err
	}
	it, err := q.w.host.QueryIter(q.handle)
	if err != nil {
		return nil, q.w.fail("iter", q.String(), err)
	}
	q.w.enter()
	return &Iter{b: Batch{w: q.w, q: q, it: it}}, nil
}

// Each runs fn once per batch.
func (q *Query) Each(fn func(*Batch) error) error {
	it, err := q.Iter()
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if err := fn(it.Batch()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Count returns the number of matching entities right now.
func (q *Query) Count() (int, error) {
	n := 0
	err := q.Each(func(b *Batch) error {
		n += b.Len()
		return nil
	})
	return n, err
}

// Iter walks a query batch by batch.
type Iter struct {
	b      Batch
	err    error
	closed bool
}

// Next advances to the next batch. It returns false at the end or on error;
// check Err afterwards.
func (it *Iter) Next() bool {
	if it.closed {
		it.b.state = batchDone
		return false
	}
	more, err := it.b.w.host.IterNext(it.b.it)
	if err != nil {
		it.err = it.b.w.fail("iter next", it.b.q.String(), err)
		it.Close()
		return false
	}
	if !more {
		it.Close()
		return false
	}
	if err := it.b.position(); err != nil {
		it.err = err
		it.Close()
		return false
	}
	return true
}

// Batch returns the current batch. Its columns are empty outside Next.
func (it *Iter) Batch() *Batch { return &it.b }

func (it *Iter) Err() error { return it.err }

// Close finishes the iteration early. It is safe to call more than once.
func (it *Iter) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.b.state = batchDone
	it.b.w.host.IterFinish(it.b.it)
	it.b.w.leave()
}

type batchState uint8

const (
	batchBefore batchState = iota
	batchReady
	batchDone
)

// Batch is one host table slice of a query result.
type Batch struct {
	w        *World
	q        *Query
	it       host.IterHandle
	state    batchState
	count    int
	entities []EntityID
	dt       time.Duration
	epoch    uint64
	gen      uint64 // advances per positioned batch; columns are bound to one
}

func (b *Batch) position() error {
	n, err := b.w.host.IterCount(b.it)
	if err != nil {
		return b.w.fail("batch", b.q.String(), err)
	}
	ents, err := b.w.host.IterEntities(b.it)
	if err != nil {
		return b.w.fail("batch", b.q.String(), err)
	}
	if len(ents) != n {
		return b.w.poison(newError(BoundaryMismatch, "batch", b.q.String(),
			fmt.Errorf("host reports %d entities for count %d", len(ents), n)))
	}
	b.gen++
	b.count = n
	b.entities = ents
	b.state = batchReady
	b.epoch = b.w.epoch
	return nil
}

func (b *Batch) ready() bool { return b.state == batchReady && b.epoch == b.w.epoch }

// Len is the number of entities in the batch, 0 outside a positioned batch.
func (b *Batch) Len() int {
	if !b.ready() {
		return 0
	}
	return b.count
}

// Entities lists the batch's entities in host order.
func (b *Batch) Entities() []EntityID {
	if !b.ready() {
		return nil
	}
	return b.entities
}

// Entity returns the i-th entity of the batch.
func (b *Batch) Entity(i int) EntityID {
	if !b.ready() || i < 0 || i >= b.count {
		return 0
	}
	return b.entities[i]
}

// DeltaTime is the tick delta for batches delivered to systems.
func (b *Batch) DeltaTime() time.Duration { return b.dt }

func (b *Batch) World() *World { return b.w }

// Column is a typed view over one component inside a batch.
type Column[T any] struct {
	b     *Batch
	ent   *entry
	col   host.Column
	gen   uint64
}

// ColumnOf returns the T column of the current batch. Before the first Next
// or after exhaustion it returns an empty column and ErrNoBatch.
func ColumnOf[T any](b *Batch) (Column[T], error) {
	if !b.ready() {
		return Column[T]{}, fmt.Errorf("column %s: %w", reflect.TypeFor[T]().Name(), ErrNoBatch)
	}
	ent, ok := b.w.reg.byType[reflect.TypeFor[T]()]
	if !ok {
		return Column[T]{}, newError(NotAttached, "column", reflect.TypeFor[T]().Name(), fmt.Errorf("unregistered"))
	}
	return columnOf[T](b, ent)
}

// ColumnByID returns the column of id for components without a Go type.
// Rows are read and written through At.
func (b *Batch) ColumnByID(id ComponentID) (Column[struct{}], error) {
	if !b.ready() {
		return Column[struct{}]{}, fmt.Errorf("column %d: %w", id, ErrNoBatch)
	}
	ent, err := b.w.entryByID("column", id)
	if err != nil {
		return Column[struct{}]{}, err
	}
	return columnOf[struct{}](b, ent)
}

func columnOf[T any](b *Batch, ent *entry) (Column[T], error) {
	col, err := b.w.host.IterColumn(b.it, ent.id)
	if err != nil {
		return Column[T]{}, b.w.fail("column", ent.desc.Name, err)
	}
	if col.Stride != ent.desc.Size() || col.Count != b.count || uint64(len(col.Data)) < uint64(col.Stride)*uint64(col.Count) {
		return Column[T]{}, b.w.poison(newError(BoundaryMismatch, "column", ent.desc.Name,
			fmt.Errorf("host column stride %d count %d, declared layout %d count %d", col.Stride, col.Count, ent.desc.Size(), b.count)))
	}
	return Column[T]{b: b, ent: ent, col: col, gen: b.gen}, nil
}

// Len is the number of rows, 0 when the column is empty or out of scope.
func (c Column[T]) Len() int {
	if c.b == nil || !c.b.ready() || c.gen != c.b.gen {
		return 0
	}
	return c.col.Count
}

// At returns an accessor for row i.
func (c Column[T]) At(i int) Accessor {
	if c.Len() == 0 || i < 0 || i >= c.col.Count {
		return Accessor{}
	}
	return c.b.w.accessor(c.ent, c.b.entities[i], c.col.Row(i))
}

// Ref returns a typed ref to row i.
func (c Column[T]) Ref(i int) Ref[T] { return Ref[T]{acc: c.At(i)} }

// Get copies row i into a T.
func (c Column[T]) Get(i int) T { return c.Ref(i).Load() }

// Set stores v into row i.
func (c Column[T]) Set(i int, v T) error { return c.Ref(i).Store(v) }

// Update applies fn to row i.
func (c Column[T]) Update(i int, fn func(*T)) error { return c.Ref(i).Update(fn) }
