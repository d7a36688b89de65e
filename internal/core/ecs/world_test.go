package ecs

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/toxoid/toxoid-go/internal/core/event"
	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/core/host/memhost"
	"github.com/toxoid/toxoid-go/internal/schema"
)

type Position struct {
	X int32
	Y int32
}

type Velocity struct {
	DX float32
	DY float32
}

type Label struct {
	Text string
	Blob []byte
}

type Player struct{}

type GameState struct {
	Score  uint32
	Paused bool
}

// countingHost records how often registration crosses the boundary.
type countingHost struct {
	*memhost.Host
	registers int
}

func (h *countingHost) RegisterComponent(name string, fieldNames []string, fieldTypes []uint8) (host.ComponentID, error) {
	h.registers++
	return h.Host.RegisterComponent(name, fieldNames, fieldTypes)
}

// paddedHost reports data rows four bytes larger than it stores.
type paddedHost struct {
	*memhost.Host
}

func (h paddedHost) ComponentSize(id host.ComponentID) (uint32, error) {
	n, err := h.Host.ComponentSize(id)
	if n > 0 {
		n += 4
	}
	return n, err
}

func newTestWorld(t *testing.T, opts memhost.Options) (*World, *memhost.Host) {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := memhost.New(log, opts)
	w, err := NewWorld(h, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, h
}

func TestRegisterIsIdempotent(t *testing.T) {
	ch := &countingHost{Host: memhost.New(nil, memhost.Options{})}
	w, err := NewWorld(ch, nil)
	require.NoError(t, err)
	base := ch.registers

	first, err := Register[Position](w)
	require.NoError(t, err)
	second, err := Register[Position](w)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, base+1, ch.registers, "second registration must hit the cache")

	id, ok := w.Lookup("Position")
	require.True(t, ok)
	assert.Equal(t, first, id)

	cached, ok := ID[Position](w)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	d, ok := w.Descriptor(first)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, d.FieldNames)
	assert.Equal(t, []schema.Kind{schema.KindI32, schema.KindI32}, d.FieldKinds)
}

func TestPositionScenario(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})

	p, err := Register[Position](w)
	require.NoError(t, err)
	require.NotZero(t, p)

	e, err := w.NewEntity()
	require.NoError(t, err)
	require.NoError(t, Add[Position](w, e))

	ref, err := Get[Position](w, e)
	require.NoError(t, err)
	require.NoError(t, ref.Store(Position{X: 350, Y: 50}))

	ref, err = Get[Position](w, e)
	require.NoError(t, err)
	got := ref.Load()
	assert.Equal(t, int32(350), got.X)
	assert.Equal(t, int32(50), got.Y)

	q, err := w.Query().With(TermOf[Position]()).Build()
	require.NoError(t, err)

	batches := 0
	err = q.Each(func(b *Batch) error {
		batches++
		col, err := ColumnOf[Position](b)
		if err != nil {
			return err
		}
		require.Equal(t, 1, col.Len())
		assert.Equal(t, e, b.Entity(0))
		assert.Equal(t, Position{X: 350, Y: 50}, col.Get(0))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batches)
}

func TestAddThenGetIsZero(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, err := w.NewEntity()
	require.NoError(t, err)

	require.NoError(t, Add[Velocity](w, e))
	ref, err := Get[Velocity](w, e)
	require.NoError(t, err)
	assert.True(t, ref.Valid())
	assert.Equal(t, Velocity{}, ref.Load())

	require.NoError(t, Add[Label](w, e))
	lbl, err := Get[Label](w, e)
	require.NoError(t, err)
	assert.Equal(t, Label{}, lbl.Load())

	// Re-adding keeps the stored values.
	ref, err = Get[Velocity](w, e)
	require.NoError(t, err)
	require.NoError(t, ref.Store(Velocity{DX: 1.5}))
	require.NoError(t, Add[Velocity](w, e))
	ref, err = Get[Velocity](w, e)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), ref.Load().DX)
}

func TestGetNotAttachedIsRecoverable(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, err := w.NewEntity()
	require.NoError(t, err)

	ref, err := Get[Velocity](w, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.False(t, IsFatal(err))
	assert.False(t, ref.Valid())
	assert.Equal(t, Velocity{}, ref.Load())
	assert.ErrorIs(t, ref.Store(Velocity{DX: 1}), ErrNotAttached)
	assert.NoError(t, w.Poisoned())

	_, err = w.NewEntity()
	assert.NoError(t, err)
}

func TestChildOfLastWriteWins(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	parent, _ := w.NewEntity()
	other, _ := w.NewEntity()
	child, _ := w.NewEntity()

	require.NoError(t, w.ChildOf(child, parent))
	require.NoError(t, w.ChildOf(child, other))

	got, ok := w.Parent(child)
	require.True(t, ok)
	assert.Equal(t, other, got)
	assert.Empty(t, w.Children(parent))
	assert.Equal(t, []EntityID{child}, w.Children(other))

	target, ok := w.Host().EntityTarget(child, w.childOf)
	require.True(t, ok)
	assert.Equal(t, other, target)

	assert.Error(t, w.ChildOf(child, child))
}

func TestDestroyDoesNotCascade(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	root, _ := w.NewEntity()
	parent, _ := w.NewEntity()
	a, _ := w.NewEntity()
	b, _ := w.NewEntity()

	require.NoError(t, w.ChildOf(parent, root))
	require.NoError(t, w.ChildOf(a, parent))
	require.NoError(t, w.ChildOf(b, parent))
	assert.Equal(t, []EntityID{a, b}, w.Children(parent))

	require.NoError(t, w.Destroy(parent))
	assert.False(t, w.Alive(parent))
	assert.True(t, w.Alive(a))
	assert.True(t, w.Alive(b))
	_, ok := w.Parent(a)
	assert.False(t, ok, "children become roots")
	assert.Empty(t, w.Children(root), "the destroyed child edge is detached")

	err := w.Destroy(parent)
	assert.ErrorIs(t, err, ErrNotAttached)
}

func TestSingletons(t *testing.T) {
	w, h := newTestWorld(t, memhost.Options{})

	_, err := GetSingleton[GameState](w)
	assert.ErrorIs(t, err, ErrNotAttached)

	id1, err := AddSingleton[GameState](w)
	require.NoError(t, err)
	ref, err := GetSingleton[GameState](w)
	require.NoError(t, err)
	require.NoError(t, ref.Store(GameState{Score: 3}))

	id2, err := AddSingleton[GameState](w)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	ref, err = GetSingleton[GameState](w)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), ref.Load().Score)
	assert.Zero(t, h.Stats().Entities, "singletons are not entities")
}

func TestQueryRoundTrip(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	onlyPos, _ := w.NewEntity()
	require.NoError(t, Set(w, e, Position{X: 1, Y: 2}))
	require.NoError(t, Set(w, e, Velocity{DX: 3, DY: 4}))
	require.NoError(t, Set(w, onlyPos, Position{X: 9}))

	q, err := w.Query().With(TermOf[Position](), TermOf[Velocity]()).Build()
	require.NoError(t, err)

	seen := map[EntityID]int{}
	err = q.Each(func(b *Batch) error {
		pos, err := ColumnOf[Position](b)
		require.NoError(t, err)
		vel, err := ColumnOf[Velocity](b)
		require.NoError(t, err)
		for i, ent := range b.Entities() {
			seen[ent]++
			if ent == e {
				assert.Equal(t, Position{X: 1, Y: 2}, pos.Get(i))
				assert.Equal(t, Velocity{DX: 3, DY: 4}, vel.Get(i))
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[EntityID]int{e: 1}, seen)

	require.NoError(t, Remove[Velocity](w, e))
	assert.False(t, Has[Velocity](w, e))
	n, err := q.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestColumnOutsideBatch(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))

	q, err := w.Query().With(TermOf[Position]()).Build()
	require.NoError(t, err)
	it, err := q.Iter()
	require.NoError(t, err)

	col, err := ColumnOf[Position](it.Batch())
	assert.ErrorIs(t, err, ErrNoBatch)
	assert.Zero(t, col.Len())

	for it.Next() {
		col, err := ColumnOf[Position](it.Batch())
		require.NoError(t, err)
		assert.Equal(t, 1, col.Len())
	}
	require.NoError(t, it.Err())

	col, err = ColumnOf[Position](it.Batch())
	assert.ErrorIs(t, err, ErrNoBatch)
	assert.Zero(t, col.Len())
	assert.Equal(t, Position{}, col.Get(0))
	assert.False(t, w.Iterating())
}

func TestMidIterationRejected(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))
	q, err := w.Query().With(TermOf[Position]()).Build()
	require.NoError(t, err)

	it, err := q.Iter()
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.True(t, w.Iterating())

	_, err = w.NewEntity()
	assert.ErrorIs(t, err, ErrBoundaryMismatch)
	assert.ErrorIs(t, err, ErrMidIteration)

	_, err = Register[Velocity](w)
	assert.ErrorIs(t, err, ErrMidIteration)

	_, err = w.Query().With(TermOf[Position]()).Build()
	assert.ErrorIs(t, err, ErrMidIteration)

	// Already registered components stay usable.
	_, err = Register[Position](w)
	assert.NoError(t, err)

	it.Close()
	assert.NoError(t, w.Poisoned())
	_, err = w.NewEntity()
	assert.NoError(t, err)
}

func TestBoundaryMismatchHaltsWorld(t *testing.T) {
	w, err := NewWorld(paddedHost{Host: memhost.New(nil, memhost.Options{})}, nil)
	require.NoError(t, err)

	_, err = Register[Position](w)
	require.Error(t, err)
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, BoundaryMismatch, ee.Kind)
	assert.Equal(t, "Position", ee.Name)
	assert.True(t, ee.IsFatal())

	require.Error(t, w.Poisoned())
	_, err = w.NewEntity()
	assert.ErrorIs(t, err, ErrBoundaryMismatch)
	assert.ErrorIs(t, w.Progress(time.Millisecond), ErrBoundaryMismatch)
}

func TestRegistrationFailure(t *testing.T) {
	h := memhost.New(nil, memhost.Options{})
	_, err := h.RegisterComponent("Position", []string{"x"}, []uint8{uint8(schema.KindF64)})
	require.NoError(t, err)

	w, err := NewWorld(h, nil)
	require.NoError(t, err)
	_, err = Register[Position](w)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationFailure)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "Position")
	assert.NoError(t, w.Poisoned())
}

func TestSchemaCollision(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})

	_, err := w.RegisterDefinitions([]schema.Definition{
		{Name: "Health", Fields: []schema.Field{{Name: "hp", Kind: schema.KindU16}}},
		{Name: "Health"},
	})
	assert.ErrorIs(t, err, ErrSchemaCollision)

	_, err = Register[Position](w)
	require.NoError(t, err)
	other, err := schema.Describe(schema.Definition{Name: "Position", Fields: []schema.Field{{Name: "x", Kind: schema.KindF64}}})
	require.NoError(t, err)
	_, err = w.RegisterDescriptor(other)
	assert.ErrorIs(t, err, ErrSchemaCollision)

	same, err := schema.Describe(schema.Definition{Name: "Position", Fields: []schema.Field{
		{Name: "x", Kind: schema.KindI32}, {Name: "y", Kind: schema.KindI32},
	}})
	require.NoError(t, err)
	id, err := w.RegisterDescriptor(same)
	require.NoError(t, err)
	pid, _ := ID[Position](w)
	assert.Equal(t, pid, id)
}

func TestResourceExhausted(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{MaxEntities: 1})
	_, err := w.NewEntity()
	require.NoError(t, err)
	_, err = w.NewEntity()
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.True(t, IsFatal(err))
}

func TestStaleViewsRefuseWrites(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Set(w, e, Position{X: 5}))

	ref, err := Get[Position](w, e)
	require.NoError(t, err)
	require.True(t, ref.Valid())

	other, _ := w.NewEntity()
	require.NoError(t, Add[Player](w, other))

	assert.False(t, ref.Valid())
	assert.ErrorIs(t, ref.Store(Position{X: 6}), ErrStaleView)
	assert.Equal(t, Position{}, ref.Load())

	ref, err = Get[Position](w, e)
	require.NoError(t, err)
	assert.Equal(t, int32(5), ref.Load().X)
}

func TestTags(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()

	assert.False(t, Has[Player](w, e))
	require.NoError(t, Add[Player](w, e))
	assert.True(t, Has[Player](w, e))

	ref, err := Get[Player](w, e)
	require.NoError(t, err)
	assert.True(t, ref.Valid())
	assert.True(t, ref.Accessor().Descriptor().Tag())

	require.NoError(t, Remove[Player](w, e))
	assert.False(t, Has[Player](w, e))
	require.NoError(t, Remove[Player](w, e))
}

func TestRelationsAreNotComponents(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	assert.ErrorIs(t, Add[ChildOf](w, e), ErrNotRelation)

	pos, err := Register[Position](w)
	require.NoError(t, err)
	other, _ := w.NewEntity()
	assert.ErrorIs(t, w.Relate(pos, e, other), ErrNotRelation)

	_, err = RegisterRelation[Position](w)
	assert.ErrorIs(t, err, ErrRegistrationFailure)
}

func TestAccessorByName(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	id, err := Register[Position](w)
	require.NoError(t, err)
	require.NoError(t, w.AddID(e, id))

	acc, err := w.GetID(e, id)
	require.NoError(t, err)
	require.NoError(t, acc.Set("x", 7))
	require.NoError(t, acc.Set("y", float64(-3)))

	x, err := acc.Get("x")
	require.NoError(t, err)
	assert.Equal(t, int64(7), x)
	y, err := acc.Get("y")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), y)

	assert.Error(t, acc.Set("x", int64(1)<<40))
	assert.Error(t, acc.Set("x", 1.5))
	assert.Error(t, acc.Set("x", "seven"))
	assert.Error(t, acc.Set("z", 1))

	ref, err := Get[Position](w, e)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 7, Y: -3}, ref.Load())
}

func TestHeapFieldsRoundTrip(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()

	require.NoError(t, Set(w, e, Label{Text: "snake", Blob: []byte{1, 2, 3}}))
	ref, err := Get[Label](w, e)
	require.NoError(t, err)
	assert.Equal(t, Label{Text: "snake", Blob: []byte{1, 2, 3}}, ref.Load())

	require.NoError(t, ref.Update(func(l *Label) { l.Text = "food" }))
	ref, err = Get[Label](w, e)
	require.NoError(t, err)
	assert.Equal(t, "food", ref.Load().Text)

	text, err := ref.Accessor().Get("text")
	require.NoError(t, err)
	assert.Equal(t, "food", text)
}

func TestSystemsRunEachTick(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Set(w, e, Position{}))
	require.NoError(t, Set(w, e, Velocity{DX: 1, DY: 2}))
	still, _ := w.NewEntity()
	require.NoError(t, Set(w, still, Position{X: 100}))

	var order []string
	_, err := w.System("render").With(TermOf[Velocity]()).Phase(host.PhaseRender).Build(func(b *Batch) error {
		order = append(order, "render")
		return nil
	})
	require.NoError(t, err)
	_, err = w.System("move").With(TermOf[Position](), TermOf[Velocity]()).Build(func(b *Batch) error {
		order = append(order, "move")
		pos, err := ColumnOf[Position](b)
		if err != nil {
			return err
		}
		vel, err := ColumnOf[Velocity](b)
		if err != nil {
			return err
		}
		for i := 0; i < b.Len(); i++ {
			v := vel.Get(i)
			if err := pos.Update(i, func(p *Position) {
				p.X += int32(v.DX)
				p.Y += int32(v.DY)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"render", "move"}, w.Systems())

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Progress(16*time.Millisecond))
	}
	assert.Equal(t, []string{"move", "render", "move", "render", "move", "render"}, order)

	ref, err := Get[Position](w, e)
	require.NoError(t, err)
	assert.Equal(t, Position{X: 3, Y: 6}, ref.Load())
	ref, err = Get[Position](w, still)
	require.NoError(t, err)
	assert.Equal(t, int32(100), ref.Load().X)
}

func TestSystemErrorAbortsTickOnly(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))

	boom := errors.New("boom")
	_, err := w.System("fail").With(TermOf[Position]()).Build(func(*Batch) error { return boom })
	require.NoError(t, err)

	err = w.Progress(time.Millisecond)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, w.Poisoned())
	assert.False(t, w.Iterating())
}

func TestSystemsCannotCreateEntities(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))

	_, err := w.System("spawner").With(TermOf[Position]()).Build(func(b *Batch) error {
		_, err := b.World().NewEntity()
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, w.Progress(time.Millisecond), ErrMidIteration)
}

func TestStructuralChangesInsideSystemsApplyAfterTick(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))
	_, err := Register[Player](w)
	require.NoError(t, err)

	_, err = w.System("tagger").With(TermOf[Position]()).Build(func(b *Batch) error {
		for _, ent := range b.Entities() {
			if err := Add[Player](b.World(), ent); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Progress(time.Millisecond))
	assert.True(t, Has[Player](w, e))
}

func TestEventsDispatchedAfterProgress(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})

	var created []EntityID
	var added []string
	event.Subscribe(w.Events(), func(ev event.EntityCreated) { created = append(created, ev.Entity) })
	event.Subscribe(w.Events(), func(ev event.ComponentAdded) { added = append(added, ev.Name) })

	e, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, e))
	assert.Empty(t, created)

	require.NoError(t, w.Progress(time.Millisecond))
	assert.Equal(t, []EntityID{e}, created)
	assert.Equal(t, []string{"Position"}, added)
}

func TestClosedWorld(t *testing.T) {
	w, err := NewWorld(memhost.New(nil, memhost.Options{}), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.NewEntity()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = Register[Position](w)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestViewsDoNotOutliveSystemCallback(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	e, err := w.NewEntity()
	require.NoError(t, err)
	require.NoError(t, Set(w, e, Position{X: 1}))
	require.NoError(t, Set(w, e, Velocity{DX: 1}))

	var held Ref[Position]
	_, err = w.System("capture").With(TermOf[Position]()).Phase(host.PhaseUpdate).Build(func(b *Batch) error {
		col, err := ColumnOf[Position](b)
		if err != nil {
			return err
		}
		held = col.Ref(0)
		return nil
	})
	require.NoError(t, err)

	var stale error
	_, err = w.System("reuse").With(TermOf[Velocity]()).Phase(host.PhasePostUpdate).Build(func(*Batch) error {
		stale = held.Store(Position{X: 9})
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, w.Progress(time.Millisecond))
	assert.ErrorIs(t, stale, ErrStaleView)

	ref, err := Get[Position](w, e)
	require.NoError(t, err)
	assert.Equal(t, int32(1), ref.Load().X)
}

func TestColumnsAreBoundToTheirBatch(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	for i := 0; i < 3; i++ {
		e, _ := w.NewEntity()
		require.NoError(t, Set(w, e, Position{X: int32(i)}))
	}
	moving, _ := w.NewEntity()
	require.NoError(t, Set(w, moving, Position{X: 9}))
	require.NoError(t, Set(w, moving, Velocity{DX: 1}))

	q, err := w.Query().With(TermOf[Position]()).Build()
	require.NoError(t, err)
	it, err := q.Iter()
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Next())
	first, err := ColumnOf[Position](it.Batch())
	require.NoError(t, err)
	firstLen := first.Len()
	require.Equal(t, it.Batch().Len(), firstLen)
	kept := first.Ref(0)

	require.True(t, it.Next())
	assert.Zero(t, first.Len())
	assert.False(t, first.At(0).Valid())
	assert.NotPanics(t, func() { assert.Equal(t, Position{}, first.Get(firstLen-1)) })
	assert.Error(t, first.Set(0, Position{X: 100}))
	// Rows read before Next still belong to their entity.
	assert.True(t, kept.Valid())

	second, err := ColumnOf[Position](it.Batch())
	require.NoError(t, err)
	assert.Equal(t, it.Batch().Len(), second.Len())
	assert.Equal(t, 4, firstLen+second.Len())
	for i := 0; i < second.Len(); i++ {
		assert.Equal(t, it.Batch().Entity(i), second.At(i).Entity())
	}

	assert.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestConflictingOpsInsideSystemApplyInOrder(t *testing.T) {
	w, _ := newTestWorld(t, memhost.Options{})
	a, _ := w.NewEntity()
	b, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, a))
	require.NoError(t, Add[Position](w, b))
	require.NoError(t, Add[Velocity](w, b))
	_, err := Register[Player](w)
	require.NoError(t, err)
	require.NoError(t, w.Progress(time.Millisecond))

	var added, removed []string
	event.Subscribe(w.Events(), func(ev event.ComponentAdded) { added = append(added, ev.Name) })
	event.Subscribe(w.Events(), func(ev event.ComponentRemoved) { removed = append(removed, ev.Name) })

	ran := false
	_, err = w.System("toggle").With(TermOf[Position]()).Build(func(bt *Batch) error {
		if ran {
			return nil
		}
		ran = true
		wd := bt.World()
		require.NoError(t, Add[Player](wd, a))
		require.NoError(t, Add[Player](wd, a))
		require.NoError(t, Remove[Player](wd, a))
		require.NoError(t, Remove[Velocity](wd, b))
		require.NoError(t, Add[Velocity](wd, b))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Progress(time.Millisecond))

	assert.False(t, Has[Player](w, a))
	assert.True(t, Has[Velocity](w, b))
	assert.Equal(t, []string{"Player", "Velocity"}, added)
	assert.Equal(t, []string{"Player", "Velocity"}, removed)
}

func TestDestroyInsideSystemDropsEdges(t *testing.T) {
	w, h := newTestWorld(t, memhost.Options{})
	parent, _ := w.NewEntity()
	child, _ := w.NewEntity()
	other, _ := w.NewEntity()
	require.NoError(t, Add[Position](w, parent))
	require.NoError(t, w.ChildOf(other, parent))
	_, err := Register[Velocity](w)
	require.NoError(t, err)

	ran := false
	_, err = w.System("reap").With(TermOf[Position]()).Build(func(b *Batch) error {
		if ran {
			return nil
		}
		ran = true
		wd := b.World()
		require.NoError(t, wd.Destroy(parent))
		assert.ErrorIs(t, wd.ChildOf(child, parent), ErrNotAttached)
		assert.ErrorIs(t, wd.ChildOf(parent, child), ErrNotAttached)
		assert.ErrorIs(t, wd.Destroy(parent), ErrNotAttached)
		assert.ErrorIs(t, Add[Velocity](wd, parent), ErrNotAttached)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Progress(time.Millisecond))

	assert.False(t, w.Alive(parent))
	assert.True(t, w.Alive(other))
	_, ok := w.Parent(child)
	assert.False(t, ok)
	_, ok = w.Parent(other)
	assert.False(t, ok)
	assert.Empty(t, w.Children(parent))
	_, ok = h.EntityTarget(child, w.childOf)
	assert.False(t, ok)
}

func TestCodecMismatchNeverReachesHost(t *testing.T) {
	ch := &countingHost{Host: memhost.New(nil, memhost.Options{})}
	w, err := NewWorld(ch, nil)
	require.NoError(t, err)
	base := ch.registers

	def, err := schema.Of[Position]()
	require.NoError(t, err)
	d, err := schema.Describe(def)
	require.NoError(t, err)

	_, err = w.bind(reflect.TypeFor[Velocity](), d)
	assert.ErrorIs(t, err, ErrRegistrationFailure)
	assert.Equal(t, base, ch.registers)
	_, ok := w.Lookup("Position")
	assert.False(t, ok)

	_, err = Register[Position](w)
	assert.NoError(t, err)
}
