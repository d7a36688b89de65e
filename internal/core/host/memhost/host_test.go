package memhost

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

func tags(kinds ...schema.Kind) []uint8 {
	out := make([]uint8, len(kinds))
	for i, k := range kinds {
		out[i] = uint8(k)
	}
	return out
}

func newTestHost(t *testing.T) (*Host, host.ComponentID, host.ComponentID) {
	t.Helper()
	h := New(nil, Options{})
	pos, err := h.RegisterComponent("Position", []string{"x", "y"}, tags(schema.KindU32, schema.KindU32))
	require.NoError(t, err)
	tag, err := h.RegisterComponent("Player", nil, nil)
	require.NoError(t, err)
	return h, pos, tag
}

func putU32(v host.View, off int, x uint32) { binary.LittleEndian.PutUint32(v.Data[off:], x) }
func getU32(v host.View, off int) uint32    { return binary.LittleEndian.Uint32(v.Data[off:]) }

func TestRegisterComponent(t *testing.T) {
	h, pos, tag := newTestHost(t)

	size, err := h.ComponentSize(pos)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), size)

	size, err = h.ComponentSize(tag)
	require.NoError(t, err)
	assert.Zero(t, size)

	again, err := h.RegisterComponent("Position", []string{"x", "y"}, tags(schema.KindU32, schema.KindU32))
	require.NoError(t, err)
	assert.Equal(t, pos, again)

	_, err = h.RegisterComponent("Position", []string{"x"}, tags(schema.KindF64))
	assert.ErrorIs(t, err, host.ErrRejected)

	_, err = h.RegisterComponent("Bad", []string{"x"}, []uint8{200})
	assert.ErrorIs(t, err, host.ErrRejected)

	_, err = h.RegisterComponent("Short", []string{"x", "y"}, tags(schema.KindU8))
	assert.ErrorIs(t, err, host.ErrRejected)
}

func TestMaxComponents(t *testing.T) {
	h := New(nil, Options{MaxComponents: 1})
	_, err := h.RegisterComponent("A", nil, nil)
	require.NoError(t, err)
	_, err = h.RegisterComponent("B", nil, nil)
	assert.ErrorIs(t, err, host.ErrExhausted)
}

func TestEntityLifecycle(t *testing.T) {
	h, pos, tag := newTestHost(t)

	e, err := h.EntityNew()
	require.NoError(t, err)
	assert.NotZero(t, e)
	assert.True(t, h.EntityAlive(e))

	require.NoError(t, h.EntityAdd(e, pos))
	require.NoError(t, h.EntityAdd(e, tag))
	assert.True(t, h.EntityHas(e, pos))
	assert.True(t, h.EntityHas(e, tag))

	v, err := h.EntityGet(e, pos)
	require.NoError(t, err)
	require.Len(t, v.Data, 8)
	assert.Equal(t, uint32(0), getU32(v, 0))
	putU32(v, 0, 350)
	putU32(v, 4, 50)

	// Adding an attached component keeps the row.
	require.NoError(t, h.EntityAdd(e, pos))
	v, err = h.EntityGet(e, pos)
	require.NoError(t, err)
	assert.Equal(t, uint32(350), getU32(v, 0))
	assert.Equal(t, uint32(50), getU32(v, 4))

	require.NoError(t, h.EntityRemove(e, tag))
	assert.False(t, h.EntityHas(e, tag))
	v, err = h.EntityGet(e, pos)
	require.NoError(t, err)
	assert.Equal(t, uint32(350), getU32(v, 0))

	_, err = h.EntityGet(e, tag)
	assert.ErrorIs(t, err, host.ErrNotFound)

	require.NoError(t, h.EntityDestroy(e))
	assert.False(t, h.EntityAlive(e))
	assert.False(t, h.EntityHas(e, pos))
	assert.ErrorIs(t, h.EntityDestroy(e), host.ErrNotFound)

	e2, err := h.EntityNew()
	require.NoError(t, err)
	assert.NotEqual(t, e, e2, "recycled index must carry a new generation")
	assert.False(t, h.EntityAlive(e))
}

func TestSwapRemoveKeepsLocations(t *testing.T) {
	h, pos, _ := newTestHost(t)

	ids := make([]host.EntityID, 4)
	for i := range ids {
		e, err := h.EntityNew()
		require.NoError(t, err)
		require.NoError(t, h.EntityAdd(e, pos))
		v, err := h.EntityGet(e, pos)
		require.NoError(t, err)
		putU32(v, 0, uint32(i+1))
		ids[i] = e
	}

	require.NoError(t, h.EntityDestroy(ids[1]))

	for i, e := range ids {
		if i == 1 {
			continue
		}
		v, err := h.EntityGet(e, pos)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), getU32(v, 0))
	}
}

func TestMaxEntities(t *testing.T) {
	h := New(nil, Options{MaxEntities: 2})
	_, err := h.EntityNew()
	require.NoError(t, err)
	e, err := h.EntityNew()
	require.NoError(t, err)
	_, err = h.EntityNew()
	assert.ErrorIs(t, err, host.ErrExhausted)

	require.NoError(t, h.EntityDestroy(e))
	_, err = h.EntityNew()
	assert.NoError(t, err)
}

func TestHeapFields(t *testing.T) {
	h := New(nil, Options{})
	name, err := h.RegisterComponent("Name", []string{"value"}, tags(schema.KindString))
	require.NoError(t, err)

	e, err := h.EntityNew()
	require.NoError(t, err)
	require.NoError(t, h.EntityAdd(e, name))

	v, err := h.EntityGet(e, name)
	require.NoError(t, err)
	handle := v.Heap.Store(binary.LittleEndian.Uint64(v.Data), []byte("snake"))
	binary.LittleEndian.PutUint64(v.Data, handle)
	assert.Equal(t, 1, h.Stats().HeapItems)

	v, err = h.EntityGet(e, name)
	require.NoError(t, err)
	assert.Equal(t, "snake", string(v.Heap.Load(binary.LittleEndian.Uint64(v.Data))))

	require.NoError(t, h.EntityRemove(e, name))
	assert.Zero(t, h.Stats().HeapItems)
}

func TestRelations(t *testing.T) {
	h := New(nil, Options{})
	childOf, err := h.RegisterComponent("ChildOf", nil, nil)
	require.NoError(t, err)

	parent, _ := h.EntityNew()
	other, _ := h.EntityNew()
	child, _ := h.EntityNew()

	require.NoError(t, h.EntityRelate(child, childOf, parent))
	target, ok := h.EntityTarget(child, childOf)
	require.True(t, ok)
	assert.Equal(t, parent, target)

	require.NoError(t, h.EntityRelate(child, childOf, other))
	target, ok = h.EntityTarget(child, childOf)
	require.True(t, ok)
	assert.Equal(t, other, target, "a second edge replaces the first")

	assert.ErrorIs(t, h.EntityRelate(child, childOf, child), host.ErrRejected)

	require.NoError(t, h.EntityDestroy(other))
	_, ok = h.EntityTarget(child, childOf)
	assert.False(t, ok, "edges into a destroyed target are dropped")
	assert.True(t, h.EntityAlive(child))

	require.NoError(t, h.EntityRelate(child, childOf, parent))
	require.NoError(t, h.EntityUnrelate(child, childOf))
	_, ok = h.EntityTarget(child, childOf)
	assert.False(t, ok)
}

func TestSingletons(t *testing.T) {
	h, pos, _ := newTestHost(t)

	_, err := h.SingletonGet(pos)
	assert.ErrorIs(t, err, host.ErrNotFound)

	require.NoError(t, h.SingletonAdd(pos))
	v, err := h.SingletonGet(pos)
	require.NoError(t, err)
	putU32(v, 4, 7)

	require.NoError(t, h.SingletonAdd(pos))
	v, err = h.SingletonGet(pos)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), getU32(v, 4), "adding twice keeps the value")
}

func TestQueryIteration(t *testing.T) {
	h, pos, tag := newTestHost(t)

	for i := 0; i < 3; i++ {
		e, _ := h.EntityNew()
		require.NoError(t, h.EntityAdd(e, pos))
	}
	tagged, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(tagged, pos))
	require.NoError(t, h.EntityAdd(tagged, tag))
	loose, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(loose, tag))

	q, err := h.QueryBuild([]host.ComponentID{pos})
	require.NoError(t, err)

	it, err := h.QueryIter(q)
	require.NoError(t, err)

	_, err = h.IterColumn(it, pos)
	assert.ErrorIs(t, err, host.ErrNoBatch)

	total := 0
	for {
		more, err := h.IterNext(it)
		require.NoError(t, err)
		if !more {
			break
		}
		n, err := h.IterCount(it)
		require.NoError(t, err)
		col, err := h.IterColumn(it, pos)
		require.NoError(t, err)
		assert.Equal(t, uint32(8), col.Stride)
		assert.Equal(t, n, col.Count)
		ents, err := h.IterEntities(it)
		require.NoError(t, err)
		assert.Len(t, ents, n)
		total += n
	}
	assert.Equal(t, 4, total)

	_, err = h.IterColumn(it, pos)
	assert.ErrorIs(t, err, host.ErrNoBatch)
	more, err := h.IterNext(it)
	require.NoError(t, err)
	assert.False(t, more)
	h.IterFinish(it)
}

func TestQueryBuildRejects(t *testing.T) {
	h, pos, _ := newTestHost(t)

	_, err := h.QueryBuild(nil)
	assert.ErrorIs(t, err, host.ErrRejected)
	_, err = h.QueryBuild([]host.ComponentID{pos, pos})
	assert.ErrorIs(t, err, host.ErrRejected)
	_, err = h.QueryBuild([]host.ComponentID{99})
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestStructuralChangesDeferredDuringIteration(t *testing.T) {
	h, pos, tag := newTestHost(t)
	a, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(a, pos))
	b, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(b, pos))

	q, err := h.QueryBuild([]host.ComponentID{pos})
	require.NoError(t, err)
	it, err := h.QueryIter(q)
	require.NoError(t, err)
	more, err := h.IterNext(it)
	require.NoError(t, err)
	require.True(t, more)

	_, err = h.EntityNew()
	assert.ErrorIs(t, err, host.ErrReentrant)
	_, err = h.RegisterComponent("Late", nil, nil)
	assert.ErrorIs(t, err, host.ErrReentrant)

	require.NoError(t, h.EntityAdd(a, tag))
	require.NoError(t, h.EntityDestroy(b))
	assert.False(t, h.EntityHas(a, tag), "add is queued until the iteration ends")
	assert.True(t, h.EntityAlive(b), "destroy is queued until the iteration ends")

	n, err := h.IterCount(it)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	h.IterFinish(it)
	assert.True(t, h.EntityHas(a, tag))
	assert.False(t, h.EntityAlive(b))
	v, err := h.EntityGet(a, pos)
	require.NoError(t, err)
	assert.Len(t, v.Data, 8)
}

func TestProgressRunsSystemsInPhaseOrder(t *testing.T) {
	h, pos, _ := newTestHost(t)
	e, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(e, pos))

	q, err := h.QueryBuild([]host.ComponentID{pos})
	require.NoError(t, err)

	var order []string
	record := func(name string) host.SystemFunc {
		return func(it host.IterHandle, dt time.Duration) error {
			order = append(order, name)
			col, err := h.IterColumn(it, pos)
			if err != nil {
				return err
			}
			v := col.Row(0)
			putU32(v, 0, getU32(v, 0)+uint32(dt/time.Millisecond))
			return nil
		}
	}

	_, err = h.RegisterSystem("draw", q, host.PhaseRender, record("draw"))
	require.NoError(t, err)
	_, err = h.RegisterSystem("move", q, host.PhaseUpdate, record("move"))
	require.NoError(t, err)
	_, err = h.RegisterSystem("input", q, host.PhaseInput, record("input"))
	require.NoError(t, err)

	assert.Equal(t, []string{"input", "move", "draw"}, h.SystemOrder())

	require.NoError(t, h.Progress(5*time.Millisecond))
	assert.Equal(t, []string{"input", "move", "draw"}, order)

	v, err := h.EntityGet(e, pos)
	require.NoError(t, err)
	assert.Equal(t, uint32(15), getU32(v, 0))

	_, err = h.RegisterSystem("nil", q, host.PhaseUpdate, nil)
	assert.ErrorIs(t, err, host.ErrRejected)
	_, err = h.RegisterSystem("orphan", 42, host.PhaseUpdate, record("orphan"))
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestProgressStopsOnSystemError(t *testing.T) {
	h, pos, _ := newTestHost(t)
	e, _ := h.EntityNew()
	require.NoError(t, h.EntityAdd(e, pos))
	q, err := h.QueryBuild([]host.ComponentID{pos})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = h.RegisterSystem("fail", q, host.PhaseUpdate, func(host.IterHandle, time.Duration) error { return boom })
	require.NoError(t, err)

	err = h.Progress(time.Millisecond)
	assert.ErrorIs(t, err, boom)

	// The failed system's iteration was finished, so entities can be created again.
	_, err = h.EntityNew()
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	h, pos, _ := newTestHost(t)
	require.NoError(t, h.Close())

	_, err := h.EntityNew()
	assert.ErrorIs(t, err, host.ErrClosed)
	_, err = h.RegisterComponent("X", nil, nil)
	assert.ErrorIs(t, err, host.ErrClosed)
	assert.False(t, h.EntityHas(1, pos))
}

func TestColumnRowBounds(t *testing.T) {
	col := host.Column{Data: make([]byte, 8), Stride: 4, Count: 2}
	assert.Len(t, col.Row(1).Data, 4)
	assert.True(t, col.Row(2).Empty())
	assert.True(t, col.Row(-1).Empty())

	tagCol := host.Column{Data: []byte{}, Stride: 0, Count: 3}
	assert.NotNil(t, tagCol.Row(2).Data)
	assert.Empty(t, tagCol.Row(2).Data)
}
