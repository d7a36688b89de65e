package memhost

import (
	"encoding/binary"
	"slices"
	"strconv"
	"strings"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

// componentInfo is the host's own view of a registered schema. The layout is
// computed here from the raw type tags, independently of the caller.
type componentInfo struct {
	id     host.ComponentID
	name   string
	names  []string
	kinds  []schema.Kind
	layout schema.Layout
}

func (c *componentInfo) sameShape(names []string, kinds []schema.Kind) bool {
	return slices.Equal(c.names, names) && slices.Equal(c.kinds, kinds)
}

// table stores every entity that has exactly the same component set.
// Rows are contiguous per component column, in insertion order.
type table struct {
	ids      []host.ComponentID // sorted
	index    map[host.ComponentID]int
	strides  []uint32
	columns  [][]byte
	entities []host.EntityID
}

type location struct {
	table *table
	row   int
}

func tableKey(ids []host.ComponentID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

func newTable(ids []host.ComponentID, infos []*componentInfo) *table {
	t := &table{
		ids:     ids,
		index:   make(map[host.ComponentID]int, len(ids)),
		strides: make([]uint32, len(ids)),
		columns: make([][]byte, len(ids)),
	}
	for i, id := range ids {
		t.index[id] = i
		t.strides[i] = infos[id-1].layout.Size
	}
	return t
}

func (t *table) has(id host.ComponentID) bool {
	_, ok := t.index[id]
	return ok
}

func (t *table) hasAll(ids []host.ComponentID) bool {
	for _, id := range ids {
		if !t.has(id) {
			return false
		}
	}
	return true
}

// appendRow adds a zeroed row for e and returns its index.
func (t *table) appendRow(e host.EntityID) int {
	row := len(t.entities)
	t.entities = append(t.entities, e)
	for i, stride := range t.strides {
		if stride == 0 {
			continue
		}
		t.columns[i] = append(t.columns[i], make([]byte, stride)...)
	}
	return row
}

func (t *table) rowBytes(col, row int) []byte {
	stride := int(t.strides[col])
	start := row * stride
	end := start + stride
	return t.columns[col][start:end:end]
}

// removeRow swap-removes row and returns the entity moved into its place,
// or zero when the removed row was the last one.
func (t *table) removeRow(row int) host.EntityID {
	last := len(t.entities) - 1
	var moved host.EntityID
	if row < last {
		moved = t.entities[last]
		t.entities[row] = moved
		for i, stride := range t.strides {
			if stride == 0 {
				continue
			}
			copy(t.rowBytes(i, row), t.rowBytes(i, last))
		}
	}
	t.entities = t.entities[:last]
	for i, stride := range t.strides {
		if stride == 0 {
			continue
		}
		t.columns[i] = t.columns[i][:last*int(stride)]
	}
	return moved
}

// freeHeapFields releases the heap payloads referenced by a row of info.
func freeHeapFields(h *heap, info *componentInfo, row []byte) {
	for i, k := range info.kinds {
		if !k.Heap() {
			continue
		}
		off := info.layout.Offsets[i]
		handle := binary.LittleEndian.Uint64(row[off : off+8])
		h.free(handle)
	}
}
