package ecs

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

var le = binary.LittleEndian

// slot returns the bytes of field i inside row. Offsets come from the layout,
// so a slot never reaches past the row.
func slot(d *schema.Descriptor, row []byte, i int) []byte {
	off := d.Layout.Offsets[i]
	end := off + d.FieldKinds[i].Size()
	return row[off:end:end]
}

func readSigned(k schema.Kind, b []byte) int64 {
	switch k {
	case schema.KindI8:
		return int64(int8(b[0]))
	case schema.KindI16:
		return int64(int16(le.Uint16(b)))
	case schema.KindI32:
		return int64(int32(le.Uint32(b)))
	default:
		return int64(le.Uint64(b))
	}
}

func readUnsigned(k schema.Kind, b []byte) uint64 {
	switch k {
	case schema.KindU8, schema.KindBool:
		return uint64(b[0])
	case schema.KindU16:
		return uint64(le.Uint16(b))
	case schema.KindU32:
		return uint64(le.Uint32(b))
	default:
		return le.Uint64(b)
	}
}

func readFloat(k schema.Kind, b []byte) float64 {
	if k == schema.KindF32 {
		return float64(math.Float32frombits(le.Uint32(b)))
	}
	return math.Float64frombits(le.Uint64(b))
}

func writeSigned(k schema.Kind, b []byte, v int64) {
	writeUnsigned(k, b, uint64(v))
}

func writeUnsigned(k schema.Kind, b []byte, v uint64) {
	switch k.Size() {
	case 1:
		b[0] = byte(v)
	case 2:
		le.PutUint16(b, uint16(v))
	case 4:
		le.PutUint32(b, uint32(v))
	default:
		le.PutUint64(b, v)
	}
}

func writeFloat(k schema.Kind, b []byte, v float64) {
	if k == schema.KindF32 {
		le.PutUint32(b, math.Float32bits(float32(v)))
		return
	}
	le.PutUint64(b, math.Float64bits(v))
}

func loadHeap(heap host.Heap, b []byte) []byte {
	if heap == nil {
		return nil
	}
	return heap.Load(le.Uint64(b))
}

func storeHeap(heap host.Heap, b []byte, data []byte) {
	if heap == nil {
		return
	}
	le.PutUint64(b, heap.Store(le.Uint64(b), data))
}

func isSigned(k schema.Kind) bool {
	return k >= schema.KindI8 && k <= schema.KindI64
}

func isUnsigned(k schema.Kind) bool {
	return k >= schema.KindU8 && k <= schema.KindU64
}

// codec copies between a Go struct and a host row. It is built once per
// registered type and reused by every Ref and Column of that type.
type codec struct {
	typ    reflect.Type
	fields []int // struct field index per descriptor field
}

func newCodec(t reflect.Type, d *schema.Descriptor) (*codec, error) {
	idx := schema.FieldIndices(t)
	if len(idx) != len(d.FieldKinds) {
		return nil, fmt.Errorf("%v has %d fields, schema %s has %d", t, len(idx), d.Name, len(d.FieldKinds))
	}
	for i, fi := range idx {
		sf := t.Field(fi)
		k, ok := schema.KindOf(sf.Type)
		if !ok || k != d.FieldKinds[i] || schema.FieldName(sf) != d.FieldNames[i] {
			return nil, fmt.Errorf("%v.%s does not match %s.%s (%s)", t, sf.Name, d.Name, d.FieldNames[i], d.FieldKinds[i])
		}
	}
	return &codec{typ: t, fields: idx}, nil
}

func (c *codec) decode(d *schema.Descriptor, row []byte, heap host.Heap, dst reflect.Value) {
	for i, fi := range c.fields {
		k := d.FieldKinds[i]
		b := slot(d, row, i)
		f := dst.Field(fi)
		switch {
		case isSigned(k):
			f.SetInt(readSigned(k, b))
		case isUnsigned(k):
			f.SetUint(readUnsigned(k, b))
		case k == schema.KindF32 || k == schema.KindF64:
			f.SetFloat(readFloat(k, b))
		case k == schema.KindBool:
			f.SetBool(b[0] != 0)
		case k == schema.KindString:
			f.SetString(string(loadHeap(heap, b)))
		case k == schema.KindBytes:
			f.SetBytes(slices.Clone(loadHeap(heap, b)))
		}
	}
}

func (c *codec) encode(d *schema.Descriptor, row []byte, heap host.Heap, src reflect.Value) {
	for i, fi := range c.fields {
		k := d.FieldKinds[i]
		b := slot(d, row, i)
		f := src.Field(fi)
		switch {
		case isSigned(k):
			writeSigned(k, b, f.Int())
		case isUnsigned(k):
			writeUnsigned(k, b, f.Uint())
		case k == schema.KindF32 || k == schema.KindF64:
			writeFloat(k, b, f.Float())
		case k == schema.KindBool:
			b[0] = 0
			if f.Bool() {
				b[0] = 1
			}
		case k == schema.KindString:
			storeHeap(heap, b, []byte(f.String()))
		case k == schema.KindBytes:
			storeHeap(heap, b, f.Bytes())
		}
	}
}
