package ecs

import (
	"fmt"
	"math"
	"reflect"
	"slices"

	"github.com/toxoid/toxoid-go/internal/core/host"
	"github.com/toxoid/toxoid-go/internal/schema"
)

// Accessor is a name- and index-based window over one component row. The
// zero Accessor is empty: reads return zero values and writes fail.
type Accessor struct {
	w      *World
	entry  *entry
	entity EntityID
	view   host.View
	epoch  uint64
}

func (w *World) accessor(e *entry, entity EntityID, v host.View) Accessor {
	return Accessor{w: w, entry: e, entity: entity, view: v, epoch: w.epoch}
}

// Valid reports whether the accessor points at a live row in the current scope.
func (a Accessor) Valid() bool {
	return a.w != nil && a.entry != nil && !a.view.Empty() && a.w.epoch == a.epoch && !a.w.closed
}

func (a Accessor) Entity() EntityID { return a.entity }

func (a Accessor) Component() ComponentID {
	if a.entry == nil {
		return 0
	}
	return a.entry.id
}

// Descriptor returns the schema of the row, or the zero descriptor.
func (a Accessor) Descriptor() schema.Descriptor {
	if a.entry == nil {
		return schema.Descriptor{}
	}
	return a.entry.desc
}

func (a Accessor) field(name string) (int, error) {
	if a.entry == nil {
		return -1, newError(NotAttached, "field", name, nil)
	}
	i := a.entry.desc.FieldIndex(name)
	if i < 0 {
		return -1, fmt.Errorf("%s has no field %q", a.entry.desc.Name, name)
	}
	return i, nil
}

// Get reads a field by name. Integers come back as int64 or uint64, floats as
// float64, strings as string and buffers as []byte.
func (a Accessor) Get(name string) (any, error) {
	i, err := a.field(name)
	if err != nil {
		return nil, err
	}
	return a.GetIndex(i)
}

// GetIndex reads field i.
func (a Accessor) GetIndex(i int) (any, error) {
	if a.entry == nil || i < 0 || i >= len(a.entry.desc.FieldKinds) {
		return nil, fmt.Errorf("field index %d out of range", i)
	}
	if !a.Valid() {
		return zeroOf(a.entry.desc.FieldKinds[i]), a.invalid("get")
	}
	d := &a.entry.desc
	k := d.FieldKinds[i]
	b := slot(d, a.view.Data, i)
	switch {
	case isSigned(k):
		return readSigned(k, b), nil
	case isUnsigned(k):
		return readUnsigned(k, b), nil
	case k == schema.KindF32 || k == schema.KindF64:
		return readFloat(k, b), nil
	case k == schema.KindBool:
		return b[0] != 0, nil
	case k == schema.KindString:
		return string(loadHeap(a.view.Heap, b)), nil
	default:
		return slices.Clone(loadHeap(a.view.Heap, b)), nil
	}
}

// Set writes a field by name, converting v to the field's kind. Numeric
// values that do not fit the field are rejected.
func (a Accessor) Set(name string, v any) error {
	i, err := a.field(name)
	if err != nil {
		return err
	}
	return a.SetIndex(i, v)
}

// SetIndex writes field i.
func (a Accessor) SetIndex(i int, v any) error {
	if a.entry == nil || i < 0 || i >= len(a.entry.desc.FieldKinds) {
		return fmt.Errorf("field index %d out of range", i)
	}
	if !a.Valid() {
		return a.invalid("set")
	}
	d := &a.entry.desc
	k := d.FieldKinds[i]
	b := slot(d, a.view.Data, i)
	switch {
	case isSigned(k):
		n, err := toSigned(v, k)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, d.FieldNames[i], err)
		}
		writeSigned(k, b, n)
	case isUnsigned(k):
		n, err := toUnsigned(v, k)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, d.FieldNames[i], err)
		}
		writeUnsigned(k, b, n)
	case k == schema.KindF32 || k == schema.KindF64:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%s.%s: cannot store %T as %s", d.Name, d.FieldNames[i], v, k)
		}
		writeFloat(k, b, f)
	case k == schema.KindBool:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%s.%s: cannot store %T as bool", d.Name, d.FieldNames[i], v)
		}
		b[0] = 0
		if bv {
			b[0] = 1
		}
	default:
		var data []byte
		switch x := v.(type) {
		case string:
			data = []byte(x)
		case []byte:
			data = x
		default:
			return fmt.Errorf("%s.%s: cannot store %T as %s", d.Name, d.FieldNames[i], v, k)
		}
		storeHeap(a.view.Heap, b, data)
	}
	return nil
}

func (a Accessor) invalid(op string) error {
	name := ""
	if a.entry != nil {
		name = a.entry.desc.Name
	}
	if a.w != nil && !a.view.Empty() && a.w.epoch != a.epoch {
		return fmt.Errorf("%s %s: %w", op, name, ErrStaleView)
	}
	return newError(NotAttached, op, name, nil)
}

func zeroOf(k schema.Kind) any {
	switch {
	case isSigned(k):
		return int64(0)
	case isUnsigned(k):
		return uint64(0)
	case k == schema.KindF32 || k == schema.KindF64:
		return float64(0)
	case k == schema.KindBool:
		return false
	case k == schema.KindString:
		return ""
	default:
		return []byte(nil)
	}
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toSigned(v any, k schema.Kind) (int64, error) {
	var n int64
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return 0, fmt.Errorf("%v overflows %s", v, k)
		}
		n = int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		n = int64(f)
	default:
		return 0, fmt.Errorf("cannot store %T as %s", v, k)
	}
	bits := k.Size() * 8
	if bits < 64 {
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return 0, fmt.Errorf("%d overflows %s", n, k)
		}
	}
	return n, nil
}

func toUnsigned(v any, k schema.Kind) (uint64, error) {
	var n uint64
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() < 0 {
			return 0, fmt.Errorf("%d is negative", rv.Int())
		}
		n = uint64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n = rv.Uint()
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
			return 0, fmt.Errorf("%v is not an unsigned integer", v)
		}
		n = uint64(f)
	default:
		return 0, fmt.Errorf("cannot store %T as %s", v, k)
	}
	bits := k.Size() * 8
	if bits < 64 && n > uint64(1)<<bits-1 {
		return 0, fmt.Errorf("%d overflows %s", n, k)
	}
	return n, nil
}

// Ref is a typed accessor for a registered Go struct T. The zero Ref is
// empty; Load returns the zero T and Store fails.
type Ref[T any] struct {
	acc Accessor
}

// Valid reports whether the ref points at a live row in the current scope.
func (r Ref[T]) Valid() bool { return r.acc.Valid() }

func (r Ref[T]) Entity() EntityID { return r.acc.entity }

// Accessor exposes the untyped view of the same row.
func (r Ref[T]) Accessor() Accessor { return r.acc }

func (r Ref[T]) typed() bool {
	c := r.acc.entry.codec
	return c != nil && c.typ == reflect.TypeFor[T]()
}

// Load copies the row into a T.
func (r Ref[T]) Load() T {
	var v T
	if !r.Valid() || !r.typed() {
		return v
	}
	r.acc.entry.codec.decode(&r.acc.entry.desc, r.acc.view.Data, r.acc.view.Heap, reflect.ValueOf(&v).Elem())
	return v
}

// Store writes v into the row.
func (r Ref[T]) Store(v T) error {
	if !r.Valid() {
		return r.acc.invalid("store")
	}
	if !r.typed() {
		return fmt.Errorf("store %s: not bound to %v", r.acc.entry.desc.Name, reflect.TypeFor[T]())
	}
	r.acc.entry.codec.encode(&r.acc.entry.desc, r.acc.view.Data, r.acc.view.Heap, reflect.ValueOf(&v).Elem())
	return nil
}

// Update loads the row, applies fn and stores the result.
func (r Ref[T]) Update(fn func(*T)) error {
	if !r.Valid() {
		return r.acc.invalid("update")
	}
	v := r.Load()
	fn(&v)
	return r.Store(v)
}
