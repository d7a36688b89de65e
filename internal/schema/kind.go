package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind is the language-neutral type tag sent to the host for every field.
// The numeric values are part of the boundary contract and must not change.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindBool
	KindString // UTF-8, stored in the host heap behind an 8-byte handle
	KindBytes  // opaque buffer, stored in the host heap behind an 8-byte handle
	kindEnd
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindI8:      "i8",
	KindI16:     "i16",
	KindI32:     "i32",
	KindI64:     "i64",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindBool:    "bool",
	KindString:  "string",
	KindBytes:   "bytes",
}

// Valid reports whether k is one of the supported primitive kinds.
func (k Kind) Valid() bool { return k > KindInvalid && k < kindEnd }

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Size is the number of bytes the field occupies inside a row.
func (k Kind) Size() uint32 {
	switch k {
	case KindI8, KindU8, KindBool:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64, KindString, KindBytes:
		return 8
	default:
		return 0
	}
}

// Heap reports whether the row slot holds a heap handle instead of the value.
func (k Kind) Heap() bool { return k == KindString || k == KindBytes }

// ParseKind accepts the short names used in schema files and scripts
// ("i32", "f32", "string", ...) plus a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i8", "int8":
		return KindI8, nil
	case "i16", "int16":
		return KindI16, nil
	case "i32", "int32":
		return KindI32, nil
	case "i64", "int64":
		return KindI64, nil
	case "u8", "uint8", "byte":
		return KindU8, nil
	case "u16", "uint16":
		return KindU16, nil
	case "u32", "uint32":
		return KindU32, nil
	case "u64", "uint64":
		return KindU64, nil
	case "f32", "float32":
		return KindF32, nil
	case "f64", "float64":
		return KindF64, nil
	case "bool", "boolean":
		return KindBool, nil
	case "string", "str":
		return KindString, nil
	case "bytes", "buffer", "[]byte":
		return KindBytes, nil
	}
	return KindInvalid, fmt.Errorf("unknown field kind %q", s)
}

// KindOf maps a Go type to its kind. Named types are resolved through their
// underlying kind, so `type Direction uint8` is a u8 field.
func KindOf(t reflect.Type) (Kind, bool) {
	switch t.Kind() {
	case reflect.Int8:
		return KindI8, true
	case reflect.Int16:
		return KindI16, true
	case reflect.Int32:
		return KindI32, true
	case reflect.Int64:
		return KindI64, true
	case reflect.Uint8:
		return KindU8, true
	case reflect.Uint16:
		return KindU16, true
	case reflect.Uint32:
		return KindU32, true
	case reflect.Uint64:
		return KindU64, true
	case reflect.Float32:
		return KindF32, true
	case reflect.Float64:
		return KindF64, true
	case reflect.Bool:
		return KindBool, true
	case reflect.String:
		return KindString, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes, true
		}
	}
	return KindInvalid, false
}
