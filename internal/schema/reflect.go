package schema

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// TagKey is the struct tag consulted for field names. `ecs:"-"` skips a field.
const TagKey = "ecs"

// Of derives a Definition from the Go struct T.
func Of[T any]() (Definition, error) {
	return FromType(reflect.TypeFor[T]())
}

// FromType derives a Definition from a struct type. The component name is the
// Go type name; field names come from the `ecs` tag or the snake_cased Go name.
// Only exported fields of supported kinds are accepted, anything else fails so
// the Go value and the host row can never disagree.
func FromType(t reflect.Type) (Definition, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return Definition{}, fmt.Errorf("%w: %v is not a struct", ErrInvalid, t)
	}
	def := Definition{Name: t.Name()}
	if def.Name == "" {
		return Definition{}, fmt.Errorf("%w: anonymous struct %v", ErrInvalid, t)
	}
	for _, idx := range FieldIndices(t) {
		sf := t.Field(idx)
		k, ok := KindOf(sf.Type)
		if !ok {
			return Definition{}, fmt.Errorf("%w: %s.%s: unsupported type %v", ErrInvalid, def.Name, sf.Name, sf.Type)
		}
		def.Fields = append(def.Fields, Field{Name: FieldName(sf), Kind: k})
	}
	return def, nil
}

// FieldIndices lists the struct fields that take part in the schema, in order.
func FieldIndices(t reflect.Type) []int {
	var out []int
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get(TagKey) == "-" {
			continue
		}
		out = append(out, i)
	}
	return out
}

// FieldName resolves the schema name of a struct field.
func FieldName(sf reflect.StructField) string {
	if tag := sf.Tag.Get(TagKey); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name
		}
	}
	return snake(sf.Name)
}

func snake(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
