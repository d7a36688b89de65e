// Package schema turns declarative component definitions into the
// language-neutral descriptors the host uses to lay out component storage.
package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// ErrCollision is returned by Build when two definitions share a name.
var ErrCollision = errors.New("schema collision")

// ErrInvalid is returned by Build for a malformed definition.
var ErrInvalid = errors.New("invalid schema")

// Field is one named, typed member of a component.
type Field struct {
	Name string
	Kind Kind
}

// Definition is the authoring form of a component: a name plus ordered fields.
// A definition without fields describes a tag.
type Definition struct {
	Name   string
	Fields []Field
}

// Descriptor is the validated, host-facing form of a Definition.
type Descriptor struct {
	Name        string
	FieldNames  []string
	FieldKinds  []Kind
	Layout      Layout
	Fingerprint uint64
}

// Tag reports whether the descriptor has no payload.
func (d Descriptor) Tag() bool { return len(d.FieldNames) == 0 }

// Size is the row size in bytes.
func (d Descriptor) Size() uint32 { return d.Layout.Size }

// FieldIndex returns the position of the named field, or -1.
func (d Descriptor) FieldIndex(name string) int {
	for i, n := range d.FieldNames {
		if n == name {
			return i
		}
	}
	return -1
}

// TypeTags returns the field kinds as raw bytes, the shape the boundary expects.
func (d Descriptor) TypeTags() []uint8 {
	tags := make([]uint8, len(d.FieldKinds))
	for i, k := range d.FieldKinds {
		tags[i] = uint8(k)
	}
	return tags
}

// Build validates a batch of definitions and returns one descriptor per
// definition, in input order. It has no side effects.
func Build(defs []Definition) ([]Descriptor, error) {
	seen := make(map[string]int, len(defs))
	out := make([]Descriptor, 0, len(defs))
	for i, def := range defs {
		d, err := Describe(def)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q defined at %d and %d", ErrCollision, d.Name, prev, i)
		}
		seen[d.Name] = i
		out = append(out, d)
	}
	return out, nil
}

// Describe validates a single definition.
func Describe(def Definition) (Descriptor, error) {
	name, err := normalizeName(def.Name)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: component: %v", ErrInvalid, err)
	}
	d := Descriptor{
		Name:       name,
		FieldNames: make([]string, 0, len(def.Fields)),
		FieldKinds: make([]Kind, 0, len(def.Fields)),
	}
	fieldSeen := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		fn, err := normalizeName(f.Name)
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %s: field: %v", ErrInvalid, name, err)
		}
		if !f.Kind.Valid() {
			return Descriptor{}, fmt.Errorf("%w: %s.%s: unsupported kind %s", ErrInvalid, name, fn, f.Kind)
		}
		if _, dup := fieldSeen[fn]; dup {
			return Descriptor{}, fmt.Errorf("%w: %s: duplicate field %q", ErrInvalid, name, fn)
		}
		fieldSeen[fn] = struct{}{}
		d.FieldNames = append(d.FieldNames, fn)
		d.FieldKinds = append(d.FieldKinds, f.Kind)
	}
	d.Layout = ComputeLayout(d.FieldKinds)
	d.Fingerprint = fingerprint(d)
	return d, nil
}

// normalizeName rejects empty or non UTF-8 names and folds the rest to NFC,
// so names that only differ in normalization collide.
func normalizeName(s string) (string, error) {
	if s == "" {
		return "", errors.New("empty name")
	}
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("name %q is not valid UTF-8", s)
	}
	return norm.NFC.String(s), nil
}

func fingerprint(d Descriptor) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(d.Name)
	var buf [4]byte
	for i, n := range d.FieldNames {
		binary.LittleEndian.PutUint32(buf[:], uint32(len(n)))
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(n)
		_, _ = h.Write([]byte{byte(d.FieldKinds[i])})
	}
	return h.Sum64()
}
