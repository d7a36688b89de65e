package persist

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/toxoid/toxoid-go/internal/schema"
)

// CatalogEntry is the stored shape of one registered component.
type CatalogEntry struct {
	Name        string
	Fingerprint uint64
	FieldNames  []string
	FieldKinds  []string
	RowSize     uint32
	UpdatedAt   time.Time
}

// EntryOf converts a descriptor into its catalog form.
func EntryOf(d schema.Descriptor) CatalogEntry {
	kinds := make([]string, len(d.FieldKinds))
	for i, k := range d.FieldKinds {
		kinds[i] = k.String()
	}
	return CatalogEntry{
		Name:        d.Name,
		Fingerprint: d.Fingerprint,
		FieldNames:  slices.Clone(d.FieldNames),
		FieldKinds:  kinds,
		RowSize:     d.Size(),
	}
}

// EntriesOf converts descriptors, sorted by name.
func EntriesOf(descs []schema.Descriptor) []CatalogEntry {
	out := make([]CatalogEntry, len(descs))
	for i, d := range descs {
		out[i] = EntryOf(d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Layout renders the field list as "name:kind, ...", or "tag".
func (e CatalogEntry) Layout() string {
	if len(e.FieldNames) == 0 {
		return "tag"
	}
	parts := make([]string, len(e.FieldNames))
	for i, n := range e.FieldNames {
		k := ""
		if i < len(e.FieldKinds) {
			k = e.FieldKinds[i]
		}
		parts[i] = n + ":" + k
	}
	return strings.Join(parts, ", ")
}

// Change is a component whose layout differs between two catalogs.
type Change struct {
	Name   string
	Before CatalogEntry
	After  CatalogEntry
}

func (c Change) String() string {
	return fmt.Sprintf("%s: (%s) -> (%s)", c.Name, c.Before.Layout(), c.After.Layout())
}

// Drift lists the differences between a stored catalog and the current one.
type Drift struct {
	Added   []string
	Removed []string
	Changed []Change
}

// Empty reports whether the catalogs match.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares catalogs by name and fingerprint. Results are sorted by name.
func Diff(previous, current []CatalogEntry) Drift {
	prev := make(map[string]CatalogEntry, len(previous))
	for _, e := range previous {
		prev[e.Name] = e
	}
	var d Drift
	seen := make(map[string]struct{}, len(current))
	for _, e := range current {
		seen[e.Name] = struct{}{}
		p, ok := prev[e.Name]
		switch {
		case !ok:
			d.Added = append(d.Added, e.Name)
		case p.Fingerprint != e.Fingerprint:
			d.Changed = append(d.Changed, Change{Name: e.Name, Before: p, After: e})
		}
	}
	for _, e := range previous {
		if _, ok := seen[e.Name]; !ok {
			d.Removed = append(d.Removed, e.Name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Name < d.Changed[j].Name })
	return d
}
