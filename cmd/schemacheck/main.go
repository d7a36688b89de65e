// schemacheck validates YAML component schemas against the standard component
// set and optionally diffs them against a previous catalog snapshot.
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/toxoid/toxoid-go/internal/component"
	"github.com/toxoid/toxoid-go/internal/core/ecs"
	"github.com/toxoid/toxoid-go/internal/core/host/memhost"
	"github.com/toxoid/toxoid-go/internal/persist"
	"github.com/toxoid/toxoid-go/internal/schema"
)

type snapshotEntry struct {
	Name        string   `yaml:"name"`
	Fingerprint string   `yaml:"fingerprint"`
	Fields      []string `yaml:"fields,omitempty"`
	Kinds       []string `yaml:"kinds,omitempty"`
	Size        uint32   `yaml:"size"`
}

func main() {
	out := flag.String("o", "", "write the resulting catalog snapshot to this YAML file")
	prev := flag.String("prev", "", "diff against a snapshot written by an earlier run")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: schemacheck [-o catalog.yaml] [-prev catalog.yaml] <schema-dir>")
		os.Exit(2)
	}
	if err := check(flag.Arg(0), *out, *prev); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func check(dir, out, prev string) error {
	defs, err := schema.LoadDir(dir)
	if err != nil {
		return err
	}
	if _, err := schema.Build(defs); err != nil {
		return err
	}

	// Register both sets in a scratch world so name clashes with the Go
	// components surface the same way they would at startup.
	w, err := ecs.NewWorld(memhost.New(nil, memhost.Options{}), nil)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := component.Init(w); err != nil {
		return err
	}
	if _, err := w.RegisterDefinitions(defs); err != nil {
		return err
	}

	current := persist.EntriesOf(w.Descriptors())
	for _, e := range current {
		fmt.Printf("%-28s %4d bytes  %016x  %s\n", e.Name, e.RowSize, e.Fingerprint, e.Layout())
	}
	fmt.Printf("%d components (%d from %s)\n", len(current), len(defs), dir)

	if prev != "" {
		previous, err := readSnapshot(prev)
		if err != nil {
			return err
		}
		d := persist.Diff(previous, current)
		for _, n := range d.Added {
			fmt.Println("+", n)
		}
		for _, n := range d.Removed {
			fmt.Println("-", n)
		}
		for _, c := range d.Changed {
			fmt.Println("~", c)
		}
		if !d.Empty() {
			defer fmt.Fprintln(os.Stderr, "catalog drifted")
		}
	}

	if out != "" {
		return writeSnapshot(out, current)
	}
	return nil
}

func readSnapshot(path string) ([]persist.CatalogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap []snapshotEntry
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]persist.CatalogEntry, len(snap))
	for i, s := range snap {
		var fp uint64
		if _, err := fmt.Sscanf(s.Fingerprint, "%x", &fp); err != nil {
			return nil, fmt.Errorf("%s: %s: bad fingerprint %q", path, s.Name, s.Fingerprint)
		}
		out[i] = persist.CatalogEntry{Name: s.Name, Fingerprint: fp, FieldNames: s.Fields, FieldKinds: s.Kinds, RowSize: s.Size}
	}
	return out, nil
}

func writeSnapshot(path string, entries []persist.CatalogEntry) error {
	snap := make([]snapshotEntry, len(entries))
	for i, e := range entries {
		snap[i] = snapshotEntry{
			Name:        e.Name,
			Fingerprint: fmt.Sprintf("%016x", e.Fingerprint),
			Fields:      e.FieldNames,
			Kinds:       e.FieldKinds,
			Size:        e.RowSize,
		}
	}
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
