package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk form of a schema file:
//
//	components:
//	  - name: Position
//	    fields:
//	      - { name: x, kind: i32 }
//	      - { name: y, kind: i32 }
//	tags: [Player, Food]
type fileSchema struct {
	Components []fileComponent `yaml:"components"`
	Tags       []string        `yaml:"tags"`
}

type fileComponent struct {
	Name   string      `yaml:"name"`
	Fields []fileField `yaml:"fields"`
}

type fileField struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
}

// Parse decodes one schema document.
func Parse(raw []byte) ([]Definition, error) {
	var fs fileSchema
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		return nil, err
	}
	defs := make([]Definition, 0, len(fs.Components)+len(fs.Tags))
	for _, c := range fs.Components {
		def := Definition{Name: c.Name, Fields: make([]Field, 0, len(c.Fields))}
		for _, f := range c.Fields {
			k, err := ParseKind(f.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
			}
			def.Fields = append(def.Fields, Field{Name: f.Name, Kind: k})
		}
		defs = append(defs, def)
	}
	for _, t := range fs.Tags {
		defs = append(defs, Definition{Name: t})
	}
	return defs, nil
}

// LoadFile reads a single YAML schema file.
func LoadFile(path string) ([]Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	defs, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return defs, nil
}

// LoadDir reads every *.yaml / *.yml file in dir. Files are parsed
// concurrently but merged in file-name order so the batch is deterministic.
// A missing directory yields no definitions.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read schema dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	results := make([][]Definition, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			defs, err := LoadFile(p)
			if err != nil {
				return err
			}
			results[i] = defs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Definition
	for _, defs := range results {
		out = append(out, defs...)
	}
	return out, nil
}
