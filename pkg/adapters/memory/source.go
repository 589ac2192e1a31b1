// Package memory provides an in-memory DefinitionSource, mostly for tests
// and embedded setups where definitions ship inside the binary.
package memory

import (
	"context"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbiter/pkg/ports"
)

// Source implements ports.DefinitionSource over an in-memory map.
type Source struct {
	defs map[string][]byte
}

// NewSource creates a source with the provided raw data (YAML strings).
func NewSource(data map[string]string) *Source {
	defs := make(map[string][]byte)
	for k, v := range data {
		defs[k] = []byte(v)
	}
	return &Source{
		defs: defs,
	}
}

// Set adds or replaces a raw definition. Later Loads see the new content,
// which lets tests exercise reload paths.
func (s *Source) Set(name, raw string) {
	s.defs[name] = []byte(raw)
}

// NewFromDocuments creates a source from document maps, serializing them
// automatically. This improves DX for tests that build definitions in code.
func NewFromDocuments(docs map[string]map[string]any) (*Source, error) {
	defs := make(map[string][]byte)
	for name, doc := range docs {
		if name == "" {
			return nil, fmt.Errorf("document missing name")
		}
		raw, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document %s: %w", name, err)
		}
		defs[name] = raw
	}
	return &Source{defs: defs}, nil
}

// Load returns every definition in name order.
func (s *Source) Load(_ context.Context) ([]ports.Definition, error) {
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	sort.Strings(names) // Deterministic order

	out := make([]ports.Definition, 0, len(names))
	for _, name := range names {
		out = append(out, ports.Definition{Name: name, Raw: s.defs[name]})
	}
	return out, nil
}
