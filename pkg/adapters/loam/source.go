// Package loam adapts a loam document repository to the DefinitionSource
// port. Each definition lives in one document's YAML frontmatter; the
// markdown body is free-form description and never parsed. Documents
// without a "kind" key (readme, notes) are ignored.
package loam

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aretw0/loam"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbiter/pkg/ports"
)

// DocumentMeta is the raw frontmatter of a definition document. Decoding
// into typed documents happens in pkg/dsl, keyed on the "kind" field.
type DocumentMeta map[string]any

// Source implements ports.DefinitionSource over a loam repository.
type Source struct {
	Repo *loam.TypedRepository[DocumentMeta]
}

// New creates a source over an existing typed repository.
func New(repo *loam.TypedRepository[DocumentMeta]) *Source {
	return &Source{Repo: repo}
}

// Open initializes a read-only loam repository at path and returns a
// source over it.
func Open(path string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	repo, err := loam.Init(absPath, loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[DocumentMeta](repo)), nil
}

// Load returns every definition document's frontmatter re-serialized as
// YAML, ready for dsl.Build.
func (s *Source) Load(ctx context.Context) ([]ports.Definition, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	defs := make([]ports.Definition, 0, len(docs))
	for _, doc := range docs {
		if _, hasKind := doc.Data["kind"]; !hasKind {
			continue
		}
		raw, err := yaml.Marshal(map[string]any(doc.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s: %w", doc.ID, err)
		}
		defs = append(defs, ports.Definition{Name: doc.ID, Raw: raw})
	}
	return defs, nil
}

// Watch implements ports.Watchable.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
