package ports

import "context"

// Definition is one raw workflow or policy document as loaded from a
// definition repository. Raw is the YAML body; Name identifies the document
// for error reporting.
type Definition struct {
	Name string
	Raw  []byte
}

// DefinitionSource loads the workflow and policy documents that configure
// an engine. Implementations decide where documents live (loam repository,
// embedded files, a config service).
type DefinitionSource interface {
	Load(ctx context.Context) ([]Definition, error)
}

// Watchable is an optional extension of DefinitionSource for sources that
// can signal document changes. The channel carries the changed document
// name.
type Watchable interface {
	Watch(ctx context.Context) (<-chan string, error)
}
