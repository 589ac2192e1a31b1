package dsl

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// decoders maps a document kind to its typed decoder. Registered once at
// package init; Decode dispatches on the "kind" key.
var decoders = map[string]func(map[string]any) (any, error){
	KindWorkflow: func(raw map[string]any) (any, error) {
		var doc WorkflowDoc
		if err := decodeInto(raw, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	},
	KindPolicy: func(raw map[string]any) (any, error) {
		var doc PolicyDoc
		if err := decodeInto(raw, &doc); err != nil {
			return nil, err
		}
		return doc, nil
	},
}

// Decode parses one YAML definition document and returns either a
// WorkflowDoc or a PolicyDoc.
func Decode(raw []byte) (any, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}

	kind, _ := generic["kind"].(string)
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	return decode(generic)
}

func decodeInto(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("malformed document: %w", err)
	}
	return nil
}
