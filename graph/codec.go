package graph

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/goalflow/core"
)

// Document bundles a goal with the graph that pursues it. Both halves are
// optional in the YAML source; LoadFile requires at least the graph.
type Document struct {
	Goal  *core.Goal      `yaml:"goal,omitempty"`
	Graph *core.GraphSpec `yaml:"graph,omitempty"`
}

// Parse decodes a bare graph definition. Unknown fields are rejected so
// typos in hand-written definitions fail loudly instead of silently
// producing an empty field.
func Parse(data []byte) (*core.GraphSpec, error) {
	var g core.GraphSpec
	if err := decodeStrict(data, &g); err != nil {
		return nil, fmt.Errorf("graph: parse: %w", err)
	}
	return &g, nil
}

// ParseDocument decodes a combined goal+graph document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: parse document: %w", err)
	}
	return &doc, nil
}

// Marshal encodes a document back to YAML.
func Marshal(doc *Document) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}
	return data, nil
}

// LoadOptions configures LoadFile.
type LoadOptions struct {
	// SkipValidation loads the graph without structural checks. Intended for
	// tools that inspect broken definitions.
	SkipValidation bool
}

// LoadFile reads a YAML file holding either a goal+graph document or a bare
// graph, validates the graph and returns the document. Validation warnings
// do not fail the load; structural errors do.
func LoadFile(path string, optFns ...func(o *LoadOptions)) (*Document, error) {
	opts := LoadOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read %s: %w", path, err)
	}

	doc, err := ParseDocument(data)
	if err != nil || doc.Graph == nil {
		g, bareErr := Parse(data)
		if bareErr != nil || g.ID == "" {
			if err == nil {
				err = fmt.Errorf("no graph section and no bare graph definition")
			}
			return nil, fmt.Errorf("graph: load %s: %w", path, err)
		}
		doc = &Document{Graph: g}
	}

	if !opts.SkipValidation {
		if err := Validate(doc.Graph).Err(doc.Graph.ID); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}
