package catalog

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DecodeYAML reads a catalog written in YAML. The same two shapes as
// DecodeJSON are accepted, and order is preserved:
//
//	Standard:
//	  E2: 82.41
//	  A2: 110
//
//	- Standard:
//	    - E2: 82.41
//	    - A2: 110
func DecodeYAML(r io.Reader) (Catalog, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Catalog{}, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		return Catalog{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}

	b := newBuilder()
	switch root.Kind {
	case yaml.MappingNode:
		if err := yamlTunings(root, b); err != nil {
			return Catalog{}, err
		}
	case yaml.SequenceNode:
		for _, item := range root.Content {
			if item.Kind != yaml.MappingNode {
				return Catalog{}, yamlError(item, "tuning entry must be a mapping")
			}
			if err := yamlTunings(item, b); err != nil {
				return Catalog{}, err
			}
		}
	default:
		return Catalog{}, yamlError(root, "catalog must be a mapping or a sequence")
	}
	return b.catalog()
}

func yamlTunings(m *yaml.Node, b *builder) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		name, notes := m.Content[i], m.Content[i+1]
		if err := yamlNotes(notes, b, b.begin(name.Value)); err != nil {
			return fmt.Errorf("tuning %q: %w", name.Value, err)
		}
	}
	return nil
}

func yamlNotes(n *yaml.Node, b *builder, idx int) error {
	switch n.Kind {
	case yaml.MappingNode:
		return yamlNotePairs(n, b, idx)
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.MappingNode {
				return yamlError(item, "note entry must be a mapping")
			}
			if err := yamlNotePairs(item, b, idx); err != nil {
				return err
			}
		}
		return nil
	default:
		return yamlError(n, "notes must be a mapping or a sequence")
	}
}

func yamlNotePairs(m *yaml.Node, b *builder, idx int) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return yamlError(val, fmt.Sprintf("note %q frequency must be a number", key.Value))
		}
		freq, err := strconv.ParseFloat(val.Value, 64)
		if err != nil {
			return yamlError(val, fmt.Sprintf("note %q frequency %q is not a number", key.Value, val.Value))
		}
		b.add(idx, Note{Name: key.Value, Frequency: freq})
	}
	return nil
}

func yamlError(n *yaml.Node, msg string) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, n.Line, msg)
}

// EncodeYAML writes the catalog as an ordered mapping of mappings.
func EncodeYAML(w io.Writer, c Catalog) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, t := range c.Tunings {
		notes := &yaml.Node{Kind: yaml.MappingNode}
		for _, n := range t.Notes {
			notes.Content = append(notes.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Name},
				&yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(n.Frequency, 'f', -1, 64)},
			)
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Name},
			notes,
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode catalog yaml: %w", err)
	}
	return enc.Close()
}
