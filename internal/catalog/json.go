package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeJSON reads a catalog in either of the shapes served by tuning
// services and normalizes it, keeping document order:
//
//	{"Standard": {"E2": 82.41, "A2": 110.0}}
//	[{"Standard": [{"E2": 82.41}, {"A2": 110.0}]}]
//
// The two note shapes may be mixed freely with the two catalog shapes.
func DecodeJSON(r io.Reader) (Catalog, error) {
	dec := json.NewDecoder(r)
	b := newBuilder()

	tok, err := dec.Token()
	if err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	switch tok {
	case json.Delim('{'):
		if err := decodeTunings(dec, b); err != nil {
			return Catalog{}, err
		}
	case json.Delim('['):
		for dec.More() {
			if err := expectDelim(dec, '{'); err != nil {
				return Catalog{}, err
			}
			if err := decodeTunings(dec, b); err != nil {
				return Catalog{}, err
			}
		}
		if err := expectDelim(dec, ']'); err != nil {
			return Catalog{}, err
		}
	default:
		return Catalog{}, fmt.Errorf("%w: unexpected %v at top level", ErrMalformed, tok)
	}

	return b.catalog()
}

// decodeTunings consumes "name": notes pairs up to and including the
// closing brace of an object whose opening brace was already read.
func decodeTunings(dec *json.Decoder, b *builder) error {
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		if err := decodeNotes(dec, b, b.begin(name)); err != nil {
			return fmt.Errorf("tuning %q: %w", name, err)
		}
	}
	return expectDelim(dec, '}')
}

func decodeNotes(dec *json.Decoder, b *builder, idx int) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	switch tok {
	case json.Delim('{'):
		return decodeNoteObject(dec, b, idx)
	case json.Delim('['):
		for dec.More() {
			if err := expectDelim(dec, '{'); err != nil {
				return err
			}
			if err := decodeNoteObject(dec, b, idx); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')
	default:
		return fmt.Errorf("%w: notes must be an object or array, got %v", ErrMalformed, tok)
	}
}

// decodeNoteObject consumes "note": frequency pairs up to the closing brace.
func decodeNoteObject(dec *json.Decoder, b *builder, idx int) error {
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return err
		}
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		freq, ok := tok.(float64)
		if !ok {
			return fmt.Errorf("%w: note %q frequency is %v, want a number", ErrMalformed, name, tok)
		}
		b.add(idx, Note{Name: name, Frequency: freq})
	}
	return expectDelim(dec, '}')
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected a name, got %v", ErrMalformed, tok)
	}
	return s, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformed, want, tok)
	}
	return nil
}

// MarshalJSON writes the flat-map shape in catalog order.
func (c Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range c.Tunings {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, t.Name); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, n := range t.Notes {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, n.Name); err != nil {
				return nil, err
			}
			v, err := json.Marshal(n.Frequency)
			if err != nil {
				return nil, fmt.Errorf("note %s: %w", n.Name, err)
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

// UnmarshalJSON accepts every shape DecodeJSON does.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	if c == nil {
		return errors.New("catalog: UnmarshalJSON on nil pointer")
	}
	cat, err := DecodeJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*c = cat
	return nil
}
