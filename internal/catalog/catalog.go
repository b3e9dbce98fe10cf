// Package catalog supplies the tunings a musician can pick a target string
// from. Every source (built-in, HTTP, CSV, YAML) is normalized at the
// boundary into an ordered Catalog of ordered notes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable indicates the catalog source could not be read
	ErrUnavailable = errors.New("tuning catalog unavailable")
	// ErrMalformed indicates the catalog data does not have a supported shape
	ErrMalformed = errors.New("malformed tuning catalog")
	// ErrUnknownTuning indicates the named tuning is not in the catalog
	ErrUnknownTuning = errors.New("unknown tuning")
	// ErrUnknownNote indicates no string in the tuning matches the selection
	ErrUnknownNote = errors.New("unknown note")
)

// UnavailableError reports a failed fetch from a catalog source.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tuning catalog unavailable from %s: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnavailable so callers need not know the concrete type.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Provider supplies a tuning catalog.
type Provider interface {
	Tunings(ctx context.Context) (Catalog, error)
}

// Note is one string of a tuning.
type Note struct {
	Name      string
	Frequency float64
}

func (n Note) String() string {
	return fmt.Sprintf("%s - %.2f Hz", n.Name, n.Frequency)
}

// Tuning is a named, ordered set of strings.
type Tuning struct {
	Name  string
	Notes []Note
}

// Select resolves a selection made by the user: a 1-based string index
// or a note name (case-insensitive). If several strings share a name the
// first wins.
func (t Tuning) Select(sel string) (Note, error) {
	sel = strings.TrimSpace(sel)
	if i, err := strconv.Atoi(sel); err == nil {
		if i < 1 || i > len(t.Notes) {
			return Note{}, fmt.Errorf("%w: string %d of %d in %q", ErrUnknownNote, i, len(t.Notes), t.Name)
		}
		return t.Notes[i-1], nil
	}
	for _, n := range t.Notes {
		if strings.EqualFold(n.Name, sel) {
			return n, nil
		}
	}
	return Note{}, fmt.Errorf("%w: %q in %q", ErrUnknownNote, sel, t.Name)
}

// Catalog is an ordered list of tunings.
type Catalog struct {
	Tunings []Tuning
}

// Names returns the tuning names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c.Tunings))
	for i, t := range c.Tunings {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a tuning by exact name.
func (c Catalog) Lookup(name string) (Tuning, error) {
	for _, t := range c.Tunings {
		if t.Name == name {
			return t, nil
		}
	}
	return Tuning{}, fmt.Errorf("%w: %q", ErrUnknownTuning, name)
}

// Validate rejects empty catalogs, unnamed entries and bad frequencies.
func (c Catalog) Validate() error {
	if len(c.Tunings) == 0 {
		return fmt.Errorf("%w: no tunings", ErrMalformed)
	}
	var errs []error
	seen := make(map[string]bool, len(c.Tunings))
	for _, t := range c.Tunings {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%w: tuning without a name", ErrMalformed))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate tuning %q", ErrMalformed, t.Name))
		}
		seen[t.Name] = true
		if len(t.Notes) == 0 {
			errs = append(errs, fmt.Errorf("%w: tuning %q has no notes", ErrMalformed, t.Name))
		}
		for _, n := range t.Notes {
			if n.Name == "" {
				errs = append(errs, fmt.Errorf("%w: unnamed note in %q", ErrMalformed, t.Name))
			}
			if math.IsNaN(n.Frequency) || math.IsInf(n.Frequency, 0) || n.Frequency < 0 {
				errs = append(errs, fmt.Errorf("%w: %s in %q has frequency %v", ErrMalformed, n.Name, t.Name, n.Frequency))
			}
		}
	}
	return errors.Join(errs...)
}

// builder accumulates notes per tuning preserving first-seen order.
type builder struct {
	index map[string]int
	cat   Catalog
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

// begin returns the position of the named tuning, appending it if new.
func (b *builder) begin(tuning string) int {
	i, ok := b.index[tuning]
	if !ok {
		i = len(b.cat.Tunings)
		b.index[tuning] = i
		b.cat.Tunings = append(b.cat.Tunings, Tuning{Name: tuning})
	}
	return i
}

func (b *builder) add(i int, n Note) {
	b.cat.Tunings[i].Notes = append(b.cat.Tunings[i].Notes, n)
}

func (b *builder) catalog() (Catalog, error) {
	if err := b.cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return b.cat, nil
}
