package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{"tuning", "note", "frequency"}

// LoadCSV reads tuning,note,frequency rows. A leading header row is
// optional. Rows for one tuning need not be contiguous; notes keep the
// order in which they appear.
func LoadCSV(r io.Reader) (Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	b := newBuilder()
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if first {
			first = false
			if strings.EqualFold(rec[0], csvHeader[0]) && strings.EqualFold(rec[1], csvHeader[1]) {
				continue
			}
		}

		freq, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			line, _ := cr.FieldPos(2)
			return Catalog{}, fmt.Errorf("%w: line %d: frequency %q: %w", ErrMalformed, line, rec[2], err)
		}
		idx := b.begin(strings.TrimSpace(rec[0]))
		b.add(idx, Note{Name: strings.TrimSpace(rec[1]), Frequency: freq})
	}
	return b.catalog()
}

// SaveCSV writes the catalog with a header row.
func SaveCSV(w io.Writer, c Catalog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range c.Tunings {
		for _, n := range t.Notes {
			rec := []string{t.Name, n.Name, strconv.FormatFloat(n.Frequency, 'f', -1, 64)}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
