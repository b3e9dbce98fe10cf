package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads the catalog from a local file on every call so edits
// are picked up without restarting. The format follows the extension:
// .csv, .yaml/.yml or .json.
type FileProvider struct {
	path   string
	decode func(io.Reader) (Catalog, error)
}

// NewFileProvider selects a decoder from the file extension.
func NewFileProvider(path string) (*FileProvider, error) {
	var decode func(io.Reader) (Catalog, error)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		decode = LoadCSV
	case ".yaml", ".yml":
		decode = DecodeYAML
	case ".json":
		decode = DecodeJSON
	default:
		return nil, fmt.Errorf("catalog file %q: unsupported extension (want .csv, .yaml, .yml or .json)", path)
	}
	return &FileProvider{path: path, decode: decode}, nil
}

// Path returns the file read by Tunings.
func (p *FileProvider) Path() string {
	return p.path
}

// Tunings opens and decodes the file. Failure to open it is reported as an
// *UnavailableError; a malformed file is returned as is.
func (p *FileProvider) Tunings(context.Context) (Catalog, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return Catalog{}, &UnavailableError{Source: p.path, Err: err}
	}
	defer f.Close()

	cat, err := p.decode(f)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog file %q: %w", p.path, err)
	}
	return cat, nil
}

// Save writes c to path in the format implied by its extension.
func Save(path string, c Catalog) (err error) {
	var encode func(io.Writer, Catalog) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		encode = SaveCSV
	case ".yaml", ".yml":
		encode = EncodeYAML
	case ".json":
		encode = func(w io.Writer, c Catalog) error {
			data, err := c.MarshalJSON()
			if err != nil {
				return err
			}
			_, err = w.Write(append(data, '\n'))
			return err
		}
	default:
		return fmt.Errorf("catalog file %q: unsupported extension (want .csv, .yaml, .yml or .json)", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create catalog file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return encode(f, c)
}
