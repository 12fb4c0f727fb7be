// Package promptfile reads prompt definition files.
package promptfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissingField is returned when a required field is absent or null.
var ErrMissingField = errors.New("missing required field")

// Source is the on-disk format of a prompt definition: a YAML mapping with
// two required text fields. Unknown keys are ignored.
type Source struct {
	Prefix string
	Suffix string
}

// wire keeps nil for absent or null keys so they can be told apart from
// empty strings.
type wire struct {
	Prefix *string `yaml:"prefix"`
	Suffix *string `yaml:"suffix"`
}

// Parse reads and decodes the file at path.
func Parse(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return Source{}, err
	}
	defer f.Close()

	src, err := Decode(f)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// Decode reads a single YAML document from r.
func Decode(r io.Reader) (Source, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return Source{}, fmt.Errorf("%w: prefix", ErrMissingField)
		}
		return Source{}, fmt.Errorf("invalid yaml: %w", err)
	}

	doc := &node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return Source{}, fmt.Errorf("invalid prompt file: top level must be a mapping")
	}

	var w wire
	if err := doc.Decode(&w); err != nil {
		return Source{}, fmt.Errorf("invalid prompt file: %w", err)
	}
	if w.Prefix == nil {
		return Source{}, fmt.Errorf("%w: prefix", ErrMissingField)
	}
	if w.Suffix == nil {
		return Source{}, fmt.Errorf("%w: suffix", ErrMissingField)
	}
	return Source{Prefix: *w.Prefix, Suffix: *w.Suffix}, nil
}
