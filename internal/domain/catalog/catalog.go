// Package catalog holds the descriptive content shipped with the service:
// model cards, training statistics and example inputs.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultDocument []byte

// ErrInvalid is returned for catalog documents that fail validation.
var ErrInvalid = errors.New("invalid catalog")

// ModelCard describes one model family.
type ModelCard struct {
	Type     string `yaml:"type" json:"type"`
	Accuracy string `yaml:"accuracy" json:"accuracy"`
	UseCase  string `yaml:"use_case" json:"use_case"`
}

// Example is a named input with a short explanation.
type Example struct {
	Description string             `yaml:"description"`
	Features    map[string]float64 `yaml:"features"`
}

// Flatten returns the example as a single map of features plus
// "description", the shape clients submit back to /api/predict.
func (e Example) Flatten() map[string]any {
	out := make(map[string]any, len(e.Features)+1)
	for k, v := range e.Features {
		out[k] = v
	}
	out["description"] = e.Description
	return out
}

// Catalog is immutable after Load.
type Catalog struct {
	Models   map[string]ModelCard      `yaml:"models"`
	Stats    map[string]map[string]any `yaml:"stats"`
	Examples map[string]Example        `yaml:"examples"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(bytes.NewReader(defaultDocument))
}

// Load reads the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a catalog document.
func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for name, ex := range c.Examples {
		if len(ex.Features) == 0 {
			return nil, fmt.Errorf("%w: example %q has no features", ErrInvalid, name)
		}
	}
	return &c, nil
}

// Model returns the card for a model family.
func (c *Catalog) Model(name string) (ModelCard, bool) {
	m, ok := c.Models[name]
	return m, ok
}

// Example returns the named example.
func (c *Catalog) Example(name string) (Example, bool) {
	e, ok := c.Examples[name]
	return e, ok
}
