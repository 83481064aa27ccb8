package units

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Unit struct {
	Display string  `yaml:"display" json:"display"`
	Kind    string  `yaml:"kind" json:"kind"` // weight or height
	Factor  float64 `yaml:"factor" json:"factor"`
}

type Catalog struct {
	Units map[string]Unit `yaml:"units" json:"units"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Units) == 0 {
		return Catalog{}, fmt.Errorf("unit catalog empty")
	}
	return cat, nil
}

func (c Catalog) Lookup(symbol string) (Unit, bool) {
	if c.Units == nil {
		return Unit{}, false
	}
	unit, ok := c.Units[strings.ToLower(strings.TrimSpace(symbol))]
	return unit, ok
}

// SupportsWeight reports whether symbol is a known weight unit.
func (c Catalog) SupportsWeight(symbol string) bool {
	unit, ok := c.Lookup(symbol)
	return ok && unit.Kind == "weight"
}

// SupportsHeight reports whether symbol is a known height unit.
func (c Catalog) SupportsHeight(symbol string) bool {
	unit, ok := c.Lookup(symbol)
	return ok && unit.Kind == "height"
}

// ToCanonical converts a value to the canonical unit of its kind
// (kilograms for weight, meters for height).
func (c Catalog) ToCanonical(value float64, symbol string) (float64, error) {
	unit, ok := c.Lookup(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", symbol)
	}
	return value * unit.Factor, nil
}

// DefaultCatalog covers the units the upstream store accepts.
func DefaultCatalog() Catalog {
	return Catalog{Units: map[string]Unit{
		"kg": {Display: "Kilograms", Kind: "weight", Factor: 1},
		"lb": {Display: "Pounds", Kind: "weight", Factor: 0.45359237},
		"m":  {Display: "Meters", Kind: "height", Factor: 1},
		"cm": {Display: "Centimeters", Kind: "height", Factor: 0.01},
		"ft": {Display: "Feet", Kind: "height", Factor: 0.3048},
	}}
}
