package cost

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rates.yaml
var defaultRatesYAML []byte

const perMillion = 1_000_000.0

// Rate is a price in USD per million tokens.
type Rate struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// RateTable maps model names to rates. Unknown models use Default.
type RateTable struct {
	Default Rate            `yaml:"default"`
	Models  map[string]Rate `yaml:"models"`
}

// DefaultRates returns the embedded rate table.
func DefaultRates() RateTable {
	t, err := ParseRates(defaultRatesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rates.yaml: %v", err))
	}
	return t
}

// LoadRatesFile reads a rate table from disk.
func LoadRatesFile(path string) (RateTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RateTable{}, err
	}
	return ParseRates(raw)
}

// ParseRates decodes a YAML rate table.
func ParseRates(raw []byte) (RateTable, error) {
	var t RateTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return RateTable{}, fmt.Errorf("parse rates: %w", err)
	}
	if t.Default.Input < 0 || t.Default.Output < 0 {
		return RateTable{}, fmt.Errorf("parse rates: negative default rate")
	}
	normalized := make(map[string]Rate, len(t.Models))
	for name, r := range t.Models {
		if r.Input < 0 || r.Output < 0 {
			return RateTable{}, fmt.Errorf("parse rates: negative rate for %s", name)
		}
		normalized[strings.ToLower(strings.TrimSpace(name))] = r
	}
	t.Models = normalized
	return t, nil
}

// Lookup returns the rate for model and whether it was found in the table.
func (t RateTable) Lookup(model string) (Rate, bool) {
	r, ok := t.Models[strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		return t.Default, false
	}
	return r, true
}

// Cost computes input_tokens*input_rate + output_tokens*output_rate.
func (t RateTable) Cost(model string, inputTokens, outputTokens int) float64 {
	r, _ := t.Lookup(model)
	return float64(inputTokens)*r.Input/perMillion + float64(outputTokens)*r.Output/perMillion
}
