// Package pricing provides per-model cost rates and token estimation for the
// integrated providers.
package pricing

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Rate holds the cost per million tokens and the output ceiling for a model.
type Rate struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
	MaxTokens        int     `yaml:"max_tokens"`
}

// Table is the per-provider, per-model rate lookup. Unknown models fall back
// to a default tier per provider; Lookup never fails. Reloadable at runtime
// via LoadFile, safe for concurrent readers.
type Table struct {
	mu       sync.RWMutex
	rates    map[models.Provider]map[string]Rate
	defaults map[models.Provider]Rate
}

// NewTable returns a Table seeded with the compiled-in rates.
func NewTable() *Table {
	return &Table{
		rates: map[models.Provider]map[string]Rate{
			models.ProviderOpenAI: {
				"gpt-4o":      {InputPerMillion: 2.50, OutputPerMillion: 10.00, MaxTokens: 16384},
				"gpt-4o-mini": {InputPerMillion: 0.15, OutputPerMillion: 0.60, MaxTokens: 16384},
				"gpt-4-turbo": {InputPerMillion: 10.00, OutputPerMillion: 30.00, MaxTokens: 4096},
				"o3-mini":     {InputPerMillion: 1.10, OutputPerMillion: 4.40, MaxTokens: 65536},
			},
			models.ProviderAnthropic: {
				"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00, MaxTokens: 8192},
				"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00, MaxTokens: 8192},
				"claude-3-opus-20240229":     {InputPerMillion: 15.00, OutputPerMillion: 75.00, MaxTokens: 4096},
			},
			models.ProviderGoogle: {
				"gemini-1.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 5.00, MaxTokens: 8192},
				"gemini-1.5-flash": {InputPerMillion: 0.075, OutputPerMillion: 0.30, MaxTokens: 8192},
				"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40, MaxTokens: 8192},
			},
		},
		defaults: map[models.Provider]Rate{
			models.ProviderOpenAI:    {InputPerMillion: 2.50, OutputPerMillion: 10.00, MaxTokens: 4096},
			models.ProviderAnthropic: {InputPerMillion: 3.00, OutputPerMillion: 15.00, MaxTokens: 4096},
			models.ProviderGoogle:    {InputPerMillion: 1.25, OutputPerMillion: 5.00, MaxTokens: 4096},
		},
	}
}

// Lookup returns the rate for the given provider and model, falling back to
// the provider's default tier for unknown models.
func (t *Table) Lookup(provider models.Provider, model string) Rate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if byModel, ok := t.rates[provider]; ok {
		if r, ok := byModel[model]; ok {
			return r
		}
	}
	return t.defaults[provider]
}

// Cost computes the charge for the given usage at rate r.
// cost = (in*inputRate + out*outputRate) / 1e6, reproducible for fixed counts.
func Cost(r Rate, usage models.Usage) float64 {
	return (float64(usage.InputTokens)*r.InputPerMillion +
		float64(usage.OutputTokens)*r.OutputPerMillion) / 1_000_000
}

// tableFile is the YAML shape of an external pricing file.
type tableFile struct {
	Providers map[string]struct {
		Default Rate            `yaml:"default"`
		Models  map[string]Rate `yaml:"models"`
	} `yaml:"providers"`
}

// LoadFile replaces rates with the contents of a YAML pricing file.
// Providers absent from the file keep their compiled-in rates.
func (t *Table) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range f.Providers {
		provider := models.Provider(name)
		if !provider.Valid() {
			log.Warn().Str("provider", name).Msg("Skipping unknown provider in pricing file")
			continue
		}
		if p.Models != nil {
			t.rates[provider] = p.Models
		}
		if p.Default != (Rate{}) {
			t.defaults[provider] = p.Default
		}
	}
	log.Info().Str("path", path).Msg("Pricing table loaded")
	return nil
}
