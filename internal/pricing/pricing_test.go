package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

func TestLookup_KnownModel(t *testing.T) {
	table := NewTable()

	r := table.Lookup(models.ProviderAnthropic, "claude-3-5-sonnet-20241022")
	assert.Equal(t, 3.00, r.InputPerMillion)
	assert.Equal(t, 15.00, r.OutputPerMillion)
}

func TestLookup_UnknownModelFallsBack(t *testing.T) {
	table := NewTable()

	tests := []struct {
		provider models.Provider
		model    string
	}{
		{models.ProviderOpenAI, "gpt-99-ultra"},
		{models.ProviderAnthropic, "claude-unknown"},
		{models.ProviderGoogle, ""},
	}

	for _, tt := range tests {
		r := table.Lookup(tt.provider, tt.model)
		assert.Greater(t, r.InputPerMillion, 0.0, "provider %s must never resolve to a zero rate", tt.provider)
		assert.Greater(t, r.OutputPerMillion, 0.0)
	}
}

// TestCost_OneMillionInputTokens: a million input tokens at zero output costs
// exactly the input rate.
func TestCost_OneMillionInputTokens(t *testing.T) {
	r := Rate{InputPerMillion: 3.00, OutputPerMillion: 15.00}

	cost := Cost(r, models.Usage{InputTokens: 1_000_000, OutputTokens: 0})
	assert.Equal(t, 3.00, cost)
}

func TestCost_Reproducible(t *testing.T) {
	r := Rate{InputPerMillion: 2.50, OutputPerMillion: 10.00}
	usage := models.Usage{InputTokens: 1234, OutputTokens: 5678}

	first := Cost(r, usage)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Cost(r, usage))
	}
}

func TestCost_Formula(t *testing.T) {
	r := Rate{InputPerMillion: 1.00, OutputPerMillion: 2.00}

	cost := Cost(r, models.Usage{InputTokens: 500_000, OutputTokens: 250_000})
	assert.Equal(t, 1.00, cost) // 0.5 + 0.5
}

func TestEstimate_TableDriven(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		provider models.Provider
		want     int
	}{
		{"empty", "", models.ProviderOpenAI, 0},
		{"openai four chars per token", "abcd", models.ProviderOpenAI, 1},
		{"openai rounds up", "abcde", models.ProviderOpenAI, 2},
		{"google same ratio as openai", "abcdefgh", models.ProviderGoogle, 2},
		{"anthropic denser ratio", "abcdefg", models.ProviderAnthropic, 2},
		{"anthropic exact multiple", "abcdefghijklmn", models.ProviderAnthropic, 4}, // 14/3.5
		{"unknown provider uses default ratio", "abcd", models.Provider("other"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Estimate(tt.text, tt.provider))
		})
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	text := "the same text, estimated repeatedly"
	first := Estimate(text, models.ProviderAnthropic)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Estimate(text, models.ProviderAnthropic))
	}
}

func TestCounter_FallbackProviders(t *testing.T) {
	c := NewCounter()

	// Non-OpenAI providers always use the character heuristic.
	assert.Equal(t, Estimate("hello world", models.ProviderGoogle), c.Count("hello world", models.ProviderGoogle))
	assert.Equal(t, Estimate("hello world", models.ProviderAnthropic), c.Count("hello world", models.ProviderAnthropic))
}

func TestCounter_OpenAI(t *testing.T) {
	c := NewCounter()

	n := c.Count("hello world", models.ProviderOpenAI)
	assert.Greater(t, n, 0)
	assert.Less(t, n, len("hello world")) // BPE merges multi-char tokens
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")

	content := `providers:
  openai:
    default:
      input_per_million: 9.0
      output_per_million: 18.0
      max_tokens: 2048
    models:
      gpt-test:
        input_per_million: 1.0
        output_per_million: 2.0
        max_tokens: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table := NewTable()
	require.NoError(t, table.LoadFile(path))

	r := table.Lookup(models.ProviderOpenAI, "gpt-test")
	assert.Equal(t, 1.0, r.InputPerMillion)

	// Unknown models now use the file's default tier.
	r = table.Lookup(models.ProviderOpenAI, "gpt-unknown")
	assert.Equal(t, 9.0, r.InputPerMillion)

	// Providers absent from the file keep compiled-in rates.
	r = table.Lookup(models.ProviderAnthropic, "claude-3-5-sonnet-20241022")
	assert.Equal(t, 3.00, r.InputPerMillion)
}

func TestLoadFile_MissingFile(t *testing.T) {
	table := NewTable()
	err := table.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	// Table remains usable after a failed load.
	r := table.Lookup(models.ProviderGoogle, "gemini-1.5-pro")
	assert.Equal(t, 1.25, r.InputPerMillion)
}
