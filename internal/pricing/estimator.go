package pricing

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Chars-per-token ratios used when a provider does not report exact usage.
// Claude tokenizes slightly denser than GPT-style BPE vocabularies.
const (
	ratioOpenAI    = 4.0
	ratioAnthropic = 3.5
	ratioGoogle    = 4.0
)

// Estimate approximates the token count of text for the given provider as
// ceil(len(text)/ratio). Pure and deterministic; no I/O.
func Estimate(text string, provider models.Provider) int {
	if len(text) == 0 {
		return 0
	}
	ratio := ratioOpenAI
	switch provider {
	case models.ProviderAnthropic:
		ratio = ratioAnthropic
	case models.ProviderGoogle:
		ratio = ratioGoogle
	}
	// ceil(n/ratio) in exact integer math (ratios are multiples of 0.1).
	den := int(ratio * 10)
	return (len(text)*10 + den - 1) / den
}

// Counter provides exact token counts where a real tokenizer is available,
// falling back to Estimate otherwise. Used for pre-flight prompt sizing; the
// billing path always uses provider-reported usage or Estimate.
type Counter struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewCounter returns a lazy tokenizer-backed counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the token count of text for the given provider. OpenAI models
// are counted with the cl100k BPE vocabulary; other providers use Estimate.
func (c *Counter) Count(text string, provider models.Provider) int {
	if provider != models.ProviderOpenAI {
		return Estimate(text, provider)
	}
	c.once.Do(func() {
		c.codec, c.err = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if c.err != nil || c.codec == nil {
		return Estimate(text, provider)
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return Estimate(text, provider)
	}
	return len(ids)
}
