package provider

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// OpenAI adapts the neutral completion contract to the OpenAI chat API.
// This is the only provider that reports exact usage on every response.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{client: openai.NewClient(apiKey)}
}

// NewOpenAIWithBaseURL creates an adapter pointed at a custom endpoint,
// used by tests to target a local fake.
func NewOpenAIWithBaseURL(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

// Name implements Client.
func (o *OpenAI) Name() models.Provider { return models.ProviderOpenAI }

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.messages()))
	for _, m := range req.messages() {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{Provider: o.Name(), Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, wrapTransport(o.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, &HTTPError{Provider: o.Name(), Status: 200, Body: "empty choices in response"}
	}

	usage := models.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	content := resp.Choices[0].Message.Content
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		// OpenAI-compatible endpoints may omit usage entirely.
		usage.InputTokens = pricing.Estimate(req.promptText(), o.Name())
		usage.OutputTokens = pricing.Estimate(content, o.Name())
	}

	return &Response{
		Content:      content,
		Usage:        usage,
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        resp.Model,
	}, nil
}
