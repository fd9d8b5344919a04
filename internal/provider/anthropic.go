package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// Anthropic adapts the neutral completion contract to the Anthropic messages
// API. Auth uses the x-api-key header. The response payload is not relied on
// for usage; token counts are derived from the character estimator.
type Anthropic struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// NewAnthropic creates an Anthropic adapter. baseURL overrides the production
// endpoint when non-empty (tests point it at a local fake).
func NewAnthropic(apiKey, baseURL string) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &Anthropic{apiKey: apiKey, baseURL: baseURL, httpc: &http.Client{}}
}

// Name implements Client.
func (a *Anthropic) Name() models.Provider { return models.ProviderAnthropic }

// anthropicRequest is the wire format of the messages API.
type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
	TopP        float32   `json:"top_p,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

// anthropicResponse is the success payload shape.
type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete implements Client.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	// The messages API carries the system turn as a top-level field.
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = 4096
	}
	for _, m := range req.messages() {
		if m.Role == "system" {
			body.System = m.Content
			continue
		}
		body.Messages = append(body.Messages, m)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpc.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(a.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(a.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: a.Name(), Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, wrapTransport(a.Name(), err)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Response{
		Content:      content,
		FinishReason: parsed.StopReason,
		Model:        parsed.Model,
		Usage: models.Usage{
			InputTokens:  pricing.Estimate(req.promptText(), a.Name()),
			OutputTokens: pricing.Estimate(content, a.Name()),
		},
	}, nil
}
