package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"

	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

// Google adapts the neutral completion contract to the Gemini generateContent
// API. Unlike the other two providers, auth travels as a query-string key.
// Usage is derived from the character estimator.
type Google struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// NewGoogle creates a Google adapter. baseURL overrides the production
// endpoint when non-empty.
func NewGoogle(apiKey, baseURL string) *Google {
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &Google{apiKey: apiKey, baseURL: baseURL, httpc: &http.Client{}}
}

// Name implements Client.
func (g *Google) Name() models.Provider { return models.ProviderGoogle }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

// googleRequest is the generateContent wire format.
type googleRequest struct {
	Contents         []googleContent `json:"contents"`
	SystemInstruction *googleContent `json:"systemInstruction,omitempty"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float32 `json:"temperature,omitempty"`
		TopP            float32 `json:"topP,omitempty"`
	} `json:"generationConfig"`
}

// googleResponse is the success payload shape.
type googleResponse struct {
	Candidates []struct {
		Content      googleContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Complete implements Client.
func (g *Google) Complete(ctx context.Context, req Request) (*Response, error) {
	var body googleRequest
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.TopP = req.TopP

	// Gemini uses "model" for assistant turns and a separate system field.
	for _, m := range req.messages() {
		switch m.Role {
		case "system":
			body.SystemInstruction = &googleContent{Parts: []googlePart{{Text: m.Content}}}
		case "assistant":
			body.Contents = append(body.Contents, googleContent{Role: "model", Parts: []googlePart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, googleContent{Role: "user", Parts: []googlePart{{Text: m.Content}}})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(req.Model), url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		return nil, wrapTransport(g.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(g.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Provider: g.Name(), Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed googleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, wrapTransport(g.Name(), err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, &HTTPError{Provider: g.Name(), Status: resp.StatusCode, Body: "no candidates in response"}
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}

	model := parsed.ModelVersion
	if model == "" {
		model = req.Model
	}

	return &Response{
		Content:      content,
		FinishReason: parsed.Candidates[0].FinishReason,
		Model:        model,
		Usage: models.Usage{
			InputTokens:  pricing.Estimate(req.promptText(), g.Name()),
			OutputTokens: pricing.Estimate(content, g.Name()),
		},
	}, nil
}
