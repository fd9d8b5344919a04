// Package provider normalizes the three LLM vendor HTTP APIs behind one
// neutral completion contract. Each adapter translates the neutral request
// into its provider's wire format, unwraps the differently-shaped success
// payload, and surfaces a shared error taxonomy. All downstream code consumes
// only the neutral types.
package provider

import (
	"context"
	"time"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Timeout budgets. Interactive question generation runs on the short budget;
// full-document analysis and report synthesis get the long budgets. The
// budget is applied by the caller via context; adapters only translate a
// deadline hit into ErrTimeout.
const (
	ShortTimeout  = 25 * time.Second
	LongTimeout   = 120 * time.Second
	ReportTimeout = 180 * time.Second
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// Request is the provider-neutral completion request. Either Prompt or
// Messages is set; adapters fold a bare Prompt into a single user message.
type Request struct {
	Model       string    `json:"model"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	TopP        float32   `json:"top_p,omitempty"`
}

// messages returns the effective message list for the request.
func (r Request) messages() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	return []Message{{Role: "user", Content: r.Prompt}}
}

// promptText concatenates all message content, used for usage estimation.
func (r Request) promptText() string {
	if len(r.Messages) == 0 {
		return r.Prompt
	}
	var total int
	for _, m := range r.Messages {
		total += len(m.Content) + 1
	}
	buf := make([]byte, 0, total)
	for _, m := range r.Messages {
		buf = append(buf, m.Content...)
		buf = append(buf, '\n')
	}
	return string(buf)
}

// Response is the provider-neutral completion result.
type Response struct {
	Content      string       `json:"content"`
	Usage        models.Usage `json:"usage"`
	FinishReason string       `json:"finish_reason"`
	Model        string       `json:"model"`
}

// Client is the port every provider adapter implements. Complete issues a
// single blocking call; it never retries, and it honors ctx cancellation by
// returning an error wrapping ErrTimeout when the deadline is exceeded.
type Client interface {
	Name() models.Provider
	Complete(ctx context.Context, req Request) (*Response, error)
}
