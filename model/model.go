package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/milehighfry405/gtm-factory-sub000/core"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the model conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request captures the normalized model input.
type Request struct {
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"` // 0 uses the adapter default
	Stream    bool      `json:"stream,omitempty"`
	JSON      bool      `json:"json,omitempty"` // reply must be a single JSON object
}

// Turns normalizes messages for providers that require strictly alternating
// roles starting with the user: empty messages are dropped, consecutive
// messages of one role are merged and leading assistant turns are skipped.
// Unknown roles count as user turns.
func Turns(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(out) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Text += "\n\n" + msg.Text
			continue
		}
		out = append(out, Message{Role: role, Text: msg.Text})
	}
	return out
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "max_tokens", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by workers and extractors to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Result is the collected outcome of a Generate call.
type Result struct {
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// Collect drains a Generate call. Partial chunks are concatenated unless a
// final response carries the full text.
func Collect(ctx context.Context, m Model, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	respCh, errCh := m.Generate(ctx, req)

	var (
		res     Result
		partial strings.Builder
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Usage != nil {
				res.Usage = *r.Usage
			}
			if r.Partial {
				partial.WriteString(r.Text)
				continue
			}
			res.Text = r.Text
			res.FinishReason = r.FinishReason
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if res.Text == "" {
		res.Text = partial.String()
	}
	return &res, nil
}

// TransportError marks err as transient when it is a network failure or the
// provider answered with a retryable HTTP status (429, 5xx).
func TransportError(err error, status int) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return err
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	errs      []error
	usage     TokenUsage
	calls     []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a user prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetDefault sets the completion returned for prompts without a canned
// response. Without one the mock echoes the prompt.
func (m *MockModel) SetDefault(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
}

// FailNext queues errors returned by the next calls, one per call.
func (m *MockModel) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// SetUsage sets the usage reported with every response.
func (m *MockModel) SetUsage(u TokenUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = u
}

// Calls returns the requests received so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var failure error
	if len(m.errs) > 0 {
		failure, m.errs = m.errs[0], m.errs[1:]
	}
	var inputText string
	if n := len(req.Messages); n > 0 {
		inputText = req.Messages[n-1].Text
	}
	full, ok := m.responses[inputText]
	if !ok && m.fallback != "" {
		full, ok = m.fallback, true
	}
	usage := m.usage
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failure != nil {
			errCh <- failure
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		if !ok {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: string(r)}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop", Usage: &usage}:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
