// Package anthropic adapts the Anthropic Messages API to model.Model.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/milehighfry405/gtm-factory-sub000/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = anthropic.Model("claude-sonnet-4-5")

// jsonPrefill opens the assistant turn of JSON requests so the reply starts
// inside the object.
const jsonPrefill = "{"

// Options configures the adapter. MaxRetries is passed to the SDK client;
// it defaults to zero because the dispatcher owns the retry policy.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	MaxRetries  int
}

// Model serves model.Requests through the Messages API. Streaming requests
// are answered with a single final response.
type Model struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func newOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:       DefaultModel,
		Temperature: 0.2,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	return opts
}

// NewModel creates a Model with its own client. The API key falls back to
// ANTHROPIC_API_KEY.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := newOptions(optFns...)
	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a Model over an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: newOptions(optFns...)}
}

func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params, err := m.params(req)
		if err != nil {
			errCh <- err
			return
		}
		msg, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic: %w", classify(err))
			return
		}
		resp := toResponse(msg)
		if req.JSON {
			resp.Text = jsonPrefill + resp.Text
		}
		out <- resp
	}()

	return out, errCh
}

func (m *Model) params(req model.Request) (anthropic.MessageNewParams, error) {
	turns := model.Turns(req.Messages)
	if len(turns) == 0 {
		return anthropic.MessageNewParams{}, errors.New("anthropic: request has no user message")
	}
	if req.JSON && turns[len(turns)-1].Role == model.RoleUser {
		turns = append(turns, model.Message{Role: model.RoleAssistant, Text: jsonPrefill})
	}

	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    messages(turns),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params, nil
}

func messages(turns []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Text)
		if t.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

func toResponse(msg *anthropic.Message) model.Response {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	finish := string(msg.StopReason)
	if finish == "" {
		finish = "stop"
	}
	in, outTokens := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return model.Response{
		ID:           msg.ID,
		Text:         text.String(),
		FinishReason: finish,
		Usage:        &model.TokenUsage{PromptTokens: in, CompletionTokens: outTokens, TotalTokens: in + outTokens},
	}
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return model.TransportError(err, apiErr.StatusCode)
	}
	return model.TransportError(err, 0)
}

func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic"}
}
