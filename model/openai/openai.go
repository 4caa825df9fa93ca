// Package openai adapts the OpenAI Chat Completions API, including
// streaming, to model.Model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/milehighfry405/gtm-factory-sub000/model"
)

// Options configure the adapter. MaxRetries is passed to the SDK client; it
// defaults to zero because the dispatcher owns the retry policy.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	MaxRetries          int
}

// Model serves model.Requests through Chat Completions.
type Model struct {
	client *openai.Client
	opts   Options
}

var _ model.Model = (*Model)(nil)

func newOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = openai.ChatModelGPT4oMini
	}
	return opts
}

// NewModel creates a Model with its own client. The API key falls back to
// OPENAI_API_KEY.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := newOptions(optFns...)
	clientOpts := []option.RequestOption{option.WithMaxRetries(opts.MaxRetries)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a Model over an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	return &Model{client: client, opts: newOptions(optFns...)}
}

func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params, err := m.params(req)
		if err != nil {
			errCh <- err
			return
		}
		if req.Stream {
			m.stream(ctx, params, out, errCh)
			return
		}
		m.complete(ctx, params, out, errCh)
	}()
	return out, errCh
}

func (m *Model) params(req model.Request) (openai.ChatCompletionNewParams, error) {
	turns := model.Turns(req.Messages)
	if len(turns) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("openai: request has no user message")
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, t := range turns {
		if t.Role == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
			continue
		}
		msgs = append(msgs, openai.UserMessage(t.Text))
	}

	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := openai.ChatCompletionNewParams{
		Messages:            msgs,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

// stream forwards every content delta as a partial response and ends with
// the accumulated text once a choice reports its finish reason.
func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response, errCh chan<- error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text  strings.Builder
		final *model.Response
		usage *model.TokenUsage
	)
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = tokenUsage(chunk.Usage)
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				out <- model.Response{ID: chunk.ID, Partial: true, Text: ch.Delta.Content}
			}
			if ch.FinishReason != "" {
				final = &model.Response{ID: chunk.ID, FinishReason: ch.FinishReason}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai stream: %w", classify(err))
		return
	}
	if final != nil {
		final.Text = text.String()
		final.Usage = usage
		out <- *final
	}
}

func (m *Model) complete(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response, errCh chan<- error) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai: %w", classify(err))
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- errors.New("openai: no choices returned")
		return
	}
	choice := resp.Choices[0]
	out <- model.Response{
		ID:           resp.ID,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        tokenUsage(resp.Usage),
	}
}

func tokenUsage(u openai.CompletionUsage) *model.TokenUsage {
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return model.TransportError(err, apiErr.StatusCode)
	}
	return model.TransportError(err, 0)
}

func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}
