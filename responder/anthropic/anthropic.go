// Package anthropic provides a core.Responder backed by the Anthropic
// Messages API. Generation is run to completion; the streaming path reports
// the selected profile and returns the full text as the aggregate result,
// which the orchestrator replays to the client as a single content delta.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/routing"
)

// Options configures the Anthropic responder (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	Table       *routing.Table
}

// Responder wraps the Anthropic Messages API behind core.Responder.
type Responder struct {
	client *anthropic.Client
	table  *routing.Table
	opts   Options
}

// New creates a responder using the official client.
func New(optFns ...func(o *Options)) *Responder {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Responder{client: &client, table: opts.Table, opts: opts}
}

// NewFromClient creates a responder from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Responder {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Responder{client: client, table: opts.Table, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
		Table:       routing.Default(),
	}
}

func (r *Responder) route(msgs []core.Message) routing.Profile {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return r.table.Classify(msgs[i].Content)
		}
	}
	return r.table.Lookup(r.table.FallbackName())
}

func (r *Responder) buildParams(profile routing.Profile, msgs []core.Message) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return anthropic.MessageNewParams{
		Model:       r.opts.Model,
		Messages:    messages,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: profile.Instructions}},
	}
}

// Complete implements core.Responder.
func (r *Responder) Complete(ctx context.Context, msgs []core.Message) (core.Completion, error) {
	profile := r.route(msgs)

	resp, err := r.client.Messages.New(ctx, r.buildParams(profile, msgs))
	if err != nil {
		return core.Completion{}, core.NewResponderError("anthropic", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return core.Completion{}, core.NewResponderError("anthropic", fmt.Errorf("empty response"))
	}

	return core.Completion{Text: text, Handler: profile.Name}, nil
}

// Stream implements core.Responder by running to completion and reporting
// the aggregate result; the orchestrator's fallback turns it into a single
// content delta for the client.
func (r *Responder) Stream(ctx context.Context, msgs []core.Message) *core.ResponderStream {
	st := core.NewResponderStream(4)

	go func() {
		profile := r.route(msgs)
		if !st.Emit(ctx, core.HandlerChangedEvent{Name: profile.Name}) {
			st.Close(core.Completion{Handler: profile.Name})
			return
		}

		completion, err := r.Complete(ctx, msgs)
		if err != nil {
			st.Fail(err)
			return
		}
		st.Close(completion)
	}()

	return st
}
