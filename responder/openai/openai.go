// Package openai provides a core.Responder backed by the OpenAI Chat
// Completions API (blocking + streaming). Routing happens before generation:
// the message is classified against the routing table and the selected
// profile's instructions become the system message, so classification stays
// configuration data rather than orchestrator logic.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/routing"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI responder. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	Table               *routing.Table
	EventBufferSize     int
}

// Responder wraps the OpenAI Chat Completions API behind core.Responder.
type Responder struct {
	client *openai.Client
	table  *routing.Table
	opts   Options
}

// New creates a responder using the default OpenAI client (API key from the
// environment).
func New(optFns ...func(o *Options)) *Responder {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a responder from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Responder {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Table:               routing.Default(),
		EventBufferSize:     32,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Responder{client: client, table: opts.Table, opts: opts}
}

// route classifies the latest user message and returns the serving profile.
func (r *Responder) route(msgs []core.Message) routing.Profile {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return r.table.Classify(msgs[i].Content)
		}
	}
	return r.table.Lookup(r.table.FallbackName())
}

// buildParams converts conversation context into Chat Completion parameters
// with the profile's instructions as system message.
func (r *Responder) buildParams(profile routing.Profile, msgs []core.Message) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	messages = append(messages, openai.SystemMessage(profile.Instructions))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               r.opts.Model,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	}
}

// Complete implements core.Responder.
func (r *Responder) Complete(ctx context.Context, msgs []core.Message) (core.Completion, error) {
	profile := r.route(msgs)
	resp, err := r.client.Chat.Completions.New(ctx, r.buildParams(profile, msgs))
	if err != nil {
		return core.Completion{}, core.NewResponderError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return core.Completion{}, core.NewResponderError("openai", fmt.Errorf("no choices returned"))
	}
	return core.Completion{Text: resp.Choices[0].Message.Content, Handler: profile.Name}, nil
}

// Stream implements core.Responder. The handler change is emitted before the
// first text fragment; the aggregate completion is recorded on close.
func (r *Responder) Stream(ctx context.Context, msgs []core.Message) *core.ResponderStream {
	st := core.NewResponderStream(r.opts.EventBufferSize)
	profile := r.route(msgs)
	params := r.buildParams(profile, msgs)

	go func() {
		if !st.Emit(ctx, core.HandlerChangedEvent{Name: profile.Name}) {
			st.Close(core.Completion{Handler: profile.Name})
			return
		}

		stream := r.client.Chat.Completions.NewStreaming(ctx, params)
		var full []byte
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				full = append(full, ch.Delta.Content...)
				if !st.Emit(ctx, core.TextFragmentEvent{Text: ch.Delta.Content}) {
					st.Close(core.Completion{Text: string(full), Handler: profile.Name})
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			st.Fail(core.NewResponderError("openai", err))
			return
		}
		st.Close(core.Completion{Text: string(full), Handler: profile.Name})
	}()

	return st
}
