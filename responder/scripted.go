package responder

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatmesh/core"
)

// Scripted is a deterministic in-memory Responder useful for tests, demos
// and offline development. Replies are keyed by the last user message; the
// streaming path chunks the reply into fixed-size fragments.
type Scripted struct {
	replies   map[string]core.Completion
	fallback  core.Completion
	chunkSize int
	failWith  error
	failAfter int
	aggregate bool
}

// ScriptedOptions configures a Scripted responder.
type ScriptedOptions struct {
	// ChunkSize is the fragment length used on the streaming path.
	ChunkSize int
	// Fallback is returned for prompts without a registered reply.
	Fallback core.Completion
	// AggregateOnly suppresses text fragments so the stream only reports its
	// final completion, mimicking backends without streaming support.
	AggregateOnly bool
	// FailAfterFragments aborts the stream with an error after that many
	// fragments were emitted (0 disables). Simulates a partial stream.
	FailAfterFragments int
}

// NewScripted constructs a Scripted responder.
func NewScripted(optFns ...func(o *ScriptedOptions)) *Scripted {
	opts := ScriptedOptions{
		ChunkSize: 4,
		Fallback:  core.Completion{Text: "I'm not sure how to help with that.", Handler: "General Chat Assistant"},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scripted{
		replies:   make(map[string]core.Completion),
		fallback:  opts.Fallback,
		chunkSize: opts.ChunkSize,
		failAfter: opts.FailAfterFragments,
		aggregate: opts.AggregateOnly,
	}
}

// AddReply registers a canned completion for a user prompt.
func (s *Scripted) AddReply(prompt, text, handler string) {
	s.replies[prompt] = core.Completion{Text: text, Handler: handler}
}

// FailWith makes every subsequent call fail with err.
func (s *Scripted) FailWith(err error) { s.failWith = err }

func (s *Scripted) lookup(msgs []core.Message) (core.Completion, error) {
	if s.failWith != nil {
		return core.Completion{}, core.NewResponderError("scripted", s.failWith)
	}
	if len(msgs) == 0 {
		return core.Completion{}, core.NewResponderError("scripted", fmt.Errorf("no messages provided"))
	}
	last := msgs[len(msgs)-1]
	if c, ok := s.replies[last.Content]; ok {
		return c, nil
	}
	return s.fallback, nil
}

// Complete implements core.Responder.
func (s *Scripted) Complete(_ context.Context, msgs []core.Message) (core.Completion, error) {
	return s.lookup(msgs)
}

// Stream implements core.Responder. The reply is emitted as a handler change
// followed by chunked text fragments, unless configured aggregate-only.
func (s *Scripted) Stream(ctx context.Context, msgs []core.Message) *core.ResponderStream {
	st := core.NewResponderStream(32)

	go func() {
		completion, err := s.lookup(msgs)
		if err != nil {
			st.Fail(err)
			return
		}
		if !st.Emit(ctx, core.HandlerChangedEvent{Name: completion.Handler}) {
			st.Close(completion)
			return
		}
		if !s.aggregate {
			text := completion.Text
			sent := 0
			for i := 0; i < len(text); i += s.chunkSize {
				if s.failAfter > 0 && sent >= s.failAfter {
					st.Fail(core.NewResponderError("scripted", fmt.Errorf("stream interrupted")))
					return
				}
				end := i + s.chunkSize
				if end > len(text) {
					end = len(text)
				}
				if !st.Emit(ctx, core.TextFragmentEvent{Text: text[i:end]}) {
					break
				}
				sent++
			}
		}
		st.Close(completion)
	}()

	return st
}
