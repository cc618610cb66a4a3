package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by lookup surfaces (history, reset) when an
// identity does not resolve. The message path never surfaces it; it falls
// back to creating a session instead.
var ErrSessionNotFound = errors.New("session not found")

// ResponderError wraps an upstream generation failure (network, quota,
// malformed output). Retries, if any, are the backend's concern.
type ResponderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ResponderError) Error() string {
	return fmt.Sprintf("responder %s: %v", e.Provider, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ResponderError) Unwrap() error { return e.Err }

// NewResponderError wraps err with the originating provider name.
func NewResponderError(provider string, err error) *ResponderError {
	return &ResponderError{Provider: provider, Err: err}
}

// Completion is the normalized result of a run-to-completion responder call.
// Handler names the profile that produced the text and may be empty when the
// backend does not report one.
type Completion struct {
	Text    string
	Handler string
}

// ResponderEvent is a polymorphic event emitted by a streaming responder.
// Concrete event types implement the unexported marker enabling a closed set.
type ResponderEvent interface{ isResponderEvent() }

// HandlerChangedEvent signals that a different responder profile took over
// the conversation.
type HandlerChangedEvent struct {
	Name string
}

func (HandlerChangedEvent) isResponderEvent() {}

// TextFragmentEvent carries an incremental piece of the assistant response.
type TextFragmentEvent struct {
	Text string
}

func (TextFragmentEvent) isResponderEvent() {}

// RawEvent carries an opaque provider payload that the orchestrator does not
// interpret. Kept for debugging visibility.
type RawEvent struct {
	Payload any
}

func (RawEvent) isResponderEvent() {}

// Responder is the text-generation capability invoked with conversation
// context. Implementations own upstream routing/classification; which
// specialized profile answers is configuration, not orchestrator logic.
type Responder interface {
	// Complete runs the responder to completion over the given context.
	Complete(ctx context.Context, msgs []Message) (Completion, error)

	// Stream runs the responder as an event sequence. The returned stream is
	// finite, consumed once and forward-only; it may terminate early with an
	// error instead of a normal close.
	Stream(ctx context.Context, msgs []Message) *ResponderStream
}

// ResponderStream is the consume-once event sequence produced by a streaming
// responder run. Events are read from Events until it closes; afterwards Err
// reports an abnormal termination and Final the aggregate result for backends
// that only produce complete responses.
type ResponderStream struct {
	events chan ResponderEvent
	errCh  chan error
	final  Completion
}

// NewResponderStream allocates a stream with the given event buffer size.
func NewResponderStream(buf int) *ResponderStream {
	if buf <= 0 {
		buf = 32
	}
	return &ResponderStream{
		events: make(chan ResponderEvent, buf),
		errCh:  make(chan error, 1),
	}
}

// Events returns the receive side of the event sequence.
func (s *ResponderStream) Events() <-chan ResponderEvent { return s.events }

// Err reports the abnormal-termination error, if any. It is non-blocking and
// only meaningful after Events has closed.
func (s *ResponderStream) Err() error {
	select {
	case err := <-s.errCh:
		return err
	default:
		return nil
	}
}

// Final returns the aggregate completion reported by the producer. Only
// meaningful after Events has closed; the channel close provides the
// happens-before edge.
func (s *ResponderStream) Final() Completion { return s.final }

// Emit delivers an event to the consumer, honoring ctx cancellation. It
// reports whether the event was delivered. Producer-side helper.
func (s *ResponderStream) Emit(ctx context.Context, ev ResponderEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case s.events <- ev:
		return true
	}
}

// Close ends the stream normally, recording the aggregate completion.
// Producer-side helper; must be called exactly once, after all Emit calls.
func (s *ResponderStream) Close(final Completion) {
	s.final = final
	close(s.events)
}

// Fail ends the stream abnormally with err. Producer-side helper; must be
// called instead of Close, at most once.
func (s *ResponderStream) Fail(err error) {
	s.errCh <- err
	close(s.events)
}
