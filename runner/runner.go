package runner

import (
	"context"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/session"
)

// BlockedMessage replaces an assistant response that failed output
// validation. The real content is discarded and never persisted.
const BlockedMessage = "This response was blocked by the content policy."

// Request is one inbound chat message with optional conversation continuity.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Result is the structured outcome of a non-streaming turn. Collaborator
// failures surface here as Success=false with a human-readable Error; they
// never escape as Go errors to the transport layer. SessionID is always
// populated so retry-in-place is possible.
type Result struct {
	Reply     string `json:"response"`
	Handler   string `json:"agent_used,omitempty"`
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// InputValidator screens user messages before the responder runs.
	InputValidator core.Validator
	// OutputValidator screens assistant responses before they are recorded.
	OutputValidator core.Validator
	// FallbackHandler names turns whose backend reports no handler.
	FallbackHandler string
	// EventBufferSize sets channel buffering for stream events.
	EventBufferSize int
	// Logger receives orchestration diagnostics.
	Logger logging.Logger
}

// Runner coordinates turns against a session store and a responder. Public
// methods are safe for concurrent use; no session lock is held while waiting
// on the responder.
type Runner struct {
	store     *session.InMemoryStore
	responder core.Responder

	inputValidator  core.Validator
	outputValidator core.Validator
	fallbackHandler string
	eventBufferSize int
	logger          logging.Logger
}

// New constructs a Runner with optional overrides. Validators default to nil
// (no screening).
func New(store *session.InMemoryStore, responder core.Responder, optFns ...func(o *Options)) *Runner {
	opts := Options{
		FallbackHandler: "Triage Assistant",
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		store:           store,
		responder:       responder,
		inputValidator:  opts.InputValidator,
		outputValidator: opts.OutputValidator,
		fallbackHandler: opts.FallbackHandler,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
	}
}

// Run executes one non-streaming turn: resolve session, record the user
// turn, invoke the responder to completion and record exactly one assistant
// turn on success.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	sess := r.store.GetOrCreate(req.SessionID)

	// The user turn is recorded even when the turn is blocked or the
	// responder fails: the attempt happened.
	r.store.AppendTurn(sess.ID, core.RoleUser, req.Message, "")

	if verdict := r.validate(r.inputValidator, req.Message); !verdict.Safe {
		r.logger.Info("input blocked session_id=%s reason=%s", sess.ID, verdict.Reason)
		return Result{Success: false, SessionID: sess.ID, Error: verdict.Reason}
	}

	callStart := time.Now()
	completion, err := r.responder.Complete(ctx, sess.Messages())
	r.logModelCall(completion.Handler, time.Since(callStart), err)
	if err != nil {
		r.logger.Error("responder failed session_id=%s err=%v", sess.ID, err)
		r.logTurn(r.fallbackHandler, time.Since(start), false, err)
		return Result{Success: false, SessionID: sess.ID, Error: err.Error()}
	}

	handler := completion.Handler
	if handler == "" {
		handler = r.fallbackHandler
	}

	if verdict := r.validate(r.outputValidator, completion.Text); !verdict.Safe {
		r.logger.Info("output blocked session_id=%s reason=%s", sess.ID, verdict.Reason)
		return Result{Reply: BlockedMessage, Success: false, SessionID: sess.ID, Error: verdict.Reason}
	}

	r.store.AppendTurn(sess.ID, core.RoleAssistant, completion.Text, handler)
	r.logTurn(handler, time.Since(start), true, nil)

	return Result{Reply: completion.Text, Handler: handler, Success: true, SessionID: sess.ID}
}

// turnLogger and modelCallLogger are implemented by loggers that record turn
// and responder-call outcomes as structured events. Plain Loggers fall back
// to formatted messages.
type turnLogger interface {
	LogTurn(handler string, dur time.Duration, success bool, err error)
}

type modelCallLogger interface {
	LogModelCall(model string, dur time.Duration, success bool, err error)
}

func (r *Runner) logTurn(handler string, dur time.Duration, success bool, err error) {
	if tl, ok := r.logger.(turnLogger); ok {
		tl.LogTurn(handler, dur, success, err)
		return
	}
	r.logger.Debug("turn completed handler=%s duration=%s success=%t", handler, dur, success)
}

func (r *Runner) logModelCall(handler string, dur time.Duration, err error) {
	ml, ok := r.logger.(modelCallLogger)
	if !ok {
		return
	}
	ml.LogModelCall(handler, dur, err == nil, err)
}

// RunStream executes one streaming turn, returning the normalized event
// sequence. The channel is closed after the terminal event (Done or
// StreamError) or once ctx is cancelled; cancellation before the assistant
// turn is recorded leaves the session without one.
func (r *Runner) RunStream(ctx context.Context, req Request) <-chan core.StreamEvent {
	out := make(chan core.StreamEvent, r.eventBufferSize)
	go func() {
		defer close(out)
		r.streamTurn(ctx, req, out)
	}()
	return out
}

func (r *Runner) streamTurn(ctx context.Context, req Request, out chan<- core.StreamEvent) {
	start := time.Now()
	sess := r.store.GetOrCreate(req.SessionID)

	// Session identity goes out before any responder work begins.
	if !emit(ctx, out, core.SessionOpened{SessionID: sess.ID}) {
		return
	}

	r.store.AppendTurn(sess.ID, core.RoleUser, req.Message, "")

	if verdict := r.validate(r.inputValidator, req.Message); !verdict.Safe {
		r.logger.Info("input blocked session_id=%s reason=%s", sess.ID, verdict.Reason)
		emit(ctx, out, core.StreamError{Message: verdict.Reason})
		return
	}

	stream := r.responder.Stream(ctx, sess.Messages())

	handler := r.fallbackHandler
	var full []byte
	delivered := false

	for ev := range stream.Events() {
		switch e := ev.(type) {
		case core.HandlerChangedEvent:
			handler = e.Name
			if !emit(ctx, out, core.AgentSelected{Agent: e.Name}) {
				return
			}
		case core.TextFragmentEvent:
			if e.Text == "" {
				continue
			}
			full = append(full, e.Text...)
			delivered = true
			if !emit(ctx, out, core.ContentDelta{Content: e.Text}) {
				return
			}
		case core.RawEvent:
			r.logger.Debug("raw responder event skipped session_id=%s", sess.ID)
		}
	}

	if err := stream.Err(); err != nil {
		r.logger.Error("responder stream failed session_id=%s err=%v", sess.ID, err)
		r.logTurn(handler, time.Since(start), false, err)
		emit(ctx, out, core.StreamError{Message: err.Error()})
		return
	}

	final := stream.Final()
	if final.Handler != "" {
		handler = final.Handler
	}

	// Aggregate fallback: a backend that only produces complete responses
	// still delivers the full text exactly once via a single delta.
	if !delivered && final.Text != "" {
		full = append(full, final.Text...)
		if !emit(ctx, out, core.ContentDelta{Content: final.Text}) {
			return
		}
	}

	reply := string(full)
	if verdict := r.validate(r.outputValidator, reply); !verdict.Safe {
		r.logger.Info("output blocked session_id=%s reason=%s", sess.ID, verdict.Reason)
		emit(ctx, out, core.StreamError{Message: verdict.Reason})
		return
	}

	if ctx.Err() != nil {
		return
	}

	r.store.AppendTurn(sess.ID, core.RoleAssistant, reply, handler)
	r.logTurn(handler, time.Since(start), true, nil)
	emit(ctx, out, core.Done{Agent: handler})
}

func (r *Runner) validate(v core.Validator, text string) core.Verdict {
	if v == nil {
		return core.Verdict{Safe: true}
	}
	return v.Validate(text)
}

// emit delivers ev to the client channel, honoring cancellation. It reports
// whether the event was delivered.
func emit(ctx context.Context, out chan<- core.StreamEvent, ev core.StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
