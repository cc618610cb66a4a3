// Package chatmesh provides a high-level façade over the session store, turn
// orchestration and responder abstractions enabling rapid construction of a
// multi-agent conversational router. Most applications interact with this
// package by:
//  1. Creating a ChatMesh via New() with a responder backend
//  2. Sending messages synchronously (Send) or as an event stream (SendStream)
//  3. Serving the result over the server package or a custom transport
//
// All defaults are safe for local development and testing; production
// deployments typically supply a structured logger and tuned session bounds.
package chatmesh

import (
	"context"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/runner"
	"github.com/hupe1980/chatmesh/session"
)

// Options configures the ChatMesh instance.
type Options struct {
	// Store overrides the default in-memory session store.
	Store *session.InMemoryStore

	// MaxTurns bounds per-session history when the default store is built.
	MaxTurns int

	// SessionTTL is the idle expiry window when the default store is built.
	SessionTTL time.Duration

	// InputValidator screens user messages before the responder runs.
	InputValidator core.Validator

	// OutputValidator screens assistant responses before they are recorded.
	OutputValidator core.Validator

	// FallbackHandler names turns whose backend reports no handler.
	FallbackHandler string

	// EventBufferSize sets channel buffering for stream events.
	EventBufferSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ChatMesh is the high-level façade aggregating the session store and the
// turn orchestrator.
type ChatMesh struct {
	store  *session.InMemoryStore
	runner *runner.Runner
}

// New creates a new ChatMesh instance around a responder backend with
// optional overrides. An unset store is initialized in-memory.
func New(responder core.Responder, optFns ...func(o *Options)) *ChatMesh {
	opts := Options{
		MaxTurns:        50,
		SessionTTL:      30 * time.Minute,
		FallbackHandler: "Triage Assistant",
		EventBufferSize: 100,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	store := opts.Store
	if store == nil {
		store = session.NewInMemoryStore(func(o *session.Options) {
			o.MaxTurns = opts.MaxTurns
			o.TTL = opts.SessionTTL
			o.Logger = opts.Logger
		})
	}

	r := runner.New(store, responder, func(o *runner.Options) {
		o.InputValidator = opts.InputValidator
		o.OutputValidator = opts.OutputValidator
		o.FallbackHandler = opts.FallbackHandler
		o.EventBufferSize = opts.EventBufferSize
		o.Logger = opts.Logger
	})

	return &ChatMesh{store: store, runner: r}
}

// Send executes one blocking turn and returns its structured result.
func (m *ChatMesh) Send(ctx context.Context, message, sessionID string) runner.Result {
	return m.runner.Run(ctx, runner.Request{Message: message, SessionID: sessionID})
}

// SendStream executes one streaming turn, returning the normalized event
// sequence. The channel closes after the terminal event.
func (m *ChatMesh) SendStream(ctx context.Context, message, sessionID string) <-chan core.StreamEvent {
	return m.runner.RunStream(ctx, runner.Request{Message: message, SessionID: sessionID})
}

// Store exposes the underlying session store for the management surface
// (history, reset, health) and sweeper wiring.
func (m *ChatMesh) Store() *session.InMemoryStore { return m.store }

// Runner exposes the turn orchestrator for custom transports.
func (m *ChatMesh) Runner() *runner.Runner { return m.runner }
