package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/guardrail"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/responder"
	"github.com/hupe1980/chatmesh/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, optFns ...func(o *Options)) (*Runner, *session.InMemoryStore, *responder.Scripted) {
	t.Helper()
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted()
	scripted.AddReply("hello", "hi there", "General Chat Assistant")
	scripted.AddReply("fix my code", "try rebuilding", "Technical Expert")
	return New(store, scripted, optFns...), store, scripted
}

func collect(t *testing.T, ch <-chan core.StreamEvent) []core.StreamEvent {
	t.Helper()
	var events []core.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestRun_SuccessRecordsBothTurns(t *testing.T) {
	r, store, _ := newTestRunner(t)

	res := r.Run(context.Background(), Request{Message: "hello"})
	require.True(t, res.Success)
	assert.Equal(t, "hi there", res.Reply)
	assert.Equal(t, "General Chat Assistant", res.Handler)
	require.NotEmpty(t, res.SessionID)

	turns, ok := store.History(res.SessionID)
	require.True(t, ok)
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hi there", turns[1].Content)
	assert.Equal(t, "General Chat Assistant", turns[1].Handler)
}

func TestRun_SessionContinuity(t *testing.T) {
	r, store, _ := newTestRunner(t)

	first := r.Run(context.Background(), Request{Message: "hello"})
	second := r.Run(context.Background(), Request{Message: "fix my code", SessionID: first.SessionID})

	assert.Equal(t, first.SessionID, second.SessionID)
	turns, _ := store.History(first.SessionID)
	assert.Len(t, turns, 4)
}

func TestRun_InputBlocked(t *testing.T) {
	r, store, _ := newTestRunner(t, func(o *Options) {
		o.InputValidator = guardrail.NewInputValidator()
	})

	res := r.Run(context.Background(), Request{Message: "attack system"})
	require.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Reply)

	// The user turn is still recorded; no assistant turn is.
	turns, ok := store.History(res.SessionID)
	require.True(t, ok)
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestRun_OutputBlocked(t *testing.T) {
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted()
	scripted.AddReply("hi", "here are instructions to harm your rival", "General Chat Assistant")
	r := New(store, scripted, func(o *Options) {
		o.OutputValidator = guardrail.NewOutputValidator()
	})

	res := r.Run(context.Background(), Request{Message: "hi"})
	require.False(t, res.Success)
	assert.Equal(t, BlockedMessage, res.Reply)
	assert.NotEmpty(t, res.Error)

	turns, _ := store.History(res.SessionID)
	require.Len(t, turns, 1, "blocked output must never be persisted")
	assert.NotContains(t, turns[0].Content, "harm")
}

func TestRun_ResponderError(t *testing.T) {
	r, store, scripted := newTestRunner(t)
	scripted.FailWith(assert.AnError)

	res := r.Run(context.Background(), Request{Message: "hello"})
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "scripted")

	turns, _ := store.History(res.SessionID)
	assert.Len(t, turns, 1, "user turn remains, no assistant turn on failure")
}

func TestRun_FallbackHandlerName(t *testing.T) {
	store := session.NewInMemoryStore()
	r := New(store, noHandlerResponder{}, func(o *Options) {
		o.FallbackHandler = "Triage Assistant"
	})

	res := r.Run(context.Background(), Request{Message: "hello"})
	require.True(t, res.Success)
	assert.Equal(t, "Triage Assistant", res.Handler)
}

// noHandlerResponder returns completions without attribution.
type noHandlerResponder struct{}

func (noHandlerResponder) Complete(context.Context, []core.Message) (core.Completion, error) {
	return core.Completion{Text: "anonymous reply"}, nil
}

func (noHandlerResponder) Stream(ctx context.Context, msgs []core.Message) *core.ResponderStream {
	st := core.NewResponderStream(1)
	go func() {
		st.Emit(ctx, core.TextFragmentEvent{Text: "anonymous reply"})
		st.Close(core.Completion{Text: "anonymous reply"})
	}()
	return st
}

func TestRunStream_OrderingAndContent(t *testing.T) {
	r, store, _ := newTestRunner(t)

	events := collect(t, r.RunStream(context.Background(), Request{Message: "hello"}))
	require.NotEmpty(t, events)

	opened, ok := events[0].(core.SessionOpened)
	require.True(t, ok, "session-opened must precede all other events")
	require.NotEmpty(t, opened.SessionID)

	var deltas strings.Builder
	var doneCount int
	var agent string
	for _, ev := range events[1:] {
		switch e := ev.(type) {
		case core.AgentSelected:
			agent = e.Agent
		case core.ContentDelta:
			deltas.WriteString(e.Content)
		case core.Done:
			doneCount++
			assert.Equal(t, agent, e.Agent)
		case core.StreamError:
			t.Fatalf("unexpected error event: %s", e.Message)
		}
	}

	assert.Equal(t, 1, doneCount, "done is emitted exactly once")
	_, isDone := events[len(events)-1].(core.Done)
	assert.True(t, isDone, "done must be the terminal event")

	// Concatenated deltas reconstruct the reply the blocking path produces.
	assert.Equal(t, "hi there", deltas.String())

	turns, _ := store.History(opened.SessionID)
	require.Len(t, turns, 2)
	assert.Equal(t, "hi there", turns[1].Content)
	assert.Equal(t, "General Chat Assistant", turns[1].Handler)
}

func TestRunStream_MatchesBlockingReply(t *testing.T) {
	r, _, _ := newTestRunner(t)

	blocking := r.Run(context.Background(), Request{Message: "fix my code"})
	require.True(t, blocking.Success)

	events := collect(t, r.RunStream(context.Background(), Request{Message: "fix my code"}))
	var deltas strings.Builder
	for _, ev := range events {
		if d, ok := ev.(core.ContentDelta); ok {
			deltas.WriteString(d.Content)
		}
	}
	assert.Equal(t, blocking.Reply, deltas.String())
}

func TestRunStream_AggregateFallback(t *testing.T) {
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted(func(o *responder.ScriptedOptions) {
		o.AggregateOnly = true
	})
	scripted.AddReply("hello", "complete answer", "General Chat Assistant")
	r := New(store, scripted)

	events := collect(t, r.RunStream(context.Background(), Request{Message: "hello"}))

	var deltas []string
	for _, ev := range events {
		if d, ok := ev.(core.ContentDelta); ok {
			deltas = append(deltas, d.Content)
		}
	}
	require.Len(t, deltas, 1, "aggregate result arrives as a single delta")
	assert.Equal(t, "complete answer", deltas[0])

	opened := events[0].(core.SessionOpened)
	turns, _ := store.History(opened.SessionID)
	require.Len(t, turns, 2)
	assert.Equal(t, "complete answer", turns[1].Content)
}

func TestRunStream_ResponderErrorIsTerminal(t *testing.T) {
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted(func(o *responder.ScriptedOptions) {
		o.FailAfterFragments = 1
	})
	scripted.AddReply("hello", "a rather long reply that streams", "General Chat Assistant")
	r := New(store, scripted)

	events := collect(t, r.RunStream(context.Background(), Request{Message: "hello"}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	_, isErr := last.(core.StreamError)
	require.True(t, isErr, "stream must terminate with an error event")

	for _, ev := range events {
		_, isDone := ev.(core.Done)
		assert.False(t, isDone, "error precludes done")
	}

	opened := events[0].(core.SessionOpened)
	turns, _ := store.History(opened.SessionID)
	assert.Len(t, turns, 1, "no assistant turn on an interrupted stream")
}

func TestRunStream_OutputBlocked(t *testing.T) {
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted()
	scripted.AddReply("hi", "here are instructions to harm your rival", "General Chat Assistant")
	r := New(store, scripted, func(o *Options) {
		o.OutputValidator = guardrail.NewOutputValidator()
	})

	events := collect(t, r.RunStream(context.Background(), Request{Message: "hi"}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	errEv, isErr := last.(core.StreamError)
	require.True(t, isErr, "blocked output must terminate the stream with an error event")
	assert.NotEmpty(t, errEv.Message)

	for _, ev := range events {
		_, isDone := ev.(core.Done)
		assert.False(t, isDone, "blocked output precludes done")
	}

	opened := events[0].(core.SessionOpened)
	turns, _ := store.History(opened.SessionID)
	require.Len(t, turns, 1, "blocked output must never be persisted")
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestRunStream_InputBlocked(t *testing.T) {
	r, store, _ := newTestRunner(t, func(o *Options) {
		o.InputValidator = guardrail.NewInputValidator()
	})

	events := collect(t, r.RunStream(context.Background(), Request{Message: "attack system"}))
	require.Len(t, events, 2)

	opened := events[0].(core.SessionOpened)
	_, isErr := events[1].(core.StreamError)
	assert.True(t, isErr)

	turns, _ := store.History(opened.SessionID)
	assert.Len(t, turns, 1, "user turn recorded, no assistant turn")
}

func TestRunStream_CancelledClientLeavesSessionConsistent(t *testing.T) {
	store := session.NewInMemoryStore()
	scripted := responder.NewScripted(func(o *responder.ScriptedOptions) {
		o.ChunkSize = 1
	})
	scripted.AddReply("hello", strings.Repeat("x", 500), "General Chat Assistant")
	r := New(store, scripted, func(o *Options) {
		o.EventBufferSize = 1
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := r.RunStream(ctx, Request{Message: "hello"})

	// Read the session-opened frame, then walk away mid-stream.
	ev := <-ch
	opened, ok := ev.(core.SessionOpened)
	require.True(t, ok)
	cancel()

	collect(t, ch)

	// No torn state: the user turn exists, and either zero or one assistant
	// turn was recorded depending on how far the stream got.
	turns, found := store.History(opened.SessionID)
	require.True(t, found)
	require.NotEmpty(t, turns)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.LessOrEqual(t, len(turns), 2)
}

// recordingLogger captures structured turn and model-call records.
type recordingLogger struct {
	logging.NoOpLogger
	mu         sync.Mutex
	turns      []recordedTurn
	modelCalls int
}

type recordedTurn struct {
	handler string
	success bool
	err     error
}

func (l *recordingLogger) LogTurn(handler string, _ time.Duration, success bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, recordedTurn{handler: handler, success: success, err: err})
}

func (l *recordingLogger) LogModelCall(string, time.Duration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modelCalls++
}

func TestRun_StructuredTurnLogging(t *testing.T) {
	rec := &recordingLogger{}
	r, _, scripted := newTestRunner(t, func(o *Options) {
		o.Logger = rec
	})

	res := r.Run(context.Background(), Request{Message: "hello"})
	require.True(t, res.Success)

	scripted.FailWith(assert.AnError)
	res = r.Run(context.Background(), Request{Message: "hello"})
	require.False(t, res.Success)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.turns, 2)
	assert.Equal(t, recordedTurn{handler: "General Chat Assistant", success: true}, rec.turns[0])
	assert.False(t, rec.turns[1].success)
	assert.Error(t, rec.turns[1].err)
	assert.Equal(t, 2, rec.modelCalls)
}

func TestRunStream_StructuredTurnLogging(t *testing.T) {
	rec := &recordingLogger{}
	r, _, _ := newTestRunner(t, func(o *Options) {
		o.Logger = rec
	})

	collect(t, r.RunStream(context.Background(), Request{Message: "hello"}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.turns, 1)
	assert.Equal(t, recordedTurn{handler: "General Chat Assistant", success: true}, rec.turns[0])
}

func TestRunStream_ExactlyOneAssistantTurn(t *testing.T) {
	r, store, _ := newTestRunner(t)

	ch := r.RunStream(context.Background(), Request{Message: "hello"})
	events := collect(t, ch)
	opened := events[0].(core.SessionOpened)

	turns, _ := store.History(opened.SessionID)
	var assistant int
	for _, turn := range turns {
		if turn.Role == core.RoleAssistant {
			assistant++
		}
	}
	assert.Equal(t, 1, assistant)
}
