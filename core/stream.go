package core

// StreamEvent is a polymorphic frame of the normalized client-facing event
// stream. Concrete frame types implement the unexported marker enabling a
// closed set.
//
// Ordering contract for one turn:
//   - SessionOpened precedes all other frames
//   - ContentDelta payloads, concatenated in emission order, reconstruct the
//     full assistant response exactly
//   - Done is terminal for a successful turn and emitted at most once
//   - StreamError is terminal and precludes Done
type StreamEvent interface{ isStreamEvent() }

// SessionOpened announces the resolved session identity before any responder
// work begins.
type SessionOpened struct {
	SessionID string
}

func (SessionOpened) isStreamEvent() {}

// AgentSelected announces the responder profile now handling the turn.
type AgentSelected struct {
	Agent string
}

func (AgentSelected) isStreamEvent() {}

// ContentDelta carries an incremental fragment of the assistant response.
type ContentDelta struct {
	Content string
}

func (ContentDelta) isStreamEvent() {}

// Done terminates a successful turn, naming the final handling profile.
type Done struct {
	Agent string
}

func (Done) isStreamEvent() {}

// StreamError terminates a failed turn. Partial content already delivered is
// not retracted.
type StreamError struct {
	Message string
}

func (StreamError) isStreamEvent() {}

// Frame is the wire form of a StreamEvent: a small JSON object with a type
// discriminator and a type-specific payload field.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Agent     string `json:"agent,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EncodeFrame converts a StreamEvent into its wire form.
func EncodeFrame(ev StreamEvent) Frame {
	switch e := ev.(type) {
	case SessionOpened:
		return Frame{Type: "session", SessionID: e.SessionID}
	case AgentSelected:
		return Frame{Type: "agent", Agent: e.Agent}
	case ContentDelta:
		return Frame{Type: "content", Content: e.Content}
	case Done:
		return Frame{Type: "done", Agent: e.Agent}
	case StreamError:
		return Frame{Type: "error", Error: e.Message}
	default:
		return Frame{Type: "error", Error: "unknown stream event"}
	}
}
