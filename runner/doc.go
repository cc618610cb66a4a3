// Package runner implements the turn orchestration layer for ChatMesh.
//
// The Runner coordinates one request end to end: it resolves the session,
// records the user turn, invokes the responder (blocking or streaming),
// normalizes the responder's native events into the client-facing stream
// vocabulary and records exactly one assistant turn per successful turn.
//
// # Responsibilities (abridged)
//   - Session resolution via the store's GetOrCreate entry point
//   - Input/output safety validation short-circuits
//   - Stream normalization with full-response accumulation
//   - Structured result values for all collaborator failures
//
// See runner.go for the operational implementation details.
package runner
