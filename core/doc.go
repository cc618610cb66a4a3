// Package core provides the foundational domain types and interfaces used by
// ChatMesh. It defines the core abstractions for:
//
//   - Sessions (expirable conversational containers with bounded turn history)
//   - Turns (immutable user/assistant messages within a session)
//   - Responders (pluggable text-generation backends, blocking or streaming)
//   - Stream events (the normalized client-facing event vocabulary)
//   - Validators (pluggable input/output safety policies)
//
// The package intentionally keeps implementation concerns (storage, transport,
// concrete backends) out of scope, exposing small interfaces to enable custom
// backends and extensions.
package core
