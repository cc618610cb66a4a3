// Package session houses concrete stores for conversational state. The
// domain types (Session, Turn) live in the core package to centralize
// contracts; keeping only implementations here prevents higher level packages
// (runner, server) from depending on concrete storage.
//
// Add additional backends (Redis, Postgres, etc.) in sub-packages without
// changing any calling code – only the wiring layer needs to decide which
// implementation to instantiate.
package session
