// Package responder contains concrete core.Responder backends. The Scripted
// responder lives at the package root for tests and demos; real providers
// (OpenAI, Anthropic) live in sub-packages so importing one does not pull in
// the other vendor SDK.
package responder
