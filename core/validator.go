package core

// Verdict is the outcome of a safety check. Reason is only meaningful when
// Safe is false.
type Verdict struct {
	Safe   bool
	Reason string
}

// Validator is a pluggable safety policy applied to user input before the
// responder runs and to assistant output before it is recorded.
type Validator interface {
	Validate(text string) Verdict
}

// ValidatorFunc adapts an ordinary function to the Validator interface.
type ValidatorFunc func(text string) Verdict

// Validate implements Validator.
func (f ValidatorFunc) Validate(text string) Verdict { return f(text) }
