// Package guardrail provides regex-based content safety validators. The
// pattern lists are policy data; swap in any core.Validator to change the
// policy without touching the orchestrator.
package guardrail

import (
	"regexp"
	"strings"

	"github.com/hupe1980/chatmesh/core"
)

// PatternValidator rejects text matching any of its blocked patterns.
type PatternValidator struct {
	patterns []*regexp.Regexp
	reason   string
	minLen   int
	emptyMsg string
}

// Options configures a PatternValidator.
type Options struct {
	// Reason is returned on a pattern match.
	Reason string
	// MinLen rejects text shorter than this many characters after trimming.
	MinLen int
	// EmptyReason is returned when the MinLen check fails.
	EmptyReason string
}

// New compiles the given patterns into a validator. Invalid patterns are a
// programming error and panic at construction time.
func New(patterns []string, optFns ...func(o *Options)) *PatternValidator {
	opts := Options{Reason: "Content cannot be processed."}
	for _, fn := range optFns {
		fn(&opts)
	}

	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return &PatternValidator{patterns: compiled, reason: opts.Reason, minLen: opts.MinLen, emptyMsg: opts.EmptyReason}
}

// Validate implements core.Validator.
func (v *PatternValidator) Validate(text string) core.Verdict {
	if v.minLen > 0 && len(strings.TrimSpace(text)) < v.minLen {
		return core.Verdict{Safe: false, Reason: v.emptyMsg}
	}
	lower := strings.ToLower(text)
	for _, p := range v.patterns {
		if p.MatchString(lower) {
			return core.Verdict{Safe: false, Reason: v.reason}
		}
	}
	return core.Verdict{Safe: true}
}

var unsafeInputPatterns = []string{
	`\b(hack|exploit|attack|malware|virus)\b`,
	`\b(steal|leak|bypass)\b.*\b(data|password|system)\b`,
	`\b(illegal|harmful)\b.*\b(activity|content)\b`,
}

var harmfulOutputPatterns = []string{
	`\b(how to|guide|instructions)\b.*\b(harm|hurt|attack)\b`,
	`\b(illegal|unlawful)\b.*\b(activity|method)\b`,
}

// NewInputValidator returns the stock user-input policy: non-empty text with
// no unsafe patterns.
func NewInputValidator() *PatternValidator {
	return New(unsafeInputPatterns, func(o *Options) {
		o.Reason = "Input contains unsafe content and cannot be processed."
		o.MinLen = 1
		o.EmptyReason = "Input cannot be empty."
	})
}

// NewOutputValidator returns the stock assistant-output policy.
func NewOutputValidator() *PatternValidator {
	return New(harmfulOutputPatterns, func(o *Options) {
		o.Reason = "Output contains potentially harmful content."
	})
}
