// Package routing carries the configuration data that decides which
// specialized responder profile answers a message: profile instructions,
// keyword lists and the best-effort reply attribution heuristic. Backends
// consume this table; the orchestrator never inspects it.
package routing

import "strings"

// Profile describes one specialized responder: its public name, the
// instruction text sent to the model and the keywords that route to it.
type Profile struct {
	Name         string
	Instructions string
	Keywords     []string
}

// Table routes message text to a profile by keyword match. The zero keyword
// profile acts as the fallback.
type Table struct {
	profiles []Profile
	fallback Profile
	triage   string
}

// New builds a table from a fallback profile and any number of keyword-routed
// profiles. Profiles are matched in registration order.
func New(fallback Profile, profiles ...Profile) *Table {
	return &Table{profiles: profiles, fallback: fallback, triage: triageInstructions}
}

// Profiles returns all registered profiles, fallback last.
func (t *Table) Profiles() []Profile {
	out := make([]Profile, 0, len(t.profiles)+1)
	out = append(out, t.profiles...)
	out = append(out, t.fallback)
	return out
}

// TriageInstructions returns the routing instruction text for backends that
// let the model perform the handoff itself.
func (t *Table) TriageInstructions() string { return t.triage }

// Classify selects the profile whose keywords best match the message text,
// falling back to the default profile when nothing matches. Matching is a
// case-insensitive substring scan; ties go to the earlier registered profile.
func (t *Table) Classify(text string) Profile {
	lower := strings.ToLower(text)
	best := t.fallback
	bestHits := 0
	for _, p := range t.profiles {
		hits := 0
		for _, kw := range p.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = p
			bestHits = hits
		}
	}
	return best
}

// AttributeReply guesses which profile produced an answer by classifying the
// answer text itself. This is best-effort metadata with no correctness
// guarantee; a backend-reported handler always takes precedence.
func (t *Table) AttributeReply(reply string) string {
	return t.Classify(reply).Name
}

// Lookup returns the profile with the given name, or the fallback when the
// name is unknown.
func (t *Table) Lookup(name string) Profile {
	for _, p := range t.profiles {
		if p.Name == name {
			return p
		}
	}
	return t.fallback
}

// FallbackName returns the name of the fallback profile.
func (t *Table) FallbackName() string { return t.fallback.Name }

// Default returns the stock three-profile table: general chat, technical
// expert and student helper.
func Default() *Table {
	return New(generalProfile, technicalProfile, studentProfile)
}

var technicalProfile = Profile{
	Name: "Technical Expert",
	Instructions: `You are a senior software engineer and technical expert.

Help with programming questions in any language, debug code, explain
technical concepts clearly and provide production-ready examples with error
handling. Explain your reasoning and follow best practices.`,
	Keywords: []string{
		"code", "programming", "debug", "error", "api", "database",
		"algorithm", "function", "class", "bug", "implementation",
		"software", "develop", "technical", "python", "javascript",
		"java", "c++", "sql", "framework", "library",
	},
}

var studentProfile = Profile{
	Name: "Student Helper",
	Instructions: `You are a patient and encouraging educational tutor.

Help students understand concepts and guide them through homework without
just giving answers. Use guiding questions, break complex topics into simple
steps, provide examples and analogies, and verify understanding as you go.`,
	Keywords: []string{
		"homework", "assignment", "study", "learn", "explain",
		"tutorial", "lesson", "course", "exam", "test",
		"understand", "concept", "basics", "beginner", "teach",
	},
}

var generalProfile = Profile{
	Name: "General Chat Assistant",
	Instructions: `You are a friendly and helpful general chat assistant.

Engage in casual conversation, answer general knowledge questions and give
recommendations. Keep responses concise, warm and conversational. If the
question is highly technical or educational, suggest specialized help.`,
}

const triageInstructions = `You are a routing assistant that directs users to the right specialist.

Analyze the user's question and transfer it to the best matching profile:
Technical Expert for programming, debugging and technical implementation;
Student Helper for homework, learning and educational explanations;
General Chat Assistant for everything else. Transfer immediately on the
first message without answering the question yourself. If unsure, default
to General Chat Assistant.`
