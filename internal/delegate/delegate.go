// Package delegate defines the semantic screening contract used by the AI
// stage and an HTTP client for OpenAI-compatible chat completion APIs.
package delegate

import (
	"context"
	"fmt"
)

// Decision is a delegate's verdict on one candidate.
type Decision struct {
	Exclude bool   `json:"exclude"`
	Reason  string `json:"reason"`
}

// Verification is the answer to the in-scope follow-up question.
type Verification struct {
	InScope    bool   `json:"in_scope"`
	Confidence string `json:"confidence"`
}

// Delegate screens a single record. Implementations may fail; callers treat
// a failure as "keep the record".
type Delegate interface {
	Classify(ctx context.Context, title, abstract, criteria string) (Decision, error)
	Verify(ctx context.Context, title, abstract, topic string) (Verification, error)
}

// DefaultReason is used when a delegate excludes without giving a reason.
const DefaultReason = "Criteria matched"

const systemPrompt = "You are a helpful assistant that outputs JSON."

func classifyPrompt(title, abstract, criteria string) string {
	return fmt.Sprintf(`You are a research assistant. Screen this paper based on the following exclusion criteria:
"%s"

Paper Title: %s
Paper Abstract: %s

Reply strictly in JSON format: {"exclude": boolean, "reason": "short reason"}`,
		criteria, orNA(title), orNA(abstract))
}

func verifyPrompt(title, abstract, topic string) string {
	return fmt.Sprintf(`You are a research assistant double-checking a screening decision. The review topic is:
"%s"

Paper Title: %s
Paper Abstract: %s

Is this paper genuinely within the scope of the review topic?
Reply strictly in JSON format: {"in_scope": boolean, "confidence": "high|medium|low"}`,
		topic, orNA(title), orNA(abstract))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
