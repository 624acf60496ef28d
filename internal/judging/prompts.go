package judging

import (
	"fmt"

	"sumbench/internal/types"
)

// maxCodeChars bounds the code shown to a judge; rubric scoring reads
// the whole unit when it fits, the head otherwise.
const maxCodeChars = 6000

const rubricSystem = `You are an exacting code-review judge. You grade how well a ` +
	`summary describes a piece of source code. Respond with JSON only: ` +
	`{"accuracy": 1-5, "completeness": 1-5, "semantic_richness": 1-5, ` +
	`"abstraction": 1-5, "conciseness": 1-5, "rationale": "<one short paragraph>"}`

func rubricPrompt(u *types.CodeUnit, summary string) string {
	return fmt.Sprintf(`Grade the summary below against the %s %s it describes.

Criteria, each an integer from 1 (poor) to 5 (excellent):
- accuracy: the summary states nothing the code does not do
- completeness: the important behavior is covered
- semantic_richness: it explains purpose and intent, not syntax
- abstraction: the level of detail fits a reader who has not seen the code
- conciseness: no filler, no repetition

Code (%s):
%s

Summary:
%s

Respond with the JSON object only.`,
		u.Language, u.Type, u.Path, clipCode(u.Content), summary)
}

const compareSystem = `You are a code-review judge comparing two summaries of the same ` +
	`code. Respond with JSON only: {"winner": "A" | "B" | "tie", ` +
	`"confidence": "high" | "medium" | "low", "reasoning": "<one sentence>"}`

func comparePrompt(u *types.CodeUnit, first, second string) string {
	return fmt.Sprintf(`Two summaries describe the same %s %s. Decide which describes it better, judging accuracy first, then completeness, then clarity. Answer "tie" only when they are genuinely interchangeable.

Code (%s):
%s

Summary A:
%s

Summary B:
%s

Respond with the JSON object only.`,
		u.Language, u.Type, u.Path, clipCode(u.Content), first, second)
}

func clipCode(s string) string {
	if len(s) > maxCodeChars {
		return s[:maxCodeChars] + "\n..."
	}
	return s
}
