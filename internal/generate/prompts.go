package generate

import (
	"fmt"

	"sumbench/internal/types"
)

// summarySystem frames the task identically for every generator so the
// benchmark measures the model, not the prompt.
const summarySystem = `You are an expert code analyst. You write precise, ` +
	`information-dense summaries of source code for developers who have ` +
	`never seen it. You respond with the summary text only: no preamble, ` +
	`no markdown headings, no code fences.`

// summaryPrompt renders the user turn for one code unit.
func summaryPrompt(u *types.CodeUnit) string {
	return fmt.Sprintf(`Summarize the following %s %s in 2-4 sentences.

Cover what it does, its key inputs and outputs, and any side effects or
error behavior worth knowing. Do not restate the code line by line.

File: %s

%s`, u.Language, u.Type, u.Path, u.Content)
}
