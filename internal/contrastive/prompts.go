package contrastive

import (
	"fmt"
	"strings"

	"sumbench/internal/types"
)

const matchSystem = `You match a code summary to the snippet it describes. Respond with JSON: {"choice": <option number>} and nothing else.`

// maxOptionChars keeps oversized units from blowing up the prompt; the
// head of a snippet carries what a summary describes.
const maxOptionChars = 1500

func matchPrompt(summary string, options []*types.CodeUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A summary describes exactly one of the numbered code snippets below.\n\nSummary: %s\n", summary)
	for i, u := range options {
		fmt.Fprintf(&b, "\nOption %d (%s):\n%s\n", i+1, u.Language, clip(u.Content))
	}
	b.WriteString("\nWhich option does the summary describe? Respond with JSON: {\"choice\": <option number>}.")
	return b.String()
}

func clip(s string) string {
	if len(s) > maxOptionChars {
		return s[:maxOptionChars] + "\n..."
	}
	return s
}
