package iterative

import (
	"fmt"
	"strings"

	"sumbench/internal/types"
)

// maxCodeChars bounds the code echoed into a refinement prompt.
const maxCodeChars = 6000

const refineSystem = `You improve code summaries for semantic search. Given the code, ` +
	`your current summary, and competing summaries of the same code, rewrite your ` +
	`summary so a developer's search for this code finds yours first. Respond with ` +
	`the new summary text only, no preamble and no markdown.`

// refinePrompt shows the model its standing and the anonymous
// competition. Competitor order carries no meaning.
func refinePrompt(u *types.CodeUnit, current string, competitors []string, rank, candidates int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your summary of the %s %s currently ranks %d of %d candidates when matched against a search query for this code.\n\n",
		u.Language, u.Type, rank, candidates)
	fmt.Fprintf(&sb, "Code (%s):\n%s\n\n", u.Path, clipCode(u.Content))
	fmt.Fprintf(&sb, "Your current summary:\n%s\n\n", current)
	sb.WriteString("Competing summaries:\n")
	for i, c := range competitors {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}
	sb.WriteString("\nWrite an improved summary that is more specific to this code than the competition. Reply with the summary text only.")
	return sb.String()
}

func clipCode(s string) string {
	if len(s) > maxCodeChars {
		return s[:maxCodeChars] + "\n..."
	}
	return s
}
