package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/core"
)

// passageExcerptBytes limits how much of each passage is placed in the prompt.
const passageExcerptBytes = 400

const answerSystemPrompt = `You answer questions about a collection of podcast and video transcripts.

Rules:
- Use only the transcript excerpts supplied in the user message.
- If the excerpts do not contain the answer, say so plainly.
- Mention the source file names you relied on.
- Keep the answer short and factual.`

const answerUserTemplate = `Transcript excerpts:

%s

Question: %s`

// buildAnswerPrompt renders the passages as a numbered context block.
func buildAnswerPrompt(question string, passages []ai.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Score %.3f] (%s) %s", p.Score, p.Source, core.Excerpt(p.Text, passageExcerptBytes))
	}
	return fmt.Sprintf(answerUserTemplate, b.String(), strings.TrimSpace(question))
}
